package calendar

import (
	"fmt"
	"strings"
	"time"
)

// Renderer turns a Projection into a chat message. Rasterizing an image is a
// rendering concern; the core only supplies the data view.
type Renderer interface {
	Render(p Projection, today time.Time) string
}

// TextRenderer draws a monospace month grid with a today marker, per-day
// reminder counts, and the month agenda.
type TextRenderer struct{}

var weekdayHeader = []string{"日", "月", "火", "水", "木", "金", "土"}

func (TextRenderer) Render(p Projection, today time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📅 %d年 %d月\n", p.Year, int(p.Month))
	b.WriteString("```\n")
	b.WriteString(strings.Join(weekdayHeader, " "))
	b.WriteString("\n")

	isThisMonth := today.Year() == p.Year && today.Month() == p.Month

	cells := make([]string, 0, 42)
	for i := 0; i < int(p.FirstWeekday); i++ {
		cells = append(cells, "    ")
	}
	for day := 1; day <= p.DaysInMonth; day++ {
		mark := " "
		switch {
		case isThisMonth && day == today.Day():
			mark = "*"
		case p.Counts[day] > 0:
			mark = "."
		}
		cells = append(cells, fmt.Sprintf("%3d%s", day, mark))
	}
	for i, cell := range cells {
		b.WriteString(cell)
		if (i+1)%7 == 0 {
			b.WriteString("\n")
		}
	}
	if len(cells)%7 != 0 {
		b.WriteString("\n")
	}
	b.WriteString("```\n")

	if len(p.Agenda) == 0 {
		b.WriteString("予定はありません")
		return strings.TrimRight(b.String(), "\n")
	}
	b.WriteString("今月の予定:\n")
	for _, r := range p.Agenda {
		t := r.Time.In(today.Location())
		msg := r.Message
		if msg == "" {
			msg = "(メッセージなし)"
		}
		fmt.Fprintf(&b, "・%d/%d %02d:%02d %s\n", int(t.Month()), t.Day(), t.Hour(), t.Minute(), msg)
	}
	return strings.TrimRight(b.String(), "\n")
}
