package calendar

import (
	"strings"
	"testing"
	"time"

	"koyomi/internal/storage"
)

func TestProjectMonthShape(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		year    int
		month   time.Month
		days    int
		weekday time.Weekday
	}{
		{name: "leap february", year: 2024, month: time.February, days: 29, weekday: time.Thursday},
		{name: "plain february", year: 2025, month: time.February, days: 28, weekday: time.Saturday},
		{name: "thirty one days", year: 2025, month: time.July, days: 31, weekday: time.Tuesday},
		{name: "thirty days", year: 2025, month: time.April, days: 30, weekday: time.Tuesday},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			p := Project(tt.year, tt.month, nil, time.UTC)
			if p.DaysInMonth != tt.days {
				t.Fatalf("DaysInMonth = %d, want %d", p.DaysInMonth, tt.days)
			}
			if p.FirstWeekday != tt.weekday {
				t.Fatalf("FirstWeekday = %v, want %v", p.FirstWeekday, tt.weekday)
			}
		})
	}
}

func TestProjectCountsAndAgenda(t *testing.T) {
	t.Parallel()
	loc := time.FixedZone("JST", 9*3600)
	in := []storage.Reminder{
		{Time: time.Date(2025, 7, 15, 18, 0, 0, 0, loc), Message: "later"},
		{Time: time.Date(2025, 7, 15, 9, 0, 0, 0, loc), Message: "earlier"},
		{Time: time.Date(2025, 7, 3, 12, 0, 0, 0, loc), Message: "first"},
		{Time: time.Date(2025, 8, 1, 0, 0, 0, 0, loc), Message: "next month"},
		// 23:30 UTC on the 14th is already the 15th in JST.
		{Time: time.Date(2025, 7, 14, 23, 30, 0, 0, time.UTC), Message: "crosses midnight"},
	}

	p := Project(2025, time.July, in, loc)
	if p.Counts[3] != 1 || p.Counts[15] != 3 {
		t.Fatalf("Counts = %v", p.Counts)
	}
	if len(p.Agenda) != 4 {
		t.Fatalf("Agenda length = %d, want 4", len(p.Agenda))
	}
	for i := 1; i < len(p.Agenda); i++ {
		if p.Agenda[i].Time.Before(p.Agenda[i-1].Time) {
			t.Fatalf("agenda out of order: %+v", p.Agenda)
		}
	}
}

func TestGridIndex(t *testing.T) {
	t.Parallel()
	// July 2025 starts on Tuesday: day 1 sits in cell 2.
	p := Project(2025, time.July, nil, time.UTC)
	if got := p.GridIndex(1); got != 2 {
		t.Fatalf("GridIndex(1) = %d, want 2", got)
	}
	if got := p.GridIndex(6); got != 7 {
		t.Fatalf("GridIndex(6) = %d, want 7", got)
	}
}

func TestTextRenderer(t *testing.T) {
	t.Parallel()
	loc := time.FixedZone("JST", 9*3600)
	today := time.Date(2025, 7, 15, 10, 0, 0, 0, loc)
	in := []storage.Reminder{
		{Time: time.Date(2025, 7, 20, 9, 30, 0, 0, loc), Message: "市場調査"},
	}
	out := TextRenderer{}.Render(Project(2025, time.July, in, loc), today)

	for _, want := range []string{
		"📅 2025年 7月",
		"日 月 火 水 木 金 土",
		" 15*", // today marker
		" 20.", // reminder marker
		"・7/20 09:30 市場調査",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("rendered calendar missing %q:\n%s", want, out)
		}
	}

	empty := TextRenderer{}.Render(Project(2025, 6, nil, loc), today)
	if !strings.Contains(empty, "予定はありません") {
		t.Fatalf("empty month missing placeholder:\n%s", empty)
	}
}
