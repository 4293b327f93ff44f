package reminder

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"koyomi/internal/core"
	"koyomi/internal/storage"
)

const usageHint = "使い方: !remind <HH:MM | [YYYY/]M/D HH:MM | N分> [メッセージ]\n" +
	"　　　 !remind … 一覧 / !remind delete N / !remind clear"

func (p *Plugin) Commands() []core.Command {
	return []core.Command{
		{
			Name:        "remind",
			Aliases:     []string{"r"},
			Description: "リマインダーの登録・一覧・削除",
			Usage:       "!remind 18:30 会議 / !remind 30分 休憩 / !remind delete 2",
			Handle:      p.handleRemind,
		},
	}
}

func (p *Plugin) handleRemind(ctx context.Context, req *core.Request) error {
	if len(req.Args) == 0 {
		return p.replyList(ctx, req)
	}
	switch req.Args[0] {
	case "delete":
		return p.handleDelete(ctx, req, req.Args[1:])
	case "clear":
		return p.handleClear(ctx, req)
	default:
		return p.handleAdd(ctx, req)
	}
}

func (p *Plugin) handleAdd(ctx context.Context, req *core.Request) error {
	now := req.Services.Now()
	due, rest, err := ParseWhen(req.Args, now)
	if err != nil {
		return req.Reply(ctx, usageHint)
	}

	r := storage.Reminder{
		Time:    due,
		UserID:  req.UserID(),
		Message: strings.Join(rest, " "),
	}
	req.Services.State.AddReminder(req.Channel, r)
	p.audit(ctx, req, "add", r.Message)
	p.persistAndAnnounce(req.Channel)

	return req.Reply(ctx, fmt.Sprintf("⏰ %s にリマインドします", formatDue(due, now)))
}

func (p *Plugin) replyList(ctx context.Context, req *core.Request) error {
	rs := req.Services.State.Reminders(req.Channel)
	if len(rs) == 0 {
		return req.Reply(ctx, "リマインダーはありません")
	}
	now := req.Services.Now()
	var b strings.Builder
	b.WriteString("登録中のリマインダー:\n")
	for i, r := range rs {
		msg := r.Message
		if msg == "" {
			msg = "(メッセージなし)"
		}
		fmt.Fprintf(&b, "%d. %s — %s\n", i+1, formatDue(r.Time.In(now.Location()), now), msg)
	}
	return req.Reply(ctx, strings.TrimRight(b.String(), "\n"))
}

func (p *Plugin) handleDelete(ctx context.Context, req *core.Request, args []string) error {
	if len(args) != 1 {
		return req.Reply(ctx, usageHint)
	}
	index, err := strconv.Atoi(args[0])
	if err != nil {
		return req.Reply(ctx, usageHint)
	}
	removed, err := req.Services.State.DeleteReminderAt(req.Channel, index)
	if err != nil {
		if errors.Is(err, storage.ErrOutOfRange) {
			n := len(req.Services.State.Reminders(req.Channel))
			return req.Reply(ctx, fmt.Sprintf("番号が範囲外です (1〜%d)", n))
		}
		return err
	}
	p.audit(ctx, req, "delete", removed.Message)
	p.persistAndAnnounce(req.Channel)

	msg := removed.Message
	if msg == "" {
		msg = "(メッセージなし)"
	}
	return req.Reply(ctx, fmt.Sprintf("削除しました: %s", msg))
}

func (p *Plugin) handleClear(ctx context.Context, req *core.Request) error {
	n := req.Services.State.ClearReminders(req.Channel)
	if n > 0 {
		p.audit(ctx, req, "clear", strconv.Itoa(n))
		p.persistAndAnnounce(req.Channel)
	}
	return req.Reply(ctx, fmt.Sprintf("%d件のリマインダーを削除しました", n))
}

// formatDue prints a due instant compactly: same-day reminders drop the date,
// same-year reminders drop the year.
func formatDue(due, now time.Time) string {
	switch {
	case due.Year() == now.Year() && due.YearDay() == now.YearDay():
		return due.Format("15:04")
	case due.Year() == now.Year():
		return due.Format("1/2 15:04")
	default:
		return due.Format("2006/1/2 15:04")
	}
}
