package calendar

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"koyomi/internal/core"
	"koyomi/internal/storage"
	"koyomi/pkg/logx"
)

const usageHint = "使い方: !cal [M[/YYYY]] / !cal fix / !cal unfix"

var monthArgRe = regexp.MustCompile(`^(\d{1,2})(?:/(\d{4}))?$`)

func (p *Plugin) Commands() []core.Command {
	return []core.Command{
		{
			Name:        "cal",
			Description: "カレンダー表示・固定表示の管理",
			Usage:       "!cal / !cal 3 / !cal 3/2026 / !cal fix / !cal unfix",
			Handle:      p.handleCal,
		},
	}
}

func (p *Plugin) handleCal(ctx context.Context, req *core.Request) error {
	now := req.Services.Now()

	if len(req.Args) == 0 {
		return p.replyCalendar(ctx, req, now.Year(), now.Month(), now)
	}
	switch req.Args[0] {
	case "fix":
		return p.handleFix(ctx, req, now)
	case "unfix":
		return p.handleUnfix(ctx, req)
	}

	m := monthArgRe.FindStringSubmatch(req.Args[0])
	if m == nil {
		return req.Reply(ctx, usageHint)
	}
	month, _ := strconv.Atoi(m[1])
	if month < 1 || month > 12 {
		return req.Reply(ctx, usageHint)
	}
	year := now.Year()
	if m[2] != "" {
		year, _ = strconv.Atoi(m[2])
	}
	return p.replyCalendar(ctx, req, year, time.Month(month), now)
}

func (p *Plugin) replyCalendar(ctx context.Context, req *core.Request, year int, month time.Month, now time.Time) error {
	proj := Project(year, month, req.Services.State.Reminders(req.Channel), req.Services.Location())
	return req.Reply(ctx, p.renderer.Render(proj, now))
}

// handleFix sends a calendar message and pins it: that one message is then
// edited in place on every refresh. Any prior pin for the channel is
// overwritten.
func (p *Plugin) handleFix(ctx context.Context, req *core.Request, now time.Time) error {
	year, month := now.Year(), now.Month()
	proj := Project(year, month, req.Services.State.Reminders(req.Channel), req.Services.Location())
	ref, err := req.Adapter.SendText(ctx, req.Chat, p.renderer.Render(proj, now), nil)
	if err != nil {
		return err
	}

	req.Services.State.Pin(req.Channel, storage.PinnedCalendar{
		MessageID: strconv.Itoa(ref.MessageID),
		Year:      year,
		Month:     int(month),
	})
	p.audit(ctx, req, "fix", fmt.Sprintf("%d/%d", year, int(month)))
	if err := req.Services.State.Save(); err != nil {
		p.log.Error("state save failed", logx.Err(err))
	}
	return req.Reply(ctx, "📌 カレンダーを固定しました（毎時更新されます）")
}

func (p *Plugin) handleUnfix(ctx context.Context, req *core.Request) error {
	if !req.Services.State.Unpin(req.Channel) {
		return req.Reply(ctx, "固定中のカレンダーはありません")
	}
	p.audit(ctx, req, "unfix", "")
	if err := req.Services.State.Save(); err != nil {
		p.log.Error("state save failed", logx.Err(err))
	}
	return req.Reply(ctx, "固定表示を解除しました")
}
