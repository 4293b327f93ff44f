// Package calendar renders monthly reminder calendars (!cal) and keeps
// pinned calendar messages refreshed: hourly, and immediately after any
// reminder mutation in a pinned channel.
package calendar

import (
	"context"
	"errors"
	"strconv"
	"time"

	"koyomi/internal/core"
	"koyomi/internal/eventbus"
	"koyomi/internal/storage"
	kit "koyomi/internal/transport"
	"koyomi/pkg/logx"
)

const refreshSchedule = "calendar:refresh"

type Plugin struct {
	log      logx.Logger
	deps     core.PluginDeps
	renderer Renderer
}

func New() *Plugin { return &Plugin{renderer: TextRenderer{}} }

func (p *Plugin) Name() string { return "calendar" }

func (p *Plugin) Init(ctx context.Context, deps core.PluginDeps) error {
	p.deps = deps
	p.log = deps.Logger
	// Mutations are published on the command loop, so the refresh runs
	// synchronously right after the mutation that caused it.
	deps.Services.Bus.Subscribe(eventbus.RemindersChanged, func(e eventbus.Event) {
		channel, _ := e.Data.(string)
		if channel == "" {
			return
		}
		if _, pinned := deps.Services.State.PinFor(channel); pinned {
			p.refreshChannel(ctx, channel, deps.Services.Now())
		}
	})
	return nil
}

func (p *Plugin) Start(ctx context.Context) error {
	// Top of every hour keeps the today marker current.
	return p.deps.Services.Scheduler.AddCron(ctx, refreshSchedule, "0 * * * *", p.onTick)
}

func (p *Plugin) Stop(ctx context.Context) error {
	p.deps.Services.Scheduler.Remove(refreshSchedule)
	return nil
}

func (p *Plugin) onTick(ctx context.Context) {
	now := p.deps.Services.Now()
	if !p.deps.Services.Loop.Enqueue(func() { p.RefreshAll(ctx, now) }) {
		p.log.Warn("calendar refresh dropped (loop busy)")
	}
}

// RefreshAll re-renders every pinned calendar as of now.
func (p *Plugin) RefreshAll(ctx context.Context, now time.Time) {
	for channel := range p.deps.Services.State.Pins() {
		p.refreshChannel(ctx, channel, now)
	}
}

// refreshChannel re-renders one channel's pinned calendar. The pin always
// tracks the current month, not the month it was created in. A vanished
// message self-heals: the pin is silently removed.
func (p *Plugin) refreshChannel(ctx context.Context, channel string, now time.Time) {
	serv := p.deps.Services
	pin, ok := serv.State.PinFor(channel)
	if !ok {
		return
	}

	year, month := now.Year(), now.Month()
	if pin.Year != year || pin.Month != int(month) {
		pin.Year, pin.Month = year, int(month)
		serv.State.Pin(channel, pin)
		if err := serv.State.Save(); err != nil {
			p.log.Error("state save failed", logx.Err(err))
		}
	}

	chatID, err := strconv.ParseInt(channel, 10, 64)
	if err != nil {
		p.log.Warn("bad channel key on pin", logx.String("channel", channel))
		return
	}
	messageID, err := strconv.Atoi(pin.MessageID)
	if err != nil {
		p.log.Warn("bad pinned message id", logx.String("channel", channel), logx.String("message_id", pin.MessageID))
		p.unpinStale(channel)
		return
	}

	proj := Project(year, month, serv.State.Reminders(channel), serv.Location())
	text := p.renderer.Render(proj, now)
	ref := kit.MessageRef{ChatID: chatID, MessageID: messageID}
	if err := p.deps.Adapter.EditText(ctx, ref, text, nil); err != nil {
		if errors.Is(err, kit.ErrMessageNotFound) {
			p.log.Info("pinned calendar message gone; unpinning",
				logx.String("channel", channel))
			p.unpinStale(channel)
			return
		}
		p.log.Warn("calendar refresh failed", logx.String("channel", channel), logx.Err(err))
	}
}

func (p *Plugin) unpinStale(channel string) {
	serv := p.deps.Services
	if serv.State.Unpin(channel) {
		if err := serv.State.Save(); err != nil {
			p.log.Error("state save failed", logx.Err(err))
		}
	}
}

func (p *Plugin) audit(ctx context.Context, req *core.Request, action, detail string) {
	serv := p.deps.Services
	if serv.Audit == nil {
		return
	}
	err := serv.Audit.Append(ctx, storage.AuditEntry{
		At:      serv.Now(),
		Channel: req.Channel,
		UserID:  req.UserID(),
		Plugin:  p.Name(),
		Action:  action,
		Detail:  detail,
	})
	if err != nil {
		p.log.Warn("audit append failed", logx.Err(err))
	}
}
