// Package reminder implements per-channel reminders: the !remind command
// family and the minute poller that fires due reminders into their channel.
package reminder

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"koyomi/internal/config"
	"koyomi/internal/core"
	"koyomi/internal/eventbus"
	"koyomi/internal/storage"
	kit "koyomi/internal/transport"
	"koyomi/pkg/logx"
)

const pollSchedule = "reminder:poll"

type Config struct {
	// Tick is the poll interval. Defaults to "1m".
	Tick string `json:"tick,omitempty"`
}

type Plugin struct {
	log  logx.Logger
	deps core.PluginDeps

	mu      sync.Mutex
	cfg     Config
	tick    time.Duration
	started bool

	// inFlight guards against overlapping polls: a tick that fires while the
	// previous poll is still queued or running is skipped, not stacked.
	inFlight atomic.Bool
}

func New() *Plugin { return &Plugin{} }

func (p *Plugin) Name() string { return "reminder" }

func (p *Plugin) Init(ctx context.Context, deps core.PluginDeps) error {
	p.deps = deps
	p.log = deps.Logger
	p.tick = time.Minute
	return nil
}

func (p *Plugin) OnConfigChange(ctx context.Context, raw json.RawMessage) error {
	var c Config
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &c); err != nil {
			return err
		}
	}
	tick, err := config.ParseDurationOrDefault("plugins.reminder.tick", c.Tick, time.Minute)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.cfg = c
	changed := tick != p.tick
	p.tick = tick
	started := p.started
	p.mu.Unlock()

	// The scheduler upserts by name, so a hot-reloaded tick replaces the
	// running schedule in place.
	if started && changed {
		return p.deps.Services.Scheduler.AddInterval(ctx, pollSchedule, tick, p.onTick)
	}
	return nil
}

func (p *Plugin) Start(ctx context.Context) error {
	p.mu.Lock()
	tick := p.tick
	p.started = true
	p.mu.Unlock()
	return p.deps.Services.Scheduler.AddInterval(ctx, pollSchedule, tick, p.onTick)
}

func (p *Plugin) Stop(ctx context.Context) error {
	p.mu.Lock()
	p.started = false
	p.mu.Unlock()
	p.deps.Services.Scheduler.Remove(pollSchedule)
	return nil
}

// onTick runs on the scheduler goroutine; the actual poll is enqueued on the
// command loop so it is serialized with command handlers.
func (p *Plugin) onTick(ctx context.Context) {
	if !p.inFlight.CompareAndSwap(false, true) {
		p.log.Debug("poll tick skipped (previous still running)")
		return
	}
	now := p.deps.Services.Now()
	ok := p.deps.Services.Loop.Enqueue(func() {
		defer p.inFlight.Store(false)
		p.Poll(ctx, now)
	})
	if !ok {
		p.inFlight.Store(false)
		p.log.Warn("poll tick dropped (loop busy)")
	}
}

// Poll drains every channel's due reminders as of now, emits their
// notifications, and persists the store once when anything fired.
// A failure in one channel never blocks the others.
func (p *Plugin) Poll(ctx context.Context, now time.Time) {
	serv := p.deps.Services
	fired := 0
	var changed []string

	for _, channel := range serv.State.ReminderChannels() {
		due := serv.State.DrainDue(channel, now)
		if len(due) == 0 {
			continue
		}
		changed = append(changed, channel)
		fired += len(due)
		p.notifyAll(ctx, channel, due)
	}

	if fired == 0 {
		return
	}
	p.log.Info("reminders fired", logx.Int("count", fired), logx.Int("channels", len(changed)))
	if err := serv.State.Save(); err != nil {
		p.log.Error("state save failed", logx.Err(err))
	}
	for _, channel := range changed {
		serv.Bus.Publish(eventbus.Event{Type: eventbus.RemindersChanged, Data: channel})
	}
}

func (p *Plugin) notifyAll(ctx context.Context, channel string, due []storage.Reminder) {
	chatID, err := strconv.ParseInt(channel, 10, 64)
	if err != nil {
		p.log.Warn("bad channel key; reminders dropped",
			logx.String("channel", channel), logx.Int("count", len(due)))
		return
	}
	serv := p.deps.Services
	for _, r := range due {
		text := r.Message
		if text == "" {
			text = "時間です！"
		}
		n := kit.Notification{
			Target: kit.ChatTarget{ChatID: chatID},
			Text:   fmt.Sprintf("⏰ リマインダー: %s", text),
		}
		// At-most-once: a failed send is logged and skipped, never retried.
		if err := serv.Notifier.Notify(ctx, n); err != nil {
			p.log.Warn("reminder notify failed",
				logx.String("channel", channel), logx.Err(err))
			continue
		}
		p.auditFired(ctx, channel, r)
	}
}

func (p *Plugin) auditFired(ctx context.Context, channel string, r storage.Reminder) {
	serv := p.deps.Services
	if serv.Audit == nil {
		return
	}
	err := serv.Audit.Append(ctx, storage.AuditEntry{
		At:      serv.Now(),
		Channel: channel,
		UserID:  r.UserID,
		Plugin:  p.Name(),
		Action:  "fired",
		Detail:  r.Message,
	})
	if err != nil {
		p.log.Warn("audit append failed", logx.Err(err))
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

// persistAndAnnounce saves the store and signals the channel's mutation.
// Save failures are logged; in-memory state stays authoritative.
func (p *Plugin) persistAndAnnounce(channel string) {
	serv := p.deps.Services
	if err := serv.State.Save(); err != nil {
		p.log.Error("state save failed", logx.Err(err))
	}
	serv.Bus.Publish(eventbus.Event{Type: eventbus.RemindersChanged, Data: channel})
}
