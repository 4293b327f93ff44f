// Package rotation answers !b: which defense corps entry is on duty now,
// which is next, and how many minutes remain in the current hour slot.
//
// The timetable is a fixed-length repeating cycle of one-hour slots anchored
// at an epoch, loaded once at startup (config-overridable, never mutated at
// runtime).
package rotation

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"koyomi/internal/core"
	"koyomi/pkg/logx"
)

type Plugin struct {
	log  logx.Logger
	deps core.PluginDeps

	mu    sync.Mutex
	table Table
}

func New() *Plugin { return &Plugin{table: defaultTable} }

func (p *Plugin) Name() string { return "rotation" }

func (p *Plugin) Init(ctx context.Context, deps core.PluginDeps) error {
	p.deps = deps
	p.log = deps.Logger
	return nil
}

func (p *Plugin) OnConfigChange(ctx context.Context, raw json.RawMessage) error {
	if len(raw) == 0 {
		return nil
	}
	t, err := parseTable(raw, p.deps.Services.Location())
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.table = t
	p.mu.Unlock()
	p.log.Info("rotation table loaded",
		logx.Int("cycle_hours", t.CycleHours()),
		logx.Int("variants", len(t.Variants)))
	return nil
}

func (p *Plugin) Start(ctx context.Context) error { return nil }
func (p *Plugin) Stop(ctx context.Context) error  { return nil }

func (p *Plugin) Commands() []core.Command {
	return []core.Command{
		{
			Name:        "b",
			Description: "防衛隊シフトの現在・次の担当を表示",
			Usage:       "!b",
			Handle:      p.handleShift,
		},
	}
}

func (p *Plugin) handleShift(ctx context.Context, req *core.Request) error {
	p.mu.Lock()
	table := p.table
	p.mu.Unlock()

	st := table.At(req.Services.Now())
	text := fmt.Sprintf("🛡 現在: %s [%s] (残り%d分)\n次: %s [%s]",
		st.Current.Name, st.Current.Variant,
		st.RemainingMinutes,
		st.Next.Name, st.Next.Variant,
	)
	return req.Reply(ctx, text)
}
