package rotation

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"koyomi/internal/core"
	"koyomi/internal/services/scheduler"
	kit "koyomi/internal/transport"
	"koyomi/pkg/logx"
)

type replyRecorder struct {
	texts []string
}

func (r *replyRecorder) Start(ctx context.Context, out chan<- kit.Update) error { return nil }
func (r *replyRecorder) Stop(ctx context.Context) error                         { return nil }
func (r *replyRecorder) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	r.texts = append(r.texts, text)
	return kit.MessageRef{}, nil
}
func (r *replyRecorder) EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	return nil
}

func newShiftFixture(t *testing.T, now time.Time) (*Plugin, *replyRecorder, *core.Request) {
	t.Helper()
	mock := clock.NewMock()
	mock.Set(now)
	serv := &core.Services{
		Scheduler: scheduler.New(scheduler.Config{Timezone: "UTC"}, logx.Logger{}),
		Clock:     mock,
	}
	p := New()
	if err := p.Init(context.Background(), core.PluginDeps{Logger: logx.Logger{}, Services: serv}); err != nil {
		t.Fatalf("Init error: %v", err)
	}
	rec := &replyRecorder{}
	req := &core.Request{Chat: kit.ChatTarget{ChatID: 1}, Channel: "1", Adapter: rec, Services: serv}
	return p, rec, req
}

func TestHandleShift(t *testing.T) {
	t.Parallel()
	// 90 minutes after the default epoch: slot 1 of the first variant.
	now := defaultTable.Epoch.Add(90 * time.Minute)
	p, rec, req := newShiftFixture(t, now)

	if err := p.handleShift(context.Background(), req); err != nil {
		t.Fatalf("handleShift error: %v", err)
	}
	want := "🛡 現在: 第一隊 [甲] (残り30分)\n次: 第二隊 [甲]"
	if len(rec.texts) != 1 || rec.texts[0] != want {
		t.Fatalf("reply = %v, want %q", rec.texts, want)
	}
}

func TestOnConfigChangeOverridesTable(t *testing.T) {
	t.Parallel()
	p, rec, req := newShiftFixture(t, time.Time{})

	raw := json.RawMessage(`{
		"epoch": "2025-06-01T00:00:00Z",
		"slots_per_variant": 2,
		"common": {"0": "all"},
		"variants": [{"name": "X", "slots": {"1": "x1"}}]
	}`)
	if err := p.OnConfigChange(context.Background(), raw); err != nil {
		t.Fatalf("OnConfigChange error: %v", err)
	}

	mock := p.deps.Services.Clock.(*clock.Mock)
	mock.Set(time.Date(2025, 6, 1, 1, 30, 0, 0, time.UTC))
	if err := p.handleShift(context.Background(), req); err != nil {
		t.Fatalf("handleShift error: %v", err)
	}
	want := "🛡 現在: x1 [X] (残り30分)\n次: all [X]"
	if got := rec.texts[len(rec.texts)-1]; got != want {
		t.Fatalf("reply = %q, want %q", got, want)
	}

	// An empty block keeps the current table.
	if err := p.OnConfigChange(context.Background(), nil); err != nil {
		t.Fatalf("empty OnConfigChange error: %v", err)
	}

	bad := json.RawMessage(`{"slots_per_variant": 2, "variants": [{"name": "X"}]}`)
	if err := p.OnConfigChange(context.Background(), bad); err == nil {
		t.Fatal("expected error for invalid table")
	}
}
