package reminder

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"koyomi/internal/core"
	"koyomi/internal/eventbus"
	"koyomi/internal/services/scheduler"
	"koyomi/internal/storage"
	kit "koyomi/internal/transport"
	"koyomi/pkg/logx"
)

func newCommandFixture(t *testing.T, now time.Time) (*Plugin, *fakeAdapter, *core.Services) {
	t.Helper()
	fa := &fakeAdapter{}
	state, err := storage.OpenState(filepath.Join(t.TempDir(), "state.json"), logx.Logger{})
	if err != nil {
		t.Fatalf("OpenState error: %v", err)
	}
	mock := clock.NewMock()
	mock.Set(now)
	serv := &core.Services{
		Scheduler: scheduler.New(scheduler.Config{Timezone: "UTC"}, logx.Logger{}),
		State:     state,
		Bus:       eventbus.New(),
		Clock:     mock,
	}
	p := New()
	if err := p.Init(context.Background(), core.PluginDeps{Logger: logx.Logger{}, Adapter: fa, Services: serv}); err != nil {
		t.Fatalf("Init error: %v", err)
	}
	return p, fa, serv
}

func request(fa *fakeAdapter, serv *core.Services, args ...string) *core.Request {
	return &core.Request{
		Chat:     kit.ChatTarget{ChatID: 100},
		Channel:  "100",
		FromID:   42,
		Command:  "remind",
		Args:     args,
		Adapter:  fa,
		Services: serv,
	}
}

func lastReply(t *testing.T, fa *fakeAdapter) string {
	t.Helper()
	texts := fa.sentTexts()
	if len(texts) == 0 {
		t.Fatal("no reply sent")
	}
	return texts[len(texts)-1]
}

func TestHandleAdd(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	p, fa, serv := newCommandFixture(t, now)

	if err := p.handleRemind(context.Background(), request(fa, serv, "18:00", "夕食", "の", "予約")); err != nil {
		t.Fatalf("handleRemind error: %v", err)
	}
	if got := lastReply(t, fa); got != "⏰ 18:00 にリマインドします" {
		t.Fatalf("reply = %q", got)
	}

	rs := serv.State.Reminders("100")
	if len(rs) != 1 {
		t.Fatalf("reminders = %+v", rs)
	}
	if rs[0].Message != "夕食 の 予約" || rs[0].UserID != "42" {
		t.Fatalf("stored = %+v", rs[0])
	}
	if want := time.Date(2025, 7, 1, 18, 0, 0, 0, time.UTC); !rs[0].Time.Equal(want) {
		t.Fatalf("due = %v, want %v", rs[0].Time, want)
	}
}

func TestHandleAddBadSpecRepliesUsage(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	p, fa, serv := newCommandFixture(t, now)

	if err := p.handleRemind(context.Background(), request(fa, serv, "sometime", "later")); err != nil {
		t.Fatalf("handleRemind error: %v", err)
	}
	if got := lastReply(t, fa); !strings.HasPrefix(got, "使い方:") {
		t.Fatalf("reply = %q, want usage hint", got)
	}
	if rs := serv.State.Reminders("100"); len(rs) != 0 {
		t.Fatalf("bad spec stored a reminder: %+v", rs)
	}
}

func TestHandleList(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	p, fa, serv := newCommandFixture(t, now)

	if err := p.handleRemind(context.Background(), request(fa, serv)); err != nil {
		t.Fatalf("handleRemind error: %v", err)
	}
	if got := lastReply(t, fa); got != "リマインダーはありません" {
		t.Fatalf("empty list reply = %q", got)
	}

	serv.State.AddReminder("100", storage.Reminder{Time: now.Add(time.Hour), Message: "休憩"})
	serv.State.AddReminder("100", storage.Reminder{Time: now.Add(2 * time.Hour)})
	if err := p.handleRemind(context.Background(), request(fa, serv)); err != nil {
		t.Fatalf("handleRemind error: %v", err)
	}
	got := lastReply(t, fa)
	if !strings.Contains(got, "1. 13:00 — 休憩") || !strings.Contains(got, "2. 14:00 — (メッセージなし)") {
		t.Fatalf("list reply = %q", got)
	}
}

func TestHandleDelete(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	p, fa, serv := newCommandFixture(t, now)
	serv.State.AddReminder("100", storage.Reminder{Time: now.Add(time.Hour), Message: "one"})
	serv.State.AddReminder("100", storage.Reminder{Time: now.Add(2 * time.Hour), Message: "two"})

	if err := p.handleRemind(context.Background(), request(fa, serv, "delete", "2")); err != nil {
		t.Fatalf("handleRemind error: %v", err)
	}
	if got := lastReply(t, fa); got != "削除しました: two" {
		t.Fatalf("reply = %q", got)
	}
	if rs := serv.State.Reminders("100"); len(rs) != 1 || rs[0].Message != "one" {
		t.Fatalf("remaining = %+v", rs)
	}

	if err := p.handleRemind(context.Background(), request(fa, serv, "delete", "5")); err != nil {
		t.Fatalf("handleRemind error: %v", err)
	}
	if got := lastReply(t, fa); got != "番号が範囲外です (1〜1)" {
		t.Fatalf("out-of-range reply = %q", got)
	}
}

func TestHandleClear(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	p, fa, serv := newCommandFixture(t, now)
	serv.State.AddReminder("100", storage.Reminder{Time: now.Add(time.Hour)})
	serv.State.AddReminder("100", storage.Reminder{Time: now.Add(2 * time.Hour)})

	if err := p.handleRemind(context.Background(), request(fa, serv, "clear")); err != nil {
		t.Fatalf("handleRemind error: %v", err)
	}
	if got := lastReply(t, fa); got != "2件のリマインダーを削除しました" {
		t.Fatalf("reply = %q", got)
	}
	if rs := serv.State.Reminders("100"); len(rs) != 0 {
		t.Fatalf("remaining = %+v", rs)
	}
}

func TestFormatDue(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		due  time.Time
		want string
	}{
		{time.Date(2025, 7, 1, 18, 30, 0, 0, time.UTC), "18:30"},
		{time.Date(2025, 12, 24, 9, 0, 0, 0, time.UTC), "12/24 09:00"},
		{time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC), "2026/1/2 09:00"},
	}
	for _, tt := range tests {
		if got := formatDue(tt.due, now); got != tt.want {
			t.Fatalf("formatDue(%v) = %q, want %q", tt.due, got, tt.want)
		}
	}
}
