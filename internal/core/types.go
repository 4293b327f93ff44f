package core

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/benbjohnson/clock"

	"koyomi/internal/config"
	"koyomi/internal/eventbus"
	"koyomi/internal/services/notify"
	"koyomi/internal/services/scheduler"
	"koyomi/internal/storage"
	kit "koyomi/internal/transport"
	"koyomi/pkg/logx"
)

// Command is a chat command matched case-sensitively on the first token
// after the prefix (e.g. "!remind ..." matches Name "remind").
type Command struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string
	Hidden      bool // omit from help (canned replies)

	PluginName string
	Timeout    time.Duration // optional per-command override
	Handle     HandlerFunc
}

type HandlerFunc func(ctx context.Context, req *Request) error

type Request struct {
	Update kit.Update
	Chat   kit.ChatTarget

	// Channel is the opaque per-channel key used by the store
	// (decimal chat ID on Telegram).
	Channel string

	FromID       int64
	FromUsername string

	Command string
	Args    []string

	Adapter  kit.Adapter
	Logger   logx.Logger
	Services *Services
}

// Reply sends a plain-text reply to the invoking channel.
func (r *Request) Reply(ctx context.Context, text string) error {
	_, err := r.Adapter.SendText(ctx, r.Chat, text, nil)
	return err
}

// UserID returns the invoking user's opaque identifier.
func (r *Request) UserID() string {
	return strconv.FormatInt(r.FromID, 10)
}

// Loop serializes command handlers and timer callbacks onto one worker, so a
// mutation and its persistence complete before the next callback runs.
type Loop interface {
	// Enqueue schedules fn on the loop. Returns false when the queue is full
	// or the loop is stopped; callers skip the run instead of blocking.
	Enqueue(fn func()) bool
}

// Services are the shared singletons handed to every plugin.
type Services struct {
	Scheduler *scheduler.Service
	Notifier  *notify.Service
	State     *storage.State
	Audit     storage.Audit
	Bus       *eventbus.Bus

	// Clock is the injectable time source. Production uses clock.New();
	// tests substitute a mock.
	Clock clock.Clock

	// Loop is set by the app once the command manager exists.
	Loop Loop
}

// Location returns the bot's single configured time zone.
func (s *Services) Location() *time.Location {
	if s == nil || s.Scheduler == nil {
		return time.Local
	}
	return s.Scheduler.Location()
}

// Now returns the current instant in the bot's zone.
func (s *Services) Now() time.Time {
	if s == nil || s.Clock == nil {
		return time.Now().In(s.Location())
	}
	return s.Clock.Now().In(s.Location())
}

// ChannelKey converts a chat target into the store's channel key.
func ChannelKey(to kit.ChatTarget) string {
	return strconv.FormatInt(to.ChatID, 10)
}

type Plugin interface {
	Name() string
	Init(ctx context.Context, deps PluginDeps) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Commands() []Command
}

// ConfigWatcher is an optional plugin interface: it receives the plugin's raw
// config block at init and again on every hot reload.
type ConfigWatcher interface {
	OnConfigChange(ctx context.Context, raw json.RawMessage) error
}

type PluginDeps struct {
	Logger   logx.Logger
	Adapter  kit.Adapter
	Config   *config.Manager
	Services *Services
}
