package core

import (
	"context"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"

	rtsup "koyomi/internal/runtime/supervisor"
	kit "koyomi/internal/transport"
	"koyomi/pkg/logx"
)

const defaultCommandTimeout = 30 * time.Second

// CommandManager matches incoming messages against the registry and runs the
// handlers on a single loop worker. Timer callbacks share the same loop via
// Enqueue, which gives the store its ordering guarantee without locks doing
// the heavy lifting.
type CommandManager struct {
	mu       sync.RWMutex
	registry map[string]*Command // name and aliases -> command
	names    []string            // primary names, sorted, for help
	prefix   string

	log     logx.Logger
	adapter kit.Adapter
	serv    *Services

	runMu   sync.Mutex
	running bool

	jobs chan func()
}

func NewCommandManager(log logx.Logger, adapter kit.Adapter, serv *Services, prefix string) *CommandManager {
	if prefix == "" {
		prefix = "!"
	}
	return &CommandManager{
		registry: map[string]*Command{},
		prefix:   prefix,
		log:      log,
		adapter:  adapter,
		serv:     serv,
		jobs:     make(chan func(), 256),
	}
}

func (m *CommandManager) Prefix() string { return m.prefix }

// SetRegistry replaces the command registry. A help command is always
// injected.
func (m *CommandManager) SetRegistry(cmds []Command) {
	cmds = append(cmds, Command{
		Name:        "help",
		Aliases:     []string{"h"},
		Description: "コマンド一覧を表示",
		Usage:       "!help",
		Handle: func(ctx context.Context, req *Request) error {
			return req.Reply(ctx, m.helpText())
		},
	})

	reg := map[string]*Command{}
	var names []string
	for i := range cmds {
		c := cmds[i]
		if c.Name == "" || c.Handle == nil {
			continue
		}
		if _, dup := reg[c.Name]; dup {
			m.log.Warn("duplicate command name ignored", logx.String("name", c.Name), logx.String("plugin", c.PluginName))
			continue
		}
		reg[c.Name] = &c
		names = append(names, c.Name)
		for _, a := range c.Aliases {
			a = strings.TrimSpace(a)
			if a == "" || strings.ContainsAny(a, " \t") {
				continue
			}
			if _, dup := reg[a]; dup {
				m.log.Warn("duplicate command alias ignored", logx.String("alias", a), logx.String("plugin", c.PluginName))
				continue
			}
			reg[a] = &c
		}
	}
	sort.Strings(names)

	m.mu.Lock()
	m.registry = reg
	m.names = names
	m.mu.Unlock()
}

func (m *CommandManager) helpText() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var b strings.Builder
	b.WriteString("コマンド一覧:\n")
	for _, name := range m.names {
		c := m.registry[name]
		if c == nil || c.Hidden {
			continue
		}
		b.WriteString(m.prefix)
		b.WriteString(name)
		if len(c.Aliases) > 0 {
			b.WriteString(" (")
			for i, a := range c.Aliases {
				if i > 0 {
					b.WriteString(", ")
				}
				b.WriteString(m.prefix)
				b.WriteString(a)
			}
			b.WriteString(")")
		}
		if c.Description != "" {
			b.WriteString(" — ")
			b.WriteString(c.Description)
		}
		b.WriteString("\n")
		if c.Usage != "" {
			b.WriteString("  ")
			b.WriteString(c.Usage)
			b.WriteString("\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// Enqueue schedules fn on the loop worker. Panic-safe against a closed
// channel during shutdown.
func (m *CommandManager) Enqueue(fn func()) (ok bool) {
	if fn == nil {
		return false
	}
	m.runMu.Lock()
	running := m.running
	m.runMu.Unlock()
	if !running {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	select {
	case m.jobs <- fn:
		return true
	default:
		return false
	}
}

// DispatchLoop consumes updates until ctx is done. The single loop worker
// runs under sup; handler and tick ordering is the loop's FIFO order.
func (m *CommandManager) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	sup := rtsup.New(ctx, rtsup.WithLogger(m.log))

	m.runMu.Lock()
	m.running = true
	m.runMu.Unlock()

	var closeOnce sync.Once
	closeJobs := func() {
		closeOnce.Do(func() {
			m.runMu.Lock()
			m.running = false
			m.runMu.Unlock()
			close(m.jobs)
		})
	}

	sup.Go0("command.loop", func(c context.Context) {
		for {
			select {
			case <-c.Done():
				return
			case job, ok := <-m.jobs:
				if !ok {
					return
				}
				if job == nil {
					continue
				}
				// Middleware already recovers handler panics; this keeps the
				// loop alive if a tick job slips through.
				func() {
					defer func() {
						if r := recover(); r != nil {
							m.log.Error("panic in loop job",
								logx.Any("panic", r),
								logx.String("stack", string(debug.Stack())))
						}
					}()
					job()
				}()
			}
		}
	})

	m.log.Info("command dispatcher started",
		logx.String("prefix", m.prefix), logx.Int("job_queue_cap", cap(m.jobs)))

	defer func() {
		closeJobs()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		m.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			m.routeUpdate(ctx, up)
		}
	}
}

func (m *CommandManager) routeUpdate(root context.Context, up kit.Update) {
	if up.Kind != kit.UpdateMessage || up.Message == nil {
		return
	}
	msg := up.Message
	text := strings.TrimSpace(msg.Text)
	// Everything that is not a prefixed command is normal chat; stay silent.
	if !strings.HasPrefix(text, m.prefix) {
		return
	}
	parts := strings.Fields(text)
	if len(parts) == 0 {
		return
	}
	// Matching is case-sensitive and exact on the first token.
	word := strings.TrimPrefix(parts[0], m.prefix)
	if word == "" {
		return
	}
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}

	m.mu.RLock()
	cmd, ok := m.registry[word]
	m.mu.RUnlock()
	if !ok {
		// Unknown "!" words are also normal chat (people write "!!" and "!?").
		return
	}

	c := *cmd
	args := parts[1:]

	chat := kit.ChatTarget{ChatID: msg.ChatID}
	req := &Request{
		Update:       up,
		Chat:         chat,
		Channel:      ChannelKey(chat),
		FromID:       msg.FromID,
		FromUsername: msg.FromUsername,
		Command:      word,
		Args:         args,
		Adapter:      m.adapter,
		Logger:       m.log.With(logx.String("cmd", c.Name)),
		Services:     m.serv,
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}
	h := Chain(c.Handle,
		MWRequestLog(m.log),
		MWPanicRecover(m.log),
		MWTimeout(timeout),
	)

	if !m.Enqueue(func() { _ = h(root, req) }) {
		m.log.Warn("command dropped (loop busy)",
			logx.String("cmd", c.Name), logx.Int64("chat_id", msg.ChatID))
	}
}
