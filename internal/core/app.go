package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/benbjohnson/clock"

	"koyomi/internal/config"
	"koyomi/internal/eventbus"
	rtsup "koyomi/internal/runtime/supervisor"
	"koyomi/internal/services/notify"
	"koyomi/internal/services/scheduler"
	"koyomi/internal/storage"
	kit "koyomi/internal/transport"
	tgadapter "koyomi/internal/transport/telegram/adapter"
	"koyomi/pkg/logx"
)

// TokenEnv is the environment variable consulted when the config omits the
// Telegram token. A missing token is the one fatal startup error.
const TokenEnv = "KOYOMI_TOKEN"

const defaultStatePath = "./koyomi.state.json"

type App struct {
	cfgPath string
	cfgm    *config.Manager

	log  logx.Logger
	logs *logx.Service

	adapter kit.Adapter
	sched   *scheduler.Service
	notif   *notify.Service
	state   *storage.State
	audit   storage.Audit

	serv *Services
	cmdm *CommandManager
	pm   *PluginManager

	sup     *rtsup.Supervisor
	updates chan kit.Update
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	token := strings.TrimSpace(cfg.Telegram.Token)
	if token == "" {
		token = strings.TrimSpace(os.Getenv(TokenEnv))
	}
	if token == "" {
		return nil, fmt.Errorf("telegram token missing: set telegram.token or %s", TokenEnv)
	}

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	adapter, err := tgadapter.New(tgadapter.Config{
		Token:       token,
		PollTimeout: pollTimeout,
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}

	sched := scheduler.New(scheduler.Config{Timezone: cfg.Location()},
		log.With(logx.String("comp", "scheduler")))
	notif := notify.New(notify.Config{}, adapter,
		log.With(logx.String("comp", "notifier")))

	statePath := cfg.Storage.StatePath
	if statePath == "" {
		statePath = defaultStatePath
	}
	state, err := storage.OpenState(statePath, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}

	busy, err := config.ParseDurationField("storage.audit.busy_timeout", cfg.Storage.Audit.BusyTimeout)
	if err != nil {
		return nil, err
	}
	audit, err := storage.OpenAudit(storage.AuditConfig{
		Driver:      cfg.Storage.Audit.Driver,
		Path:        cfg.Storage.Audit.Path,
		BusyTimeout: busy,
	}, log.With(logx.String("comp", "audit")))
	if err != nil {
		return nil, err
	}

	serv := &Services{
		Scheduler: sched,
		Notifier:  notif,
		State:     state,
		Audit:     audit,
		Bus:       eventbus.New(),
		Clock:     clock.New(),
	}

	cmdm := NewCommandManager(log.With(logx.String("comp", "commands")), adapter, serv, cfg.Prefix())
	serv.Loop = cmdm

	pm := NewPluginManager(log.With(logx.String("comp", "plugins")), cfgm, PluginDeps{
		Logger:   log,
		Adapter:  adapter,
		Config:   cfgm,
		Services: serv,
	}, cmdm)

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		adapter: adapter,
		sched:   sched,
		notif:   notif,
		state:   state,
		audit:   audit,
		serv:    serv,
		cmdm:    cmdm,
		pm:      pm,
		updates: make(chan kit.Update, 256),
	}, nil
}

func (a *App) Plugins() *PluginManager { return a.pm }

// Done is closed when the app supervisor context ends (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor, if any.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	sup := rtsup.New(ctx,
		rtsup.WithLogger(a.log),
		rtsup.WithCancelOnError(true),
	)
	a.sup = sup

	if err := a.adapter.Start(sup.Context(), a.updates); err != nil {
		sup.Cancel()
		return err
	}

	sup.Go("commands.dispatch", func(c context.Context) error {
		return a.cmdm.DispatchLoop(c, a.updates)
	})

	a.notif.Start(sup.Context())

	// Plugins register their schedules during Init/Start; the scheduler
	// accepts definitions before Start and registers them when it runs.
	if err := a.pm.InitAll(sup.Context()); err != nil {
		sup.Cancel()
		return err
	}
	if err := a.pm.StartAll(sup.Context()); err != nil {
		sup.Cancel()
		return err
	}
	a.sched.Start(sup.Context())

	sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})
	sup.Go0("config.apply", func(c context.Context) {
		sub := a.cfgm.Subscribe(4)
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-c.Done():
				return
			case cfg, ok := <-sub:
				if !ok {
					return
				}
				a.logs.Apply(logx.Config{
					Level:   cfg.Logging.Level,
					Console: cfg.Logging.Console,
					File: logx.FileConfig{
						Enabled: cfg.Logging.File.Enabled,
						Path:    cfg.Logging.File.Path,
					},
				})
				a.pm.ApplyConfig(c, cfg)
			}
		}
	})

	a.log.Info("started", logx.String("config", a.cfgPath))
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	a.log.Info("stopping")

	a.pm.StopAll(ctx)
	a.sched.Stop(ctx)
	a.notif.Stop(ctx)

	if err := a.adapter.Stop(ctx); err != nil {
		a.log.Warn("adapter stop failed", logx.Err(err))
	}

	if a.sup != nil {
		a.sup.Cancel()
		wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := a.sup.Wait(wctx); err != nil &&
			!errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			a.log.Warn("supervisor stop error", logx.Err(err))
		}
		cancel()
	}

	// Final snapshot so a clean shutdown never loses the last mutation.
	if err := a.state.Save(); err != nil {
		a.log.Warn("final state save failed", logx.Err(err))
	}
	if a.audit != nil {
		_ = a.audit.Close()
	}
	_ = a.logs.Close()
	a.log.Info("stopped")
	return nil
}
