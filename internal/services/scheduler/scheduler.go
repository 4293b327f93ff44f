// Package scheduler runs recurring jobs (cron specs or fixed intervals) in a
// single IANA location shared by the whole bot.
package scheduler

import (
	"context"
	"errors"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"koyomi/pkg/logx"
)

type Config struct {
	// Timezone is the IANA zone cron specs are evaluated in, e.g. "Asia/Tokyo".
	Timezone string
}

type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	loc *time.Location

	parser cron.Parser
	c      *cron.Cron
	defs   map[string]scheduleDef // by name
	ids    map[string]cron.EntryID
}

type scheduleDef struct {
	name string
	spec string // cron spec or "@every <dur>"
	job  func(ctx context.Context)
}

func New(cfg Config, log logx.Logger) *Service {
	return &Service{
		log:    log,
		cfg:    cfg,
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		defs:   map[string]scheduleDef{},
		ids:    map[string]cron.EntryID{},
	}
}

// Location returns the zone the scheduler (and all bot times) run in.
func (s *Service) Location() *time.Location {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locationLocked()
}

func (s *Service) locationLocked() *time.Location {
	if s.loc != nil {
		return s.loc
	}
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		s.loc = time.Local
		return s.loc
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; falling back to local", logx.String("tz", tz), logx.Err(err))
		loc = time.Local
	}
	s.loc = loc
	return s.loc
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(s.locationLocked()))
	for name := range s.defs {
		s.registerLocked(ctx, name)
	}
	s.c.Start()
	s.log.Info("scheduler started", logx.String("tz", s.locationLocked().String()), logx.Int("jobs", len(s.defs)))
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.ids = map[string]cron.EntryID{}
	s.mu.Unlock()
	if c == nil {
		return
	}
	stopped := c.Stop()
	select {
	case <-stopped.Done():
	case <-ctx.Done():
	}
}

// AddCron registers (or replaces, by name) a recurring job.
// The spec is a standard 5-field cron expression or a descriptor
// ("@hourly", "@every 1m").
func (s *Service) AddCron(ctx context.Context, name, spec string, job func(ctx context.Context)) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("schedule name required")
	}
	if job == nil {
		return errors.New("schedule job required")
	}
	if _, err := s.parser.Parse(spec); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Upsert by name to prevent duplicates across re-registrations.
	s.removeLocked(name)
	s.defs[name] = scheduleDef{name: name, spec: spec, job: job}
	if s.c != nil {
		s.registerLocked(ctx, name)
	}
	return nil
}

// AddInterval registers a fixed-interval job.
func (s *Service) AddInterval(ctx context.Context, name string, every time.Duration, job func(ctx context.Context)) error {
	if every <= 0 {
		return errors.New("interval must be > 0")
	}
	return s.AddCron(ctx, name, "@every "+every.String(), job)
}

func (s *Service) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(name)
}

func (s *Service) removeLocked(name string) bool {
	_, exists := s.defs[name]
	delete(s.defs, name)
	if id, ok := s.ids[name]; ok {
		if s.c != nil {
			s.c.Remove(id)
		}
		delete(s.ids, name)
	}
	return exists
}

func (s *Service) registerLocked(ctx context.Context, name string) {
	d := s.defs[name]
	id, err := s.c.AddFunc(d.spec, func() {
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("panic in scheduled job",
					logx.String("name", d.name),
					logx.Any("panic", r),
					logx.String("stack", string(debug.Stack())),
				)
			}
		}()
		if ctx.Err() != nil {
			return
		}
		d.job(ctx)
	})
	if err != nil {
		s.log.Error("schedule register failed", logx.String("name", name), logx.String("spec", d.spec), logx.Err(err))
		return
	}
	s.ids[name] = id
	s.log.Debug("schedule registered", logx.String("name", name), logx.String("spec", d.spec))
}
