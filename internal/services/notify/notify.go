// Package notify delivers outbound notifications through the chat adapter:
// a bounded queue, one worker, and a rate limiter. Per-send failures are
// logged and dropped (at-most-once delivery), never fatal.
package notify

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/time/rate"

	kit "koyomi/internal/transport"
	"koyomi/pkg/logx"
)

var (
	ErrQueueFull = errors.New("notifier queue full")
	ErrStopped   = errors.New("notifier stopped")
)

type Config struct {
	RatePerSec int
	QueueSize  int
}

type Service struct {
	mu sync.Mutex

	log     logx.Logger
	adapter kit.Adapter
	limiter *rate.Limiter

	queue     chan kit.Notification
	accepting bool

	runCancel context.CancelFunc
	workerWG  sync.WaitGroup
}

func New(cfg Config, adapter kit.Adapter, log logx.Logger) *Service {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 3
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	return &Service{
		log:     log,
		adapter: adapter,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
		queue:   make(chan kit.Notification, cfg.QueueSize),
	}
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runCancel != nil {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.runCancel = cancel
	s.accepting = true
	s.workerWG.Add(1)
	go func() {
		defer s.workerWG.Done()
		s.worker(runCtx)
	}()
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	cancel := s.runCancel
	s.runCancel = nil
	s.accepting = false
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	done := make(chan struct{})
	go func() {
		s.workerWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// Notify enqueues a notification. It never blocks: a full queue returns
// ErrQueueFull and the caller decides whether that matters.
func (s *Service) Notify(ctx context.Context, n kit.Notification) error {
	_ = ctx
	s.mu.Lock()
	accepting := s.accepting
	s.mu.Unlock()
	if !accepting {
		return ErrStopped
	}
	select {
	case s.queue <- n:
		return nil
	default:
		return ErrQueueFull
	}
}

func (s *Service) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-s.queue:
			if err := s.limiter.Wait(ctx); err != nil {
				return
			}
			if _, err := s.adapter.SendText(ctx, n.Target, n.Text, n.Options); err != nil {
				s.log.Warn("notification send failed",
					logx.Int64("chat_id", n.Target.ChatID),
					logx.Err(err),
				)
			}
		}
	}
}
