// Package eventbus is a tiny in-memory signal used to decouple plugins.
//
// Delivery is synchronous: Publish calls every handler inline, in
// registration order. All publishes happen on the single command/tick loop,
// so handlers observe store mutations before the next queued callback runs.
package eventbus

import (
	"sync"
	"time"
)

// Reminder mutation events carry the channel ID as Data.
const (
	RemindersChanged = "reminders.changed"
)

type Event struct {
	Type string
	Time time.Time
	Data any
}

type Handler func(e Event)

type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

func New() *Bus {
	return &Bus{handlers: map[string][]Handler{}}
}

func (b *Bus) Subscribe(eventType string, h Handler) {
	if h == nil {
		return
	}
	b.mu.Lock()
	b.handlers[eventType] = append(b.handlers[eventType], h)
	b.mu.Unlock()
}

func (b *Bus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	hs := b.handlers[e.Type]
	b.mu.RUnlock()
	for _, h := range hs {
		h(e)
	}
}
