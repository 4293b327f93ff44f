package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"koyomi/pkg/logx"
)

// ErrOutOfRange reports a 1-based reminder index outside the current list.
var ErrOutOfRange = errors.New("index out of range")

// Reminder is immutable once created. Destroyed when it fires or is deleted.
type Reminder struct {
	Time    time.Time `json:"time"`
	UserID  string    `json:"userId"`
	Message string    `json:"message"`
}

// PinnedCalendar tracks the one live calendar message of a channel.
type PinnedCalendar struct {
	MessageID string `json:"messageId"`
	Year      int    `json:"year"`
	Month     int    `json:"month"`
}

// persisted is the on-disk shape. Both maps are optional so old or partial
// files load cleanly.
type persisted struct {
	Reminders      map[string][]Reminder     `json:"reminders,omitempty"`
	FixedCalendars map[string]PinnedCalendar `json:"fixedCalendars,omitempty"`
}

// State holds per-channel reminders (insertion order, the 1-based index users
// reference) and pinned calendars (at most one per channel).
//
// The mutex makes State safe regardless of caller discipline, but ordering
// guarantees come from the single command/tick loop: a mutation and its Save
// complete before the next queued callback observes the store.
type State struct {
	mu   sync.Mutex
	path string
	log  logx.Logger

	reminders map[string][]Reminder
	pins      map[string]PinnedCalendar
}

// OpenState loads the state file at path. A missing file is an empty state,
// not an error.
func OpenState(path string, log logx.Logger) (*State, error) {
	s := &State{
		path:      path,
		log:       log,
		reminders: map[string][]Reminder{},
		pins:      map[string]PinnedCalendar{},
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read state: %w", err)
	}
	var p persisted
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("decode state %s: %w", path, err)
	}
	if p.Reminders != nil {
		s.reminders = p.Reminders
	}
	if p.FixedCalendars != nil {
		s.pins = p.FixedCalendars
	}
	return s, nil
}

// Save writes the whole state atomically (tmp + rename).
// Failures are logged by the caller and never crash the process; the
// in-memory state stays authoritative.
func (s *State) Save() error {
	s.mu.Lock()
	p := persisted{}
	if len(s.reminders) > 0 {
		p.Reminders = make(map[string][]Reminder, len(s.reminders))
		for ch, rs := range s.reminders {
			if len(rs) > 0 {
				p.Reminders[ch] = append([]Reminder(nil), rs...)
			}
		}
	}
	if len(s.pins) > 0 {
		p.FixedCalendars = make(map[string]PinnedCalendar, len(s.pins))
		for ch, pin := range s.pins {
			p.FixedCalendars[ch] = pin
		}
	}
	path := s.path
	s.mu.Unlock()

	b, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// ---- reminders ----

// AddReminder appends to the channel's list. Duplicates are legal and
// distinct; keys are created lazily.
func (s *State) AddReminder(channel string, r Reminder) {
	s.mu.Lock()
	s.reminders[channel] = append(s.reminders[channel], r)
	s.mu.Unlock()
}

// Reminders returns a copy of the channel's ordered list (empty if none).
func (s *State) Reminders(channel string) []Reminder {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Reminder(nil), s.reminders[channel]...)
}

// DeleteReminderAt removes the 1-based index and returns the removed entry.
func (s *State) DeleteReminderAt(channel string, index int) (Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rs := s.reminders[channel]
	if index < 1 || index > len(rs) {
		return Reminder{}, fmt.Errorf("%w: %d of %d", ErrOutOfRange, index, len(rs))
	}
	removed := rs[index-1]
	s.reminders[channel] = append(rs[:index-1], rs[index:]...)
	return removed, nil
}

// ClearReminders removes all reminders of a channel and returns the count.
// Zero is a valid result, not an error.
func (s *State) ClearReminders(channel string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.reminders[channel])
	if n > 0 {
		delete(s.reminders, channel)
	}
	return n
}

// DrainDue atomically removes and returns every reminder with Time <= asOf,
// preserving relative order. The remaining entries keep their original order.
func (s *State) DrainDue(channel string, asOf time.Time) []Reminder {
	s.mu.Lock()
	defer s.mu.Unlock()
	rs := s.reminders[channel]
	if len(rs) == 0 {
		return nil
	}
	var due, rest []Reminder
	for _, r := range rs {
		if !r.Time.After(asOf) {
			due = append(due, r)
		} else {
			rest = append(rest, r)
		}
	}
	if len(due) == 0 {
		return nil
	}
	if len(rest) == 0 {
		delete(s.reminders, channel)
	} else {
		s.reminders[channel] = rest
	}
	return due
}

// ReminderChannels returns the channels that currently hold reminders,
// sorted for deterministic iteration.
func (s *State) ReminderChannels() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	chs := make([]string, 0, len(s.reminders))
	for ch, rs := range s.reminders {
		if len(rs) > 0 {
			chs = append(chs, ch)
		}
	}
	sort.Strings(chs)
	return chs
}

// ---- pinned calendars ----

// Pin overwrites any prior pin for the channel (single pin per channel).
func (s *State) Pin(channel string, pin PinnedCalendar) {
	s.mu.Lock()
	s.pins[channel] = pin
	s.mu.Unlock()
}

// Unpin removes the channel's pin. No-op when absent.
func (s *State) Unpin(channel string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pins[channel]; !ok {
		return false
	}
	delete(s.pins, channel)
	return true
}

func (s *State) PinFor(channel string) (PinnedCalendar, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pin, ok := s.pins[channel]
	return pin, ok
}

// Pins returns a copy of the pin map.
func (s *State) Pins() map[string]PinnedCalendar {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]PinnedCalendar, len(s.pins))
	for ch, pin := range s.pins {
		out[ch] = pin
	}
	return out
}
