package storage

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"koyomi/pkg/logx"
)

func TestOpenStateMissingFile(t *testing.T) {
	t.Parallel()
	s, err := OpenState(filepath.Join(t.TempDir(), "nope.json"), logx.Logger{})
	if err != nil {
		t.Fatalf("OpenState error: %v", err)
	}
	if got := s.Reminders("1"); len(got) != 0 {
		t.Fatalf("expected empty state, got %d reminders", len(got))
	}
	if len(s.Pins()) != 0 {
		t.Fatal("expected no pins")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "state.json")
	s, err := OpenState(path, logx.Logger{})
	if err != nil {
		t.Fatalf("OpenState error: %v", err)
	}

	due := time.Date(2025, 7, 1, 9, 30, 0, 0, time.UTC)
	s.AddReminder("100", Reminder{Time: due, UserID: "42", Message: "standup"})
	s.AddReminder("100", Reminder{Time: due.Add(time.Hour), UserID: "42", Message: ""})
	s.AddReminder("200", Reminder{Time: due, UserID: "7", Message: "dup"})
	s.AddReminder("200", Reminder{Time: due, UserID: "7", Message: "dup"})
	s.Pin("100", PinnedCalendar{MessageID: "555", Year: 2025, Month: 7})
	if err := s.Save(); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	// The on-disk JSON keeps the legacy field names other tooling reads.
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read state file: %v", err)
	}
	for _, key := range []string{`"reminders"`, `"fixedCalendars"`, `"userId"`, `"messageId"`} {
		if !strings.Contains(string(b), key) {
			t.Fatalf("state file missing %s:\n%s", key, b)
		}
	}

	loaded, err := OpenState(path, logx.Logger{})
	if err != nil {
		t.Fatalf("reload error: %v", err)
	}
	rs := loaded.Reminders("100")
	if len(rs) != 2 || !rs[0].Time.Equal(due) || rs[0].Message != "standup" {
		t.Fatalf("channel 100 reminders = %+v", rs)
	}
	if dups := loaded.Reminders("200"); len(dups) != 2 {
		t.Fatalf("duplicates collapsed: %+v", dups)
	}
	pin, ok := loaded.PinFor("100")
	if !ok || pin.MessageID != "555" || pin.Year != 2025 || pin.Month != 7 {
		t.Fatalf("pin = %+v ok=%v", pin, ok)
	}
}

func TestDeleteReminderAt(t *testing.T) {
	t.Parallel()
	s := newTestState(t)
	base := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	for i, msg := range []string{"a", "b", "c"} {
		s.AddReminder("1", Reminder{Time: base.Add(time.Duration(i) * time.Hour), Message: msg})
	}

	removed, err := s.DeleteReminderAt("1", 2)
	if err != nil {
		t.Fatalf("DeleteReminderAt error: %v", err)
	}
	if removed.Message != "b" {
		t.Fatalf("removed = %+v, want b", removed)
	}
	if got := s.Reminders("1"); len(got) != 2 || got[0].Message != "a" || got[1].Message != "c" {
		t.Fatalf("remaining = %+v", got)
	}

	for _, idx := range []int{0, 3, -1} {
		if _, err := s.DeleteReminderAt("1", idx); !errors.Is(err, ErrOutOfRange) {
			t.Fatalf("index %d: err = %v, want ErrOutOfRange", idx, err)
		}
	}
	if got := s.Reminders("1"); len(got) != 2 {
		t.Fatalf("failed delete mutated the list: %+v", got)
	}
}

func TestClearReminders(t *testing.T) {
	t.Parallel()
	s := newTestState(t)
	s.AddReminder("1", Reminder{Time: time.Now()})
	s.AddReminder("1", Reminder{Time: time.Now()})

	if n := s.ClearReminders("1"); n != 2 {
		t.Fatalf("ClearReminders = %d, want 2", n)
	}
	if n := s.ClearReminders("1"); n != 0 {
		t.Fatalf("second clear = %d, want 0", n)
	}
}

func TestDrainDue(t *testing.T) {
	t.Parallel()
	s := newTestState(t)
	asOf := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	s.AddReminder("1", Reminder{Time: asOf.Add(-time.Hour), Message: "past"})
	s.AddReminder("1", Reminder{Time: asOf.Add(time.Hour), Message: "future"})
	s.AddReminder("1", Reminder{Time: asOf, Message: "exact"})

	due := s.DrainDue("1", asOf)
	if len(due) != 2 || due[0].Message != "past" || due[1].Message != "exact" {
		t.Fatalf("due = %+v", due)
	}
	if rest := s.Reminders("1"); len(rest) != 1 || rest[0].Message != "future" {
		t.Fatalf("rest = %+v", rest)
	}

	// Draining again is a no-op; fired reminders are gone for good.
	if again := s.DrainDue("1", asOf.Add(time.Minute)); again != nil {
		t.Fatalf("second drain = %+v", again)
	}
}

func TestReminderChannelsSorted(t *testing.T) {
	t.Parallel()
	s := newTestState(t)
	for _, ch := range []string{"30", "1", "200"} {
		s.AddReminder(ch, Reminder{Time: time.Now()})
	}
	got := s.ReminderChannels()
	want := []string{"1", "200", "30"}
	if len(got) != len(want) {
		t.Fatalf("channels = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("channels = %v, want %v", got, want)
		}
	}
}

func TestPinUnpin(t *testing.T) {
	t.Parallel()
	s := newTestState(t)
	s.Pin("1", PinnedCalendar{MessageID: "10", Year: 2025, Month: 6})
	s.Pin("1", PinnedCalendar{MessageID: "11", Year: 2025, Month: 7})

	pin, ok := s.PinFor("1")
	if !ok || pin.MessageID != "11" {
		t.Fatalf("pin = %+v, want overwrite to 11", pin)
	}
	if !s.Unpin("1") {
		t.Fatal("Unpin returned false for existing pin")
	}
	if s.Unpin("1") {
		t.Fatal("Unpin returned true for absent pin")
	}
}

func newTestState(t *testing.T) *State {
	t.Helper()
	s, err := OpenState(filepath.Join(t.TempDir(), "state.json"), logx.Logger{})
	if err != nil {
		t.Fatalf("OpenState error: %v", err)
	}
	return s
}
