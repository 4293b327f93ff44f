package rotation

import (
	"time"
)

// Entry is one resolved timetable position.
type Entry struct {
	Name    string
	Variant string
}

// Status is the answer to "who is on duty right now".
type Status struct {
	Current          Entry
	Next             Entry
	RemainingMinutes int
}

// At resolves the timetable for an instant. Pure and deterministic given
// (now, table); correct for instants before the epoch as well, which is why
// the position is normalized with a double modulo.
func (t Table) At(now time.Time) Status {
	cycle := t.CycleHours()
	elapsed := now.Sub(t.Epoch)

	hours := int(elapsed / time.Hour)
	// Integer division truncates toward zero; floor negative partial hours.
	if elapsed < 0 && elapsed%time.Hour != 0 {
		hours--
	}
	pos := ((hours % cycle) + cycle) % cycle

	intoHour := elapsed % time.Hour
	if intoHour < 0 {
		intoHour += time.Hour
	}
	remaining := 60 - int(intoHour/time.Minute)

	return Status{
		Current:          t.entryAt(pos),
		Next:             t.entryAt((pos + 1) % cycle),
		RemainingMinutes: remaining,
	}
}

func (t Table) entryAt(pos int) Entry {
	variant := pos / t.SlotsPerVariant
	slot := pos % t.SlotsPerVariant
	v := t.Variants[variant]
	if name, ok := t.Common[slot]; ok {
		return Entry{Name: name, Variant: v.Name}
	}
	return Entry{Name: v.Slots[slot], Variant: v.Name}
}
