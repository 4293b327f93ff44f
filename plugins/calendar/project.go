package calendar

import (
	"sort"
	"time"

	"koyomi/internal/storage"
)

// Projection is the data view of one channel-month: everything a renderer
// needs to draw a calendar, with no drawing concerns of its own.
type Projection struct {
	Year  int
	Month time.Month

	DaysInMonth  int
	FirstWeekday time.Weekday

	// Counts maps day-of-month to the number of reminders due that day.
	Counts map[int]int

	// Agenda holds the month's reminders sorted ascending by due time.
	Agenda []storage.Reminder
}

// Project computes the month view from a reminder snapshot. Pure: it never
// mutates its inputs. Day counts use the civil calendar in loc, so leap
// years and month lengths come out of time.Date normalization.
func Project(year int, month time.Month, reminders []storage.Reminder, loc *time.Location) Projection {
	first := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	p := Projection{
		Year:  year,
		Month: month,
		// Day 0 of the next month is the last day of this one.
		DaysInMonth:  time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day(),
		FirstWeekday: first.Weekday(),
		Counts:       map[int]int{},
	}

	for _, r := range reminders {
		t := r.Time.In(loc)
		if t.Year() != year || t.Month() != month {
			continue
		}
		p.Counts[t.Day()]++
		p.Agenda = append(p.Agenda, r)
	}
	sort.SliceStable(p.Agenda, func(i, j int) bool {
		return p.Agenda[i].Time.Before(p.Agenda[j].Time)
	})
	return p
}

// GridIndex returns the flat cell index of a day in a 7-column month grid.
func (p Projection) GridIndex(day int) int {
	return int(p.FirstWeekday) + day - 1
}
