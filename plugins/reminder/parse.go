package reminder

import (
	"errors"
	"regexp"
	"strconv"
	"time"
)

// ErrParse reports an unrecognized reminder spec. Handlers answer it with a
// usage hint and change no state.
var ErrParse = errors.New("unrecognized reminder spec")

var (
	relRe  = regexp.MustCompile(`^(\d{1,5})(m|分)$`)
	hhmmRe = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)
	dateRe = regexp.MustCompile(`^(?:(\d{4})/)?(\d{1,2})/(\d{1,2})$`)
)

// ParseWhen resolves the leading time spec of a !remind invocation.
//
// Supported forms (all in now's location):
//
//	30m / 30分          now + N minutes
//	HH:MM               today; already past -> tomorrow
//	M/D HH:MM           this year; already past -> next year
//	YYYY/M/D HH:MM      as given, even when in the past
//
// The rollover asymmetry between the year-omitted and year-given forms is
// deliberate: an explicit year is taken literally.
func ParseWhen(tokens []string, now time.Time) (due time.Time, rest []string, err error) {
	if len(tokens) == 0 {
		return time.Time{}, nil, ErrParse
	}
	loc := now.Location()

	if m := relRe.FindStringSubmatch(tokens[0]); m != nil {
		n, convErr := strconv.Atoi(m[1])
		if convErr != nil || n <= 0 {
			return time.Time{}, nil, ErrParse
		}
		return now.Add(time.Duration(n) * time.Minute), tokens[1:], nil
	}

	if m := hhmmRe.FindStringSubmatch(tokens[0]); m != nil {
		hour, min, ok := clockOf(m[1], m[2])
		if !ok {
			return time.Time{}, nil, ErrParse
		}
		due = time.Date(now.Year(), now.Month(), now.Day(), hour, min, 0, 0, loc)
		if !due.After(now) {
			due = due.AddDate(0, 0, 1)
		}
		return due, tokens[1:], nil
	}

	if m := dateRe.FindStringSubmatch(tokens[0]); m != nil {
		if len(tokens) < 2 {
			return time.Time{}, nil, ErrParse
		}
		tm := hhmmRe.FindStringSubmatch(tokens[1])
		if tm == nil {
			return time.Time{}, nil, ErrParse
		}
		hour, min, ok := clockOf(tm[1], tm[2])
		if !ok {
			return time.Time{}, nil, ErrParse
		}
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])

		yearGiven := m[1] != ""
		year := now.Year()
		if yearGiven {
			year, _ = strconv.Atoi(m[1])
		}

		due = time.Date(year, time.Month(month), day, hour, min, 0, 0, loc)
		// time.Date normalizes out-of-range components (2/30 -> 3/2);
		// reject anything that did not survive as written.
		if due.Year() != year || due.Month() != time.Month(month) || due.Day() != day {
			return time.Time{}, nil, ErrParse
		}
		if !yearGiven && !due.After(now) {
			due = due.AddDate(1, 0, 0)
		}
		return due, tokens[2:], nil
	}

	return time.Time{}, nil, ErrParse
}

func clockOf(hs, ms string) (hour, min int, ok bool) {
	hour, err1 := strconv.Atoi(hs)
	min, err2 := strconv.Atoi(ms)
	if err1 != nil || err2 != nil || hour > 23 || min > 59 {
		return 0, 0, false
	}
	return hour, min, true
}
