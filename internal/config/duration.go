package config

import (
	"fmt"
	"strings"
	"time"
)

// ParseDurationField decodes a duration config value such as "30s" or "1m".
// Empty means unset and decodes to zero; negative values are rejected because
// no duration knob here (poll timeout, tick, busy timeout) has a meaning for
// them. path names the field in error messages, e.g. "plugins.reminder.tick".
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with unset (or explicit zero)
// falling back to def, so callers get a usable interval without re-checking.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}
