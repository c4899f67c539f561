package config

import (
	"fmt"
	"strings"
	"time"
)

// DurationOrDefault parses a duration string and falls back to defaultValue when empty.
func DurationOrDefault(value string, defaultValue string) (time.Duration, error) {
	candidate := strings.TrimSpace(value)
	if candidate == "" {
		candidate = strings.TrimSpace(defaultValue)
	}
	if candidate == "" {
		return 0, fmt.Errorf("duration value is empty")
	}

	d, err := time.ParseDuration(candidate)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", candidate, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("duration %q is negative", candidate)
	}
	return d, nil
}

// DurationField binds one config key to its destination.
type DurationField struct {
	Key     string
	Value   string
	Default string
	Dst     *time.Duration
}

// ParseDurations fills every Dst and names the first key that fails.
func ParseDurations(fields ...DurationField) error {
	for _, f := range fields {
		d, err := DurationOrDefault(f.Value, f.Default)
		if err != nil {
			return fmt.Errorf("%s: %w", f.Key, err)
		}
		*f.Dst = d
	}
	return nil
}
