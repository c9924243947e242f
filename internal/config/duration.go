package config

import (
	"fmt"
	"strings"
	"time"
)

// ParseDurationField parses an optional duration value from the config.
// path names the field in error messages ("dispatch.timeout"). An empty
// value yields zero with no error so callers can apply their own default.
func ParseDurationField(path, raw string) (time.Duration, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	switch {
	case err != nil:
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	case d < 0:
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with a fallback for empty
// or zero values.
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
