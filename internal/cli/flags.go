package cli

import (
	"fmt"
	"strings"
	"time"
)

func parseOptionalDuration(name, value string) (time.Duration, error) {
	if strings.TrimSpace(value) == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid --%s value: %w", name, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("--%s must be positive", name)
	}
	return d, nil
}

// parseDay accepts RFC3339 or a plain YYYY-MM-DD date.
func parseDay(name, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("invalid --%s value %q: expected RFC3339 or YYYY-MM-DD", name, value)
}
