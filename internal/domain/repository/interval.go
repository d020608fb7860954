package repository

import (
	"strings"
	"time"
)

// Interval represents bar sampling buckets.
type Interval string

const (
	M1  Interval = "M1"
	M5  Interval = "M5"
	M15 Interval = "M15"
	M30 Interval = "M30"
	H1  Interval = "H1"
	H4  Interval = "H4"
	D1  Interval = "D1"
)

// IsValidInterval returns true if iv is a supported interval.
func IsValidInterval(iv Interval) bool {
	switch iv {
	case M1, M5, M15, M30, H1, H4, D1:
		return true
	default:
		return false
	}
}

// DefaultInterval returns the default interval.
func DefaultInterval() Interval { return H4 }

// NormalizeInterval converts raw string to a valid interval (or default).
func NormalizeInterval(s string) Interval {
	if s == "" {
		return DefaultInterval()
	}
	iv := Interval(strings.ToUpper(strings.TrimSpace(s)))
	if IsValidInterval(iv) {
		return iv
	}
	return DefaultInterval()
}

// Duration returns the bar length of iv.
func (iv Interval) Duration() time.Duration {
	switch iv {
	case M1:
		return time.Minute
	case M5:
		return 5 * time.Minute
	case M15:
		return 15 * time.Minute
	case M30:
		return 30 * time.Minute
	case H1:
		return time.Hour
	case H4:
		return 4 * time.Hour
	case D1:
		return 24 * time.Hour
	default:
		return 0
	}
}
