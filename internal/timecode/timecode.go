// Package timecode converts between millisecond offsets and the
// HH:MM:SS[.mmm] timestamps embedded in preview and clip URLs.
package timecode

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var ErrInvalidTimecode = errors.New("invalid timecode")

// maxHours keeps the millisecond total of any accepted clock within int.
const maxHours = (math.MaxInt - 3_599_999) / 3_600_000

// Format renders ms as HH:MM:SS, or HH:MM:SS.mmm when the sub-second
// remainder is non-zero. Hours are not wrapped. Negative input formats as zero.
func Format(ms int) string {
	if ms < 0 {
		ms = 0
	}
	hours := ms / 1000 / 60 / 60
	minutes := (ms / 1000 / 60) % 60
	seconds := (ms / 1000) % 60
	millis := ms % 1000

	if millis == 0 {
		return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%02d:%02d:%02d.%03d", hours, minutes, seconds, millis)
}

// Parse is the inverse of Format. It accepts HH:MM:SS with an optional
// fractional part of one to three digits; "1.5" seconds means 1500ms.
func Parse(s string) (int, error) {
	ms, _, err := parse(s)
	return ms, err
}

// ParseClock parses a clock value and reports whether it carried an
// explicit fractional part.
func ParseClock(s string) (ms int, hasFraction bool, err error) {
	return parse(s)
}

func parse(s string) (int, bool, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false, ErrInvalidTimecode
	}

	clock, frac, hasFraction := strings.Cut(s, ".")

	parts := strings.Split(clock, ":")
	if len(parts) != 3 {
		return 0, false, ErrInvalidTimecode
	}

	hours, err := parseField(parts[0], maxHours)
	if err != nil {
		return 0, false, err
	}
	minutes, err := parseField(parts[1], 59)
	if err != nil {
		return 0, false, err
	}
	seconds, err := parseField(parts[2], 59)
	if err != nil {
		return 0, false, err
	}

	millis := 0
	if hasFraction {
		if len(frac) == 0 || len(frac) > 3 {
			return 0, false, ErrInvalidTimecode
		}
		millis, err = parseField(frac+strings.Repeat("0", 3-len(frac)), 999)
		if err != nil {
			return 0, false, err
		}
	}

	return ((hours*60+minutes)*60+seconds)*1000 + millis, hasFraction, nil
}

func parseField(s string, max int) (int, error) {
	if s == "" {
		return 0, ErrInvalidTimecode
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, ErrInvalidTimecode
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, ErrInvalidTimecode
	}
	if max >= 0 && n > max {
		return 0, ErrInvalidTimecode
	}
	return n, nil
}

// SubMillis returns the sub-second remainder of ms.
func SubMillis(ms int) int {
	return ms % 1000
}

// WithSubMillis replaces the sub-second remainder of ms with sub.
// The caller is responsible for checking sub is within [0, 999].
func WithSubMillis(ms, sub int) int {
	return (ms/1000)*1000 + sub
}
