// Package timecode converts between HH:MM:SS text and whole seconds.
package timecode

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ParseError reports a timestamp that is not three colon-separated integers.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid timestamp %q: %s", e.Input, e.Reason)
}

// ParseTimestamp parses "H:MM:SS" into h*3600 + m*60 + s.
// Minutes and seconds above 59 are accepted as-is.
func ParseTimestamp(text string) (int, error) {
	parts := strings.Split(strings.TrimSpace(text), ":")
	if len(parts) != 3 {
		return 0, &ParseError{Input: text, Reason: fmt.Sprintf("expected 3 fields, got %d", len(parts))}
	}

	var fields [3]int
	for i, part := range parts {
		n, err := parseField(part)
		if err != nil {
			return 0, &ParseError{Input: text, Reason: err.Error()}
		}
		fields[i] = n
	}

	total := 0
	for i, unit := range [3]int{3600, 60, 1} {
		if fields[i] > (math.MaxInt-total)/unit {
			return 0, &ParseError{Input: text, Reason: "timestamp out of range"}
		}
		total += fields[i] * unit
	}
	return total, nil
}

func parseField(part string) (int, error) {
	if part == "" {
		return 0, fmt.Errorf("empty field")
	}
	for _, r := range part {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("field %q is not a non-negative integer", part)
		}
	}
	n, err := strconv.Atoi(part)
	if err != nil {
		return 0, fmt.Errorf("field %q out of range", part)
	}
	return n, nil
}

// FormatSeconds renders seconds as HH:MM:SS. Hours grow past two digits when needed.
// Negative input is treated as zero.
func FormatSeconds(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
