// Package segments holds the user's ordered list of trim ranges.
package segments

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/nextconvert/cutstudio/internal/modules/timecode"
)

// Segment is one start/end range in whole seconds. Start < End always holds.
type Segment struct {
	ID    string `json:"id"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// Duration returns End - Start.
func (s Segment) Duration() int {
	return s.End - s.Start
}

// ValidationKind classifies a rejected Add.
type ValidationKind string

const (
	InvalidFormat ValidationKind = "invalid_format"
	RangeOrder    ValidationKind = "range_order"
)

// ValidationError is returned by Add. The set is left unchanged.
type ValidationError struct {
	Kind ValidationKind
	Err  error
}

func (e *ValidationError) Error() string {
	switch e.Kind {
	case InvalidFormat:
		return fmt.Sprintf("invalid time format, use HH:MM:SS: %v", e.Err)
	case RangeOrder:
		return "start time must be before end time"
	default:
		return string(e.Kind)
	}
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Set is an ordered collection of segments. Order is insertion order and
// is the order segments are trimmed and merged in. Overlapping ranges are allowed.
type Set struct {
	mu       sync.RWMutex
	segments []Segment
	newID    func() string
}

// NewSet creates an empty set
func NewSet() *Set {
	return &Set{newID: uuid.NewString}
}

// Add parses both timestamps and appends a new segment.
func (s *Set) Add(startText, endText string) (Segment, error) {
	start, err := timecode.ParseTimestamp(startText)
	if err != nil {
		return Segment{}, &ValidationError{Kind: InvalidFormat, Err: err}
	}
	end, err := timecode.ParseTimestamp(endText)
	if err != nil {
		return Segment{}, &ValidationError{Kind: InvalidFormat, Err: err}
	}
	if start >= end {
		return Segment{}, &ValidationError{Kind: RangeOrder}
	}

	seg := Segment{ID: s.newID(), Start: start, End: end}

	s.mu.Lock()
	s.segments = append(s.segments, seg)
	s.mu.Unlock()

	return seg, nil
}

// Remove deletes the segment with the given id. Unknown ids are ignored.
func (s *Set) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, seg := range s.segments {
		if seg.ID == id {
			s.segments = append(s.segments[:i:i], s.segments[i+1:]...)
			return
		}
	}
}

// List returns a copy of the segments in insertion order.
func (s *Set) List() []Segment {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Segment, len(s.segments))
	copy(out, s.segments)
	return out
}

// Len returns the number of segments
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.segments)
}

// Clear removes every segment
func (s *Set) Clear() {
	s.mu.Lock()
	s.segments = nil
	s.mu.Unlock()
}
