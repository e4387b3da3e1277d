// Package series defines the data-series value object the host hands to
// plugins as execution context. Values are plain data so they survive the
// gob-encoded plugin wire protocol unchanged.
package series

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrEmptyName = errors.New("series name cannot be empty")
	ErrNotFinite = errors.New("series contains a non-finite value")
	ErrUnordered = errors.New("series timestamps must be non-decreasing")
)

// Point is a single sample: timestamp (seconds) and value.
type Point struct {
	T float64
	V float64
}

// Series is a named, ordered sequence of samples.
type Series struct {
	Name   string
	Unit   string
	Points []Point
}

func New(name string, points ...Point) *Series {
	return &Series{Name: name, Points: points}
}

func (s *Series) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Points)
}

// Clone returns a deep copy so plugins and host never share backing arrays.
func (s *Series) Clone() *Series {
	if s == nil {
		return nil
	}
	out := &Series{Name: s.Name, Unit: s.Unit}
	if len(s.Points) > 0 {
		out.Points = make([]Point, len(s.Points))
		copy(out.Points, s.Points)
	}
	return out
}

// Validate checks the series is well formed: named, finite, time-ordered.
func (s *Series) Validate() error {
	if s == nil {
		return errors.New("series is nil")
	}
	if s.Name == "" {
		return ErrEmptyName
	}
	for i, p := range s.Points {
		if math.IsNaN(p.T) || math.IsInf(p.T, 0) || math.IsNaN(p.V) || math.IsInf(p.V, 0) {
			return fmt.Errorf("%w: point %d", ErrNotFinite, i)
		}
		if i > 0 && p.T < s.Points[i-1].T {
			return fmt.Errorf("%w: point %d", ErrUnordered, i)
		}
	}
	return nil
}
