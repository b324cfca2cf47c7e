package hrtf

import (
	"errors"
	"fmt"

	"github.com/cwbudde/algo-spatial/sphere"
)

// Errors returned by set construction.
var (
	ErrEmptySet      = errors.New("hrtf: measurement set is empty")
	ErrCountMismatch = errors.New("hrtf: direction and response counts must match")
	ErrRaggedSet     = errors.New("hrtf: all responses need the same sample count")
)

// Set is a measured HRIR collection: one left/right impulse-response pair
// per measurement direction. Sets are read-only inputs; rendering copies
// what it needs.
type Set struct {
	sampleRate float64
	dirs       []sphere.Direction
	left       [][]float64
	right      [][]float64
	irLen      int
}

// NewSet validates and wraps a measured HRIR collection. All responses must
// share one length; the data slices are retained, not copied.
func NewSet(sampleRate float64, dirs []sphere.Direction, left, right [][]float64) (*Set, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("hrtf: sample rate must be > 0: %g", sampleRate)
	}

	if len(dirs) == 0 {
		return nil, ErrEmptySet
	}

	if len(left) != len(dirs) || len(right) != len(dirs) {
		return nil, fmt.Errorf("%w: %d directions, %d left, %d right",
			ErrCountMismatch, len(dirs), len(left), len(right))
	}

	irLen := len(left[0])
	if irLen == 0 {
		return nil, ErrRaggedSet
	}

	for i := range dirs {
		if len(left[i]) != irLen || len(right[i]) != irLen {
			return nil, ErrRaggedSet
		}
	}

	return &Set{
		sampleRate: sampleRate,
		dirs:       dirs,
		left:       left,
		right:      right,
		irLen:      irLen,
	}, nil
}

// SampleRate returns the measurement sample rate in Hz.
func (s *Set) SampleRate() float64 { return s.sampleRate }

// Len returns the measurement count.
func (s *Set) Len() int { return len(s.dirs) }

// IRLength returns the response length in samples.
func (s *Set) IRLength() int { return s.irLen }

// Direction returns the measurement direction at index i.
func (s *Set) Direction(i int) sphere.Direction { return s.dirs[i] }
