package hades

import (
	"errors"
	"fmt"
	"math"

	"github.com/cwbudde/algo-spatial/sphere"
)

const (
	radialMinDB = -60.0
	radialMaxDB = 12.0
)

// ErrRadialPattern reports a radial gain pattern of the wrong length.
var ErrRadialPattern = errors.New("hades: radial pattern needs one gain per azimuth degree")

// RadialEditor scales the direct stream of analyzed parameters by an
// azimuth-dependent gain pattern, e.g. to suppress sound from behind or to
// spotlight a talker. It edits [Parameters] in place between analysis and
// synthesis.
type RadialEditor struct {
	grid *sphere.Grid
}

// NewRadialEditor creates an editor for directions on the given grid.
func NewRadialEditor(grid *sphere.Grid) (*RadialEditor, error) {
	if grid == nil || grid.Len() == 0 {
		return nil, errors.New("hades: radial editor needs a non-empty grid")
	}

	return &RadialEditor{grid: grid}, nil
}

// Apply multiplies each band's direct-stream gain by the pattern entry at
// the band's current reproduction azimuth, rounded to the nearest degree.
//
// gainsDB holds 360 gains in dB, one per integer azimuth degree starting at
// 0 (front) and increasing counterclockwise. Entries are clamped to
// [-60, +12] dB when applied. Elevation is ignored.
func (e *RadialEditor) Apply(p *Parameters, gainsDB []float64) error {
	if len(gainsDB) != 360 {
		return fmt.Errorf("%w: got %d", ErrRadialPattern, len(gainsDB))
	}

	for band := range p.nBands {
		rep := p.Reproduction[band]
		if rep < 0 || rep >= e.grid.Len() {
			return fmt.Errorf("hades: band %d direction index out of range: %d", band, rep)
		}

		az := math.Mod(e.grid.Direction(rep).Azimuth, 360)
		if az < 0 {
			az += 360
		}

		idx := int(math.Round(az)) % 360

		db := gainsDB[idx]
		if db < radialMinDB {
			db = radialMinDB
		} else if db > radialMaxDB {
			db = radialMaxDB
		}

		p.GainDirect[band] *= math.Pow(10, db/20)
	}

	return nil
}
