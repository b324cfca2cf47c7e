package sphere

import (
	"errors"
	"fmt"
	"math"
)

// Errors returned by grid construction and lookup.
var (
	ErrEmptyGrid     = errors.New("sphere: grid needs at least one direction")
	ErrWeightCount   = errors.New("sphere: weight count must match direction count")
	ErrInvalidWeight = errors.New("sphere: weights must be positive and finite")
)

// Direction is a point on the unit sphere, in degrees.
type Direction struct {
	Azimuth   float64 // counter-clockwise from the front, wrapped as needed
	Elevation float64 // upwards from the horizontal plane, in [-90, 90]
}

// Vector returns the unit Cartesian vector for d (x front, y left, z up).
func (d Direction) Vector() [3]float64 {
	az := d.Azimuth * math.Pi / 180
	el := d.Elevation * math.Pi / 180

	return [3]float64{
		math.Cos(el) * math.Cos(az),
		math.Cos(el) * math.Sin(az),
		math.Sin(el),
	}
}

// Angle returns the great-circle angle between a and b in degrees.
func Angle(a, b Direction) float64 {
	va := a.Vector()
	vb := b.Vector()

	dot := va[0]*vb[0] + va[1]*vb[1] + va[2]*vb[2]
	if dot > 1 {
		dot = 1
	} else if dot < -1 {
		dot = -1
	}

	return math.Acos(dot) * 180 / math.Pi
}

// Grid is an immutable set of directions with integration weights.
//
// Weights are normalized so that their mean is 1; a uniform grid therefore
// has all weights equal to 1.
type Grid struct {
	dirs    []Direction
	vecs    [][3]float64
	weights []float64
}

type gridConfig struct {
	weights  []float64
	estimate bool
}

// GridOption mutates construction-time grid parameters.
type GridOption func(*gridConfig) error

// WithWeights supplies per-direction integration weights, e.g. exact
// Voronoi-cell solid angles for a non-uniform measurement grid.
func WithWeights(weights []float64) GridOption {
	return func(cfg *gridConfig) error {
		for _, w := range weights {
			if w <= 0 || math.IsNaN(w) || math.IsInf(w, 0) {
				return fmt.Errorf("%w: %g", ErrInvalidWeight, w)
			}
		}

		cfg.weights = weights

		return nil
	}
}

// WithDensityWeights estimates integration weights from the local direction
// density (squared nearest-neighbour distance), approximating Voronoi-cell
// areas on near-uniform grids without a tessellation.
func WithDensityWeights() GridOption {
	return func(cfg *gridConfig) error {
		cfg.estimate = true
		return nil
	}
}

// NewGrid creates a grid over the given directions. The directions are
// copied; weights default to uniform.
func NewGrid(dirs []Direction, opts ...GridOption) (*Grid, error) {
	if len(dirs) == 0 {
		return nil, ErrEmptyGrid
	}

	var cfg gridConfig
	for _, opt := range opts {
		if opt == nil {
			continue
		}

		err := opt(&cfg)
		if err != nil {
			return nil, err
		}
	}

	if cfg.weights != nil && len(cfg.weights) != len(dirs) {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrWeightCount, len(cfg.weights), len(dirs))
	}

	g := &Grid{
		dirs:    make([]Direction, len(dirs)),
		vecs:    make([][3]float64, len(dirs)),
		weights: make([]float64, len(dirs)),
	}
	copy(g.dirs, dirs)

	for i, d := range dirs {
		g.vecs[i] = d.Vector()
	}

	switch {
	case cfg.weights != nil:
		copy(g.weights, cfg.weights)
	case cfg.estimate && len(dirs) > 1:
		for i := range g.weights {
			a := nearestAngle(g.vecs, i)
			g.weights[i] = a * a
		}
	default:
		for i := range g.weights {
			g.weights[i] = 1
		}
	}

	normalizeMean(g.weights)

	return g, nil
}

// Len returns the number of grid directions.
func (g *Grid) Len() int { return len(g.dirs) }

// Direction returns the grid direction at index i.
func (g *Grid) Direction(i int) Direction { return g.dirs[i] }

// Directions returns a copy of all grid directions.
func (g *Grid) Directions() []Direction {
	out := make([]Direction, len(g.dirs))
	copy(out, g.dirs)

	return out
}

// Weight returns the integration weight at index i.
func (g *Grid) Weight(i int) float64 { return g.weights[i] }

// Nearest returns the index of the grid direction closest to d.
func (g *Grid) Nearest(d Direction) int {
	v := d.Vector()
	best := 0
	bestDot := math.Inf(-1)

	for i, u := range g.vecs {
		dot := u[0]*v[0] + u[1]*v[1] + u[2]*v[2]
		if dot > bestDot {
			bestDot = dot
			best = i
		}
	}

	return best
}

// nearestAngle returns the angle to the closest other grid point, in radians.
func nearestAngle(vecs [][3]float64, i int) float64 {
	bestDot := -1.0
	for j, u := range vecs {
		if j == i {
			continue
		}

		v := vecs[i]
		dot := u[0]*v[0] + u[1]*v[1] + u[2]*v[2]
		if dot > bestDot {
			bestDot = dot
		}
	}

	if bestDot > 1 {
		bestDot = 1
	}

	return math.Acos(bestDot)
}

func normalizeMean(w []float64) {
	var sum float64
	for _, v := range w {
		sum += v
	}

	if sum <= 0 {
		for i := range w {
			w[i] = 1
		}

		return
	}

	scale := float64(len(w)) / sum
	for i := range w {
		w[i] *= scale
	}
}

// Fibonacci returns n near-uniformly distributed directions using the
// Fibonacci-sphere construction. Useful for test and tool grids.
func Fibonacci(n int) []Direction {
	if n <= 0 {
		return nil
	}

	out := make([]Direction, n)
	golden := math.Pi * (3 - math.Sqrt(5))

	for i := range out {
		z := 1 - 2*(float64(i)+0.5)/float64(n)
		az := golden * float64(i)

		out[i] = Direction{
			Azimuth:   math.Mod(az*180/math.Pi, 360),
			Elevation: math.Asin(z) * 180 / math.Pi,
		}
	}

	return out
}
