package steering

import (
	"errors"
	"fmt"
	"math"

	"github.com/cwbudde/algo-spatial/internal/cmat"
	"github.com/cwbudde/algo-spatial/sphere"
	"github.com/cwbudde/algo-spatial/tf"
)

// whitenEps floors the eigenvalues in the inverse-square-root whitening.
const whitenEps = 2.23e-10

// Errors returned by table construction.
var (
	ErrNoMeasurements = errors.New("steering: impulse-response set is empty")
	ErrRaggedSet      = errors.New("steering: all measurements need the same channel and sample count")
	ErrGridMismatch   = errors.New("steering: measurement count must match grid size")
)

// Table holds the per-band steering and whitening data for one array.
type Table struct {
	nMics  int
	nGrid  int
	nBands int

	grid  *sphere.Grid
	freqs []float64

	steer    [][]complex128 // per band: nGrid x nMics, row per direction
	whitened [][]complex128 // per band: nGrid x nMics, whitened rows
	diffCov  [][]complex128 // per band: nMics x nMics
	whiten   [][]complex128 // per band: nMics x nMics
}

// NewTable builds the steering and whitening tables from measured impulse
// responses, shaped [grid direction][microphone][sample]. All measurements
// are normalized together so the peak absolute sample is 1, preserving the
// relative level between directions.
func NewTable(irs [][][]float64, grid *sphere.Grid, fb *tf.Transform, sampleRate float64) (*Table, error) {
	if len(irs) == 0 {
		return nil, ErrNoMeasurements
	}

	if len(irs) != grid.Len() {
		return nil, fmt.Errorf("%w: got %d measurements for %d directions", ErrGridMismatch, len(irs), grid.Len())
	}

	nMics := len(irs[0])
	if nMics == 0 {
		return nil, ErrRaggedSet
	}

	irLen := len(irs[0][0])
	for _, meas := range irs {
		if len(meas) != nMics {
			return nil, ErrRaggedSet
		}

		for _, ch := range meas {
			if len(ch) != irLen || irLen == 0 {
				return nil, ErrRaggedSet
			}
		}
	}

	scale := 1.0
	if peak := peakAbs(irs); peak > 0 {
		scale = 1 / peak
	}

	nGrid := grid.Len()
	nBands := fb.NumBands()

	t := &Table{
		nMics:    nMics,
		nGrid:    nGrid,
		nBands:   nBands,
		grid:     grid,
		freqs:    fb.CentreFreqs(sampleRate),
		steer:    allocBands(nBands, nGrid*nMics),
		whitened: allocBands(nBands, nGrid*nMics),
		diffCov:  allocBands(nBands, nMics*nMics),
		whiten:   allocBands(nBands, nMics*nMics),
	}

	scaled := make([][]float64, nMics)

	for d := range nGrid {
		for m := range nMics {
			ch := make([]float64, irLen)
			for i, v := range irs[d][m] {
				ch[i] = v * scale
			}
			scaled[m] = ch
		}

		coeffs, err := fb.FilterbankCoeffs(scaled)
		if err != nil {
			return nil, fmt.Errorf("steering: direction %d: %w", d, err)
		}

		for band := range nBands {
			copy(t.steer[band][d*nMics:(d+1)*nMics], coeffs[band])
		}
	}

	err := t.buildWhitening()
	if err != nil {
		return nil, err
	}

	return t, nil
}

// buildWhitening derives the diffuse covariance, whitening matrix, and
// whitened steering vectors for every band.
func (t *Table) buildWhitening() error {
	n := t.nMics
	tmp := make([]complex128, n)

	for band := range t.nBands {
		cd := t.diffCov[band]

		for d := range t.nGrid {
			a := t.Vector(band, d)
			w := t.grid.Weight(d)

			for i := range n {
				for j := range n {
					cd[i*n+j] += complex(w, 0) * a[i] * conj(a[j])
				}
			}
		}

		cmat.Scale(cd, complex(1/float64(t.nGrid), 0))

		vals, vecs, err := cmat.EigHerm(cd, n)
		if err != nil {
			return fmt.Errorf("steering: band %d diffuse covariance: %w", band, err)
		}

		// T = V * diag(1/sqrt(eig+eps)) * V^H.
		wm := t.whiten[band]
		for i := range n {
			for j := range n {
				var sum complex128
				for l := range n {
					s := 1 / math.Sqrt(math.Max(vals[l], 0)+whitenEps)
					sum += vecs[i*n+l] * complex(s, 0) * conj(vecs[j*n+l])
				}
				wm[i*n+j] = sum
			}
		}

		for d := range t.nGrid {
			cmat.MulVec(tmp, wm, t.Vector(band, d), n, n)
			copy(t.whitened[band][d*n:(d+1)*n], tmp)
		}
	}

	return nil
}

// NumMics returns the microphone count.
func (t *Table) NumMics() int { return t.nMics }

// NumDirections returns the grid size.
func (t *Table) NumDirections() int { return t.nGrid }

// NumBands returns the band count.
func (t *Table) NumBands() int { return t.nBands }

// Grid returns the measurement grid.
func (t *Table) Grid() *sphere.Grid { return t.grid }

// Freqs returns the band centre frequencies in Hz. The slice is owned by the
// table and must not be modified.
func (t *Table) Freqs() []float64 { return t.freqs }

// Vector returns the steering vector for one band and grid direction. The
// slice aliases the table and must not be modified.
func (t *Table) Vector(band, dir int) []complex128 {
	return t.steer[band][dir*t.nMics : (dir+1)*t.nMics]
}

// WhitenedVector returns the whitened steering vector for one band and grid
// direction. The slice aliases the table and must not be modified.
func (t *Table) WhitenedVector(band, dir int) []complex128 {
	return t.whitened[band][dir*t.nMics : (dir+1)*t.nMics]
}

// WhitenedVectors returns all whitened steering vectors for one band as a
// row-major nGrid x nMics matrix. The slice aliases the table.
func (t *Table) WhitenedVectors(band int) []complex128 {
	return t.whitened[band]
}

// DiffuseCovariance returns the nMics x nMics diffuse-field covariance for
// one band. The slice aliases the table.
func (t *Table) DiffuseCovariance(band int) []complex128 {
	return t.diffCov[band]
}

// Whitening returns the nMics x nMics whitening matrix for one band. The
// slice aliases the table.
func (t *Table) Whitening(band int) []complex128 {
	return t.whiten[band]
}

// Clone returns a deep copy of the table, sharing only the immutable grid.
// Synthesis contexts clone the analysis table to decouple lifetimes.
func (t *Table) Clone() *Table {
	c := &Table{
		nMics:    t.nMics,
		nGrid:    t.nGrid,
		nBands:   t.nBands,
		grid:     t.grid,
		freqs:    append([]float64(nil), t.freqs...),
		steer:    cloneBands(t.steer),
		whitened: cloneBands(t.whitened),
		diffCov:  cloneBands(t.diffCov),
		whiten:   cloneBands(t.whiten),
	}

	return c
}

func allocBands(nBands, size int) [][]complex128 {
	out := make([][]complex128, nBands)
	for i := range out {
		out[i] = make([]complex128, size)
	}

	return out
}

func cloneBands(in [][]complex128) [][]complex128 {
	out := make([][]complex128, len(in))
	for i := range out {
		out[i] = append([]complex128(nil), in[i]...)
	}

	return out
}

func peakAbs(irs [][][]float64) float64 {
	peak := 0.0
	for _, meas := range irs {
		for _, ch := range meas {
			for _, v := range ch {
				if a := math.Abs(v); a > peak {
					peak = a
				}
			}
		}
	}

	return peak
}

func conj(c complex128) complex128 {
	return complex(real(c), -imag(c))
}
