package hrtf

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"

	vecmath "github.com/cwbudde/algo-vecmath"

	"github.com/cwbudde/algo-spatial/sphere"
	"github.com/cwbudde/algo-spatial/tf"
)

// ctfEps floors the diffuse-field magnitude used for equalization.
const ctfEps = 1e-7

// Interpolation selects how measurements are mapped onto grid directions.
type Interpolation int

const (
	// InterpolationNearest assigns each grid direction the angularly
	// closest measurement, keeping its measured phase.
	InterpolationNearest Interpolation = iota

	// InterpolationTriangular interpolates diffuse-field-equalized
	// magnitudes with 3-point amplitude-panning gains and rebuilds the
	// phase from the interpolated interaural time difference.
	InterpolationTriangular
)

// ErrInterpolation reports an unknown interpolation policy.
var ErrInterpolation = errors.New("hrtf: unknown interpolation policy")

// Rendered is an HRTF set prepared for one analysis configuration: the
// per-band two-ear transfer function at every grid direction, plus the
// per-band binaural diffuse-field covariance.
type Rendered struct {
	nBands int
	nDirs  int
	freqs  []float64

	// h holds per band a row-major nDirs x 2 matrix (left, right).
	h [][]complex128

	// diffCov holds per band the 2x2 binaural diffuse covariance.
	diffCov [][]complex128
}

// Render projects a measured set through the filterbank, applies
// diffuse-field equalization, and interpolates onto the grid.
//
// The set's sample rate must match the processing sample rate; resampling is
// outside this package's scope.
func Render(set *Set, grid *sphere.Grid, fb *tf.Transform, sampleRate float64, mode Interpolation) (*Rendered, error) {
	if mode != InterpolationNearest && mode != InterpolationTriangular {
		return nil, fmt.Errorf("%w: %d", ErrInterpolation, mode)
	}

	if set.SampleRate() != sampleRate {
		return nil, fmt.Errorf("hrtf: set sample rate %g does not match processing rate %g",
			set.SampleRate(), sampleRate)
	}

	nMeas := set.Len()
	nBands := fb.NumBands()
	nDirs := grid.Len()

	// Per band, row-major nMeas x 2: the measured transfer functions.
	meas := make([][]complex128, nBands)
	for band := range meas {
		meas[band] = make([]complex128, nMeas*2)
	}

	itd := make([]float64, nMeas)

	for m := range nMeas {
		coeffs, err := fb.FilterbankCoeffs([][]float64{set.left[m], set.right[m]})
		if err != nil {
			return nil, fmt.Errorf("hrtf: measurement %d: %w", m, err)
		}

		for band := range nBands {
			meas[band][m*2] = coeffs[band][0]
			meas[band][m*2+1] = coeffs[band][1]
		}

		itd[m] = estimateITD(set.left[m], set.right[m], sampleRate)
	}

	ctf := diffuseFieldMagnitude(meas, nMeas)

	r := &Rendered{
		nBands:  nBands,
		nDirs:   nDirs,
		freqs:   fb.CentreFreqs(sampleRate),
		h:       make([][]complex128, nBands),
		diffCov: make([][]complex128, nBands),
	}

	for band := range nBands {
		r.h[band] = make([]complex128, nDirs*2)
		r.diffCov[band] = make([]complex128, 4)
	}

	measGrid, err := sphere.NewGrid(set.dirs)
	if err != nil {
		return nil, fmt.Errorf("hrtf: measurement grid: %w", err)
	}

	switch mode {
	case InterpolationNearest:
		r.interpolateNearest(meas, ctf, measGrid, grid)
	case InterpolationTriangular:
		err = r.interpolateTriangular(meas, ctf, itd, measGrid, grid)
		if err != nil {
			return nil, err
		}
	}

	r.buildDiffuseCovariance(grid)

	return r, nil
}

// diffuseFieldMagnitude returns per band and ear the RMS magnitude across
// measurements, floored to avoid amplifying silence.
func diffuseFieldMagnitude(meas [][]complex128, nMeas int) [][2]float64 {
	out := make([][2]float64, len(meas))

	re := make([]float64, nMeas)
	im := make([]float64, nMeas)
	pw := make([]float64, nMeas)

	for band := range meas {
		for ear := range 2 {
			for m := range nMeas {
				c := meas[band][m*2+ear]
				re[m] = real(c)
				im[m] = imag(c)
			}

			vecmath.Power(pw, re, im)

			var sum float64
			for _, p := range pw {
				sum += p
			}

			out[band][ear] = math.Max(math.Sqrt(sum/float64(nMeas)), ctfEps)
		}
	}

	return out
}

func (r *Rendered) interpolateNearest(meas [][]complex128, ctf [][2]float64, measGrid, grid *sphere.Grid) {
	for d := range r.nDirs {
		m := measGrid.Nearest(grid.Direction(d))

		for band := range r.nBands {
			for ear := range 2 {
				r.h[band][d*2+ear] = meas[band][m*2+ear] / complex(ctf[band][ear], 0)
			}
		}
	}
}

func (r *Rendered) interpolateTriangular(meas [][]complex128, ctf [][2]float64, itd []float64, measGrid, grid *sphere.Grid) error {
	nMeas := len(itd)

	// Equalized magnitudes per band, row-major nMeas x 2.
	mag := make([][]float64, r.nBands)
	re := make([]float64, nMeas*2)
	im := make([]float64, nMeas*2)

	for band := range r.nBands {
		for i, c := range meas[band] {
			re[i] = real(c)
			im[i] = imag(c)
		}

		mag[band] = make([]float64, nMeas*2)
		vecmath.Magnitude(mag[band], re, im)

		for m := range nMeas {
			mag[band][m*2] /= ctf[band][0]
			mag[band][m*2+1] /= ctf[band][1]
		}
	}

	for d := range r.nDirs {
		idx, gains, err := measGrid.TripletGains(grid.Direction(d))
		if err != nil {
			return fmt.Errorf("hrtf: interpolation gains for direction %d: %w", d, err)
		}

		var itdD float64
		for i := range 3 {
			itdD += gains[i] * itd[idx[i]]
		}

		for band := range r.nBands {
			var magL, magR float64
			for i := range 3 {
				magL += gains[i] * mag[band][idx[i]*2]
				magR += gains[i] * mag[band][idx[i]*2+1]
			}

			// Positive ITD: left leads, right is delayed.
			phase := math.Pi * r.freqs[band] * itdD
			r.h[band][d*2] = cmplx.Rect(magL, phase)
			r.h[band][d*2+1] = cmplx.Rect(magR, -phase)
		}
	}

	return nil
}

func (r *Rendered) buildDiffuseCovariance(grid *sphere.Grid) {
	for band := range r.nBands {
		cov := r.diffCov[band]

		for d := range r.nDirs {
			w := complex(grid.Weight(d), 0)
			l := r.h[band][d*2]
			rr := r.h[band][d*2+1]

			cov[0] += w * l * cmplx.Conj(l)
			cov[1] += w * l * cmplx.Conj(rr)
			cov[2] += w * rr * cmplx.Conj(l)
			cov[3] += w * rr * cmplx.Conj(rr)
		}

		for i := range cov {
			cov[i] /= complex(float64(r.nDirs), 0)
		}
	}
}

// NumBands returns the band count.
func (r *Rendered) NumBands() int { return r.nBands }

// NumDirections returns the grid size.
func (r *Rendered) NumDirections() int { return r.nDirs }

// Freqs returns the band centre frequencies in Hz. The slice is owned by the
// rendered set.
func (r *Rendered) Freqs() []float64 { return r.freqs }

// At returns the left and right ear transfer function for one band and grid
// direction.
func (r *Rendered) At(band, dir int) (left, right complex128) {
	return r.h[band][dir*2], r.h[band][dir*2+1]
}

// DiffuseCovariance returns the 2x2 binaural diffuse covariance for one
// band, row-major. The slice aliases the rendered set.
func (r *Rendered) DiffuseCovariance(band int) []complex128 {
	return r.diffCov[band]
}
