package steering

import (
	"math"
	"math/cmplx"
	"testing"

	"github.com/cwbudde/algo-spatial/internal/cmat"
	"github.com/cwbudde/algo-spatial/sphere"
	"github.com/cwbudde/algo-spatial/tf"
)

const sampleRate = 48000.0

// deltaArray builds a broadband test array: every impulse response is a
// scaled delta, with gains that vary deterministically per direction and mic.
func deltaArray(nGrid, nMics, irLen int) [][][]float64 {
	irs := make([][][]float64, nGrid)
	for d := range irs {
		irs[d] = make([][]float64, nMics)
		for m := range irs[d] {
			ir := make([]float64, irLen)
			ir[0] = deltaGain(d, m)
			irs[d][m] = ir
		}
	}
	return irs
}

func deltaGain(d, m int) float64 {
	return 0.5 + 0.4*math.Sin(float64(1+d*7+m*3+d*m))
}

func newTestTable(t *testing.T, nGrid, nMics int) (*Table, *tf.Transform) {
	t.Helper()

	grid, err := sphere.NewGrid(sphere.Fibonacci(nGrid))
	if err != nil {
		t.Fatalf("NewGrid: %v", err)
	}

	fb, err := tf.New(nMics, nMics, 64)
	if err != nil {
		t.Fatalf("tf.New: %v", err)
	}

	table, err := NewTable(deltaArray(nGrid, nMics, 16), grid, fb, sampleRate)
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}

	return table, fb
}

func TestNewTable_Validation(t *testing.T) {
	grid, _ := sphere.NewGrid(sphere.Fibonacci(8))
	fb, _ := tf.New(4, 4, 64)

	if _, err := NewTable(nil, grid, fb, sampleRate); err == nil {
		t.Error("empty set: expected error")
	}

	if _, err := NewTable(deltaArray(4, 4, 16), grid, fb, sampleRate); err == nil {
		t.Error("grid mismatch: expected error")
	}

	ragged := deltaArray(8, 4, 16)
	ragged[3] = ragged[3][:2]
	if _, err := NewTable(ragged, grid, fb, sampleRate); err == nil {
		t.Error("ragged channel count: expected error")
	}
}

func TestNewTable_PeakNormalization(t *testing.T) {
	table, _ := newTestTable(t, 12, 3)

	// Find the direction/mic with the largest delta gain; its steering
	// magnitude must be 1 in every band after global normalization.
	peak := 0.0
	peakD, peakM := 0, 0
	for d := range 12 {
		for m := range 3 {
			if g := deltaGain(d, m); g > peak {
				peak, peakD, peakM = g, d, m
			}
		}
	}

	for band := 0; band < table.NumBands(); band += 13 {
		got := cmplx.Abs(table.Vector(band, peakD)[peakM])
		if math.Abs(got-1) > 1e-9 {
			t.Errorf("band %d: peak steering magnitude got %g, want 1", band, got)
		}
	}
}

func TestNewTable_SteeringMatchesGains(t *testing.T) {
	table, _ := newTestTable(t, 12, 3)

	peak := 0.0
	for d := range 12 {
		for m := range 3 {
			if g := deltaGain(d, m); g > peak {
				peak = g
			}
		}
	}

	// Delta responses are flat: every band carries the per-direction gain.
	for _, band := range []int{0, 10, 40} {
		for d := 0; d < 12; d += 5 {
			for m := range 3 {
				want := deltaGain(d, m) / peak
				got := cmplx.Abs(table.Vector(band, d)[m])
				if math.Abs(got-want) > 1e-9 {
					t.Errorf("band %d dir %d mic %d: got %g, want %g", band, d, m, got, want)
				}
			}
		}
	}
}

func TestWhitening_MapsDiffuseCovarianceToIdentity(t *testing.T) {
	table, _ := newTestTable(t, 16, 4)
	n := table.NumMics()

	tmp := make([]complex128, n*n)
	out := make([]complex128, n*n)

	for _, band := range []int{1, 20, 60} {
		w := table.Whitening(band)
		cd := table.DiffuseCovariance(band)

		cmat.Mul(tmp, w, cd, n, n, n)
		cmat.MulConjTransB(out, tmp, w, n, n, n)

		for i := range n {
			for j := range n {
				want := 0.0
				if i == j {
					want = 1
				}
				if cmplx.Abs(out[i*n+j]-complex(want, 0)) > 1e-6 {
					t.Fatalf("band %d: whitened covariance at (%d,%d) = %v, want %g",
						band, i, j, out[i*n+j], want)
				}
			}
		}
	}
}

func TestClone_Independent(t *testing.T) {
	table, _ := newTestTable(t, 8, 3)
	clone := table.Clone()

	orig := table.Vector(5, 2)[0]
	clone.steer[5][2*3] = 123

	if table.Vector(5, 2)[0] != orig {
		t.Error("mutating clone changed the original table")
	}
	if clone.NumBands() != table.NumBands() || clone.NumMics() != table.NumMics() {
		t.Error("clone dimensions differ from original")
	}
}
