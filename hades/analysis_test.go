package hades

import (
	"errors"
	"math"
	"testing"

	"github.com/cwbudde/algo-spatial/sphere"
)

const (
	testRate  = 48000.0
	testBlock = 512
	testMics  = 4
	testIRLen = 32
)

// deltaGain gives every (direction, microphone) pair a distinct gain; the
// cross term keeps the resulting diffuse covariance full rank.
func deltaGain(d, m int) float64 {
	return 0.5 + 0.4*math.Sin(1+7*float64(d)+3*float64(m)+float64(d*m))
}

func horizontalGrid(t *testing.T) *sphere.Grid {
	t.Helper()

	dirs := make([]sphere.Direction, 8)
	for i := range dirs {
		dirs[i] = sphere.Direction{Azimuth: float64(45 * i)}
	}

	grid, err := sphere.NewGrid(dirs)
	if err != nil {
		t.Fatalf("NewGrid: %v", err)
	}

	return grid
}

func arrayResponses(nDirs int) [][][]float64 {
	irs := make([][][]float64, nDirs)
	for d := range irs {
		irs[d] = make([][]float64, testMics)
		for m := range irs[d] {
			ir := make([]float64, testIRLen)
			ir[0] = deltaGain(d, m)
			irs[d][m] = ir
		}
	}

	return irs
}

func newTestAnalysis(t *testing.T, opts ...AnalysisOption) *Analysis {
	t.Helper()

	grid := horizontalGrid(t)

	a, err := NewAnalysis(testRate, testBlock, arrayResponses(grid.Len()), grid, opts...)
	if err != nil {
		t.Fatalf("NewAnalysis: %v", err)
	}

	return a
}

// sineBlock fills input with the array's response to a plane wave from grid
// direction src carrying a pure tone, continuing the phase across blocks.
func sineBlock(input [][]float64, src, blockIdx int, freq float64) {
	for m := range input {
		g := deltaGain(src, m)
		for i := range input[m] {
			n := blockIdx*len(input[m]) + i
			input[m][i] = g * math.Sin(2*math.Pi*freq*float64(n)/testRate)
		}
	}
}

func TestComedie_Extremes(t *testing.T) {
	if got := comedie([]float64{1, 0, 0, 0}); got > 1e-12 {
		t.Fatalf("single plane wave: got %g, want 0", got)
	}

	if got := comedie([]float64{2, 2, 2, 2}); math.Abs(got-1) > 1e-12 {
		t.Fatalf("isotropic field: got %g, want 1", got)
	}
}

func TestComedie_Degenerate(t *testing.T) {
	if got := comedie([]float64{0, 0, 0, 0}); got != 1 {
		t.Fatalf("silence: got %g, want 1", got)
	}

	if got := comedie([]float64{5}); got != 1 {
		t.Fatalf("single eigenvalue: got %g, want 1", got)
	}
}

func TestMusicDoA_OrthogonalSteering(t *testing.T) {
	// Identity eigenvectors in ascending order: with one source the noise
	// subspace is spanned by e1 and e2. A steering vector along e3 has zero
	// noise projection and must win over one inside the noise subspace.
	n := 3
	vecs := make([]complex128, n*n)
	for i := range n {
		vecs[i*n+i] = 1
	}

	white := []complex128{
		1, 0, 0, // direction 0: inside the noise subspace
		0, 0, 1, // direction 1: orthogonal to it
	}

	if got := musicDoA(vecs, white, n, 2, 1); got != 1 {
		t.Fatalf("got direction %d, want 1", got)
	}
}

func TestAnalysis_CoherentSourceDirection(t *testing.T) {
	a := newTestAnalysis(t, WithCovarianceAveraging(0))

	p := NewParameters(a)
	s := NewSignals(a)

	input := make([][]float64, testMics)
	for m := range input {
		input[m] = make([]float64, testBlock)
	}

	// Band 32 of the 256-point filterbank sits exactly at 6 kHz.
	const (
		src  = 3
		band = 32
		freq = 6000.0
	)

	for blockIdx := range 3 {
		sineBlock(input, src, blockIdx, freq)

		err := a.Apply(p, s, input)
		if err != nil {
			t.Fatalf("Apply: %v", err)
		}
	}

	if p.DoA[band] != src {
		t.Fatalf("DoA: got %d, want %d", p.DoA[band], src)
	}

	if p.Reproduction[band] != src {
		t.Fatalf("Reproduction: got %d, want %d", p.Reproduction[band], src)
	}

	if p.Diffuseness[band] > 0.3 {
		t.Fatalf("coherent source diffuseness: got %g, want < 0.3", p.Diffuseness[band])
	}
}

func TestAnalysis_SilenceIsDiffuse(t *testing.T) {
	a := newTestAnalysis(t, WithCovarianceAveraging(0))

	p := NewParameters(a)
	s := NewSignals(a)

	input := make([][]float64, testMics)
	for m := range input {
		input[m] = make([]float64, testBlock)
	}

	err := a.Apply(p, s, input)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	for band := range a.NumBands() {
		if p.Diffuseness[band] != 1 {
			t.Fatalf("band %d: diffuseness %g, want 1", band, p.Diffuseness[band])
		}

		if math.IsNaN(p.Diffuseness[band]) {
			t.Fatalf("band %d: NaN diffuseness", band)
		}
	}
}

func TestAnalysis_ResetClearsAveraging(t *testing.T) {
	a := newTestAnalysis(t, WithCovarianceAveraging(0.9))

	p := NewParameters(a)
	s := NewSignals(a)

	input := make([][]float64, testMics)
	for m := range input {
		input[m] = make([]float64, testBlock)
	}

	for blockIdx := range 3 {
		sineBlock(input, 2, blockIdx, 6000)

		err := a.Apply(p, s, input)
		if err != nil {
			t.Fatalf("Apply: %v", err)
		}
	}

	a.Reset()

	for m := range input {
		for i := range input[m] {
			input[m][i] = 0
		}
	}

	err := a.Apply(p, s, input)
	if err != nil {
		t.Fatalf("Apply after Reset: %v", err)
	}

	// A cleared engine must not remember the earlier coherent field.
	if p.Diffuseness[32] != 1 {
		t.Fatalf("diffuseness after Reset: got %g, want 1", p.Diffuseness[32])
	}
}

func TestAnalysis_CovarianceAveragingSemantics(t *testing.T) {
	// Establish a long-lived source, switch direction for two blocks, and
	// report the direction estimate afterwards.
	lastDoA := func(coeff float64) int {
		a := newTestAnalysis(t, WithCovarianceAveraging(coeff))

		p := NewParameters(a)
		s := NewSignals(a)

		input := make([][]float64, testMics)
		for m := range input {
			input[m] = make([]float64, testBlock)
		}

		for blockIdx := range 12 {
			sineBlock(input, 1, blockIdx, 6000)

			err := a.Apply(p, s, input)
			if err != nil {
				t.Fatalf("Apply: %v", err)
			}
		}

		for blockIdx := 12; blockIdx < 14; blockIdx++ {
			sineBlock(input, 5, blockIdx, 6000)

			err := a.Apply(p, s, input)
			if err != nil {
				t.Fatalf("Apply: %v", err)
			}
		}

		return p.DoA[32]
	}

	// Without averaging the estimate follows the scene change instantly.
	if got := lastDoA(0); got != 5 {
		t.Fatalf("coeff 0: DoA %d after scene change, want 5", got)
	}

	// Near 1, the averaged covariance barely moves per block, so the
	// long-lived source keeps dominating the estimate.
	if got := lastDoA(0.999); got != 1 {
		t.Fatalf("coeff 0.999: DoA %d after scene change, want 1", got)
	}
}

func TestAnalysis_ChannelPadding(t *testing.T) {
	a := newTestAnalysis(t)

	p := NewParameters(a)
	s := NewSignals(a)

	// Fewer channels than microphones: missing ones are silent.
	short := [][]float64{make([]float64, testBlock), make([]float64, testBlock)}

	err := a.Apply(p, s, short)
	if err != nil {
		t.Fatalf("short input: %v", err)
	}

	// More channels than microphones: extras are ignored.
	long := make([][]float64, testMics+3)
	for i := range long {
		long[i] = make([]float64, testBlock)
	}

	err = a.Apply(p, s, long)
	if err != nil {
		t.Fatalf("long input: %v", err)
	}

	// Extra channels may have any length; configured ones must match.
	long[6] = make([]float64, 3)

	err = a.Apply(p, s, long)
	if err != nil {
		t.Fatalf("ragged extra channel: %v", err)
	}

	long[1] = make([]float64, testBlock-1)

	err = a.Apply(p, s, long)
	if !errors.Is(err, ErrBlockMismatch) {
		t.Fatalf("ragged configured channel: got %v, want ErrBlockMismatch", err)
	}
}

func TestAnalysis_ContainerMismatch(t *testing.T) {
	a := newTestAnalysis(t)
	other := newTestAnalysis(t, WithHopSize(256))

	p := NewParameters(other)
	s := NewSignals(a)

	input := make([][]float64, testMics)
	for m := range input {
		input[m] = make([]float64, testBlock)
	}

	err := a.Apply(p, s, input)
	if !errors.Is(err, ErrContainerSize) {
		t.Fatalf("got %v, want ErrContainerSize", err)
	}
}

func TestNewAnalysis_TooManyMics(t *testing.T) {
	grid, err := sphere.NewGrid([]sphere.Direction{{}})
	if err != nil {
		t.Fatalf("NewGrid: %v", err)
	}

	irs := make([][][]float64, 1)
	irs[0] = make([][]float64, MaxMics+1)
	for m := range irs[0] {
		irs[0][m] = make([]float64, testIRLen)
	}

	_, err = NewAnalysis(testRate, testBlock, irs, grid)
	if !errors.Is(err, ErrTooManyMics) {
		t.Fatalf("got %v, want ErrTooManyMics", err)
	}
}
