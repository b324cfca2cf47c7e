package hades

import (
	"errors"
	"fmt"
	"math"

	"github.com/cwbudde/algo-spatial/internal/cmat"
	"github.com/cwbudde/algo-spatial/sphere"
	"github.com/cwbudde/algo-spatial/steering"
	"github.com/cwbudde/algo-spatial/tf"
)

const (
	// MaxMics is the hard cap on array channels.
	MaxMics = 64

	defaultHopSize         = 128
	defaultCovarianceAvg   = 0.8
	maxCovarianceAveraging = 0.999
)

// Errors returned by the analysis engine.
var (
	ErrTooManyMics   = errors.New("hades: microphone count exceeds the maximum")
	ErrBlockMismatch = errors.New("hades: input length must equal the configured block size")
	ErrContainerSize = errors.New("hades: container does not match this configuration")
)

// DiffusenessEstimator selects the per-band diffuseness estimator. The set
// is closed; COMEDIE is currently the only variant.
type DiffusenessEstimator int

// DiffusenessCOMEDIE is the eigenvalue-spread diffuseness estimator.
const DiffusenessCOMEDIE DiffusenessEstimator = iota

// DoAEstimator selects the per-band direction-of-arrival estimator. The set
// is closed; subspace MUSIC is currently the only variant.
type DoAEstimator int

// DoAMUSIC is the noise-subspace (MUSIC) direction estimator.
const DoAMUSIC DoAEstimator = iota

type analysisConfig struct {
	hopSize int
	hybrid  bool
	covAvg  float64
	diffEst DiffusenessEstimator
	doaEst  DoAEstimator
}

func defaultAnalysisConfig() analysisConfig {
	return analysisConfig{
		hopSize: defaultHopSize,
		covAvg:  defaultCovarianceAvg,
		diffEst: DiffusenessCOMEDIE,
		doaEst:  DoAMUSIC,
	}
}

// AnalysisOption mutates construction-time analysis parameters.
type AnalysisOption func(*analysisConfig) error

// WithHopSize sets the filterbank hop size (power of two, default 128).
func WithHopSize(hopSize int) AnalysisOption {
	return func(cfg *analysisConfig) error {
		if hopSize <= 0 {
			return fmt.Errorf("hades: hop size must be positive: %d", hopSize)
		}

		cfg.hopSize = hopSize

		return nil
	}
}

// WithHybridMode enables the filterbank's high-resolution mode (finer bands,
// longer processing delay).
func WithHybridMode() AnalysisOption {
	return func(cfg *analysisConfig) error {
		cfg.hybrid = true
		return nil
	}
}

// WithCovarianceAveraging sets the initial one-pole covariance averaging
// coefficient in [0, 1). 0 disables temporal smoothing.
func WithCovarianceAveraging(coeff float64) AnalysisOption {
	return func(cfg *analysisConfig) error {
		if coeff < 0 || coeff >= 1 || math.IsNaN(coeff) {
			return fmt.Errorf("hades: covariance averaging must be in [0, 1): %f", coeff)
		}

		cfg.covAvg = coeff

		return nil
	}
}

// WithDiffusenessEstimator selects the diffuseness estimator.
func WithDiffusenessEstimator(est DiffusenessEstimator) AnalysisOption {
	return func(cfg *analysisConfig) error {
		if est != DiffusenessCOMEDIE {
			return fmt.Errorf("hades: unknown diffuseness estimator: %d", est)
		}

		cfg.diffEst = est

		return nil
	}
}

// WithDoAEstimator selects the direction-of-arrival estimator.
func WithDoAEstimator(est DoAEstimator) AnalysisOption {
	return func(cfg *analysisConfig) error {
		if est != DoAMUSIC {
			return fmt.Errorf("hades: unknown DoA estimator: %d", est)
		}

		cfg.doaEst = est

		return nil
	}
}

// Analysis estimates per-band spatial parameters from microphone-array
// blocks.
//
// An Analysis owns the steering/whitening tables built from the measured
// array responses and the temporally averaged per-band covariance that
// persists across calls. It supports one in-flight Apply at a time.
type Analysis struct {
	sampleRate float64
	blockSize  int
	timeSlots  int
	nMics      int
	nBands     int

	fb    *tf.Transform
	table *steering.Table

	diffEst DiffusenessEstimator
	doaEst  DoAEstimator

	covAvg float64

	// cxAvg is the temporally averaged covariance per band.
	cxAvg [][]complex128

	// scratch reused across Apply calls; the gonum-backed
	// eigendecomposition allocates its own workspaces.
	inBlock [][]float64
	slotVec []complex128
	whTmp   []complex128
	whCov   []complex128
}

// NewAnalysis creates an analysis engine for one array configuration.
//
// irs holds the measured array impulse responses shaped
// [grid direction][microphone][sample]; grid supplies the matching
// directions and integration weights. blockSize must be a positive multiple
// of the hop size. The engine starts from cleared state; [Analysis.Reset]
// returns it there.
func NewAnalysis(sampleRate float64, blockSize int, irs [][][]float64, grid *sphere.Grid, opts ...AnalysisOption) (*Analysis, error) {
	if sampleRate <= 0 || math.IsNaN(sampleRate) || math.IsInf(sampleRate, 0) {
		return nil, fmt.Errorf("hades: sample rate must be > 0 and finite: %f", sampleRate)
	}

	cfg := defaultAnalysisConfig()

	for _, opt := range opts {
		if opt == nil {
			continue
		}

		err := opt(&cfg)
		if err != nil {
			return nil, err
		}
	}

	if len(irs) == 0 || len(irs[0]) == 0 {
		return nil, steering.ErrNoMeasurements
	}

	nMics := len(irs[0])
	if nMics > MaxMics {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyMics, nMics, MaxMics)
	}

	var fbOpts []tf.Option
	if cfg.hybrid {
		fbOpts = append(fbOpts, tf.WithHybridMode())
	}

	fb, err := tf.New(nMics, nMics, cfg.hopSize, fbOpts...)
	if err != nil {
		return nil, err
	}

	timeSlots, err := fb.TimeSlots(blockSize)
	if err != nil {
		return nil, err
	}

	table, err := steering.NewTable(irs, grid, fb, sampleRate)
	if err != nil {
		return nil, err
	}

	a := &Analysis{
		sampleRate: sampleRate,
		blockSize:  blockSize,
		timeSlots:  timeSlots,
		nMics:      nMics,
		nBands:     fb.NumBands(),
		fb:         fb,
		table:      table,
		diffEst:    cfg.diffEst,
		doaEst:     cfg.doaEst,
		covAvg:     cfg.covAvg,
		cxAvg:      make([][]complex128, fb.NumBands()),
		inBlock:    tf.AllocTime(nMics, blockSize),
		slotVec:    make([]complex128, nMics),
		whTmp:      make([]complex128, nMics*nMics),
		whCov:      make([]complex128, nMics*nMics),
	}

	for band := range a.cxAvg {
		a.cxAvg[band] = make([]complex128, nMics*nMics)
	}

	return a, nil
}

// Reset clears the averaged covariance and all filterbank history.
func (a *Analysis) Reset() {
	for band := range a.cxAvg {
		cmat.Zero(a.cxAvg[band])
	}

	a.fb.ClearBuffers()
}

// NumBands returns the band count.
func (a *Analysis) NumBands() int { return a.nBands }

// NumMics returns the configured microphone count.
func (a *Analysis) NumMics() int { return a.nMics }

// BlockSize returns the configured block size in samples.
func (a *Analysis) BlockSize() int { return a.blockSize }

// TimeSlots returns the number of time slots per block.
func (a *Analysis) TimeSlots() int { return a.timeSlots }

// SampleRate returns the sample rate in Hz.
func (a *Analysis) SampleRate() float64 { return a.sampleRate }

// CentreFreqs returns the band centre frequencies in Hz. The slice is owned
// by the engine.
func (a *Analysis) CentreFreqs() []float64 { return a.table.Freqs() }

// ProcDelay returns the processing delay of the analysis/filterbank stage in
// samples.
func (a *Analysis) ProcDelay() int { return a.fb.ProcDelay() }

// Grid returns the measurement grid.
func (a *Analysis) Grid() *sphere.Grid { return a.table.Grid() }

// Table returns the steering/whitening table. Synthesis contexts clone it
// to decouple lifetimes.
func (a *Analysis) Table() *steering.Table { return a.table }

// CovarianceAveraging returns the covariance averaging coefficient.
func (a *Analysis) CovarianceAveraging() float64 { return a.covAvg }

// SetCovarianceAveraging tunes the covariance averaging coefficient; it is
// clamped to [0, 0.999] when applied.
func (a *Analysis) SetCovarianceAveraging(coeff float64) { a.covAvg = coeff }

// Apply analyzes one block of array audio, filling the parameter and signal
// containers.
//
// input holds one slice per channel, each blockSize samples long. Channels
// beyond the configured microphone count are ignored; missing channels are
// treated as silent.
func (a *Analysis) Apply(p *Parameters, s *Signals, input [][]float64) error {
	if p.nBands != a.nBands {
		return fmt.Errorf("%w: parameters sized for %d bands, want %d", ErrContainerSize, p.nBands, a.nBands)
	}

	if s.nBands != a.nBands || s.nMics != a.nMics || s.timeSlots != a.timeSlots {
		return fmt.Errorf("%w: signals sized for %d bands, %d mics, %d slots",
			ErrContainerSize, s.nBands, s.nMics, s.timeSlots)
	}

	for ch, data := range input {
		if ch >= a.nMics {
			break
		}

		if len(data) != a.blockSize {
			return fmt.Errorf("%w: channel %d has %d samples, want %d",
				ErrBlockMismatch, ch, len(data), a.blockSize)
		}
	}

	// Zero-fill missing channels, ignore extras.
	for m := range a.nMics {
		if m < len(input) {
			copy(a.inBlock[m], input[m])
		} else {
			for i := range a.inBlock[m] {
				a.inBlock[m][i] = 0
			}
		}
	}

	err := a.fb.Forward(s.TF, a.inBlock)
	if err != nil {
		return err
	}

	alpha := a.covAvg
	if alpha < 0 {
		alpha = 0
	} else if alpha > maxCovarianceAveraging {
		alpha = maxCovarianceAveraging
	}

	n := a.nMics

	for band := range a.nBands {
		// Instantaneous covariance over the block's time slots.
		cmat.Zero(s.Cov[band])

		for slot := range a.timeSlots {
			for m := range n {
				a.slotVec[m] = s.TF[band][m][slot]
			}

			cmat.OuterAcc(s.Cov[band], a.slotVec, n)
		}

		// One-pole temporal averaging.
		avg := a.cxAvg[band]
		for i := range avg {
			avg[i] = complex(alpha, 0)*avg[i] + complex(1-alpha, 0)*s.Cov[band][i]
		}

		// Whitened covariance: T * Cx * T^H.
		w := a.table.Whitening(band)
		cmat.Mul(a.whTmp, w, avg, n, n, n)
		cmat.MulConjTransB(a.whCov, a.whTmp, w, n, n, n)

		vals, vecs, err := cmat.EigHerm(a.whCov, n)
		if err != nil {
			return fmt.Errorf("hades: band %d eigendecomposition: %w", band, err)
		}

		p.Diffuseness[band] = comedie(vals)

		idx := musicDoA(vecs, a.table.WhitenedVectors(band), n, a.table.NumDirections(), 1)
		p.DoA[band] = idx
		p.Reproduction[band] = idx
		p.GainDirect[band] = 1
		p.GainDiffuse[band] = 1
	}

	return nil
}
