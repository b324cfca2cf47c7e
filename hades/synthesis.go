package hades

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/cwbudde/algo-spatial/hrtf"
	"github.com/cwbudde/algo-spatial/internal/cmat"
	"github.com/cwbudde/algo-spatial/steering"
	"github.com/cwbudde/algo-spatial/tf"
)

const (
	defaultSynthesisAvg   = 0.5
	maxSynthesisAveraging = 0.99

	// synthEps regularizes divisions in the per-band mixing design.
	synthEps = 2.23e-9

	// hrtfGainCap bounds the per-ear HRTF magnitude compensation. If either
	// ear exceeds it the compensation is suspect and both ears fall back to
	// unity to preserve the interaural level difference.
	hrtfGainCap = 4.0

	// diffuseEQCap bounds the diffuse-stream equalizer at +9 dB.
	diffuseEQCap = 2.8183829312644537

	mvdrLoading = 10.0
)

// Beamformer selects the direct-stream beamforming design.
type Beamformer int

const (
	// BeamformerNone passes the two reference sensors through unchanged.
	BeamformerNone Beamformer = iota

	// BeamformerFilterAndSum matches the relative transfer function at the
	// estimated direction, one beam per ear.
	BeamformerFilterAndSum

	// BeamformerMVDR minimizes the output variance under a distortionless
	// constraint toward the estimated direction, using the block's
	// instantaneous covariance with diagonal loading.
	BeamformerMVDR
)

type synthesisConfig struct {
	beam     Beamformer
	covMatch bool
	synAvg   float64
	interp   hrtf.Interpolation
}

func defaultSynthesisConfig() synthesisConfig {
	return synthesisConfig{
		beam:   BeamformerFilterAndSum,
		synAvg: defaultSynthesisAvg,
		interp: hrtf.InterpolationTriangular,
	}
}

// SynthesisOption mutates construction-time synthesis parameters.
type SynthesisOption func(*synthesisConfig) error

// WithBeamformer selects the direct-stream beamformer.
func WithBeamformer(b Beamformer) SynthesisOption {
	return func(cfg *synthesisConfig) error {
		if b != BeamformerNone && b != BeamformerFilterAndSum && b != BeamformerMVDR {
			return fmt.Errorf("hades: unknown beamformer: %d", b)
		}

		cfg.beam = b

		return nil
	}
}

// WithCovarianceMatching enables optimal-mixing covariance matching: the
// prototype mixing matrix is corrected per band so the rendered output
// reproduces the target binaural covariance.
func WithCovarianceMatching() SynthesisOption {
	return func(cfg *synthesisConfig) error {
		cfg.covMatch = true
		return nil
	}
}

// WithSynthesisAveraging sets the initial one-pole mixing-matrix smoothing
// coefficient in [0, 1). 0 disables smoothing.
func WithSynthesisAveraging(coeff float64) SynthesisOption {
	return func(cfg *synthesisConfig) error {
		if coeff < 0 || coeff >= 1 || math.IsNaN(coeff) {
			return fmt.Errorf("hades: synthesis averaging must be in [0, 1): %f", coeff)
		}

		cfg.synAvg = coeff

		return nil
	}
}

// WithInterpolation selects the HRTF interpolation policy.
func WithInterpolation(mode hrtf.Interpolation) SynthesisOption {
	return func(cfg *synthesisConfig) error {
		if mode != hrtf.InterpolationNearest && mode != hrtf.InterpolationTriangular {
			return fmt.Errorf("%w: %d", hrtf.ErrInterpolation, mode)
		}

		cfg.interp = mode

		return nil
	}
}

// Synthesis renders analyzed blocks to binaural audio.
//
// A Synthesis clones the analysis steering table and pre-renders the HRTF
// set, so multiple synthesis contexts can render the same analysis output
// concurrently with different settings. It supports one in-flight Apply at a
// time.
type Synthesis struct {
	sampleRate float64
	blockSize  int
	timeSlots  int
	nMics      int
	nBands     int

	refs [2]int

	fb    *tf.Transform
	table *steering.Table
	bin   *hrtf.Rendered

	beam     Beamformer
	covMatch bool
	synAvg   float64

	// eq is the per-band output equalizer; balance is the per-band
	// direct/ambient balance in [0, 2] (0 ambient only, 1 neutral, 2 direct
	// only). Both are exposed for live adjustment between Apply calls.
	eq      []float64
	balance []float64

	// diffEQ matches the diffuse stream's reference-sensor energy to the
	// binaural diffuse-field energy; binDiffNorm is the 2x2 binaural diffuse
	// covariance trace-normalized to 2.
	diffEQ      []float64
	binDiffNorm [][]complex128

	// mix is the smoothed 2 x nMics mixing matrix per band.
	mix [][]complex128

	// scratch reused across Apply calls; the gonum-backed solves and the
	// covariance matching allocate their own workspaces.
	newM     []complex128
	protoM   []complex128
	rtf      []complex128
	sol      []complex128
	cxReg    []complex128
	target   []complex128
	outFreq  [][][]complex128
	outBlock [][]float64
}

// NewSynthesis creates a synthesis context bound to an analysis
// configuration.
//
// set is the HRTF measurement set; refSensors names the two array channels
// (left, right) that act as binaural reference sensors for the pass-through
// and diffuse paths. The set's sample rate must match the analysis rate.
func NewSynthesis(a *Analysis, set *hrtf.Set, refSensors [2]int, opts ...SynthesisOption) (*Synthesis, error) {
	cfg := defaultSynthesisConfig()

	for _, opt := range opts {
		if opt == nil {
			continue
		}

		err := opt(&cfg)
		if err != nil {
			return nil, err
		}
	}

	for _, ref := range refSensors {
		if ref < 0 || ref >= a.nMics {
			return nil, fmt.Errorf("hades: reference sensor %d out of range [0, %d)", ref, a.nMics)
		}
	}

	if refSensors[0] == refSensors[1] {
		return nil, fmt.Errorf("hades: reference sensors must be distinct: %d", refSensors[0])
	}

	var fbOpts []tf.Option
	if a.fb.HybridMode() {
		fbOpts = append(fbOpts, tf.WithHybridMode())
	}

	fb, err := tf.New(2, 2, a.fb.HopSize(), fbOpts...)
	if err != nil {
		return nil, err
	}

	bin, err := hrtf.Render(set, a.Grid(), fb, a.sampleRate, cfg.interp)
	if err != nil {
		return nil, err
	}

	n := a.nMics
	nBands := a.nBands

	s := &Synthesis{
		sampleRate:  a.sampleRate,
		blockSize:   a.blockSize,
		timeSlots:   a.timeSlots,
		nMics:       n,
		nBands:      nBands,
		refs:        refSensors,
		fb:          fb,
		table:       a.table.Clone(),
		bin:         bin,
		beam:        cfg.beam,
		covMatch:    cfg.covMatch,
		synAvg:      cfg.synAvg,
		eq:          ones(nBands),
		balance:     ones(nBands),
		diffEQ:      make([]float64, nBands),
		binDiffNorm: make([][]complex128, nBands),
		mix:         make([][]complex128, nBands),
		newM:        make([]complex128, 2*n),
		protoM:      make([]complex128, 2*n),
		rtf:         make([]complex128, n),
		sol:         make([]complex128, n),
		cxReg:       make([]complex128, n*n),
		target:      make([]complex128, 4),
		outFreq:     tf.AllocFreq(nBands, 2, a.timeSlots),
		outBlock:    tf.AllocTime(2, a.blockSize),
	}

	for band := range nBands {
		s.mix[band] = make([]complex128, 2*n)

		binDiff := bin.DiffuseCovariance(band)
		binTrace := real(binDiff[0]) + real(binDiff[3])

		arrayDiff := s.table.DiffuseCovariance(band)
		arrayPow := 0.5 * (real(arrayDiff[refSensors[0]*n+refSensors[0]]) +
			real(arrayDiff[refSensors[1]*n+refSensors[1]]))

		s.diffEQ[band] = math.Min(math.Sqrt(binTrace/2/(arrayPow+synthEps)), diffuseEQCap)

		s.binDiffNorm[band] = make([]complex128, 4)
		norm := complex(2/(binTrace+synthEps), 0)
		for i := range 4 {
			s.binDiffNorm[band][i] = binDiff[i] * norm
		}
	}

	return s, nil
}

// Reset clears the smoothed mixing matrices and all filterbank history.
func (s *Synthesis) Reset() {
	for band := range s.mix {
		cmat.Zero(s.mix[band])
	}

	s.fb.ClearBuffers()
}

// NumBands returns the band count.
func (s *Synthesis) NumBands() int { return s.nBands }

// BlockSize returns the configured block size in samples.
func (s *Synthesis) BlockSize() int { return s.blockSize }

// ProcDelay returns the extra delay of the synthesis stage in samples. The
// synthesis filterbank inverts the analysis transform, so its delay is
// already accounted for by [Analysis.ProcDelay].
func (s *Synthesis) ProcDelay() int { return 0 }

// EQ returns the per-band output equalizer. The slice is live: edits apply
// from the next call on. Values are clamped to be non-negative when applied.
func (s *Synthesis) EQ() []float64 { return s.eq }

// StreamBalance returns the per-band direct/ambient balance in [0, 2]. The
// slice is live: edits apply from the next call on.
func (s *Synthesis) StreamBalance() []float64 { return s.balance }

// SynthesisAveraging returns the mixing-matrix smoothing coefficient.
func (s *Synthesis) SynthesisAveraging() float64 { return s.synAvg }

// SetSynthesisAveraging tunes the mixing-matrix smoothing coefficient; it is
// clamped to [0, 0.99] when applied.
func (s *Synthesis) SetSynthesisAveraging(coeff float64) { s.synAvg = coeff }

// Apply renders one analyzed block to binaural output.
//
// output receives the rendered block: channel 0 left, channel 1 right, any
// further channels zeroed. Each provided channel must be blockSize samples
// long.
func (s *Synthesis) Apply(p *Parameters, sig *Signals, output [][]float64) error {
	if p.nBands != s.nBands {
		return fmt.Errorf("%w: parameters sized for %d bands, want %d", ErrContainerSize, p.nBands, s.nBands)
	}

	if sig.nBands != s.nBands || sig.nMics != s.nMics || sig.timeSlots != s.timeSlots {
		return fmt.Errorf("%w: signals sized for %d bands, %d mics, %d slots",
			ErrContainerSize, sig.nBands, sig.nMics, sig.timeSlots)
	}

	for ch, data := range output {
		if len(data) != s.blockSize {
			return fmt.Errorf("%w: output channel %d has %d samples, want %d",
				ErrBlockMismatch, ch, len(data), s.blockSize)
		}
	}

	beta := s.synAvg
	if beta < 0 {
		beta = 0
	} else if beta > maxSynthesisAveraging {
		beta = maxSynthesisAveraging
	}

	n := s.nMics

	for band := range s.nBands {
		psi := p.Diffuseness[band]
		if psi < 0 || psi > 1 || math.IsNaN(psi) {
			return fmt.Errorf("hades: band %d diffuseness out of range: %f", band, psi)
		}

		doa := p.DoA[band]
		rep := p.Reproduction[band]
		if doa < 0 || doa >= s.table.NumDirections() || rep < 0 || rep >= s.table.NumDirections() {
			return fmt.Errorf("hades: band %d direction index out of range: doa=%d rep=%d", band, doa, rep)
		}

		err := s.designMixing(band, psi, doa, rep, p, sig)
		if err != nil {
			return err
		}

		// One-pole smoothing, then apply to the TF signal.
		mix := s.mix[band]
		for i := range mix {
			mix[i] = complex(beta, 0)*mix[i] + complex(1-beta, 0)*s.newM[i]
		}

		for ear := range 2 {
			row := mix[ear*n : (ear+1)*n]

			for slot := range s.timeSlots {
				var sum complex128
				for m := range n {
					sum += row[m] * sig.TF[band][m][slot]
				}

				s.outFreq[band][ear][slot] = sum
			}
		}
	}

	err := s.fb.Inverse(s.outBlock, s.outFreq)
	if err != nil {
		return err
	}

	for ch := range output {
		if ch < 2 {
			copy(output[ch], s.outBlock[ch])
		} else {
			for i := range output[ch] {
				output[ch][i] = 0
			}
		}
	}

	return nil
}

// designMixing fills s.newM with the prototype (and optionally
// covariance-matched) 2 x nMics mixing matrix for one band.
func (s *Synthesis) designMixing(band int, psi float64, doa, rep int, p *Parameters, sig *Signals) error {
	n := s.nMics

	// Energy split between the direct and ambient streams.
	bal := s.balance[band]
	if bal < 0 {
		bal = 0
	} else if bal > 2 {
		bal = 2
	}

	gDir, gAmb := bal, 1.0
	if bal >= 1 {
		gDir, gAmb = 1, 2-bal
	}

	gDir *= p.GainDirect[band]
	gAmb *= p.GainDiffuse[band]

	steer := s.table.Vector(band, doa)
	hL, hR := s.bin.At(band, rep)
	ears := [2]complex128{hL, hR}

	// Per-ear HRTF magnitude compensation relative to the reference sensor's
	// level at the estimated direction.
	var gains [2]float64
	for ear := range 2 {
		gains[ear] = cmplx.Abs(ears[ear]) / (cmplx.Abs(steer[s.refs[ear]]) + synthEps)
	}

	if gains[0] > hrtfGainCap || gains[1] > hrtfGainCap {
		gains[0], gains[1] = 1, 1
	}

	cmat.Zero(s.newM)

	for ear := range 2 {
		row := s.newM[ear*n : (ear+1)*n]

		switch s.beam {
		case BeamformerNone:
			row[s.refs[ear]] = complex(gDir*(1-psi), 0)

		case BeamformerFilterAndSum:
			s.relativeTransfer(steer, s.refs[ear])

			var norm float64
			for _, c := range s.rtf {
				norm += real(c)*real(c) + imag(c)*imag(c)
			}

			scale := complex(gDir*(1-psi)*gains[ear]/(norm+synthEps), 0)
			for m := range n {
				row[m] = cmplx.Conj(s.rtf[m]) * scale
			}

		case BeamformerMVDR:
			err := s.mvdrWeights(sig.Cov[band], steer, s.refs[ear])
			if err != nil {
				return fmt.Errorf("hades: band %d MVDR: %w", band, err)
			}

			scale := complex(gDir*(1-psi)*gains[ear], 0)
			for m := range n {
				row[m] = cmplx.Conj(s.sol[m]) * scale
			}
		}

		// Ambient stream: the equalized reference sensor.
		row[s.refs[ear]] += complex(gAmb*psi*s.diffEQ[band], 0)
	}

	if s.covMatch {
		err := s.matchCovariance(band, psi, gDir, gAmb, ears, sig.Cov[band])
		if err != nil {
			return fmt.Errorf("hades: band %d covariance matching: %w", band, err)
		}
	}

	bandEQ := s.eq[band]
	if bandEQ < 0 || math.IsNaN(bandEQ) {
		bandEQ = 0
	}

	cmat.Scale(s.newM, complex(bandEQ, 0))

	return nil
}

// relativeTransfer fills s.rtf with the steering vector normalized to the
// reference sensor, with a regularized division.
func (s *Synthesis) relativeTransfer(steer []complex128, ref int) {
	den := steer[ref]
	inv := cmplx.Conj(den) / complex(real(den)*real(den)+imag(den)*imag(den)+synthEps, 0)

	for m := range s.rtf {
		s.rtf[m] = steer[m] * inv
	}
}

// mvdrWeights fills s.sol with the minimum-variance distortionless weights
// toward the relative steering vector, using diagonally loaded instantaneous
// covariance. Degenerate bands (silence) yield zero weights.
func (s *Synthesis) mvdrWeights(cov, steer []complex128, ref int) error {
	n := s.nMics

	tr := real(cmat.Trace(cov, n))
	if tr < synthEps {
		cmat.Zero(s.sol)
		return nil
	}

	s.relativeTransfer(steer, ref)

	loading := complex(mvdrLoading*tr/float64(n)+synthEps, 0)

	copy(s.cxReg, cov)
	for i := range n {
		s.cxReg[i*n+i] += loading
	}

	err := cmat.Solve(s.sol, s.cxReg, s.rtf, n, 1)
	if err != nil {
		return err
	}

	den := cmat.ConjDot(s.rtf, s.sol)
	den += complex(synthEps, 0)

	for m := range n {
		s.sol[m] /= den
	}

	return nil
}

// matchCovariance replaces s.newM with the mixing matrix that maps the
// band's input covariance to the parametric target binaural covariance,
// using the current prototype as the least-squares reference.
func (s *Synthesis) matchCovariance(band int, psi, gDir, gAmb float64, ears [2]complex128, cov []complex128) error {
	n := s.nMics

	energy := real(cmat.Trace(cov, n)) / float64(n)
	if energy < synthEps {
		// Nothing to match against; keep the prototype.
		return nil
	}

	// Target: direct energy through the HRTF pair plus ambient energy with
	// the binaural diffuse-field coherence.
	dirW := complex(gDir*(1-psi)*energy, 0)
	ambW := complex(gAmb*psi*energy, 0)

	nd := s.binDiffNorm[band]
	for i := range 2 {
		for j := range 2 {
			s.target[i*2+j] = dirW*ears[i]*cmplx.Conj(ears[j]) + ambW*nd[i*2+j]
		}
	}

	copy(s.protoM, s.newM)

	return cmat.MatchMixing(s.newM, s.protoM, cov, s.target, 2, n)
}
