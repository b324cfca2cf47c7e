package hades

import "github.com/cwbudde/algo-spatial/tf"

// Parameters holds the per-band spatial parameters estimated from one block
// of analyzed audio.
//
// A container is created for one analysis configuration and refilled by
// every [Analysis.Apply] call. It may be read by multiple synthesis contexts
// or edited (e.g. by a [RadialEditor]) between analysis and synthesis.
type Parameters struct {
	nBands int

	// Diffuseness per band, in [0, 1].
	Diffuseness []float64

	// DoA is the estimated direction index into the measurement grid,
	// used as the beamforming target.
	DoA []int

	// Reproduction is the rendering direction index per band. Analysis
	// initializes it to the DoA estimate; editors may re-point it.
	Reproduction []int

	// GainDirect and GainDiffuse are extra per-band stream gain
	// multipliers, reset to 1 by each analysis call.
	GainDirect  []float64
	GainDiffuse []float64
}

// NewParameters creates a parameter container for the given analysis
// configuration.
func NewParameters(a *Analysis) *Parameters {
	n := a.NumBands()

	return &Parameters{
		nBands:       n,
		Diffuseness:  make([]float64, n),
		DoA:          make([]int, n),
		Reproduction: make([]int, n),
		GainDirect:   ones(n),
		GainDiffuse:  ones(n),
	}
}

// NumBands returns the band count the container was sized for.
func (p *Parameters) NumBands() int { return p.nBands }

// Signals holds the time-frequency data of one analyzed block: the per-band
// microphone TF signal and the raw (instantaneous, non-averaged) spatial
// covariance per band. The raw covariance feeds beamformers, which need
// instantaneous rather than smoothed statistics.
type Signals struct {
	nBands    int
	nMics     int
	timeSlots int

	// TF is shaped [band][mic][slot].
	TF [][][]complex128

	// Cov holds per band the row-major nMics x nMics covariance,
	// accumulated over the block's time slots.
	Cov [][]complex128
}

// NewSignals creates a signal container for the given analysis
// configuration.
func NewSignals(a *Analysis) *Signals {
	s := &Signals{
		nBands:    a.NumBands(),
		nMics:     a.NumMics(),
		timeSlots: a.TimeSlots(),
		TF:        tf.AllocFreq(a.NumBands(), a.NumMics(), a.TimeSlots()),
		Cov:       make([][]complex128, a.NumBands()),
	}

	for band := range s.Cov {
		s.Cov[band] = make([]complex128, s.nMics*s.nMics)
	}

	return s
}

// NumBands returns the band count the container was sized for.
func (s *Signals) NumBands() int { return s.nBands }

// NumMics returns the microphone count the container was sized for.
func (s *Signals) NumMics() int { return s.nMics }

// TimeSlots returns the per-block time-slot count.
func (s *Signals) TimeSlots() int { return s.timeSlots }

func ones(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 1
	}

	return out
}
