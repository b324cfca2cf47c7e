package tf

import (
	"errors"
	"fmt"
	"math"

	algofft "github.com/MeKo-Christian/algo-fft"
)

const (
	minHopSize = 16
	maxHopSize = 4096

	// standard resolution: 50% overlap, hybrid: 75% overlap.
	standardOverlap = 2
	hybridOverlap   = 4
)

// Errors returned by the filterbank.
var (
	ErrBlockLength   = errors.New("tf: block length must be a positive multiple of the hop size")
	ErrChannelCount  = errors.New("tf: channel count mismatch")
	ErrBufferShape   = errors.New("tf: buffer shape mismatch")
	ErrRaggedChannel = errors.New("tf: channels must have equal length")
)

type config struct {
	hybrid bool
}

// Option mutates construction-time filterbank parameters.
type Option func(*config) error

// WithHybridMode doubles the analysis window relative to the hop size,
// trading processing delay for finer frequency resolution in the low bands.
func WithHybridMode() Option {
	return func(cfg *config) error {
		cfg.hybrid = true
		return nil
	}
}

// Transform is a streaming forward/inverse STFT filterbank.
//
// A Transform carries per-channel history and overlap state between calls and
// supports a single in-flight Forward or Inverse at a time.
type Transform struct {
	nIn, nOut int
	hop       int
	winLen    int
	nBands    int
	hybrid    bool
	olaNorm   float64

	window []float64
	plan   *algofft.Plan[complex128]

	inHist [][]float64 // per input channel, winLen samples
	outOla [][]float64 // per output channel, winLen samples

	frame []complex128
	spec  []complex128
}

// New creates a filterbank with nIn analysis channels, nOut synthesis
// channels, and the given hop size. The hop size must be a power of two in
// [16, 4096].
func New(nIn, nOut, hopSize int, opts ...Option) (*Transform, error) {
	if nIn <= 0 || nOut <= 0 {
		return nil, fmt.Errorf("tf: channel counts must be positive: in=%d out=%d", nIn, nOut)
	}

	if hopSize < minHopSize || hopSize > maxHopSize || hopSize&(hopSize-1) != 0 {
		return nil, fmt.Errorf("tf: hop size must be a power of two in [%d, %d]: %d",
			minHopSize, maxHopSize, hopSize)
	}

	var cfg config
	for _, opt := range opts {
		if opt == nil {
			continue
		}

		err := opt(&cfg)
		if err != nil {
			return nil, err
		}
	}

	overlap := standardOverlap
	if cfg.hybrid {
		overlap = hybridOverlap
	}

	winLen := overlap * hopSize

	plan, err := algofft.NewPlan64(winLen)
	if err != nil {
		return nil, fmt.Errorf("tf: FFT plan: %w", err)
	}

	t := &Transform{
		nIn:     nIn,
		nOut:    nOut,
		hop:     hopSize,
		winLen:  winLen,
		nBands:  winLen/2 + 1,
		hybrid:  cfg.hybrid,
		olaNorm: float64(overlap) / 2,
		window:  sqrtHann(winLen),
		plan:    plan,
		inHist:  make([][]float64, nIn),
		outOla:  make([][]float64, nOut),
		frame:   make([]complex128, winLen),
		spec:    make([]complex128, winLen),
	}

	for ch := range t.inHist {
		t.inHist[ch] = make([]float64, winLen)
	}

	for ch := range t.outOla {
		t.outOla[ch] = make([]float64, winLen)
	}

	return t, nil
}

// NumBands returns the number of frequency bands per channel.
func (t *Transform) NumBands() int { return t.nBands }

// HopSize returns the hop size in samples.
func (t *Transform) HopSize() int { return t.hop }

// HybridMode reports whether the high-resolution mode is enabled.
func (t *Transform) HybridMode() bool { return t.hybrid }

// ProcDelay returns the fixed analysis-synthesis round-trip delay in samples.
func (t *Transform) ProcDelay() int { return t.winLen - t.hop }

// TimeSlots returns the number of time slots produced for a block of
// blockLen samples, or an error if blockLen is not a multiple of the hop.
func (t *Transform) TimeSlots(blockLen int) (int, error) {
	if blockLen <= 0 || blockLen%t.hop != 0 {
		return 0, fmt.Errorf("%w: block=%d hop=%d", ErrBlockLength, blockLen, t.hop)
	}

	return blockLen / t.hop, nil
}

// CentreFreqs returns the band centre frequencies in Hz for the given sample
// rate.
func (t *Transform) CentreFreqs(sampleRate float64) []float64 {
	freqs := make([]float64, t.nBands)
	for k := range freqs {
		freqs[k] = float64(k) * sampleRate / float64(t.winLen)
	}

	return freqs
}

// ClearBuffers zeroes all streaming history and overlap state.
func (t *Transform) ClearBuffers() {
	for ch := range t.inHist {
		for i := range t.inHist[ch] {
			t.inHist[ch][i] = 0
		}
	}

	for ch := range t.outOla {
		for i := range t.outOla[ch] {
			t.outOla[ch][i] = 0
		}
	}
}

// Forward transforms one block of time-domain audio into the frequency
// domain. block must hold nIn channels of equal length (a multiple of the
// hop size); freq must be shaped [NumBands()][nIn][TimeSlots(blockLen)],
// as produced by [AllocFreq].
func (t *Transform) Forward(freq [][][]complex128, block [][]float64) error {
	if len(block) != t.nIn {
		return fmt.Errorf("%w: got %d input channels, want %d", ErrChannelCount, len(block), t.nIn)
	}

	slots, err := t.checkBlock(block)
	if err != nil {
		return err
	}

	err = t.checkFreq(freq, t.nIn, slots)
	if err != nil {
		return err
	}

	for ch := range block {
		hist := t.inHist[ch]

		for slot := range slots {
			copy(hist, hist[t.hop:])
			copy(hist[t.winLen-t.hop:], block[ch][slot*t.hop:(slot+1)*t.hop])

			for i := range t.frame {
				t.frame[i] = complex(hist[i]*t.window[i], 0)
			}

			err = t.plan.Forward(t.spec, t.frame)
			if err != nil {
				return fmt.Errorf("tf: forward FFT failed: %w", err)
			}

			for band := range t.nBands {
				freq[band][ch][slot] = t.spec[band]
			}
		}
	}

	return nil
}

// Inverse transforms frequency-domain data back to the time domain via
// windowed overlap-add. freq must be shaped [NumBands()][nOut][slots]; block
// must hold nOut channels of slots*HopSize() samples each.
func (t *Transform) Inverse(block [][]float64, freq [][][]complex128) error {
	if len(block) != t.nOut {
		return fmt.Errorf("%w: got %d output channels, want %d", ErrChannelCount, len(block), t.nOut)
	}

	slots, err := t.checkBlock(block)
	if err != nil {
		return err
	}

	err = t.checkFreq(freq, t.nOut, slots)
	if err != nil {
		return err
	}

	for ch := range block {
		ola := t.outOla[ch]

		for slot := range slots {
			// Rebuild the full conjugate-symmetric spectrum.
			for band := range t.nBands {
				t.spec[band] = freq[band][ch][slot]
			}

			for k := t.nBands; k < t.winLen; k++ {
				c := t.spec[t.winLen-k]
				t.spec[k] = complex(real(c), -imag(c))
			}

			err = t.plan.Inverse(t.frame, t.spec)
			if err != nil {
				return fmt.Errorf("tf: inverse FFT failed: %w", err)
			}

			for i := range ola {
				ola[i] += real(t.frame[i]) * t.window[i] / t.olaNorm
			}

			copy(block[ch][slot*t.hop:(slot+1)*t.hop], ola[:t.hop])
			copy(ola, ola[t.hop:])

			for i := t.winLen - t.hop; i < t.winLen; i++ {
				ola[i] = 0
			}
		}
	}

	return nil
}

func (t *Transform) checkBlock(block [][]float64) (int, error) {
	if len(block) == 0 {
		return 0, ErrChannelCount
	}

	n := len(block[0])
	for _, ch := range block {
		if len(ch) != n {
			return 0, ErrRaggedChannel
		}
	}

	return t.TimeSlots(n)
}

func (t *Transform) checkFreq(freq [][][]complex128, nCh, slots int) error {
	if len(freq) != t.nBands {
		return fmt.Errorf("%w: got %d bands, want %d", ErrBufferShape, len(freq), t.nBands)
	}

	for _, band := range freq {
		if len(band) != nCh {
			return fmt.Errorf("%w: got %d channels, want %d", ErrBufferShape, len(band), nCh)
		}

		for _, ch := range band {
			if len(ch) != slots {
				return fmt.Errorf("%w: got %d slots, want %d", ErrBufferShape, len(ch), slots)
			}
		}
	}

	return nil
}

// AllocFreq allocates a frequency-domain buffer shaped [bands][channels][slots].
func AllocFreq(nBands, nCh, nSlots int) [][][]complex128 {
	out := make([][][]complex128, nBands)
	for band := range out {
		out[band] = make([][]complex128, nCh)
		for ch := range out[band] {
			out[band][ch] = make([]complex128, nSlots)
		}
	}

	return out
}

// AllocTime allocates a time-domain buffer shaped [channels][samples].
func AllocTime(nCh, nSamples int) [][]float64 {
	out := make([][]float64, nCh)
	for ch := range out {
		out[ch] = make([]float64, nSamples)
	}

	return out
}

func sqrtHann(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = math.Sqrt(0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n)))
	}

	return w
}
