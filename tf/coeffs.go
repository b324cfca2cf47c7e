package tf

import (
	"errors"
	"fmt"
)

// ErrEmptyResponse reports an impulse-response set with no samples.
var ErrEmptyResponse = errors.New("tf: empty impulse response")

// FilterbankCoeffs projects a multichannel impulse response onto the
// filterbank's band structure, returning one complex coefficient per band
// and channel, shaped [NumBands()][len(irs)].
//
// Responses longer than the FFT length are time-aliased before the
// transform, which samples the exact transfer function at the band centre
// frequencies. Channels may have different lengths.
func (t *Transform) FilterbankCoeffs(irs [][]float64) ([][]complex128, error) {
	if len(irs) == 0 {
		return nil, ErrEmptyResponse
	}

	out := make([][]complex128, t.nBands)
	for band := range out {
		out[band] = make([]complex128, len(irs))
	}

	folded := make([]complex128, t.winLen)

	for ch, ir := range irs {
		if len(ir) == 0 {
			return nil, fmt.Errorf("%w: channel %d", ErrEmptyResponse, ch)
		}

		for i := range folded {
			folded[i] = 0
		}

		for i, v := range ir {
			folded[i%t.winLen] += complex(v, 0)
		}

		err := t.plan.Forward(t.spec, folded)
		if err != nil {
			return nil, fmt.Errorf("tf: coefficient FFT failed: %w", err)
		}

		for band := range t.nBands {
			out[band][ch] = t.spec[band]
		}
	}

	return out, nil
}
