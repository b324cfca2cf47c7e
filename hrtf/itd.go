package hrtf

import "math"

const (
	// itdLowpassHz bounds ITD estimation to the frequency range where
	// interaural time cues dominate.
	itdLowpassHz = 1500.0

	// itdMaxSeconds caps the correlation lag search (beyond any human ITD).
	itdMaxSeconds = 1.1e-3
)

// estimateITD returns the interaural time difference in seconds for one
// HRIR pair, positive when the left ear leads.
//
// Both responses are low-passed with an identical one-pole filter (the
// common phase shift cancels in the correlation) and the lag maximizing the
// cross-correlation within the physiological range is taken.
func estimateITD(left, right []float64, sampleRate float64) float64 {
	l := onePoleLowpass(left, sampleRate)
	r := onePoleLowpass(right, sampleRate)

	maxLag := int(math.Round(itdMaxSeconds * sampleRate))
	if maxLag < 1 {
		maxLag = 1
	}

	bestLag := 0
	bestCorr := math.Inf(-1)

	for lag := -maxLag; lag <= maxLag; lag++ {
		var corr float64
		for n := range l {
			j := n + lag
			if j < 0 || j >= len(r) {
				continue
			}
			corr += l[n] * r[j]
		}

		if corr > bestCorr {
			bestCorr = corr
			bestLag = lag
		}
	}

	return float64(bestLag) / sampleRate
}

func onePoleLowpass(in []float64, sampleRate float64) []float64 {
	c := 1 - math.Exp(-2*math.Pi*itdLowpassHz/sampleRate)

	out := make([]float64, len(in))
	state := 0.0
	for i, x := range in {
		state += c * (x - state)
		out[i] = state
	}

	return out
}
