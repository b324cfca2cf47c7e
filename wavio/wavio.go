// Package wavio reads and writes multichannel WAV files as per-channel
// float64 sample slices, the layout the rest of the module works in.
package wavio

import (
	"errors"
	"fmt"
	"math"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// writeBitDepth is the PCM depth of written files.
const writeBitDepth = 24

// Errors returned by file I/O.
var (
	ErrNotWAV    = errors.New("wavio: not a valid WAV file")
	ErrEmptyData = errors.New("wavio: no sample data")
	ErrRaggedSet = errors.New("wavio: channels must have equal length")
)

// ReadFile reads a PCM WAV file and returns its samples deinterleaved into
// per-channel slices scaled to [-1, 1], plus the file's sample rate.
func ReadFile(path string) ([][]float64, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("wavio: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, 0, fmt.Errorf("%w: %s", ErrNotWAV, path)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("wavio: decode %s: %w", path, err)
	}

	nCh := buf.Format.NumChannels
	if nCh <= 0 || len(buf.Data) == 0 {
		return nil, 0, fmt.Errorf("%w: %s", ErrEmptyData, path)
	}

	depth := buf.SourceBitDepth
	if depth <= 0 {
		depth = int(dec.BitDepth)
	}

	scale := 1 / float64(int64(1)<<(depth-1))
	nFrames := len(buf.Data) / nCh

	out := make([][]float64, nCh)
	for ch := range out {
		out[ch] = make([]float64, nFrames)
		for i := range out[ch] {
			out[ch][i] = float64(buf.Data[i*nCh+ch]) * scale
		}
	}

	return out, buf.Format.SampleRate, nil
}

// WriteFile writes per-channel float64 samples as 24-bit PCM. Samples
// outside [-1, 1] are clipped.
func WriteFile(path string, data [][]float64, sampleRate int) error {
	if len(data) == 0 || len(data[0]) == 0 {
		return ErrEmptyData
	}

	nFrames := len(data[0])
	for _, ch := range data {
		if len(ch) != nFrames {
			return ErrRaggedSet
		}
	}

	if sampleRate <= 0 {
		return fmt.Errorf("wavio: sample rate must be > 0: %d", sampleRate)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("wavio: %w", err)
	}

	nCh := len(data)
	full := float64(int64(1) << (writeBitDepth - 1))

	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: nCh, SampleRate: sampleRate},
		SourceBitDepth: writeBitDepth,
		Data:           make([]int, nFrames*nCh),
	}

	for ch := range data {
		for i, v := range data[ch] {
			s := math.Round(v * full)
			if s > full-1 {
				s = full - 1
			} else if s < -full {
				s = -full
			}

			buf.Data[i*nCh+ch] = int(s)
		}
	}

	enc := wav.NewEncoder(f, sampleRate, writeBitDepth, nCh, 1)

	err = enc.Write(buf)
	if err != nil {
		f.Close()
		return fmt.Errorf("wavio: encode %s: %w", path, err)
	}

	err = enc.Close()
	if err != nil {
		f.Close()
		return fmt.Errorf("wavio: finalize %s: %w", path, err)
	}

	return f.Close()
}
