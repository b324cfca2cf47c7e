package wavio

import (
	"errors"
	"math"
	"path/filepath"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	const (
		rate    = 48000
		nFrames = 480
	)

	in := make([][]float64, 3)
	for ch := range in {
		in[ch] = make([]float64, nFrames)
		for i := range in[ch] {
			in[ch][i] = 0.5 * math.Sin(2*math.Pi*float64(i)*float64(ch+1)/100)
		}
	}

	path := filepath.Join(t.TempDir(), "roundtrip.wav")

	err := WriteFile(path, in, rate)
	if err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	out, gotRate, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	if gotRate != rate {
		t.Fatalf("sample rate: got %d, want %d", gotRate, rate)
	}

	if len(out) != len(in) {
		t.Fatalf("channels: got %d, want %d", len(out), len(in))
	}

	// 24-bit quantization keeps the error below one LSB.
	const tol = 1.0 / (1 << 22)

	for ch := range in {
		if len(out[ch]) != nFrames {
			t.Fatalf("channel %d: got %d frames, want %d", ch, len(out[ch]), nFrames)
		}

		for i := range in[ch] {
			if math.Abs(out[ch][i]-in[ch][i]) > tol {
				t.Fatalf("channel %d sample %d: got %g, want %g", ch, i, out[ch][i], in[ch][i])
			}
		}
	}
}

func TestWriteFile_Validation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "invalid.wav")

	err := WriteFile(path, nil, 48000)
	if !errors.Is(err, ErrEmptyData) {
		t.Fatalf("empty data: got %v, want ErrEmptyData", err)
	}

	ragged := [][]float64{make([]float64, 10), make([]float64, 5)}

	err = WriteFile(path, ragged, 48000)
	if !errors.Is(err, ErrRaggedSet) {
		t.Fatalf("ragged channels: got %v, want ErrRaggedSet", err)
	}
}

func TestReadFile_RejectsGarbage(t *testing.T) {
	_, _, err := ReadFile(filepath.Join(t.TempDir(), "missing.wav"))
	if err == nil {
		t.Fatal("missing file accepted")
	}
}
