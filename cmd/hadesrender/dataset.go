package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/cwbudde/algo-spatial/sphere"
	"github.com/cwbudde/algo-spatial/wavio"
)

// Measurement files are named by direction, e.g. az045_el-30.wav.
var dirPattern = regexp.MustCompile(`az(-?\d+(?:\.\d+)?)_el(-?\d+(?:\.\d+)?)\.wav$`)

var errNoMeasurements = errors.New("no az*_el*.wav measurements found")

// dataset is a direction-indexed impulse-response collection loaded from a
// directory of WAV files, one file per direction.
type dataset struct {
	dirs       []sphere.Direction
	irs        [][][]float64 // [direction][channel][sample]
	sampleRate int
}

// loadDataset reads every measurement in dir. All files must agree on
// channel count, response length, and sample rate; files are ordered by
// name so repeated runs see the same grid indices.
func loadDataset(dir string) (*dataset, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.wav"))
	if err != nil {
		return nil, err
	}

	sort.Strings(paths)

	ds := &dataset{}

	for _, path := range paths {
		m := dirPattern.FindStringSubmatch(filepath.Base(path))
		if m == nil {
			continue
		}

		az, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}

		el, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}

		data, rate, err := wavio.ReadFile(path)
		if err != nil {
			return nil, err
		}

		if len(ds.irs) > 0 {
			if rate != ds.sampleRate {
				return nil, fmt.Errorf("%s: sample rate %d differs from %d", path, rate, ds.sampleRate)
			}

			if len(data) != len(ds.irs[0]) || len(data[0]) != len(ds.irs[0][0]) {
				return nil, fmt.Errorf("%s: shape differs from earlier measurements", path)
			}
		}

		ds.dirs = append(ds.dirs, sphere.Direction{Azimuth: az, Elevation: el})
		ds.irs = append(ds.irs, data)
		ds.sampleRate = rate
	}

	if len(ds.irs) == 0 {
		return nil, fmt.Errorf("%s: %w", dir, errNoMeasurements)
	}

	return ds, nil
}

// split returns the per-ear responses of a two-channel dataset.
func (ds *dataset) split() (left, right [][]float64, err error) {
	left = make([][]float64, len(ds.irs))
	right = make([][]float64, len(ds.irs))

	for i, meas := range ds.irs {
		if len(meas) != 2 {
			return nil, nil, fmt.Errorf("measurement %d has %d channels, want 2", i, len(meas))
		}

		left[i] = meas[0]
		right[i] = meas[1]
	}

	return left, right, nil
}
