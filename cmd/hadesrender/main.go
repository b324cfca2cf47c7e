// Command hadesrender renders a microphone-array recording to binaural audio
// for headphone playback.
//
// It needs two measurement directories, each holding one WAV per direction
// named az<azimuth>_el<elevation>.wav: the array impulse responses
// (one channel per microphone) and the listener's HRIRs (two channels). The
// recording, the measurements, and the HRIRs must share one sample rate.
//
// Examples:
//
//	hadesrender recording.wav array/ hrir/
//	hadesrender -o out.wav --beamformer mvdr --match recording.wav array/ hrir/
//	hadesrender --rear-cut 20 recording.wav array/ hrir/
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/cwbudde/algo-spatial/hades"
	"github.com/cwbudde/algo-spatial/hrtf"
	"github.com/cwbudde/algo-spatial/sphere"
	"github.com/cwbudde/algo-spatial/tf"
	"github.com/cwbudde/algo-spatial/wavio"
)

var version = "0.1.0"

type cli struct {
	Input    string `arg:"" type:"existingfile" help:"Multichannel array recording (WAV)."`
	ArrayDir string `arg:"" type:"existingdir" help:"Array impulse-response directory."`
	HRIRDir  string `arg:"" type:"existingdir" help:"HRIR measurement directory."`

	Output string `short:"o" default:"render.wav" help:"Binaural output file."`

	Block  int  `default:"1024" help:"Processing block size in samples."`
	Hop    int  `default:"128" help:"Filterbank hop size (power of two)."`
	Hybrid bool `help:"Finer low-band resolution at the cost of extra delay."`

	Beamformer string  `default:"fas" enum:"none,fas,mvdr" help:"Direct-stream beamformer (none, fas, mvdr)."`
	Match      bool    `help:"Enable binaural covariance matching."`
	Nearest    bool    `help:"Nearest-neighbour HRTF lookup instead of interpolation."`
	CovAvg     float64 `default:"0.8" help:"Analysis covariance averaging in [0, 1)."`
	SynAvg     float64 `default:"0.5" help:"Mixing-matrix smoothing in [0, 1)."`
	Balance    float64 `default:"1" help:"Direct/ambient balance in [0, 2]."`
	RearCut    float64 `name:"rear-cut" default:"0" help:"Attenuate rear-hemisphere sources by this many dB."`

	RefLeft  int `default:"0" help:"Array channel used as the left reference sensor."`
	RefRight int `default:"1" help:"Array channel used as the right reference sensor."`

	Version kong.VersionFlag `short:"v" help:"Show version and exit."`
}

func main() {
	var args cli

	ctx := kong.Parse(&args,
		kong.Name("hadesrender"),
		kong.Description("Parametric binaural renderer for microphone-array recordings"),
		kong.UsageOnError(),
		kong.Vars{"version": version},
	)

	ctx.FatalIfErrorf(run(&args))
}

func run(args *cli) error {
	input, inRate, err := wavio.ReadFile(args.Input)
	if err != nil {
		return err
	}

	array, err := loadDataset(args.ArrayDir)
	if err != nil {
		return fmt.Errorf("array measurements: %w", err)
	}

	hrirs, err := loadDataset(args.HRIRDir)
	if err != nil {
		return fmt.Errorf("HRIR measurements: %w", err)
	}

	if array.sampleRate != inRate || hrirs.sampleRate != inRate {
		return fmt.Errorf("sample rates differ: input %d, array %d, HRIR %d",
			inRate, array.sampleRate, hrirs.sampleRate)
	}

	grid, err := sphere.NewGrid(array.dirs, sphere.WithDensityWeights())
	if err != nil {
		return err
	}

	left, right, err := hrirs.split()
	if err != nil {
		return fmt.Errorf("HRIR measurements: %w", err)
	}

	set, err := hrtf.NewSet(float64(inRate), hrirs.dirs, left, right)
	if err != nil {
		return err
	}

	analysisOpts := []hades.AnalysisOption{
		hades.WithHopSize(args.Hop),
		hades.WithCovarianceAveraging(args.CovAvg),
	}
	if args.Hybrid {
		analysisOpts = append(analysisOpts, hades.WithHybridMode())
	}

	analysis, err := hades.NewAnalysis(float64(inRate), args.Block, array.irs, grid, analysisOpts...)
	if err != nil {
		return err
	}

	synthesisOpts := []hades.SynthesisOption{
		hades.WithSynthesisAveraging(args.SynAvg),
	}

	switch args.Beamformer {
	case "none":
		synthesisOpts = append(synthesisOpts, hades.WithBeamformer(hades.BeamformerNone))
	case "fas":
		synthesisOpts = append(synthesisOpts, hades.WithBeamformer(hades.BeamformerFilterAndSum))
	case "mvdr":
		synthesisOpts = append(synthesisOpts, hades.WithBeamformer(hades.BeamformerMVDR))
	}

	if args.Match {
		synthesisOpts = append(synthesisOpts, hades.WithCovarianceMatching())
	}

	if args.Nearest {
		synthesisOpts = append(synthesisOpts, hades.WithInterpolation(hrtf.InterpolationNearest))
	}

	synthesis, err := hades.NewSynthesis(analysis, set, [2]int{args.RefLeft, args.RefRight}, synthesisOpts...)
	if err != nil {
		return err
	}

	for band := range synthesis.StreamBalance() {
		synthesis.StreamBalance()[band] = args.Balance
	}

	var editor *hades.RadialEditor

	rearPattern := make([]float64, 360)
	if args.RearCut > 0 {
		editor, err = hades.NewRadialEditor(grid)
		if err != nil {
			return err
		}

		for az := 91; az < 270; az++ {
			rearPattern[az] = -args.RearCut
		}
	}

	output, err := render(analysis, synthesis, editor, rearPattern, input)
	if err != nil {
		return err
	}

	err = wavio.WriteFile(args.Output, output, inRate)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "rendered %d samples at %d Hz to %s\n", len(output[0]), inRate, args.Output)

	return nil
}

// render streams the recording block by block through analysis and
// synthesis, compensating the processing delay so the output aligns with
// the input.
func render(analysis *hades.Analysis, synthesis *hades.Synthesis, editor *hades.RadialEditor, pattern []float64, input [][]float64) ([][]float64, error) {
	params := hades.NewParameters(analysis)
	signals := hades.NewSignals(analysis)

	blockSize := analysis.BlockSize()
	delay := analysis.ProcDelay() + synthesis.ProcDelay()
	nSamples := len(input[0])

	nBlocks := (nSamples + delay + blockSize - 1) / blockSize

	inBlock := tf.AllocTime(len(input), blockSize)
	outBlock := tf.AllocTime(2, blockSize)

	rendered := tf.AllocTime(2, nBlocks*blockSize)

	for b := range nBlocks {
		for ch := range input {
			for i := range inBlock[ch] {
				n := b*blockSize + i
				if n < nSamples {
					inBlock[ch][i] = input[ch][n]
				} else {
					inBlock[ch][i] = 0
				}
			}
		}

		err := analysis.Apply(params, signals, inBlock)
		if err != nil {
			return nil, err
		}

		if editor != nil {
			err = editor.Apply(params, pattern)
			if err != nil {
				return nil, err
			}
		}

		err = synthesis.Apply(params, signals, outBlock)
		if err != nil {
			return nil, err
		}

		for ear := range 2 {
			copy(rendered[ear][b*blockSize:], outBlock[ear])
		}
	}

	out := make([][]float64, 2)
	for ear := range 2 {
		end := delay + nSamples
		if end > len(rendered[ear]) {
			end = len(rendered[ear])
		}

		out[ear] = rendered[ear][delay:end]
	}

	return out, nil
}
