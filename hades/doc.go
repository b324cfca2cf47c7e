// Package hades implements a parametric spatial-audio analysis and
// binaural synthesis pipeline for microphone-array input.
//
// The [Analysis] engine transforms each block of array audio into the
// time-frequency domain, maintains a temporally smoothed spatial covariance
// per band, and estimates per-band diffuseness (COMEDIE) and direction of
// arrival (subspace MUSIC over a measured steering-vector grid). Results are
// written into a [Parameters] and a [Signals] container.
//
// The [Synthesis] engine consumes those containers and renders two-channel
// binaural audio: a beamformed direct stream and a reference-sensor diffuse
// stream are blended per band according to the estimated diffuseness,
// optionally refined by covariance matching against a target binaural
// covariance, temporally smoothed, and transformed back to the time domain.
//
// A [RadialEditor] applies direction-dependent gain edits to the parameter
// stream between analysis and synthesis.
//
// Processing is single-threaded and block-synchronous: each context supports
// one in-flight Apply at a time, and a container pair written by one
// analysis call may be read by any number of synthesis contexts afterwards,
// provided the caller serializes writes against reads.
package hades
