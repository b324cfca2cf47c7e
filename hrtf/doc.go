// Package hrtf prepares measured head-related impulse responses for
// parametric binaural rendering.
//
// A measured [Set] is projected through the same filterbank as the
// microphone array, diffuse-field equalized, and interpolated onto the
// analysis direction grid, yielding the per-band two-ear transfer function
// at every grid direction plus the set's binaural diffuse-field covariance.
// Two interpolation policies are offered: nearest-measurement assignment and
// triangular (amplitude-panned magnitude with interpolated interaural time
// difference).
package hrtf
