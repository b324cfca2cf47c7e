// Package tf implements the time-frequency filterbank used by the spatial
// analysis and synthesis engines.
//
// The filterbank is a streaming STFT with square-root Hann analysis and
// synthesis windows and exact overlap-add reconstruction. Audio is processed
// in blocks whose length is an integer multiple of the hop size; each hop
// produces one time slot of complex data in every frequency band. The
// analysis-synthesis round trip delays the signal by a fixed, queryable
// number of samples (window length minus hop size).
//
// Impulse responses can be projected into the same band structure with
// [Transform.FilterbankCoeffs], which samples each response's transfer
// function at the band centre frequencies. This is how measured array and
// HRIR sets are turned into per-band steering vectors.
package tf
