// Package steering precomputes per-band array steering vectors and the
// spatial whitening transforms derived from them.
//
// A [Table] is built once at configuration time from measured (or simulated)
// array impulse responses over a direction grid. Per frequency band it holds
// the raw steering vectors, the grid-weighted diffuse-field covariance, a
// whitening matrix that maps that covariance to identity, and the whitened
// steering vectors used for subspace direction-of-arrival estimation.
package steering
