package hades

import "math"

// comedieSumEps is the eigenvalue-sum threshold below which the sound field
// is treated as fully diffuse (degenerate or silent input).
const comedieSumEps = 1e-9

// comedie computes the COMEDIE diffuseness estimate from the eigenvalues of
// a whitened spatial covariance matrix.
//
// The estimator measures the normalized eigenvalue spread: equal eigenvalues
// (an isotropic field) give 1, a single dominant eigenvalue (one plane wave)
// gives 0. The microphone count is treated as the channel count of a virtual
// spherical-harmonic system of order sqrt(N)-1, which makes the maximum
// spread 2*(N-1).
func comedie(eigenvalues []float64) float64 {
	n := len(eigenvalues)
	if n < 2 {
		return 1
	}

	var sum float64
	for _, ev := range eigenvalues {
		sum += ev
	}

	if sum < comedieSumEps {
		return 1
	}

	mean := sum / float64(n)

	var spread float64
	for _, ev := range eigenvalues {
		spread += math.Abs(ev - mean)
	}
	spread /= mean

	order := math.Sqrt(float64(n)) - 1
	maxSpread := 2 * ((order+1)*(order+1) - 1)

	psi := 1 - spread/maxSpread
	if psi < 0 {
		return 0
	}
	if psi > 1 {
		return 1
	}

	return psi
}
