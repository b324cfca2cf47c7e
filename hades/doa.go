package hades

import "math/cmplx"

// musicEps regularizes the pseudo-spectrum denominator.
const musicEps = 2.23e-10

// musicDoA returns the grid index with the highest MUSIC pseudo-spectrum
// value for one band.
//
// vecs holds the eigenvectors of the whitened covariance as columns of a
// row-major n x n matrix in ascending eigenvalue order; the first n-nSrc
// columns span the noise subspace. white holds the whitened steering
// vectors, row-major nGrid x n. The pseudo-spectrum per direction is the
// inverse squared norm of the steering vector's projection onto the noise
// subspace; the direction least represented in the noise subspace wins.
func musicDoA(vecs, white []complex128, n, nGrid, nSrc int) int {
	nNoise := n - nSrc
	if nNoise <= 0 {
		nNoise = 1
	}

	best := 0
	bestPS := 0.0

	for d := range nGrid {
		a := white[d*n : (d+1)*n]

		var energy float64
		for j := range nNoise {
			var proj complex128
			for i := range n {
				proj += cmplx.Conj(vecs[i*n+j]) * a[i]
			}
			energy += real(proj)*real(proj) + imag(proj)*imag(proj)
		}

		ps := 1 / (energy + musicEps)
		if ps > bestPS {
			bestPS = ps
			best = d
		}
	}

	return best
}
