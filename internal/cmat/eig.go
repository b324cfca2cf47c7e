package cmat

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrEigFailed reports a failed eigendecomposition, which indicates a
// malformed (non-finite) input matrix.
var ErrEigFailed = errors.New("cmat: hermitian eigendecomposition failed")

// EigHerm computes the eigendecomposition of the Hermitian n x n matrix a
// (row-major, only assumed Hermitian, not verified).
//
// Eigenvalues are returned in ascending order. Eigenvectors are returned as
// the columns of a row-major n x n matrix, normalized to unit length, with
// column j corresponding to vals[j].
//
// The complex problem is mapped onto a real symmetric one of twice the size:
// for H = A + iB, the real matrix [[A, -B], [B, A]] is symmetric with every
// eigenvalue of H doubled, and each real eigenvector (x; y) maps back to the
// complex eigenvector x + iy.
func EigHerm(a []complex128, n int) (vals []float64, vecs []complex128, err error) {
	m2 := 2 * n
	data := make([]float64, m2*m2)
	for i := range n {
		for j := range n {
			re := real(a[i*n+j])
			im := imag(a[i*n+j])
			data[i*m2+j] = re
			data[i*m2+n+j] = -im
			data[(n+i)*m2+j] = im
			data[(n+i)*m2+n+j] = re
		}
	}

	var es mat.EigenSym
	if !es.Factorize(mat.NewSymDense(m2, data), true) {
		return nil, nil, ErrEigFailed
	}

	all := es.Values(nil)

	var ev mat.Dense
	es.VectorsTo(&ev)

	vals = make([]float64, n)
	vecs = make([]complex128, n*n)

	for j := range n {
		vals[j] = all[2*j]

		var norm float64
		for i := range n {
			re := ev.At(i, 2*j)
			im := ev.At(n+i, 2*j)
			vecs[i*n+j] = complex(re, im)
			norm += re*re + im*im
		}

		if norm > 0 {
			s := complex(1/math.Sqrt(norm), 0)
			for i := range n {
				vecs[i*n+j] *= s
			}
		}
	}

	return vals, vecs, nil
}
