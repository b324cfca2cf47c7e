package cmat

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Solve solves a*x = b for the square complex n x n matrix a and nrhs
// right-hand sides stored as the columns of the row-major n x nrhs matrix b.
// The result is written to dst (n x nrhs, row-major).
//
// The complex system is solved as the equivalent real system of twice the
// size using gonum's LU-based dense solver.
func Solve(dst, a, b []complex128, n, nrhs int) error {
	m2 := 2 * n
	ad := make([]float64, m2*m2)
	for i := range n {
		for j := range n {
			re := real(a[i*n+j])
			im := imag(a[i*n+j])
			ad[i*m2+j] = re
			ad[i*m2+n+j] = -im
			ad[(n+i)*m2+j] = im
			ad[(n+i)*m2+n+j] = re
		}
	}

	bd := make([]float64, m2*nrhs)
	for i := range n {
		for j := range nrhs {
			bd[i*nrhs+j] = real(b[i*nrhs+j])
			bd[(n+i)*nrhs+j] = imag(b[i*nrhs+j])
		}
	}

	var x mat.Dense
	err := x.Solve(mat.NewDense(m2, m2, ad), mat.NewDense(m2, nrhs, bd))
	if err != nil {
		return fmt.Errorf("cmat: linear solve failed: %w", err)
	}

	for i := range n {
		for j := range nrhs {
			dst[i*nrhs+j] = complex(x.At(i, j), x.At(n+i, j))
		}
	}

	return nil
}
