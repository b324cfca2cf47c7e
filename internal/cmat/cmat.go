// Package cmat implements dense complex matrix kernels for the per-band
// spatial processing loops.
//
// Matrices are stored flat in row-major order with explicit dimensions, so a
// per-band slice of a larger table can be used directly without copying.
// Decompositions (Hermitian eigendecomposition, linear solves) are delegated
// to gonum through the standard real embedding of complex matrices.
package cmat

// Mul computes dst = a*b for a (m x k) and b (k x n), row-major.
// dst must not alias a or b.
func Mul(dst, a, b []complex128, m, k, n int) {
	for i := range m {
		for j := range n {
			var sum complex128
			for l := range k {
				sum += a[i*k+l] * b[l*n+j]
			}
			dst[i*n+j] = sum
		}
	}
}

// MulConjTransA computes dst = a^H * b for a (k x m) and b (k x n), row-major.
// dst must not alias a or b.
func MulConjTransA(dst, a, b []complex128, m, k, n int) {
	for i := range m {
		for j := range n {
			var sum complex128
			for l := range k {
				sum += conj(a[l*m+i]) * b[l*n+j]
			}
			dst[i*n+j] = sum
		}
	}
}

// MulConjTransB computes dst = a * b^H for a (m x k) and b (n x k), row-major.
// dst must not alias a or b.
func MulConjTransB(dst, a, b []complex128, m, k, n int) {
	for i := range m {
		for j := range n {
			var sum complex128
			for l := range k {
				sum += a[i*k+l] * conj(b[j*k+l])
			}
			dst[i*n+j] = sum
		}
	}
}

// MulVec computes dst = a*x for a (m x n) and a length-n vector x.
func MulVec(dst, a, x []complex128, m, n int) {
	for i := range m {
		var sum complex128
		for j := range n {
			sum += a[i*n+j] * x[j]
		}
		dst[i] = sum
	}
}

// OuterAcc accumulates dst += x*x^H for a length-n vector x into the
// row-major n x n matrix dst.
func OuterAcc(dst, x []complex128, n int) {
	for i := range n {
		xi := x[i]
		for j := range n {
			dst[i*n+j] += xi * conj(x[j])
		}
	}
}

// ConjDot returns a^H * b for two vectors of equal length.
func ConjDot(a, b []complex128) complex128 {
	var sum complex128
	for i := range a {
		sum += conj(a[i]) * b[i]
	}
	return sum
}

// Trace returns the trace of the row-major n x n matrix a.
func Trace(a []complex128, n int) complex128 {
	var sum complex128
	for i := range n {
		sum += a[i*n+i]
	}
	return sum
}

// Scale multiplies every element of dst by s.
func Scale(dst []complex128, s complex128) {
	for i := range dst {
		dst[i] *= s
	}
}

// Zero clears dst.
func Zero(dst []complex128) {
	for i := range dst {
		dst[i] = 0
	}
}

func conj(c complex128) complex128 {
	return complex(real(c), -imag(c))
}
