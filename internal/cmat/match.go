package cmat

import (
	"fmt"
	"math"
)

// matchEps regularizes the inverse square roots in the matching solve.
const matchEps = 2.23e-9

// MatchMixing computes a covariance-matched mixing matrix.
//
// Given a prototype mixing matrix proto (nOut x n), an input covariance cx
// (n x n, Hermitian) and a target output covariance cy (nOut x nOut,
// Hermitian), it writes to dst (nOut x n) the least-disturbance solution
//
//	M = Ky * P^H * pinv(Kx)
//
// where Kx and Ky are eigenvalue-based square roots of cx and cy, and P is
// the unitary polar factor of Kx^H * proto^H * Ky. The result satisfies
// M*cx*M^H ~ cy while staying as close as possible to the prototype.
func MatchMixing(dst, proto, cx, cy []complex128, nOut, n int) error {
	lx, vx, err := EigHerm(cx, n)
	if err != nil {
		return fmt.Errorf("cmat: matching input covariance: %w", err)
	}

	ly, vy, err := EigHerm(cy, nOut)
	if err != nil {
		return fmt.Errorf("cmat: matching target covariance: %w", err)
	}

	// Kx = Vx*diag(sqrt(lx)), pinv(Kx) = diag(1/sqrt(lx+eps))*Vx^H.
	kx := make([]complex128, n*n)
	pinvKx := make([]complex128, n*n)
	for i := range n {
		for j := range n {
			kx[i*n+j] = vx[i*n+j] * complex(math.Sqrt(math.Max(lx[j], 0)), 0)
			pinvKx[i*n+j] = conj(vx[j*n+i]) * complex(1/math.Sqrt(math.Max(lx[i], 0)+matchEps), 0)
		}
	}

	ky := make([]complex128, nOut*nOut)
	for i := range nOut {
		for j := range nOut {
			ky[i*nOut+j] = vy[i*nOut+j] * complex(math.Sqrt(math.Max(ly[j], 0)), 0)
		}
	}

	// Lambda = Kx^H * proto^H * Ky (n x nOut).
	tmp := make([]complex128, n*nOut)
	MulConjTransA(tmp, proto, ky, n, nOut, nOut)
	lambda := make([]complex128, n*nOut)
	MulConjTransA(lambda, kx, tmp, n, n, nOut)

	// P = Lambda * (Lambda^H*Lambda)^(-1/2), the polar factor.
	gram := make([]complex128, nOut*nOut)
	MulConjTransA(gram, lambda, lambda, nOut, n, nOut)

	lg, vg, err := EigHerm(gram, nOut)
	if err != nil {
		return fmt.Errorf("cmat: matching polar factor: %w", err)
	}

	gInvSqrt := make([]complex128, nOut*nOut)
	for i := range nOut {
		for j := range nOut {
			var sum complex128
			for l := range nOut {
				s := 1 / math.Sqrt(math.Max(lg[l], 0)+matchEps)
				sum += vg[i*nOut+l] * complex(s, 0) * conj(vg[j*nOut+l])
			}
			gInvSqrt[i*nOut+j] = sum
		}
	}

	p := make([]complex128, n*nOut)
	Mul(p, lambda, gInvSqrt, n, nOut, nOut)

	// M = Ky * P^H * pinv(Kx).
	phPinv := make([]complex128, nOut*n)
	MulConjTransA(phPinv, p, pinvKx, nOut, n, n)
	Mul(dst, ky, phPinv, nOut, nOut, n)

	return nil
}
