package cmat

import (
	"math"
	"math/cmplx"
	"testing"
)

const tolerance = 1e-9

func almostEqualC(a, b complex128, tol float64) bool {
	return cmplx.Abs(a-b) <= tol
}

// randomComplex returns a deterministic pseudo-random sequence in [-1, 1).
func randomComplex(n int, seed uint64) []complex128 {
	out := make([]complex128, n)
	s := seed
	next := func() float64 {
		s = s*6364136223846793005 + 1442695040888963407
		return float64(int64(s>>11))/float64(1<<52) - 1
	}
	for i := range out {
		out[i] = complex(next(), next())
	}
	return out
}

// hermitianFrom builds A = X*X^H + d*I, which is Hermitian positive definite.
func hermitianFrom(n int, seed uint64, d float64) []complex128 {
	x := randomComplex(n*n, seed)
	a := make([]complex128, n*n)
	MulConjTransB(a, x, x, n, n, n)
	for i := range n {
		a[i*n+i] += complex(d, 0)
	}
	return a
}

func TestMul_Identity(t *testing.T) {
	const n = 4
	a := randomComplex(n*n, 1)
	id := make([]complex128, n*n)
	for i := range n {
		id[i*n+i] = 1
	}

	dst := make([]complex128, n*n)
	Mul(dst, a, id, n, n, n)

	for i := range dst {
		if !almostEqualC(dst[i], a[i], tolerance) {
			t.Fatalf("Mul by identity at %d: got %v, want %v", i, dst[i], a[i])
		}
	}
}

func TestMulConjTransA_MatchesManual(t *testing.T) {
	const m, k, n = 3, 4, 2
	a := randomComplex(k*m, 2)
	b := randomComplex(k*n, 3)

	dst := make([]complex128, m*n)
	MulConjTransA(dst, a, b, m, k, n)

	for i := range m {
		for j := range n {
			var want complex128
			for l := range k {
				want += cmplx.Conj(a[l*m+i]) * b[l*n+j]
			}
			if !almostEqualC(dst[i*n+j], want, tolerance) {
				t.Errorf("MulConjTransA at (%d,%d): got %v, want %v", i, j, dst[i*n+j], want)
			}
		}
	}
}

func TestOuterAcc_Hermitian(t *testing.T) {
	const n = 3
	x := randomComplex(n, 4)
	dst := make([]complex128, n*n)
	OuterAcc(dst, x, n)

	for i := range n {
		for j := range n {
			if !almostEqualC(dst[i*n+j], cmplx.Conj(dst[j*n+i]), tolerance) {
				t.Errorf("outer product not Hermitian at (%d,%d)", i, j)
			}
		}
	}
	if imag(Trace(dst, n)) > tolerance {
		t.Errorf("outer product trace not real: %v", Trace(dst, n))
	}
}

func TestEigHerm_Reconstruct(t *testing.T) {
	const n = 5
	a := hermitianFrom(n, 7, 0.5)

	vals, vecs, err := EigHerm(a, n)
	if err != nil {
		t.Fatalf("EigHerm: %v", err)
	}

	for j := 1; j < n; j++ {
		if vals[j] < vals[j-1] {
			t.Fatalf("eigenvalues not ascending: %v", vals)
		}
	}

	// Reconstruct A = V*diag(vals)*V^H.
	vl := make([]complex128, n*n)
	for i := range n {
		for j := range n {
			vl[i*n+j] = vecs[i*n+j] * complex(vals[j], 0)
		}
	}
	rec := make([]complex128, n*n)
	MulConjTransB(rec, vl, vecs, n, n, n)

	for i := range rec {
		if !almostEqualC(rec[i], a[i], 1e-8) {
			t.Fatalf("reconstruction at %d: got %v, want %v", i, rec[i], a[i])
		}
	}
}

func TestEigHerm_DiagonalMatrix(t *testing.T) {
	a := []complex128{3, 0, 0, 1}
	vals, _, err := EigHerm(a, 2)
	if err != nil {
		t.Fatalf("EigHerm: %v", err)
	}
	if !almostEqual(vals[0], 1, tolerance) || !almostEqual(vals[1], 3, tolerance) {
		t.Errorf("diagonal eigenvalues: got %v, want [1 3]", vals)
	}
}

func TestSolve_RoundTrip(t *testing.T) {
	const n, nrhs = 4, 2
	a := hermitianFrom(n, 11, 1.0)
	want := randomComplex(n*nrhs, 12)

	b := make([]complex128, n*nrhs)
	Mul(b, a, want, n, n, nrhs)

	got := make([]complex128, n*nrhs)
	err := Solve(got, a, b, n, nrhs)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}

	for i := range got {
		if !almostEqualC(got[i], want[i], 1e-8) {
			t.Fatalf("solution at %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestMatchMixing_AchievesTarget(t *testing.T) {
	const nOut, n = 2, 4

	cx := hermitianFrom(n, 21, 1.0)

	// Target covariance from a known full-rank 2x4 mix.
	ref := randomComplex(nOut*n, 22)
	tmp := make([]complex128, nOut*n)
	Mul(tmp, ref, cx, nOut, n, n)
	cy := make([]complex128, nOut*nOut)
	MulConjTransB(cy, tmp, ref, nOut, n, nOut)

	proto := randomComplex(nOut*n, 23)
	m := make([]complex128, nOut*n)
	err := MatchMixing(m, proto, cx, cy, nOut, n)
	if err != nil {
		t.Fatalf("MatchMixing: %v", err)
	}

	// Output covariance M*cx*M^H must match cy.
	Mul(tmp, m, cx, nOut, n, n)
	out := make([]complex128, nOut*nOut)
	MulConjTransB(out, tmp, m, nOut, n, nOut)

	scale := cmplx.Abs(Trace(cy, nOut))
	for i := range out {
		if cmplx.Abs(out[i]-cy[i]) > 1e-5*scale {
			t.Fatalf("matched covariance at %d: got %v, want %v", i, out[i], cy[i])
		}
	}
}

func TestMatchMixing_DegenerateInputRegularized(t *testing.T) {
	const nOut, n = 2, 3

	cx := make([]complex128, n*n) // all-zero input covariance
	cy := []complex128{1, 0, 0, 1}
	proto := randomComplex(nOut*n, 31)

	m := make([]complex128, nOut*n)
	err := MatchMixing(m, proto, cx, cy, nOut, n)
	if err != nil {
		t.Fatalf("MatchMixing: %v", err)
	}
	for i, v := range m {
		if math.IsNaN(real(v)) || math.IsNaN(imag(v)) || math.IsInf(real(v), 0) || math.IsInf(imag(v), 0) {
			t.Fatalf("non-finite mixing entry at %d: %v", i, v)
		}
	}
}

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}
