package sphere

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// TripletGains returns vector-base amplitude-panning interpolation gains for
// a target direction over the three nearest grid directions.
//
// The gains solve [v1 v2 v3]g = u for the target unit vector u; negative
// gains are clamped to zero and the result is normalized to unit sum, so the
// gains act as interpolation weights. A target exactly on a grid direction
// yields that direction with gain 1. If the nearest triplet is degenerate
// (collinear directions), the lookup falls back to nearest-direction gains.
func (g *Grid) TripletGains(d Direction) ([3]int, [3]float64, error) {
	if g.Len() < 3 {
		idx := g.Nearest(d)
		return [3]int{idx, idx, idx}, [3]float64{1, 0, 0}, nil
	}

	u := d.Vector()

	type cand struct {
		idx int
		dot float64
	}

	cands := make([]cand, g.Len())
	for i, v := range g.vecs {
		cands[i] = cand{i, u[0]*v[0] + u[1]*v[1] + u[2]*v[2]}
	}

	sort.Slice(cands, func(i, j int) bool { return cands[i].dot > cands[j].dot })

	idx := [3]int{cands[0].idx, cands[1].idx, cands[2].idx}

	// Columns of the base matrix are the triplet unit vectors.
	base := mat.NewDense(3, 3, nil)
	for c := range 3 {
		v := g.vecs[idx[c]]
		for r := range 3 {
			base.Set(r, c, v[r])
		}
	}

	var sol mat.VecDense
	err := sol.SolveVec(base, mat.NewVecDense(3, []float64{u[0], u[1], u[2]}))
	if err != nil {
		// Degenerate triplet: snap to the nearest direction.
		return [3]int{idx[0], idx[0], idx[0]}, [3]float64{1, 0, 0}, nil
	}

	gains := [3]float64{sol.AtVec(0), sol.AtVec(1), sol.AtVec(2)}

	var sum float64
	for i := range gains {
		if gains[i] < 0 || math.IsNaN(gains[i]) {
			gains[i] = 0
		}
		sum += gains[i]
	}

	if sum <= 0 {
		return [3]int{idx[0], idx[0], idx[0]}, [3]float64{1, 0, 0}, nil
	}

	for i := range gains {
		gains[i] /= sum
	}

	return idx, gains, nil
}
