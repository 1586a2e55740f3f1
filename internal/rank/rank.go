// Package rank selects relevant yet mutually diverse candidates with
// maximal marginal relevance.
package rank

import "math"

const (
	DefaultLambda = 0.72
	DefaultK      = 5
)

// Cosine returns the cosine similarity of a and b, or 0 when either has zero
// norm. Extra trailing elements of the longer vector are ignored.
func Cosine(a, b []float32) float64 {
	n := min(len(a), len(b))
	var dot, na, nb float64
	for i := range n {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Result is the outcome of one MMR selection.
type Result struct {
	// Selected holds candidate indices in rank order.
	Selected []int
	// QuerySim holds the query similarity of every candidate.
	QuerySim []float64
}

// MMR greedily picks up to k candidates. The first pick maximizes query
// similarity; each later pick maximizes
// lambda*sim(q, e_i) - (1-lambda)*max_{j selected} sim(e_i, e_j).
// Ties go to the lowest index. k is clamped to the number of candidates.
func MMR(q []float32, candidates [][]float32, lambda float64, k int) Result {
	n := len(candidates)
	res := Result{QuerySim: make([]float64, n)}
	if n == 0 {
		res.Selected = []int{}
		return res
	}
	if k > n {
		k = n
	}
	if k < 0 {
		k = 0
	}

	for i, e := range candidates {
		res.QuerySim[i] = Cosine(q, e)
	}
	simDoc := make([][]float64, n)
	for i := range simDoc {
		simDoc[i] = make([]float64, n)
	}
	for i := range n {
		for j := i; j < n; j++ {
			s := Cosine(candidates[i], candidates[j])
			simDoc[i][j], simDoc[j][i] = s, s
		}
	}

	selected := make([]int, 0, k)
	chosen := make([]bool, n)
	// maxSim[i] tracks max similarity of i to the selected set.
	maxSim := make([]float64, n)

	for step := range k {
		best := -1
		bestScore := math.Inf(-1)
		for i := range n {
			if chosen[i] {
				continue
			}
			score := res.QuerySim[i]
			if step > 0 {
				score = lambda*res.QuerySim[i] - (1-lambda)*maxSim[i]
			}
			if best < 0 || score > bestScore {
				best, bestScore = i, score
			}
		}
		chosen[best] = true
		selected = append(selected, best)
		for i := range n {
			if chosen[i] {
				continue
			}
			if step == 0 || simDoc[i][best] > maxSim[i] {
				maxSim[i] = simDoc[i][best]
			}
		}
	}
	res.Selected = selected
	return res
}
