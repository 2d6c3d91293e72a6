package dge

import (
	"math"
	"sort"
)

// AdjustBH returns Benjamini-Hochberg adjusted p-values in input order.
// NaN inputs stay NaN and do not count toward the number of tests.
func AdjustBH(p []float64) []float64 {
	out := make([]float64, len(p))

	order := make([]int, 0, len(p))
	for i, v := range p {
		if math.IsNaN(v) {
			out[i] = math.NaN()
			continue
		}
		order = append(order, i)
	}
	sort.SliceStable(order, func(a, b int) bool {
		return p[order[a]] > p[order[b]]
	})

	n := float64(len(order))
	running := 1.0
	for k, i := range order {
		rank := n - float64(k)
		running = math.Min(running, n/rank*p[i])
		out[i] = running
	}

	return out
}
