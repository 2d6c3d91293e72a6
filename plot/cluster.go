package plot

import (
	"math"
)

// averageLinkageOrder clusters the rows of x by average-linkage hierarchical
// clustering on Euclidean distance and returns the leaf order of the
// resulting tree. Ties merge the pair with the lowest indices first.
func averageLinkageOrder(x [][]float64) []int {
	n := len(x)
	if n == 0 {
		return nil
	}

	dist := make([][]float64, n)
	for i := range dist {
		dist[i] = make([]float64, n)
		for j := 0; j < i; j++ {
			dist[i][j] = euclidean(x[i], x[j])
			dist[j][i] = dist[i][j]
		}
	}

	// members[i] is the leaf order of active cluster i; nil once merged.
	members := make([][]int, n)
	for i := range members {
		members[i] = []int{i}
	}

	for remaining := n; remaining > 1; remaining-- {
		a, b := -1, -1
		best := math.Inf(1)
		for i := 0; i < n; i++ {
			if members[i] == nil {
				continue
			}
			for j := i + 1; j < n; j++ {
				if members[j] == nil {
					continue
				}
				if dist[i][j] < best {
					best, a, b = dist[i][j], i, j
				}
			}
		}
		if a < 0 {
			// Only NaN distances remain.
			for i := 0; i < n; i++ {
				if members[i] == nil {
					continue
				}
				if a < 0 {
					a = i
				} else {
					b = i
					break
				}
			}
		}

		na, nb := float64(len(members[a])), float64(len(members[b]))
		for k := 0; k < n; k++ {
			if members[k] == nil || k == a || k == b {
				continue
			}
			d := (na*dist[a][k] + nb*dist[b][k]) / (na + nb)
			dist[a][k], dist[k][a] = d, d
		}

		members[a] = append(members[a], members[b]...)
		members[b] = nil
	}

	for _, m := range members {
		if m != nil {
			return m
		}
	}

	return nil
}

func euclidean(a, b []float64) float64 {
	var s float64
	for i := range a {
		d := a[i] - b[i]
		s += d * d
	}

	return math.Sqrt(s)
}

// transpose returns the columns of x as rows.
func transpose(x [][]float64) [][]float64 {
	if len(x) == 0 {
		return nil
	}

	out := make([][]float64, len(x[0]))
	for j := range out {
		out[j] = make([]float64, len(x))
		for i := range x {
			out[j][i] = x[i][j]
		}
	}

	return out
}
