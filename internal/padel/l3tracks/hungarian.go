package l3tracks

import "math"

// hungarianInf marks a forbidden pairing in an assignment cost matrix.
const hungarianInf = 1e18

// HungarianAssign solves the rectangular minimum-cost assignment problem
// (Kuhn–Munkres with row/column potentials) for an n×m cost matrix. Row i
// is a track, column j a detection. It returns assign[i] = j, or -1 when
// row i is left unassigned. Costs ≥ hungarianInf are never selected.
func HungarianAssign(cost [][]float64) []int {
	n := len(cost)
	if n == 0 {
		return nil
	}
	m := len(cost[0])
	assign := make([]int, n)
	for i := range assign {
		assign[i] = -1
	}
	if m == 0 {
		return assign
	}

	dim := n
	if m > dim {
		dim = m
	}
	// Forbidden and padding cells use a finite stand-in just larger than any
	// all-finite assignment, keeping potentials well within float precision.
	maxFinite := 0.0
	for i := 0; i < n; i++ {
		for j := 0; j < m; j++ {
			if c := cost[i][j]; c < hungarianInf && math.Abs(c) > maxFinite {
				maxFinite = math.Abs(c)
			}
		}
	}
	big := (maxFinite + 1) * float64(dim+1)
	at := func(i, j int) float64 {
		if i < n && j < m && cost[i][j] < hungarianInf {
			return cost[i][j]
		}
		return big
	}

	const inf = math.MaxFloat64 / 2
	u := make([]float64, dim+1)
	v := make([]float64, dim+1)
	p := make([]int, dim+1) // p[j]: row matched to column j (1-indexed, 0 = none)
	way := make([]int, dim+1)
	minv := make([]float64, dim+1)
	used := make([]bool, dim+1)

	for i := 1; i <= dim; i++ {
		p[0] = i
		j0 := 0
		for j := 1; j <= dim; j++ {
			minv[j] = inf
			used[j] = false
		}
		for {
			used[j0] = true
			i0 := p[j0]
			delta := inf
			j1 := -1
			for j := 1; j <= dim; j++ {
				if used[j] {
					continue
				}
				cur := at(i0-1, j-1) - u[i0] - v[j]
				if cur < minv[j] {
					minv[j] = cur
					way[j] = j0
				}
				if minv[j] < delta {
					delta = minv[j]
					j1 = j
				}
			}
			if j1 < 0 {
				break
			}
			for j := 0; j <= dim; j++ {
				if used[j] {
					u[p[j]] += delta
					v[j] -= delta
				} else {
					minv[j] -= delta
				}
			}
			j0 = j1
			if p[j0] == 0 {
				break
			}
		}
		for j0 != 0 {
			p[j0] = p[way[j0]]
			j0 = way[j0]
		}
	}

	for j := 1; j <= dim; j++ {
		row, col := p[j]-1, j-1
		if row < 0 || row >= n || col >= m {
			continue
		}
		if cost[row][col] >= hungarianInf {
			continue
		}
		assign[row] = col
	}
	return assign
}
