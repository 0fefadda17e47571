package cluster

import (
	"gonum.org/v1/gonum/floats"
)

// Noise labels points that are neither core points nor reachable from one.
const Noise = -1

// DBSCAN groups points by density. A point is a core point when at least
// MinPts points (itself included) lie within Eps of it.
type DBSCAN struct {
	Eps    float64
	MinPts int
}

// Fit returns a label per point: cluster ids from 0 in discovery order, or
// Noise. Labels depend only on the geometry and the input order.
func (db DBSCAN) Fit(points [][]float64) []int {
	n := len(points)
	labels := make([]int, n)
	for i := range labels {
		labels[i] = Noise
	}

	neighbors := make([][]int, n)
	core := make([]bool, n)
	for i := range points {
		for j := range points {
			if floats.Distance(points[i], points[j], 2) <= db.Eps {
				neighbors[i] = append(neighbors[i], j)
			}
		}
		core[i] = len(neighbors[i]) >= db.MinPts
	}

	next := 0
	var stack []int
	for i := range points {
		if labels[i] != Noise || !core[i] {
			continue
		}
		stack = append(stack[:0], i)
		for len(stack) > 0 {
			p := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if labels[p] != Noise {
				continue
			}
			labels[p] = next
			if !core[p] {
				continue
			}
			for _, q := range neighbors[p] {
				if labels[q] == Noise {
					stack = append(stack, q)
				}
			}
		}
		next++
	}
	return labels
}
