package cluster

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// KMeans partitions points into K clusters with k-means++ seeding and
// Lloyd iterations. The same Seed always yields the same labels.
type KMeans struct {
	K       int
	Seed    uint64
	MaxIter int
	// Tol is relative to the mean per-column variance of the input; the
	// iteration stops once the squared centre movement drops below it.
	Tol float64
}

// Fit returns one label in [0, K) per point.
func (km KMeans) Fit(points [][]float64) []int {
	labels := make([]int, len(points))
	if len(points) == 0 || km.K <= 0 {
		return labels
	}

	rng := rand.New(rand.NewPCG(km.Seed, km.Seed))
	centers := km.seed(points, rng)
	tol := km.Tol * meanVariance(points)

	for iter := 0; iter < km.MaxIter; iter++ {
		assign(points, centers, labels)
		next := recenter(points, labels, centers)

		var shift float64
		for c := range centers {
			d := floats.Distance(centers[c], next[c], 2)
			shift += d * d
		}
		centers = next
		if shift <= tol {
			break
		}
	}
	assign(points, centers, labels)
	return labels
}

// seed picks initial centres with k-means++: each new centre is drawn with
// probability proportional to its squared distance from the nearest chosen
// centre.
func (km KMeans) seed(points [][]float64, rng *rand.Rand) [][]float64 {
	centers := make([][]float64, 0, km.K)
	first := points[rng.IntN(len(points))]
	centers = append(centers, append([]float64(nil), first...))

	dist := make([]float64, len(points))
	for i, p := range points {
		dist[i] = sqDist(p, centers[0])
	}

	for len(centers) < km.K {
		total := floats.Sum(dist)
		pick := rng.IntN(len(points))
		if total > 0 {
			r := rng.Float64() * total
			var acc float64
			for i, d := range dist {
				acc += d
				if acc >= r && d > 0 {
					pick = i
					break
				}
			}
		}
		center := append([]float64(nil), points[pick]...)
		centers = append(centers, center)
		for i, p := range points {
			if d := sqDist(p, center); d < dist[i] {
				dist[i] = d
			}
		}
	}
	return centers
}

// assign labels every point with its nearest centre; ties go to the lower index.
func assign(points, centers [][]float64, labels []int) {
	for i, p := range points {
		best, bestDist := 0, math.Inf(1)
		for c, center := range centers {
			if d := sqDist(p, center); d < bestDist {
				best, bestDist = c, d
			}
		}
		labels[i] = best
	}
}

// recenter returns the mean of each cluster. An empty cluster keeps its
// previous centre.
func recenter(points [][]float64, labels []int, prev [][]float64) [][]float64 {
	dims := len(points[0])
	sums := make([][]float64, len(prev))
	counts := make([]int, len(prev))
	for c := range sums {
		sums[c] = make([]float64, dims)
	}
	for i, p := range points {
		floats.Add(sums[labels[i]], p)
		counts[labels[i]]++
	}
	for c := range sums {
		if counts[c] == 0 {
			copy(sums[c], prev[c])
			continue
		}
		floats.Scale(1/float64(counts[c]), sums[c])
	}
	return sums
}

func meanVariance(points [][]float64) float64 {
	dims := len(points[0])
	col := make([]float64, len(points))
	var total float64
	for d := 0; d < dims; d++ {
		for i, p := range points {
			col[i] = p[d]
		}
		total += stat.PopVariance(col, nil)
	}
	return total / float64(dims)
}

func sqDist(a, b []float64) float64 {
	d := floats.Distance(a, b, 2)
	return d * d
}
