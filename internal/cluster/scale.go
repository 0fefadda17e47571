package cluster

import (
	"gonum.org/v1/gonum/stat"
)

// Standardize scales every column to zero mean and unit variance using the
// population statistics of points. A column with zero variance is centred
// but not scaled, so it becomes all zeros rather than NaN.
func Standardize(points [][]float64) [][]float64 {
	if len(points) == 0 {
		return nil
	}
	dims := len(points[0])
	out := make([][]float64, len(points))
	for i := range out {
		out[i] = make([]float64, dims)
	}

	col := make([]float64, len(points))
	for d := 0; d < dims; d++ {
		for i, p := range points {
			col[i] = p[d]
		}
		mean, std := stat.PopMeanStdDev(col, nil)
		if std == 0 {
			std = 1
		}
		for i, p := range points {
			out[i][d] = (p[d] - mean) / std
		}
	}
	return out
}
