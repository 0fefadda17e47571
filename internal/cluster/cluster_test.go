package cluster

import (
	"database/sql"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/lapweather/internal/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStandardize(t *testing.T) {
	points := [][]float64{
		{80, 18, 60, 12},
		{82, 18, 60, 12},
		{84, 18, 60, 12},
		{86, 18, 60, 12},
	}
	scaled := Standardize(points)
	require.Len(t, scaled, 4)

	var sum, sumSq float64
	for _, p := range scaled {
		sum += p[0]
		sumSq += p[0] * p[0]
		assert.Equal(t, []float64{0, 0, 0}, p[1:], "constant columns become zero")
	}
	assert.InDelta(t, 0, sum/4, 1e-12)
	assert.InDelta(t, 1, sumSq/4, 1e-12, "population variance is 1")
	assert.InDelta(t, -3/math.Sqrt(5), scaled[0][0], 1e-12)

	assert.Equal(t, []float64{80, 18, 60, 12}, points[0], "input is not modified")
	assert.Nil(t, Standardize(nil))
}

func blobs() ([][]float64, []int) {
	centers := [][]float64{{0, 0}, {10, 10}, {-10, 10}}
	offsets := [][]float64{{0, 0}, {0.3, 0}, {0, 0.3}, {-0.3, 0}, {0, -0.3}, {0.2, 0.2}}
	var points [][]float64
	var truth []int
	for c, center := range centers {
		for _, o := range offsets {
			points = append(points, []float64{center[0] + o[0], center[1] + o[1]})
			truth = append(truth, c)
		}
	}
	return points, truth
}

func TestKMeansSeparatesBlobs(t *testing.T) {
	points, truth := blobs()
	labels := KMeans{K: 3, Seed: DefaultSeed, MaxIter: DefaultMaxIter, Tol: DefaultTol}.Fit(points)
	require.Len(t, labels, len(points))

	mapping := map[int]int{}
	for i, l := range labels {
		assert.GreaterOrEqual(t, l, 0)
		assert.Less(t, l, 3)
		if m, ok := mapping[truth[i]]; ok {
			assert.Equal(t, m, l, "point %d split from its blob", i)
		} else {
			mapping[truth[i]] = l
		}
	}
	assert.Len(t, mapping, 3)
	distinct := map[int]bool{}
	for _, l := range mapping {
		distinct[l] = true
	}
	assert.Len(t, distinct, 3, "each blob gets its own label")
}

func TestKMeansDeterministic(t *testing.T) {
	points := make([][]float64, 60)
	for i := range points {
		points[i] = []float64{math.Sin(float64(i)) * 3, math.Cos(float64(i)*1.7) * 2, float64(i % 7)}
	}
	km := KMeans{K: 3, Seed: 42, MaxIter: DefaultMaxIter, Tol: DefaultTol}
	first := km.Fit(points)
	for run := 0; run < 5; run++ {
		assert.Equal(t, first, km.Fit(points))
	}
}

func TestKMeansFewerDistinctPointsThanK(t *testing.T) {
	points := [][]float64{{1, 1}, {1, 1}, {1, 1}, {1, 1}, {1, 1}}
	labels := KMeans{K: 3, Seed: 42, MaxIter: DefaultMaxIter, Tol: DefaultTol}.Fit(points)
	for _, l := range labels {
		assert.GreaterOrEqual(t, l, 0)
		assert.Less(t, l, 3)
	}
}

func TestDBSCAN(t *testing.T) {
	points, truth := blobs()
	points = append(points, []float64{50, 50})

	labels := DBSCAN{Eps: 1.0, MinPts: 5}.Fit(points)
	require.Len(t, labels, len(points))

	for i := range truth {
		assert.Equal(t, truth[i], labels[i], "blobs are labelled in discovery order")
	}
	assert.Equal(t, Noise, labels[len(labels)-1])
}

func TestDBSCANBorderAndNoise(t *testing.T) {
	// The origin has five points within eps and is core. (1.8, 0) is only
	// within eps of (0.9, 0), which is a border point, so it stays noise.
	points := [][]float64{
		{0, 0}, {0.5, 0}, {-0.5, 0}, {0, 0.5}, {0.9, 0},
		{1.8, 0},
		{5, 5},
	}
	labels := DBSCAN{Eps: 1.0, MinPts: 5}.Fit(points)
	assert.Equal(t, []int{0, 0, 0, 0, 0, Noise, Noise}, labels)

	// With the border point within eps of a core point it joins the cluster.
	points[5] = []float64{1.0, 0}
	labels = DBSCAN{Eps: 1.0, MinPts: 5}.Fit(points)
	assert.Equal(t, 0, labels[5], "distance exactly eps counts as a neighbour")
	assert.Equal(t, Noise, labels[6])
}

func TestDBSCANAllNoise(t *testing.T) {
	points := [][]float64{{0, 0}, {3, 0}, {6, 0}, {9, 0}, {12, 0}}
	for _, l := range (DBSCAN{Eps: 1.0, MinPts: 5}).Fit(points) {
		assert.Equal(t, Noise, l)
	}
}

func lapRows(n int) []models.FeatureRow {
	rows := make([]models.FeatureRow, n)
	drivers := []string{"VER", "ALO", "GAS", "PER"}
	for i := range rows {
		rows[i] = models.FeatureRow{
			LapNumber:        i/len(drivers) + 1,
			Driver:           drivers[i%len(drivers)],
			LapTimeSeconds:   sql.NullFloat64{Float64: 75 + float64(i%5)*0.4 + float64(i/10)*6, Valid: true},
			Temperature:      sql.NullFloat64{Float64: 18, Valid: true},
			RelativeHumidity: sql.NullFloat64{Float64: 60, Valid: true},
			WindSpeed:        sql.NullFloat64{Float64: 12, Valid: true},
		}
	}
	return rows
}

func TestEngineAllRowsClustered(t *testing.T) {
	rows := lapRows(20)
	out, res, err := NewEngine(discardLogger()).Assign(rows)
	require.NoError(t, err)
	require.Len(t, out, 20)

	assert.Equal(t, 20, res.Clustered)
	assert.Equal(t, 0, res.Excluded)
	for i, row := range out {
		assert.Equal(t, rows[i].Key(), row.Key())
		require.True(t, row.KMeansCluster.Valid)
		require.True(t, row.DBSCANCluster.Valid)
		assert.GreaterOrEqual(t, row.KMeansCluster.Int64, int64(0))
		assert.LessOrEqual(t, row.KMeansCluster.Int64, int64(2))
		assert.GreaterOrEqual(t, row.DBSCANCluster.Int64, int64(Noise))
	}
	assert.False(t, rows[0].KMeansCluster.Valid, "input rows are not modified")
}

func TestEngineExcludesIncompleteRows(t *testing.T) {
	rows := lapRows(20)
	missing := map[int]bool{0: true, 3: true, 7: true, 12: true, 19: true}
	for i := range missing {
		rows[i].LapTimeSeconds = sql.NullFloat64{}
	}

	out, res, err := NewEngine(discardLogger()).Assign(rows)
	require.NoError(t, err)
	require.Len(t, out, 20)
	assert.Equal(t, 15, res.Clustered)
	assert.Equal(t, 5, res.Excluded)

	labelled := 0
	for i, row := range out {
		if missing[i] {
			assert.False(t, row.KMeansCluster.Valid, "row %d", i)
			assert.False(t, row.DBSCANCluster.Valid, "row %d", i)
			continue
		}
		assert.True(t, row.KMeansCluster.Valid, "row %d", i)
		assert.True(t, row.DBSCANCluster.Valid, "row %d", i)
		labelled++
	}
	assert.Equal(t, 15, labelled)
}

func TestEngineExcludedRowsDoNotShiftScaling(t *testing.T) {
	rows := lapRows(20)
	withOutlier := append([]models.FeatureRow(nil), rows...)
	withOutlier = append(withOutlier, models.FeatureRow{
		LapNumber:   99,
		Driver:      "SAR",
		Temperature: sql.NullFloat64{Float64: 40, Valid: true},
		WindSpeed:   sql.NullFloat64{Float64: 90, Valid: true},
	})

	e := NewEngine(discardLogger())
	a, _, err := e.Assign(rows)
	require.NoError(t, err)
	b, _, err := e.Assign(withOutlier)
	require.NoError(t, err)
	for i := range a {
		assert.Equal(t, a[i].KMeansCluster, b[i].KMeansCluster)
		assert.Equal(t, a[i].DBSCANCluster, b[i].DBSCANCluster)
	}
	assert.False(t, b[20].KMeansCluster.Valid)
}

func TestEngineClearsStaleLabels(t *testing.T) {
	rows := lapRows(6)
	rows[2].LapTimeSeconds = sql.NullFloat64{}
	rows[2].KMeansCluster = sql.NullInt64{Int64: 1, Valid: true}

	out, _, err := NewEngine(discardLogger()).Assign(rows)
	require.NoError(t, err)
	assert.False(t, out[2].KMeansCluster.Valid)
}

func TestEngineInsufficientRows(t *testing.T) {
	tests := []struct {
		name string
		rows []models.FeatureRow
	}{
		{"empty", nil},
		{"four complete", lapRows(4)},
		{"many rows few complete", func() []models.FeatureRow {
			rows := lapRows(12)
			for i := 4; i < 12; i++ {
				rows[i].LapTimeSeconds = sql.NullFloat64{}
			}
			return rows
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, res, err := NewEngine(discardLogger()).Assign(tt.rows)
			require.ErrorIs(t, err, ErrInsufficientRows)
			require.Len(t, out, len(tt.rows))
			assert.Equal(t, 0, res.Clustered)
			for _, row := range out {
				assert.False(t, row.KMeansCluster.Valid)
				assert.False(t, row.DBSCANCluster.Valid)
			}
		})
	}
}

func TestEngineDeterministic(t *testing.T) {
	rows := lapRows(40)
	e := NewEngine(discardLogger())
	first, _, err := e.Assign(rows)
	require.NoError(t, err)
	second, _, err := e.Assign(rows)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
