// Package cluster assigns k-means and DBSCAN labels to laps from their lap
// time and weather features.
package cluster

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lox/lapweather/internal/models"
)

// ErrInsufficientRows is returned when too few laps have complete features
// to cluster. The rows are still returned, all without labels.
var ErrInsufficientRows = errors.New("cluster: insufficient rows")

const (
	DefaultK       = 3
	DefaultSeed    = 42
	DefaultEps     = 1.0
	DefaultMinPts  = 5
	DefaultMaxIter = 300
	DefaultTol     = 1e-4
)

type Engine struct {
	KMeans KMeans
	DBSCAN DBSCAN
	logger *slog.Logger
}

func NewEngine(logger *slog.Logger) *Engine {
	return &Engine{
		KMeans: KMeans{K: DefaultK, Seed: DefaultSeed, MaxIter: DefaultMaxIter, Tol: DefaultTol},
		DBSCAN: DBSCAN{Eps: DefaultEps, MinPts: DefaultMinPts},
		logger: logger,
	}
}

type Result struct {
	Clustered int // rows with complete features
	Excluded  int
	Clusters  int // DBSCAN clusters, noise excluded
	Noise     int
}

// Assign returns a copy of rows with cluster labels. Only rows with every
// feature present are clustered; the rest keep null labels. Labels are
// matched back by (LapNumber, Driver).
func (e *Engine) Assign(rows []models.FeatureRow) ([]models.FeatureRow, Result, error) {
	out := make([]models.FeatureRow, len(rows))
	copy(out, rows)
	for i := range out {
		out[i].KMeansCluster = sql.NullInt64{}
		out[i].DBSCANCluster = sql.NullInt64{}
	}

	var keys []models.LapKey
	var points [][]float64
	for _, row := range rows {
		if !row.HasFeatures() {
			continue
		}
		keys = append(keys, row.Key())
		points = append(points, []float64{
			row.LapTimeSeconds.Float64,
			row.Temperature.Float64,
			row.RelativeHumidity.Float64,
			row.WindSpeed.Float64,
		})
	}

	res := Result{Clustered: len(points), Excluded: len(rows) - len(points)}
	minRows := max(e.DBSCAN.MinPts, 1)
	if len(points) < minRows {
		res.Clustered = 0
		res.Excluded = len(rows)
		return out, res, fmt.Errorf("%w: %d complete rows, need at least %d", ErrInsufficientRows, len(points), minRows)
	}

	scaled := Standardize(points)
	kmLabels := e.KMeans.Fit(scaled)
	dbLabels := e.DBSCAN.Fit(scaled)

	type labels struct{ km, db int }
	byKey := make(map[models.LapKey]labels, len(keys))
	seen := map[int]bool{}
	for i, key := range keys {
		byKey[key] = labels{km: kmLabels[i], db: dbLabels[i]}
		if dbLabels[i] == Noise {
			res.Noise++
		} else {
			seen[dbLabels[i]] = true
		}
	}
	res.Clusters = len(seen)

	for i := range out {
		if !out[i].HasFeatures() {
			continue
		}
		l, ok := byKey[out[i].Key()]
		if !ok {
			continue
		}
		out[i].KMeansCluster = sql.NullInt64{Int64: int64(l.km), Valid: true}
		out[i].DBSCANCluster = sql.NullInt64{Int64: int64(l.db), Valid: true}
	}

	e.logger.Debug("cluster: assigned labels",
		"clustered", res.Clustered,
		"excluded", res.Excluded,
		"dbscan_clusters", res.Clusters,
		"noise", res.Noise)
	return out, res, nil
}
