package models

import (
	"database/sql"
	"time"
)

type Snapshot struct {
	Temperature float64
	WindSpeed   float64
	IsRaining   bool
	Time        time.Time
}

type ForecastRow struct {
	Time             time.Time
	Temperature      float64
	RelativeHumidity float64
	WindSpeed        float64
	Precipitation    float64
	IsRaining        bool
}

// ForecastTable is ordered as the provider returned it (ascending time).
type ForecastTable []ForecastRow

type Session struct {
	Year     int
	Location string
	Name     string // "Race", "Qualifying", ...
	Start    time.Time
	// StartFallback is set when Start came from configuration because the
	// provider did not supply a usable session start.
	StartFallback bool
}

// Lap is a single timing record as supplied by a telemetry provider.
type Lap struct {
	LapNumber   int
	Driver      string
	StartOffset time.Duration  // since session start
	Duration    *time.Duration // nil when the lap has no recorded time
}

// LapKey identifies a lap across joins.
type LapKey struct {
	LapNumber int
	Driver    string
}

func (l Lap) Key() LapKey {
	return LapKey{LapNumber: l.LapNumber, Driver: l.Driver}
}

type FeatureRow struct {
	LapNumber        int
	Driver           string
	LapStartTime     time.Time
	LapTimeSeconds   sql.NullFloat64
	Temperature      sql.NullFloat64
	RelativeHumidity sql.NullFloat64
	WindSpeed        sql.NullFloat64
	IsRaining        bool
	KMeansCluster    sql.NullInt64
	DBSCANCluster    sql.NullInt64
}

func (r FeatureRow) Key() LapKey {
	return LapKey{LapNumber: r.LapNumber, Driver: r.Driver}
}

// HasFeatures reports whether every clustering input is present.
func (r FeatureRow) HasFeatures() bool {
	return r.LapTimeSeconds.Valid && r.Temperature.Valid && r.RelativeHumidity.Valid && r.WindSpeed.Valid
}

type LapStats struct {
	DryLaps   int
	WetLaps   int
	AvgDry    sql.NullFloat64
	AvgWet    sql.NullFloat64
	Clustered int
	NoiseLaps int
}
