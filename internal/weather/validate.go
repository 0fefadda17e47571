package weather

import (
	"fmt"

	"github.com/lox/lapweather/internal/models"
)

const (
	FlagTempOutOfRange    = "temp_out_of_range"
	FlagHumidityInvalid   = "humidity_invalid"
	FlagWindSpeedUnlikely = "wind_speed_unlikely"
	FlagPrecipNegative    = "precip_negative"
	FlagStaleSnapshot     = "snapshot_after_forecast"
)

// QualityFlags lists implausible values in a fetched snapshot and forecast.
// Flags are advisory; the data is used regardless.
func QualityFlags(snap models.Snapshot, table models.ForecastTable) []string {
	var flags []string
	add := func(flag, where string) {
		flags = append(flags, fmt.Sprintf("%s:%s", flag, where))
	}

	if snap.Temperature < -30 || snap.Temperature > 60 {
		add(FlagTempOutOfRange, "current")
	}
	if snap.WindSpeed < 0 || snap.WindSpeed > 200 {
		add(FlagWindSpeedUnlikely, "current")
	}

	for _, r := range table {
		at := r.Time.UTC().Format("2006-01-02T15:04")
		if r.Temperature < -30 || r.Temperature > 60 {
			add(FlagTempOutOfRange, at)
		}
		if r.RelativeHumidity < 0 || r.RelativeHumidity > 100 {
			add(FlagHumidityInvalid, at)
		}
		if r.WindSpeed < 0 || r.WindSpeed > 200 {
			add(FlagWindSpeedUnlikely, at)
		}
		if r.Precipitation < 0 {
			add(FlagPrecipNegative, at)
		}
	}

	if n := len(table); n > 0 && snap.Time.After(table[n-1].Time) {
		add(FlagStaleSnapshot, "current")
	}
	return flags
}
