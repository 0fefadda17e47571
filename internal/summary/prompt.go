package summary

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lox/lapweather/internal/models"
)

// Stats averages lap times separately for dry and wet laps. Laps without a
// lap time count toward neither average.
func Stats(rows []models.FeatureRow) models.LapStats {
	var st models.LapStats
	var drySum, wetSum float64
	var dryN, wetN int
	for _, r := range rows {
		if r.IsRaining {
			st.WetLaps++
		} else {
			st.DryLaps++
		}
		if r.KMeansCluster.Valid {
			st.Clustered++
		}
		if r.DBSCANCluster.Valid && r.DBSCANCluster.Int64 < 0 {
			st.NoiseLaps++
		}
		if !r.LapTimeSeconds.Valid {
			continue
		}
		if r.IsRaining {
			wetSum += r.LapTimeSeconds.Float64
			wetN++
		} else {
			drySum += r.LapTimeSeconds.Float64
			dryN++
		}
	}
	if dryN > 0 {
		st.AvgDry = sql.NullFloat64{Float64: drySum / float64(dryN), Valid: true}
	}
	if wetN > 0 {
		st.AvgWet = sql.NullFloat64{Float64: wetSum / float64(wetN), Valid: true}
	}
	return st
}

// BuildPrompt formats the strategy request sent to the text service.
func BuildPrompt(session models.Session, snap models.Snapshot, forecast models.ForecastTable, st models.LapStats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The race was held at %s in %d (%s).\n", session.Location, session.Year, session.Name)
	fmt.Fprintf(&b, "Current live weather: temperature %.1f°C, wind speed %.1f km/h, raining: %t, observed at %s.\n",
		snap.Temperature, snap.WindSpeed, snap.IsRaining, snap.Time.UTC().Format(time.RFC3339))

	if len(forecast) == 0 {
		b.WriteString("Forecast for the next hours: no hourly records in range.\n")
	} else {
		b.WriteString("Forecast for the next hours:\n")
		for _, r := range forecast {
			fmt.Fprintf(&b, "  %s: %.1f°C, humidity %.0f%%, wind %.1f km/h, precipitation %.1f mm, raining: %t\n",
				r.Time.UTC().Format("2006-01-02 15:04"), r.Temperature, r.RelativeHumidity, r.WindSpeed, r.Precipitation, r.IsRaining)
		}
	}

	fmt.Fprintf(&b, "- Average dry lap time: %s seconds\n", seconds(st.AvgDry))
	fmt.Fprintf(&b, "- Average wet lap time: %s seconds\n", seconds(st.AvgWet))
	b.WriteString("- Clusters were formed based on lap time, air temp, humidity, and wind speed.\n\n")
	b.WriteString("Suggest pit strategies considering both current and forecast weather.\n")
	return b.String()
}

func seconds(v sql.NullFloat64) string {
	if !v.Valid {
		return "n/a"
	}
	return fmt.Sprintf("%.3f", v.Float64)
}
