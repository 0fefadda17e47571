package features

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lox/lapweather/internal/models"
)

// PlaceholderHumidity is the relative humidity given to every lap. The
// forecast table carries real humidity but it is not joined onto laps.
const PlaceholderHumidity = 60.0

var ErrDuplicateLap = errors.New("features: duplicate lap")

// Join builds one FeatureRow per lap, in input order. Weather is the single
// snapshot broadcast to every lap of the session. The lap start is rounded to
// the nearest minute; lap time is null when the provider had none.
func Join(session models.Session, laps []models.Lap, snapshot models.Snapshot, humidity float64) ([]models.FeatureRow, error) {
	seen := make(map[models.LapKey]struct{}, len(laps))
	rows := make([]models.FeatureRow, 0, len(laps))

	for _, lap := range laps {
		key := lap.Key()
		if _, ok := seen[key]; ok {
			return nil, fmt.Errorf("%w: lap %d driver %s", ErrDuplicateLap, key.LapNumber, key.Driver)
		}
		seen[key] = struct{}{}

		row := models.FeatureRow{
			LapNumber:        lap.LapNumber,
			Driver:           lap.Driver,
			LapStartTime:     session.Start.Add(lap.StartOffset).Round(time.Minute),
			Temperature:      sql.NullFloat64{Float64: snapshot.Temperature, Valid: true},
			RelativeHumidity: sql.NullFloat64{Float64: humidity, Valid: true},
			WindSpeed:        sql.NullFloat64{Float64: snapshot.WindSpeed, Valid: true},
			IsRaining:        snapshot.IsRaining,
		}
		if lap.Duration != nil {
			row.LapTimeSeconds = sql.NullFloat64{Float64: lap.Duration.Seconds(), Valid: true}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
