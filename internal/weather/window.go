package weather

import (
	"time"

	"github.com/lox/lapweather/internal/models"
)

const DefaultHorizon = 3 * time.Hour

// Window returns the rows with now <= Time <= now+horizon in their original
// order. It never fails; no rows in range yields an empty table.
func Window(table models.ForecastTable, now time.Time, horizon time.Duration) models.ForecastTable {
	end := now.Add(horizon)
	out := models.ForecastTable{}
	for _, row := range table {
		if row.Time.Before(now) || row.Time.After(end) {
			continue
		}
		out = append(out, row)
	}
	return out
}
