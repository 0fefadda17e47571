package export

import (
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/lox/lapweather/internal/models"
)

var csvHeader = []string{
	"LapNumber", "Driver", "LapStartTime", "LapTimeSeconds",
	"temp", "rhum", "wspd", "Rain", "KMeans_Cluster", "DBSCAN_Cluster",
}

// WriteCSV replaces path with one line per row. Null values are empty cells.
func WriteCSV(path string, rows []models.FeatureRow) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: create %s: %w", ErrExport, path, err)
	}
	if err := EncodeCSV(f, rows); err != nil {
		f.Close()
		return fmt.Errorf("%w: write %s: %w", ErrExport, path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %w", ErrExport, path, err)
	}
	return nil
}

func EncodeCSV(w io.Writer, rows []models.FeatureRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{
			strconv.Itoa(r.LapNumber),
			r.Driver,
			r.LapStartTime.UTC().Format(time.RFC3339),
			formatFloat(r.LapTimeSeconds),
			formatFloat(r.Temperature),
			formatFloat(r.RelativeHumidity),
			formatFloat(r.WindSpeed),
			strconv.FormatBool(r.IsRaining),
			formatInt(r.KMeansCluster),
			formatInt(r.DBSCANCluster),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v sql.NullFloat64) string {
	if !v.Valid {
		return ""
	}
	return strconv.FormatFloat(v.Float64, 'f', -1, 64)
}

func formatInt(v sql.NullInt64) string {
	if !v.Valid {
		return ""
	}
	return strconv.FormatInt(v.Int64, 10)
}
