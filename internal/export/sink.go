// Package export writes the joined lap table to disk: a CSV, a SQLite
// analytics container and an optional chart.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/lox/lapweather/internal/models"
)

type Paths struct {
	CSV     string
	Extract string
	Chart   string // empty when charting is off
}

type Sink struct {
	dir    string
	chart  bool
	logger *slog.Logger
}

func NewSink(dir string, chart bool, logger *slog.Logger) *Sink {
	return &Sink{dir: dir, chart: chart, logger: logger}
}

// BaseName is the file stem shared by every output of a session, e.g.
// f1_2023_zandvoort_live_weather_analysis.
func BaseName(s models.Session) string {
	loc := strings.ToLower(strings.Join(strings.Fields(s.Location), "_"))
	return fmt.Sprintf("f1_%d_%s_live_weather_analysis", s.Year, loc)
}

// Write replaces every output for the session. The first failure aborts.
func (s *Sink) Write(ctx context.Context, session models.Session, rows []models.FeatureRow) (Paths, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return Paths{}, fmt.Errorf("%w: create %s: %w", ErrExport, s.dir, err)
	}

	base := filepath.Join(s.dir, BaseName(session))
	paths := Paths{
		CSV:     base + ".csv",
		Extract: base + ".sqlite",
	}

	if err := WriteCSV(paths.CSV, rows); err != nil {
		return Paths{}, err
	}
	s.logger.Info("export: wrote csv", "path", paths.CSV, "rows", len(rows))

	if err := WriteExtract(ctx, paths.Extract, rows); err != nil {
		return Paths{}, err
	}
	s.logger.Info("export: wrote extract", "path", paths.Extract, "rows", len(rows))

	if s.chart {
		paths.Chart = base + ".png"
		title := fmt.Sprintf("%d %s %s: lap time by k-means cluster", session.Year, session.Location, session.Name)
		if err := WriteChart(paths.Chart, title, rows); err != nil {
			return Paths{}, err
		}
		s.logger.Info("export: wrote chart", "path", paths.Chart)
	}

	return paths, nil
}
