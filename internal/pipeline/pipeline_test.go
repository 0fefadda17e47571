package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/lapweather/internal/cluster"
	"github.com/lox/lapweather/internal/export"
	"github.com/lox/lapweather/internal/features"
	"github.com/lox/lapweather/internal/launch"
	"github.com/lox/lapweather/internal/metrics"
	"github.com/lox/lapweather/internal/models"
	"github.com/lox/lapweather/internal/report"
	"github.com/lox/lapweather/internal/summary"
	"github.com/lox/lapweather/internal/weather"
)

var (
	sessionStart = time.Date(2023, 8, 27, 13, 0, 0, 0, time.UTC)
	snapshotTime = time.Date(2023, 8, 27, 14, 0, 0, 0, time.UTC)
)

type fakeWeather struct {
	snap     models.Snapshot
	forecast models.ForecastTable
	err      error
}

func (f *fakeWeather) Fetch(context.Context, float64, float64) (models.Snapshot, models.ForecastTable, error) {
	return f.snap, f.forecast, f.err
}

type fakeTelemetry struct {
	session models.Session
	laps    []models.Lap
	err     error
	calls   int
}

func (f *fakeTelemetry) Load(context.Context) (models.Session, []models.Lap, error) {
	f.calls++
	return f.session, f.laps, f.err
}

type fakeExporter struct {
	rows []models.FeatureRow
	err  error
}

func (f *fakeExporter) Write(_ context.Context, _ models.Session, rows []models.FeatureRow) (export.Paths, error) {
	if f.err != nil {
		return export.Paths{}, f.err
	}
	f.rows = rows
	return export.Paths{CSV: "laps.csv", Extract: "laps.sqlite"}, nil
}

type fakeSummary struct {
	text   string
	err    error
	prompt string
}

func (f *fakeSummary) Summarize(_ context.Context, prompt string) (string, error) {
	f.prompt = prompt
	return f.text, f.err
}

type fakeLauncher struct {
	err    error
	opened []string
}

func (f *fakeLauncher) Open(path string) error {
	f.opened = append(f.opened, path)
	return f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func laps(n int) []models.Lap {
	drivers := []string{"VER", "ALO", "GAS", "PER"}
	out := make([]models.Lap, n)
	for i := range out {
		d := time.Duration(74_000+(i%5)*400+(i/10)*6_000) * time.Millisecond
		out[i] = models.Lap{
			LapNumber:   i/len(drivers) + 1,
			Driver:      drivers[i%len(drivers)],
			StartOffset: time.Duration(i/len(drivers)) * 80 * time.Second,
			Duration:    &d,
		}
	}
	return out
}

func forecast() models.ForecastTable {
	var t models.ForecastTable
	for h := -2; h < 6; h++ {
		t = append(t, models.ForecastRow{Time: snapshotTime.Add(time.Duration(h) * time.Hour), Temperature: 18, RelativeHumidity: 75, WindSpeed: 14})
	}
	return t
}

type harness struct {
	weather   *fakeWeather
	telemetry *fakeTelemetry
	exporter  *fakeExporter
	summary   *fakeSummary
	launcher  *fakeLauncher
	metrics   *metrics.Metrics
	clock     *clockwork.FakeClock
	out       *bytes.Buffer
}

func newHarness(n int) *harness {
	return &harness{
		weather: &fakeWeather{
			snap:     models.Snapshot{Temperature: 18.0, WindSpeed: 12.0, IsRaining: false, Time: snapshotTime},
			forecast: forecast(),
		},
		telemetry: &fakeTelemetry{
			session: models.Session{Year: 2023, Location: "Zandvoort", Name: "Race", Start: sessionStart},
			laps:    laps(n),
		},
		exporter: &fakeExporter{},
		summary:  &fakeSummary{text: "Pit on lap 30."},
		launcher: &fakeLauncher{},
		metrics:  metrics.New(),
		clock:    clockwork.NewFakeClockAt(snapshotTime),
		out:      &bytes.Buffer{},
	}
}

func (h *harness) pipeline() *Pipeline {
	return New(Deps{
		Weather:   h.weather,
		Telemetry: h.telemetry,
		Cluster:   cluster.NewEngine(discardLogger()),
		Export:    h.exporter,
		Summary:   h.summary,
		Launcher:  h.launcher,
		Report:    report.New(h.out),
		Metrics:   h.metrics,
		Clock:     h.clock,
		Logger:    discardLogger(),
	}, Options{Lat: 52.3888, Lon: 4.5409, Horizon: 3 * time.Hour, Humidity: features.PlaceholderHumidity, Provider: "gemini"})
}

func TestMain(m *testing.M) {
	color.NoColor = true
	m.Run()
}

func TestRunDrySession(t *testing.T) {
	h := newHarness(20)
	res, err := h.pipeline().Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, snapshotTime, res.StartedAt)
	require.Len(t, res.Rows, 20)
	require.Len(t, h.exporter.rows, 20)
	for _, row := range h.exporter.rows {
		assert.False(t, row.IsRaining)
		assert.True(t, row.KMeansCluster.Valid)
		assert.True(t, row.DBSCANCluster.Valid)
		assert.Equal(t, 60.0, row.RelativeHumidity.Float64)
	}
	assert.Equal(t, 20, res.Cluster.Clustered)
	assert.Equal(t, 0, res.Cluster.Excluded)

	assert.Len(t, res.Forecast, 4, "window keeps hours 14:00 through 17:00")
	assert.Equal(t, 20, res.Stats.DryLaps)
	assert.False(t, res.Stats.AvgWet.Valid)

	assert.Equal(t, "Pit on lap 30.", res.Summary)
	assert.Contains(t, h.summary.prompt, "Average wet lap time: n/a seconds")
	assert.Equal(t, []string{"laps.sqlite"}, h.launcher.opened)

	assert.Equal(t, 20.0, testutil.ToFloat64(h.metrics.LapsJoined))
	assert.Equal(t, 20.0, testutil.ToFloat64(h.metrics.LapsClustered))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.WeatherFetches.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Summaries.WithLabelValues("gemini", "ok")))

	assert.Contains(t, h.out.String(), "Strategy summary")
}

func TestRunMissingLapTimes(t *testing.T) {
	h := newHarness(20)
	for _, i := range []int{1, 6, 11, 16, 19} {
		h.telemetry.laps[i].Duration = nil
	}

	res, err := h.pipeline().Run(context.Background())
	require.NoError(t, err)
	require.Len(t, h.exporter.rows, 20, "rows with missing features are kept")
	assert.Equal(t, 15, res.Cluster.Clustered)

	labelled := 0
	for _, row := range h.exporter.rows {
		if row.LapTimeSeconds.Valid {
			assert.True(t, row.KMeansCluster.Valid)
			labelled++
			continue
		}
		assert.False(t, row.KMeansCluster.Valid)
		assert.False(t, row.DBSCANCluster.Valid)
	}
	assert.Equal(t, 15, labelled)
}

func TestRunRecordsQualityFlags(t *testing.T) {
	h := newHarness(20)
	h.weather.forecast[3].RelativeHumidity = 130

	res, err := h.pipeline().Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"humidity_invalid:2023-08-27T15:00"}, res.QualityFlags)
}

func TestRunTooFewLapsStillExports(t *testing.T) {
	h := newHarness(4)
	res, err := h.pipeline().Run(context.Background())
	require.NoError(t, err)

	require.Len(t, h.exporter.rows, 4)
	for _, row := range h.exporter.rows {
		assert.False(t, row.KMeansCluster.Valid)
	}
	assert.Equal(t, 0, res.Cluster.Clustered)
}

func TestRunWeatherErrorsAreFatal(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status string
	}{
		{"network", fmt.Errorf("%w: dial tcp: refused", weather.ErrNetwork), "network"},
		{"decode", fmt.Errorf("%w: current_weather missing", weather.ErrDecode), "decode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(20)
			h.weather.err = tt.err

			_, err := h.pipeline().Run(context.Background())
			require.ErrorIs(t, err, tt.err)
			assert.Equal(t, 0, h.telemetry.calls, "nothing runs after the weather fails")
			assert.Nil(t, h.exporter.rows)
			assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.WeatherFetches.WithLabelValues(tt.status)))
		})
	}
}

func TestRunTelemetryErrorIsFatal(t *testing.T) {
	h := newHarness(20)
	h.telemetry.err = errors.New("openf1: status 503")

	_, err := h.pipeline().Run(context.Background())
	require.Error(t, err)
	assert.Nil(t, h.exporter.rows)
}

func TestRunDuplicateLapIsFatal(t *testing.T) {
	h := newHarness(8)
	h.telemetry.laps = append(h.telemetry.laps, h.telemetry.laps[0])

	_, err := h.pipeline().Run(context.Background())
	require.ErrorIs(t, err, features.ErrDuplicateLap)
}

func TestRunExportErrorIsFatal(t *testing.T) {
	h := newHarness(20)
	h.exporter.err = fmt.Errorf("%w: read-only file system", export.ErrExport)

	_, err := h.pipeline().Run(context.Background())
	require.ErrorIs(t, err, export.ErrExport)
	assert.Empty(t, h.summary.prompt, "summary is not requested")
	assert.Empty(t, h.launcher.opened)
}

func TestRunSummaryFailureIsNotFatal(t *testing.T) {
	h := newHarness(20)
	h.summary.err = fmt.Errorf("%w: gemini: 503", summary.ErrSummary)

	res, err := h.pipeline().Run(context.Background())
	require.NoError(t, err)
	require.ErrorIs(t, res.SummaryErr, summary.ErrSummary)
	assert.Empty(t, res.Summary)
	assert.Equal(t, []string{"laps.sqlite"}, h.launcher.opened, "launch still runs")
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Summaries.WithLabelValues("gemini", "error")))
	assert.Contains(t, h.out.String(), "strategy summary unavailable")
}

func TestRunLaunchFailureIsNotFatal(t *testing.T) {
	h := newHarness(20)
	h.launcher.err = fmt.Errorf("%w: sqlitebrowser", launch.ErrApplicationNotFound)

	res, err := h.pipeline().Run(context.Background())
	require.NoError(t, err)
	require.ErrorIs(t, res.LaunchErr, launch.ErrApplicationNotFound)
	assert.Equal(t, "Pit on lap 30.", res.Summary)
}

func TestRunWithoutOptionalStages(t *testing.T) {
	h := newHarness(20)
	p := h.pipeline()
	p.Summary = nil
	p.Launcher = nil

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Summary)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Summaries.WithLabelValues("gemini", "skipped")))
}

func TestRunIsIdempotent(t *testing.T) {
	first, err := newHarness(40).pipeline().Run(context.Background())
	require.NoError(t, err)
	second, err := newHarness(40).pipeline().Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first.Rows, second.Rows)
}

func TestRunWritesRealExports(t *testing.T) {
	h := newHarness(20)
	p := h.pipeline()
	p.Export = export.NewSink(filepath.Join(t.TempDir(), "out"), false, discardLogger())

	res, err := p.Run(context.Background())
	require.NoError(t, err)

	rows, err := export.ReadExtract(context.Background(), res.Paths.Extract)
	require.NoError(t, err)
	require.Len(t, rows, 20)
	for _, row := range rows {
		assert.False(t, row.IsRaining)
		assert.True(t, row.KMeansCluster.Valid)
	}
	assert.Equal(t, []string{res.Paths.Extract}, h.launcher.opened)
}
