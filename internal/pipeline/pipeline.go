// Package pipeline runs one analysis: weather, laps, join, clustering,
// export, summary and launch, in that order.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/lox/lapweather/internal/cluster"
	"github.com/lox/lapweather/internal/export"
	"github.com/lox/lapweather/internal/features"
	"github.com/lox/lapweather/internal/metrics"
	"github.com/lox/lapweather/internal/models"
	"github.com/lox/lapweather/internal/report"
	"github.com/lox/lapweather/internal/summary"
	"github.com/lox/lapweather/internal/telemetry"
	"github.com/lox/lapweather/internal/weather"
)

// WeatherFetcher returns the current conditions and the hourly forecast.
type WeatherFetcher interface {
	Fetch(ctx context.Context, lat, lon float64) (models.Snapshot, models.ForecastTable, error)
}

// Exporter writes the labelled rows for a session.
type Exporter interface {
	Write(ctx context.Context, session models.Session, rows []models.FeatureRow) (export.Paths, error)
}

// Launcher opens the exported container.
type Launcher interface {
	Open(path string) error
}

type Options struct {
	Lat      float64
	Lon      float64
	Horizon  time.Duration
	Humidity float64
	Provider string // summary provider name, for metrics
}

// Deps are the stages of a run. Summary and Launcher may be nil to skip
// those steps.
type Deps struct {
	Weather   WeatherFetcher
	Telemetry telemetry.Provider
	Cluster   *cluster.Engine
	Export    Exporter
	Summary   summary.Requester
	Launcher  Launcher
	Report    *report.Printer
	Metrics   *metrics.Metrics
	Clock     clockwork.Clock
	Logger    *slog.Logger
}

type Pipeline struct {
	Deps
	opts Options
}

func New(deps Deps, opts Options) *Pipeline {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if opts.Horizon == 0 {
		opts.Horizon = weather.DefaultHorizon
	}
	return &Pipeline{Deps: deps, opts: opts}
}

// Result is everything a run produced. SummaryErr and LaunchErr record
// failures that did not stop the run.
type Result struct {
	StartedAt time.Time
	Session   models.Session
	Snapshot  models.Snapshot
	Forecast  models.ForecastTable
	Rows      []models.FeatureRow
	Cluster   cluster.Result
	Stats     models.LapStats
	Paths     export.Paths

	QualityFlags []string

	Summary    string
	SummaryErr error
	LaunchErr  error
}

// Run executes every stage once. Errors from weather, telemetry, joining and
// export abort the run. Clustering, summary and launch failures are logged
// and recorded on the result.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	res := &Result{StartedAt: p.Clock.Now()}

	snap, forecast, err := p.fetchWeather(ctx)
	if err != nil {
		return nil, err
	}
	res.Snapshot = snap
	if flags := weather.QualityFlags(snap, forecast); len(flags) > 0 {
		res.QualityFlags = flags
		p.Logger.Warn("weather: implausible values", "flags", flags)
	}
	res.Forecast = weather.Window(forecast, snap.Time, p.opts.Horizon)
	p.Metrics.ForecastRows.Set(float64(len(res.Forecast)))
	p.Logger.Info("weather: snapshot",
		"temperature", snap.Temperature,
		"wind_speed", snap.WindSpeed,
		"raining", snap.IsRaining,
		"time", snap.Time,
		"forecast_rows", len(res.Forecast))
	p.Report.Weather(res.Snapshot, res.Forecast)

	start := p.Clock.Now()
	session, laps, err := p.Telemetry.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load laps: %w", err)
	}
	p.Metrics.ObserveStage("telemetry", start, p.Clock.Now())
	res.Session = session
	p.Logger.Info("telemetry: loaded session",
		"year", session.Year,
		"location", session.Location,
		"session", session.Name,
		"start", session.Start,
		"start_fallback", session.StartFallback,
		"laps", len(laps))

	p.Logger.Warn("features: relative humidity is a fixed value, not the forecast humidity",
		"humidity", p.opts.Humidity)
	rows, err := features.Join(session, laps, snap, p.opts.Humidity)
	if err != nil {
		return nil, fmt.Errorf("join laps: %w", err)
	}
	p.Metrics.LapsJoined.Set(float64(len(rows)))

	start = p.Clock.Now()
	rows, cres, err := p.Cluster.Assign(rows)
	p.Metrics.ObserveStage("cluster", start, p.Clock.Now())
	if err != nil {
		if !errors.Is(err, cluster.ErrInsufficientRows) {
			return nil, fmt.Errorf("cluster: %w", err)
		}
		p.Logger.Warn("cluster: skipped, labels left empty", "error", err)
	}
	res.Rows = rows
	res.Cluster = cres
	p.Metrics.LapsClustered.Set(float64(cres.Clustered))
	p.Metrics.LapsExcluded.Set(float64(cres.Excluded))
	p.Metrics.NoiseLaps.Set(float64(cres.Noise))

	res.Stats = summary.Stats(rows)
	p.Report.Laps(res.Stats, len(rows))

	start = p.Clock.Now()
	paths, err := p.Export.Write(ctx, session, rows)
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	p.Metrics.ObserveStage("export", start, p.Clock.Now())
	res.Paths = paths
	p.Report.Exported(paths.CSV, paths.Extract, paths.Chart)

	p.summarize(ctx, res)
	p.launch(res)
	return res, nil
}

func (p *Pipeline) fetchWeather(ctx context.Context) (models.Snapshot, models.ForecastTable, error) {
	start := p.Clock.Now()
	snap, forecast, err := p.Weather.Fetch(ctx, p.opts.Lat, p.opts.Lon)
	elapsed := p.Clock.Since(start)
	p.Metrics.WeatherFetchLatency.Observe(elapsed.Seconds())

	status := "ok"
	switch {
	case errors.Is(err, weather.ErrDecode):
		status = "decode"
	case err != nil:
		status = "network"
	}
	p.Metrics.WeatherFetches.WithLabelValues(status).Inc()
	if err != nil {
		return models.Snapshot{}, nil, fmt.Errorf("fetch weather: %w", err)
	}
	p.Logger.Debug("weather: fetched", "latency", elapsed, "hourly_rows", len(forecast))
	return snap, forecast, nil
}

func (p *Pipeline) summarize(ctx context.Context, res *Result) {
	if p.Summary == nil {
		p.Metrics.Summaries.WithLabelValues(p.opts.Provider, "skipped").Inc()
		p.Logger.Info("summary: skipped, no provider configured")
		return
	}

	prompt := summary.BuildPrompt(res.Session, res.Snapshot, res.Forecast, res.Stats)
	start := p.Clock.Now()
	text, err := p.Summary.Summarize(ctx, prompt)
	p.Metrics.ObserveStage("summary", start, p.Clock.Now())
	if err != nil {
		res.SummaryErr = err
		p.Metrics.Summaries.WithLabelValues(p.opts.Provider, "error").Inc()
		p.Logger.Warn("summary: request failed", "provider", p.opts.Provider, "error", err)
		p.Report.Warning("strategy summary unavailable: %v", err)
		return
	}
	res.Summary = text
	p.Metrics.Summaries.WithLabelValues(p.opts.Provider, "ok").Inc()
	p.Report.Summary(text)
}

func (p *Pipeline) launch(res *Result) {
	if p.Launcher == nil {
		return
	}
	if err := p.Launcher.Open(res.Paths.Extract); err != nil {
		res.LaunchErr = err
		p.Logger.Warn("launch: could not open extract", "path", res.Paths.Extract, "error", err)
		p.Report.Warning("could not open %s: %v", res.Paths.Extract, err)
	}
}
