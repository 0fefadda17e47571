package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/jonboulle/clockwork"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"

	"github.com/lox/lapweather/internal/cluster"
	"github.com/lox/lapweather/internal/config"
	"github.com/lox/lapweather/internal/export"
	"github.com/lox/lapweather/internal/launch"
	"github.com/lox/lapweather/internal/metrics"
	"github.com/lox/lapweather/internal/models"
	"github.com/lox/lapweather/internal/pipeline"
	"github.com/lox/lapweather/internal/report"
	"github.com/lox/lapweather/internal/summary"
	"github.com/lox/lapweather/internal/telemetry"
	"github.com/lox/lapweather/internal/weather"
)

type CLI struct {
	EnvFile kongdotenv.ENVFileConfig `kong:"optional,name=env-file,default='.env',help='Path to .env file.'"`
	config.Logging

	Run     RunCmd     `cmd:"" default:"withargs" help:"Fetch weather and laps, cluster, export and summarize."`
	Inspect InspectCmd `cmd:"" help:"Print the rows of an exported extract."`
}

type RunCmd struct {
	config.Config
}

func (c *RunCmd) Run(ctx context.Context, logger *slog.Logger) error {
	if err := c.Validate(); err != nil {
		return err
	}

	m := metrics.New()
	if c.MetricsFile != "" {
		defer func() {
			if err := m.WriteTextfile(c.MetricsFile); err != nil {
				logger.Error("metrics: write textfile", "path", c.MetricsFile, "error", err)
			}
		}()
	}

	provider, err := c.telemetry(logger)
	if err != nil {
		return err
	}
	requester, err := c.summary(ctx, logger)
	if err != nil {
		return err
	}

	deps := pipeline.Deps{
		Weather:   weather.NewClient(c.WeatherURL, c.WeatherTimeout, logger),
		Telemetry: provider,
		Cluster:   cluster.NewEngine(logger),
		Export:    export.NewSink(c.OutDir, c.Chart, logger),
		Summary:   requester,
		Report:    report.New(os.Stdout),
		Metrics:   m,
		Clock:     clockwork.NewRealClock(),
		Logger:    logger,
	}
	if !c.NoLaunch {
		deps.Launcher = launch.New(c.App, logger)
	}

	_, err = pipeline.New(deps, pipeline.Options{
		Lat:      c.Lat,
		Lon:      c.Lon,
		Horizon:  c.Horizon,
		Humidity: c.Humidity,
		Provider: c.SummaryProvider,
	}).Run(ctx)
	return err
}

func (c *RunCmd) telemetry(logger *slog.Logger) (telemetry.Provider, error) {
	if c.Laps == config.LapsOpenF1 {
		return telemetry.NewOpenF1(telemetry.OpenF1Config{
			BaseURL:       c.OpenF1URL,
			Timeout:       c.WeatherTimeout,
			Year:          c.Year,
			Location:      c.GrandPrix,
			Session:       c.Session,
			FallbackStart: c.SessionStartFallback,
		}, logger), nil
	}
	if strings.TrimSpace(c.Laps) == "" {
		return nil, errors.New("config: no lap source")
	}
	return telemetry.NewCSV(c.Laps, models.Session{
		Year:     c.Year,
		Location: c.GrandPrix,
		Name:     telemetry.SessionName(c.Session),
		Start:    c.SessionStartFallback,
	}, logger), nil
}

// summary returns nil when summaries are switched off.
func (c *RunCmd) summary(ctx context.Context, logger *slog.Logger) (summary.Requester, error) {
	switch c.SummaryProvider {
	case config.ProviderGemini:
		return summary.NewGemini(ctx, summary.GeminiConfig{APIKey: c.GoogleAPIKey, Model: c.GeminiModel}, logger)
	case config.ProviderOpenAI:
		return summary.NewOpenAI(summary.OpenAIConfig{APIKey: c.OpenAIAPIKey, Model: c.OpenAIModel}, logger)
	default:
		return nil, nil
	}
}

type InspectCmd struct {
	Path string `arg:"" type:"existingfile" help:"Extract file to read."`
}

func (c *InspectCmd) Run(ctx context.Context) error {
	rows, err := export.ReadExtract(ctx, c.Path)
	if err != nil {
		return err
	}
	return export.EncodeCSV(os.Stdout, rows)
}

func newLogger(l config.Logging) *slog.Logger {
	opts := &slog.HandlerOptions{Level: l.Level()}
	if l.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("lapweather"),
		kong.Description("Join live circuit weather with lap timing, cluster the laps and export the result."),
		kong.UsageOnError(),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := newLogger(cli.Logging)
	slog.SetDefault(logger)

	kctx.BindTo(ctx, (*context.Context)(nil))
	kctx.Bind(logger)
	if err := kctx.Run(); err != nil {
		logger.Error("lapweather failed", "error", err)
		cancel()
		os.Exit(1)
	}
}
