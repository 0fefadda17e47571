// Package config declares the command-line and environment settings for an
// analysis run.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// ErrMissingCredential means the selected summary provider has no API key.
var ErrMissingCredential = errors.New("config: missing credential")

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderNone   = "none"

	// LapsOpenF1 selects the OpenF1 API as the lap source.
	LapsOpenF1 = "openf1"
)

// Config is embedded into the kong command tree. Every flag can also be set
// from the environment or the .env file.
type Config struct {
	Year      int    `help:"Season year." default:"2023" env:"LAPWEATHER_YEAR"`
	GrandPrix string `name:"grand-prix" help:"Grand prix location." default:"Zandvoort" env:"LAPWEATHER_GRAND_PRIX"`
	Session   string `help:"Session identifier (R, Q, S, FP1, ...)." default:"R" env:"LAPWEATHER_SESSION"`

	Lat      float64       `help:"Circuit latitude." default:"52.3888" env:"LAPWEATHER_LAT"`
	Lon      float64       `help:"Circuit longitude." default:"4.5409" env:"LAPWEATHER_LON"`
	Horizon  time.Duration `help:"Forecast window after the snapshot." default:"3h" env:"LAPWEATHER_HORIZON"`
	Humidity float64       `help:"Relative humidity broadcast to every lap." default:"60" env:"LAPWEATHER_HUMIDITY"`

	Laps                 string        `help:"Lap source: openf1, a CSV path or an ftp:// URL." default:"openf1" env:"LAPWEATHER_LAPS"`
	OpenF1URL            string        `name:"openf1-url" help:"OpenF1 API base URL." default:"https://api.openf1.org/v1" env:"LAPWEATHER_OPENF1_URL"`
	WeatherURL           string        `help:"Open-Meteo forecast endpoint." default:"https://api.open-meteo.com/v1/forecast" env:"LAPWEATHER_WEATHER_URL"`
	WeatherTimeout       time.Duration `help:"Timeout for each HTTP request." default:"30s" env:"LAPWEATHER_WEATHER_TIMEOUT"`
	SessionStartFallback time.Time     `help:"Session start used when the source has none (RFC 3339)." default:"2023-08-27T14:00:00Z" env:"LAPWEATHER_SESSION_START_FALLBACK"`

	OutDir string `help:"Directory for exported files." default:"." type:"path" env:"LAPWEATHER_OUT_DIR"`
	Chart  bool   `help:"Render a lap time chart." default:"true" negatable:"" env:"LAPWEATHER_CHART"`

	SummaryProvider string `help:"Strategy summary provider." enum:"gemini,openai,none" default:"gemini" env:"LAPWEATHER_SUMMARY_PROVIDER"`
	GeminiModel     string `help:"Gemini model." default:"gemini-2.5-pro" env:"LAPWEATHER_GEMINI_MODEL"`
	OpenAIModel     string `name:"openai-model" help:"OpenAI model." default:"gpt-4o-mini" env:"LAPWEATHER_OPENAI_MODEL"`
	GoogleAPIKey    string `name:"google-api-key" hidden:"" env:"GOOGLE_API_KEY"`
	OpenAIAPIKey    string `name:"openai-api-key" hidden:"" env:"OPENAI_API_KEY"`

	App      string `help:"Application used to open the extract." default:"sqlitebrowser" env:"LAPWEATHER_APP"`
	NoLaunch bool   `help:"Do not open the extract after exporting." env:"LAPWEATHER_NO_LAUNCH"`

	MetricsFile string `help:"Write Prometheus metrics to this textfile." type:"path" env:"LAPWEATHER_METRICS_FILE"`
}

// Validate checks the settings that must hold before any network work.
func (c *Config) Validate() error {
	switch c.SummaryProvider {
	case ProviderGemini:
		if strings.TrimSpace(c.GoogleAPIKey) == "" {
			return fmt.Errorf("%w: GOOGLE_API_KEY is required for the gemini summary provider", ErrMissingCredential)
		}
	case ProviderOpenAI:
		if strings.TrimSpace(c.OpenAIAPIKey) == "" {
			return fmt.Errorf("%w: OPENAI_API_KEY is required for the openai summary provider", ErrMissingCredential)
		}
	case ProviderNone, "":
	default:
		return fmt.Errorf("config: unknown summary provider %q", c.SummaryProvider)
	}

	if c.Horizon < 0 {
		return fmt.Errorf("config: horizon must not be negative, got %s", c.Horizon)
	}
	if c.Humidity < 0 || c.Humidity > 100 {
		return fmt.Errorf("config: humidity must be within 0-100, got %g", c.Humidity)
	}
	if c.Lat < -90 || c.Lat > 90 || c.Lon < -180 || c.Lon > 180 {
		return fmt.Errorf("config: coordinates out of range: %g,%g", c.Lat, c.Lon)
	}
	return nil
}

// Logging selects the slog handler and level.
type Logging struct {
	LogLevel  string `help:"Log level." enum:"debug,info,warn,error" default:"info" env:"LAPWEATHER_LOG_LEVEL"`
	LogFormat string `help:"Log format." enum:"text,json" default:"text" env:"LAPWEATHER_LOG_FORMAT"`
}

func (l Logging) Level() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
