package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/lox/lapweather/internal/httputil"
	"github.com/lox/lapweather/internal/models"
)

const DefaultOpenF1URL = "https://api.openf1.org/v1"

var errNoDateStart = errors.New("no date_start")

type OpenF1 struct {
	baseURL       string
	client        *http.Client
	year          int
	location      string
	sessionName   string
	fallbackStart time.Time
	logger        *slog.Logger
}

type OpenF1Config struct {
	BaseURL  string
	Timeout  time.Duration
	Year     int
	Location string
	Session  string // "R", "Q", or a full OpenF1 session name
	// FallbackStart is used when OpenF1 reports no usable session start.
	FallbackStart time.Time
}

func NewOpenF1(cfg OpenF1Config, logger *slog.Logger) *OpenF1 {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultOpenF1URL
	}
	return &OpenF1{
		baseURL:       baseURL,
		client:        httputil.NewClient(cfg.Timeout),
		year:          cfg.Year,
		location:      cfg.Location,
		sessionName:   SessionName(cfg.Session),
		fallbackStart: cfg.FallbackStart,
		logger:        logger,
	}
}

type openF1Session struct {
	SessionKey  int     `json:"session_key"`
	SessionName string  `json:"session_name"`
	Location    string  `json:"location"`
	DateStart   *string `json:"date_start"`
	Year        int     `json:"year"`
}

type openF1Driver struct {
	DriverNumber int    `json:"driver_number"`
	NameAcronym  string `json:"name_acronym"`
}

type openF1Lap struct {
	DriverNumber int      `json:"driver_number"`
	LapNumber    int      `json:"lap_number"`
	DateStart    *string  `json:"date_start"`
	LapDuration  *float64 `json:"lap_duration"`
}

func (o *OpenF1) Load(ctx context.Context) (models.Session, []models.Lap, error) {
	var sessions []openF1Session
	err := o.get(ctx, "sessions", url.Values{
		"year":         {strconv.Itoa(o.year)},
		"location":     {o.location},
		"session_name": {o.sessionName},
	}, &sessions)
	if err != nil {
		return models.Session{}, nil, err
	}
	if len(sessions) == 0 {
		return models.Session{}, nil, fmt.Errorf("%w: %d %s %s", ErrNoSession, o.year, o.location, o.sessionName)
	}
	s := sessions[0]

	session := models.Session{
		Year:     o.year,
		Location: o.location,
		Name:     s.SessionName,
	}
	start, err := parseOpenF1Time(s.DateStart)
	if err != nil {
		// Laps still line up with each other; only the absolute start moves.
		o.logger.Warn("telemetry: session start unavailable, using fallback",
			"session_key", s.SessionKey,
			"error", err,
			"fallback", o.fallbackStart)
		start = o.fallbackStart
		session.StartFallback = true
	}
	session.Start = start

	key := url.Values{"session_key": {strconv.Itoa(s.SessionKey)}}

	var drivers []openF1Driver
	if err := o.get(ctx, "drivers", key, &drivers); err != nil {
		return models.Session{}, nil, err
	}
	acronyms := make(map[int]string, len(drivers))
	for _, d := range drivers {
		if d.NameAcronym != "" {
			acronyms[d.DriverNumber] = d.NameAcronym
		}
	}

	var raw []openF1Lap
	if err := o.get(ctx, "laps", key, &raw); err != nil {
		return models.Session{}, nil, err
	}

	laps := make([]models.Lap, 0, len(raw))
	var missingStart, missingTime int
	for _, l := range raw {
		driver, ok := acronyms[l.DriverNumber]
		if !ok {
			driver = strconv.Itoa(l.DriverNumber)
		}
		lap := models.Lap{LapNumber: l.LapNumber, Driver: driver}

		if lapStart, err := parseOpenF1Time(l.DateStart); err == nil {
			lap.StartOffset = lapStart.Sub(session.Start)
		} else {
			missingStart++
		}
		if l.LapDuration != nil {
			d := time.Duration(*l.LapDuration * float64(time.Second))
			lap.Duration = &d
		} else {
			missingTime++
		}
		laps = append(laps, lap)
	}

	o.logger.Info("telemetry: loaded session",
		"session_key", s.SessionKey,
		"session", session.Name,
		"start", session.Start,
		"laps", len(laps),
		"drivers", len(acronyms),
		"laps_without_start", missingStart,
		"laps_without_time", missingTime)
	return session, laps, nil
}

func (o *OpenF1) get(ctx context.Context, endpoint string, params url.Values, v any) error {
	u := fmt.Sprintf("%s/%s?%s", o.baseURL, endpoint, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("openf1 %s: %w", endpoint, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return fmt.Errorf("openf1 %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("openf1 %s: status %d: %s", endpoint, resp.StatusCode, string(b))
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("openf1 %s: unmarshal: %w", endpoint, err)
	}
	return nil
}

func parseOpenF1Time(s *string) (time.Time, error) {
	if s == nil || *s == "" {
		return time.Time{}, errNoDateStart
	}
	t, err := time.Parse(time.RFC3339, *s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
