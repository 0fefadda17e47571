package weather

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/tidwall/gjson"

	"github.com/lox/lapweather/internal/httputil"
	"github.com/lox/lapweather/internal/models"
)

const DefaultBaseURL = "https://api.open-meteo.com/v1/forecast"

const hourlyFields = "temperature_2m,relative_humidity_2m,windspeed_10m,precipitation"

var (
	// ErrNetwork means the forecast request did not complete: transport
	// failure, timeout, or a non-200 response.
	ErrNetwork = errors.New("weather: network error")
	// ErrDecode means the response arrived but lacked an expected field.
	ErrDecode = errors.New("weather: decode error")
)

// Open-Meteo returns local ISO8601 minutes without a zone; with no timezone
// parameter the zone is GMT.
const timeLayout = "2006-01-02T15:04"

type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		client:  httputil.NewClient(timeout),
		logger:  logger,
	}
}

// Fetch issues a single forecast request for the coordinates and returns the
// current-conditions snapshot and the full hourly table.
func (c *Client) Fetch(ctx context.Context, lat, lon float64) (models.Snapshot, models.ForecastTable, error) {
	values := url.Values{}
	values.Set("latitude", strconv.FormatFloat(lat, 'f', -1, 64))
	values.Set("longitude", strconv.FormatFloat(lon, 'f', -1, 64))
	values.Set("current_weather", "true")
	values.Set("hourly", hourlyFields)
	u := c.baseURL + "?" + values.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return models.Snapshot{}, nil, fmt.Errorf("build request: %w: %w", ErrNetwork, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return models.Snapshot{}, nil, fmt.Errorf("fetch forecast: %w: %w", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return models.Snapshot{}, nil, fmt.Errorf("fetch forecast: %w: status %d: %s", ErrNetwork, resp.StatusCode, string(b))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.Snapshot{}, nil, fmt.Errorf("read body: %w: %w", ErrNetwork, err)
	}

	snapshot, table, err := Decode(body)
	if err != nil {
		return models.Snapshot{}, nil, err
	}

	c.logger.Debug("weather: fetched forecast",
		"bytes", len(body),
		"snapshot_time", snapshot.Time,
		"hourly_rows", len(table))
	return snapshot, table, nil
}

// Decode parses an Open-Meteo forecast body. Every field the pipeline
// consumes must be present; current_weather.precipitation is the exception
// because the provider does not include it there, and its absence reads as dry.
func Decode(body []byte) (models.Snapshot, models.ForecastTable, error) {
	if !gjson.ValidBytes(body) {
		return models.Snapshot{}, nil, fmt.Errorf("%w: body is not valid JSON", ErrDecode)
	}
	root := gjson.ParseBytes(body)

	current := root.Get("current_weather")
	if !current.IsObject() {
		return models.Snapshot{}, nil, fmt.Errorf("%w: missing current_weather", ErrDecode)
	}

	var snapshot models.Snapshot
	var err error
	if snapshot.Temperature, err = number(current, "temperature"); err != nil {
		return models.Snapshot{}, nil, err
	}
	if snapshot.WindSpeed, err = number(current, "windspeed"); err != nil {
		return models.Snapshot{}, nil, err
	}
	if snapshot.Time, err = timestamp(current.Get("time"), "current_weather.time"); err != nil {
		return models.Snapshot{}, nil, err
	}
	if precip := current.Get("precipitation"); precip.Exists() {
		if precip.Type != gjson.Number {
			return models.Snapshot{}, nil, fmt.Errorf("%w: current_weather.precipitation is not a number", ErrDecode)
		}
		snapshot.IsRaining = precip.Float() > 0
	}

	table, err := decodeHourly(root.Get("hourly"))
	if err != nil {
		return models.Snapshot{}, nil, err
	}
	return snapshot, table, nil
}

func decodeHourly(hourly gjson.Result) (models.ForecastTable, error) {
	if !hourly.IsObject() {
		return nil, fmt.Errorf("%w: missing hourly", ErrDecode)
	}

	times, err := array(hourly, "time")
	if err != nil {
		return nil, err
	}
	temps, err := array(hourly, "temperature_2m")
	if err != nil {
		return nil, err
	}
	rhum, err := array(hourly, "relative_humidity_2m")
	if err != nil {
		return nil, err
	}
	wind, err := array(hourly, "windspeed_10m")
	if err != nil {
		return nil, err
	}
	precip, err := array(hourly, "precipitation")
	if err != nil {
		return nil, err
	}

	n := len(times)
	for name, col := range map[string][]gjson.Result{
		"temperature_2m":       temps,
		"relative_humidity_2m": rhum,
		"windspeed_10m":        wind,
		"precipitation":        precip,
	} {
		if len(col) != n {
			return nil, fmt.Errorf("%w: hourly.%s has %d values, hourly.time has %d", ErrDecode, name, len(col), n)
		}
	}

	table := make(models.ForecastTable, 0, n)
	for i := 0; i < n; i++ {
		ts, err := timestamp(times[i], fmt.Sprintf("hourly.time[%d]", i))
		if err != nil {
			return nil, err
		}
		row := models.ForecastRow{Time: ts}
		for _, f := range []struct {
			dst  *float64
			v    gjson.Result
			name string
		}{
			{&row.Temperature, temps[i], "temperature_2m"},
			{&row.RelativeHumidity, rhum[i], "relative_humidity_2m"},
			{&row.WindSpeed, wind[i], "windspeed_10m"},
			{&row.Precipitation, precip[i], "precipitation"},
		} {
			if f.v.Type != gjson.Number {
				return nil, fmt.Errorf("%w: hourly.%s[%d] is not a number", ErrDecode, f.name, i)
			}
			*f.dst = f.v.Float()
		}
		row.IsRaining = row.Precipitation > 0
		table = append(table, row)
	}
	return table, nil
}

func number(obj gjson.Result, field string) (float64, error) {
	v := obj.Get(field)
	if !v.Exists() {
		return 0, fmt.Errorf("%w: missing current_weather.%s", ErrDecode, field)
	}
	if v.Type != gjson.Number {
		return 0, fmt.Errorf("%w: current_weather.%s is not a number", ErrDecode, field)
	}
	return v.Float(), nil
}

func array(obj gjson.Result, field string) ([]gjson.Result, error) {
	v := obj.Get(field)
	if !v.IsArray() {
		return nil, fmt.Errorf("%w: missing hourly.%s", ErrDecode, field)
	}
	return v.Array(), nil
}

func timestamp(v gjson.Result, name string) (time.Time, error) {
	if v.Type != gjson.String {
		return time.Time{}, fmt.Errorf("%w: missing %s", ErrDecode, name)
	}
	t, err := time.ParseInLocation(timeLayout, v.Str, time.UTC)
	if err == nil {
		return t, nil
	}
	if t, err2 := time.Parse(time.RFC3339, v.Str); err2 == nil {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("%w: %s=%q: %w", ErrDecode, name, v.Str, err)
}
