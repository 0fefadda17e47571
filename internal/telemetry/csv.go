package telemetry

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/lox/lapweather/internal/models"
)

const ftpTimeout = 30 * time.Second

// CSV reads lap timing exported from another tool. Columns:
//
//	LapNumber,Driver,LapStartOffset,LapTime
//
// LapStartOffset and LapTime are seconds; an empty LapTime means the lap has
// no recorded time. The source is a local path or an ftp:// URL.
type CSV struct {
	source  string
	session models.Session
	logger  *slog.Logger
}

// NewCSV returns a provider for source. CSV files carry no absolute session
// start, so session.Start is taken as given and reported as a fallback.
func NewCSV(source string, session models.Session, logger *slog.Logger) *CSV {
	return &CSV{source: source, session: session, logger: logger}
}

var requiredColumns = []string{"LapNumber", "Driver", "LapStartOffset", "LapTime"}

func (c *CSV) Load(ctx context.Context) (models.Session, []models.Lap, error) {
	data, err := c.read(ctx)
	if err != nil {
		return models.Session{}, nil, err
	}

	laps, err := ParseCSV(bytes.NewReader(data))
	if err != nil {
		return models.Session{}, nil, fmt.Errorf("parse %s: %w", c.source, err)
	}

	session := c.session
	session.StartFallback = true
	c.logger.Warn("telemetry: csv laps carry no session start, using configured start",
		"source", c.source,
		"start", session.Start)
	c.logger.Info("telemetry: loaded csv", "source", c.source, "laps", len(laps))
	return session, laps, nil
}

func (c *CSV) read(ctx context.Context) ([]byte, error) {
	if strings.HasPrefix(c.source, "ftp://") {
		return fetchFTP(ctx, c.source)
	}
	data, err := os.ReadFile(c.source)
	if err != nil {
		return nil, fmt.Errorf("read laps: %w", err)
	}
	return data, nil
}

// ParseCSV decodes lap rows. Column order is taken from the header.
func ParseCSV(r io.Reader) ([]models.Lap, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.TrimSpace(name)] = i
	}
	for _, name := range requiredColumns {
		if _, ok := idx[name]; !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}

	var laps []models.Lap
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		lapNumber, err := strconv.Atoi(rec[idx["LapNumber"]])
		if err != nil {
			return nil, fmt.Errorf("line %d: LapNumber: %w", line, err)
		}
		driver := strings.TrimSpace(rec[idx["Driver"]])
		if driver == "" {
			return nil, fmt.Errorf("line %d: empty Driver", line)
		}
		lap := models.Lap{LapNumber: lapNumber, Driver: driver}

		if s := rec[idx["LapStartOffset"]]; s != "" {
			offset, err := parseSeconds(s)
			if err != nil {
				return nil, fmt.Errorf("line %d: LapStartOffset: %w", line, err)
			}
			lap.StartOffset = offset
		}
		if s := rec[idx["LapTime"]]; s != "" {
			d, err := parseSeconds(s)
			if err != nil {
				return nil, fmt.Errorf("line %d: LapTime: %w", line, err)
			}
			lap.Duration = &d
		}
		laps = append(laps, lap)
	}
	return laps, nil
}

func parseSeconds(s string) (time.Duration, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	return time.Duration(f * float64(time.Second)), nil
}

func fetchFTP(ctx context.Context, source string) ([]byte, error) {
	u, err := url.Parse(source)
	if err != nil {
		return nil, fmt.Errorf("parse ftp url: %w", err)
	}
	host, user, pass := ftpTarget(u)

	conn, err := ftp.Dial(host, ftp.DialWithTimeout(ftpTimeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("ftp dial: %w", err)
	}
	defer conn.Quit()

	if err := conn.Login(user, pass); err != nil {
		return nil, fmt.Errorf("ftp login: %w", err)
	}

	resp, err := conn.Retr(u.Path)
	if err != nil {
		return nil, fmt.Errorf("ftp retr: %w", err)
	}
	defer resp.Close()

	body, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("ftp read: %w", err)
	}
	return body, nil
}

// ftpTarget returns host:port and credentials, defaulting to port 21 and an
// anonymous login.
func ftpTarget(u *url.URL) (host, user, pass string) {
	host = u.Host
	if u.Port() == "" {
		host = net.JoinHostPort(u.Hostname(), "21")
	}
	user, pass = "anonymous", "anonymous"
	if u.User != nil {
		user = u.User.Username()
		if p, ok := u.User.Password(); ok {
			pass = p
		}
	}
	return host, user, pass
}
