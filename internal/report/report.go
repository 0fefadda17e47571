// Package report prints the run outcome to the terminal.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"github.com/lox/lapweather/internal/models"
)

// ForecastPreview is how many forecast rows Weather prints.
const ForecastPreview = 5

var (
	heading = color.New(color.FgCyan, color.Bold)
	okMark  = color.New(color.FgGreen)
	warn    = color.New(color.FgYellow)
	dim     = color.New(color.FgHiBlack)
	rainy   = color.New(color.FgBlue)
)

type Printer struct {
	w io.Writer
}

func New(w io.Writer) *Printer {
	return &Printer{w: w}
}

func (p *Printer) Weather(snap models.Snapshot, forecast models.ForecastTable) {
	heading.Fprintln(p.w, "Live weather")
	fmt.Fprintf(p.w, "  %.1f°C  wind %.1f km/h  ", snap.Temperature, snap.WindSpeed)
	if snap.IsRaining {
		rainy.Fprint(p.w, "raining")
	} else {
		fmt.Fprint(p.w, "dry")
	}
	dim.Fprintf(p.w, "  (%s)\n", snap.Time.UTC().Format(time.RFC3339))

	heading.Fprintln(p.w, "Forecast")
	if len(forecast) == 0 {
		dim.Fprintln(p.w, "  no hourly rows in range")
		return
	}
	n := min(len(forecast), ForecastPreview)
	for _, r := range forecast[:n] {
		line := fmt.Sprintf("  %s  %5.1f°C  %3.0f%%  %5.1f km/h  %4.1f mm",
			r.Time.UTC().Format("2006-01-02 15:04"), r.Temperature, r.RelativeHumidity, r.WindSpeed, r.Precipitation)
		if r.IsRaining {
			rainy.Fprintln(p.w, line)
		} else {
			fmt.Fprintln(p.w, line)
		}
	}
	if len(forecast) > n {
		dim.Fprintf(p.w, "  ... %d more\n", len(forecast)-n)
	}
}

func (p *Printer) Laps(st models.LapStats, total int) {
	heading.Fprintln(p.w, "Laps")
	fmt.Fprintf(p.w, "  %d laps, %d clustered, %d DBSCAN noise\n", total, st.Clustered, st.NoiseLaps)
	fmt.Fprintf(p.w, "  dry average %s s over %d laps\n", seconds(st.AvgDry.Float64, st.AvgDry.Valid), st.DryLaps)
	fmt.Fprintf(p.w, "  wet average %s s over %d laps\n", seconds(st.AvgWet.Float64, st.AvgWet.Valid), st.WetLaps)
}

func (p *Printer) Exported(paths ...string) {
	for _, path := range paths {
		if path == "" {
			continue
		}
		okMark.Fprint(p.w, "✔ ")
		fmt.Fprintf(p.w, "wrote %s\n", path)
	}
}

func (p *Printer) Summary(text string) {
	heading.Fprintln(p.w, "Strategy summary")
	fmt.Fprintln(p.w, text)
}

// Warning prints a non-fatal problem such as a failed summary or launch.
func (p *Printer) Warning(format string, args ...any) {
	warn.Fprint(p.w, "⚠ ")
	fmt.Fprintf(p.w, format+"\n", args...)
}

func seconds(v float64, ok bool) string {
	if !ok {
		return "n/a"
	}
	return fmt.Sprintf("%.3f", v)
}
