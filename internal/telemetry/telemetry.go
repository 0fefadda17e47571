// Package telemetry loads per-lap session timing from an external provider.
// Providers are read-only: they describe the session and its laps and never
// see anything computed downstream.
package telemetry

import (
	"context"
	"errors"
	"strings"

	"github.com/lox/lapweather/internal/models"
)

// ErrNoSession is returned when the provider has no matching session.
var ErrNoSession = errors.New("telemetry: session not found")

type Provider interface {
	Load(ctx context.Context) (models.Session, []models.Lap, error)
}

var sessionNames = map[string]string{
	"R":   "Race",
	"Q":   "Qualifying",
	"S":   "Sprint",
	"SQ":  "Sprint Qualifying",
	"SS":  "Sprint Shootout",
	"FP1": "Practice 1",
	"FP2": "Practice 2",
	"FP3": "Practice 3",
}

// SessionName expands the short session identifiers used on the command
// line ("R", "Q", "FP1") into provider session names. Anything else is
// passed through unchanged.
func SessionName(id string) string {
	if name, ok := sessionNames[strings.ToUpper(id)]; ok {
		return name
	}
	return id
}
