// Package launch opens the exported container in a desktop application.
package launch

import (
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
)

// DefaultApplication is looked up on PATH when no application is configured.
const DefaultApplication = "sqlitebrowser"

// ErrApplicationNotFound means the configured application could not be
// resolved. Callers report it and continue.
var ErrApplicationNotFound = errors.New("launch: application not found")

type Launcher struct {
	app      string
	logger   *slog.Logger
	lookPath func(string) (string, error)
	start    func(*exec.Cmd) error
}

func New(app string, logger *slog.Logger) *Launcher {
	if app == "" {
		app = DefaultApplication
	}
	return &Launcher{
		app:      app,
		logger:   logger,
		lookPath: exec.LookPath,
		start:    (*exec.Cmd).Start,
	}
}

// Open starts the application with path as its only argument and returns
// without waiting for it to exit.
func (l *Launcher) Open(path string) error {
	bin, err := l.lookPath(l.app)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrApplicationNotFound, l.app, err)
	}

	cmd := exec.Command(bin, path)
	if err := l.start(cmd); err != nil {
		return fmt.Errorf("launch: start %s: %w", bin, err)
	}
	if cmd.Process != nil {
		// Reap the child once it exits.
		go cmd.Wait()
	}
	l.logger.Info("launch: opened extract", "app", bin, "path", path)
	return nil
}
