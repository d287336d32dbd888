package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// newLogger builds the process logger. A log file always wins; otherwise
// plain runs log to stderr and TUI runs stay silent so the screen is not
// corrupted.
func newLogger(cfg *config, tty bool, stderr io.Writer) (zerolog.Logger, io.Closer, error) {
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return zerolog.Nop(), nopCloser{}, fmt.Errorf("failed to open log file: %w", err)
		}
		logger := zerolog.New(f).Level(cfg.LogLevel).With().Timestamp().Logger()
		return logger, f, nil
	}
	if tty {
		return zerolog.Nop(), nopCloser{}, nil
	}
	out := zerolog.ConsoleWriter{Out: stderr, TimeFormat: time.TimeOnly, NoColor: true}
	logger := zerolog.New(out).Level(cfg.LogLevel).With().Timestamp().Logger()
	return logger, nopCloser{}, nil
}
