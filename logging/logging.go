// Package logging builds the process logger from configuration.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/najoast/kiln/config"
)

// ParseLevel maps a configured level onto zerolog. Unknown values fall
// back to info.
func ParseLevel(level config.LogLevel) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(string(level))) {
	case "trace":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info", "":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "fatal":
		return zerolog.FatalLevel, true
	case "disabled", "off":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}

// SetLevel changes the global level of every logger built by New.
func SetLevel(level config.LogLevel) error {
	lvl, ok := ParseLevel(level)
	if !ok {
		return fmt.Errorf("unknown log level %q", level)
	}
	zerolog.SetGlobalLevel(lvl)
	return nil
}

// New builds a logger from cfg.Log and installs it as the global and
// context default logger. Entries carry the application name, and the
// caller when debug is enabled. The returned closer releases a log file,
// if one was opened.
func New(c *config.Config) (zerolog.Logger, io.Closer, error) {
	cfg := c.Log
	out, closer, err := openOutput(cfg.Output)
	if err != nil {
		return zerolog.Nop(), nil, err
	}

	var w io.Writer = out
	if cfg.Format != "json" {
		w = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
			NoColor:    !cfg.Color,
		}
	}

	ctx := zerolog.New(w).With().Timestamp()
	if c.App.Name != "" {
		ctx = ctx.Str("app", c.App.Name)
	}
	if c.IsDebugEnabled() {
		ctx = ctx.Caller()
	}
	if len(cfg.Fields) > 0 {
		ctx = ctx.Fields(cfg.Fields)
	}
	logger := ctx.Logger()

	if err := SetLevel(cfg.Level); err != nil {
		closer.Close()
		return zerolog.Nop(), nil, err
	}

	log.Logger = logger
	zerolog.DefaultContextLogger = &logger
	return logger, closer, nil
}

func openOutput(output string) (io.Writer, io.Closer, error) {
	switch output {
	case "", "stderr":
		return os.Stderr, nopCloser{}, nil
	case "stdout":
		return os.Stdout, nopCloser{}, nil
	default:
		f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log output %s: %w", output, err)
		}
		return f, f, nil
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
