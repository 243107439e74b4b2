// Package logging builds the logrus loggers shared by every component.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Config configures a logger.
type Config struct {
	// Level is the minimum level: debug, info, warn or error.
	Level string

	// Output is where logs are written. Defaults to os.Stderr.
	Output io.Writer

	// Prefix is attached to every entry as the "app" field.
	Prefix string
}

// DefaultConfig returns the default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Output: os.Stderr,
		Prefix: "uebuild",
	}
}

// ParseLevel parses a level name. Unknown names are an error.
func ParseLevel(s string) (logrus.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return logrus.DebugLevel, nil
	case "", "info":
		return logrus.InfoLevel, nil
	case "warn", "warning":
		return logrus.WarnLevel, nil
	case "error":
		return logrus.ErrorLevel, nil
	default:
		return logrus.InfoLevel, fmt.Errorf("invalid log level %q (must be debug, info, warn, or error)", s)
	}
}

// New creates a logger with a text formatter.
func New(cfg Config) (*logrus.Entry, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	logger := logrus.New()
	logger.SetOutput(cfg.Output)
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02T15:04:05.000",
		DisableColors:   true,
	})

	entry := logrus.NewEntry(logger)
	if cfg.Prefix != "" {
		entry = entry.WithField("app", cfg.Prefix)
	}
	return entry, nil
}

// Discard returns a logger that drops everything.
func Discard() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

// WithComponent returns logger with the component field set.
func WithComponent(logger logrus.FieldLogger, component string) logrus.FieldLogger {
	if logger == nil {
		logger = Discard()
	}
	return logger.WithField("component", component)
}
