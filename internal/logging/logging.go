// Package logging configures the process-wide structured logger and the
// rotating file sink behind it.
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Config selects level, format and destination for the logger.
type Config struct {
	// Level is one of trace, debug, info, warn, error.
	Level string `yaml:"level"`

	// Format is "text" or "json".
	Format string `yaml:"format"`

	// File is the log file path; empty logs to stderr.
	File string `yaml:"file"`

	// Rotation applies when File is set.
	Rotation RotationConfig `yaml:"rotation"`
}

// DefaultConfig returns the logging defaults: info-level text on stderr.
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: "text",
		Rotation: RotationConfig{
			MaxSizeMB:  100,
			MaxBackups: 5,
		},
	}
}

// Logger wraps the logrus logger together with the rotating sink so the
// owner can flush and close it on shutdown.
type Logger struct {
	*logrus.Logger
	rotator *Rotator
}

// New builds a Logger from cfg.
func New(cfg Config) (*Logger, error) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	l := logrus.New()
	l.SetLevel(level)

	switch cfg.Format {
	case "", "text":
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("invalid log format %q", cfg.Format)
	}

	logger := &Logger{Logger: l}

	var out io.Writer = os.Stderr
	if cfg.File != "" {
		rotation := cfg.Rotation
		rotation.Filename = cfg.File
		rotator, err := NewRotator(&rotation)
		if err != nil {
			return nil, fmt.Errorf("log rotation: %w", err)
		}
		logger.rotator = rotator
		out = rotator
	}
	l.SetOutput(out)

	return logger, nil
}

// Component returns an entry scoped to a component name. All packages log
// through component entries so events carry their origin as data.
func (l *Logger) Component(name string) *logrus.Entry {
	return l.WithField("component", name)
}

// Close flushes and closes the rotating sink, if any.
func (l *Logger) Close() error {
	if l.rotator != nil {
		return l.rotator.Close()
	}
	return nil
}

// Discard returns a logger that drops everything; used by tests and as the
// fallback when a component receives no logger.
func Discard() *Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return &Logger{Logger: l}
}
