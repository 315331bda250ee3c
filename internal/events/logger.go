package events

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/TheMichaelB/vaultrest/internal/config"
)

// LogLevel represents logging severity.
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

// Logger provides structured logging on top of zerolog.
type Logger struct {
	zl    zerolog.Logger
	level LogLevel
}

// NewLogger creates a logger from config.
func NewLogger(cfg *config.LogConfig) (*Logger, error) {
	var output io.Writer = os.Stderr
	if cfg.File != "" {
		file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		output = file
	}

	return newLogger(ParseLevel(cfg.Level), cfg.Format, cfg.Color && cfg.File == "", output), nil
}

// NewTestLogger creates a logger for testing.
func NewTestLogger(level LogLevel, format string, output io.Writer) *Logger {
	return newLogger(level, format, false, output)
}

func newLogger(level LogLevel, format string, color bool, output io.Writer) *Logger {
	if format != "json" {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
			NoColor:    !color,
		}
	}

	zl := zerolog.New(output).
		Level(level.zerolog()).
		With().
		Timestamp().
		Logger()

	return &Logger{zl: zl, level: level}
}

// WithField returns a logger with an additional field.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{
		zl:    l.zl.With().Interface(key, value).Logger(),
		level: l.level,
	}
}

// WithFields returns a logger with additional fields.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	return &Logger{
		zl:    l.zl.With().Fields(fields).Logger(),
		level: l.level,
	}
}

// WithError adds an error field.
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.WithField("error", err.Error())
}

// IsDebug reports whether debug messages are emitted.
func (l *Logger) IsDebug() bool {
	return l.level <= DebugLevel
}

// Level returns the configured level.
func (l *Logger) Level() LogLevel {
	return l.level
}

// Debug logs at debug level.
func (l *Logger) Debug(msg string) {
	l.zl.Debug().Msg(msg)
}

// Info logs at info level.
func (l *Logger) Info(msg string) {
	l.zl.Info().Msg(msg)
}

// Warn logs at warn level.
func (l *Logger) Warn(msg string) {
	l.zl.Warn().Msg(msg)
}

// Error logs at error level.
func (l *Logger) Error(msg string) {
	l.zl.Error().Msg(msg)
}

// ParseLevel maps a config string to a level. Unknown values yield info.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(s) {
	case "debug":
		return DebugLevel
	case "warn":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

func (l LogLevel) String() string {
	switch l {
	case DebugLevel:
		return "debug"
	case InfoLevel:
		return "info"
	case WarnLevel:
		return "warn"
	case ErrorLevel:
		return "error"
	default:
		return "unknown"
	}
}

func (l LogLevel) zerolog() zerolog.Level {
	switch l {
	case DebugLevel:
		return zerolog.DebugLevel
	case WarnLevel:
		return zerolog.WarnLevel
	case ErrorLevel:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
