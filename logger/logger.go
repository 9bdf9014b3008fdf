package logger

import (
	"io"
	"os"
	"strings"
	"time"
)

// Level represents the logging level.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

// String returns the string representation of Level.
func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "debug"
	case InfoLevel:
		return "info"
	case WarnLevel:
		return "warn"
	case ErrorLevel:
		return "error"
	case FatalLevel:
		return "fatal"
	default:
		return "info"
	}
}

// ParseLevel parses a string to Level, defaulting to info.
func ParseLevel(level string) Level {
	switch strings.ToLower(level) {
	case "debug":
		return DebugLevel
	case "info":
		return InfoLevel
	case "warn", "warning":
		return WarnLevel
	case "error", "err":
		return ErrorLevel
	case "fatal":
		return FatalLevel
	default:
		return InfoLevel
	}
}

// Field is a type-safe structured logging field.
type Field interface {
	apply(m map[string]any)
}

type (
	stringField struct {
		key   string
		value string
	}
	intField struct {
		key   string
		value int
	}
	durationField struct {
		key   string
		value time.Duration
	}
	timeField struct {
		key   string
		value time.Time
	}
	boolField struct {
		key   string
		value bool
	}
	errorField struct {
		value error
	}
	anyField struct {
		key   string
		value any
	}
)

func String(key, value string) Field          { return stringField{key, value} }
func Int(key string, value int) Field         { return intField{key, value} }
func Duration(key string, v time.Duration) Field { return durationField{key, v} }
func Time(key string, v time.Time) Field      { return timeField{key, v} }
func Bool(key string, value bool) Field       { return boolField{key, value} }
func Err(value error) Field                   { return errorField{value} }
func Any(key string, value any) Field         { return anyField{key, value} }

// Logger is the structured logging interface used across gatekeeper.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Fatal(msg string, fields ...Field)

	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)

	// WithComponent returns a child logger tagged with a component name.
	WithComponent(name string) Logger

	// WithFields returns a child logger carrying the given fields.
	WithFields(fields ...Field) Logger

	// Close flushes and releases any file resources.
	Close() error
}

// FileConfig holds log file rotation settings.
type FileConfig struct {
	Filename   string
	MaxSize    int // megabytes
	MaxAge     int // days
	MaxBackups int
	Compress   bool
}

// Config holds logger construction settings.
type Config struct {
	Level      Level
	JSONFormat bool
	Output     io.Writer
	Component  string
	FileConfig *FileConfig
}

// DefaultConfig returns a console logger configuration suitable for
// development and tests.
func DefaultConfig() *Config {
	return &Config{
		Level:  DebugLevel,
		Output: os.Stdout,
	}
}

// ProductionConfig returns a JSON logger with rotating file output.
func ProductionConfig(appName string) *Config {
	return &Config{
		Level:      InfoLevel,
		JSONFormat: true,
		Output:     os.Stdout,
		FileConfig: &FileConfig{
			Filename:   "logs/" + appName + ".log",
			MaxSize:    100,
			MaxAge:     30,
			MaxBackups: 10,
			Compress:   true,
		},
	}
}
