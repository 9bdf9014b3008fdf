package logger

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

func (f stringField) apply(m map[string]any)   { m[f.key] = f.value }
func (f intField) apply(m map[string]any)      { m[f.key] = f.value }
func (f durationField) apply(m map[string]any) { m[f.key] = f.value.String() }
func (f timeField) apply(m map[string]any)     { m[f.key] = f.value }
func (f boolField) apply(m map[string]any)     { m[f.key] = f.value }
func (f errorField) apply(m map[string]any) {
	if f.value != nil {
		m["error"] = f.value.Error()
	}
}
func (f anyField) apply(m map[string]any) { m[f.key] = f.value }

func fieldsToMap(fields []Field) map[string]any {
	m := make(map[string]any, len(fields))
	for _, f := range fields {
		f.apply(m)
	}
	return m
}

// zerologLogger implements Logger on top of rs/zerolog.
type zerologLogger struct {
	logger     zerolog.Logger
	fileWriter *lumberjack.Logger
}

// New creates a Logger from config.
func New(config *Config) Logger {
	if config == nil {
		config = DefaultConfig()
	}

	var level zerolog.Level
	switch config.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case InfoLevel:
		level = zerolog.InfoLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	case FatalLevel:
		level = zerolog.FatalLevel
	default:
		level = zerolog.InfoLevel
	}

	var writers []io.Writer
	var fileWriter *lumberjack.Logger
	if config.FileConfig != nil {
		if err := os.MkdirAll(filepath.Dir(config.FileConfig.Filename), 0o755); err == nil {
			fileWriter = &lumberjack.Logger{
				Filename:   config.FileConfig.Filename,
				MaxSize:    config.FileConfig.MaxSize,
				MaxAge:     config.FileConfig.MaxAge,
				MaxBackups: config.FileConfig.MaxBackups,
				Compress:   config.FileConfig.Compress,
				LocalTime:  true,
			}
			writers = append(writers, fileWriter)
		}
	}

	output := config.Output
	if output == nil {
		output = os.Stdout
	}
	if config.JSONFormat {
		writers = append(writers, output)
	} else {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.TimeOnly,
		})
	}

	var writer io.Writer
	if len(writers) == 1 {
		writer = writers[0]
	} else {
		writer = zerolog.MultiLevelWriter(writers...)
	}

	zl := zerolog.New(writer).Level(level).With().Timestamp().Logger()
	if config.Component != "" {
		zl = zl.With().Str("component", config.Component).Logger()
	}

	return &zerologLogger{logger: zl, fileWriter: fileWriter}
}

func (l *zerologLogger) log(event *zerolog.Event, msg string, fields []Field) {
	if len(fields) > 0 {
		event = event.Fields(fieldsToMap(fields))
	}
	event.Msg(msg)
}

func (l *zerologLogger) Debug(msg string, fields ...Field) {
	l.log(l.logger.Debug(), msg, fields)
}

func (l *zerologLogger) Info(msg string, fields ...Field) {
	l.log(l.logger.Info(), msg, fields)
}

func (l *zerologLogger) Warn(msg string, fields ...Field) {
	l.log(l.logger.Warn(), msg, fields)
}

func (l *zerologLogger) Error(msg string, fields ...Field) {
	l.log(l.logger.Error(), msg, fields)
}

func (l *zerologLogger) Fatal(msg string, fields ...Field) {
	l.log(l.logger.Fatal(), msg, fields)
}

func (l *zerologLogger) Debugf(format string, args ...any) {
	l.logger.Debug().Msgf(format, args...)
}

func (l *zerologLogger) Infof(format string, args ...any) {
	l.logger.Info().Msgf(format, args...)
}

func (l *zerologLogger) Warnf(format string, args ...any) {
	l.logger.Warn().Msgf(format, args...)
}

func (l *zerologLogger) Errorf(format string, args ...any) {
	l.logger.Error().Msgf(format, args...)
}

func (l *zerologLogger) WithComponent(name string) Logger {
	return &zerologLogger{
		logger:     l.logger.With().Str("component", name).Logger(),
		fileWriter: l.fileWriter,
	}
}

func (l *zerologLogger) WithFields(fields ...Field) Logger {
	return &zerologLogger{
		logger:     l.logger.With().Fields(fieldsToMap(fields)).Logger(),
		fileWriter: l.fileWriter,
	}
}

func (l *zerologLogger) Close() error {
	if l.fileWriter != nil {
		return l.fileWriter.Close()
	}
	return nil
}
