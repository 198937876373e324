package logging

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog.Logger with key/value convenience methods
type Logger struct {
	zl     zerolog.Logger
	fields []interface{} // bound key/value pairs added by With
}

var global = NewDevelopment()

// NewProduction creates a JSON logger at info level
func NewProduction() *Logger {
	return NewWithWriter(os.Stdout, zerolog.InfoLevel)
}

// NewDevelopment creates a console logger at debug level
func NewDevelopment() *Logger {
	return NewWithWriter(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}, zerolog.DebugLevel)
}

// NewNop returns a logger that discards everything (tests, CLI quiet mode)
func NewNop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

// NewWithWriter creates a logger with custom writer
func NewWithWriter(w io.Writer, level zerolog.Level) *Logger {
	return &Logger{
		zl: zerolog.New(w).Level(level).With().Timestamp().Logger(),
	}
}

// SetGlobal sets the global logger instance
func SetGlobal(logger *Logger) {
	if logger != nil {
		global = logger
	}
}

// Global returns the global logger instance
func Global() *Logger {
	return global
}

// write appends bound and call-site fields to the event and sends it.
// Error values are rendered with Error() so they survive JSON encoding.
func (l *Logger) write(e *zerolog.Event, msg string, fields []interface{}) {
	if e == nil {
		return
	}
	appendPairs(e, l.fields)
	appendPairs(e, fields)
	e.Msg(msg)
}

func appendPairs(e *zerolog.Event, kv []interface{}) {
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		switch v := kv[i+1].(type) {
		case error:
			if v != nil {
				e.Str(key, v.Error())
			}
		case time.Duration:
			e.Dur(key, v)
		default:
			e.Interface(key, v)
		}
	}
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, fields ...interface{}) { l.write(l.zl.Debug(), msg, fields) }

// Info logs an info message
func (l *Logger) Info(msg string, fields ...interface{}) { l.write(l.zl.Info(), msg, fields) }

// Warn logs a warning message
func (l *Logger) Warn(msg string, fields ...interface{}) { l.write(l.zl.Warn(), msg, fields) }

// Error logs an error message
func (l *Logger) Error(msg string, fields ...interface{}) { l.write(l.zl.Error(), msg, fields) }

// Fatal logs a fatal message and exits
func (l *Logger) Fatal(msg string, fields ...interface{}) { l.write(l.zl.Fatal(), msg, fields) }

// With creates a child logger with additional fields
func (l *Logger) With(fields ...interface{}) *Logger {
	merged := make([]interface{}, 0, len(l.fields)+len(fields))
	merged = append(merged, l.fields...)
	merged = append(merged, fields...)
	return &Logger{zl: l.zl, fields: merged}
}

// Component returns a child logger tagged with a component name
func (l *Logger) Component(name string) *Logger {
	return l.With("component", name)
}

// WithContext returns a logger carrying request-scoped fields from ctx
func (l *Logger) WithContext(ctx context.Context) *Logger {
	fields := extractContextFields(ctx)
	if len(fields) == 0 {
		return l
	}
	return l.With(fields...)
}

// Debug logs a debug message using global logger
func Debug(msg string, fields ...interface{}) { global.Debug(msg, fields...) }

// Info logs an info message using global logger
func Info(msg string, fields ...interface{}) { global.Info(msg, fields...) }

// Warn logs a warning message using global logger
func Warn(msg string, fields ...interface{}) { global.Warn(msg, fields...) }

// Error logs an error message using global logger
func Error(msg string, fields ...interface{}) { global.Error(msg, fields...) }
