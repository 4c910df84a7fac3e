// jsonlog.go - Leveled structured logging, text for development and JSON
// for production.
package server

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"sort"
	"time"
)

// LogLevel represents the severity of a log entry
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseLogLevel maps a configured level name to a LogLevel, defaulting to info.
func ParseLogLevel(s string) LogLevel {
	switch LogLevel(s) {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return LogLevel(s)
	default:
		return LogLevelInfo
	}
}

// Logger provides structured logging with a map of fields per entry.
type Logger struct {
	handler slog.Handler
}

// NewLogger builds a logger writing to w at minLevel and above.
func NewLogger(w io.Writer, minLevel LogLevel, json bool) *Logger {
	opts := &slog.HandlerOptions{
		Level:     minLevel.slogLevel(),
		AddSource: true,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Shorten the source to file:line.
			if a.Key == slog.SourceKey {
				if src, ok := a.Value.Any().(*slog.Source); ok {
					src.File = shortFile(src.File)
				}
			}
			return a
		},
	}

	var h slog.Handler
	if json {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return &Logger{handler: h}
}

// DefaultLogger is the global logger instance
var DefaultLogger = NewLogger(os.Stdout, LogLevelInfo, false)

// ConfigureLogging replaces DefaultLogger. Call it once at startup.
func ConfigureLogging(level, format string) {
	DefaultLogger = NewLogger(os.Stdout, ParseLogLevel(level), format == "json")
}

func shortFile(file string) string {
	for i := len(file) - 1; i > 0; i-- {
		if file[i] == '/' {
			return file[i+1:]
		}
	}
	return file
}

// log writes one entry. skip is the number of frames between the caller of
// interest and log.
func (l *Logger) log(skip int, level LogLevel, msg string, fields map[string]interface{}, err error) {
	ctx := context.Background()
	lvl := level.slogLevel()
	if !l.handler.Enabled(ctx, lvl) {
		return
	}

	var pcs [1]uintptr
	runtime.Callers(skip+2, pcs[:])

	r := slog.NewRecord(time.Now().UTC(), lvl, msg, pcs[0])

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		r.AddAttrs(slog.Any(k, fields[k]))
	}
	if err != nil {
		r.AddAttrs(slog.String("error", err.Error()))
	}

	_ = l.handler.Handle(ctx, r)
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, fields map[string]interface{}) {
	l.log(1, LogLevelDebug, msg, fields, nil)
}

// Info logs an info message
func (l *Logger) Info(msg string, fields map[string]interface{}) {
	l.log(1, LogLevelInfo, msg, fields, nil)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string, fields map[string]interface{}) {
	l.log(1, LogLevelWarn, msg, fields, nil)
}

// Error logs an error message
func (l *Logger) Error(msg string, fields map[string]interface{}, err error) {
	l.log(1, LogLevelError, msg, fields, err)
}

// Global logging functions

// Debug logs a debug message
func Debug(msg string, fields map[string]interface{}) {
	DefaultLogger.log(1, LogLevelDebug, msg, fields, nil)
}

// Info logs an info message
func Info(msg string, fields map[string]interface{}) {
	DefaultLogger.log(1, LogLevelInfo, msg, fields, nil)
}

// Warn logs a warning message
func Warn(msg string, fields map[string]interface{}) {
	DefaultLogger.log(1, LogLevelWarn, msg, fields, nil)
}

// Error logs an error message
func Error(msg string, fields map[string]interface{}, err error) {
	DefaultLogger.log(1, LogLevelError, msg, fields, err)
}
