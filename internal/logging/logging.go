// Package logging builds the process-wide slog logger and adapts it to the
// logger interfaces of third-party libraries.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// New returns a JSON logger writing to stdout at the given level
// ("debug", "info", "warn", "error"; anything else means info).
func New(level string) *slog.Logger {
	return NewWithWriter(os.Stdout, level)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(w io.Writer, level string) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)}))
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// AsynqLogger satisfies asynq.Logger on top of slog.
type AsynqLogger struct {
	log *slog.Logger
}

// NewAsynqLogger wraps logger for use in asynq.Config.
func NewAsynqLogger(logger *slog.Logger) *AsynqLogger {
	return &AsynqLogger{log: logger.With("component", "asynq")}
}

func (l *AsynqLogger) Debug(args ...interface{}) { l.log.Debug(fmt.Sprint(args...)) }
func (l *AsynqLogger) Info(args ...interface{})  { l.log.Info(fmt.Sprint(args...)) }
func (l *AsynqLogger) Warn(args ...interface{})  { l.log.Warn(fmt.Sprint(args...)) }
func (l *AsynqLogger) Error(args ...interface{}) { l.log.Error(fmt.Sprint(args...)) }

// Fatal logs and exits, as asynq expects.
func (l *AsynqLogger) Fatal(args ...interface{}) {
	l.log.Error(fmt.Sprint(args...))
	os.Exit(1)
}
