package logging

import (
	"log/slog"
	"os"
	"strings"

	"github.com/sogos/pixelpipe/internal/domain/service"
)

// slogLogger implements service.Logger on top of log/slog.
type slogLogger struct {
	logger *slog.Logger
}

// New creates a structured logger writing to stderr. The level is taken
// from LOG_LEVEL (debug, info, warn, error); default info. LOG_FORMAT=json
// switches from the text handler to JSON.
func New() service.Logger {
	level := parseLevel(os.Getenv("LOG_LEVEL"))
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "json") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return &slogLogger{logger: slog.New(handler)}
}

// NewWithHandler wraps an existing slog handler; used by tests.
func NewWithHandler(handler slog.Handler) service.Logger {
	return &slogLogger{logger: slog.New(handler)}
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (l *slogLogger) Debug(msg string, args ...any) {
	l.logger.Debug(msg, args...)
}

func (l *slogLogger) Info(msg string, args ...any) {
	l.logger.Info(msg, args...)
}

func (l *slogLogger) Warn(msg string, args ...any) {
	l.logger.Warn(msg, args...)
}

func (l *slogLogger) Error(msg string, args ...any) {
	l.logger.Error(msg, args...)
}

func (l *slogLogger) With(args ...any) service.Logger {
	return &slogLogger{logger: l.logger.With(args...)}
}
