package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Options configures the global logger
type Options struct {
	Dir            string
	Level          string
	RetentionWeeks int
	MaxFileSize    int64
	// Console receives the text output. Defaults to stdout.
	Console io.Writer
}

type LoggingService struct {
	Logger *slog.Logger
	file   *RotatingLogger
}

var DefaultLoggingService *LoggingService

// ParseLevel maps a LOG_LEVEL value onto a slog level, defaulting to info
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

// InitLogger builds the console + rotating file logger, installs it as the
// slog default and returns a closer for the file. If the log directory
// cannot be used the logger falls back to console only.
func InitLogger(opts Options) io.Closer {
	console := opts.Console
	if console == nil {
		console = os.Stdout
	}
	level := ParseLevel(opts.Level)

	consoleHandler := slog.NewTextHandler(console, &slog.HandlerOptions{Level: level})
	service := &LoggingService{Logger: slog.New(consoleHandler)}

	if opts.Dir != "" {
		retention := opts.RetentionWeeks
		if retention <= 0 {
			retention = 4
		}
		file, err := NewRotatingLogger(opts.Dir, retention, opts.MaxFileSize)
		if err != nil {
			service.Logger.Error("Failed to initialize rotating logger, logging to console only", "error", err)
		} else {
			fileHandler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level})
			service.Logger = slog.New(&multiHandler{handlers: []slog.Handler{consoleHandler, fileHandler}})
			service.file = file
		}
	}

	DefaultLoggingService = service
	slog.SetDefault(service.Logger)
	return service
}

// Close releases the log file, if any
func (s *LoggingService) Close() error {
	if s.file == nil {
		return nil
	}
	return s.file.Close()
}

// DefaultLogger returns the initialized logger, or a stderr text logger
// before InitLogger has run
func DefaultLogger() *slog.Logger {
	return logger()
}

func logger() *slog.Logger {
	if DefaultLoggingService == nil || DefaultLoggingService.Logger == nil {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return DefaultLoggingService.Logger
}

// Package-level functions for direct access

func Info(msg string, args ...any) {
	logger().Info(msg, args...)
}

func Error(msg string, args ...any) {
	logger().Error(msg, args...)
}

func Warn(msg string, args ...any) {
	logger().Warn(msg, args...)
}

func Debug(msg string, args ...any) {
	logger().Debug(msg, args...)
}
