package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	meshlog "github.com/mash-protocol/meshmodel/pkg/log"
)

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// setupLogging builds the operational logger. Records go to console and,
// when a file is configured, to a rotating log file.
func setupLogging(cfg LogConfig, console io.Writer) (*slog.Logger, io.Closer, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}

	out := console
	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		if dir := filepath.Dir(cfg.File); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, nil, fmt.Errorf("create log directory: %w", err)
			}
		}
		rotating := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    max(cfg.MaxSizeMB, 1),
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		}
		out = io.MultiWriter(console, rotating)
		closer = rotating
	}

	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
	return logger, closer, nil
}

// setupCapture opens the protocol capture. With debug logging the events
// are mirrored into the operational log.
func setupCapture(cfg LogConfig, logger *slog.Logger) (meshlog.Logger, io.Closer, error) {
	var loggers []meshlog.Logger
	var closer io.Closer = nopCloser{}

	if cfg.Capture != "" {
		if dir := filepath.Dir(cfg.Capture); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, nil, fmt.Errorf("create capture directory: %w", err)
			}
		}
		fl, err := meshlog.NewFileLogger(cfg.Capture)
		if err != nil {
			return nil, nil, err
		}
		loggers = append(loggers, fl)
		closer = fl
	}
	if level, _ := parseLevel(cfg.Level); level <= slog.LevelDebug {
		loggers = append(loggers, meshlog.NewSlogAdapter(logger))
	}

	switch len(loggers) {
	case 0:
		return meshlog.NoopLogger{}, closer, nil
	case 1:
		return loggers[0], closer, nil
	default:
		return meshlog.NewMultiLogger(loggers...), closer, nil
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
