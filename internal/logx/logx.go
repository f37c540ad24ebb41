// Package logx configures structured logging for the CLI.
package logx

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// New builds a slog.Logger writing to a size-rotated log file. With verbose
// set, log lines are mirrored to stderr as well.
func New(logPath string, verbose bool) *slog.Logger {
	var w io.Writer = &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    5, // megabytes
		MaxBackups: 2,
	}
	if verbose {
		w = io.MultiWriter(w, os.Stderr)
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
