// Package logging provides the structured, rotating file logger shared by
// every pipeline stage.
package logging

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	LevelTrace = slog.Level(-8)
	LevelFatal = slog.Level(12)
)

var levelNames = map[slog.Leveler]string{
	LevelTrace: "TRACE",
	LevelFatal: "FATAL",
}

var (
	logger        *slog.Logger
	loggerMu      sync.RWMutex
	currentLevel  = new(slog.LevelVar)
	currentCloser io.Closer
	initOnce      sync.Once
)

// Options configures Init.
type Options struct {
	// Dir is the directory the rotating log file is written to.
	Dir string
	// Filename is the log file name within Dir (default "sessionscribe.log").
	Filename string
	// MaxSizeMB is the size in megabytes at which the log file is rotated.
	MaxSizeMB int
	// MaxBackups is the number of rotated files to retain.
	MaxBackups int
	// MaxAgeDays is the number of days to retain rotated files.
	MaxAgeDays int
	// Level is the initial minimum level.
	Level slog.Level
	// AlsoStderr mirrors human-readable output to stderr alongside the file.
	AlsoStderr bool
}

func defaultReplaceAttr(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.TimeKey && a.Value.Kind() == slog.KindTime {
		a.Value = slog.StringValue(a.Value.Time().Format("2006-01-02T15:04:05Z07:00"))
	}
	if a.Key == slog.LevelKey {
		if level, ok := a.Value.Any().(slog.Level); ok {
			label, exists := levelNames[level]
			if !exists {
				label = level.String()
			}
			a.Value = slog.StringValue(label)
		}
	}
	if a.Value.Kind() == slog.KindFloat64 {
		truncated := math.Trunc(a.Value.Float64()*100) / 100.0
		a.Value = slog.Float64Value(truncated)
	}
	return a
}

// Init sets up the global rotating-file structured logger. Safe to call once;
// subsequent calls are no-ops.
func Init(opts Options) *slog.Logger {
	initOnce.Do(func() {
		if opts.Filename == "" {
			opts.Filename = "sessionscribe.log"
		}
		if opts.Dir == "" {
			opts.Dir = "logs"
		}
		if opts.MaxSizeMB == 0 {
			opts.MaxSizeMB = 50
		}
		if opts.MaxBackups == 0 {
			opts.MaxBackups = 5
		}
		if opts.MaxAgeDays == 0 {
			opts.MaxAgeDays = 28
		}
		currentLevel.Set(opts.Level)

		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			fmt.Printf("logging: failed to create log dir %q: %v\n", opts.Dir, err)
		}

		rotator := &lumberjack.Logger{
			Filename:   filepath.Join(opts.Dir, opts.Filename),
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   true,
		}
		currentCloser = rotator

		var out io.Writer = rotator
		if opts.AlsoStderr {
			out = io.MultiWriter(rotator, os.Stderr)
		}

		handler := slog.NewJSONHandler(out, &slog.HandlerOptions{
			Level:       currentLevel,
			ReplaceAttr: defaultReplaceAttr,
		})

		loggerMu.Lock()
		logger = slog.New(handler)
		loggerMu.Unlock()
		slog.SetDefault(logger)
	})
	return Logger()
}

// Logger returns the process-wide logger, falling back to slog's default
// (stderr text handler) if Init has not been called yet — useful in tests.
func Logger() *slog.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	if logger == nil {
		return slog.Default()
	}
	return logger
}

// SetLevel adjusts the minimum emitted level at runtime.
func SetLevel(level slog.Level) { currentLevel.Set(level) }

// Close releases the rotating file handle, if one was opened by Init.
func Close() error {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	if currentCloser == nil {
		return nil
	}
	err := currentCloser.Close()
	currentCloser = nil
	return err
}

// ErrNotInitialized is returned by callers that require Init to have run.
var ErrNotInitialized = errors.New("logging: not initialized")
