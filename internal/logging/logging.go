// Package logging provides structured logging for the conductor process
// using log/slog. It maintains a JSON logger for file output and a
// human-readable text logger for the console, both governed by a single
// dynamic level.
package logging

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	structuredLogger *slog.Logger
	consoleLogger    *slog.Logger
	loggerMu         sync.RWMutex
)

var currentLevel = new(slog.LevelVar)
var initOnce sync.Once
var initialized bool

var currentFileCloser io.Closer

const (
	LevelTrace = slog.Level(-8)
	LevelFatal = slog.Level(12)
)

var levelNames = map[slog.Leveler]string{
	LevelTrace: "TRACE",
	LevelFatal: "FATAL",
}

func replaceAttr(groups []string, a slog.Attr) slog.Attr {
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
		truncated := math.Trunc(a.Value.Float64()*1000) / 1000.0
		a.Value = slog.Float64Value(truncated)
	}
	return a
}

// Init sets up the global loggers. logPath is where structured JSON logs
// are rotated to (via lumberjack); console output always goes to stdout.
func Init(logPath string, level slog.Level) {
	initOnce.Do(func() {
		currentLevel.Set(level)

		dir := filepath.Dir(logPath)
		if dir != "." {
			_ = os.MkdirAll(dir, 0o755)
		}

		lj := &lumberjack.Logger{
			Filename:   logPath,
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     28,
			Compress:   false,
		}
		currentFileCloser = lj

		fileHandler := slog.NewJSONHandler(lj, &slog.HandlerOptions{
			Level:       currentLevel,
			ReplaceAttr: replaceAttr,
		})
		consoleHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level:       currentLevel,
			ReplaceAttr: replaceAttr,
		})

		loggerMu.Lock()
		structuredLogger = slog.New(fileHandler)
		consoleLogger = slog.New(consoleHandler)
		loggerMu.Unlock()

		slog.SetDefault(structuredLogger)
		initialized = true
	})
}

// IsInitialized reports whether Init has run.
func IsInitialized() bool {
	return initialized
}

// SetLevel changes the level shared by both loggers.
func SetLevel(level slog.Level) {
	currentLevel.Set(level)
}

// ForService returns a logger tagged with the given service/component name.
// Falls back to slog.Default if Init has not been called, so packages
// never need to nil-check the result.
func ForService(name string) *slog.Logger {
	loggerMu.RLock()
	logger := structuredLogger
	loggerMu.RUnlock()

	if logger == nil {
		return slog.Default().With("service", name)
	}
	return logger.With("service", name)
}

// Console returns the human-readable console logger.
func Console() *slog.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	if consoleLogger == nil {
		return slog.Default()
	}
	return consoleLogger
}

// Close flushes and closes the underlying log file, if any.
func Close() error {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	if currentFileCloser != nil {
		err := currentFileCloser.Close()
		currentFileCloser = nil
		return err
	}
	return nil
}

// Fatal logs at the custom fatal level and exits the process.
func Fatal(msg string, args ...any) {
	slog.Log(context.TODO(), LevelFatal, msg, args...)
	os.Exit(1)
}

// Trace logs at the custom trace level.
func Trace(msg string, args ...any) {
	slog.Log(context.TODO(), LevelTrace, msg, args...)
}

var errNilWriter = errors.New("logging: writer cannot be nil")

// SetOutput lets callers (tests, mainly) redirect both loggers.
func SetOutput(structuredOut, consoleOut io.Writer) error {
	if structuredOut == nil || consoleOut == nil {
		return errNilWriter
	}

	fileHandler := slog.NewJSONHandler(structuredOut, &slog.HandlerOptions{
		Level:       currentLevel,
		ReplaceAttr: replaceAttr,
	})
	consoleHandler := slog.NewTextHandler(consoleOut, &slog.HandlerOptions{
		Level:       currentLevel,
		ReplaceAttr: replaceAttr,
	})

	loggerMu.Lock()
	structuredLogger = slog.New(fileHandler)
	consoleLogger = slog.New(consoleHandler)
	loggerMu.Unlock()

	slog.SetDefault(structuredLogger)
	return nil
}
