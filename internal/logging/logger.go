// Package logging wraps a process-wide zerolog logger with optional file rotation.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Config struct {
	Level      string
	Format     string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

var (
	mu     sync.RWMutex
	logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
)

// Init replaces the global logger. Format "json" (default) writes JSON lines,
// "text" and "plain" write the zerolog console format. When File is set, output
// also goes to a lumberjack-rotated file.
func Init(cfg Config) error {
	lvl, err := parseLevel(cfg.Level)
	if err != nil {
		return err
	}

	var out io.Writer = os.Stdout
	switch strings.ToLower(cfg.Format) {
	case "", "json":
	case "text", "plain":
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339, NoColor: cfg.Format == "plain"}
	default:
		return fmt.Errorf("invalid log format: %s", cfg.Format)
	}

	if cfg.File != "" {
		out = zerolog.MultiLevelWriter(out, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		})
	}

	mu.Lock()
	logger = zerolog.New(out).With().Timestamp().Logger().Level(lvl)
	mu.Unlock()
	return nil
}

func parseLevel(level string) (zerolog.Level, error) {
	if level == "" {
		return zerolog.InfoLevel, nil
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.InfoLevel, fmt.Errorf("invalid log level: %s", level)
	}
	return lvl, nil
}

// SetLogLevel changes the level of the global logger. Unknown levels fall back to info.
func SetLogLevel(level string) {
	lvl, err := parseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	mu.Lock()
	logger = logger.Level(lvl)
	mu.Unlock()
}

// SetLoggerForTest swaps the global logger, typically for one writing to a buffer.
func SetLoggerForTest(l zerolog.Logger) {
	mu.Lock()
	logger = l
	mu.Unlock()
}

func get() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

func WithComponent(name string) *zerolog.Logger {
	l := get().With().Str("component", name).Logger()
	return &l
}

func Debug(msg string, kv ...any) {
	l := get()
	l.Debug().Fields(kv).Msg(msg)
}

func Info(msg string, kv ...any) {
	l := get()
	l.Info().Fields(kv).Msg(msg)
}

func Warn(msg string, kv ...any) {
	l := get()
	l.Warn().Fields(kv).Msg(msg)
}

func Error(msg string, kv ...any) {
	l := get()
	l.Error().Fields(kv).Msg(msg)
}
