package noosphere

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// SetLogLevel changes the level of the logger Initialize built from
// configuration. It has no effect on a logger supplied with WithLogger.
func (n *Noosphere) SetLogLevel(level slog.Level) {
	n.level.Set(level)
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

// newLogger builds a text logger writing to logFile at the given level.
// An empty logFile disables logging. The returned closer releases the file.
func newLogger(level, logFile string) (*slog.Logger, *slog.LevelVar, io.Closer, error) {
	lv := new(slog.LevelVar)
	lv.Set(parseLevel(level))
	if logFile == "" {
		return slog.New(slog.DiscardHandler), lv, io.NopCloser(nil), nil
	}

	if err := os.MkdirAll(filepath.Dir(logFile), 0700); err != nil {
		return nil, nil, nil, fmt.Errorf("noosphere: log directory: %w", err)
	}
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("noosphere: open log file: %w", err)
	}

	handler := slog.NewTextHandler(f, &slog.HandlerOptions{
		Level: lv,
	})
	return slog.New(handler), lv, f, nil
}
