package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/icemetrics/icemetrics/internal/config"
)

// Options controls where log records go.
type Options struct {
	Level     string
	Directory string
	// Quiet keeps records off stdout, e.g. while the progress view owns the terminal.
	Quiet bool
}

// Setup initializes the logger with file and stdout output.
func Setup(opts Options) (*slog.Logger, error) {
	directory := opts.Directory
	if directory == "" {
		directory = "~/.icemetrics/logs/"
	}
	directory = config.ExpandHome(directory)

	if err := os.MkdirAll(directory, 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}

	filename := fmt.Sprintf("icemetrics-%s.log", time.Now().Format("2006-01-02"))
	file, err := os.OpenFile(filepath.Join(directory, filename), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}

	var writer io.Writer = file
	if !opts.Quiet {
		writer = io.MultiWriter(os.Stdout, file)
	}
	return New(writer, opts.Level), nil
}

// New builds a text logger writing to w.
func New(w io.Writer, level string) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)}))
}

// ParseLevel maps a level name to a slog level. Unknown names mean info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "critical":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
