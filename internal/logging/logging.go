package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

const (
	FormatJSON = "json"
	FormatText = "text"
	FormatAuto = "auto"
)

// New creates a stdout logger for the given level and format.
func New(level, format string) *slog.Logger {
	return NewWithWriter(os.Stdout, level, format, isTerminal(os.Stdout))
}

// NewWithWriter is New with an explicit writer. tty only matters for the auto format.
func NewWithWriter(w io.Writer, level, format string, tty bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	switch strings.ToLower(strings.TrimSpace(format)) {
	case FormatText:
		return slog.New(slog.NewTextHandler(w, opts))
	case FormatAuto:
		if tty {
			return slog.New(slog.NewTextHandler(w, opts))
		}
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func ParseLevel(value string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
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

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
