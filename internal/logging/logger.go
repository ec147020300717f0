package logging

import (
	"log/slog"
	"os"
)

// New creates the process logger. Output goes to stderr so the notification
// stream can own stdout when stdout emission is enabled.
func New(level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
