package alloc

import (
	"io"
	"log/slog"
	"os"
)

// Runtime debug flag for slow-path logging - controlled by SLAB_LOG_ALLOC env var.
var logAlloc = os.Getenv("SLAB_LOG_ALLOC") != ""

// resolveLogger picks the logger for an allocator: the configured one, a debug
// stderr logger when SLAB_LOG_ALLOC is set, or a discarding logger.
func resolveLogger(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	if logAlloc {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
