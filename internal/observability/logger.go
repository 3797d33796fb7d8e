package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

type ctxKey string

const (
	ctxKeySessionID ctxKey = "session_id"
	ctxKeyTurn      ctxKey = "turn"
)

var (
	mu     sync.RWMutex
	logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
)

// Init points the global logger at a JSON log file. The terminal belongs to
// the TUI, so nothing is ever written to stdout.
func Init(path, level string) (io.Closer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	SetLogger(slog.New(slog.NewJSONHandler(f, &slog.HandlerOptions{Level: ParseLevel(level)})))
	return f, nil
}

// SetLogger replaces the global logger.
func SetLogger(l *slog.Logger) {
	mu.Lock()
	logger = l
	mu.Unlock()
}

func Logger() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// ParseLevel maps debug|info|warn|error to a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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

// WithSession stores the session id in the context.
func WithSession(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, ctxKeySessionID, sessionID)
}

// WithTurn stores the turn sequence number in the context.
func WithTurn(ctx context.Context, seq uint64) context.Context {
	return context.WithValue(ctx, ctxKeyTurn, seq)
}

// LoggerFromContext adds session_id and turn if present.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	l := Logger()
	if id, _ := ctx.Value(ctxKeySessionID).(string); id != "" {
		l = l.With("session_id", id)
	}
	if seq, ok := ctx.Value(ctxKeyTurn).(uint64); ok {
		l = l.With("turn", seq)
	}
	return l
}
