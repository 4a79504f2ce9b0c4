package logger

import (
	"context"
	"io"
	"log/slog"
	"os"

	"holylandtour/internal/config"
	"holylandtour/internal/telemetry"
)

// Logger wraps slog.Logger with request and error helpers.
type Logger struct {
	*slog.Logger
}

// New builds the process logger. Records always go to stdout (JSON in
// production, text otherwise) and, when telemetry is enabled, to the
// OpenTelemetry log bridge as well.
func New(cfg config.Config) *Logger {
	return newLogger(cfg, os.Stdout)
}

func newLogger(cfg config.Config, w io.Writer) *Logger {
	level := slog.LevelDebug
	if cfg.Server.Environment == config.EnvironmentProduction {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level, AddSource: true}

	var console slog.Handler
	if cfg.Server.Environment == config.EnvironmentProduction {
		console = slog.NewJSONHandler(w, opts)
	} else {
		console = slog.NewTextHandler(w, opts)
	}

	handler := console
	if cfg.Telemetry.Enabled {
		handler = NewMultiHandler(telemetry.NewOTelHandler(opts), console)
	}

	logger := slog.New(handler).With(
		"service", cfg.Telemetry.ServiceName,
		"version", cfg.Telemetry.ServiceVersion,
		"environment", string(cfg.Server.Environment),
	)

	slog.SetDefault(logger)

	return &Logger{Logger: logger}
}

type contextKey string

const (
	RequestIDKey contextKey = "request_id"
	IPAddressKey contextKey = "ip_address"
)

// WithRequest returns a logger carrying the request id and client address
// stored on ctx by the request middleware.
func (l *Logger) WithRequest(ctx context.Context) *Logger {
	return &Logger{Logger: l.With(
		"request_id", stringFromContext(ctx, RequestIDKey),
		"ip_address", stringFromContext(ctx, IPAddressKey),
	)}
}

func (l *Logger) WithError(err error) *Logger {
	return &Logger{Logger: l.With("error", err.Error())}
}

func stringFromContext(ctx context.Context, key contextKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return "unknown"
}

// MultiHandler sends logs to multiple handlers
type MultiHandler struct {
	handlers []slog.Handler
}

func NewMultiHandler(handlers ...slog.Handler) *MultiHandler {
	return &MultiHandler{handlers: handlers}
}

func (h *MultiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *MultiHandler) Handle(ctx context.Context, record slog.Record) error {
	var firstErr error
	for _, handler := range h.handlers {
		if !handler.Enabled(ctx, record.Level) {
			continue
		}
		if err := handler.Handle(ctx, record.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (h *MultiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, 0, len(h.handlers))
	for _, handler := range h.handlers {
		handlers = append(handlers, handler.WithAttrs(attrs))
	}
	return &MultiHandler{handlers: handlers}
}

func (h *MultiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, 0, len(h.handlers))
	for _, handler := range h.handlers {
		handlers = append(handlers, handler.WithGroup(name))
	}
	return &MultiHandler{handlers: handlers}
}

// Discard returns a logger that drops everything, for tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}
