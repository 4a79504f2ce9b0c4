package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"holylandtour/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_ProductionWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.Config{
		Server:    config.ServerConfig{Environment: config.EnvironmentProduction},
		Telemetry: config.TelemetryConfig{ServiceName: "holylandtour", ServiceVersion: "test"},
	}

	l := newLogger(cfg, &buf)
	l.Debug("hidden")
	l.Info("registration submitted", "registration_id", "abc")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "registration submitted", line["msg"])
	assert.Equal(t, "abc", line["registration_id"])
	assert.Equal(t, "holylandtour", line["service"])
}

func TestLogger_WithRequest(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(config.Config{Server: config.ServerConfig{Environment: config.EnvironmentProduction}}, &buf)

	ctx := context.WithValue(context.Background(), RequestIDKey, "req-1")
	l.WithRequest(ctx).Info("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "req-1", line["request_id"])
	assert.Equal(t, "unknown", line["ip_address"])
}

func TestLogger_WithError(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(config.Config{Server: config.ServerConfig{Environment: config.EnvironmentProduction}}, &buf)

	ctx := context.WithValue(context.Background(), RequestIDKey, "req-2")
	l.WithRequest(ctx).WithError(errors.New("connection reset")).Error("request failed")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "req-2", line["request_id"])
	assert.Equal(t, "connection reset", line["error"])
}

type recordingHandler struct {
	level   slog.Level
	records []slog.Record
	err     error
}

func (h *recordingHandler) Enabled(_ context.Context, level slog.Level) bool { return level >= h.level }
func (h *recordingHandler) Handle(_ context.Context, r slog.Record) error {
	h.records = append(h.records, r)
	return h.err
}
func (h *recordingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *recordingHandler) WithGroup(string) slog.Handler      { return h }

func TestMultiHandler_FansOutByLevel(t *testing.T) {
	debug := &recordingHandler{level: slog.LevelDebug}
	errorsOnly := &recordingHandler{level: slog.LevelError, err: errors.New("sink down")}

	log := slog.New(NewMultiHandler(debug, errorsOnly))
	log.Info("info")
	log.Error("boom")

	assert.Len(t, debug.records, 2)
	assert.Len(t, errorsOnly.records, 1)
}
