package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"github.com/opensource-finance/harrier/internal/domain"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"loud", slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.in), tt.in)
	}
}

func TestNewLogger(t *testing.T) {
	t.Run("JSON", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(domain.LoggingConfig{Level: "info", Format: "json"}, &buf)
		logger.Debug("hidden")
		logger.Info("analysis completed", "run_id", "r1")

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "analysis completed", entry["msg"])
		assert.Equal(t, "r1", entry["run_id"])
	})

	t.Run("Text", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(domain.LoggingConfig{Level: "debug", Format: "text"}, &buf)
		logger.Debug("shown")
		assert.Contains(t, buf.String(), "msg=shown")
	})
}

func TestSetupTracing(t *testing.T) {
	t.Run("Disabled", func(t *testing.T) {
		shutdown, err := SetupTracing(domain.TracingConfig{}, &bytes.Buffer{})
		require.NoError(t, err)
		assert.NoError(t, shutdown(context.Background()))
	})

	t.Run("Enabled", func(t *testing.T) {
		prev := otel.GetTracerProvider()
		t.Cleanup(func() { otel.SetTracerProvider(prev) })

		var buf bytes.Buffer
		shutdown, err := SetupTracing(domain.TracingConfig{Enabled: true, ServiceName: "harrier-test"}, &buf)
		require.NoError(t, err)

		_, span := otel.Tracer("test").Start(context.Background(), "op")
		assert.True(t, span.SpanContext().TraceID().IsValid())
		span.End()

		require.NoError(t, shutdown(context.Background()))
		assert.Contains(t, buf.String(), `"Name":"op"`)
	})
}
