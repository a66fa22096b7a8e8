package logctx

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestLoggerRoundTrip(t *testing.T) {
	var buf bytes.Buffer

	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	ctx := WithLogger(context.Background(), logger)

	LoggerFromContext(ctx).Info("provisioning started", "dataset_id", "movie-metadata")

	if !strings.Contains(buf.String(), `"dataset_id":"movie-metadata"`) {
		t.Errorf("log output %q missing attribute", buf.String())
	}
}

func TestLoggerFromContext_Fallback(t *testing.T) {
	if LoggerFromContext(context.Background()) == nil {
		t.Fatal("expected the default logger, got nil")
	}
}

func TestTraceHandler_NoSpanPassesThrough(t *testing.T) {
	var buf bytes.Buffer

	logger := slog.New(NewTraceHandler(slog.NewJSONHandler(&buf, nil)))
	logger.InfoContext(context.Background(), "no active span")

	out := buf.String()
	if strings.Contains(out, "trace_id") {
		t.Errorf("record %q should not carry trace_id without a span", out)
	}

	if !strings.Contains(out, "no active span") {
		t.Errorf("record %q lost its message", out)
	}
}

func TestNewTraceHandler_NilPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for nil handler")
		}
	}()

	NewTraceHandler(nil)
}
