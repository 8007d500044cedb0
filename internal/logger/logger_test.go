package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/trace"

	"github.com/zulandar/signalbox/internal/config"
)

func testConfig(env, level, format string) *config.Config {
	return &config.Config{Env: env, Log: config.LogConfig{Level: level, Format: format}}
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	return rec
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"loud":    slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewHandler_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewHandler(testConfig("production", "info", "json"), &buf))
	log.Info("hello", "k", "v")

	rec := decodeLine(t, &buf)
	if rec["msg"] != "hello" || rec["k"] != "v" {
		t.Errorf("record = %v", rec)
	}
}

func TestNewHandler_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewHandler(testConfig("production", "info", "text"), &buf))
	log.Info("hello")
	if !strings.Contains(buf.String(), "msg=hello") {
		t.Errorf("output = %q, want text format", buf.String())
	}
}

func TestNewHandler_AutoFormatNonTerminal(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewHandler(testConfig("production", "info", "auto"), &buf))
	log.Info("hello")
	decodeLine(t, &buf) // a buffer is not a terminal, so JSON
}

func TestNewHandler_Levels(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewHandler(testConfig("production", "warn", "json"), &buf))
	log.Info("dropped")
	if buf.Len() != 0 {
		t.Errorf("info logged at warn level: %q", buf.String())
	}

	buf.Reset()
	log = slog.New(NewHandler(testConfig("development", "info", "json"), &buf))
	log.Debug("kept")
	if !strings.Contains(buf.String(), "kept") {
		t.Error("development should log debug")
	}
}

func TestTraceHandler_AddsLogFields(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewTraceHandler(slog.NewJSONHandler(&buf, nil)))

	ctx := WithLogFields(context.Background(), LogFields{RequestID: "req-1", Component: "relay.slack"})
	ctx = WithLogFields(ctx, LogFields{EventID: "evt-1", SessionID: "slack:C1:1.1"})
	log.InfoContext(ctx, "forwarded")

	rec := decodeLine(t, &buf)
	want := map[string]string{
		"request_id": "req-1",
		"component":  "relay.slack",
		"event_id":   "evt-1",
		"session_id": "slack:C1:1.1",
	}
	for k, v := range want {
		if rec[k] != v {
			t.Errorf("%s = %v, want %q", k, rec[k], v)
		}
	}
	for _, k := range []string{"delivery_id", "message_id", "trace_id"} {
		if _, ok := rec[k]; ok {
			t.Errorf("unexpected %s in %v", k, rec)
		}
	}
}

func TestTraceHandler_AddsTraceIDs(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewTraceHandler(slog.NewJSONHandler(&buf, nil)))

	traceID, _ := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	spanID, _ := trace.SpanIDFromHex("0102030405060708")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	log.InfoContext(ctx, "traced")
	rec := decodeLine(t, &buf)
	if rec["trace_id"] != traceID.String() || rec["span_id"] != spanID.String() {
		t.Errorf("record = %v", rec)
	}
}

func TestTraceHandler_WithAttrsKeepsEnrichment(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewTraceHandler(slog.NewJSONHandler(&buf, nil))).With("set", "slack")

	ctx := WithLogFields(context.Background(), LogFields{DeliveryID: "d-1"})
	log.InfoContext(ctx, "dup")
	rec := decodeLine(t, &buf)
	if rec["set"] != "slack" || rec["delivery_id"] != "d-1" {
		t.Errorf("record = %v", rec)
	}
}

func TestWithLogFields_Merge(t *testing.T) {
	ctx := WithLogFields(context.Background(), LogFields{EventID: "a", Component: "x"})
	ctx = WithLogFields(ctx, LogFields{EventID: "b"})
	got := GetLogFields(ctx)
	if got.EventID != "b" || got.Component != "x" {
		t.Errorf("fields = %+v", got)
	}
	if (GetLogFields(context.Background()) != LogFields{}) {
		t.Error("empty context should have zero fields")
	}
}

func TestStartLinkedSpan_NoopProvider(t *testing.T) {
	sc := StartLinkedSpan(context.Background(), trace.SpanContext{}, "job")
	defer sc.End()
	if sc.Context() == nil {
		t.Fatal("nil context")
	}
	sc.RecordError(nil)
}
