// Package logger configures the process-wide slog logger and enriches log
// records with trace ids and relay identifiers carried in the context.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/term"

	"github.com/zulandar/signalbox/internal/config"
)

// Setup installs the default slog logger for cfg. Production with an
// OTLP endpoint logs through the OpenTelemetry bridge; otherwise records
// go to stdout as text on a terminal and JSON elsewhere.
func Setup(cfg *config.Config) {
	slog.SetDefault(slog.New(NewHandler(cfg, os.Stdout)))
}

// NewHandler builds the handler Setup installs, writing to w.
func NewHandler(cfg *config.Config, w io.Writer) slog.Handler {
	if cfg.IsProduction() && cfg.OTel.Enabled() {
		return NewTraceHandler(otelslog.NewHandler(
			cfg.OTel.ServiceName,
			otelslog.WithLoggerProvider(global.GetLoggerProvider()),
		))
	}

	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Log.Level)}
	if cfg.IsDevelopment() && cfg.Log.Level == "info" {
		opts.Level = slog.LevelDebug
	}

	if useJSON(cfg.Log.Format, w) {
		return NewTraceHandler(slog.NewJSONHandler(w, opts))
	}
	return NewTraceHandler(slog.NewTextHandler(w, opts))
}

// ParseLevel maps a config level name to a slog level. Unknown names
// fall back to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// useJSON resolves the "auto" format: JSON unless w is a terminal.
func useJSON(format string, w io.Writer) bool {
	switch format {
	case "json":
		return true
	case "text":
		return false
	}
	f, ok := w.(*os.File)
	return !ok || !term.IsTerminal(int(f.Fd()))
}

// TraceHandler adds OpenTelemetry trace/span ids and the context's
// LogFields to every record.
type TraceHandler struct {
	slog.Handler
}

func NewTraceHandler(h slog.Handler) *TraceHandler {
	return &TraceHandler{Handler: h}
}

func (h *TraceHandler) Handle(ctx context.Context, r slog.Record) error {
	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		r.AddAttrs(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}

	fields := GetLogFields(ctx)
	if fields.RequestID != "" {
		r.AddAttrs(slog.String("request_id", fields.RequestID))
	}
	if fields.EventID != "" {
		r.AddAttrs(slog.String("event_id", fields.EventID))
	}
	if fields.DeliveryID != "" {
		r.AddAttrs(slog.String("delivery_id", fields.DeliveryID))
	}
	if fields.SessionID != "" {
		r.AddAttrs(slog.String("session_id", fields.SessionID))
	}
	if fields.MessageID != "" {
		r.AddAttrs(slog.String("message_id", fields.MessageID))
	}
	if fields.Component != "" {
		r.AddAttrs(slog.String("component", fields.Component))
	}

	return h.Handler.Handle(ctx, r)
}

func (h *TraceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &TraceHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *TraceHandler) WithGroup(name string) slog.Handler {
	return &TraceHandler{Handler: h.Handler.WithGroup(name)}
}
