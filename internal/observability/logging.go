// Package observability wires the ambient zerolog + OpenTelemetry stack used
// across the dispatch core, grounded on the teacher's internal/observability
// and internal/logging packages.
package observability

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

// InitLogger configures the global zerolog logger. An empty path logs to
// stderr only; a non-empty path tees to both stderr and the file.
func InitLogger(path, level string) {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var out io.Writer = os.Stderr
	if strings.TrimSpace(path) != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err == nil {
			out = io.MultiWriter(os.Stderr, f)
		}
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	log.Logger = zerolog.New(out).With().Timestamp().Caller().Logger().Level(lvl)
}

// LoggerWithTrace returns a logger enriched with trace_id/span_id from ctx,
// if a sampled span is present.
func LoggerWithTrace(ctx context.Context) *zerolog.Logger {
	l := log.Logger
	if ctx == nil {
		return &l
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		l = l.With().Str("trace_id", sc.TraceID().String()).Logger()
		if sc.HasSpanID() {
			l = l.With().Str("span_id", sc.SpanID().String()).Logger()
		}
	}
	return &l
}
