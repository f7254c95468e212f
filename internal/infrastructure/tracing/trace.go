package tracing

import (
	"context"
	"time"

	"github.com/firedesk/firedesk/internal/shared/id"
	"go.uber.org/zap"
)

// TraceID identifies one logical request across log lines.
type TraceID string

// SpanID identifies one operation within a trace.
type SpanID string

// Span is a single timed operation. Spans are cheap records, not live
// objects: handlers fill them in and hand them to Tracer.Submit.
type Span struct {
	TraceID   TraceID
	SpanID    SpanID
	ParentID  SpanID
	Name      string
	StartTime time.Time
	Duration  time.Duration
	Status    int
	Tags      map[string]string
	Err       error
}

// Tracer assigns trace/span ids to requests and logs completed spans
// through zap. Completed spans go through a buffered channel so logging
// never blocks the request path.
type Tracer struct {
	service string
	logger  *zap.Logger
	spans   chan *Span
}

// New starts a tracer for the named service.
func New(service string, logger *zap.Logger) *Tracer {
	t := &Tracer{
		service: service,
		logger:  logger,
		spans:   make(chan *Span, 1000),
	}
	go t.drain()
	return t
}

// StartSpan opens a span under the trace carried by ctx, minting a new
// trace id if ctx has none. The returned context carries the new span
// as parent for anything started beneath it.
func (t *Tracer) StartSpan(ctx context.Context, name string) (*Span, context.Context) {
	traceID := GetTraceID(ctx)
	if traceID == "" {
		traceID = TraceID(id.NewRequestID())
	}

	span := &Span{
		TraceID:   traceID,
		SpanID:    SpanID(id.NewRequestID()),
		ParentID:  GetSpanID(ctx),
		Name:      name,
		StartTime: time.Now(),
		Tags:      make(map[string]string),
	}

	ctx = context.WithValue(ctx, traceIDKey, traceID)
	ctx = context.WithValue(ctx, spanIDKey, span.SpanID)
	return span, ctx
}

// SetTag annotates the span.
func (s *Span) SetTag(key, value string) {
	s.Tags[key] = value
}

// Finish stamps the span's duration.
func (s *Span) Finish() {
	s.Duration = time.Since(s.StartTime)
}

// Submit queues a finished span for logging. Drops the span if the
// buffer is full rather than stalling a request.
func (t *Tracer) Submit(span *Span) {
	select {
	case t.spans <- span:
	default:
		t.logger.Warn("span buffer full, dropping span",
			zap.String("trace_id", string(span.TraceID)),
		)
	}
}

func (t *Tracer) drain() {
	for span := range t.spans {
		fields := []zap.Field{
			zap.String("trace_id", string(span.TraceID)),
			zap.String("span_id", string(span.SpanID)),
			zap.String("service", t.service),
			zap.String("operation", span.Name),
			zap.Duration("duration", span.Duration),
			zap.Int("status", span.Status),
		}
		if span.ParentID != "" {
			fields = append(fields, zap.String("parent_id", string(span.ParentID)))
		}
		for k, v := range span.Tags {
			fields = append(fields, zap.String(k, v))
		}

		if span.Err != nil {
			t.logger.Error("request failed", append(fields, zap.Error(span.Err))...)
		} else {
			t.logger.Debug("request completed", fields...)
		}
	}
}

type contextKey string

const (
	traceIDKey contextKey = "trace_id"
	spanIDKey  contextKey = "span_id"
)

// GetTraceID returns the trace id carried by ctx, or "".
func GetTraceID(ctx context.Context) TraceID {
	if v, ok := ctx.Value(traceIDKey).(TraceID); ok {
		return v
	}
	return ""
}

// GetSpanID returns the span id carried by ctx, or "".
func GetSpanID(ctx context.Context) SpanID {
	if v, ok := ctx.Value(spanIDKey).(SpanID); ok {
		return v
	}
	return ""
}
