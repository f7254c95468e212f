/*
Package tracing follows an admin request through the service.

Every HTTP request gets a trace id and a span; completed spans are
logged through zap on a buffered background channel so the request path
never blocks on log I/O. Callers can supply their own X-Trace-ID and
X-Span-ID headers to correlate multi-hop tooling, and the response
always echoes the trace id back.

	tracer := tracing.New("firedesk", logger)
	router.Use(tracing.HTTPMiddleware(tracer))

	span, ctx := tracer.StartSpan(ctx, "operation")
	span.SetTag("instance_id", inst.ID)
	span.Finish()
	tracer.Submit(span)
*/
package tracing
