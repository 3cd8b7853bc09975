/*
Package tracing provides lightweight request tracing.

Each API request gets a span; its trace id is returned in X-Trace-ID and
continues into the outbound fetches the request causes, so a script
install can be followed from the API call through every download in the
logs. A caller-supplied X-Trace-ID / X-Span-ID pair is honoured.

Finished spans are buffered and written to the log by a collector
goroutine; when the buffer is full spans are dropped rather than blocking
the request.

# Usage

	tracer := tracing.New("userscripts", logger)
	defer tracer.Close()
	router.Use(tracing.HTTPMiddleware(tracer))

	span, ctx := tracer.StartSpan(ctx, "install")
	defer tracer.Finish(span)
*/
package tracing
