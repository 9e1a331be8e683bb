/*
Package tracing times API requests and outgoing calibration service calls
and logs each finished span.

Trace context travels in the X-Trace-ID and X-Span-ID headers. The API
middleware continues an incoming trace and echoes both IDs in the response.
The remote calibration client opens a span per computation and injects its
IDs into the request, so the service can log against the same trace.

	tracer := tracing.New("gazeflow", logger)
	defer tracer.Close()
	router.Use(tracing.Middleware(tracer))

	span, ctx := tracer.StartSpan(ctx, "calibration.remote")
	defer func() {
		span.Finish()
		tracer.Submit(span)
	}()

Spans are buffered and logged by one collector goroutine; when the buffer
is full new spans are dropped with a warning.
*/
package tracing
