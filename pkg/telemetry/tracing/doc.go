// Package tracing provides OpenTelemetry tracing for the Pulse pipeline.
//
// Spans cover the operations that talk to the shared store: writer
// flushes, failover probes and drains, and sampler publications. Spans are
// exported over OTLP gRPC.
//
//	tracer, err := tracing.New(&cfg.Telemetry.Tracing, version)
//	if err != nil {
//	    return err
//	}
//	defer tracer.Shutdown(context.Background())
//
//	ctx, span := tracer.Start(ctx, "writer.flush")
//	tracing.SetFlushAttributes(span, len(batch), groups, commands)
//	tracing.End(span, err)
//
// A nil *Tracer is valid and produces noop spans.
package tracing
