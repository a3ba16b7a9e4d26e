package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Span names.
const (
	SpanPipelineRun    = "pipeline.run"
	SpanBatch          = "pipeline.batch"
	SpanRemoteCreate   = "remote.create"
	SpanRemoteUpdate   = "remote.update"
	SpanMetadataUpsert = "metadata.upsert"
)

// Span attribute keys.
const (
	AttrFilePath      = "file.path"
	AttrFingerprint   = "file.fingerprint"
	AttrFlowNamespace = "flow.namespace"
	AttrFlowID        = "flow.id"
	AttrSyncState     = "sync.state"
	AttrHTTPStatus    = "http.status_code"
	AttrRequestID     = "http.request_id"
	AttrMetadataKey   = "metadata.key"
	AttrRunID         = "batch.run_id"
	AttrErrorMessage  = "error.message"
)

// OrNoop returns t, or a no-op tracer when t is nil.
func OrNoop(t trace.Tracer) trace.Tracer {
	if t == nil {
		return noop.NewTracerProvider().Tracer("noop")
	}
	return t
}

// Fail marks the span as errored.
func Fail(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(attribute.String(AttrErrorMessage, err.Error()))
}

// Start is a shorthand for an internal span with attributes.
func Start(ctx context.Context, t trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return OrNoop(t).Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
}
