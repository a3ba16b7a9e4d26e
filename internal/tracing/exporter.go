package tracing

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// FileExporter writes finished spans to a JSONL file, one SyncRecord per
// line, so a sync session can be inspected with jq or tailed while a watch
// runs.
//
// The exporter is safe for concurrent use. After Shutdown, further exports
// are silently dropped rather than reported, since the batch span processor
// may flush once more while the provider closes.
type FileExporter struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

var _ sdktrace.SpanExporter = (*FileExporter)(nil)

// NewFileExporter opens path, creating parent directories as needed. When
// truncate is set the file starts empty, so it only holds the spans of the
// current session; otherwise spans are appended to what earlier runs wrote.
func NewFileExporter(path string, truncate bool) (*FileExporter, error) {
	path = filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create trace directory: %w", err)
	}

	flags := os.O_CREATE | os.O_WRONLY
	if truncate {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_APPEND
	}
	file, err := os.OpenFile(path, flags, 0o600) // #nosec G304 -- path comes from local configuration
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	return &FileExporter{file: file, enc: json.NewEncoder(file)}, nil
}

// ExportSpans encodes each span as one line.
func (e *FileExporter) ExportSpans(_ context.Context, spans []sdktrace.ReadOnlySpan) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.file == nil {
		return nil
	}
	for _, span := range spans {
		if err := e.enc.Encode(newSyncRecord(span)); err != nil {
			return fmt.Errorf("encode span %s: %w", span.Name(), err)
		}
	}
	return nil
}

// Shutdown closes the trace file. It is safe to call more than once.
func (e *FileExporter) Shutdown(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.file == nil {
		return nil
	}
	err := e.file.Close()
	e.file, e.enc = nil, nil
	return err
}

// SyncRecord is one exported span. The attributes the pipeline sets on every
// run (file, flow identity, outcome, HTTP status) are lifted out of the
// attribute bag into their own fields; anything else stays in Attributes.
type SyncRecord struct {
	TraceID  string `json:"trace_id"`
	SpanID   string `json:"span_id"`
	ParentID string `json:"parent_id,omitempty"`
	Name     string `json:"name"`

	Start      time.Time `json:"start"`
	DurationMs float64   `json:"duration_ms"`

	File       string `json:"file,omitempty"`
	Namespace  string `json:"namespace,omitempty"`
	FlowID     string `json:"flow_id,omitempty"`
	State      string `json:"state,omitempty"`
	HTTPStatus int64  `json:"http_status,omitempty"`
	RunID      string `json:"run_id,omitempty"`

	// Error is the span status description when the span failed.
	Error string `json:"error,omitempty"`

	Attributes map[string]any `json:"attributes,omitempty"`
	Events     []EventRecord  `json:"events,omitempty"`
}

// EventRecord is a span event, typically the exception recorded by Fail.
type EventRecord struct {
	Name       string         `json:"name"`
	Time       time.Time      `json:"time"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Failed reports whether the span ended with an error status.
func (r SyncRecord) Failed() bool {
	return r.Error != ""
}

func newSyncRecord(span sdktrace.ReadOnlySpan) SyncRecord {
	sc := span.SpanContext()
	rec := SyncRecord{
		TraceID:    sc.TraceID().String(),
		SpanID:     sc.SpanID().String(),
		Name:       span.Name(),
		Start:      span.StartTime(),
		DurationMs: float64(span.EndTime().Sub(span.StartTime()).Microseconds()) / 1000,
	}
	if parent := span.Parent(); parent.IsValid() {
		rec.ParentID = parent.SpanID().String()
	}
	if status := span.Status(); status.Description != "" {
		rec.Error = status.Description
	}

	for _, kv := range span.Attributes() {
		switch string(kv.Key) {
		case AttrFilePath:
			rec.File = kv.Value.Emit()
		case AttrFlowNamespace:
			rec.Namespace = kv.Value.Emit()
		case AttrFlowID:
			rec.FlowID = kv.Value.Emit()
		case AttrSyncState:
			rec.State = kv.Value.Emit()
		case AttrRunID:
			rec.RunID = kv.Value.Emit()
		case AttrHTTPStatus:
			rec.HTTPStatus = kv.Value.AsInt64()
		case AttrErrorMessage:
			// Same text as the status description.
		default:
			rec.Attributes = setAttr(rec.Attributes, kv)
		}
	}

	for _, evt := range span.Events() {
		var attrs map[string]any
		for _, kv := range evt.Attributes {
			attrs = setAttr(attrs, kv)
		}
		rec.Events = append(rec.Events, EventRecord{Name: evt.Name, Time: evt.Time, Attributes: attrs})
	}
	return rec
}

func setAttr(m map[string]any, kv attribute.KeyValue) map[string]any {
	if m == nil {
		m = make(map[string]any)
	}
	m[string(kv.Key)] = kv.Value.AsInterface()
	return m
}
