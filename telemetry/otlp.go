package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/HarborLabs/playbook/version"
)

// OTLP exporter defaults.
const (
	defaultBatchSize = 100
	defaultTimeout   = 30 * time.Second

	otlpScopeName = "playbook-telemetry"
)

// HTTPClient is the subset of http.Client the exporter needs. Tests swap in
// a recording implementation.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// OTLPExporter ships execution spans to an OTLP/HTTP traces endpoint as
// JSON-encoded payloads. Spans can be sent directly with Export or staged
// with Queue, which flushes whenever the batch fills.
type OTLPExporter struct {
	endpoint  string
	headers   map[string]string
	resource  *Resource
	batchSize int
	pending   []*Span
	client    HTTPClient
}

// OTLPExporterOption configures an OTLPExporter.
type OTLPExporterOption func(*OTLPExporter)

// WithHeaders adds headers to every export request, typically auth tokens
// for a hosted collector.
func WithHeaders(headers map[string]string) OTLPExporterOption {
	return func(e *OTLPExporter) { e.headers = headers }
}

// WithResource overrides the resource attributes attached to exported spans.
func WithResource(resource *Resource) OTLPExporterOption {
	return func(e *OTLPExporter) { e.resource = resource }
}

// WithBatchSize sets how many queued spans accumulate before Queue flushes.
func WithBatchSize(size int) OTLPExporterOption {
	return func(e *OTLPExporter) { e.batchSize = size }
}

// WithHTTPClient swaps the HTTP client used for export requests.
func WithHTTPClient(client HTTPClient) OTLPExporterOption {
	return func(e *OTLPExporter) { e.client = client }
}

// NewOTLPExporter creates an exporter targeting the given OTLP/HTTP traces
// endpoint.
func NewOTLPExporter(endpoint string, opts ...OTLPExporterOption) *OTLPExporter {
	e := &OTLPExporter{
		endpoint:  endpoint,
		headers:   make(map[string]string),
		batchSize: defaultBatchSize,
		resource:  DefaultResource(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.client == nil {
		e.client = &http.Client{Timeout: defaultTimeout}
	}
	return e
}

// Export sends the spans to the endpoint in a single request. Exporting an
// empty slice is a no-op.
func (e *OTLPExporter) Export(ctx context.Context, spans []*Span) error {
	if len(spans) == 0 {
		return nil
	}

	data, err := json.Marshal(e.buildPayload(spans))
	if err != nil {
		return fmt.Errorf("marshal OTLP payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range e.headers {
		req.Header.Set(k, v)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("OTLP export failed (status %d): %s", resp.StatusCode, string(body))
	}
	return nil
}

// Queue stages a span for batched export, flushing once the batch fills.
// Not safe for concurrent use; callers feeding Queue from multiple
// goroutines must serialize.
func (e *OTLPExporter) Queue(ctx context.Context, span *Span) error {
	e.pending = append(e.pending, span)
	if len(e.pending) < e.batchSize {
		return nil
	}
	return e.flush(ctx)
}

// Shutdown exports any queued spans.
func (e *OTLPExporter) Shutdown(ctx context.Context) error {
	return e.flush(ctx)
}

func (e *OTLPExporter) flush(ctx context.Context) error {
	if len(e.pending) == 0 {
		return nil
	}
	if err := e.Export(ctx, e.pending); err != nil {
		return err
	}
	e.pending = nil
	return nil
}

// Wire structs for the OTLP/JSON trace payload.
type otlpPayload struct {
	ResourceSpans []otlpResourceSpans `json:"resourceSpans"`
}

type otlpResourceSpans struct {
	Resource   otlpResource    `json:"resource"`
	ScopeSpans []otlpScopeSpan `json:"scopeSpans"`
}

type otlpResource struct {
	Attributes []otlpAttribute `json:"attributes"`
}

type otlpScopeSpan struct {
	Scope otlpScope  `json:"scope"`
	Spans []otlpSpan `json:"spans"`
}

type otlpScope struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type otlpSpan struct {
	TraceID           string          `json:"traceId"`
	SpanID            string          `json:"spanId"`
	ParentSpanID      string          `json:"parentSpanId,omitempty"`
	Name              string          `json:"name"`
	Kind              int             `json:"kind"`
	StartTimeUnixNano int64           `json:"startTimeUnixNano"`
	EndTimeUnixNano   int64           `json:"endTimeUnixNano"`
	Attributes        []otlpAttribute `json:"attributes,omitempty"`
	Status            *otlpStatus     `json:"status,omitempty"`
	Events            []otlpEvent     `json:"events,omitempty"`
}

type otlpAttribute struct {
	Key   string        `json:"key"`
	Value otlpAttrValue `json:"value"`
}

type otlpAttrValue struct {
	StringValue *string  `json:"stringValue,omitempty"`
	IntValue    *int64   `json:"intValue,omitempty"`
	DoubleValue *float64 `json:"doubleValue,omitempty"`
	BoolValue   *bool    `json:"boolValue,omitempty"`
}

type otlpStatus struct {
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
}

type otlpEvent struct {
	Name         string          `json:"name"`
	TimeUnixNano int64           `json:"timeUnixNano"`
	Attributes   []otlpAttribute `json:"attributes,omitempty"`
}

func (e *OTLPExporter) buildPayload(spans []*Span) *otlpPayload {
	wireSpans := make([]otlpSpan, 0, len(spans))
	for _, span := range spans {
		wireSpans = append(wireSpans, e.wireSpan(span))
	}

	return &otlpPayload{
		ResourceSpans: []otlpResourceSpans{{
			Resource: otlpResource{Attributes: wireAttributes(e.resource.Attributes)},
			ScopeSpans: []otlpScopeSpan{{
				Scope: otlpScope{Name: otlpScopeName, Version: version.GetVersion()},
				Spans: wireSpans,
			}},
		}},
	}
}

func (e *OTLPExporter) wireSpan(span *Span) otlpSpan {
	s := otlpSpan{
		TraceID:           span.TraceID,
		SpanID:            span.SpanID,
		ParentSpanID:      span.ParentSpanID,
		Name:              span.Name,
		Kind:              int(span.Kind),
		StartTimeUnixNano: span.StartTime.UnixNano(),
		EndTimeUnixNano:   span.EndTime.UnixNano(),
		Attributes:        wireAttributes(span.Attributes),
	}

	if span.Status != nil {
		s.Status = &otlpStatus{Code: int(span.Status.Code), Message: span.Status.Message}
	}

	for _, evt := range span.Events {
		s.Events = append(s.Events, otlpEvent{
			Name:         evt.Name,
			TimeUnixNano: evt.Time.UnixNano(),
			Attributes:   wireAttributes(evt.Attributes),
		})
	}
	return s
}

// wireAttributes converts an attribute map in sorted key order so payloads
// are stable across runs.
func wireAttributes(attrs map[string]interface{}) []otlpAttribute {
	if len(attrs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]otlpAttribute, 0, len(keys))
	for _, k := range keys {
		out = append(out, wireAttribute(k, attrs[k]))
	}
	return out
}

func wireAttribute(key string, value interface{}) otlpAttribute {
	attr := otlpAttribute{Key: key}
	switch v := value.(type) {
	case string:
		attr.Value.StringValue = &v
	case int:
		i := int64(v)
		attr.Value.IntValue = &i
	case int64:
		attr.Value.IntValue = &v
	case float64:
		attr.Value.DoubleValue = &v
	case bool:
		attr.Value.BoolValue = &v
	default:
		s := fmt.Sprintf("%v", v)
		attr.Value.StringValue = &s
	}
	return attr
}

var _ Exporter = (*OTLPExporter)(nil)
