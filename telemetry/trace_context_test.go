package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

const validTraceparent = "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"

func TestExtractTraceContext(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    TraceContext
	}{
		{
			name: "w3c headers",
			headers: map[string]string{
				"traceparent": validTraceparent,
				"tracestate":  "congo=t61rcWkgMzE",
			},
			want: TraceContext{Traceparent: validTraceparent, Tracestate: "congo=t61rcWkgMzE"},
		},
		{
			name: "xray only",
			headers: map[string]string{
				"X-Amzn-Trace-Id": "Root=1-5759e988-bd862e3fe1be46a994272793;Sampled=1",
			},
			want: TraceContext{XRayTraceID: "Root=1-5759e988-bd862e3fe1be46a994272793;Sampled=1"},
		},
		{
			name:    "malformed traceparent dropped",
			headers: map[string]string{"traceparent": "not-a-valid-traceparent"},
			want:    TraceContext{},
		},
		{
			name: "no headers",
			want: TraceContext{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/executions", http.NoBody)
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := ExtractTraceContext(r); got != tt.want {
				t.Errorf("ExtractTraceContext() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestTraceMiddlewareStoresContext(t *testing.T) {
	var got TraceContext
	inner := http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got = TraceContextFromContext(r.Context())
	})

	r := httptest.NewRequest(http.MethodPost, "/executions", http.NoBody)
	r.Header.Set("traceparent", validTraceparent)
	TraceMiddleware(inner).ServeHTTP(httptest.NewRecorder(), r)

	if got.Traceparent != validTraceparent {
		t.Errorf("Traceparent = %q, want %q", got.Traceparent, validTraceparent)
	}
}

func TestTraceMiddlewareWithoutHeaders(t *testing.T) {
	var got TraceContext
	inner := http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got = TraceContextFromContext(r.Context())
	})

	r := httptest.NewRequest(http.MethodPost, "/executions", http.NoBody)
	TraceMiddleware(inner).ServeHTTP(httptest.NewRecorder(), r)

	if !got.IsEmpty() {
		t.Errorf("expected empty TraceContext, got %+v", got)
	}
}

func TestInjectTraceHeaders(t *testing.T) {
	tc := TraceContext{
		Traceparent: validTraceparent,
		Tracestate:  "congo=t61rcWkgMzE",
		XRayTraceID: "Root=1-5759e988-bd862e3fe1be46a994272793",
	}
	ctx := ContextWithTrace(context.Background(), tc)

	out := httptest.NewRequest(http.MethodPost, "/collector", http.NoBody)
	InjectTraceHeaders(ctx, out)

	if got := out.Header.Get("traceparent"); got != tc.Traceparent {
		t.Errorf("traceparent = %q, want %q", got, tc.Traceparent)
	}
	if got := out.Header.Get("tracestate"); got != tc.Tracestate {
		t.Errorf("tracestate = %q, want %q", got, tc.Tracestate)
	}
	if got := out.Header.Get("X-Amzn-Trace-Id"); got != tc.XRayTraceID {
		t.Errorf("X-Amzn-Trace-Id = %q, want %q", got, tc.XRayTraceID)
	}
}

func TestInjectTraceHeadersNoContext(t *testing.T) {
	out := httptest.NewRequest(http.MethodPost, "/collector", http.NoBody)
	InjectTraceHeaders(context.Background(), out)

	for _, h := range []string{"traceparent", "tracestate", "X-Amzn-Trace-Id"} {
		if got := out.Header.Get(h); got != "" {
			t.Errorf("%s = %q, want empty", h, got)
		}
	}
}
