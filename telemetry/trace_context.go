package telemetry

import (
	"context"
	"net/http"
	"regexp"
)

// Header names for distributed trace propagation. The engine speaks W3C
// Trace Context and tolerates the X-Ray header used by AWS load balancers.
const (
	headerTraceparent = "traceparent"
	headerTracestate  = "tracestate"
	headerXRay        = "X-Amzn-Trace-Id"
)

// traceparentRe matches version-trace_id-parent_id-flags, all lowercase hex.
var traceparentRe = regexp.MustCompile(`^[0-9a-f]{2}-[0-9a-f]{32}-[0-9a-f]{16}-[0-9a-f]{2}$`)

// TraceContext carries the propagation headers that arrived with the request
// that started an execution. ConvertExecutionWithParent uses it to parent the
// execution trace under the caller's trace instead of minting a fresh root.
type TraceContext struct {
	Traceparent string
	Tracestate  string
	XRayTraceID string
}

// IsEmpty reports whether no propagation data is present.
func (tc TraceContext) IsEmpty() bool {
	return tc == TraceContext{}
}

// ExtractTraceContext pulls propagation headers off an inbound request. A
// traceparent that does not match the W3C grammar is dropped rather than
// carried forward into generated traces.
func ExtractTraceContext(r *http.Request) TraceContext {
	tc := TraceContext{
		Tracestate:  r.Header.Get(headerTracestate),
		XRayTraceID: r.Header.Get(headerXRay),
	}
	if tp := r.Header.Get(headerTraceparent); traceparentRe.MatchString(tp) {
		tc.Traceparent = tp
	}
	return tc
}

type traceContextKey struct{}

// ContextWithTrace attaches a TraceContext to a context.
func ContextWithTrace(ctx context.Context, tc TraceContext) context.Context {
	return context.WithValue(ctx, traceContextKey{}, tc)
}

// TraceContextFromContext returns the TraceContext attached to ctx, or the
// zero value when none was stored.
func TraceContextFromContext(ctx context.Context) TraceContext {
	tc, _ := ctx.Value(traceContextKey{}).(TraceContext)
	return tc
}

// TraceMiddleware captures inbound propagation headers into the request
// context so the execution opened by the handler can be parented under the
// caller's trace.
func TraceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if tc := ExtractTraceContext(r); !tc.IsEmpty() {
			r = r.WithContext(ContextWithTrace(r.Context(), tc))
		}
		next.ServeHTTP(w, r)
	})
}

// InjectTraceHeaders copies the context's propagation headers onto an
// outbound request, for calls made on behalf of a traced execution.
func InjectTraceHeaders(ctx context.Context, req *http.Request) {
	tc := TraceContextFromContext(ctx)
	if tc.Traceparent != "" {
		req.Header.Set(headerTraceparent, tc.Traceparent)
	}
	if tc.Tracestate != "" {
		req.Header.Set(headerTracestate, tc.Tracestate)
	}
	if tc.XRayTraceID != "" {
		req.Header.Set(headerXRay, tc.XRayTraceID)
	}
}
