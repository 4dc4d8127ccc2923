// Package prometheus exposes execution metrics through the Prometheus
// client library, either on a standalone scrape server or as a handler
// mounted into an existing mux.
package prometheus

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const readHeaderTimeout = 10 * time.Second

// Exporter owns a registry and optionally a scrape server bound to addr.
type Exporter struct {
	addr     string
	registry *prometheus.Registry

	mu      sync.Mutex
	server  *http.Server
	started bool
}

// NewExporter builds an exporter whose registry carries all execution
// collectors plus the Go runtime and process collectors.
func NewExporter(addr string) *Exporter {
	reg := prometheus.NewRegistry()
	for _, c := range allMetrics {
		reg.MustRegister(c)
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewExporterWithRegistry(addr, reg)
}

// NewExporterWithRegistry wraps a caller-owned registry. Nothing is
// pre-registered, which keeps test registries isolated.
func NewExporterWithRegistry(addr string, registry *prometheus.Registry) *Exporter {
	return &Exporter{addr: addr, registry: registry}
}

// Registry returns the underlying registry.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

// Register adds a collector to the registry, failing on duplicates.
func (e *Exporter) Register(c prometheus.Collector) error {
	return e.registry.Register(c)
}

// Handler returns the scrape handler for mounting into an existing server.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Start serves /metrics and /health on the configured address. It blocks
// like http.Server.ListenAndServe and returns http.ErrServerClosed after a
// graceful Shutdown. Calling Start on a running exporter is a no-op.
func (e *Exporter) Start() error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", e.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	e.server = &http.Server{
		Addr:              e.addr,
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	e.started = true
	e.mu.Unlock()

	return e.server.ListenAndServe()
}

// Shutdown stops the scrape server, waiting for in-flight scrapes up to the
// context deadline.
func (e *Exporter) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started || e.server == nil {
		return nil
	}
	e.started = false
	return e.server.Shutdown(ctx)
}
