// Package httpapi exposes workflow executions over HTTP: a JSON API for
// driving executions, a WebSocket stream of engine events, and optional
// Prometheus and OpenTelemetry integration.
package httpapi

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/HarborLabs/playbook/autosave"
	"github.com/HarborLabs/playbook/engine"
	"github.com/HarborLabs/playbook/events"
	"github.com/HarborLabs/playbook/logger"
	"github.com/HarborLabs/playbook/persistence"
	"github.com/HarborLabs/playbook/registry"
	"github.com/HarborLabs/playbook/snapshotstore"
	"github.com/HarborLabs/playbook/telemetry"
)

const (
	// defaultReadHeaderTimeout prevents Slowloris attacks.
	defaultReadHeaderTimeout = 10 * time.Second

	// defaultShutdownTimeout bounds session teardown during Shutdown.
	defaultShutdownTimeout = 10 * time.Second
)

// session bundles one live execution with its event bus and persistence.
type session struct {
	eng   *engine.Engine
	saver *autosave.Saver
	bus   *events.Bus
}

// ServerOption configures a [Server].
type ServerOption func(*Server)

// WithPort sets the TCP port for ListenAndServe.
func WithPort(port int) ServerOption {
	return func(s *Server) { s.port = port }
}

// WithComponents sets the step component resolver passed to each engine.
func WithComponents(r registry.Resolver) ServerOption {
	return func(s *Server) { s.components = r }
}

// WithMetricsHandler mounts a metrics handler at /metrics.
func WithMetricsHandler(h http.Handler) ServerOption {
	return func(s *Server) { s.metricsHandler = h }
}

// WithEventListener registers a listener on every execution's event bus.
// Metrics and telemetry listeners hook in here.
func WithEventListener(l events.Listener) ServerOption {
	return func(s *Server) { s.listeners = append(s.listeners, l) }
}

// WithTracing wraps the handler in otelhttp instrumentation.
func WithTracing() ServerOption {
	return func(s *Server) { s.tracing = true }
}

// WithSaverOptions sets extra options applied to each execution's saver.
func WithSaverOptions(opts ...autosave.Option) ServerOption {
	return func(s *Server) { s.saverOpts = opts }
}

// Server is an HTTP server that drives workflow executions.
type Server struct {
	repo           persistence.WorkflowRepository
	store          snapshotstore.Store
	components     registry.Resolver
	metricsHandler http.Handler
	listeners      []events.Listener
	saverOpts      []autosave.Option
	tracing        bool
	port           int
	httpSrv        *http.Server

	mu       sync.RWMutex
	sessions map[string]*session // executionID → session
}

// NewServer creates a server that loads workflow definitions from repo and
// persists execution snapshots to store.
func NewServer(repo persistence.WorkflowRepository, store snapshotstore.Store, opts ...ServerOption) *Server {
	s := &Server{
		repo:     repo,
		store:    store,
		sessions: make(map[string]*session),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the http.Handler for the API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /workflows", s.handleListWorkflows)

	mux.HandleFunc("POST /executions", s.handleCreateExecution)
	mux.HandleFunc("GET /executions/{id}", s.handleGetExecution)
	mux.HandleFunc("POST /executions/{id}/resume", s.handleResumeExecution)
	mux.HandleFunc("POST /executions/{id}/exit", s.handleExitExecution)

	mux.HandleFunc("POST /executions/{id}/messages", s.handleMessage)
	mux.HandleFunc("POST /executions/{id}/buttons", s.handleButton)
	mux.HandleFunc("POST /executions/{id}/component", s.handleComponent)
	mux.HandleFunc("POST /executions/{id}/goto", s.handleGoTo)

	mux.HandleFunc("POST /executions/{id}/steps/{ordinal}/complete", s.handleComplete)
	mux.HandleFunc("POST /executions/{id}/steps/{ordinal}/skip", s.handleSkip)
	mux.HandleFunc("POST /executions/{id}/steps/{ordinal}/snooze", s.handleSnooze)
	mux.HandleFunc("GET /executions/{id}/steps/{ordinal}/artifacts", s.handleArtifacts)
	mux.HandleFunc("GET /executions/{id}/progress", s.handleProgress)

	mux.HandleFunc("GET /executions/{id}/stream", s.handleStream)

	if s.metricsHandler != nil {
		mux.Handle("GET /metrics", s.metricsHandler)
	}

	var h http.Handler = mux
	if s.tracing {
		// Raw propagation headers stay available for offline trace export
		// alongside the otelhttp span context.
		h = otelhttp.NewHandler(telemetry.TraceMiddleware(h), "playbook.httpapi")
	}
	return h
}

// ListenAndServe starts the HTTP server on the configured port.
func (s *Server) ListenAndServe() error {
	s.httpSrv = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: defaultReadHeaderTimeout,
	}
	return s.httpSrv.ListenAndServe()
}

// Serve starts the HTTP server on the given listener.
func (s *Server) Serve(ln net.Listener) error {
	s.httpSrv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: defaultReadHeaderTimeout,
	}
	return s.httpSrv.Serve(ln)
}

// Run starts the server and blocks until ctx is canceled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Shutdown drains HTTP requests, force-saves every live execution, and
// closes all sessions.
func (s *Server) Shutdown(ctx context.Context) error {
	var firstErr error

	if s.httpSrv != nil {
		firstErr = s.httpSrv.Shutdown(ctx)
	}

	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*session)
	s.mu.Unlock()

	for id, sess := range sessions {
		if err := sess.eng.Exit(ctx); err != nil && err != engine.ErrExecutionFinished {
			logger.Warn("exit on shutdown failed", "execution_id", id, "error", err)
		}
		if err := sess.saver.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
		sess.bus.Clear()
	}

	return firstErr
}

// openSession builds the bus, saver, and engine for a workflow and registers
// the session. Used for both fresh starts and resumes.
func (s *Server) openSession(workflowID string, build func(*events.Bus, *autosave.Saver) (*engine.Engine, error)) (*session, error) {
	bus := events.NewBus(events.Async())
	for _, l := range s.listeners {
		bus.SubscribeAll(l)
	}

	saver := autosave.NewSaver(s.store, s.saverOpts...)
	eng, err := build(bus, saver)
	if err != nil {
		return nil, err
	}
	saver.AttachEmitter(events.NewEmitter(bus, eng.ExecutionID(), workflowID))

	sess := &session{eng: eng, saver: saver, bus: bus}
	s.mu.Lock()
	s.sessions[eng.ExecutionID()] = sess
	s.mu.Unlock()
	return sess, nil
}

// resumeSession rebuilds a live session from a stored snapshot. A non-zero
// lastSeen makes the load fail with autosave.ErrStaleSnapshot when the store
// holds a newer version than the client last rendered.
func (s *Server) resumeSession(ctx context.Context, id string, lastSeen int64) (*session, error) {
	bus := events.NewBus(events.Async())
	for _, l := range s.listeners {
		bus.SubscribeAll(l)
	}

	saver := autosave.NewSaver(s.store, s.saverOpts...)
	snap, err := saver.LoadSince(ctx, id, lastSeen)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, snapshotstore.ErrNotFound
	}

	def, err := s.repo.LoadWorkflow(snap.WorkflowID)
	if err != nil {
		return nil, err
	}

	eng, err := engine.Resume(def, snap,
		engine.WithEventBus(bus),
		engine.WithPersister(saver),
		engine.WithComponents(s.components),
	)
	if err != nil {
		return nil, err
	}
	emitter := events.NewEmitter(bus, eng.ExecutionID(), def.ID)
	saver.AttachEmitter(emitter)
	emitter.SnapshotLoaded(snap.Version, false)

	sess := &session{eng: eng, saver: saver, bus: bus}
	s.mu.Lock()
	s.sessions[eng.ExecutionID()] = sess
	s.mu.Unlock()
	return sess, nil
}

// lookupSession returns the live session for an execution ID.
func (s *Server) lookupSession(id string) (*session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// closeSession removes a session after exit.
func (s *Server) closeSession(ctx context.Context, id string) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	if err := sess.saver.Close(ctx); err != nil {
		logger.Warn("saver close failed", "execution_id", id, "error", err)
	}
	sess.bus.Clear()
}
