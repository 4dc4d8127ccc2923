// Package autosave provides debounced background persistence of execution
// snapshots. Bursts of mutations coalesce into a single store write; at most
// one write is in flight at any time, and a snapshot arriving mid-write is
// queued as the trailing write.
package autosave

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/HarborLabs/playbook/events"
	"github.com/HarborLabs/playbook/execution"
	"github.com/HarborLabs/playbook/logger"
	"github.com/HarborLabs/playbook/snapshotstore"
)

const (
	// defaultDebounce is the quiet period after the last Schedule call
	// before a write is issued.
	defaultDebounce = 500 * time.Millisecond

	// defaultWriteTimeout bounds a single store write.
	defaultWriteTimeout = 10 * time.Second
)

// ErrStaleSnapshot reports that the store holds a newer version than the one
// being written. It aliases the store-level sentinel so callers can check
// either package.
var ErrStaleSnapshot = snapshotstore.ErrStaleSnapshot

// ErrClosed is returned when scheduling on a closed Saver.
var ErrClosed = errors.New("autosave: saver closed")

// Status reports the persistence health of a Saver.
type Status struct {
	// Dirty is true when a snapshot is scheduled or being written but not
	// yet acknowledged by the store.
	Dirty bool

	// LastSavedAt is the time of the last successful write.
	LastSavedAt time.Time

	// LastSavedVersion is the snapshot version of the last successful write.
	LastSavedVersion int64

	// LastError is the error from the most recent failed write, cleared on
	// the next success.
	LastError error
}

// Saver debounces snapshot writes to a snapshotstore.Store.
type Saver struct {
	store         snapshotstore.Store
	debounce      time.Duration
	writeTimeout  time.Duration
	emitter       *events.Emitter
	limiter       *rate.Limiter
	lastWriteWins bool

	mu       sync.Mutex
	pending  *execution.Snapshot
	queued   *execution.Snapshot
	timer    *time.Timer
	inflight bool
	closed   bool
	wg       sync.WaitGroup

	lastSavedAt      time.Time
	lastSavedVersion int64
	lastErr          error
}

// Option configures a Saver.
type Option func(*Saver)

// WithDebounce sets the quiet period before a scheduled write is issued.
func WithDebounce(d time.Duration) Option {
	return func(s *Saver) { s.debounce = d }
}

// WithWriteTimeout bounds each store write.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *Saver) { s.writeTimeout = d }
}

// WithEmitter wires snapshot save events onto an event emitter.
func WithEmitter(e *events.Emitter) Option {
	return func(s *Saver) { s.emitter = e }
}

// WithLastWriteWins makes the saver overwrite a newer stored snapshot instead
// of failing with ErrStaleSnapshot. Off by default; enabling it accepts that
// a concurrent session's progress may be discarded.
func WithLastWriteWins() Option {
	return func(s *Saver) { s.lastWriteWins = true }
}

// NewSaver creates a Saver around the given store.
func NewSaver(store snapshotstore.Store, opts ...Option) *Saver {
	s := &Saver{
		store:        store,
		debounce:     defaultDebounce,
		writeTimeout: defaultWriteTimeout,
		// After a failed write, retries are throttled to one per second.
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AttachEmitter wires snapshot save events onto an emitter after
// construction, for callers that only learn the execution ID once the
// engine exists. Must be called before the first Schedule.
func (s *Saver) AttachEmitter(e *events.Emitter) {
	s.mu.Lock()
	s.emitter = e
	s.mu.Unlock()
}

// Schedule queues a snapshot for a debounced write. A snapshot scheduled
// while one is already pending replaces it; only the latest is written.
func (s *Saver) Schedule(snap *execution.Snapshot) error {
	if snap == nil {
		return snapshotstore.ErrInvalidSnapshot
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	s.pending = snap.Clone()

	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.debounce, s.flushPending)

	return nil
}

// SaveImmediate writes a snapshot synchronously, bypassing the debounce
// window. Any pending debounced write for an older state is dropped. The
// write goes through the same single-writer path as debounced writes, so an
// older write already in flight can never land after this one.
func (s *Saver) SaveImmediate(ctx context.Context, snap *execution.Snapshot) error {
	if snap == nil {
		return snapshotstore.ErrInvalidSnapshot
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.pending = nil
	s.mu.Unlock()

	return s.saveNow(ctx, snap.Clone())
}

// Flush writes any pending snapshot now and waits for in-flight writes to
// complete. Returns the last write error, if any.
func (s *Saver) Flush(ctx context.Context) error {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	snap := s.pending
	s.pending = nil
	s.mu.Unlock()

	if snap != nil {
		if err := s.saveNow(ctx, snap); err != nil {
			return err
		}
	}

	if err := s.waitIdle(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// saveNow writes a snapshot through the single-writer path. When a write is
// already in flight, the snapshot is handed to the running write loop as the
// trailing write and saveNow waits for the loop to drain, so writes always
// land in submission order.
func (s *Saver) saveNow(ctx context.Context, snap *execution.Snapshot) error {
	s.mu.Lock()
	if s.inflight {
		s.queued = snap
		s.mu.Unlock()
		if err := s.waitIdle(ctx); err != nil {
			return err
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.lastErr
	}
	s.inflight = true
	s.wg.Add(1)
	s.mu.Unlock()

	err := s.write(ctx, snap)

	s.mu.Lock()
	s.recordResult(snap, err)
	next := s.queued
	s.queued = nil
	if next != nil {
		// A debounced write queued up behind us; drain it in the
		// background.
		s.wg.Add(1)
		go s.writeLoop(next)
	} else {
		s.inflight = false
	}
	s.mu.Unlock()
	s.wg.Done()

	return err
}

// waitIdle blocks until no write is in flight or the context is done.
func (s *Saver) waitIdle(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close flushes pending work and rejects further scheduling.
func (s *Saver) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	return s.Flush(ctx)
}

// Load retrieves a stored snapshot. A missing snapshot is not an error; it
// returns (nil, nil) so callers can branch on "fresh start" without sentinel
// checks.
func (s *Saver) Load(ctx context.Context, executionID string) (*execution.Snapshot, error) {
	return s.LoadSince(ctx, executionID, 0)
}

// LoadSince retrieves a stored snapshot and checks it against the caller's
// last-seen version. When the store holds a version newer than lastSeen, the
// caller's view of the execution is stale; the snapshot is still returned,
// wrapped in ErrStaleSnapshot, so the caller can refresh from it. A lastSeen
// of zero skips the check.
func (s *Saver) LoadSince(ctx context.Context, executionID string, lastSeen int64) (*execution.Snapshot, error) {
	snap, err := s.store.Load(ctx, executionID)
	if err != nil {
		if errors.Is(err, snapshotstore.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if lastSeen > 0 && snap.Version > lastSeen {
		return snap, fmt.Errorf("%w: stored version %d, last seen %d",
			ErrStaleSnapshot, snap.Version, lastSeen)
	}
	return snap, nil
}

// Status reports the saver's persistence health.
func (s *Saver) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Dirty:            s.pending != nil || s.queued != nil || s.inflight,
		LastSavedAt:      s.lastSavedAt,
		LastSavedVersion: s.lastSavedVersion,
		LastError:        s.lastErr,
	}
}

// flushPending moves the pending snapshot into a background write when the
// debounce timer fires.
func (s *Saver) flushPending() {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.pending
	s.pending = nil
	if snap == nil {
		return
	}

	if s.inflight {
		// A write is running; this snapshot becomes the trailing write.
		s.queued = snap
		return
	}

	s.startWriteLocked(snap)
}

// startWriteLocked launches the background write loop. Caller holds s.mu.
func (s *Saver) startWriteLocked(snap *execution.Snapshot) {
	s.inflight = true
	s.wg.Add(1)
	go s.writeLoop(snap)
}

// writeLoop writes a snapshot and then drains any trailing queued snapshot.
func (s *Saver) writeLoop(snap *execution.Snapshot) {
	defer s.wg.Done()

	for snap != nil {
		err := s.write(context.Background(), snap)

		s.mu.Lock()
		s.recordResult(snap, err)
		snap = s.queued
		s.queued = nil
		if snap == nil {
			s.inflight = false
		}
		s.mu.Unlock()

		if snap != nil && err != nil {
			// Throttle the follow-up write after a failure.
			_ = s.limiter.Wait(context.Background())
		}
	}
}

// write performs a single bounded store write with staleness handling.
func (s *Saver) write(ctx context.Context, snap *execution.Snapshot) error {
	ctx, cancel := context.WithTimeout(ctx, s.writeTimeout)
	defer cancel()

	start := time.Now()
	s.emitter.SnapshotSaveStarted(snap.Version)

	err := s.checkedSave(ctx, snap)
	if err != nil {
		logger.SaveFailed(snap.ExecutionID, err, "version", snap.Version)
		s.emitter.SnapshotSaveFailed(snap.Version, err)
		return err
	}

	duration := time.Since(start)
	logger.SaveSucceeded(snap.ExecutionID, snap.Version, "duration", duration)
	s.emitter.SnapshotSaved(snap.Version, duration)
	return nil
}

// checkedSave enforces the staleness policy around the store write. Stores
// that do their own version checking (Postgres) surface ErrStaleSnapshot
// directly; for the rest, the stored version is compared first.
func (s *Saver) checkedSave(ctx context.Context, snap *execution.Snapshot) error {
	stored, err := s.store.Load(ctx, snap.ExecutionID)
	if err != nil && !errors.Is(err, snapshotstore.ErrNotFound) {
		return fmt.Errorf("stale check failed: %w", err)
	}

	if stored != nil && stored.Version > snap.Version {
		if !s.lastWriteWins {
			return fmt.Errorf("%w: stored version %d, writing %d",
				ErrStaleSnapshot, stored.Version, snap.Version)
		}
		// Overwrite anyway, bumping past the stored version so
		// version-checking stores accept the write.
		snap.Version = stored.Version + 1
	}

	if err := s.store.Save(ctx, snap); err != nil {
		return err
	}
	return nil
}

// recordResult updates save bookkeeping. Caller holds s.mu.
func (s *Saver) recordResult(snap *execution.Snapshot, err error) {
	if err != nil {
		s.lastErr = err
		return
	}
	s.lastErr = nil
	s.lastSavedAt = time.Now()
	s.lastSavedVersion = snap.Version
}
