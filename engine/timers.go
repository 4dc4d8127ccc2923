package engine

import "time"

// Timer is a cancelable scheduled callback.
type Timer interface {
	// Stop cancels the timer. It reports whether the callback was
	// prevented from running.
	Stop() bool
}

// Scheduler schedules callbacks after a delay. The engine uses it for
// auto-advance and response predelay timers; substituting a manual
// implementation makes timer behavior deterministic in tests.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) Timer
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// NewScheduler returns the wall-clock scheduler.
func NewScheduler() Scheduler { return realScheduler{} }

// cancelTimers stops any pending auto-advance and predelay timers. A new
// user message, navigation, or session close must cancel stale callbacks so
// they never mutate a since-superseded state. Caller holds e.mu.
func (e *Engine) cancelTimers() {
	if e.autoAdvanceTimer != nil {
		e.autoAdvanceTimer.Stop()
		e.autoAdvanceTimer = nil
	}
	if e.predelayTimer != nil {
		e.predelayTimer.Stop()
		e.predelayTimer = nil
	}
}
