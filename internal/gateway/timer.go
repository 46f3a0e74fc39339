package gateway

import (
	"sync"
	"time"

	"github.com/cory-johannsen/classquest/internal/game/arena"
)

// PhaseTimer fires a callback after a configurable duration unless stopped.
// It is safe for concurrent use.
type PhaseTimer struct {
	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

// NewPhaseTimer creates and starts a timer that calls onFire after duration.
// onFire is called in a separate goroutine.
//
// Precondition: duration > 0; onFire must not be nil.
// Postcondition: onFire will be called unless Stop is called first.
func NewPhaseTimer(duration time.Duration, onFire func()) *PhaseTimer {
	pt := &PhaseTimer{}
	pt.timer = time.AfterFunc(duration, func() {
		pt.mu.Lock()
		stopped := pt.stopped
		pt.mu.Unlock()
		if !stopped {
			onFire()
		}
	})
	return pt
}

// Stop prevents the callback from firing. Safe to call multiple times.
//
// Postcondition: onFire will not start after Stop returns.
func (pt *PhaseTimer) Stop() {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	pt.stopped = true
	pt.timer.Stop()
}

// Deadlines are the per-phase time limits. A zero duration disables the
// deadline of that phase.
type Deadlines struct {
	Question time.Duration
	Move     time.Duration
	Action   time.Duration
}

func (d Deadlines) of(phase arena.Phase) time.Duration {
	switch phase {
	case arena.PhaseQuestion:
		return d.Question
	case arena.PhaseMove:
		return d.Move
	case arena.PhaseAction:
		return d.Action
	}
	return 0
}

// phaseTimers keeps at most one running deadline per encounter.
type phaseTimers struct {
	mu        sync.Mutex
	deadlines Deadlines
	timers    map[string]*PhaseTimer
}

func newPhaseTimers(d Deadlines) *phaseTimers {
	return &phaseTimers{deadlines: d, timers: make(map[string]*PhaseTimer)}
}

// arm replaces the deadline of encounterID with one for phase. Phases without
// a deadline only cancel the previous one.
//
// Postcondition: Returns whether a timer is now running.
func (t *phaseTimers) arm(encounterID string, phase arena.Phase, onFire func()) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if existing, ok := t.timers[encounterID]; ok {
		existing.Stop()
		delete(t.timers, encounterID)
	}
	d := t.deadlines.of(phase)
	if d <= 0 {
		return false
	}
	t.timers[encounterID] = NewPhaseTimer(d, onFire)
	return true
}

func (t *phaseTimers) cancel(encounterID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if pt, ok := t.timers[encounterID]; ok {
		pt.Stop()
		delete(t.timers, encounterID)
	}
}

func (t *phaseTimers) stopAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, pt := range t.timers {
		pt.Stop()
		delete(t.timers, id)
	}
}

func (t *phaseTimers) running(encounterID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.timers[encounterID]
	return ok
}
