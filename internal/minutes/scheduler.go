package minutes

import (
	"context"
	"log"
	"sync"
	"time"
)

// State is a snapshot of the regeneration scheduler, suitable for display.
type State struct {
	CadenceSeconds   int  `json:"cadence_seconds"`
	RemainingSeconds int  `json:"remaining_seconds"`
	Armed            bool `json:"armed"`
	Pending          bool `json:"pending"`
}

// Scheduler drives periodic regeneration on a wall-clock cadence. The
// countdown decrements once per second while armed; on reaching zero it
// raises a fire signal and resets to the full cadence. A fire raised while a
// generation is already in flight (pending) is deferred, never queued: at
// most one fire is honored per completed generation. Manual triggers bypass
// the countdown but still respect pending.
type Scheduler struct {
	mu        sync.Mutex
	cadence   int
	remaining int
	armed     bool
	pending   bool
	deferred  bool
	coalesced int

	fires chan struct{}
}

// NewScheduler creates a disarmed scheduler with the given cadence.
func NewScheduler(cadenceSeconds int) *Scheduler {
	return &Scheduler{
		cadence:   cadenceSeconds,
		remaining: cadenceSeconds,
		fires:     make(chan struct{}, 1),
	}
}

// Run decrements the countdown once per wall-clock second until the context
// ends. State transitions live in Tick so tests can drive time directly.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Tick()
		case <-ctx.Done():
			return
		}
	}
}

// Tick advances the countdown by one second.
func (s *Scheduler) Tick() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.armed {
		return
	}

	s.remaining--
	if s.remaining > 0 {
		return
	}
	s.remaining = s.cadence
	s.fireLocked()
}

func (s *Scheduler) fireLocked() {
	if s.pending {
		// Recorded, not re-issued; replayed once on completion
		s.deferred = true
		s.coalesced++
		log.Printf("Regeneration fire coalesced (generation in flight)")
		return
	}
	s.pending = true
	select {
	case s.fires <- struct{}{}:
	default:
	}
}

// Fires returns the channel on which fire signals are delivered. Receiving a
// fire means pending is already set; the consumer must resolve it with
// Complete or Cancel.
func (s *Scheduler) Fires() <-chan struct{} {
	return s.fires
}

// TryAcquire attempts to start a manual generation. It bypasses the
// countdown gate but is rejected while any generation is in flight.
func (s *Scheduler) TryAcquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending {
		return false
	}
	s.pending = true
	return true
}

// Complete resolves the in-flight generation (success or failure). If a fire
// was deferred while it ran, exactly one replacement fire is raised now,
// provided scheduling is still armed.
func (s *Scheduler) Complete() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.pending {
		return
	}
	s.pending = false

	if s.deferred && s.armed {
		s.deferred = false
		s.fireLocked()
	}
	s.deferred = false
}

// Cancel clears pending after a user-aborted generation so a later fire can
// proceed. A deferred fire is dropped rather than replayed. Returns false on
// a double cancel, which is a no-op rather than an error.
func (s *Scheduler) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.pending {
		return false
	}
	s.pending = false
	s.deferred = false
	return true
}

// SetArmed enables or disables periodic firing. Arming restarts the
// countdown from the full cadence. Disarming stops the countdown but does
// not cancel an in-flight generation.
func (s *Scheduler) SetArmed(armed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if armed && !s.armed {
		s.remaining = s.cadence
	}
	s.armed = armed
}

// SetCadence changes the cadence and resets the countdown to it immediately.
func (s *Scheduler) SetCadence(cadenceSeconds int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cadence = cadenceSeconds
	s.remaining = cadenceSeconds
}

// Snapshot returns the current scheduler state.
func (s *Scheduler) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return State{
		CadenceSeconds:   s.cadence,
		RemainingSeconds: s.remaining,
		Armed:            s.armed,
		Pending:          s.pending,
	}
}

// CoalescedFires reports how many fire signals were deferred because a
// generation was in flight.
func (s *Scheduler) CoalescedFires() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.coalesced
}
