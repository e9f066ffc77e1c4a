package minutes

import (
	"testing"
)

func drainFire(t *testing.T, s *Scheduler) {
	t.Helper()
	select {
	case <-s.Fires():
	default:
		t.Fatal("Expected a fire signal")
	}
}

func expectNoFire(t *testing.T, s *Scheduler) {
	t.Helper()
	select {
	case <-s.Fires():
		t.Fatal("Unexpected fire signal")
	default:
	}
}

func TestCountdownFiresAndResets(t *testing.T) {
	s := NewScheduler(3)
	s.SetArmed(true)

	s.Tick()
	s.Tick()
	expectNoFire(t, s)

	s.Tick()
	drainFire(t, s)

	st := s.Snapshot()
	if st.RemainingSeconds != 3 {
		t.Errorf("Expected countdown reset to cadence, got %d", st.RemainingSeconds)
	}
	if !st.Pending {
		t.Error("Expected pending after fire")
	}
}

func TestDisarmedSchedulerNeverFires(t *testing.T) {
	s := NewScheduler(1)
	for i := 0; i < 5; i++ {
		s.Tick()
	}
	expectNoFire(t, s)
}

func TestFireCoalescingWhilePending(t *testing.T) {
	s := NewScheduler(1)
	s.SetArmed(true)

	s.Tick()
	drainFire(t, s) // generation now in flight

	// Several countdown expiries while pending: recorded, not re-issued
	s.Tick()
	s.Tick()
	s.Tick()
	expectNoFire(t, s)
	if s.CoalescedFires() != 3 {
		t.Errorf("Expected 3 coalesced fires, got %d", s.CoalescedFires())
	}

	// Completion honors exactly one deferred fire, not a backlog
	s.Complete()
	drainFire(t, s)
	expectNoFire(t, s)
}

func TestCompleteWithoutDeferredFire(t *testing.T) {
	s := NewScheduler(2)
	s.SetArmed(true)
	s.Tick()
	s.Tick()
	drainFire(t, s)

	s.Complete()
	expectNoFire(t, s)
	if s.Snapshot().Pending {
		t.Error("Expected pending cleared after complete")
	}
}

func TestManualTriggerGatedByPending(t *testing.T) {
	s := NewScheduler(60)

	if !s.TryAcquire() {
		t.Fatal("First manual trigger should be accepted")
	}
	if s.TryAcquire() {
		t.Error("Manual trigger while pending should be rejected")
	}

	s.Complete()
	if !s.TryAcquire() {
		t.Error("Manual trigger after completion should be accepted")
	}
}

func TestManualTriggerWorksWhileDisarmed(t *testing.T) {
	s := NewScheduler(60)
	// armed=false: countdown is off but manual requests still go through
	if !s.TryAcquire() {
		t.Error("Manual trigger should bypass the countdown gate")
	}
}

func TestCancelClearsPendingOnce(t *testing.T) {
	s := NewScheduler(60)
	s.TryAcquire()

	if !s.Cancel() {
		t.Error("First cancel should clear pending")
	}
	if s.Cancel() {
		t.Error("Double cancel must be a no-op")
	}
	if s.Snapshot().Pending {
		t.Error("Expected pending cleared after cancel")
	}
}

func TestCancelDropsDeferredFire(t *testing.T) {
	s := NewScheduler(1)
	s.SetArmed(true)
	s.Tick()
	drainFire(t, s)
	s.Tick() // deferred while pending

	s.Cancel()
	expectNoFire(t, s)
}

func TestSetCadenceResetsCountdown(t *testing.T) {
	s := NewScheduler(10)
	s.SetArmed(true)
	s.Tick()
	s.Tick()

	s.SetCadence(5)
	st := s.Snapshot()
	if st.CadenceSeconds != 5 || st.RemainingSeconds != 5 {
		t.Errorf("Expected cadence and remaining 5, got %+v", st)
	}
}

func TestDisarmStopsCountdownButNotInFlight(t *testing.T) {
	s := NewScheduler(1)
	s.SetArmed(true)
	s.Tick()
	drainFire(t, s)

	s.SetArmed(false)
	if !s.Snapshot().Pending {
		t.Error("Disarming must not cancel the in-flight generation")
	}
	s.Tick()
	s.Complete()
	// Deferred fires are not replayed once disarmed
	expectNoFire(t, s)
}

func TestRearmRestartsCountdown(t *testing.T) {
	s := NewScheduler(4)
	s.SetArmed(true)
	s.Tick()
	s.SetArmed(false)
	s.SetArmed(true)

	if got := s.Snapshot().RemainingSeconds; got != 4 {
		t.Errorf("Expected countdown restarted at cadence, got %d", got)
	}
}
