package metrics

import (
	"fmt"
	"sync"
	"time"
)

// SessionMetrics tracks per-session engine counters.
type SessionMetrics struct {
	SessionID string
	StartTime time.Time
	EndTime   time.Time

	SegmentsMerged int
	PartialCount   int
	FinalCount     int

	ChunksDecoded int

	GenerationsRun       int
	GenerationsFailed    int
	GenerationsCancelled int
	FiresCoalesced       int

	FirstSegmentTime *time.Time

	mu sync.Mutex
}

func NewSessionMetrics(sessionID string) *SessionMetrics {
	return &SessionMetrics{
		SessionID: sessionID,
		StartTime: time.Now(),
	}
}

func (m *SessionMetrics) AddSegment(isPartial bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FirstSegmentTime == nil {
		now := time.Now()
		m.FirstSegmentTime = &now
	}

	m.SegmentsMerged++
	if isPartial {
		m.PartialCount++
	} else {
		m.FinalCount++
	}
}

func (m *SessionMetrics) AddChunks(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ChunksDecoded += n
}

func (m *SessionMetrics) AddGeneration(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.GenerationsRun++
	switch outcome {
	case "failed":
		m.GenerationsFailed++
	case "cancelled":
		m.GenerationsCancelled++
	}
}

func (m *SessionMetrics) SetFiresCoalesced(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FiresCoalesced = n
}

func (m *SessionMetrics) Finalize() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.EndTime = time.Now()
}

func (m *SessionMetrics) Summary() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	duration := m.EndTime.Sub(m.StartTime)
	var latency time.Duration
	if m.FirstSegmentTime != nil {
		latency = m.FirstSegmentTime.Sub(m.StartTime)
	}

	return fmt.Sprintf(
		"Session: %s\n"+
			"Duration: %v\n"+
			"Segments Merged: %d\n"+
			"Partial Results: %d\n"+
			"Final Results: %d\n"+
			"First Segment Latency: %v\n"+
			"Chunks Decoded: %d\n"+
			"Generations Run: %d\n"+
			"Generations Failed: %d\n"+
			"Generations Cancelled: %d\n"+
			"Fires Coalesced: %d\n",
		m.SessionID,
		duration,
		m.SegmentsMerged,
		m.PartialCount,
		m.FinalCount,
		latency,
		m.ChunksDecoded,
		m.GenerationsRun,
		m.GenerationsFailed,
		m.GenerationsCancelled,
		m.FiresCoalesced,
	)
}
