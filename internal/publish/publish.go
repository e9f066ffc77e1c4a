package publish

import "context"

// Event is one engine notification fanned out to external consumers
// (dashboards, gateways relaying to SSE, etc).
type Event struct {
	SessionID string `json:"session_id"`
	Type      string `json:"type"`
	Detail    string `json:"detail,omitempty"`
}

const (
	EventTranscriptUpdated = "transcript_updated"
	EventTranscriptCleared = "transcript_cleared"
	EventMinutesUpdated    = "minutes_updated"
	EventGenerationDone    = "generation_done"
)

// Publisher fans engine events out to interested consumers.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// NopPublisher discards all events. Used when no fan-out is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, ev Event) error { return nil }
func (NopPublisher) Close() error                                { return nil }
