package source

import (
	"context"

	"github.com/minutestream/engine/internal/transcript"
)

// StartOptions configures a transcription session on a source.
type StartOptions struct {
	LanguageHint        string
	EnableSpeakerLabels bool
}

// Source is one upstream transcription hook. Each update on Segments carries
// the most recent state of an utterance, not a diff; the reconciler handles
// replacement. Segments arrive without a session id.
type Source interface {
	Start(ctx context.Context, opts StartOptions) error
	Stop() error
	ClearBuffer() error
	Segments() <-chan transcript.Segment
}
