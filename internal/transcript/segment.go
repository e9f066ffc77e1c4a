package transcript

import "strings"

// Source identifies which of the two capture channels produced a segment
type Source string

const (
	SourceMic    Source = "mic"
	SourceSystem Source = "system"
)

// Piece is one span of recognized text, optionally attributed to a speaker
// tag assigned by the upstream transcription service.
type Piece struct {
	Text    string
	Speaker string
}

// Segment is one transcription result. ResultID is assigned upstream and is
// stable across partial revisions of the same utterance: a segment with the
// same (ResultID, Source) replaces any prior segment with that key. A final
// segment (IsPartial=false) is immutable upstream; if a partial arrives
// after a final for the same key anyway, last write wins.
type Segment struct {
	ResultID  string
	Source    Source
	StartTime float64
	EndTime   float64
	IsPartial bool
	Pieces    []Piece

	// SessionID is assigned by the reconciler, not the source
	SessionID int
}

// Text joins the segment's pieces in order.
func (s Segment) Text() string {
	var b strings.Builder
	for _, p := range s.Pieces {
		b.WriteString(p.Text)
	}
	return b.String()
}

// SpeakerTag returns the first non-empty speaker tag across the segment's
// pieces, or "" when the upstream source did not label speakers.
func (s Segment) SpeakerTag() string {
	for _, p := range s.Pieces {
		if p.Speaker != "" {
			return p.Speaker
		}
	}
	return ""
}
