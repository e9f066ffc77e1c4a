package transcript

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// partialSuffix marks lines whose segment may still be revised upstream
const partialSuffix = " ..."

type segmentKey struct {
	resultID string
	source   Source
}

// Reconciler merges the latest-segment updates from two independent
// transcription sources into one ordered, de-duplicated collection. Each
// update carries the full current state of an utterance, not a diff, so
// merging is an upsert keyed on (ResultID, Source).
//
// No cross-source ordering correction is attempted beyond the
// (SessionID, StartTime) sort; interleaving by start time is best effort.
type Reconciler struct {
	mu        sync.Mutex
	segments  []Segment
	index     map[segmentKey]int
	sessionID int
}

// NewReconciler creates an empty reconciler at session 0.
func NewReconciler() *Reconciler {
	return &Reconciler{
		index: make(map[segmentKey]int),
	}
}

// Upsert merges one segment update. An existing entry with the same
// (ResultID, Source) is replaced in place, keeping its insertion position;
// otherwise the segment is appended. The current session id is stamped onto
// the incoming segment.
func (r *Reconciler) Upsert(seg Segment) {
	r.mu.Lock()
	defer r.mu.Unlock()

	seg.SessionID = r.sessionID

	key := segmentKey{resultID: seg.ResultID, source: seg.Source}
	if i, ok := r.index[key]; ok {
		r.segments[i] = seg
		return
	}
	r.index[key] = len(r.segments)
	r.segments = append(r.segments, seg)
}

// StartSession increments the session id and returns the new value. Callers
// must bump the session before clearing upstream source buffers so residual
// segments stay attributed to the prior session while new ones land in the
// new one.
func (r *Reconciler) StartSession() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessionID++
	return r.sessionID
}

// SessionID returns the current session id.
func (r *Reconciler) SessionID() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessionID
}

// Clear empties the merged collection and resets the session id to 0.
func (r *Reconciler) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.segments = nil
	r.index = make(map[segmentKey]int)
	r.sessionID = 0
}

// HasContent reports whether any segment has been merged.
func (r *Reconciler) HasContent() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.segments) > 0
}

// sorted returns a copy of the collection ordered by session id, then start
// time. The sort is stable so equal keys retain insertion order.
func (r *Reconciler) sorted() []Segment {
	out := make([]Segment, len(r.segments))
	copy(out, r.segments)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SessionID != out[j].SessionID {
			return out[i].SessionID < out[j].SessionID
		}
		return out[i].StartTime < out[j].StartTime
	})
	return out
}

// Lines renders the merged collection, one line per segment: an elapsed-time
// prefix, an optional speaker label resolved through speakerNames (falling
// back to the raw tag), the segment text, and a trailing marker for partial
// segments. A session boundary line is inserted before the first segment of
// each new session.
func (r *Reconciler) Lines(speakerNames map[string]string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	sorted := r.sorted()
	lines := make([]string, 0, len(sorted))

	lastSession := -1
	for i, seg := range sorted {
		if i > 0 && seg.SessionID != lastSession {
			lines = append(lines, sessionBoundary(seg.SessionID))
		}
		lastSession = seg.SessionID
		lines = append(lines, renderLine(seg, speakerNames))
	}

	return lines
}

// Export dumps the rendered transcript with a metadata header, suitable for
// saving to a file.
func (r *Reconciler) Export(sessionID string, started time.Time, speakerNames map[string]string) string {
	lines := r.Lines(speakerNames)

	header := fmt.Sprintf("Session ID: %s\nStart Time: %s\nDuration: %v\nSegments: %d\n\n---TRANSCRIPT---\n\n",
		sessionID,
		started.Format("2006-01-02 15:04:05"),
		time.Since(started).Round(time.Second),
		len(lines),
	)
	return header + strings.Join(lines, "\n")
}

func renderLine(seg Segment, speakerNames map[string]string) string {
	var b strings.Builder
	b.WriteString(formatClock(seg.StartTime))

	if tag := seg.SpeakerTag(); tag != "" {
		name := tag
		if mapped, ok := speakerNames[tag]; ok && mapped != "" {
			name = mapped
		}
		b.WriteString(" ")
		b.WriteString(name)
		b.WriteString(":")
	}

	b.WriteString(" ")
	b.WriteString(seg.Text())

	if seg.IsPartial {
		b.WriteString(partialSuffix)
	}
	return b.String()
}

func sessionBoundary(sessionID int) string {
	return fmt.Sprintf("--- session %d ---", sessionID)
}

// formatClock renders elapsed seconds as [MM:SS]
func formatClock(seconds float64) string {
	total := int(seconds)
	if total < 0 {
		total = 0
	}
	return fmt.Sprintf("[%02d:%02d]", total/60, total%60)
}
