package transcript

import (
	"strings"
	"testing"
)

func seg(resultID string, source Source, start float64, partial bool, text string) Segment {
	return Segment{
		ResultID:  resultID,
		Source:    source,
		StartTime: start,
		EndTime:   start + 1,
		IsPartial: partial,
		Pieces:    []Piece{{Text: text}},
	}
}

func TestUpsertDeduplicatesByResultID(t *testing.T) {
	r := NewReconciler()
	r.Upsert(seg("r1", SourceMic, 0, true, "hel"))
	r.Upsert(seg("r1", SourceMic, 0, false, "hello"))

	lines := r.Lines(nil)
	if len(lines) != 1 {
		t.Fatalf("Expected 1 merged line, got %d: %v", len(lines), lines)
	}
	if !strings.Contains(lines[0], "hello") {
		t.Errorf("Expected final text 'hello', got '%s'", lines[0])
	}
	if strings.HasSuffix(lines[0], "...") {
		t.Errorf("Final segment should not carry the partial marker: '%s'", lines[0])
	}
}

func TestSameResultIDDifferentSourcesAreDistinct(t *testing.T) {
	r := NewReconciler()
	r.Upsert(seg("r1", SourceMic, 0, false, "from mic"))
	r.Upsert(seg("r1", SourceSystem, 1, false, "from system"))

	if got := len(r.Lines(nil)); got != 2 {
		t.Errorf("Expected 2 lines for distinct sources, got %d", got)
	}
}

func TestSortSessionBeforeStartTime(t *testing.T) {
	r := NewReconciler()
	r.Upsert(seg("r1", SourceMic, 5, false, "first session"))
	r.StartSession()
	r.Upsert(seg("r2", SourceMic, 1, false, "second session"))

	lines := r.Lines(nil)
	if len(lines) != 3 { // two segments plus the boundary marker
		t.Fatalf("Expected 3 lines, got %d: %v", len(lines), lines)
	}
	if !strings.Contains(lines[0], "first session") {
		t.Errorf("Session 0 segment should sort first despite later start time: %v", lines)
	}
	if !strings.Contains(lines[1], "--- session 1 ---") {
		t.Errorf("Expected session boundary before session 1, got '%s'", lines[1])
	}
	if !strings.Contains(lines[2], "second session") {
		t.Errorf("Expected session 1 segment last: %v", lines)
	}
}

func TestPartialMarkerAndClockPrefix(t *testing.T) {
	r := NewReconciler()
	r.Upsert(seg("r1", SourceMic, 65, true, "still talking"))

	lines := r.Lines(nil)
	if lines[0] != "[01:05] still talking ..." {
		t.Errorf("Unexpected rendering: '%s'", lines[0])
	}
}

func TestSpeakerNameMapping(t *testing.T) {
	r := NewReconciler()
	r.Upsert(Segment{
		ResultID: "r1", Source: SourceMic, StartTime: 0,
		Pieces: []Piece{{Text: "hi there", Speaker: "spk_0"}},
	})
	r.Upsert(Segment{
		ResultID: "r2", Source: SourceMic, StartTime: 2,
		Pieces: []Piece{{Text: "hello", Speaker: "spk_1"}},
	})

	lines := r.Lines(map[string]string{"spk_0": "Alice"})
	if !strings.Contains(lines[0], "Alice:") {
		t.Errorf("Expected mapped speaker name, got '%s'", lines[0])
	}
	// Unmapped tags fall back to the raw tag
	if !strings.Contains(lines[1], "spk_1:") {
		t.Errorf("Expected raw tag fallback, got '%s'", lines[1])
	}
}

func TestClearResetsSession(t *testing.T) {
	r := NewReconciler()
	r.StartSession()
	r.Upsert(seg("r1", SourceMic, 0, false, "x"))
	r.Clear()

	if r.HasContent() {
		t.Error("Expected no content after clear")
	}
	if r.SessionID() != 0 {
		t.Errorf("Expected session id 0 after clear, got %d", r.SessionID())
	}
}

func TestResidualSegmentsKeepPriorSession(t *testing.T) {
	r := NewReconciler()
	r.Upsert(seg("r1", SourceMic, 0, false, "old"))
	r.StartSession()
	r.Upsert(seg("r2", SourceMic, 0, false, "new"))

	lines := r.Lines(nil)
	if !strings.Contains(lines[0], "old") {
		t.Errorf("Prior-session segment should render before the boundary: %v", lines)
	}
	if !strings.Contains(lines[1], "--- session 1 ---") {
		t.Errorf("Expected boundary between sessions: %v", lines)
	}
}

func TestEndToEndTwoSources(t *testing.T) {
	r := NewReconciler()
	r.Upsert(seg("r1", SourceMic, 0, true, "he"))
	r.Upsert(seg("r1", SourceMic, 0, false, "hello, world"))
	r.Upsert(seg("r2", SourceSystem, 3, false, "ok"))

	lines := r.Lines(nil)
	if len(lines) != 2 {
		t.Fatalf("Expected 2 lines, got %d: %v", len(lines), lines)
	}
	if !strings.Contains(lines[0], "hello, world") || !strings.Contains(lines[1], "ok") {
		t.Errorf("Unexpected order or content: %v", lines)
	}
}

func TestFormatClock(t *testing.T) {
	cases := []struct {
		seconds float64
		want    string
	}{
		{0, "[00:00]"},
		{59.9, "[00:59]"},
		{60, "[01:00]"},
		{615, "[10:15]"},
		{-2, "[00:00]"},
	}
	for _, tc := range cases {
		if got := formatClock(tc.seconds); got != tc.want {
			t.Errorf("formatClock(%v) = %s, want %s", tc.seconds, got, tc.want)
		}
	}
}
