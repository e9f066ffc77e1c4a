package stream

import (
	"encoding/json"
	"log"
	"strings"
)

// Event is one decoded record from a generation stream. The transport may
// attach other fields per record; only the text is consumed here.
type Event struct {
	Text string `json:"text"`
}

// Decode splits a raw chunk into newline-separated JSON records and parses
// each one. The transport buffers writes, so several records can arrive
// concatenated in a single delivery. Lines that fail to parse are logged and
// dropped; a malformed line must not abort the stream. Output preserves
// input line order.
func Decode(raw string) []Event {
	if raw == "" {
		return nil
	}

	var events []Event
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		// SSE-style transports prefix each record with "data:".
		if strings.HasPrefix(line, "data:") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if line == "" {
				continue
			}
		}

		var ev Event
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			log.Printf("Dropping malformed stream record: %v", err)
			continue
		}
		events = append(events, ev)
	}

	return events
}

// ExtractText concatenates the text of each event in order, skipping events
// with empty text.
func ExtractText(events []Event) string {
	var b strings.Builder
	for _, ev := range events {
		if ev.Text == "" {
			continue
		}
		b.WriteString(ev.Text)
	}
	return b.String()
}
