package marker

import (
	"strings"
)

// FieldSpec declares one named field delimited by a sentinel tag pair inside
// generated text. List fields are split into trimmed lines once complete.
type FieldSpec struct {
	Name  string `yaml:"name"`
	Start string `yaml:"start"`
	End   string `yaml:"end"`
	List  bool   `yaml:"list"`
}

// FieldState tracks how much of a field has been seen in the buffer
type FieldState string

const (
	StateAbsent FieldState = "absent" // start sentinel not seen yet
	StateOpen   FieldState = "open"   // start seen, value still streaming
	StateClosed FieldState = "closed" // both sentinels seen, value final
)

// FieldValue is the extracted value of one field. Items is populated only
// for list fields, and only once the field is closed.
type FieldValue struct {
	State FieldState `json:"state"`
	Text  string     `json:"text"`
	Items []string   `json:"items,omitempty"`
}

// Extractor incrementally extracts declared fields from an accumulating
// text buffer. Once a field closes its value is cached: re-extraction with
// a grown (or otherwise changed) buffer never un-closes a field.
type Extractor struct {
	specs  []FieldSpec
	closed map[string]FieldValue
}

// NewExtractor creates an extractor for the given field declarations.
func NewExtractor(specs []FieldSpec) *Extractor {
	return &Extractor{
		specs:  specs,
		closed: make(map[string]FieldValue),
	}
}

// Extract computes the current value of every declared field from the full
// accumulated buffer. Fields are extracted independently; a closed field is
// served from cache rather than recomputed.
func (e *Extractor) Extract(buffer string) map[string]FieldValue {
	values := make(map[string]FieldValue, len(e.specs))

	for _, spec := range e.specs {
		if cached, ok := e.closed[spec.Name]; ok {
			values[spec.Name] = cached
			continue
		}

		value := extractField(buffer, spec)
		if value.State == StateClosed {
			e.closed[spec.Name] = value
		}
		values[spec.Name] = value
	}

	return values
}

func extractField(buffer string, spec FieldSpec) FieldValue {
	start := strings.Index(buffer, spec.Start)
	if start < 0 {
		return FieldValue{State: StateAbsent}
	}

	// Search for the end tag only after the start tag to avoid false
	// matches from sentinel text appearing before the field begins.
	rest := buffer[start+len(spec.Start):]
	end := strings.Index(rest, spec.End)
	if end < 0 {
		// Still streaming: trim leading whitespace only, the tail may
		// be mid-word.
		return FieldValue{
			State: StateOpen,
			Text:  strings.TrimLeft(rest, " \t\r\n"),
		}
	}

	text := strings.TrimSpace(rest[:end])
	value := FieldValue{State: StateClosed, Text: text}
	if spec.List {
		value.Items = splitLines(text)
	}
	return value
}

// splitLines splits a closed list field value into trimmed, non-empty lines
func splitLines(text string) []string {
	var items []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		items = append(items, line)
	}
	return items
}
