package minutes

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// SessionLogger writes structured JSONL engine events to a file, one record
// per line.
type SessionLogger struct {
	mu   sync.Mutex
	file *os.File
}

type logRecord struct {
	Timestamp string            `json:"ts"`
	Event     string            `json:"event"`
	SessionID string            `json:"session_id"`
	Outcome   string            `json:"outcome,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
}

// NewSessionLogger creates a logger under outputDir. Filename is timestamp
// plus a shortened session id.
func NewSessionLogger(outputDir, sessionID string, started time.Time) (*SessionLogger, error) {
	if outputDir == "" {
		outputDir = "."
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, err
	}
	shortID := sessionID
	if len(sessionID) > 8 {
		shortID = sessionID[:8]
	}
	filename := filepath.Join(outputDir, fmt.Sprintf("%s_session_%s.jsonl", started.Format("20060102_150405"), shortID))
	f, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	return &SessionLogger{file: f}, nil
}

func (sl *SessionLogger) Close() error {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if sl.file != nil {
		err := sl.file.Close()
		sl.file = nil
		return err
	}
	return nil
}

func (sl *SessionLogger) write(rec logRecord) {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if sl.file == nil {
		return
	}
	rec.Timestamp = time.Now().Format(time.RFC3339)
	line, err := json.Marshal(rec)
	if err != nil {
		return
	}
	sl.file.Write(append(line, '\n'))
}

func (sl *SessionLogger) LogRecordingStart(sessionID string, recordingSession int) {
	sl.write(logRecord{
		Event:     "recording_start",
		SessionID: sessionID,
		Details:   map[string]string{"recording_session": fmt.Sprintf("%d", recordingSession)},
	})
}

func (sl *SessionLogger) LogRecordingStop(sessionID string) {
	sl.write(logRecord{Event: "recording_stop", SessionID: sessionID})
}

func (sl *SessionLogger) LogClear(sessionID string) {
	sl.write(logRecord{Event: "transcript_clear", SessionID: sessionID})
}

func (sl *SessionLogger) LogGenerationStart(sessionID, origin string) {
	sl.write(logRecord{
		Event:     "generation_start",
		SessionID: sessionID,
		Details:   map[string]string{"origin": origin},
	})
}

func (sl *SessionLogger) LogGenerationEnd(sessionID string, outcome Outcome) {
	sl.write(logRecord{Event: "generation_end", SessionID: sessionID, Outcome: string(outcome)})
}

func (sl *SessionLogger) LogCadenceChange(sessionID string, seconds int) {
	sl.write(logRecord{
		Event:     "cadence_change",
		SessionID: sessionID,
		Details:   map[string]string{"seconds": fmt.Sprintf("%d", seconds)},
	})
}
