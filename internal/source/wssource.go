package source

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/minutestream/engine/internal/transcript"
)

// resultFrame is the JSON shape of one streaming transcription result.
type resultFrame struct {
	ResultID  string  `json:"result_id"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
	IsPartial bool    `json:"is_partial"`
	Items     []struct {
		Content string `json:"content"`
		Speaker string `json:"speaker,omitempty"`
	} `json:"items"`
}

// controlFrame is sent to the provider to stop a session or clear its
// recognition buffer.
type controlFrame struct {
	Action string `json:"action"`
}

// WSSource streams transcription results from a WebSocket speech-to-text
// provider. One instance is created per capture channel (mic or system
// audio); the provider owns audio acquisition, this side only consumes
// result frames.
type WSSource struct {
	serverURL string
	label     transcript.Source

	mu       sync.Mutex
	conn     *websocket.Conn
	segments chan transcript.Segment
	started  bool
}

// NewWSSource creates a source for the given provider URL, labelling every
// segment with the capture channel it came from.
func NewWSSource(serverURL string, label transcript.Source) *WSSource {
	return &WSSource{
		serverURL: serverURL,
		label:     label,
		segments:  make(chan transcript.Segment, 100),
	}
}

// Start connects to the provider and begins reading result frames. The
// language hint and speaker-label switch are passed as query parameters.
func (ws *WSSource) Start(ctx context.Context, opts StartOptions) error {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if ws.started {
		return fmt.Errorf("source %s already started", ws.label)
	}

	q := url.Values{}
	if opts.LanguageHint != "" {
		q.Set("language", opts.LanguageHint)
	}
	if opts.EnableSpeakerLabels {
		q.Set("speaker_labels", "true")
	}
	dialURL := ws.serverURL
	if enc := q.Encode(); enc != "" {
		dialURL = fmt.Sprintf("%s?%s", ws.serverURL, enc)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, dialURL, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to transcription source %s: %w", ws.label, err)
	}

	ws.conn = conn
	ws.started = true
	go ws.readLoop(ctx, conn)

	log.Printf("Source %s connected to %s", ws.label, ws.serverURL)
	return nil
}

func (ws *WSSource) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var frame resultFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("Source %s WebSocket error: %v", ws.label, err)
			}
			// The segments channel stays open: recording can restart
			// on a fresh connection and keep feeding the same consumer.
			return
		}

		if frame.ResultID == "" {
			// Keepalive or unrecognized frame
			continue
		}

		seg := transcript.Segment{
			ResultID:  frame.ResultID,
			Source:    ws.label,
			StartTime: frame.StartTime,
			EndTime:   frame.EndTime,
			IsPartial: frame.IsPartial,
		}
		for _, item := range frame.Items {
			seg.Pieces = append(seg.Pieces, transcript.Piece{
				Text:    item.Content,
				Speaker: item.Speaker,
			})
		}

		select {
		case ws.segments <- seg:
		case <-ctx.Done():
			// The consumer is gone; a full buffer must not strand this
			// goroutine on the send.
			conn.Close()
			return
		}
	}
}

// Stop tells the provider to finish the session and closes the connection.
// The segments channel stays open for a later restart.
func (ws *WSSource) Stop() error {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if ws.conn == nil {
		return nil
	}

	if err := ws.conn.WriteJSON(controlFrame{Action: "stop"}); err != nil {
		log.Printf("Source %s: failed to send stop: %v", ws.label, err)
	}

	err := ws.conn.Close()
	ws.conn = nil
	ws.started = false
	return err
}

// ClearBuffer tells the provider to discard its recognition buffer so
// revisions of pre-clear utterances stop arriving.
func (ws *WSSource) ClearBuffer() error {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if ws.conn == nil {
		return nil
	}
	if err := ws.conn.WriteJSON(controlFrame{Action: "clear"}); err != nil {
		return fmt.Errorf("failed to send clear to source %s: %w", ws.label, err)
	}
	return nil
}

// Segments returns the stream of latest-segment updates.
func (ws *WSSource) Segments() <-chan transcript.Segment {
	return ws.segments
}
