package source

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/minutestream/engine/internal/transcript"
)

// floodServer pushes result frames as fast as the connection accepts them
// and signals once a write fails, i.e. once the client hung up.
func floodServer(t *testing.T) (*httptest.Server, chan struct{}) {
	t.Helper()
	hungUp := make(chan struct{})
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for i := 0; ; i++ {
			frame := resultFrame{
				ResultID:  fmt.Sprintf("r%d", i),
				StartTime: float64(i),
			}
			if err := conn.WriteJSON(frame); err != nil {
				close(hungUp)
				return
			}
		}
	}))
	return srv, hungUp
}

func TestReadLoopExitsWhenConsumerGone(t *testing.T) {
	srv, hungUp := floodServer(t)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ws := NewWSSource("ws"+strings.TrimPrefix(srv.URL, "http"), transcript.SourceMic)
	if err := ws.Start(ctx, StartOptions{}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Nobody drains the segments channel. Once its buffer fills, the
	// reader blocks on the send; cancellation must still release it and
	// the connection.
	cancel()

	select {
	case <-hungUp:
	case <-time.After(3 * time.Second):
		t.Fatal("Reader did not release the connection after cancellation")
	}

	ws.Stop()
}
