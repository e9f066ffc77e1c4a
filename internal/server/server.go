package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/minutestream/engine/internal/generate"
	"github.com/minutestream/engine/internal/marker"
	"github.com/minutestream/engine/internal/minutes"
	"github.com/minutestream/engine/internal/publish"
	"github.com/minutestream/engine/internal/source"
	"github.com/minutestream/engine/internal/transcript"
)

type Config struct {
	Host string
	Port int

	MicSourceURL    string
	SystemSourceURL string

	GeneratorURL    string
	GeneratorAPIKey string

	RedisAddr          string
	RedisChannelPrefix string

	OutputDir       string
	SaveTranscripts bool
	SaveSessionLogs bool

	Minutes minutes.Config
}

// Server hosts one meeting-minutes engine session per WebSocket client.
type Server struct {
	config     Config
	httpServer *http.Server
	upgrader   websocket.Upgrader
	pub        publish.Publisher
	wg         sync.WaitGroup
}

// commandFrame is one inbound control message from the client.
type commandFrame struct {
	Action         string            `json:"action"`
	CadenceSeconds int               `json:"cadence_seconds,omitempty"`
	Armed          bool              `json:"armed,omitempty"`
	Speakers       map[string]string `json:"speakers,omitempty"`
}

// stateFrame is one outbound snapshot of the consumer-facing surface.
type stateFrame struct {
	Type       string                       `json:"type"`
	Lines      []string                     `json:"lines,omitempty"`
	HasContent bool                         `json:"has_content"`
	Recording  bool                         `json:"recording"`
	Fields     map[string]marker.FieldValue `json:"fields,omitempty"`
	Scheduler  minutes.State                `json:"scheduler"`
	Outcome    string                       `json:"last_outcome,omitempty"`
	Error      string                       `json:"last_error,omitempty"`
	Transcript string                       `json:"transcript,omitempty"`
}

func New(config Config) (*Server, error) {
	if (config.SaveTranscripts || config.SaveSessionLogs) && config.OutputDir != "" {
		if err := os.MkdirAll(config.OutputDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	var pub publish.Publisher = publish.NopPublisher{}
	if config.RedisAddr != "" {
		pub = publish.NewRedisPublisher(config.RedisAddr, config.RedisChannelPrefix)
	}

	return &Server{
		config: config,
		pub:    pub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}, nil
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	s.httpServer = &http.Server{Addr: addr, Handler: mux}

	log.Printf("Minutes engine listening on %s", addr)

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Stop() {
	if s.httpServer != nil {
		s.httpServer.Close()
	}
	s.wg.Wait()
	s.pub.Close()
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Upgrade failed: %v", err)
		return
	}

	s.wg.Add(1)
	go s.handleClient(conn)
}

func (s *Server) handleClient(conn *websocket.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	id := uuid.New()
	started := time.Now()
	log.Printf("Session %s started from %s", id, conn.RemoteAddr())

	mic := source.NewWSSource(s.config.MicSourceURL, transcript.SourceMic)
	system := source.NewWSSource(s.config.SystemSourceURL, transcript.SourceSystem)
	gen := generate.NewSSEGenerator(s.config.GeneratorURL, s.config.GeneratorAPIKey)

	session := minutes.NewSession(id.String(), s.config.Minutes, mic, system, gen)
	session.SetPublisher(s.pub)

	if s.config.SaveSessionLogs {
		logger, err := minutes.NewSessionLogger(s.config.OutputDir, id.String(), started)
		if err != nil {
			log.Printf("Session %s: failed to create session logger: %v", id, err)
		} else {
			session.SetSessionLogger(logger)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	session.Run(ctx)

	var writeMu sync.Mutex
	writeState := func(frame stateFrame) {
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := conn.WriteJSON(frame); err != nil {
			log.Printf("Session %s: write failed: %v", id, err)
		}
	}

	// Push a fresh snapshot whenever visible state changes
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-session.Updates():
				writeState(snapshot(session, "state"))
			}
		}
	}()
	writeState(snapshot(session, "state"))

	for {
		var cmd commandFrame
		if err := conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("Session %s: read failed: %v", id, err)
			}
			break
		}

		if err := dispatch(ctx, session, cmd, writeState); err != nil {
			log.Printf("Session %s: command %q failed: %v", id, cmd.Action, err)
		}
	}

	cancel()
	session.Close()
	s.finalize(session, id.String(), started)

	log.Printf("Session %s ended (Duration: %v)", id, time.Since(started))
}

func dispatch(ctx context.Context, session *minutes.Session, cmd commandFrame, writeState func(stateFrame)) error {
	switch cmd.Action {
	case "start":
		return session.StartRecording(ctx)
	case "stop":
		session.StopRecording()
	case "clear":
		session.ClearTranscript(ctx)
	case "generate":
		// Rejected while a generation is in flight; never queued
		session.GenerateNow(ctx)
	case "cancel":
		session.CancelGeneration()
	case "set_cadence":
		if cmd.CadenceSeconds <= 0 {
			return fmt.Errorf("cadence must be positive, got %d", cmd.CadenceSeconds)
		}
		session.SetCadence(cmd.CadenceSeconds)
	case "set_armed":
		session.SetArmed(cmd.Armed)
	case "set_speakers":
		session.SetSpeakerNames(cmd.Speakers)
	case "export":
		frame := snapshot(session, "export")
		frame.Transcript = session.Export()
		writeState(frame)
	default:
		return fmt.Errorf("unknown action: %s", cmd.Action)
	}
	return nil
}

func snapshot(session *minutes.Session, frameType string) stateFrame {
	outcome, lastErr := session.LastOutcome()
	frame := stateFrame{
		Type:       frameType,
		Lines:      session.Lines(),
		HasContent: session.HasContent(),
		Recording:  session.Recording(),
		Fields:     session.Fields(),
		Scheduler:  session.SchedulerState(),
		Outcome:    string(outcome),
	}
	if lastErr != nil {
		frame.Error = lastErr.Error()
	}
	return frame
}

// finalize saves the merged transcript on disconnect when configured.
func (s *Server) finalize(session *minutes.Session, id string, started time.Time) {
	if !s.config.SaveTranscripts || !session.HasContent() {
		return
	}

	filename := filepath.Join(
		s.config.OutputDir,
		fmt.Sprintf("%s_transcript_%s.txt", started.Format("20060102_150405"), id[:8]),
	)
	if err := os.WriteFile(filename, []byte(session.Export()), 0644); err != nil {
		log.Printf("Session %s: failed to save transcript: %v", id, err)
		return
	}
	log.Printf("Session %s: transcript saved to %s", id, filename)
}
