package minutes

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/minutestream/engine/internal/generate"
	"github.com/minutestream/engine/internal/marker"
	"github.com/minutestream/engine/internal/metrics"
	"github.com/minutestream/engine/internal/publish"
	"github.com/minutestream/engine/internal/source"
	"github.com/minutestream/engine/internal/stream"
	"github.com/minutestream/engine/internal/transcript"
)

// Outcome is the terminal result of one generation call. Cancellation is a
// distinct state, not a failure.
type Outcome string

const (
	OutcomeNone      Outcome = ""
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
)

// Config carries the per-session engine settings. There is no process-wide
// default; everything is passed in at construction.
type Config struct {
	Fields              []marker.FieldSpec
	CadenceSeconds      int
	LanguageHint        string
	EnableSpeakerLabels bool
	SpeakerNames        map[string]string

	// PromptHeader is the instruction text placed before the transcript in
	// each generation request. It asks the model to delimit fields with the
	// configured sentinel tags.
	PromptHeader string
}

// Session owns all live state for one meeting-minutes session: the merged
// transcript from two capture sources, the marker fields of the current
// generation, and the regeneration scheduler.
type Session struct {
	id  string
	cfg Config

	micSource    source.Source
	systemSource source.Source
	sched        *Scheduler
	gen          generate.Generator
	rec          *transcript.Reconciler

	pub     publish.Publisher
	logger  *SessionLogger
	metrics *metrics.SessionMetrics

	mu           sync.Mutex
	speakerNames map[string]string
	fields       map[string]marker.FieldValue
	lastOutcome  Outcome
	lastErr      error
	cancelGen    context.CancelFunc
	genSeq       uint64
	recording    bool

	updates chan struct{}
}

// NewSession wires a session from its collaborators. Sources must be
// distinct; the generator may be shared.
func NewSession(id string, cfg Config, mic, system source.Source, gen generate.Generator) *Session {
	names := make(map[string]string, len(cfg.SpeakerNames))
	for tag, name := range cfg.SpeakerNames {
		names[tag] = name
	}

	return &Session{
		id:           id,
		cfg:          cfg,
		micSource:    mic,
		systemSource: system,
		sched:        NewScheduler(cfg.CadenceSeconds),
		gen:          gen,
		rec:          transcript.NewReconciler(),
		pub:          publish.NopPublisher{},
		metrics:      metrics.NewSessionMetrics(id),
		speakerNames: names,
		fields:       make(map[string]marker.FieldValue),
		updates:      make(chan struct{}, 1),
	}
}

// SetPublisher attaches an event publisher. The session does not close it.
func (s *Session) SetPublisher(pub publish.Publisher) {
	if pub != nil {
		s.pub = pub
	}
}

// SetSessionLogger attaches a structured JSONL logger for engine events.
func (s *Session) SetSessionLogger(logger *SessionLogger) {
	s.logger = logger
}

// Metrics returns the per-session counters.
func (s *Session) Metrics() *metrics.SessionMetrics {
	return s.metrics
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Run starts the scheduler countdown and the merge loop. Both stop when the
// context ends.
func (s *Session) Run(ctx context.Context) {
	go s.sched.Run(ctx)
	go s.runLoop(ctx)
}

func (s *Session) runLoop(ctx context.Context) {
	mic := s.micSource.Segments()
	system := s.systemSource.Segments()

	for {
		select {
		case <-ctx.Done():
			return

		case seg, ok := <-mic:
			if !ok {
				mic = nil
				continue
			}
			s.merge(ctx, seg)

		case seg, ok := <-system:
			if !ok {
				system = nil
				continue
			}
			s.merge(ctx, seg)

		case <-s.sched.Fires():
			// Pending is already set; the call runs off-loop so merging
			// continues
			s.beginGeneration(ctx, "scheduled")
		}
	}
}

func (s *Session) merge(ctx context.Context, seg transcript.Segment) {
	s.rec.Upsert(seg)
	s.metrics.AddSegment(seg.IsPartial)

	if err := s.pub.Publish(ctx, publish.Event{
		SessionID: s.id,
		Type:      publish.EventTranscriptUpdated,
	}); err != nil {
		log.Printf("Session %s: publish failed: %v", s.id, err)
	}
	s.notify()
}

// StartRecording bumps the recording-session counter, clears the upstream
// recognition buffers, then starts acquisition on both sources. Residual
// segments already merged keep their prior session id.
func (s *Session) StartRecording(ctx context.Context) error {
	s.mu.Lock()
	if s.recording {
		s.mu.Unlock()
		return fmt.Errorf("recording already active")
	}
	s.recording = true
	s.mu.Unlock()

	recordingSession := s.rec.StartSession()

	if err := s.micSource.ClearBuffer(); err != nil {
		log.Printf("Session %s: mic clear failed: %v", s.id, err)
	}
	if err := s.systemSource.ClearBuffer(); err != nil {
		log.Printf("Session %s: system clear failed: %v", s.id, err)
	}

	opts := source.StartOptions{
		LanguageHint:        s.cfg.LanguageHint,
		EnableSpeakerLabels: s.cfg.EnableSpeakerLabels,
	}
	if err := s.micSource.Start(ctx, opts); err != nil {
		s.setRecording(false)
		return fmt.Errorf("failed to start mic source: %w", err)
	}
	if err := s.systemSource.Start(ctx, opts); err != nil {
		s.micSource.Stop()
		s.setRecording(false)
		return fmt.Errorf("failed to start system source: %w", err)
	}

	log.Printf("Session %s: recording started (session %d)", s.id, recordingSession)
	if s.logger != nil {
		s.logger.LogRecordingStart(s.id, recordingSession)
	}
	s.notify()
	return nil
}

// StopRecording halts acquisition on both sources. The merged transcript
// stays intact for display and export.
func (s *Session) StopRecording() {
	if err := s.micSource.Stop(); err != nil {
		log.Printf("Session %s: mic stop failed: %v", s.id, err)
	}
	if err := s.systemSource.Stop(); err != nil {
		log.Printf("Session %s: system stop failed: %v", s.id, err)
	}
	s.setRecording(false)

	log.Printf("Session %s: recording stopped", s.id)
	if s.logger != nil {
		s.logger.LogRecordingStop(s.id)
	}
	s.notify()
}

// ClearTranscript empties the merged collection and resets the recording
// session counter to zero.
func (s *Session) ClearTranscript(ctx context.Context) {
	s.rec.Clear()

	if s.logger != nil {
		s.logger.LogClear(s.id)
	}
	if err := s.pub.Publish(ctx, publish.Event{
		SessionID: s.id,
		Type:      publish.EventTranscriptCleared,
	}); err != nil {
		log.Printf("Session %s: publish failed: %v", s.id, err)
	}
	s.notify()
}

// GenerateNow requests a manual generation. It is rejected (not queued)
// while another generation is in flight, scheduled or manual.
func (s *Session) GenerateNow(ctx context.Context) bool {
	if !s.sched.TryAcquire() {
		log.Printf("Session %s: manual generation ignored, one already in flight", s.id)
		return false
	}
	s.beginGeneration(ctx, "manual")
	return true
}

// CancelGeneration aborts the in-flight generation, if any, and clears
// pending so a later fire can proceed. Calling it with nothing in flight is
// a no-op.
func (s *Session) CancelGeneration() {
	s.mu.Lock()
	cancel := s.cancelGen
	s.cancelGen = nil
	s.mu.Unlock()

	if cancel == nil {
		// Nothing registered. Pending, if set, belongs to a fire whose
		// generation has not been built yet; that fire stays honored.
		return
	}
	cancel()
	if s.sched.Cancel() {
		log.Printf("Session %s: generation cancelled", s.id)
	}
}

// SetCadence changes the regeneration cadence, resetting the countdown.
func (s *Session) SetCadence(seconds int) {
	s.sched.SetCadence(seconds)
	if s.logger != nil {
		s.logger.LogCadenceChange(s.id, seconds)
	}
	s.notify()
}

// SetArmed enables or disables periodic regeneration.
func (s *Session) SetArmed(armed bool) {
	s.sched.SetArmed(armed)
	s.notify()
}

// SetSpeakerNames replaces the speakerTag to display-name mapping.
func (s *Session) SetSpeakerNames(names map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.speakerNames = make(map[string]string, len(names))
	for tag, name := range names {
		s.speakerNames[tag] = name
	}
}

// beginGeneration builds the cancellable context for a generation that
// already holds the pending slot. The cancel handle is registered before the
// goroutine starts, so a concurrent cancel always reaches the transport
// call. The token marks which generation currently owns pending; a
// superseded one must not resolve the scheduler on the successor's behalf.
func (s *Session) beginGeneration(parent context.Context, origin string) {
	ctx, cancel := context.WithCancel(parent)

	s.mu.Lock()
	s.genSeq++
	token := s.genSeq
	s.cancelGen = cancel
	s.mu.Unlock()

	go s.runGeneration(ctx, cancel, token, origin)
}

func (s *Session) runGeneration(ctx context.Context, cancel context.CancelFunc, token uint64, origin string) {
	defer cancel()

	log.Printf("Session %s: generation started (%s)", s.id, origin)
	if s.logger != nil {
		s.logger.LogGenerationStart(s.id, origin)
	}

	extractor := marker.NewExtractor(s.cfg.Fields)
	var buf strings.Builder
	chunks, errs := s.gen.Stream(ctx, s.buildPrompt())

	outcome := OutcomeSucceeded
	var genErr error

consume:
	for {
		select {
		case <-ctx.Done():
			outcome = OutcomeCancelled
			break consume

		case chunk, ok := <-chunks:
			if !ok {
				break consume
			}
			// A chunk may have raced a cancellation; once cancelled
			// no derived state may change.
			if ctx.Err() != nil {
				outcome = OutcomeCancelled
				break consume
			}
			events := stream.Decode(chunk)
			s.metrics.AddChunks(len(events))
			buf.WriteString(stream.ExtractText(events))
			s.setFields(extractor.Extract(buf.String()))

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err != nil {
				outcome = OutcomeFailed
				genErr = err
				break consume
			}
		}
	}

	// A terminal error may be buffered behind the chunk close
	if outcome == OutcomeSucceeded && errs != nil {
		select {
		case err := <-errs:
			if err != nil {
				outcome = OutcomeFailed
				genErr = err
			}
		default:
		}
	}

	s.mu.Lock()
	owner := token == s.genSeq
	if owner {
		s.cancelGen = nil
		s.lastOutcome = outcome
		s.lastErr = genErr
	}
	s.mu.Unlock()

	// A cancelled generation may still be winding down when its successor
	// acquires pending; only the current owner resolves the scheduler.
	if owner {
		if outcome == OutcomeCancelled {
			// Usually already cleared by CancelGeneration; clearing twice
			// is a no-op. This path also covers parent shutdown.
			s.sched.Cancel()
		} else {
			s.sched.Complete()
		}
	}

	s.metrics.AddGeneration(string(outcome))
	s.metrics.SetFiresCoalesced(s.sched.CoalescedFires())

	log.Printf("Session %s: generation %s", s.id, outcome)
	if s.logger != nil {
		s.logger.LogGenerationEnd(s.id, outcome)
	}
	// The generation context may already be cancelled; the done event
	// still goes out.
	if err := s.pub.Publish(context.Background(), publish.Event{
		SessionID: s.id,
		Type:      publish.EventGenerationDone,
		Detail:    string(outcome),
	}); err != nil {
		log.Printf("Session %s: publish failed: %v", s.id, err)
	}
	s.notify()
}

func (s *Session) setFields(values map[string]marker.FieldValue) {
	s.mu.Lock()
	s.fields = values
	s.mu.Unlock()
	s.notify()
}

func (s *Session) setRecording(recording bool) {
	s.mu.Lock()
	s.recording = recording
	s.mu.Unlock()
}

func (s *Session) buildPrompt() string {
	s.mu.Lock()
	names := s.speakerNames
	s.mu.Unlock()

	lines := s.rec.Lines(names)
	return s.cfg.PromptHeader + "\n\n" + strings.Join(lines, "\n")
}

// notify coalesces update signals: at most one is queued at a time.
func (s *Session) notify() {
	select {
	case s.updates <- struct{}{}:
	default:
	}
}

// Updates signals that some visible state changed. Consumers re-read the
// snapshots; signals are coalesced, not one-per-change.
func (s *Session) Updates() <-chan struct{} {
	return s.updates
}

// Lines returns the render-ready merged transcript.
func (s *Session) Lines() []string {
	s.mu.Lock()
	names := s.speakerNames
	s.mu.Unlock()
	return s.rec.Lines(names)
}

// HasContent reports whether any transcript segment has been merged.
func (s *Session) HasContent() bool {
	return s.rec.HasContent()
}

// Fields returns the marker field values of the current or most recent
// generation.
func (s *Session) Fields() map[string]marker.FieldValue {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]marker.FieldValue, len(s.fields))
	for name, v := range s.fields {
		out[name] = v
	}
	return out
}

// SchedulerState returns a display snapshot of the regeneration scheduler.
func (s *Session) SchedulerState() State {
	return s.sched.Snapshot()
}

// LastOutcome returns the result of the most recent generation call and its
// error, if it failed.
func (s *Session) LastOutcome() (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastOutcome, s.lastErr
}

// Recording reports whether acquisition is running.
func (s *Session) Recording() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recording
}

// Export dumps the merged transcript with a metadata header.
func (s *Session) Export() string {
	s.mu.Lock()
	names := s.speakerNames
	s.mu.Unlock()
	return s.rec.Export(s.id, s.metrics.StartTime, names)
}

// Close stops acquisition and finalizes bookkeeping. The merge loop itself
// stops with the Run context.
func (s *Session) Close() {
	s.StopRecording()
	s.metrics.Finalize()
	log.Printf("Session %s metrics:\n%s", s.id, s.metrics.Summary())
	if s.logger != nil {
		s.logger.Close()
	}
}
