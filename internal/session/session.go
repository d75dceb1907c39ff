// Package session coordinates the capture-to-transcription pipeline: it
// owns the audio source and recognizer for the duration of a recording and
// funnels results into the bounded queue.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/sebastianuxd/decky-stt-keyboard/internal/audio"
	"github.com/sebastianuxd/decky-stt-keyboard/internal/protocol"
	"github.com/sebastianuxd/decky-stt-keyboard/internal/stt"
)

var (
	// ErrAlreadyRecording is returned by Start while a recording is active.
	ErrAlreadyRecording = errors.New("already recording")
	// ErrAudioDevice wraps capture-device open failures. The session stays
	// idle; the caller decides whether to retry.
	ErrAudioDevice = errors.New("audio device unavailable")
)

// State of the recording session. Stop is synchronous, so no intermediate
// stopping state is observable.
type State string

const (
	StateIdle      State = "idle"
	StateRecording State = "recording"
)

// SourceFactory opens a fresh audio source for one recording run.
type SourceFactory func() (audio.Source, error)

// RecognizerProvider creates per-session recognizers. *stt.Factory
// implements it; tests substitute fakes.
type RecognizerProvider interface {
	EnsureModel() error
	NewRecognizer() (stt.Recognizer, error)
}

// Config carries the pipeline knobs the session needs.
type Config struct {
	TargetSampleRate int
	Conditioner      audio.ConditionerParams
}

// Session is the process-wide recording state machine. Exactly one
// instance exists; Start and Stop serialize on its mutex. While recording
// it exclusively owns one audio source and one recognizer, both released
// on Stop.
type Session struct {
	cfg         Config
	sources     SourceFactory
	recognizers RecognizerProvider
	queue       *Queue
	log         *slog.Logger
	notify      chan struct{}

	mu     sync.Mutex
	state  State
	source audio.Source
	run    *run

	blocks   atomic.Uint64
	pipeErrs atomic.Uint64
}

// run holds the state shared with callbacks of a single recording, so a
// late callback from a previous run can never touch the current one.
type run struct {
	id     string
	closed atomic.Bool
	rec    stt.Recognizer
	cond   *audio.Conditioner
}

func New(cfg Config, sources SourceFactory, recognizers RecognizerProvider, queue *Queue, log *slog.Logger) *Session {
	return &Session{
		cfg:         cfg,
		sources:     sources,
		recognizers: recognizers,
		queue:       queue,
		log:         log.With(slog.String("component", "session")),
		notify:      make(chan struct{}, 1),
		state:       StateIdle,
	}
}

// Start transitions Idle -> Recording. It fails with ErrAlreadyRecording
// when already recording and with stt.ErrModelNotLoaded when the
// recognizer's model is missing; neither failure changes state.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateRecording {
		return ErrAlreadyRecording
	}

	if err := s.recognizers.EnsureModel(); err != nil {
		return err
	}

	rec, err := s.recognizers.NewRecognizer()
	if err != nil {
		return fmt.Errorf("create recognizer: %w", err)
	}

	r := &run{
		id:   uuid.NewString(),
		rec:  rec,
		cond: audio.NewConditioner(s.cfg.Conditioner),
	}
	r.cond.Reset()

	source, err := s.sources()
	if err != nil {
		_ = rec.Close()
		return fmt.Errorf("%w: %v", ErrAudioDevice, err)
	}
	if err := source.Open(func(block audio.Block) { s.handleBlock(r, block) }); err != nil {
		_ = source.Close()
		_ = rec.Close()
		return fmt.Errorf("%w: %v", ErrAudioDevice, err)
	}

	s.source = source
	s.run = r
	s.state = StateRecording
	s.log.Info("recording started",
		slog.String("session_id", r.id),
		slog.Int("device_rate", source.SampleRate()),
		slog.Int("target_rate", s.cfg.TargetSampleRate))
	return nil
}

// Stop transitions Recording -> Idle. It is a no-op success when idle.
// The audio source is closed before the recognizer is finalized, so no
// queue write happens after Stop returns.
func (s *Session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateRecording {
		return nil
	}

	r := s.run
	r.closed.Store(true)

	// Close is synchronous: once it returns, no callback is in flight.
	if err := s.source.Close(); err != nil {
		s.log.Warn("audio source close failed", slog.String("error", err.Error()))
	}
	s.source = nil

	if evt, err := r.rec.Finalize(); err != nil {
		s.log.Warn("recognizer finalize failed",
			slog.String("session_id", r.id),
			slog.String("error", err.Error()))
	} else if evt != nil {
		s.push(r.id, *evt)
	}

	if err := r.rec.Close(); err != nil {
		s.log.Warn("recognizer close failed", slog.String("error", err.Error()))
	}

	s.run = nil
	s.state = StateIdle
	s.log.Info("recording stopped", slog.String("session_id", r.id))
	return nil
}

// handleBlock runs on the audio thread. Errors are logged and counted but
// never escape: a panic or propagated error here would kill all future
// capture callbacks.
func (s *Session) handleBlock(r *run, block audio.Block) {
	if r.closed.Load() {
		return
	}

	block.Samples = audio.Resample(block.Samples, block.SampleRate, s.cfg.TargetSampleRate)
	block.SampleRate = s.cfg.TargetSampleRate
	block = r.cond.Process(block)

	evt, err := r.rec.Feed(block.Samples)
	if err != nil {
		s.pipeErrs.Add(1)
		s.log.Warn("transcription failed",
			slog.String("session_id", r.id),
			slog.String("error", err.Error()))
		return
	}
	s.blocks.Add(1)

	if evt != nil && !r.closed.Load() {
		s.push(r.id, *evt)
	}
}

func (s *Session) push(sessionID string, evt stt.Event) {
	s.queue.Push(protocol.Result{
		SessionID: sessionID,
		Text:      evt.Text,
		Final:     evt.Final,
		Timestamp: time.Now().UTC(),
	})
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Notify signals that new results were queued. The channel is buffered and
// never blocks the audio thread.
func (s *Session) Notify() <-chan struct{} {
	return s.notify
}

// State reports the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SessionID returns the active recording's id, empty when idle.
func (s *Session) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run == nil {
		return ""
	}
	return s.run.id
}

// Stats reports pipeline counters for telemetry.
func (s *Session) Stats() (blocks, pipelineErrors uint64) {
	return s.blocks.Load(), s.pipeErrs.Load()
}
