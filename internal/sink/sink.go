// Package sink delivers queued transcription results to the frontend.
// Polling is the guaranteed path; pushing over the bus is attempted
// opportunistically when enabled.
package sink

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sebastianuxd/decky-stt-keyboard/internal/config"
	"github.com/sebastianuxd/decky-stt-keyboard/internal/protocol"
	"github.com/sebastianuxd/decky-stt-keyboard/internal/session"
)

// Publisher is the push transport. *bus.Client satisfies it.
type Publisher interface {
	Publish(subject string, data []byte) error
	Healthy() bool
}

// Recorder persists final results. *transcript.Store satisfies it.
type Recorder interface {
	AppendUtterance(ctx context.Context, sessionID, text string) error
}

// Sink owns the consumer side of the result queue.
type Sink struct {
	cfg   config.EventsConfig
	queue *session.Queue
	store Recorder
	pub   Publisher
	log   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	delivered atomic.Uint64
}

func New(parent context.Context, cfg config.EventsConfig, queue *session.Queue, store Recorder, pub Publisher, log *slog.Logger) *Sink {
	ctx, cancel := context.WithCancel(parent)
	return &Sink{
		cfg:    cfg,
		queue:  queue,
		store:  store,
		pub:    pub,
		log:    log.With(slog.String("component", "sink")),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start launches the push pump when push delivery is configured. Without a
// publisher the sink is poll-only.
func (s *Sink) Start(notify <-chan struct{}) {
	if !s.cfg.PushEnabled || s.pub == nil {
		return
	}
	s.wg.Add(1)
	go s.pump(notify)
}

func (s *Sink) Close() {
	s.cancel()
	s.wg.Wait()
}

// Poll drains the queue and returns the batch in insertion order. Finals
// are persisted on the way out. Safe to call concurrently with the push
// pump; each result is delivered exactly once.
func (s *Sink) Poll(ctx context.Context) []protocol.Result {
	batch := s.queue.DrainAll()
	s.record(ctx, batch)
	s.delivered.Add(uint64(len(batch)))
	return batch
}

func (s *Sink) pump(notify <-chan struct{}) {
	defer s.wg.Done()

	// The ticker catches results queued while the bus was unavailable.
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-notify:
		case <-ticker.C:
		}
		s.pushPending()
	}
}

// pushPending drains only while the transport is up; otherwise results
// stay queued so polling can still collect them.
func (s *Sink) pushPending() {
	if !s.pub.Healthy() {
		return
	}
	batch := s.queue.DrainAll()
	if len(batch) == 0 {
		return
	}
	s.record(s.ctx, batch)
	s.delivered.Add(uint64(len(batch)))

	for _, r := range batch {
		data, err := json.Marshal(r)
		if err != nil {
			s.log.Warn("failed to marshal result", slog.String("error", err.Error()))
			continue
		}
		if err := s.pub.Publish(protocol.SubjectResult, data); err != nil {
			s.log.Warn("failed to publish result", slog.String("error", err.Error()))
		}
	}
}

func (s *Sink) record(ctx context.Context, batch []protocol.Result) {
	if s.store == nil {
		return
	}
	for _, r := range batch {
		if !r.Final {
			continue
		}
		if err := s.store.AppendUtterance(ctx, r.SessionID, r.Text); err != nil {
			s.log.Warn("failed to persist utterance",
				slog.String("session_id", r.SessionID),
				slog.String("error", err.Error()))
		}
	}
}

// Delivered reports how many results have been handed to a consumer.
func (s *Sink) Delivered() uint64 {
	return s.delivered.Load()
}
