package sink

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/sebastianuxd/decky-stt-keyboard/internal/config"
	"github.com/sebastianuxd/decky-stt-keyboard/internal/protocol"
	"github.com/sebastianuxd/decky-stt-keyboard/internal/session"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakePublisher struct {
	mu        sync.Mutex
	healthy   bool
	published []string
}

func (p *fakePublisher) Publish(subject string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, string(data))
	return nil
}

func (p *fakePublisher) Healthy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.healthy
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published)
}

type fakeRecorder struct {
	mu    sync.Mutex
	texts []string
}

func (r *fakeRecorder) AppendUtterance(_ context.Context, _ string, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.texts = append(r.texts, text)
	return nil
}

func (r *fakeRecorder) recorded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.texts...)
}

func TestPollDrainsAndRecordsFinals(t *testing.T) {
	q := session.NewQueue(100)
	rec := &fakeRecorder{}
	s := New(context.Background(), config.EventsConfig{QueueCapacity: 100}, q, rec, nil, testLogger())
	t.Cleanup(s.Close)

	q.Push(protocol.Result{SessionID: "s1", Text: "par"})
	q.Push(protocol.Result{SessionID: "s1", Text: "hello", Final: true})

	batch := s.Poll(context.Background())
	if len(batch) != 2 {
		t.Fatalf("expected 2 results, got %d", len(batch))
	}
	if got := rec.recorded(); len(got) != 1 || got[0] != "hello" {
		t.Fatalf("expected only final recorded, got %v", got)
	}
	if again := s.Poll(context.Background()); len(again) != 0 {
		t.Fatalf("expected empty second poll, got %d", len(again))
	}
	if s.Delivered() != 2 {
		t.Fatalf("expected 2 delivered, got %d", s.Delivered())
	}
}

func TestPushPumpPublishesWhenHealthy(t *testing.T) {
	q := session.NewQueue(100)
	pub := &fakePublisher{healthy: true}
	notify := make(chan struct{}, 1)

	s := New(context.Background(), config.EventsConfig{PushEnabled: true, QueueCapacity: 100}, q, nil, pub, testLogger())
	s.Start(notify)
	t.Cleanup(s.Close)

	q.Push(protocol.Result{SessionID: "s1", Text: "hi", Final: true})
	notify <- struct{}{}

	deadline := time.After(2 * time.Second)
	for pub.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("expected result published")
		case <-time.After(10 * time.Millisecond):
		}
	}
	if q.Len() != 0 {
		t.Fatalf("expected queue drained, got %d", q.Len())
	}
}

func TestPushLeavesResultsQueuedWhenTransportDown(t *testing.T) {
	q := session.NewQueue(100)
	pub := &fakePublisher{healthy: false}
	notify := make(chan struct{}, 1)

	s := New(context.Background(), config.EventsConfig{PushEnabled: true, QueueCapacity: 100}, q, nil, pub, testLogger())
	s.Start(notify)
	t.Cleanup(s.Close)

	q.Push(protocol.Result{SessionID: "s1", Text: "kept", Final: true})
	notify <- struct{}{}

	time.Sleep(50 * time.Millisecond)
	if pub.count() != 0 {
		t.Fatal("expected nothing published while transport down")
	}

	// The poll fallback still collects everything.
	batch := s.Poll(context.Background())
	if len(batch) != 1 || batch[0].Text != "kept" {
		t.Fatalf("expected poll fallback to return result, got %v", batch)
	}
}
