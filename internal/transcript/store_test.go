package transcript

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/sebastianuxd/decky-stt-keyboard/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestOpenEphemeral(t *testing.T) {
	cfg := config.TranscriptConfig{RetentionMode: "ephemeral"}
	s, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	if err := s.AppendUtterance(context.Background(), "sess", "hello"); err != nil {
		t.Fatalf("append on ephemeral store: %v", err)
	}
	utterances, err := s.ListSessionUtterances(context.Background(), "sess", 10)
	if err != nil {
		t.Fatalf("list on ephemeral store: %v", err)
	}
	if len(utterances) != 0 {
		t.Fatalf("expected nothing persisted, got %d", len(utterances))
	}
}

func TestAppendAndQuery(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.TranscriptConfig{Path: filepath.Join(tmp, "transcripts.db"), RetentionMode: "session"}
	s, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	sessionID := "session-123"
	if err := s.AppendUtterance(context.Background(), sessionID, "hello world"); err != nil {
		t.Fatalf("append utterance: %v", err)
	}
	if err := s.AppendUtterance(context.Background(), sessionID, "second line"); err != nil {
		t.Fatalf("append utterance: %v", err)
	}

	utterances, err := s.ListSessionUtterances(context.Background(), sessionID, 10)
	if err != nil {
		t.Fatalf("list utterances: %v", err)
	}
	if len(utterances) != 2 {
		t.Fatalf("expected 2 utterances, got %d", len(utterances))
	}
	if utterances[0].Text != "hello world" {
		t.Fatalf("unexpected first utterance: %s", utterances[0].Text)
	}
}

func TestPruneByDaysAndSessions(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.TranscriptConfig{Path: filepath.Join(tmp, "transcripts.db"), RetentionMode: "persistent", RetentionDays: 1, MaxSessions: 1}
	s, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	s.clock = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	if err := s.AppendUtterance(context.Background(), "old-session", "stale"); err != nil {
		t.Fatalf("append utterance: %v", err)
	}

	s.clock = func() time.Time { return time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC) }
	if err := s.AppendUtterance(context.Background(), "new-session", "fresh"); err != nil {
		t.Fatalf("append utterance: %v", err)
	}
	if err := s.Prune(context.Background()); err != nil {
		t.Fatalf("prune: %v", err)
	}

	old, err := s.ListSessionUtterances(context.Background(), "old-session", 10)
	if err != nil {
		t.Fatalf("list utterances: %v", err)
	}
	if len(old) != 0 {
		t.Fatal("expected old session pruned")
	}
	fresh, err := s.ListSessionUtterances(context.Background(), "new-session", 10)
	if err != nil {
		t.Fatalf("list utterances: %v", err)
	}
	if len(fresh) != 1 {
		t.Fatalf("expected fresh utterance kept, got %d", len(fresh))
	}
}
