package stt

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/sebastianuxd/decky-stt-keyboard/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestFactoryMockBackend(t *testing.T) {
	f := NewFactory(config.STTConfig{Backend: "mock"}, 16000, testLogger())
	t.Cleanup(f.Close)

	if err := f.EnsureModel(); err != nil {
		t.Fatalf("ensure model: %v", err)
	}
	rec, err := f.NewRecognizer()
	if err != nil {
		t.Fatalf("new recognizer: %v", err)
	}
	t.Cleanup(func() { _ = rec.Close() })

	evt, err := rec.Feed(make([]int16, 100))
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	if evt == nil || evt.Final {
		t.Fatalf("expected partial event, got %+v", evt)
	}

	final, err := rec.Finalize()
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if final == nil || !final.Final {
		t.Fatalf("expected final event, got %+v", final)
	}
	if !strings.Contains(final.Text, "100") {
		t.Fatalf("expected sample count in text, got %q", final.Text)
	}
}

func TestFactoryMissingVoskModel(t *testing.T) {
	f := NewFactory(config.STTConfig{Backend: "vosk", ModelPath: "/nonexistent/model"}, 16000, testLogger())
	t.Cleanup(f.Close)

	err := f.EnsureModel()
	if !errors.Is(err, ErrModelNotLoaded) {
		t.Fatalf("expected ErrModelNotLoaded, got %v", err)
	}
}

func TestFactoryMissingWhisperModel(t *testing.T) {
	f := NewFactory(config.STTConfig{Backend: "whisper", ModelPath: "/nonexistent/ggml.bin"}, 16000, testLogger())
	t.Cleanup(f.Close)

	err := f.EnsureModel()
	if !errors.Is(err, ErrModelNotLoaded) {
		t.Fatalf("expected ErrModelNotLoaded, got %v", err)
	}
}

func TestFactoryExecRequiresCommand(t *testing.T) {
	f := NewFactory(config.STTConfig{Backend: "exec", Command: ""}, 16000, testLogger())
	t.Cleanup(f.Close)

	if _, err := f.NewRecognizer(); err == nil {
		t.Fatal("expected error for empty exec command")
	}
}

func TestFactoryUnknownBackend(t *testing.T) {
	f := NewFactory(config.STTConfig{Backend: "webspeech"}, 16000, testLogger())
	t.Cleanup(f.Close)

	if err := f.EnsureModel(); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}
