package stt

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	vosk "github.com/alphacep/vosk-api/go"
	whisper "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/sebastianuxd/decky-stt-keyboard/internal/config"
)

// ErrModelNotLoaded indicates the configured model is missing on disk.
// Downloading models is a frontend concern; the daemon only checks.
var ErrModelNotLoaded = errors.New("stt model not loaded")

// Factory loads the configured backend's model once and creates a fresh
// Recognizer per recording session.
type Factory struct {
	cfg        config.STTConfig
	targetRate int
	log        *slog.Logger

	mu           sync.Mutex
	voskModel    *vosk.VoskModel
	whisperModel whisper.Model
}

func NewFactory(cfg config.STTConfig, targetRate int, log *slog.Logger) *Factory {
	return &Factory{
		cfg:        cfg,
		targetRate: targetRate,
		log:        log.With(slog.String("component", "stt-factory")),
	}
}

// EnsureModel verifies the backend's model is present and loads it if it
// is not resident yet. Returns ErrModelNotLoaded when the model files are
// missing.
func (f *Factory) EnsureModel() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch f.cfg.Backend {
	case "mock":
		return nil
	case "exec":
		// The external command owns its model; nothing to load here.
		if f.cfg.ModelPath != "" {
			if _, err := os.Stat(f.cfg.ModelPath); err != nil {
				return fmt.Errorf("%w: %s", ErrModelNotLoaded, f.cfg.ModelPath)
			}
		}
		return nil
	case "vosk":
		if f.voskModel != nil {
			return nil
		}
		if _, err := os.Stat(f.cfg.ModelPath); err != nil {
			return fmt.Errorf("%w: %s", ErrModelNotLoaded, f.cfg.ModelPath)
		}
		vosk.SetLogLevel(-1)
		model, err := vosk.NewModel(f.cfg.ModelPath)
		if err != nil {
			return fmt.Errorf("load vosk model: %w", err)
		}
		f.voskModel = model
		f.log.Info("vosk model loaded", slog.String("path", f.cfg.ModelPath))
		return nil
	case "whisper":
		if f.whisperModel != nil {
			return nil
		}
		if _, err := os.Stat(f.cfg.ModelPath); err != nil {
			return fmt.Errorf("%w: %s", ErrModelNotLoaded, f.cfg.ModelPath)
		}
		model, err := whisper.New(f.cfg.ModelPath)
		if err != nil {
			return fmt.Errorf("load whisper model: %w", err)
		}
		f.whisperModel = model
		f.log.Info("whisper model loaded", slog.String("path", f.cfg.ModelPath))
		return nil
	default:
		return fmt.Errorf("unknown stt backend: %s", f.cfg.Backend)
	}
}

// NewRecognizer creates a recognizer bound to the pipeline's target sample
// rate. EnsureModel must have succeeded first for model-backed backends.
func (f *Factory) NewRecognizer() (Recognizer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch f.cfg.Backend {
	case "mock":
		return NewMockRecognizer(), nil
	case "exec":
		return newExecRecognizer(f.cfg.Command, f.cfg.ModelPath, f.cfg.Language, f.targetRate)
	case "vosk":
		if f.voskModel == nil {
			return nil, ErrModelNotLoaded
		}
		return newVoskRecognizer(f.voskModel, f.targetRate)
	case "whisper":
		if f.whisperModel == nil {
			return nil, ErrModelNotLoaded
		}
		interval := time.Duration(f.cfg.PartialEveryMS) * time.Millisecond
		return newWhisperRecognizer(f.whisperModel, f.cfg.Language, interval), nil
	default:
		return nil, fmt.Errorf("unknown stt backend: %s", f.cfg.Backend)
	}
}

// Close releases loaded models.
func (f *Factory) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.voskModel != nil {
		f.voskModel.Free()
		f.voskModel = nil
	}
	if f.whisperModel != nil {
		if err := f.whisperModel.Close(); err != nil {
			f.log.Warn("failed to close whisper model", slog.String("error", err.Error()))
		}
		f.whisperModel = nil
	}
}
