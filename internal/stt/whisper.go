package stt

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	whisper "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

// whisperRecognizer buffers the whole utterance and re-decodes it
// periodically for partial results. Whisper has no streaming mode, so the
// decode runs in a background goroutine; Feed only appends samples and
// picks up whatever the last decode produced. Finalize waits for any
// in-flight decode and runs one last full pass.
type whisperRecognizer struct {
	model    whisper.Model
	language string
	interval time.Duration

	mu         sync.Mutex
	buf        []float32
	pending    *Event
	lastText   string
	lastDecode time.Time
	inflight   bool
	closed     bool
	wg         sync.WaitGroup
}

// Whisper needs a minimum of ~1s of audio before a decode is worthwhile.
const whisperMinSamples = 16000

func newWhisperRecognizer(model whisper.Model, language string, partialInterval time.Duration) *whisperRecognizer {
	return &whisperRecognizer{
		model:    model,
		language: language,
		interval: partialInterval,
	}
}

func (w *whisperRecognizer) Feed(samples []int16) (*Event, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil, fmt.Errorf("recognizer closed")
	}

	for _, s := range samples {
		w.buf = append(w.buf, float32(s)/32768.0)
	}

	if evt := w.pending; evt != nil {
		w.pending = nil
		return evt, nil
	}

	if w.interval <= 0 || w.inflight || len(w.buf) < whisperMinSamples {
		return nil, nil
	}
	if !w.lastDecode.IsZero() && time.Since(w.lastDecode) < w.interval {
		return nil, nil
	}

	snapshot := append([]float32(nil), w.buf...)
	w.inflight = true
	w.lastDecode = time.Now()
	w.wg.Add(1)
	go w.decodePartial(snapshot)

	return nil, nil
}

func (w *whisperRecognizer) decodePartial(samples []float32) {
	defer w.wg.Done()
	text, err := w.decode(samples)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.inflight = false
	if err != nil || w.closed {
		return
	}
	if text == "" || text == w.lastText {
		return
	}
	w.lastText = text
	w.pending = &Event{Text: text}
}

func (w *whisperRecognizer) Finalize() (*Event, error) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil, fmt.Errorf("recognizer closed")
	}
	w.mu.Unlock()

	w.wg.Wait()

	w.mu.Lock()
	samples := append([]float32(nil), w.buf...)
	w.buf = nil
	w.pending = nil
	w.mu.Unlock()

	if len(samples) == 0 {
		return nil, nil
	}
	// Whisper rejects very short inputs; pad with silence.
	if len(samples) < whisperMinSamples {
		samples = append(samples, make([]float32, whisperMinSamples-len(samples))...)
	}

	text, err := w.decode(samples)
	if err != nil {
		return nil, err
	}
	if text == "" {
		return nil, nil
	}
	return &Event{Text: text, Final: true}, nil
}

func (w *whisperRecognizer) decode(samples []float32) (string, error) {
	ctx, err := w.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("create whisper context: %w", err)
	}
	ctx.SetTranslate(false)
	if w.language != "" {
		if err := ctx.SetLanguage(w.language); err != nil {
			return "", fmt.Errorf("set whisper language: %w", err)
		}
	}

	if err := ctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper process: %w", err)
	}

	var parts []string
	for {
		segment, err := ctx.NextSegment()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper segment: %w", err)
		}
		parts = append(parts, segment.Text)
	}
	return strings.TrimSpace(strings.Join(parts, " ")), nil
}

func (w *whisperRecognizer) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	w.wg.Wait()
	// The model is shared across sessions and owned by the factory.
	return nil
}
