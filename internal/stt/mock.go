package stt

import (
	"fmt"
	"sync"
)

// mockRecognizer reports deterministic placeholder text, for tests and for
// running the daemon without a model present.
type mockRecognizer struct {
	mu      sync.Mutex
	samples int
	emitted int
}

// NewMockRecognizer is exported for tests in other packages.
func NewMockRecognizer() Recognizer {
	return &mockRecognizer{}
}

func (m *mockRecognizer) Feed(samples []int16) (*Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples += len(samples)
	m.emitted++
	return &Event{Text: fmt.Sprintf("[partial samples=%d]", m.samples)}, nil
}

func (m *mockRecognizer) Finalize() (*Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.samples == 0 {
		return nil, nil
	}
	return &Event{Text: fmt.Sprintf("[final samples=%d]", m.samples), Final: true}, nil
}

func (m *mockRecognizer) Close() error {
	return nil
}
