package stt

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	vosk "github.com/alphacep/vosk-api/go"
)

// voskRecognizer streams audio into a Vosk model. Vosk segments utterances
// itself: AcceptWaveform reports when a segment completed, PartialResult
// carries the in-progress guess.
type voskRecognizer struct {
	mu          sync.Mutex
	rec         *vosk.VoskRecognizer
	lastPartial string
	closed      bool
}

func newVoskRecognizer(model *vosk.VoskModel, sampleRate int) (*voskRecognizer, error) {
	rec, err := vosk.NewRecognizer(model, float64(sampleRate))
	if err != nil {
		return nil, fmt.Errorf("create vosk recognizer: %w", err)
	}
	return &voskRecognizer{rec: rec}, nil
}

func (v *voskRecognizer) Feed(samples []int16) (*Event, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return nil, fmt.Errorf("recognizer closed")
	}

	if v.rec.AcceptWaveform(int16ToPCM(samples)) != 0 {
		text, err := parseVoskText(v.rec.Result())
		if err != nil {
			return nil, err
		}
		v.lastPartial = ""
		if text == "" {
			return nil, nil
		}
		return &Event{Text: text, Final: true}, nil
	}

	text, err := parseVoskPartial(v.rec.PartialResult())
	if err != nil {
		return nil, err
	}
	if text == "" || text == v.lastPartial {
		return nil, nil
	}
	v.lastPartial = text
	return &Event{Text: text}, nil
}

func (v *voskRecognizer) Finalize() (*Event, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return nil, fmt.Errorf("recognizer closed")
	}

	text, err := parseVoskText(v.rec.FinalResult())
	if err != nil {
		return nil, err
	}
	if text == "" {
		return nil, nil
	}
	return &Event{Text: text, Final: true}, nil
}

func (v *voskRecognizer) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return nil
	}
	v.closed = true
	v.rec.Free()
	return nil
}

func parseVoskText(raw string) (string, error) {
	var res struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		return "", fmt.Errorf("decode vosk result: %w", err)
	}
	return strings.TrimSpace(res.Text), nil
}

func parseVoskPartial(raw string) (string, error) {
	var res struct {
		Partial string `json:"partial"`
	}
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		return "", fmt.Errorf("decode vosk partial: %w", err)
	}
	return strings.TrimSpace(res.Partial), nil
}

func int16ToPCM(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}
