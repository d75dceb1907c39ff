package protocol

import "time"

// Result is a transcription result delivered to the frontend, either by
// polling the control API or over the bus.
type Result struct {
	SessionID string    `json:"session_id"`
	Text      string    `json:"text"`
	Final     bool      `json:"final"`
	Timestamp time.Time `json:"timestamp"`
}

// MicrophoneStatus describes the default capture device and session state.
type MicrophoneStatus struct {
	Available   bool   `json:"available"`
	DeviceName  string `json:"device_name,omitempty"`
	IsRecording bool   `json:"is_recording"`
}

const (
	// SubjectResult carries Result payloads on the push path.
	SubjectResult = "stt.result"
	// SubjectSessionStarted and SubjectSessionStopped announce lifecycle
	// transitions so subscribers can reset any per-session display state.
	SubjectSessionStarted = "stt.session.started"
	SubjectSessionStopped = "stt.session.stopped"
)

// SessionEvent is published on the session lifecycle subjects.
type SessionEvent struct {
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`
}
