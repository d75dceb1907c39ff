package runtime

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/sebastianuxd/decky-stt-keyboard/internal/protocol"
	"github.com/sebastianuxd/decky-stt-keyboard/internal/session"
	"github.com/sebastianuxd/decky-stt-keyboard/internal/stt"
)

func (r *Runtime) registerAPI(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/recording/start", r.handleStart)
	mux.HandleFunc("POST /v1/recording/stop", r.handleStop)
	mux.HandleFunc("GET /v1/recording/results", r.handleResults)
	mux.HandleFunc("GET /v1/microphone", r.handleMicrophone)
	mux.HandleFunc("GET /v1/sessions/{id}/utterances", r.handleUtterances)
}

func (r *Runtime) handleStart(w http.ResponseWriter, req *http.Request) {
	if err := r.session.Start(); err != nil {
		switch {
		case errors.Is(err, session.ErrAlreadyRecording):
			writeError(w, http.StatusConflict, err)
		case errors.Is(err, stt.ErrModelNotLoaded):
			writeError(w, http.StatusServiceUnavailable, err)
		case errors.Is(err, session.ErrAudioDevice):
			writeError(w, http.StatusServiceUnavailable, err)
		default:
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}

	sessionID := r.session.SessionID()
	r.publishLifecycle(protocol.SubjectSessionStarted, sessionID)
	writeJSON(w, http.StatusOK, map[string]string{
		"status":     "recording",
		"session_id": sessionID,
	})
}

func (r *Runtime) handleStop(w http.ResponseWriter, req *http.Request) {
	sessionID := r.session.SessionID()
	if err := r.session.Stop(); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if sessionID != "" {
		r.publishLifecycle(protocol.SubjectSessionStopped, sessionID)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

func (r *Runtime) handleResults(w http.ResponseWriter, req *http.Request) {
	batch := r.sink.Poll(req.Context())
	if batch == nil {
		batch = []protocol.Result{}
	}
	writeJSON(w, http.StatusOK, batch)
}

func (r *Runtime) handleMicrophone(w http.ResponseWriter, _ *http.Request) {
	name, available := r.inputDevice()
	writeJSON(w, http.StatusOK, protocol.MicrophoneStatus{
		Available:   available,
		DeviceName:  name,
		IsRecording: r.session.State() == session.StateRecording,
	})
}

func (r *Runtime) handleUtterances(w http.ResponseWriter, req *http.Request) {
	sessionID := req.PathValue("id")
	utterances, err := r.store.ListSessionUtterances(req.Context(), sessionID, 100)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	type entry struct {
		Text      string    `json:"text"`
		CreatedAt time.Time `json:"created_at"`
	}
	out := make([]entry, 0, len(utterances))
	for _, u := range utterances {
		out = append(out, entry{Text: u.Text, CreatedAt: u.CreatedAt})
	}
	writeJSON(w, http.StatusOK, out)
}

// publishLifecycle announces session transitions on the bus, best-effort.
func (r *Runtime) publishLifecycle(subject, sessionID string) {
	if r.busCli == nil || !r.busCli.Healthy() {
		return
	}
	evt := protocol.SessionEvent{
		SessionID: sessionID,
		Timestamp: time.Now().UTC(),
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	if err := r.busCli.Publish(subject, data); err != nil {
		r.logger.Warn("failed to publish lifecycle event",
			slog.String("subject", subject),
			slog.String("error", err.Error()))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
