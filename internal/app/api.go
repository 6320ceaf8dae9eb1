package app

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/MrWong99/sensekit/internal/observe"
	"github.com/MrWong99/sensekit/pkg/provider/tts"
	"github.com/MrWong99/sensekit/pkg/spatial"
	"github.com/MrWong99/sensekit/pkg/speech"
)

// maxBodyBytes caps control API request bodies.
const maxBodyBytes = 64 << 10

type speakRequest struct {
	Text        string        `json:"text"`
	Position    *spatial.Vec3 `json:"position,omitempty"`
	Direction   string        `json:"direction,omitempty"`
	Priority    int           `json:"priority"`
	AllowRepeat bool          `json:"allow_repeat"`
}

type speakResponse struct {
	Queued bool `json:"queued"`
}

type listenerRequest struct {
	Position spatial.Vec3 `json:"position"`
	Forward  spatial.Vec3 `json:"forward"`
}

type backendStatus struct {
	Name  string `json:"name"`
	State string `json:"state"`
}

type statusResponse struct {
	speech.State
	Channels []speech.ChannelInfo `json:"channels"`
	Backends []backendStatus      `json:"backends"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (a *App) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/speak", a.handleSpeak)
	mux.HandleFunc("POST /v1/stop", a.handleStop)
	mux.HandleFunc("DELETE /v1/queue", a.handleClearQueue)
	mux.HandleFunc("GET /v1/queue", a.handleQueue)
	mux.HandleFunc("DELETE /v1/spoken", a.handleClearSpoken)
	mux.HandleFunc("PUT /v1/listener", a.handleListener)
	mux.HandleFunc("GET /v1/status", a.handleStatus)
	mux.HandleFunc("GET /v1/voices", a.handleVoices)
	mux.HandleFunc("POST /v1/backends/{name}/reset", a.handleResetBackend)
}

func (a *App) handleSpeak(w http.ResponseWriter, r *http.Request) {
	var req speakRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	opts := []speech.ItemOption{speech.WithPriority(req.Priority)}
	switch {
	case req.Position != nil && req.Direction != "":
		writeError(w, http.StatusBadRequest, errors.New("position and direction are mutually exclusive"))
		return
	case req.Position != nil:
		opts = append(opts, speech.AtPosition(*req.Position))
	case req.Direction != "":
		p, err := spatial.ParseDirection(req.Direction)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		opts = append(opts, speech.AtPosition(p))
	}
	if req.AllowRepeat {
		opts = append(opts, speech.AllowRepeat())
	}

	queued, err := a.scheduler.TryEnqueue(speech.NewItem(req.Text, opts...))
	if err != nil {
		writeResult(w, err)
		return
	}
	observe.Annotate(r.Context(), observe.SpeakAttributes(req.Text, req.Priority, req.Position != nil || req.Direction != "", req.AllowRepeat)...)
	observe.WithTrace(r.Context(), a.log).Debug("speak request", "text", req.Text, "queued", queued)
	writeJSON(w, http.StatusAccepted, speakResponse{Queued: queued})
}

func (a *App) handleStop(w http.ResponseWriter, _ *http.Request) {
	writeResult(w, a.scheduler.Stop())
}

func (a *App) handleClearQueue(w http.ResponseWriter, _ *http.Request) {
	writeResult(w, a.scheduler.ClearQueue())
}

func (a *App) handleClearSpoken(w http.ResponseWriter, _ *http.Request) {
	writeResult(w, a.scheduler.ClearSpokenCache())
}

func (a *App) handleQueue(w http.ResponseWriter, _ *http.Request) {
	items, err := a.scheduler.QueuedItems()
	if err != nil {
		writeResult(w, err)
		return
	}
	if items == nil {
		items = []speech.Item{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (a *App) handleListener(w http.ResponseWriter, r *http.Request) {
	var req listenerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	writeResult(w, a.scheduler.UpdateListenerPosition(req.Position, req.Forward))
}

func (a *App) handleStatus(w http.ResponseWriter, _ *http.Request) {
	channels, err := a.scheduler.Channels()
	if err != nil {
		writeResult(w, err)
		return
	}
	res := statusResponse{
		State:    a.scheduler.State(),
		Channels: channels,
	}
	for _, b := range a.fallback.Status() {
		res.Backends = append(res.Backends, backendStatus{Name: b.Name, State: b.State.String()})
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *App) handleVoices(w http.ResponseWriter, r *http.Request) {
	voices, err := a.fallback.ListVoices(r.Context())
	if err != nil {
		observe.WithTrace(r.Context(), a.log).Warn("list voices failed", "err", err)
		writeError(w, http.StatusBadGateway, err)
		return
	}
	if voices == nil {
		voices = []tts.VoiceProfile{}
	}
	writeJSON(w, http.StatusOK, voices)
}

func (a *App) handleResetBackend(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := a.fallback.Reset(name); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	observe.WithTrace(r.Context(), a.log).Info("tts backend breaker reset", "backend", name)
	w.WriteHeader(http.StatusNoContent)
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return false
	}
	return true
}

// writeResult maps a scheduler command result to 204, or 503 once the
// scheduler is closed.
func writeResult(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, speech.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, err)
	default:
		writeError(w, http.StatusBadRequest, err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
