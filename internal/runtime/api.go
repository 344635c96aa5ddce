package runtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sounderlabs/voxd/internal/orchestrator"
	"github.com/sounderlabs/voxd/internal/transport"
	"github.com/sounderlabs/voxd/internal/voices"
	"github.com/sounderlabs/voxd/internal/wavexport"
)

// api exposes the orchestrator over HTTP and a websocket state feed.
type api struct {
	orch     *orchestrator.Orchestrator
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func newAPI(orch *orchestrator.Orchestrator, logger *slog.Logger) *api {
	return &api{
		orch:   orch,
		logger: logger.With(slog.String("component", "api")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Local daemon; the browser UI is served from anywhere.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (a *api) register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/state", a.handleState)
	mux.HandleFunc("GET /api/voices", a.handleVoices)
	mux.HandleFunc("POST /api/generate", a.handleGenerate)
	mux.HandleFunc("POST /api/play/{id}", a.handlePlay)
	mux.HandleFunc("POST /api/pause", a.handlePause)
	mux.HandleFunc("POST /api/seek", a.handleSeek)
	mux.HandleFunc("POST /api/voice", a.handleVoice)
	mux.HandleFunc("POST /api/speed", a.handleSpeed)
	mux.HandleFunc("POST /api/volume", a.handleVolume)
	mux.HandleFunc("GET /api/history", a.handleHistory)
	mux.HandleFunc("DELETE /api/history/{id}", a.handleDelete)
	mux.HandleFunc("GET /api/history/{id}/download", a.handleDownload)
	mux.HandleFunc("GET /ws", a.handleWebsocket)
}

func (a *api) handleState(w http.ResponseWriter, _ *http.Request) {
	a.writeJSON(w, http.StatusOK, a.orch.Snapshot())
}

func (a *api) handleVoices(w http.ResponseWriter, _ *http.Request) {
	a.writeJSON(w, http.StatusOK, map[string]any{"voices": voices.All()})
}

func (a *api) handleGenerate(w http.ResponseWriter, req *http.Request) {
	var body struct {
		Text string `json:"text"`
	}
	if !a.readJSON(w, req, &body) {
		return
	}
	if err := a.orch.Generate(body.Text); err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusAccepted, a.orch.Snapshot())
}

func (a *api) handlePlay(w http.ResponseWriter, req *http.Request) {
	if err := a.orch.Play(req.PathValue("id")); err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, a.orch.Snapshot())
}

func (a *api) handlePause(w http.ResponseWriter, _ *http.Request) {
	if err := a.orch.Pause(); err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, a.orch.Snapshot())
}

func (a *api) handleSeek(w http.ResponseWriter, req *http.Request) {
	var body struct {
		Fraction float64 `json:"fraction"`
	}
	if !a.readJSON(w, req, &body) {
		return
	}
	if err := a.orch.Seek(body.Fraction); err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, a.orch.Snapshot())
}

func (a *api) handleVoice(w http.ResponseWriter, req *http.Request) {
	var body struct {
		VoiceID string `json:"voice_id"`
	}
	if !a.readJSON(w, req, &body) {
		return
	}
	if err := a.orch.SelectVoice(body.VoiceID); err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, a.orch.Snapshot())
}

func (a *api) handleSpeed(w http.ResponseWriter, req *http.Request) {
	var body struct {
		Speed float64 `json:"speed"`
	}
	if !a.readJSON(w, req, &body) {
		return
	}
	if err := a.orch.SetSpeed(body.Speed); err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, a.orch.Snapshot())
}

func (a *api) handleVolume(w http.ResponseWriter, req *http.Request) {
	var body struct {
		Volume float64 `json:"volume"`
	}
	if !a.readJSON(w, req, &body) {
		return
	}
	if err := a.orch.SetVolume(body.Volume); err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, a.orch.Snapshot())
}

func (a *api) handleHistory(w http.ResponseWriter, _ *http.Request) {
	a.writeJSON(w, http.StatusOK, map[string]any{"history": a.orch.Snapshot().History})
}

func (a *api) handleDelete(w http.ResponseWriter, req *http.Request) {
	if err := a.orch.Delete(req.PathValue("id")); err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, a.orch.Snapshot())
}

func (a *api) handleDownload(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("id")
	rec, ok := a.orch.Record(id)
	if !ok {
		a.writeError(w, orchestrator.ErrNoSuchRecord)
		return
	}
	data, err := wavexport.EncodeBytes(rec.Samples, rec.SampleRate)
	if err != nil {
		a.logger.Error("wav export failed", slog.String("id", id), slog.String("error", err.Error()))
		http.Error(w, "export failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "voxd-"+id+".wav"))
	w.Header().Set("Content-Length", fmt.Sprint(len(data)))
	_, _ = w.Write(data)
}

// handleWebsocket streams state snapshots. The feed coalesces under a slow
// reader; clients always converge on the latest state.
func (a *api) handleWebsocket(w http.ResponseWriter, req *http.Request) {
	conn, err := a.upgrader.Upgrade(w, req, nil)
	if err != nil {
		a.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	feed, cancel := a.orch.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case snap, ok := <-feed:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(snap); err != nil {
				return
			}
		}
	}
}

func (a *api) readJSON(w http.ResponseWriter, req *http.Request, v any) bool {
	defer req.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(w, req.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func (a *api) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Warn("response encode failed", slog.String("error", err.Error()))
	}
}

func (a *api) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, orchestrator.ErrNoSuchRecord):
		status = http.StatusNotFound
	case errors.Is(err, orchestrator.ErrEmptyText),
		errors.Is(err, orchestrator.ErrUnknownVoice),
		errors.Is(err, orchestrator.ErrSpeedOutOfRange),
		errors.Is(err, orchestrator.ErrVolumeOutOfRange):
		status = http.StatusBadRequest
	case errors.Is(err, orchestrator.ErrModelLoading),
		errors.Is(err, orchestrator.ErrGenerationInFlight),
		errors.Is(err, transport.ErrNoSession):
		status = http.StatusConflict
	}
	a.writeJSON(w, status, map[string]string{"error": err.Error()})
}
