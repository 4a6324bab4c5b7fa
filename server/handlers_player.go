package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/onnwee/clip-tender/player"
	"github.com/onnwee/clip-tender/twitchapi"
)

type playRequest struct {
	IDOrURL  string `json:"id_or_url"`
	Fallback *struct {
		ID              string  `json:"id"`
		URL             string  `json:"url"`
		EmbedURL        string  `json:"embed_url"`
		Title           string  `json:"title"`
		DurationSeconds float64 `json:"duration_seconds"`
	} `json:"fallback,omitempty"`
}

// HandlePlay resolves a clip and enqueues it. Returns 202; playback happens
// asynchronously in the engine.
func (h *Handlers) HandlePlay(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req playRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}

	var clip *twitchapi.ClipData
	if slug, ok := twitchapi.ParseClipIdentifier(req.IDOrURL); ok {
		if c, err := h.helix.GetClipByID(r.Context(), slug); err == nil {
			clip = c
		}
	}
	if clip == nil && req.Fallback != nil && req.Fallback.ID != "" {
		// Caller-supplied metadata lets the device play clips Helix can't see.
		clip = &twitchapi.ClipData{
			ID:       req.Fallback.ID,
			URL:      req.Fallback.URL,
			EmbedURL: req.Fallback.EmbedURL,
			Title:    req.Fallback.Title,
			Duration: req.Fallback.DurationSeconds,
		}
	}
	if clip == nil {
		http.Error(w, "unable to resolve clip", http.StatusUnprocessableEntity)
		return
	}
	if err := h.engine.Enqueue(clip); err != nil {
		if errors.Is(err, player.ErrQueueFull) {
			http.Error(w, "queue full", http.StatusTooManyRequests)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued", "clip_id": clip.ID})
}

// HandleStop interrupts current playback.
func (h *Handlers) HandleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.engine.Stop()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "stopping"})
}

// HandleReplay queues the last played clip again.
func (h *Handlers) HandleReplay(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := h.engine.Replay(); err != nil {
		if errors.Is(err, player.ErrNoHistory) {
			http.Error(w, "nothing played yet", http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusTooManyRequests)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

// HandleStatus reports the engine state and queue depths.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Status())
}
