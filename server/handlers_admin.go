package server

import (
	"encoding/json"
	"net/http"
)

// HandleApprovalDecision records an explicit moderator decision for the
// request currently awaiting approval.
func (h *Handlers) HandleApprovalDecision(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Approved bool `json:"approved"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}
	if !h.gate.Awaiting() {
		http.Error(w, "no request awaiting approval", http.StatusConflict)
		return
	}
	h.gate.Record(req.Approved)
	writeJSON(w, http.StatusOK, map[string]any{"status": "recorded", "approved": req.Approved})
}

// HandleCacheClear drops the router's search result cache.
func (h *Handlers) HandleCacheClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.router.ClearCache()
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}
