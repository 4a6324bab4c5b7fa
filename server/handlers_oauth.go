package server

import (
	"errors"
	"net/http"

	"github.com/onnwee/clip-tender/auth"
)

// HandleOAuthStart initiates the authorization flow by redirecting to Twitch.
func (h *Handlers) HandleOAuthStart(w http.ResponseWriter, r *http.Request) {
	authURL, err := h.auth.StartAuthorizationFlow(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

// HandleOAuthCallback handles the redirect back from Twitch and stores tokens.
func (h *Handlers) HandleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if errCode := q.Get("error"); errCode != "" {
		// The user declined or Twitch rejected the request.
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"status": "error",
			"error":  errCode,
			"detail": q.Get("error_description"),
		})
		return
	}
	if err := h.auth.CompleteAuthorizationFlow(r.Context(), q.Get("code"), q.Get("state")); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, auth.ErrUnknownState) || errors.Is(err, auth.ErrEmptyCredential) {
			status = http.StatusBadRequest
		}
		http.Error(w, err.Error(), status)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleLogout clears stored credentials.
func (h *Handlers) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := h.auth.Logout(r.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}
