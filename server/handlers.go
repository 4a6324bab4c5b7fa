package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/onnwee/clip-tender/auth"
	"github.com/onnwee/clip-tender/commands"
	"github.com/onnwee/clip-tender/player"
	"github.com/onnwee/clip-tender/twitchapi"
)

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	db     *sql.DB
	auth   *auth.Manager
	engine *player.Engine
	gate   *commands.Gate
	router *commands.Router
	helix  *twitchapi.HelixClient
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(db *sql.DB, am *auth.Manager, engine *player.Engine, gate *commands.Gate, router *commands.Router, helix *twitchapi.HelixClient) *Handlers {
	return &Handlers{
		db:     db,
		auth:   am,
		engine: engine,
		gate:   gate,
		router: router,
		helix:  helix,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode JSON response", slog.Any("err", err))
	}
}
