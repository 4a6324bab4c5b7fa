package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/onnwee/clip-tender/commands"
	"github.com/onnwee/clip-tender/config"
	"github.com/onnwee/clip-tender/player"
	"github.com/onnwee/clip-tender/telemetry"
)

func TestMain(m *testing.M) {
	telemetry.Init()
	m.Run()
}

func testHandlers(t *testing.T) *Handlers {
	t.Helper()
	cfg := &config.Config{
		ApprovalPollInterval: time.Millisecond,
		ApprovalTimeout:      50 * time.Millisecond,
		ApproveWords:         []string{"yes"},
		DenyWords:            []string{"no"},
	}
	engine := player.NewEngine(player.NewHTTPDevice("http://localhost:0"), 2, 0, 0)
	gate := commands.NewGate(cfg.ApproveWords, cfg.DenyWords)
	router := commands.NewRouter(cfg, nil, gate, engine, nil)
	return NewHandlers(nil, nil, engine, gate, router, nil)
}

func TestHandleApprovalDecisionNoRequest(t *testing.T) {
	h := testHandlers(t)
	req := httptest.NewRequest(http.MethodPost, "/approval/decision", strings.NewReader(`{"approved":true}`))
	rec := httptest.NewRecorder()
	h.HandleApprovalDecision(rec, req)
	if rec.Code != http.StatusConflict {
		t.Errorf("got %d, want 409 when nothing is awaiting", rec.Code)
	}
}

func TestHandleApprovalDecisionBadBody(t *testing.T) {
	h := testHandlers(t)
	req := httptest.NewRequest(http.MethodPost, "/approval/decision", strings.NewReader(`{broken`))
	rec := httptest.NewRecorder()
	h.HandleApprovalDecision(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("got %d, want 400 for bad body", rec.Code)
	}
}

func TestHandleApprovalDecisionMethod(t *testing.T) {
	h := testHandlers(t)
	req := httptest.NewRequest(http.MethodGet, "/approval/decision", nil)
	rec := httptest.NewRecorder()
	h.HandleApprovalDecision(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("got %d, want 405", rec.Code)
	}
}

func TestHandleStatus(t *testing.T) {
	h := testHandlers(t)
	req := httptest.NewRequest(http.MethodGet, "/player/status", nil)
	rec := httptest.NewRecorder()
	h.HandleStatus(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"state":"idle"`) {
		t.Errorf("unexpected status body: %s", rec.Body.String())
	}
}

func TestHandleStop(t *testing.T) {
	h := testHandlers(t)
	req := httptest.NewRequest(http.MethodPost, "/player/stop", nil)
	rec := httptest.NewRecorder()
	h.HandleStop(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Errorf("got %d, want 202", rec.Code)
	}
}

func TestHandleReplayNoHistory(t *testing.T) {
	h := testHandlers(t)
	req := httptest.NewRequest(http.MethodPost, "/player/replay", nil)
	rec := httptest.NewRecorder()
	h.HandleReplay(rec, req)
	if rec.Code != http.StatusConflict {
		t.Errorf("got %d, want 409 without history", rec.Code)
	}
}

func TestHandlePlayWithFallback(t *testing.T) {
	h := testHandlers(t)
	body := `{"id_or_url":"### not a clip ###","fallback":{"id":"f1","title":"manual","duration_seconds":12}}`
	req := httptest.NewRequest(http.MethodPost, "/player/play", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.HandlePlay(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("got %d, want 202: %s", rec.Code, rec.Body.String())
	}
	if st := h.engine.Status(); st.QueueDepth != 1 {
		t.Errorf("clip not queued: %+v", st)
	}
}

func TestHandlePlayUnresolvable(t *testing.T) {
	h := testHandlers(t)
	body := `{"id_or_url":"### not a clip ###"}`
	req := httptest.NewRequest(http.MethodPost, "/player/play", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.HandlePlay(rec, req)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("got %d, want 422", rec.Code)
	}
}

func TestHandlePlayQueueFull(t *testing.T) {
	h := testHandlers(t)
	body := `{"id_or_url":"###","fallback":{"id":"f","duration_seconds":1}}`
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/player/play", strings.NewReader(body))
		h.HandlePlay(httptest.NewRecorder(), req)
	}
	req := httptest.NewRequest(http.MethodPost, "/player/play", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.HandlePlay(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("got %d, want 429 when the queue is full", rec.Code)
	}
}

func TestHandleCacheClear(t *testing.T) {
	h := testHandlers(t)
	req := httptest.NewRequest(http.MethodPost, "/admin/cache/clear", nil)
	rec := httptest.NewRecorder()
	h.HandleCacheClear(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("got %d, want 200", rec.Code)
	}
}

func TestAdminAuthToken(t *testing.T) {
	cfg := &authConfig{adminToken: "secret", enabled: true}
	var reached bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { reached = true })
	handler := adminAuth(next, cfg)

	req := httptest.NewRequest(http.MethodPost, "/admin/cache/clear", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized || reached {
		t.Errorf("got %d (reached=%v), want 401 without token", rec.Code, reached)
	}

	req = httptest.NewRequest(http.MethodPost, "/admin/cache/clear", nil)
	req.Header.Set("X-Admin-Token", "secret")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !reached {
		t.Errorf("got %d (reached=%v), want pass-through with valid token", rec.Code, reached)
	}
}

func TestAdminAuthBasic(t *testing.T) {
	cfg := &authConfig{adminUsername: "admin", adminPassword: "pw", enabled: true}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	handler := adminAuth(next, cfg)

	req := httptest.NewRequest(http.MethodPost, "/admin/cache/clear", nil)
	req.SetBasicAuth("admin", "wrong")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("got %d, want 401 with wrong password", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/admin/cache/clear", nil)
	req.SetBasicAuth("admin", "pw")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("got %d, want 200 with correct credentials", rec.Code)
	}
}
