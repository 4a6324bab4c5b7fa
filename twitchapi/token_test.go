package twitchapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTokenSourceCachesToken(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"app-token","expires_in":3600,"token_type":"bearer"}`))
	}))
	defer srv.Close()

	ts := &TokenSource{ClientID: "cid", ClientSecret: "sec", AuthBase: srv.URL}
	tok, err := ts.GetToken(context.Background())
	if err != nil {
		t.Fatalf("GetToken: %v", err)
	}
	if tok != "app-token" {
		t.Errorf("got %q", tok)
	}
	if _, err := ts.GetToken(context.Background()); err != nil {
		t.Fatalf("GetToken (cached): %v", err)
	}
	if calls != 1 {
		t.Errorf("got %d token requests, want 1 (cache hit)", calls)
	}
}

func TestTokenSourceMissingCreds(t *testing.T) {
	ts := &TokenSource{}
	if _, err := ts.GetToken(context.Background()); err == nil {
		t.Error("expected error without client credentials")
	}
}
