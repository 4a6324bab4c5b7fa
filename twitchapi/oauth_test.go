package twitchapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestGeneratePKCE(t *testing.T) {
	v1, c1, err := GeneratePKCE()
	if err != nil {
		t.Fatalf("GeneratePKCE: %v", err)
	}
	if v1 == "" || c1 == "" {
		t.Fatal("expected non-empty verifier and challenge")
	}
	if strings.ContainsAny(v1, "+/=") || strings.ContainsAny(c1, "+/=") {
		t.Errorf("expected base64url without padding, got verifier=%q challenge=%q", v1, c1)
	}
	v2, c2, _ := GeneratePKCE()
	if v1 == v2 || c1 == c2 {
		t.Error("expected distinct values per call")
	}
}

func TestAuthorizeURL(t *testing.T) {
	c := &OAuthClient{ClientID: "cid", RedirectURI: "http://localhost/cb", Scopes: "chat:read chat:edit"}
	u, err := c.AuthorizeURL("st123", "chal456")
	if err != nil {
		t.Fatalf("AuthorizeURL: %v", err)
	}
	for _, want := range []string{"client_id=cid", "state=st123", "code_challenge=chal456", "code_challenge_method=S256", "response_type=code"} {
		if !strings.Contains(u, want) {
			t.Errorf("url missing %q: %s", want, u)
		}
	}

	if _, err := c.AuthorizeURL("", "chal"); err == nil {
		t.Error("expected error for empty state")
	}
	if _, err := (&OAuthClient{}).AuthorizeURL("st", "chal"); err == nil {
		t.Error("expected error for missing client id")
	}
}

func TestExchange(t *testing.T) {
	var gotForm map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/oauth2/token" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = r.ParseForm()
		gotForm = map[string]string{
			"code":          r.Form.Get("code"),
			"code_verifier": r.Form.Get("code_verifier"),
			"grant_type":    r.Form.Get("grant_type"),
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at","refresh_token":"rt","expires_in":3600,"scope":["chat:read"]}`))
	}))
	defer srv.Close()

	c := &OAuthClient{ClientID: "cid", RedirectURI: "http://localhost/cb", AuthBase: srv.URL}
	res, err := c.Exchange(context.Background(), "thecode", "theverifier")
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	if res.AccessToken != "at" || res.RefreshToken != "rt" || res.ExpiresIn != 3600 {
		t.Errorf("unexpected response: %+v", res)
	}
	if gotForm["code"] != "thecode" || gotForm["code_verifier"] != "theverifier" || gotForm["grant_type"] != "authorization_code" {
		t.Errorf("unexpected form: %v", gotForm)
	}
}

func TestExchangeMissingParams(t *testing.T) {
	c := &OAuthClient{ClientID: "cid"}
	if _, err := c.Exchange(context.Background(), "", "v"); err == nil {
		t.Error("expected error for empty code")
	}
	if _, err := c.Exchange(context.Background(), "c", ""); err == nil {
		t.Error("expected error for empty verifier")
	}
}

func TestRefreshRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"status":400,"message":"Invalid refresh token"}`))
	}))
	defer srv.Close()

	c := &OAuthClient{ClientID: "cid", AuthBase: srv.URL}
	_, err := c.Refresh(context.Background(), "dead-token")
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if !apiErr.IsRejection() {
		t.Errorf("expected 400 to be a rejection, got %d", apiErr.StatusCode)
	}
}

func TestAPIErrorIsRejection(t *testing.T) {
	cases := []struct {
		status int
		want   bool
	}{
		{400, true}, {401, true}, {403, true}, {499, true},
		{500, false}, {502, false}, {302, false},
	}
	for _, tc := range cases {
		e := &APIError{StatusCode: tc.status}
		if got := e.IsRejection(); got != tc.want {
			t.Errorf("IsRejection(%d) = %v, want %v", tc.status, got, tc.want)
		}
	}
}

func TestTokenRequestEmptyAccessToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"","expires_in":3600}`))
	}))
	defer srv.Close()

	c := &OAuthClient{ClientID: "cid", AuthBase: srv.URL}
	if _, err := c.Refresh(context.Background(), "rt"); err == nil {
		t.Error("expected error for empty access_token")
	}
}

func TestComputeExpiry(t *testing.T) {
	now := time.Now()
	if got := ComputeExpiry(3600); got.Before(now.Add(59*time.Minute)) || got.After(now.Add(61*time.Minute)) {
		t.Errorf("ComputeExpiry(3600) = %v, want ~1h from now", got)
	}
	// Flows that don't report a lifetime default to +60m.
	if got := ComputeExpiry(0); got.Before(now.Add(59 * time.Minute)) {
		t.Errorf("ComputeExpiry(0) = %v, want ~60m fallback", got)
	}
}
