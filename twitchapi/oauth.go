// Package twitchapi contains helpers to interact with the Twitch identity and
// Helix APIs: the OAuth authorization-code flow with PKCE, token refresh, and
// the metadata lookups (clips, users, games, shoutouts) the command router needs.
package twitchapi

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultAuthBase = "https://id.twitch.tv"

// TokenResponse represents the response from a code exchange or refresh_token grant.
type TokenResponse struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	TokenType    string   `json:"token_type"`
	Scope        []string `json:"scope"`
	ExpiresIn    int      `json:"expires_in"`
}

// APIError is a non-2xx reply from the identity endpoint. The status code lets
// callers distinguish provider rejection (4xx, don't retry) from server trouble.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("twitch identity request failed: %d: %s", e.StatusCode, e.Body)
}

// IsRejection reports whether the provider rejected the grant itself (4xx).
func (e *APIError) IsRejection() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// OAuthClient performs the authorization-code-with-PKCE flow against id.twitch.tv.
type OAuthClient struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       string
	HTTPClient   *http.Client
	AuthBase     string // override for tests; defaults to id.twitch.tv
}

func (c *OAuthClient) base() string {
	if c.AuthBase != "" {
		return c.AuthBase
	}
	return defaultAuthBase
}

func (c *OAuthClient) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

// GeneratePKCE returns a fresh code verifier and its S256 challenge.
func GeneratePKCE() (verifier, challenge string, err error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("generate pkce verifier: %w", err)
	}
	verifier = base64.RawURLEncoding.EncodeToString(b)
	sum := sha256.Sum256([]byte(verifier))
	challenge = base64.RawURLEncoding.EncodeToString(sum[:])
	return verifier, challenge, nil
}

// AuthorizeURL constructs the user authorization URL embedding state and PKCE challenge.
func (c *OAuthClient) AuthorizeURL(state, challenge string) (string, error) {
	if c.ClientID == "" || c.RedirectURI == "" {
		return "", errors.New("missing clientID or redirectURI")
	}
	if state == "" || challenge == "" {
		return "", errors.New("missing state or code challenge")
	}
	v := url.Values{}
	v.Set("response_type", "code")
	v.Set("client_id", c.ClientID)
	v.Set("redirect_uri", c.RedirectURI)
	v.Set("state", state)
	v.Set("code_challenge", challenge)
	v.Set("code_challenge_method", "S256")
	if c.Scopes != "" {
		v.Set("scope", strings.TrimSpace(strings.ReplaceAll(c.Scopes, ",", " ")))
	}
	return c.base() + "/oauth2/authorize?" + v.Encode(), nil
}

// Exchange trades an authorization code (plus its PKCE verifier) for tokens.
func (c *OAuthClient) Exchange(ctx context.Context, code, verifier string) (*TokenResponse, error) {
	if c.ClientID == "" || code == "" || verifier == "" {
		return nil, errors.New("missing required parameter for auth code exchange")
	}
	form := url.Values{}
	form.Set("client_id", c.ClientID)
	if c.ClientSecret != "" {
		form.Set("client_secret", c.ClientSecret)
	}
	form.Set("code", code)
	form.Set("code_verifier", verifier)
	form.Set("grant_type", "authorization_code")
	form.Set("redirect_uri", c.RedirectURI)
	return c.tokenRequest(ctx, form)
}

// Refresh exchanges a refresh token for a new access token.
func (c *OAuthClient) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	if c.ClientID == "" || refreshToken == "" {
		return nil, errors.New("missing clientID/refreshToken")
	}
	form := url.Values{}
	form.Set("client_id", c.ClientID)
	if c.ClientSecret != "" {
		form.Set("client_secret", c.ClientSecret)
	}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	return c.tokenRequest(ctx, form)
}

func (c *OAuthClient) tokenRequest(ctx context.Context, form url.Values) (*TokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base()+"/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := c.http().Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	var res TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, err
	}
	if res.AccessToken == "" {
		return nil, errors.New("empty access_token in twitch response")
	}
	return &res, nil
}

// ComputeExpiry returns absolute expiry time from seconds, defaulting to +60m
// when the flow type does not report a lifetime.
func ComputeExpiry(seconds int) time.Time {
	if seconds <= 0 {
		return time.Now().Add(60 * time.Minute)
	}
	return time.Now().Add(time.Duration(seconds) * time.Second)
}
