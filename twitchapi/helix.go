package twitchapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultHelixBase = "https://api.twitch.tv/helix"

// HelixClient provides the metadata lookups the command router needs:
// clips, users, game names, and the platform-native shoutout call.
type HelixClient struct {
	ClientID string
	Tokens   TokenProvider
	// AppTokens supplies a client-credentials token when no user token is
	// available yet. Clip, user, and game lookups need no user scope, so
	// metadata keeps resolving before the authorization flow has completed.
	AppTokens  TokenProvider
	HTTPClient *http.Client
	BaseURL    string // override for tests; defaults to api.twitch.tv/helix
}

func (hc *HelixClient) base() string {
	if hc.BaseURL != "" {
		return hc.BaseURL
	}
	return defaultHelixBase
}

func (hc *HelixClient) http() *http.Client {
	if hc.HTTPClient != nil {
		return hc.HTTPClient
	}
	return http.DefaultClient
}

func (hc *HelixClient) token(ctx context.Context) (string, error) {
	if hc.Tokens != nil {
		tok, err := hc.Tokens.GetToken(ctx)
		if err == nil {
			return tok, nil
		}
		if hc.AppTokens == nil {
			return "", err
		}
		slog.Debug("user token unavailable, falling back to app token",
			slog.Any("err", err), slog.String("component", "twitchapi"))
	}
	if hc.AppTokens == nil {
		return "", fmt.Errorf("no token provider configured")
	}
	return hc.AppTokens.GetToken(ctx)
}

func (hc *HelixClient) do(ctx context.Context, method, path string, q url.Values, out any) error {
	tok, err := hc.token(ctx)
	if err != nil {
		return fmt.Errorf("helix token: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, hc.base()+path, nil)
	if err != nil {
		return err
	}
	if q != nil {
		req.URL.RawQuery = q.Encode()
	}
	req.Header.Set("Client-Id", hc.ClientID)
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := hc.http().Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// GetUser resolves a login name to user data. An empty login returns the user
// owning the bearer token (used after completing an authorization flow).
func (hc *HelixClient) GetUser(ctx context.Context, login string) (*UserData, error) {
	q := url.Values{}
	if login != "" {
		q.Set("login", strings.ToLower(strings.TrimPrefix(login, "@")))
	}
	var body struct {
		Data []UserData `json:"data"`
	}
	if err := hc.do(ctx, http.MethodGet, "/users", q, &body); err != nil {
		return nil, err
	}
	if len(body.Data) == 0 {
		return nil, fmt.Errorf("user not found")
	}
	return &body.Data[0], nil
}

// GetUserForToken returns the user owning the given bearer token. Used right
// after a code exchange, before the credential is persisted.
func (hc *HelixClient) GetUserForToken(ctx context.Context, bearer string) (*UserData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, hc.base()+"/users", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Client-Id", hc.ClientID)
	req.Header.Set("Authorization", "Bearer "+bearer)
	resp, err := hc.http().Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	var body struct {
		Data []UserData `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	if len(body.Data) == 0 {
		return nil, fmt.Errorf("user not found")
	}
	return &body.Data[0], nil
}

type helixClip struct {
	ID              string  `json:"id"`
	URL             string  `json:"url"`
	EmbedURL        string  `json:"embed_url"`
	BroadcasterID   string  `json:"broadcaster_id"`
	BroadcasterName string  `json:"broadcaster_name"`
	CreatorID       string  `json:"creator_id"`
	CreatorName     string  `json:"creator_name"`
	GameID          string  `json:"game_id"`
	Title           string  `json:"title"`
	ViewCount       int     `json:"view_count"`
	CreatedAt       string  `json:"created_at"`
	Duration        float64 `json:"duration"`
	IsFeatured      bool    `json:"is_featured"`
}

func (c helixClip) toClipData() *ClipData {
	created, _ := time.Parse(time.RFC3339, c.CreatedAt)
	return &ClipData{
		ID:          c.ID,
		URL:         c.URL,
		EmbedURL:    c.EmbedURL,
		Title:       c.Title,
		Creator:     UserData{ID: c.CreatorID, DisplayName: c.CreatorName},
		Broadcaster: UserData{ID: c.BroadcasterID, DisplayName: c.BroadcasterName},
		GameID:      c.GameID,
		Duration:    c.Duration,
		CreatedAt:   created,
		ViewCount:   c.ViewCount,
		IsFeatured:  c.IsFeatured,
	}
}

// GetClipByID fetches metadata for a single clip slug.
func (hc *HelixClient) GetClipByID(ctx context.Context, id string) (*ClipData, error) {
	if id == "" {
		return nil, fmt.Errorf("clip id empty")
	}
	q := url.Values{}
	q.Set("id", id)
	var body struct {
		Data []helixClip `json:"data"`
	}
	if err := hc.do(ctx, http.MethodGet, "/clips", q, &body); err != nil {
		return nil, err
	}
	if len(body.Data) == 0 {
		return nil, fmt.Errorf("clip not found")
	}
	clip := body.Data[0].toClipData()
	if clip.GameID != "" {
		if name, err := hc.GetGameName(ctx, clip.GameID); err == nil {
			clip.GameName = name
		}
	}
	return clip, nil
}

// GetClipByURL extracts the clip slug from a clip URL and fetches its metadata.
func (hc *HelixClient) GetClipByURL(ctx context.Context, rawURL string) (*ClipData, error) {
	slug, ok := ParseClipIdentifier(rawURL)
	if !ok {
		return nil, fmt.Errorf("not a recognizable clip url or id: %q", rawURL)
	}
	return hc.GetClipByID(ctx, slug)
}

// GetRandomClip picks a random clip for a broadcaster that satisfies the filters.
func (hc *HelixClient) GetRandomClip(ctx context.Context, username string, f ClipFilters) (*ClipData, error) {
	user, err := hc.GetUser(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("resolve broadcaster %q: %w", username, err)
	}
	q := url.Values{}
	q.Set("broadcaster_id", user.ID)
	q.Set("first", "100")
	if f.MaxAgeDays > 0 {
		startedAt := time.Now().AddDate(0, 0, -f.MaxAgeDays)
		q.Set("started_at", startedAt.UTC().Format(time.RFC3339))
	}
	if f.FeaturedOnly {
		q.Set("is_featured", "true")
	}
	var body struct {
		Data []helixClip `json:"data"`
	}
	if err := hc.do(ctx, http.MethodGet, "/clips", q, &body); err != nil {
		return nil, err
	}
	candidates := make([]helixClip, 0, len(body.Data))
	for _, c := range body.Data {
		if f.MaxDurationSeconds > 0 && c.Duration > float64(f.MaxDurationSeconds) {
			continue
		}
		candidates = append(candidates, c)
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("no qualifying clips for %s", user.DisplayName)
	}
	//nolint:gosec // G404: math/rand is sufficient for clip selection, not used for security
	clip := candidates[rand.Intn(len(candidates))].toClipData()
	if clip.GameID != "" {
		if name, err := hc.GetGameName(ctx, clip.GameID); err == nil {
			clip.GameName = name
		}
	}
	return clip, nil
}

// SearchClip finds a clip for a broadcaster whose title matches the query,
// preferring higher view counts. Falls back to a random qualifying clip when
// no title matches.
func (hc *HelixClient) SearchClip(ctx context.Context, username, query string, f ClipFilters) (*ClipData, error) {
	user, err := hc.GetUser(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("resolve broadcaster %q: %w", username, err)
	}
	q := url.Values{}
	q.Set("broadcaster_id", user.ID)
	q.Set("first", "100")
	if f.MaxAgeDays > 0 {
		startedAt := time.Now().AddDate(0, 0, -f.MaxAgeDays)
		q.Set("started_at", startedAt.UTC().Format(time.RFC3339))
	}
	var body struct {
		Data []helixClip `json:"data"`
	}
	if err := hc.do(ctx, http.MethodGet, "/clips", q, &body); err != nil {
		return nil, err
	}
	needle := strings.ToLower(strings.TrimSpace(query))
	var best *helixClip
	for i := range body.Data {
		c := &body.Data[i]
		if f.MaxDurationSeconds > 0 && c.Duration > float64(f.MaxDurationSeconds) {
			continue
		}
		if !strings.Contains(strings.ToLower(c.Title), needle) {
			continue
		}
		if best == nil || c.ViewCount > best.ViewCount {
			best = c
		}
	}
	if best == nil {
		return hc.GetRandomClip(ctx, username, f)
	}
	clip := best.toClipData()
	if clip.GameID != "" {
		if name, err := hc.GetGameName(ctx, clip.GameID); err == nil {
			clip.GameName = name
		}
	}
	return clip, nil
}

// GetGameName resolves a game id to its display name.
func (hc *HelixClient) GetGameName(ctx context.Context, gameID string) (string, error) {
	if gameID == "" {
		return "", fmt.Errorf("game id empty")
	}
	q := url.Values{}
	q.Set("id", gameID)
	var body struct {
		Data []struct {
			Name string `json:"name"`
		} `json:"data"`
	}
	if err := hc.do(ctx, http.MethodGet, "/games", q, &body); err != nil {
		return "", err
	}
	if len(body.Data) == 0 {
		return "", fmt.Errorf("game not found")
	}
	return body.Data[0].Name, nil
}

// SendShoutout issues the platform-native shoutout from one broadcaster to another.
// Requires a user token with moderator:manage:shoutouts.
func (hc *HelixClient) SendShoutout(ctx context.Context, fromBroadcasterID, toBroadcasterID, moderatorID string) error {
	if fromBroadcasterID == "" || toBroadcasterID == "" {
		return fmt.Errorf("missing broadcaster ids for shoutout")
	}
	q := url.Values{}
	q.Set("from_broadcaster_id", fromBroadcasterID)
	q.Set("to_broadcaster_id", toBroadcasterID)
	q.Set("moderator_id", moderatorID)
	return hc.do(ctx, http.MethodPost, "/chat/shoutouts", q, nil)
}

// CreateEventSubSubscription registers one WebSocket-transport subscription
// for the given session. Requires a user token matching the condition's scopes.
func (hc *HelixClient) CreateEventSubSubscription(ctx context.Context, subType, version string, condition map[string]string, sessionID string) error {
	tok, err := hc.Tokens.GetToken(ctx)
	if err != nil {
		return fmt.Errorf("helix token: %w", err)
	}
	payload := map[string]any{
		"type":      subType,
		"version":   version,
		"condition": condition,
		"transport": map[string]string{"method": "websocket", "session_id": sessionID},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hc.base()+"/eventsub/subscriptions", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Client-Id", hc.ClientID)
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Content-Type", "application/json")
	resp, err := hc.http().Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	return nil
}

// ParseClipIdentifier accepts a bare clip slug, a clips.twitch.tv URL, or a
// www.twitch.tv/<channel>/clip/<slug> URL and returns the slug.
func ParseClipIdentifier(input string) (string, bool) {
	s := strings.TrimSpace(input)
	if s == "" {
		return "", false
	}
	if !strings.Contains(s, "/") && !strings.Contains(s, ".") {
		// bare slug: letters, digits, dashes and underscores only
		for _, r := range s {
			if !isSlugRune(r) {
				return "", false
			}
		}
		return s, true
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	switch host {
	case "clips.twitch.tv":
		if len(parts) >= 1 && parts[0] != "" {
			return parts[0], true
		}
	case "twitch.tv", "m.twitch.tv":
		// /<channel>/clip/<slug>
		if len(parts) >= 3 && parts[1] == "clip" && parts[2] != "" {
			return parts[2], true
		}
	}
	return "", false
}

func isSlugRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		return true
	}
	return false
}
