// Package auth owns the Twitch credential lifecycle: the authorization-code
// flow with PKCE, persisted pending-flow state, single-flight token refresh,
// and the read API other components use to obtain a valid access token.
//
// The manager is the only writer of the stored credential record. Pending
// authorization flows are persisted so a provider redirect arriving after a
// process restart can still be validated, and each state token is consumed
// atomically at most once.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	mrand "math/rand"
	"strings"
	"sync"
	"time"

	"github.com/onnwee/clip-tender/backoff"
	"github.com/onnwee/clip-tender/telemetry"
	"github.com/onnwee/clip-tender/twitchapi"
)

var (
	// ErrNoRefreshToken means no refresh token is stored; refresh cannot proceed.
	ErrNoRefreshToken = errors.New("auth: no refresh token stored")
	// ErrReauthRequired means the provider rejected the refresh token; stored
	// credentials were cleared and the user must authorize again.
	ErrReauthRequired = errors.New("auth: refresh token rejected, re-authorization required")
	// ErrUnknownState means the callback's state token matches no pending flow
	// (expired, replayed, or fabricated).
	ErrUnknownState = errors.New("auth: unknown or already-consumed state token")
	// ErrEmptyCredential means the callback carried no usable credential material.
	ErrEmptyCredential = errors.New("auth: empty credential material")
)

// Store persists the credential record and the pending-authorization-flow table.
type Store interface {
	SaveTokens(ctx context.Context, access, refresh string, expiry time.Time, userID, scope string) error
	GetTokens(ctx context.Context) (access, refresh string, expiry time.Time, userID string, err error)
	ClearTokens(ctx context.Context) error
	PutPendingFlow(ctx context.Context, state, verifier string) error
	ConsumePendingFlow(ctx context.Context, state string) (verifier string, ok bool, err error)
}

// IdentityClient resolves the user owning a freshly issued token.
type IdentityClient interface {
	GetUserForToken(ctx context.Context, accessToken string) (*twitchapi.UserData, error)
}

// Completion is emitted once per CompleteAuthorizationFlow outcome.
type Completion struct {
	Success  bool
	Username string
	Err      error
}

// Manager is the credential lifecycle manager. Zero-value fields fall back to
// sensible defaults; Store and OAuth are required.
type Manager struct {
	Store    Store
	OAuth    *twitchapi.OAuthClient
	Identity IdentityClient

	// Policy paces retries of transient refresh failures.
	Policy backoff.Policy
	// Lookahead triggers proactive refresh when expiry is this close (default 5m).
	Lookahead time.Duration
	// MaxRefreshAttempts bounds transient-failure retries (default 3).
	MaxRefreshAttempts int
	// OnComplete, when set, observes authorization flow outcomes.
	OnComplete func(Completion)

	refreshMu sync.Mutex
}

func (m *Manager) lookahead() time.Duration {
	if m.Lookahead > 0 {
		return m.Lookahead
	}
	return 5 * time.Minute
}

func (m *Manager) maxAttempts() int {
	if m.MaxRefreshAttempts > 0 {
		return m.MaxRefreshAttempts
	}
	return 3
}

func (m *Manager) policy() backoff.Policy {
	if m.Policy.Base > 0 {
		return m.Policy
	}
	return backoff.Policy{Base: time.Second, Max: 30 * time.Second, Jitter: 0.2}
}

func (m *Manager) notify(c Completion) {
	if m.OnComplete != nil {
		m.OnComplete(c)
	}
}

// StartAuthorizationFlow generates a state token and PKCE verifier, durably
// records the pending flow, and returns the provider authorization URL.
func (m *Manager) StartAuthorizationFlow(ctx context.Context) (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	state := hex.EncodeToString(b)
	verifier, challenge, err := twitchapi.GeneratePKCE()
	if err != nil {
		return "", err
	}
	// Persist before handing the URL out: the redirect may land on a future
	// process instance.
	if err := m.Store.PutPendingFlow(ctx, state, verifier); err != nil {
		return "", fmt.Errorf("persist pending flow: %w", err)
	}
	authURL, err := m.OAuth.AuthorizeURL(state, challenge)
	if err != nil {
		return "", err
	}
	slog.Info("authorization flow started", slog.String("component", "auth"))
	return authURL, nil
}

// CompleteAuthorizationFlow validates the returned state token, exchanges the
// authorization code, resolves the owning user, and persists the credential.
// The state entry is consumed exactly once; a replayed callback fails closed.
func (m *Manager) CompleteAuthorizationFlow(ctx context.Context, code, state string) error {
	if code == "" {
		m.notify(Completion{Err: ErrEmptyCredential})
		return ErrEmptyCredential
	}
	if state == "" {
		m.notify(Completion{Err: ErrUnknownState})
		return ErrUnknownState
	}
	verifier, ok, err := m.Store.ConsumePendingFlow(ctx, state)
	if err != nil {
		err = fmt.Errorf("consume pending flow: %w", err)
		m.notify(Completion{Err: err})
		return err
	}
	if !ok {
		m.notify(Completion{Err: ErrUnknownState})
		return ErrUnknownState
	}

	res, err := m.OAuth.Exchange(ctx, code, verifier)
	if err != nil {
		err = fmt.Errorf("code exchange: %w", err)
		m.notify(Completion{Err: err})
		return err
	}

	var userID, username string
	if m.Identity != nil {
		if user, err := m.Identity.GetUserForToken(ctx, res.AccessToken); err != nil {
			slog.Warn("owning user lookup failed", slog.Any("err", err), slog.String("component", "auth"))
		} else {
			userID, username = user.ID, user.DisplayName
		}
	}

	expiry := twitchapi.ComputeExpiry(res.ExpiresIn)
	if err := m.Store.SaveTokens(ctx, res.AccessToken, res.RefreshToken, expiry, userID, joinScopes(res.Scope)); err != nil {
		err = fmt.Errorf("persist credential: %w", err)
		m.notify(Completion{Err: err})
		return err
	}
	slog.Info("authorization flow completed", slog.String("user", username), slog.Time("expires_at", expiry), slog.String("component", "auth"))
	m.notify(Completion{Success: true, Username: username})
	return nil
}

// RefreshAccessToken refreshes the stored credential. Guarded by a
// single-flight lock: concurrent callers serialize, and a caller that acquires
// the lock after another just refreshed returns immediately.
func (m *Manager) RefreshAccessToken(ctx context.Context) error {
	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()

	_, refresh, expiry, userID, err := m.Store.GetTokens(ctx)
	if err != nil {
		return fmt.Errorf("read credential: %w", err)
	}
	if time.Until(expiry) > m.lookahead() {
		// Another caller refreshed while we waited on the lock.
		return nil
	}
	if refresh == "" {
		return ErrNoRefreshToken
	}

	policy := m.policy()
	var lastErr error
	for attempt := 0; attempt < m.maxAttempts(); attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(policy.Delay(attempt - 1)):
			}
		}
		telemetry.TokenRefreshes.Inc()
		res, err := m.OAuth.Refresh(ctx, refresh)
		if err == nil {
			newRefresh := res.RefreshToken
			if newRefresh == "" {
				newRefresh = refresh
			}
			newExpiry := twitchapi.ComputeExpiry(res.ExpiresIn)
			if err := m.Store.SaveTokens(ctx, res.AccessToken, newRefresh, newExpiry, userID, joinScopes(res.Scope)); err != nil {
				return fmt.Errorf("persist refreshed credential: %w", err)
			}
			slog.Info("token refreshed", slog.Time("expires_at", newExpiry), slog.String("component", "auth"))
			return nil
		}
		var apiErr *twitchapi.APIError
		if errors.As(err, &apiErr) && apiErr.IsRejection() {
			// Provider rejected the grant: the refresh token is dead. Force
			// re-authorization rather than retrying forever.
			slog.Warn("refresh token rejected; clearing stored credential", slog.Int("status", apiErr.StatusCode), slog.String("component", "auth"))
			if clearErr := m.Store.ClearTokens(ctx); clearErr != nil {
				slog.Error("failed to clear credential after rejection", slog.Any("err", clearErr), slog.String("component", "auth"))
			}
			return ErrReauthRequired
		}
		lastErr = err
		slog.Warn("token refresh attempt failed", slog.Int("attempt", attempt+1), slog.Any("err", err), slog.String("component", "auth"))
	}
	return fmt.Errorf("refresh exhausted %d attempts: %w", m.maxAttempts(), lastErr)
}

// GetValidAccessToken returns the stored token if it is valid beyond the
// lookahead window; otherwise it attempts a refresh first. It never returns a
// token past its recorded expiry.
func (m *Manager) GetValidAccessToken(ctx context.Context) (string, bool) {
	access, _, expiry, _, err := m.Store.GetTokens(ctx)
	if err != nil {
		slog.Warn("credential read failed", slog.Any("err", err), slog.String("component", "auth"))
		return "", false
	}
	if access != "" && time.Until(expiry) > m.lookahead() {
		return access, true
	}
	if err := m.RefreshAccessToken(ctx); err != nil {
		slog.Warn("proactive refresh failed", slog.Any("err", err), slog.String("component", "auth"))
		return "", false
	}
	access, _, expiry, _, err = m.Store.GetTokens(ctx)
	if err != nil || access == "" || !time.Now().Before(expiry) {
		return "", false
	}
	return access, true
}

// GetToken adapts the manager to twitchapi.TokenProvider.
func (m *Manager) GetToken(ctx context.Context) (string, error) {
	tok, ok := m.GetValidAccessToken(ctx)
	if !ok {
		return "", errors.New("auth: no valid access token available")
	}
	return tok, nil
}

// Logout clears all persisted credential state unconditionally.
func (m *Manager) Logout(ctx context.Context) error {
	if err := m.Store.ClearTokens(ctx); err != nil {
		return fmt.Errorf("clear credential: %w", err)
	}
	slog.Info("logged out; credential cleared", slog.String("component", "auth"))
	return nil
}

// StartRefresher launches a goroutine that periodically checks the stored
// credential and refreshes it when expiry falls within the lookahead window.
func (m *Manager) StartRefresher(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	// Randomize initial delay to spread load across instances.
	//nolint:gosec // G404: math/rand is sufficient for scheduling jitter, not used for security
	initialJitter := time.Duration(mrand.Int63n(int64(interval / 2)))
	go func() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(initialJitter):
		}
		for {
			// Per-iteration jitter (+-20% of interval) for scheduling diversity.
			jitterRange := int64(interval / 5)
			//nolint:gosec // G404: math/rand is sufficient for scheduling jitter, not used for security
			jitter := time.Duration(mrand.Int63n(jitterRange*2) - jitterRange)
			nextSleep := interval + jitter
			if nextSleep < interval/2 {
				nextSleep = interval / 2
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(nextSleep):
			}
			access, refresh, expiry, _, err := m.Store.GetTokens(ctx)
			if err != nil || access == "" || refresh == "" {
				continue
			}
			if time.Until(expiry) > m.lookahead() {
				continue
			}
			rctx, cancel := context.WithTimeout(ctx, 15*time.Second)
			if err := m.RefreshAccessToken(rctx); err != nil {
				slog.Warn("scheduled refresh failed", slog.Any("err", err), slog.String("component", "auth"))
			}
			cancel()
		}
	}()
}

func joinScopes(scopes []string) string {
	return strings.Join(scopes, " ")
}
