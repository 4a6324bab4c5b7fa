package db

import (
	"context"
	"database/sql"
	"time"
)

// CredentialStore adapts the oauth_tokens and oauth_states tables to the
// auth.Store contract. One row per provider; this service only uses "twitch".
type CredentialStore struct {
	DB       *sql.DB
	Provider string
}

func NewCredentialStore(dbx *sql.DB) *CredentialStore {
	return &CredentialStore{DB: dbx, Provider: "twitch"}
}

func (s *CredentialStore) SaveTokens(ctx context.Context, access, refresh string, expiry time.Time, userID, scope string) error {
	return UpsertOAuthToken(ctx, s.DB, s.Provider, access, refresh, expiry, scope, userID)
}

func (s *CredentialStore) GetTokens(ctx context.Context) (access, refresh string, expiry time.Time, userID string, err error) {
	access, refresh, expiry, _, userID, err = GetOAuthToken(ctx, s.DB, s.Provider)
	return access, refresh, expiry, userID, err
}

func (s *CredentialStore) HasValidTokens(ctx context.Context) bool {
	access, _, expiry, _, err := s.GetTokens(ctx)
	return err == nil && access != "" && time.Now().Before(expiry)
}

func (s *CredentialStore) ClearTokens(ctx context.Context) error {
	return DeleteOAuthToken(ctx, s.DB, s.Provider)
}

func (s *CredentialStore) PutPendingFlow(ctx context.Context, state, verifier string) error {
	return PutOAuthState(ctx, s.DB, state, verifier)
}

func (s *CredentialStore) ConsumePendingFlow(ctx context.Context, state string) (string, bool, error) {
	return ConsumeOAuthState(ctx, s.DB, state)
}
