package castbreeze

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// tokenKey is the fixed row key: the connector stores exactly one credential
// pair for the single connected account.
const tokenKey = "castbreeze_oauth_token"

// DB is the subset of the database pair the repository needs.
type DB interface {
	Reader() *sql.DB
	Writer() *sql.DB
}

// Repository persists the OAuth token pair in SQLite.
type Repository struct {
	db DB
}

// NewRepository creates a token repository over the given database.
func NewRepository(db DB) *Repository {
	return &Repository{db: db}
}

// SaveToken upserts the single token row.
func (r *Repository) SaveToken(ctx context.Context, token *StoredToken) error {
	now := time.Now().UTC().Format(time.RFC3339)
	createdAt := token.CreatedAt.UTC().Format(time.RFC3339)
	if token.CreatedAt.IsZero() {
		createdAt = now
	}

	_, err := r.db.Writer().ExecContext(ctx, `
		INSERT INTO oauth_tokens (key, access_token, refresh_token, expires_at, token_type, scope, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_at = excluded.expires_at,
			token_type = excluded.token_type,
			scope = excluded.scope,
			updated_at = excluded.updated_at`,
		tokenKey,
		token.AccessToken,
		token.RefreshToken,
		token.ExpiresAt.UTC().Format(time.RFC3339),
		token.TokenType,
		token.Scope,
		createdAt,
		now,
	)
	if err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	return nil
}

// GetToken returns the stored token, or nil when no account is connected.
func (r *Repository) GetToken(ctx context.Context) (*StoredToken, error) {
	var token StoredToken
	var expiresAt, createdAt, updatedAt string

	err := r.db.Reader().QueryRowContext(ctx, `
		SELECT access_token, refresh_token, expires_at, token_type, scope, created_at, updated_at
		FROM oauth_tokens WHERE key = ?`,
		tokenKey,
	).Scan(&token.AccessToken, &token.RefreshToken, &expiresAt, &token.TokenType, &token.Scope, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get token: %w", err)
	}

	token.ExpiresAt, err = time.Parse(time.RFC3339, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("parse expires_at: %w", err)
	}
	if token.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if token.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &token, nil
}

// DeleteToken removes the stored token. Deleting an absent token is not an
// error.
func (r *Repository) DeleteToken(ctx context.Context) error {
	_, err := r.db.Writer().ExecContext(ctx, `DELETE FROM oauth_tokens WHERE key = ?`, tokenKey)
	if err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	return nil
}
