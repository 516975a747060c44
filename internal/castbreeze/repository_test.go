package castbreeze

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/castbreeze/zapier-integration/internal/db"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	pair, err := db.Init(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { pair.Close() })
	return NewRepository(pair)
}

func TestRepositoryGetTokenEmpty(t *testing.T) {
	repo := newTestRepository(t)
	token, err := repo.GetToken(context.Background())
	require.NoError(t, err)
	require.Nil(t, token)
}

func TestRepositorySaveAndGetToken(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	expiresAt := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	err := repo.SaveToken(ctx, &StoredToken{
		AccessToken:  "at-1",
		RefreshToken: "rt-1",
		ExpiresAt:    expiresAt,
		TokenType:    "Bearer",
		Scope:        DefaultScope,
	})
	require.NoError(t, err)

	token, err := repo.GetToken(ctx)
	require.NoError(t, err)
	require.NotNil(t, token)
	require.Equal(t, "at-1", token.AccessToken)
	require.Equal(t, "rt-1", token.RefreshToken)
	require.True(t, expiresAt.Equal(token.ExpiresAt))
	require.Equal(t, "Bearer", token.TokenType)
	require.Equal(t, DefaultScope, token.Scope)
	require.False(t, token.CreatedAt.IsZero())
	require.False(t, token.IsExpired())
	require.False(t, token.ExpiresWithin(30*time.Minute))
	require.True(t, token.ExpiresWithin(2*time.Hour))
}

func TestRepositoryUpsertKeepsCreatedAt(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	first := StoredFromState(TokenState{AccessToken: "at-1", RefreshToken: "rt-1", ExpiresIn: 60, TokenType: "Bearer"}, time.Now().UTC())
	require.NoError(t, repo.SaveToken(ctx, first))

	saved, err := repo.GetToken(ctx)
	require.NoError(t, err)

	second := StoredFromState(TokenState{AccessToken: "at-2", RefreshToken: "rt-1", ExpiresIn: 3600, TokenType: "Bearer"}, time.Now().UTC())
	second.CreatedAt = saved.CreatedAt
	require.NoError(t, repo.SaveToken(ctx, second))

	token, err := repo.GetToken(ctx)
	require.NoError(t, err)
	require.Equal(t, "at-2", token.AccessToken)
	require.True(t, saved.CreatedAt.Equal(token.CreatedAt))
}

func TestRepositoryDeleteToken(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	// deleting an absent row is fine
	require.NoError(t, repo.DeleteToken(ctx))

	require.NoError(t, repo.SaveToken(ctx, StoredFromState(TokenState{AccessToken: "at", RefreshToken: "rt", TokenType: "Bearer"}, time.Now().UTC())))
	require.NoError(t, repo.DeleteToken(ctx))

	token, err := repo.GetToken(ctx)
	require.NoError(t, err)
	require.Nil(t, token)
}

func TestStoredFromStateDefaultsTTL(t *testing.T) {
	now := time.Now().UTC()
	stored := StoredFromState(TokenState{AccessToken: "at", TokenType: "Bearer"}, now)
	require.True(t, stored.ExpiresAt.Equal(now.Add(time.Hour)))

	stored = StoredFromState(TokenState{AccessToken: "at", ExpiresIn: 120, TokenType: "Bearer"}, now)
	require.True(t, stored.ExpiresAt.Equal(now.Add(2*time.Minute)))
}
