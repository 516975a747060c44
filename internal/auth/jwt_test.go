package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/castbreeze/zapier-integration/internal/config"
)

func testConfig() config.Config {
	return config.Config{
		JWTSecret:                "test-secret-test-secret-test-secret!",
		JWTAccessTokenExpirySec:  3600,
		JWTRefreshTokenExpirySec: 7200,
	}
}

func TestGenerateAndVerifyTokenPair(t *testing.T) {
	cfg := testConfig()

	pair, err := GenerateTokenPair(cfg, TokenPayload{Sub: "client-1", ClientName: "Zapier Prod"})
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	require.Equal(t, 3600, pair.ExpiresInSec)

	payload, err := VerifyToken(cfg, pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "client-1", payload.Sub)
	require.Equal(t, "Zapier Prod", payload.ClientName)
	require.Equal(t, TokenTypeAccess, payload.Type)

	payload, err = VerifyToken(cfg, pair.RefreshToken)
	require.NoError(t, err)
	require.Equal(t, TokenTypeRefresh, payload.Type)
}

func TestVerifyTokenRejectsWrongSecret(t *testing.T) {
	pair, err := GenerateTokenPair(testConfig(), TokenPayload{Sub: "c", ClientName: "n"})
	require.NoError(t, err)

	other := testConfig()
	other.JWTSecret = "another-secret-another-secret-another!"
	_, err = VerifyToken(other, pair.AccessToken)
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestVerifyTokenRejectsGarbage(t *testing.T) {
	_, err := VerifyToken(testConfig(), "not.a.jwt")
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestVerifyTokenRejectsExpired(t *testing.T) {
	cfg := testConfig()
	cfg.JWTAccessTokenExpirySec = -10

	pair, err := GenerateTokenPair(cfg, TokenPayload{Sub: "c", ClientName: "n"})
	require.NoError(t, err)

	_, err = VerifyToken(cfg, pair.AccessToken)
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestRefreshAccessToken(t *testing.T) {
	cfg := testConfig()
	pair, err := GenerateTokenPair(cfg, TokenPayload{Sub: "client-1", ClientName: "Zapier Prod"})
	require.NoError(t, err)

	accessToken, expiresIn, err := RefreshAccessToken(cfg, pair.RefreshToken)
	require.NoError(t, err)
	require.Equal(t, 3600, expiresIn)

	payload, err := VerifyToken(cfg, accessToken)
	require.NoError(t, err)
	require.Equal(t, TokenTypeAccess, payload.Type)
	require.Equal(t, "client-1", payload.Sub)
}

func TestRefreshAccessTokenRejectsAccessToken(t *testing.T) {
	cfg := testConfig()
	pair, err := GenerateTokenPair(cfg, TokenPayload{Sub: "c", ClientName: "n"})
	require.NoError(t, err)

	_, _, err = RefreshAccessToken(cfg, pair.AccessToken)
	require.ErrorIs(t, err, ErrTokenType)
}

func TestPairingStoreLifecycle(t *testing.T) {
	store := NewPairingStore(50 * time.Millisecond)

	code, err := store.Create("req-1")
	require.NoError(t, err)
	require.Len(t, code, 6)

	_, ok, expired := store.Lookup(code)
	require.True(t, ok)
	require.False(t, expired)

	time.Sleep(60 * time.Millisecond)
	_, ok, expired = store.Lookup(code)
	require.True(t, ok)
	require.True(t, expired)

	store.CleanupExpired()
	_, ok, _ = store.Lookup(code)
	require.False(t, ok)
}

func TestPairingStoreConsume(t *testing.T) {
	store := NewPairingStore(time.Minute)
	code, err := store.Create("req-1")
	require.NoError(t, err)

	store.Consume(code)
	_, ok, _ := store.Lookup(code)
	require.False(t, ok)
}
