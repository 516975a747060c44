package castbreeze

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, handler http.HandlerFunc) (*Service, *Repository) {
	t.Helper()
	repo := newTestRepository(t)
	gateway := newTestGateway(t, handler)
	return NewService(gateway, repo, testLogger()), repo
}

func seedToken(t *testing.T, repo *Repository, accessToken, refreshToken string) {
	t.Helper()
	err := repo.SaveToken(context.Background(), StoredFromState(TokenState{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    3600,
		TokenType:    "Bearer",
		Scope:        DefaultScope,
	}, time.Now().UTC()))
	require.NoError(t, err)
}

func TestServiceOperationsRequireConnection(t *testing.T) {
	service, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})

	_, err := service.TestLiveness(context.Background())
	require.True(t, IsKind(err, KindNotAuthenticated))

	_, err = service.Discover(context.Background())
	require.True(t, IsKind(err, KindNotAuthenticated))

	_, err = service.Play(context.Background(), "https://cdn.example/a.mp3", nil, nil)
	require.True(t, IsKind(err, KindNotAuthenticated))

	_, err = service.Refresh(context.Background())
	require.True(t, IsKind(err, KindNotAuthenticated))
}

func TestServiceRefreshesAndRetriesOnceOnStaleToken(t *testing.T) {
	var whoamiCalls, refreshCalls atomic.Int32
	service, repo := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth/token":
			refreshCalls.Add(1)
			w.Write([]byte(`{"access_token":"at-fresh","expires_in":3600,"token_type":"Bearer"}`))
		case "/api/v2/whoami":
			whoamiCalls.Add(1)
			if r.Header.Get("Authorization") == "Bearer at-stale" {
				w.WriteHeader(401)
				w.Write([]byte(`{"error":"token_expired"}`))
				return
			}
			require.Equal(t, "Bearer at-fresh", r.Header.Get("Authorization"))
			w.Write([]byte(`{"userId":"u1"}`))
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	})
	seedToken(t, repo, "at-stale", "rt-1")

	result, err := service.TestLiveness(context.Background())
	require.NoError(t, err)
	require.True(t, result.Authenticated)
	require.Equal(t, int32(2), whoamiCalls.Load())
	require.Equal(t, int32(1), refreshCalls.Load())

	// the refreshed token was persisted, refresh_token preserved
	token, err := repo.GetToken(context.Background())
	require.NoError(t, err)
	require.Equal(t, "at-fresh", token.AccessToken)
	require.Equal(t, "rt-1", token.RefreshToken)
}

func TestServiceDoesNotRetryTerminalFailure(t *testing.T) {
	var whoamiCalls atomic.Int32
	service, repo := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v2/whoami", r.URL.Path)
		whoamiCalls.Add(1)
		w.WriteHeader(401)
		w.Write([]byte(`{"error":"account_revoked"}`))
	})
	seedToken(t, repo, "at-dead", "rt-1")

	_, err := service.TestLiveness(context.Background())
	require.True(t, IsKind(err, KindTerminalAuthFailure))
	require.Equal(t, int32(1), whoamiCalls.Load())
}

func TestServiceRetriesExactlyOnce(t *testing.T) {
	var whoamiCalls atomic.Int32
	service, repo := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth/token":
			w.Write([]byte(`{"access_token":"at-still-stale","expires_in":3600,"token_type":"Bearer"}`))
		case "/api/v2/whoami":
			whoamiCalls.Add(1)
			w.WriteHeader(401)
			w.Write([]byte(`{"error":"token_expired"}`))
		}
	})
	seedToken(t, repo, "at-stale", "rt-1")

	_, err := service.TestLiveness(context.Background())
	require.True(t, IsKind(err, KindRecoverableAuthFailure))
	require.Equal(t, int32(2), whoamiCalls.Load())
}

func TestServiceSurfacesRefreshFailureDuringRetry(t *testing.T) {
	service, repo := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth/token":
			w.WriteHeader(400)
			w.Write([]byte(`{"error":"invalid_grant","error_description":"refresh token revoked"}`))
		case "/api/v2/whoami":
			w.WriteHeader(401)
			w.Write([]byte(`{"error":"token_expired"}`))
		}
	})
	seedToken(t, repo, "at-stale", "rt-dead")

	_, err := service.TestLiveness(context.Background())
	require.True(t, IsKind(err, KindRefreshFailed))
}

func TestServiceExchangePersistsToken(t *testing.T) {
	service, repo := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/oauth/token", r.URL.Path)
		w.Write([]byte(`{"access_token":"at-1","refresh_token":"rt-1","expires_in":3600,"scope":"playback-control-all"}`))
	})

	stored, err := service.Exchange(context.Background(), "code-1", "https://host.example/cb", "verifier")
	require.NoError(t, err)
	require.Equal(t, "at-1", stored.AccessToken)

	token, err := repo.GetToken(context.Background())
	require.NoError(t, err)
	require.Equal(t, "at-1", token.AccessToken)
	require.Equal(t, "Bearer", token.TokenType)

	status, err := service.Status(context.Background())
	require.NoError(t, err)
	require.True(t, status.Connected)
	require.NotNil(t, status.ExpiresAt)
}

func TestServiceDisconnect(t *testing.T) {
	service, repo := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})
	seedToken(t, repo, "at-1", "rt-1")

	require.NoError(t, service.Disconnect(context.Background()))

	status, err := service.Status(context.Background())
	require.NoError(t, err)
	require.False(t, status.Connected)
}

func TestServiceRefreshIfExpiring(t *testing.T) {
	var refreshCalls atomic.Int32
	service, repo := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/oauth/token", r.URL.Path)
		refreshCalls.Add(1)
		w.Write([]byte(`{"access_token":"at-new","expires_in":3600,"token_type":"Bearer"}`))
	})

	// no token stored, nothing to do
	refreshed, err := service.RefreshIfExpiring(context.Background(), 30*time.Minute)
	require.NoError(t, err)
	require.False(t, refreshed)

	// expires in an hour, 30 minute buffer, still fresh
	seedToken(t, repo, "at-1", "rt-1")
	refreshed, err = service.RefreshIfExpiring(context.Background(), 30*time.Minute)
	require.NoError(t, err)
	require.False(t, refreshed)
	require.Equal(t, int32(0), refreshCalls.Load())

	// buffer wider than remaining lifetime triggers the refresh
	refreshed, err = service.RefreshIfExpiring(context.Background(), 2*time.Hour)
	require.NoError(t, err)
	require.True(t, refreshed)
	require.Equal(t, int32(1), refreshCalls.Load())
}

func TestServiceGroupOptionsPrependWildcard(t *testing.T) {
	service, repo := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v2/sonos/households":
			w.Write([]byte(`{"households":[{"id":"hh-1"}]}`))
		default:
			w.Write([]byte(`{"groups":[{"id":"g1","name":"Kitchen"}],"players":[{"id":"p1","name":"Shelf"}]}`))
		}
	})
	seedToken(t, repo, "at-1", "rt-1")

	groups, err := service.GroupOptions(context.Background())
	require.NoError(t, err)
	require.Equal(t, []Option{
		{ID: "*", Name: "All Groups"},
		{ID: "g1", Name: "Kitchen"},
	}, groups)

	players, err := service.PlayerOptions(context.Background())
	require.NoError(t, err)
	require.Equal(t, []Option{{ID: "p1", Name: "Shelf"}}, players)
}
