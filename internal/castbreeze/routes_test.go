package castbreeze

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

type capturingPublisher struct {
	events []string
}

func (p *capturingPublisher) Publish(eventType string, payload any) {
	p.events = append(p.events, eventType)
}

func newTestRouter(t *testing.T, backend http.HandlerFunc) (*chi.Mux, *Repository, *capturingPublisher) {
	t.Helper()
	service, repo := newTestService(t, backend)
	publisher := &capturingPublisher{}
	router := chi.NewRouter()
	RegisterRoutes(router, service, publisher)
	return router, repo, publisher
}

func doJSON(t *testing.T, router http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("{}")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var parsed map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &parsed))
	}
	return rec, parsed
}

func TestAuthStartRoute(t *testing.T) {
	router, _, _ := newTestRouter(t, func(w http.ResponseWriter, r *http.Request) {})

	rec, body := doJSON(t, router, "GET", "/v1/castbreeze/auth/start?state=s1&redirect_uri=https://host.example/cb", "")
	require.Equal(t, 200, rec.Code)
	require.Equal(t, "authorize_url", body["object"])
	require.Contains(t, body["url"], "/oauth/authorize")
	require.Contains(t, body["url"], "state=s1")
}

func TestAuthStatusRouteDisconnected(t *testing.T) {
	router, _, _ := newTestRouter(t, func(w http.ResponseWriter, r *http.Request) {})

	rec, body := doJSON(t, router, "GET", "/v1/castbreeze/auth/status", "")
	require.Equal(t, 200, rec.Code)
	require.Equal(t, false, body["connected"])
}

func TestGroupsRouteNotAuthenticated(t *testing.T) {
	router, _, _ := newTestRouter(t, func(w http.ResponseWriter, r *http.Request) {})

	rec, body := doJSON(t, router, "GET", "/v1/castbreeze/groups", "")
	require.Equal(t, 401, rec.Code)
	errBody := body["error"].(map[string]any)
	require.Equal(t, "NOT_AUTHENTICATED", errBody["code"])
	require.Equal(t, "authentication_error", errBody["type"])
}

func TestGroupsRouteListsOptions(t *testing.T) {
	router, repo, _ := newTestRouter(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v2/sonos/households":
			w.Write([]byte(`{"households":[{"id":"hh-1"}]}`))
		default:
			w.Write([]byte(`{"groups":[{"id":"g1","name":"Kitchen"}]}`))
		}
	})
	seedToken(t, repo, "at-1", "rt-1")

	rec, body := doJSON(t, router, "GET", "/v1/castbreeze/groups", "")
	require.Equal(t, 200, rec.Code)
	require.Equal(t, "list", body["object"])
	data := body["data"].([]any)
	require.Len(t, data, 2)
	first := data[0].(map[string]any)
	require.Equal(t, "*", first["id"])
	require.Equal(t, "All Groups", first["name"])
}

func TestPlayRouteValidatesURL(t *testing.T) {
	router, _, _ := newTestRouter(t, func(w http.ResponseWriter, r *http.Request) {})

	rec, body := doJSON(t, router, "POST", "/v1/castbreeze/play", `{"groups":["g1"]}`)
	require.Equal(t, 400, rec.Code)
	errBody := body["error"].(map[string]any)
	require.Equal(t, "VALIDATION_ERROR", errBody["code"])
}

func TestPlayRoutePublishesOutcome(t *testing.T) {
	router, repo, publisher := newTestRouter(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v2/extended/playUrl", r.URL.Path)
		w.Write([]byte(`{"successful":[{"groupId":"g1","sessionId":"s1"}],"failed":[]}`))
	})
	seedToken(t, repo, "at-1", "rt-1")

	rec, body := doJSON(t, router, "POST", "/v1/castbreeze/play", `{"url":"https://cdn.example/a.mp3","volume":0}`)
	require.Equal(t, 200, rec.Code)
	require.Equal(t, "playback", body["object"])
	require.Equal(t, "playing", body["status"])
	require.Equal(t, "s1", body["primary_session_id"])
	require.Equal(t, float64(0), body["applied_volume"])
	require.Equal(t, "*", body["requested_targets"])
	require.Equal(t, []string{"playback.completed"}, publisher.events)
}

func TestAudioClipRoute(t *testing.T) {
	router, repo, publisher := newTestRouter(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v2/sonos/players/p1/audioClip", r.URL.Path)
		w.Write([]byte(`{"id":"clip-1","name":"Zapier Audio Clip"}`))
	})
	seedToken(t, repo, "at-1", "rt-1")

	rec, body := doJSON(t, router, "POST", "/v1/castbreeze/players/p1/audioClip", `{"file":"https://cdn.example/d.mp3"}`)
	require.Equal(t, 200, rec.Code)
	require.Equal(t, "audio_clip", body["object"])
	require.Equal(t, "scheduled", body["status"])
	require.Equal(t, "p1", body["player_id"])
	require.Equal(t, []string{"audio_clip.scheduled"}, publisher.events)
}

func TestAudioClipRouteMissingFile(t *testing.T) {
	router, repo, _ := newTestRouter(t, func(w http.ResponseWriter, r *http.Request) {})
	seedToken(t, repo, "at-1", "rt-1")

	rec, body := doJSON(t, router, "POST", "/v1/castbreeze/players/p1/audioClip", `{}`)
	require.Equal(t, 400, rec.Code)
	errBody := body["error"].(map[string]any)
	require.Equal(t, "MISSING_FILE", errBody["code"])
}

func TestTerminalAuthFailureMapsTo401(t *testing.T) {
	router, repo, _ := newTestRouter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(401)
		w.Write([]byte(`{"error":"revoked"}`))
	})
	seedToken(t, repo, "at-dead", "rt-1")

	rec, body := doJSON(t, router, "POST", "/v1/castbreeze/auth/test", "")
	require.Equal(t, 401, rec.Code)
	errBody := body["error"].(map[string]any)
	require.Equal(t, "TERMINAL_AUTH_FAILURE", errBody["code"])
}

func TestPermissionDeniedMapsTo403(t *testing.T) {
	router, repo, _ := newTestRouter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(403)
		w.Write([]byte(`{}`))
	})
	seedToken(t, repo, "at-1", "rt-1")

	rec, body := doJSON(t, router, "GET", "/v1/castbreeze/groups", "")
	require.Equal(t, 403, rec.Code)
	errBody := body["error"].(map[string]any)
	require.Equal(t, "PERMISSION_DENIED", errBody["code"])
}

func TestNoHouseholdsMapsTo404(t *testing.T) {
	router, repo, _ := newTestRouter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"households":[]}`))
	})
	seedToken(t, repo, "at-1", "rt-1")

	rec, body := doJSON(t, router, "GET", "/v1/castbreeze/players", "")
	require.Equal(t, 404, rec.Code)
	errBody := body["error"].(map[string]any)
	require.Equal(t, "NO_HOUSEHOLDS", errBody["code"])
}

func TestDisconnectRoute(t *testing.T) {
	router, repo, _ := newTestRouter(t, func(w http.ResponseWriter, r *http.Request) {})
	seedToken(t, repo, "at-1", "rt-1")

	rec, body := doJSON(t, router, "POST", "/v1/castbreeze/auth/disconnect", "")
	require.Equal(t, 200, rec.Code)
	require.Equal(t, false, body["connected"])

	token, err := repo.GetToken(context.Background())
	require.NoError(t, err)
	require.Nil(t, token)
}
