package castbreeze

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/castbreeze/zapier-integration/internal/api"
	"github.com/castbreeze/zapier-integration/internal/apperrors"
)

// OutcomePublisher receives playback and clip outcomes for fan-out to
// listeners. A nil publisher disables fan-out.
type OutcomePublisher interface {
	Publish(eventType string, payload any)
}

// RegisterRoutes mounts the connector endpoints under /v1/castbreeze.
func RegisterRoutes(router chi.Router, service *Service, publisher OutcomePublisher) {
	router.Route("/v1/castbreeze", func(r chi.Router) {
		r.Method("GET", "/auth/start", api.Handler(handleAuthStart(service)))
		r.Method("POST", "/auth/exchange", api.Handler(handleAuthExchange(service)))
		r.Method("POST", "/auth/refresh", api.Handler(handleAuthRefresh(service)))
		r.Method("GET", "/auth/status", api.Handler(handleAuthStatus(service)))
		r.Method("POST", "/auth/test", api.Handler(handleAuthTest(service)))
		r.Method("POST", "/auth/disconnect", api.Handler(handleAuthDisconnect(service)))

		r.Method("GET", "/groups", api.Handler(handleListGroups(service)))
		r.Method("GET", "/players", api.Handler(handleListPlayers(service)))

		r.Method("POST", "/play", api.Handler(handlePlay(service, publisher)))
		r.Method("POST", "/players/{playerId}/audioClip", api.Handler(handleAudioClip(service, publisher)))
	})
}

func handleAuthStart(service *Service) func(http.ResponseWriter, *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		state := r.URL.Query().Get("state")
		redirectURI := r.URL.Query().Get("redirect_uri")
		return api.WriteAction(w, http.StatusOK, map[string]any{
			"object": "authorize_url",
			"url":    service.AuthorizeURL(state, redirectURI),
		})
	}
}

type exchangeRequest struct {
	Code         string `json:"code"`
	RedirectURI  string `json:"redirect_uri"`
	CodeVerifier string `json:"code_verifier"`
}

func handleAuthExchange(service *Service) func(http.ResponseWriter, *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		var req exchangeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return apperrors.NewValidationError("Invalid request body", nil)
		}

		token, err := service.Exchange(r.Context(), req.Code, req.RedirectURI, req.CodeVerifier)
		if err != nil {
			return toAppError(err)
		}
		return api.WriteResource(w, http.StatusOK, map[string]any{
			"object":     "connection",
			"connected":  true,
			"expires_at": api.RFC3339Millis(token.ExpiresAt),
			"scope":      token.Scope,
		})
	}
}

func handleAuthRefresh(service *Service) func(http.ResponseWriter, *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		token, err := service.Refresh(r.Context())
		if err != nil {
			return toAppError(err)
		}
		return api.WriteResource(w, http.StatusOK, map[string]any{
			"object":     "connection",
			"connected":  true,
			"expires_at": api.RFC3339Millis(token.ExpiresAt),
			"scope":      token.Scope,
		})
	}
}

func handleAuthStatus(service *Service) func(http.ResponseWriter, *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		status, err := service.Status(r.Context())
		if err != nil {
			return toAppError(err)
		}
		body := map[string]any{
			"object":    "connection",
			"connected": status.Connected,
			"scope":     status.Scope,
		}
		if status.ExpiresAt != nil {
			body["expires_at"] = api.RFC3339Millis(*status.ExpiresAt)
		}
		if status.ConnectedAt != nil {
			body["connected_at"] = api.RFC3339Millis(*status.ConnectedAt)
		}
		return api.WriteResource(w, http.StatusOK, body)
	}
}

func handleAuthTest(service *Service) func(http.ResponseWriter, *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		result, err := service.TestLiveness(r.Context())
		if err != nil {
			return toAppError(err)
		}
		return api.WriteAction(w, http.StatusOK, map[string]any{
			"object":        "auth_test",
			"authenticated": result.Authenticated,
			"flags":         result.Flags,
		})
	}
}

func handleAuthDisconnect(service *Service) func(http.ResponseWriter, *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		if err := service.Disconnect(r.Context()); err != nil {
			return toAppError(err)
		}
		return api.WriteAction(w, http.StatusOK, map[string]any{
			"object":    "connection",
			"connected": false,
		})
	}
}

func handleListGroups(service *Service) func(http.ResponseWriter, *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		options, err := service.GroupOptions(r.Context())
		if err != nil {
			return toAppError(err)
		}
		return api.WriteList(w, "/v1/castbreeze/groups", options, false)
	}
}

func handleListPlayers(service *Service) func(http.ResponseWriter, *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		options, err := service.PlayerOptions(r.Context())
		if err != nil {
			return toAppError(err)
		}
		return api.WriteList(w, "/v1/castbreeze/players", options, false)
	}
}

type playApiRequest struct {
	URL    string   `json:"url"`
	Groups []string `json:"groups"`
	Volume *int     `json:"volume"`
}

func handlePlay(service *Service, publisher OutcomePublisher) func(http.ResponseWriter, *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		var req playApiRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return apperrors.NewValidationError("Invalid request body", nil)
		}
		if req.URL == "" {
			return apperrors.NewValidationError("url is required", nil)
		}

		outcome, err := service.Play(r.Context(), req.URL, req.Groups, req.Volume)
		if err != nil {
			return toAppError(err)
		}
		outcome.Object = "playback"
		if publisher != nil {
			publisher.Publish("playback.completed", outcome)
		}
		return api.WriteAction(w, http.StatusOK, outcome)
	}
}

type audioClipApiRequest struct {
	ClipType string `json:"clip_type"`
	File     any    `json:"file"`
	Volume   *int   `json:"volume"`
	Priority string `json:"priority"`
}

func handleAudioClip(service *Service, publisher OutcomePublisher) func(http.ResponseWriter, *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		playerID := chi.URLParam(r, "playerId")
		if playerID == "" {
			return apperrors.NewValidationError("playerId is required", nil)
		}

		var req audioClipApiRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return apperrors.NewValidationError("Invalid request body", nil)
		}

		outcome, err := service.PlayClip(r.Context(), playerID, AudioClipParams{
			ClipType: req.ClipType,
			File:     req.File,
			Volume:   req.Volume,
			Priority: req.Priority,
		})
		if err != nil {
			return toAppError(err)
		}
		outcome.Object = "audio_clip"
		if publisher != nil {
			publisher.Publish("audio_clip.scheduled", outcome)
		}
		return api.WriteAction(w, http.StatusOK, outcome)
	}
}

// reconnectRemediation points the host at the consent flow when the grant is
// gone.
func reconnectRemediation() *apperrors.Remediation {
	return &apperrors.Remediation{
		Action:     "authorize",
		Endpoint:   "/v1/castbreeze/auth/start",
		UserAction: "Reconnect your CastBreeze account",
	}
}

// toAppError maps domain errors onto the HTTP error surface. Remote-derived
// failures reuse the upstream status when one is available.
func toAppError(err error) error {
	var cbErr *Error
	if !errors.As(err, &cbErr) {
		return apperrors.NewInternalError("Internal server error")
	}

	code := apperrors.ErrorCode(cbErr.Kind)
	switch cbErr.Kind {
	case KindMissingCredential, KindMissingFile, KindMalformedTokenResponse:
		return apperrors.NewAppError(code, cbErr.Message, http.StatusBadRequest, nil, nil)
	case KindNotAuthenticated, KindTerminalAuthFailure, KindRecoverableAuthFailure, KindRefreshFailed:
		return apperrors.NewAppError(code, cbErr.Message, http.StatusUnauthorized, nil, reconnectRemediation())
	case KindPermissionDenied:
		return apperrors.NewAppError(code, cbErr.Message, http.StatusForbidden, nil, nil)
	case KindNoHouseholds:
		return apperrors.NewAppError(code, cbErr.Message, http.StatusNotFound, nil, nil)
	default:
		status := http.StatusBadGateway
		if cbErr.Status >= 400 {
			status = cbErr.Status
		}
		return apperrors.NewAppError(code, cbErr.Message, status, nil, nil)
	}
}
