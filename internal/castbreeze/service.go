package castbreeze

import (
	"context"
	"fmt"
	"log"
	"time"
)

// Service ties the auth manager, topology aggregator, playback dispatcher,
// and token repository together behind the host-facing operations. It is the
// only place that refreshes and retries: the components below it classify and
// propagate, never retry.
type Service struct {
	auth     *AuthManager
	topology *Aggregator
	playback *Dispatcher
	repo     *Repository
	logger   *log.Logger
}

// NewService wires the connector components over one gateway.
func NewService(gateway *Gateway, repo *Repository, logger *log.Logger) *Service {
	return &Service{
		auth:     NewAuthManager(gateway, logger),
		topology: NewAggregator(gateway),
		playback: NewDispatcher(gateway, logger),
		repo:     repo,
		logger:   logger,
	}
}

// AuthorizeURL builds the consent redirect.
func (s *Service) AuthorizeURL(state, redirectURI string) string {
	return s.auth.AuthorizeURL(state, redirectURI)
}

// Exchange trades an authorization code for tokens and persists them.
func (s *Service) Exchange(ctx context.Context, code, redirectURI, codeVerifier string) (*StoredToken, error) {
	state, err := s.auth.ExchangeCode(ctx, code, redirectURI, codeVerifier)
	if err != nil {
		return nil, err
	}
	stored := StoredFromState(state, time.Now().UTC())
	if err := s.repo.SaveToken(ctx, stored); err != nil {
		return nil, fmt.Errorf("persist token: %w", err)
	}
	return stored, nil
}

// Refresh refreshes the stored token and persists the result. The original
// connection time survives refreshes.
func (s *Service) Refresh(ctx context.Context) (*StoredToken, error) {
	existing, err := s.repo.GetToken(ctx)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, NewError(KindNotAuthenticated, "not authenticated with CastBreeze")
	}

	state, err := s.auth.Refresh(ctx, existing.State())
	if err != nil {
		return nil, err
	}

	stored := StoredFromState(state, time.Now().UTC())
	stored.CreatedAt = existing.CreatedAt
	if err := s.repo.SaveToken(ctx, stored); err != nil {
		return nil, fmt.Errorf("persist refreshed token: %w", err)
	}
	return stored, nil
}

// RefreshIfExpiring refreshes only when the stored token is within buffer of
// expiry. The background refresher calls this on its sweep schedule.
func (s *Service) RefreshIfExpiring(ctx context.Context, buffer time.Duration) (bool, error) {
	existing, err := s.repo.GetToken(ctx)
	if err != nil {
		return false, err
	}
	if existing == nil || !existing.ExpiresWithin(buffer) {
		return false, nil
	}
	if _, err := s.Refresh(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Status reports whether an account is connected and when its token expires.
func (s *Service) Status(ctx context.Context) (*ConnectionStatus, error) {
	token, err := s.repo.GetToken(ctx)
	if err != nil {
		return nil, err
	}
	if token == nil {
		return &ConnectionStatus{Connected: false}, nil
	}
	return &ConnectionStatus{
		Connected:   true,
		ExpiresAt:   &token.ExpiresAt,
		ConnectedAt: &token.CreatedAt,
		Scope:       token.Scope,
	}, nil
}

// Disconnect drops the stored token, forcing a fresh consent flow.
func (s *Service) Disconnect(ctx context.Context) error {
	return s.repo.DeleteToken(ctx)
}

// TestLiveness probes whoami with the stored token, refreshing once on a
// recoverable rejection.
func (s *Service) TestLiveness(ctx context.Context) (LivenessResult, error) {
	var result LivenessResult
	err := s.withAccessToken(ctx, func(accessToken string) error {
		var err error
		result, err = s.auth.TestLiveness(ctx, accessToken)
		return err
	})
	return result, err
}

// Discover returns the merged topology, refreshing once on a recoverable
// rejection.
func (s *Service) Discover(ctx context.Context) (*Topology, error) {
	var topology *Topology
	err := s.withAccessToken(ctx, func(accessToken string) error {
		var err error
		topology, err = s.topology.Discover(ctx, accessToken)
		return err
	})
	return topology, err
}

// GroupOptions returns the group choices with the all-groups wildcard
// prepended, so the host always has a valid default selection.
func (s *Service) GroupOptions(ctx context.Context) ([]Option, error) {
	topology, err := s.Discover(ctx)
	if err != nil {
		return nil, err
	}
	options := make([]Option, 0, len(topology.Groups)+1)
	options = append(options, Option{ID: WildcardGroup, Name: "All Groups"})
	options = append(options, topology.Groups...)
	return options, nil
}

// PlayerOptions returns the player choices.
func (s *Service) PlayerOptions(ctx context.Context) ([]Option, error) {
	topology, err := s.Discover(ctx)
	if err != nil {
		return nil, err
	}
	return topology.Players, nil
}

// Play starts URL playback on the selected groups.
func (s *Service) Play(ctx context.Context, mediaURL string, groupIDs []string, volume *int) (*PlaybackOutcome, error) {
	selector := NormalizeSelector(groupIDs)
	var outcome *PlaybackOutcome
	err := s.withAccessToken(ctx, func(accessToken string) error {
		var err error
		outcome, err = s.playback.PlayURL(ctx, accessToken, mediaURL, selector, volume)
		return err
	})
	return outcome, err
}

// PlayClip schedules an audio clip on one player.
func (s *Service) PlayClip(ctx context.Context, playerID string, params AudioClipParams) (*AudioClipOutcome, error) {
	var outcome *AudioClipOutcome
	err := s.withAccessToken(ctx, func(accessToken string) error {
		var err error
		outcome, err = s.playback.PlayAudioClip(ctx, accessToken, playerID, params)
		return err
	})
	return outcome, err
}

// withAccessToken runs fn with the stored access token. On a recoverable
// auth failure it refreshes, persists, and retries exactly once; a second
// rejection propagates as-is. Terminal failures and permission denials never
// trigger a refresh.
func (s *Service) withAccessToken(ctx context.Context, fn func(accessToken string) error) error {
	stored, err := s.repo.GetToken(ctx)
	if err != nil {
		return err
	}
	if stored == nil {
		return NewError(KindNotAuthenticated, "not authenticated with CastBreeze")
	}

	err = fn(stored.AccessToken)
	if err == nil || !IsKind(err, KindRecoverableAuthFailure) {
		return err
	}

	s.logger.Printf("castbreeze: access token rejected, refreshing and retrying once")
	refreshed, rerr := s.Refresh(ctx)
	if rerr != nil {
		return rerr
	}
	return fn(refreshed.AccessToken)
}
