package castbreeze

import "time"

// CastBreeze cloud API constants.
const (
	DefaultAPIBase = "https://api.casttosonos.com"
	ClientID       = "zapier-client-1"
	DefaultScope   = "playback-control-all"
	AppID          = "com.casttosonos.zapier"

	// WildcardGroup is the reserved selector value meaning "all groups".
	// It is never a real group identifier.
	WildcardGroup = "*"

	// audioClipName is the fixed display name attached to every clip.
	audioClipName = "Zapier Audio Clip"
)

// API paths, relative to the base URL.
const (
	pathToken      = "/oauth/token"
	pathAuthorize  = "/oauth/authorize"
	pathWhoami     = "/api/v2/whoami"
	pathHouseholds = "/api/v2/sonos/households"
	pathGroupsFmt  = "/api/v2/sonos/households/%s/groups"
	pathPlayURL    = "/api/v2/extended/playUrl"
	pathClipFmt    = "/api/v2/sonos/players/%s/audioClip"
)

// TokenState is the OAuth credential pair as the token endpoint reports it.
// The connector never caches it beyond the current call; the Repository owns
// persistence.
type TokenState struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in,omitempty"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope,omitempty"`
}

// StoredToken is the persisted form of TokenState, with expiry resolved to an
// absolute instant.
type StoredToken struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	TokenType    string    `json:"token_type"`
	Scope        string    `json:"scope"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

// IsExpired returns true if the token has expired.
func (t *StoredToken) IsExpired() bool {
	return time.Now().After(t.ExpiresAt)
}

// ExpiresWithin returns true if the token expires within the given duration.
func (t *StoredToken) ExpiresWithin(d time.Duration) bool {
	return time.Now().Add(d).After(t.ExpiresAt)
}

// State rebuilds the wire-shaped credential pair from the stored row.
func (t *StoredToken) State() TokenState {
	return TokenState{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    t.TokenType,
		Scope:        t.Scope,
	}
}

// defaultTokenTTL is assumed when the token endpoint omits expires_in, so the
// refresher errs on the side of refreshing early.
const defaultTokenTTL = time.Hour

// StoredFromState converts a fresh TokenState into its persisted form.
func StoredFromState(state TokenState, now time.Time) *StoredToken {
	ttl := defaultTokenTTL
	if state.ExpiresIn > 0 {
		ttl = time.Duration(state.ExpiresIn) * time.Second
	}
	return &StoredToken{
		AccessToken:  state.AccessToken,
		RefreshToken: state.RefreshToken,
		ExpiresAt:    now.Add(ttl),
		TokenType:    state.TokenType,
		Scope:        state.Scope,
		CreatedAt:    now,
	}
}

// ConnectionStatus reports the stored credential state to the host.
type ConnectionStatus struct {
	Connected   bool       `json:"connected"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	ConnectedAt *time.Time `json:"connected_at,omitempty"`
	Scope       string     `json:"scope,omitempty"`
}

// LivenessResult is the outcome of the whoami probe. Flags carries whatever
// boolean capability flags the remote reports; the host renders them as a
// connection health label.
type LivenessResult struct {
	Authenticated bool            `json:"authenticated"`
	Flags         map[string]bool `json:"flags,omitempty"`
}

// Household is a top-level grouping of speakers under one account/location.
type Household struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

type householdsResponse struct {
	Households []Household `json:"households"`
}

// namedResource is the id/name pair the groups endpoint returns for both
// groups and players.
type namedResource struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

type groupsResponse struct {
	Groups  []namedResource `json:"groups"`
	Players []namedResource `json:"players,omitempty"`
}

// Option is a display-ready playback target: a speaker group or a player with
// a synthesized, disambiguated name.
type Option struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Topology is the merged discovery result. Both the groups-facing and the
// players-facing callers consume the same computation.
type Topology struct {
	Groups  []Option `json:"groups"`
	Players []Option `json:"players"`
}

// playRequest is the body of the extended playUrl command. Volume is a
// pointer so zero transmits and absent omits.
type playRequest struct {
	Groups   TargetSelector `json:"groups"`
	URL      string         `json:"url"`
	Volume   *int           `json:"volume,omitempty"`
	Metadata map[string]any `json:"metadata"`
}

type playResult struct {
	Successful []struct {
		GroupID   string `json:"groupId"`
		SessionID string `json:"sessionId"`
	} `json:"successful"`
	Failed []struct {
		GroupID string `json:"groupId"`
		Error   string `json:"error"`
	} `json:"failed"`
}

// PlaybackOutcome is the normalized result of a play command. Status is
// "playing" iff at least one group succeeded. Ephemeral: returned once per
// invocation, never persisted.
type PlaybackOutcome struct {
	Object            string         `json:"object,omitempty"`
	PrimarySessionID  string         `json:"primary_session_id"`
	MediaURL          string         `json:"url"`
	RequestedTargets  TargetSelector `json:"requested_targets"`
	SucceededGroupIDs []string       `json:"succeeded_group_ids"`
	FailedCount       int            `json:"failed_count"`
	AppliedVolume     *int           `json:"applied_volume,omitempty"`
	Status            string         `json:"status"`
	TimestampUTC      string         `json:"timestamp_utc"`
}

// audioClipRequest is the body of the audioClip command.
type audioClipRequest struct {
	Name      string `json:"name"`
	AppID     string `json:"appId"`
	ClipType  string `json:"clipType"`
	StreamURL string `json:"streamUrl,omitempty"`
	Priority  string `json:"priority,omitempty"`
	Volume    *int   `json:"volume,omitempty"`
}

type audioClipResult struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status,omitempty"`
}

// AudioClipOutcome is the normalized result of an audio clip command.
type AudioClipOutcome struct {
	Object       string `json:"object,omitempty"`
	ID           string `json:"id"`
	PlayerID     string `json:"player_id"`
	Name         string `json:"name"`
	Status       string `json:"status"`
	TimestampUTC string `json:"timestamp_utc"`
}

// timestampLayout matches the millisecond ISO form the host expects.
const timestampLayout = "2006-01-02T15:04:05.000Z"

func nowTimestamp() string {
	return time.Now().UTC().Format(timestampLayout)
}
