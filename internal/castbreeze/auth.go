package castbreeze

import (
	"context"
	"log"
	"net/url"
)

// AuthManager owns the OAuth token lifecycle against the CastBreeze cloud:
// authorization URL construction, code exchange, refresh, and the whoami
// liveness probe. It holds no token state itself.
type AuthManager struct {
	gateway *Gateway
	logger  *log.Logger
}

// NewAuthManager creates an auth manager backed by the given gateway.
func NewAuthManager(gateway *Gateway, logger *log.Logger) *AuthManager {
	return &AuthManager{gateway: gateway, logger: logger}
}

// AuthorizeURL builds the browser redirect for the consent step. PKCE
// challenge generation is the host's concern; the connector only supplies
// client identity, scope, and state pass-through.
func (m *AuthManager) AuthorizeURL(state, redirectURI string) string {
	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", ClientID)
	q.Set("scope", DefaultScope)
	if redirectURI != "" {
		q.Set("redirect_uri", redirectURI)
	}
	if state != "" {
		q.Set("state", state)
	}
	return m.gateway.BaseURL() + pathAuthorize + "?" + q.Encode()
}

// ExchangeCode trades an authorization code plus PKCE verifier for a token
// pair. Any non-200 reply fails the exchange; there is nothing to retry.
func (m *AuthManager) ExchangeCode(ctx context.Context, code, redirectURI, codeVerifier string) (TokenState, error) {
	if code == "" {
		return TokenState{}, NewError(KindMissingCredential, "authorization code is required")
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", redirectURI)
	form.Set("client_id", ClientID)
	form.Set("code_verifier", codeVerifier)

	resp, err := m.gateway.PostForm(ctx, pathToken, form)
	if err != nil || resp.Status != 200 {
		m.logger.Printf("castbreeze: token exchange failed: %v", err)
		return TokenState{}, wrapExchange(err, resp, KindTokenExchangeFailed, "token exchange failed")
	}

	state, err := tokenStateFrom(resp)
	if err != nil {
		return TokenState{}, err
	}
	m.logger.Printf("castbreeze: token exchange successful, expires_in=%d scope=%q", state.ExpiresIn, state.Scope)
	return state, nil
}

// Refresh trades a refresh token for a new access token. When the token
// endpoint omits a refresh_token in its reply the current one is retained,
// since the remote rotates refresh tokens only sometimes.
func (m *AuthManager) Refresh(ctx context.Context, current TokenState) (TokenState, error) {
	if current.RefreshToken == "" {
		return TokenState{}, NewError(KindMissingCredential, "no refresh token available")
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", current.RefreshToken)
	form.Set("client_id", ClientID)

	resp, err := m.gateway.PostForm(ctx, pathToken, form)
	if err != nil || resp.Status != 200 {
		m.logger.Printf("castbreeze: token refresh failed: %v", err)
		return TokenState{}, wrapExchange(err, resp, KindRefreshFailed, "token refresh failed")
	}

	state, err := tokenStateFrom(resp)
	if err != nil {
		return TokenState{}, err
	}

	rotated := state.RefreshToken != ""
	if !rotated {
		state.RefreshToken = current.RefreshToken
	}
	m.logger.Printf("castbreeze: token refresh successful, rotated_refresh_token=%t expires_in=%d", rotated, state.ExpiresIn)
	return state, nil
}

// TestLiveness probes whoami with the given access token. Auth-flow errors
// from the classifier pass through so the caller can refresh and retry; every
// other failure is an auth test failure.
func (m *AuthManager) TestLiveness(ctx context.Context, accessToken string) (LivenessResult, error) {
	if accessToken == "" {
		return LivenessResult{}, NewError(KindMissingCredential, "no access token available")
	}

	resp, err := m.gateway.GetJSON(ctx, pathWhoami, BearerDecorator(accessToken))
	if err != nil {
		if isAuthFlowError(err) {
			return LivenessResult{}, err
		}
		return LivenessResult{}, wrapComponent(err, resp, KindAuthTestFailed, "auth test failed")
	}
	if resp.Status != 200 {
		return LivenessResult{}, newRemoteError(KindAuthTestFailed, "auth test failed", resp)
	}

	result := LivenessResult{Authenticated: true}
	for key, val := range resp.Parsed {
		if flag, ok := val.(bool); ok {
			if result.Flags == nil {
				result.Flags = make(map[string]bool)
			}
			result.Flags[key] = flag
		}
	}
	return result, nil
}

// wrapExchange folds any failure of a token-endpoint call, classified or not,
// into the given kind. Refreshing in response to a failed refresh would be
// circular, so auth-flow kinds do not survive here.
func wrapExchange(err error, resp *Response, kind ErrorKind, message string) error {
	if resp != nil {
		return newRemoteError(kind, message+": "+remoteDescription(resp), resp)
	}
	if err != nil {
		return &Error{Kind: kind, Message: message + ": " + err.Error()}
	}
	return NewError(kind, message)
}

// tokenStateFrom validates and decodes a 200 token-endpoint reply.
// token_type defaults to Bearer when the remote omits it.
func tokenStateFrom(resp *Response) (TokenState, error) {
	accessToken := resp.StringField("access_token")
	if accessToken == "" {
		return TokenState{}, newRemoteError(KindMalformedTokenResponse, "token response missing access_token", resp)
	}

	state := TokenState{
		AccessToken:  accessToken,
		RefreshToken: resp.StringField("refresh_token"),
		TokenType:    resp.StringField("token_type"),
		Scope:        resp.StringField("scope"),
	}
	if state.TokenType == "" {
		state.TokenType = "Bearer"
	}
	if n, ok := resp.Parsed["expires_in"].(float64); ok {
		state.ExpiresIn = int(n)
	}
	return state, nil
}
