package castbreeze

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Response is the gateway's view of a remote reply. Parsed is non-nil only
// when the body is a JSON object.
type Response struct {
	Status  int
	RawBody []byte
	Parsed  map[string]any
}

// StringField returns the named top-level string field, or "".
func (r *Response) StringField(key string) string {
	if r == nil || r.Parsed == nil {
		return ""
	}
	s, _ := r.Parsed[key].(string)
	return s
}

// RequestDecorator mutates an outgoing request before it is sent. Decorators
// registered on the gateway run first, then per-call ones.
type RequestDecorator func(*http.Request)

// ResponseClassifier inspects a remote reply and may convert it into an
// error. The first non-nil error wins.
type ResponseClassifier func(*Response) error

// Gateway issues every HTTP call the connector makes against the CastBreeze
// cloud. All responses flow through the classifier chain uniformly, no matter
// which component issued the call.
type Gateway struct {
	httpClient  *http.Client
	baseURL     string
	decorators  []RequestDecorator
	classifiers []ResponseClassifier
}

// NewGateway builds a gateway against the given base URL. An empty baseURL
// selects the production API.
func NewGateway(baseURL string, timeout time.Duration) *Gateway {
	if baseURL == "" {
		baseURL = DefaultAPIBase
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Gateway{
		httpClient:  &http.Client{Timeout: timeout},
		baseURL:     strings.TrimRight(baseURL, "/"),
		classifiers: []ResponseClassifier{ClassifyResponse},
	}
}

// BaseURL returns the resolved API base.
func (g *Gateway) BaseURL() string { return g.baseURL }

// Decorate registers a decorator applied to every outgoing request.
func (g *Gateway) Decorate(d RequestDecorator) { g.decorators = append(g.decorators, d) }

// BearerDecorator attaches an access token to a single call.
func BearerDecorator(token string) RequestDecorator {
	return func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// GetJSON issues a GET and classifies the reply.
func (g *Gateway) GetJSON(ctx context.Context, path string, decorators ...RequestDecorator) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return g.do(req, decorators)
}

// PostJSON issues a POST with a JSON body and classifies the reply.
func (g *Gateway) PostJSON(ctx context.Context, path string, body any, decorators ...RequestDecorator) (*Response, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return g.do(req, decorators)
}

// PostForm issues a form-encoded POST and classifies the reply. The OAuth
// token endpoint requires this encoding.
func (g *Gateway) PostForm(ctx context.Context, path string, values url.Values, decorators ...RequestDecorator) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, strings.NewReader(values.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	return g.do(req, decorators)
}

func (g *Gateway) do(req *http.Request, decorators []RequestDecorator) (*Response, error) {
	for _, d := range g.decorators {
		d(req)
	}
	for _, d := range decorators {
		d(req)
	}

	httpResp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("castbreeze api request: %w", err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	resp := &Response{Status: httpResp.StatusCode, RawBody: raw}
	var parsed map[string]any
	if json.Unmarshal(raw, &parsed) == nil {
		resp.Parsed = parsed
	}

	for _, classify := range g.classifiers {
		if cerr := classify(resp); cerr != nil {
			return resp, cerr
		}
	}
	return resp, nil
}

// ClassifyResponse is the single place HTTP status codes become error kinds.
//
//   - 401 with error "invalid_token" or "token_expired" means the access token
//     went stale and a refresh may recover it.
//   - any other 401 means the grant itself is gone and the account must be
//     reconnected.
//   - 403 is a permission problem a refresh cannot fix.
//   - any other >= 400 is a generic remote failure.
func ClassifyResponse(resp *Response) error {
	switch {
	case resp.Status == http.StatusUnauthorized:
		code := resp.StringField("error")
		if code == "invalid_token" || code == "token_expired" {
			return newRemoteError(KindRecoverableAuthFailure, "access token rejected, refresh required", resp)
		}
		return newRemoteError(KindTerminalAuthFailure, "authentication failed, please reconnect your account", resp)
	case resp.Status == http.StatusForbidden:
		return newRemoteError(KindPermissionDenied, "access denied, please verify your account permissions", resp)
	case resp.Status >= 400:
		return newRemoteError(KindGenericAPIError, remoteDescription(resp), resp)
	}
	return nil
}

// remoteDescription extracts the most human-readable failure text a remote
// reply offers.
func remoteDescription(resp *Response) string {
	if s := resp.StringField("error_description"); s != "" {
		return s
	}
	if s := resp.StringField("message"); s != "" {
		return s
	}
	if reason := resp.StringField("reason"); reason != "" {
		if code := resp.StringField("errorCode"); code != "" {
			return fmt.Sprintf("%s [%s]", reason, code)
		}
		return reason
	}
	if len(resp.RawBody) > 0 {
		return strings.TrimSpace(string(resp.RawBody))
	}
	return fmt.Sprintf("request failed with status %d", resp.Status)
}
