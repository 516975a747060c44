package auth

import "context"

type contextKey string

const clientKey contextKey = "authClient"

// Client represents an authenticated host client.
type Client struct {
	Sub        string
	ClientName string
	Type       TokenType
}

// WithClient stores an authenticated client in the context.
func WithClient(ctx context.Context, client Client) context.Context {
	return context.WithValue(ctx, clientKey, client)
}

// ClientFromContext returns the authenticated client, if present.
func ClientFromContext(ctx context.Context) (Client, bool) {
	if ctx == nil {
		return Client{}, false
	}
	value := ctx.Value(clientKey)
	if value == nil {
		return Client{}, false
	}
	client, ok := value.(Client)
	return client, ok
}
