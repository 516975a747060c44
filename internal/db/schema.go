package db

// schemaSQL creates the connector's tables. The connector deliberately
// persists nothing beyond the OAuth credential pair: the cloud topology is
// re-fetched per call and playback outcomes are ephemeral.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS oauth_tokens (
	key TEXT PRIMARY KEY,
	access_token TEXT NOT NULL,
	refresh_token TEXT NOT NULL,
	expires_at TEXT NOT NULL,
	token_type TEXT NOT NULL,
	scope TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
`
