package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds the connector configuration.
type Config struct {
	Host          string
	Port          string
	SQLiteDBPath  string
	NodeEnv       string
	AllowTestMode bool

	JWTSecret                string
	JWTAccessTokenExpirySec  int
	JWTRefreshTokenExpirySec int

	// CastBreezeAPIURL overrides the cloud API base URL. The production
	// default lives in the castbreeze package; tests point this at httptest.
	CastBreezeAPIURL string
	HTTPTimeoutMs    int

	// Proactive token refresh. RefreshSchedule is a standard 5-field cron
	// expression; RefreshBufferSec is how close to expiry a token may get
	// before a sweep refreshes it.
	RefreshEnabled   bool
	RefreshSchedule  string
	RefreshBufferSec int
}

// Load reads configuration from environment variables with defaults.
func Load() (Config, error) {
	cfg := Config{
		Host:                     envString("HOST", "0.0.0.0"),
		Port:                     envString("PORT", "9100"),
		SQLiteDBPath:             envString("SQLITE_DB_PATH", "./data/castbreeze-connector.db"),
		NodeEnv:                  envString("NODE_ENV", "development"),
		AllowTestMode:            envBool("ALLOW_TEST_MODE", false),
		JWTSecret:                envString("JWT_SECRET", ""),
		JWTAccessTokenExpirySec:  envInt("JWT_ACCESS_TOKEN_EXPIRY", 3600),
		JWTRefreshTokenExpirySec: envInt("JWT_REFRESH_TOKEN_EXPIRY", 2592000),
		CastBreezeAPIURL:         envString("CASTBREEZE_API_URL", ""),
		HTTPTimeoutMs:            envInt("CASTBREEZE_HTTP_TIMEOUT_MS", 30000),
		RefreshEnabled:           envBool("CASTBREEZE_REFRESH_ENABLED", true),
		RefreshSchedule:          envString("CASTBREEZE_REFRESH_SCHEDULE", "*/15 * * * *"),
		RefreshBufferSec:         envInt("CASTBREEZE_REFRESH_BUFFER_SECONDS", 1800),
	}

	if len(strings.TrimSpace(cfg.JWTSecret)) < 32 {
		return Config{}, fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}

	return cfg, nil
}

func envString(key, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func envInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func envBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return strings.EqualFold(val, "true")
}
