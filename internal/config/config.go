package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/smallbiznis/google-connect/internal/domain/oauth"
)

// Config contains runtime configuration values.
type Config struct {
	Environment        string
	HTTPPort           string
	ServiceName        string
	GoogleClientID     string
	GoogleClientSecret string
	// RedirectURL pins the OAuth callback URL. When empty it is derived
	// from the incoming request's origin plus the fixed callback path.
	RedirectURL      string
	PostAuthRedirect string
	Scopes           []string
	TokenFilePath    string
	UIDistDir        string

	StateTTL           time.Duration
	AccessTokenSkew    time.Duration
	DefaultTokenTTL    time.Duration
	ConnectedCookieTTL time.Duration
	RateLimitRPM       int
	TelemetryEndpoint  string
	TelemetryInsecure  bool

	CORSAllowedOrigins   []string
	CORSAllowedMethods   []string
	CORSAllowedHeaders   []string
	CORSAllowCredentials bool
}

// ProviderConfigured reports whether Google client credentials are present.
func (c Config) ProviderConfigured() bool {
	return strings.TrimSpace(c.GoogleClientID) != "" && strings.TrimSpace(c.GoogleClientSecret) != ""
}

// Load reads configuration from environment variables with sane defaults.
// Google credentials are optional: the service starts unconfigured and the
// status endpoint reports configured=false.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Environment:        getEnv("APP_ENV", "development"),
		HTTPPort:           getEnv("HTTP_PORT", "8787"),
		ServiceName:        getEnv("SERVICE_NAME", "google-connect"),
		GoogleClientID:     strings.TrimSpace(os.Getenv("GOOGLE_CLIENT_ID")),
		GoogleClientSecret: strings.TrimSpace(os.Getenv("GOOGLE_CLIENT_SECRET")),
		RedirectURL:        strings.TrimSpace(os.Getenv("GOOGLE_REDIRECT_URL")),
		PostAuthRedirect:   getEnv("POST_AUTH_REDIRECT", "/"),
		Scopes:             getList("GOOGLE_SCOPES", strings.Fields(oauth.DefaultScope)),
		TokenFilePath:      getEnv("TOKEN_FILE_PATH", ".data/google-auth.json"),
		UIDistDir:          getEnv("UI_DIST_DIR", "ui/dist"),

		StateTTL:           getDuration("OAUTH_STATE_TTL", 10*time.Minute),
		AccessTokenSkew:    getDuration("ACCESS_TOKEN_SKEW", time.Minute),
		DefaultTokenTTL:    getDuration("DEFAULT_TOKEN_TTL", oauth.DefaultAccessTokenLifetime),
		ConnectedCookieTTL: getDuration("CONNECTED_COOKIE_TTL", 30*24*time.Hour),
		RateLimitRPM:       getInt("RATE_LIMIT_RPM", 600),
		TelemetryEndpoint:  os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TelemetryInsecure:  getBool("OTEL_EXPORTER_OTLP_INSECURE", true),

		CORSAllowedOrigins:   getList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		CORSAllowedMethods:   getList("CORS_ALLOWED_METHODS", []string{"GET", "POST", "OPTIONS"}),
		CORSAllowedHeaders:   getList("CORS_ALLOWED_HEADERS", []string{"Authorization", "Content-Type"}),
		CORSAllowCredentials: getBool("CORS_ALLOW_CREDENTIALS", false),
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(v) {
		case "1", "true", "t", "yes", "y", "on":
			return true
		case "0", "false", "f", "no", "n", "off":
			return false
		}
	}
	return def
}

func getList(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok {
		parts := strings.Split(v, ",")
		var cleaned []string
		for _, p := range parts {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				cleaned = append(cleaned, trimmed)
			}
		}
		if len(cleaned) > 0 {
			return cleaned
		}
	}
	return def
}
