package app

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	HTTPAddr    string
	DatabaseURL string
	SentryDSN   string

	// Streaming transcription provider
	AssemblyAIAPIKey string

	// LLM detection and summaries
	LLMAPIKey           string
	LLMModel            string
	LLMDetectionEnabled bool

	// JWT Authentication
	JWTSecret       string
	JWTExpiry       time.Duration
	ClientAppSecret string

	// Notifications
	DiscordWebhookURL string

	// APNs Push Notifications
	APNsKeyPath    string
	APNsKeyID      string
	APNsTeamID     string
	APNsBundleID   string
	APNsProduction bool
}

func LoadConfigFromEnv() Config {
	jwtExpiry, err := time.ParseDuration(getenv("JWT_EXPIRY", "24h"))
	if err != nil {
		jwtExpiry = 24 * time.Hour
	}

	return Config{
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),
		DatabaseURL: getenv("DATABASE_URL", ""),
		SentryDSN:   getenv("SENTRY_DSN", ""),

		AssemblyAIAPIKey: getenv("ASSEMBLYAI_API_KEY", ""),

		LLMAPIKey:           getenv("LLM_API_KEY", ""),
		LLMModel:            getenv("LLM_MODEL", "claude-sonnet-4-5-20250929"),
		LLMDetectionEnabled: getenvBool("LLM_DETECTION_ENABLED", false),

		JWTSecret:       os.Getenv("JWT_SECRET"), // Required - no fallback for security
		JWTExpiry:       jwtExpiry,
		ClientAppSecret: os.Getenv("CLIENT_APP_SECRET"),

		DiscordWebhookURL: getenv("DISCORD_WEBHOOK_URL", ""),

		APNsKeyPath:    getenv("APNS_KEY_PATH", ""),
		APNsKeyID:      getenv("APNS_KEY_ID", ""),
		APNsTeamID:     getenv("APNS_TEAM_ID", ""),
		APNsBundleID:   getenv("APNS_BUNDLE_ID", ""),
		APNsProduction: getenvBool("APNS_PRODUCTION", false),
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvBool(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
