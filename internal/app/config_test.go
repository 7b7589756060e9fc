package app

import (
	"testing"
	"time"
)

func TestGetenv(t *testing.T) {
	t.Setenv("TEST_GETENV_SET", "value")

	tests := []struct {
		name string
		key  string
		def  string
		want string
	}{
		{"set", "TEST_GETENV_SET", "fallback", "value"},
		{"unset", "TEST_GETENV_UNSET", "fallback", "fallback"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := getenv(tt.key, tt.def); got != tt.want {
				t.Errorf("getenv(%q, %q) = %q, want %q", tt.key, tt.def, got, tt.want)
			}
		})
	}
}

func TestGetenvBool(t *testing.T) {
	t.Setenv("TEST_BOOL_TRUE", "true")
	t.Setenv("TEST_BOOL_ONE", "1")
	t.Setenv("TEST_BOOL_FALSE", "false")
	t.Setenv("TEST_BOOL_JUNK", "maybe")

	tests := []struct {
		name string
		key  string
		def  bool
		want bool
	}{
		{"true", "TEST_BOOL_TRUE", false, true},
		{"numeric true", "TEST_BOOL_ONE", false, true},
		{"false", "TEST_BOOL_FALSE", true, false},
		{"unset uses default", "TEST_BOOL_UNSET", true, true},
		{"junk uses default", "TEST_BOOL_JUNK", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := getenvBool(tt.key, tt.def); got != tt.want {
				t.Errorf("getenvBool(%q, %v) = %v, want %v", tt.key, tt.def, got, tt.want)
			}
		})
	}
}

func TestLoadConfigFromEnvDefaults(t *testing.T) {
	for _, k := range []string{
		"HTTP_ADDR", "DATABASE_URL", "SENTRY_DSN", "ASSEMBLYAI_API_KEY",
		"LLM_API_KEY", "LLM_MODEL", "LLM_DETECTION_ENABLED",
		"JWT_SECRET", "JWT_EXPIRY", "CLIENT_APP_SECRET",
		"DISCORD_WEBHOOK_URL", "APNS_KEY_PATH", "APNS_PRODUCTION",
	} {
		t.Setenv(k, "")
	}

	cfg := LoadConfigFromEnv()

	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":8080")
	}
	if cfg.JWTExpiry != 24*time.Hour {
		t.Errorf("JWTExpiry = %v, want 24h", cfg.JWTExpiry)
	}
	if cfg.JWTSecret != "" {
		t.Errorf("JWTSecret = %q, want empty default", cfg.JWTSecret)
	}
	if cfg.LLMModel == "" {
		t.Error("LLMModel default is empty")
	}
	if cfg.LLMDetectionEnabled {
		t.Error("LLMDetectionEnabled = true, want false by default")
	}
	if cfg.APNsProduction {
		t.Error("APNsProduction = true, want false by default")
	}
}

func TestLoadConfigFromEnvValues(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9999")
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("ASSEMBLYAI_API_KEY", "aai-key")
	t.Setenv("LLM_API_KEY", "llm-key")
	t.Setenv("LLM_DETECTION_ENABLED", "true")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("JWT_EXPIRY", "1h")
	t.Setenv("CLIENT_APP_SECRET", "app-secret")

	cfg := LoadConfigFromEnv()

	if cfg.HTTPAddr != ":9999" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":9999")
	}
	if cfg.DatabaseURL != "postgres://localhost/test" {
		t.Errorf("DatabaseURL = %q", cfg.DatabaseURL)
	}
	if cfg.AssemblyAIAPIKey != "aai-key" {
		t.Errorf("AssemblyAIAPIKey = %q", cfg.AssemblyAIAPIKey)
	}
	if !cfg.LLMDetectionEnabled {
		t.Error("LLMDetectionEnabled = false, want true")
	}
	if cfg.JWTSecret != "secret" {
		t.Errorf("JWTSecret = %q", cfg.JWTSecret)
	}
	if cfg.JWTExpiry != time.Hour {
		t.Errorf("JWTExpiry = %v, want 1h", cfg.JWTExpiry)
	}
	if cfg.ClientAppSecret != "app-secret" {
		t.Errorf("ClientAppSecret = %q", cfg.ClientAppSecret)
	}
}

func TestLoadConfigFromEnvBadExpiry(t *testing.T) {
	t.Setenv("JWT_EXPIRY", "soon")

	cfg := LoadConfigFromEnv()
	if cfg.JWTExpiry != 24*time.Hour {
		t.Errorf("JWTExpiry = %v, want the 24h fallback", cfg.JWTExpiry)
	}
}
