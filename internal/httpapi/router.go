package httpapi

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/versestream/backend/internal/eventlog"
	"github.com/versestream/backend/internal/llm"
	"github.com/versestream/backend/internal/notifications"
	"github.com/versestream/backend/internal/scripture"
	"github.com/versestream/backend/internal/store"
	"github.com/versestream/backend/internal/stt"
)

type RouterConfig struct {
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
	APNsKeyPath    string // Path to .p8 key file
	APNsKeyID      string // Key ID from Apple Developer Portal
	APNsTeamID     string // Team ID from Apple Developer Portal
	APNsBundleID   string // App bundle ID
	APNsProduction bool   // Use production environment
}

type Router struct {
	cfg       RouterConfig
	logger    *log.Logger
	store     *store.Store
	eventLog  *eventlog.Logger
	discord   *notifications.Discord
	apns      *notifications.APNsClient
	llmClient llm.Client
	sessions  *SessionRegistry
	mux       *http.ServeMux

	// upstreamFactory opens the provider session for a new stream.
	upstreamFactory func(ctx context.Context) (stt.Session, error)
}

func NewRouter(cfg RouterConfig, logger *log.Logger, s *store.Store, eventLog *eventlog.Logger, sessions *SessionRegistry) http.Handler {
	// Initialize APNs client (may be nil if not configured)
	apnsClient, err := notifications.NewAPNsClient(notifications.APNsConfig{
		KeyPath:    cfg.APNsKeyPath,
		KeyID:      cfg.APNsKeyID,
		TeamID:     cfg.APNsTeamID,
		BundleID:   cfg.APNsBundleID,
		Production: cfg.APNsProduction,
	}, logger)
	if err != nil {
		logger.Printf("Warning: APNs client initialization failed: %v", err)
	}

	var llmClient llm.Client
	if cfg.LLMAPIKey != "" {
		llmClient = llm.NewGatewayClient(llm.GatewayConfig{
			APIKey: cfg.LLMAPIKey,
			Model:  cfg.LLMModel,
			Logger: logger,
		})
	}

	r := &Router{
		cfg:       cfg,
		logger:    logger,
		store:     s,
		eventLog:  eventLog,
		discord:   notifications.NewDiscord(cfg.DiscordWebhookURL, logger),
		apns:      apnsClient,
		llmClient: llmClient,
		sessions:  sessions,
		mux:       http.NewServeMux(),
	}
	r.upstreamFactory = func(ctx context.Context) (stt.Session, error) {
		return stt.NewAssemblyAISession(ctx, stt.AssemblyAIConfig{
			APIKey:      cfg.AssemblyAIAPIKey,
			SampleRate:  16000,
			Encoding:    "pcm_s16le",
			FormatTurns: true,
			WordBoost:   scripture.Vocabulary(),
			Logger:      logger,
		})
	}

	r.routes()
	return withSentryRecovery(withCORS(r.mux))
}

func (r *Router) routes() {
	// Health check
	r.mux.HandleFunc("GET /healthz", r.handleHealthz)

	// Live transcript stream (token in query string)
	r.mux.HandleFunc("GET /stream", r.handleStreamWS)

	// Auth endpoints (public)
	r.mux.HandleFunc("POST /auth/token", r.handleAuthToken)

	// Reference library (public)
	r.mux.HandleFunc("GET /api/books", r.handleListBooks)
	r.mux.HandleFunc("GET /api/books/search", r.handleSearchBooks)

	// Session archive (protected)
	r.mux.HandleFunc("GET /api/sessions", r.withAuth(r.handleListSessions))
	r.mux.HandleFunc("GET /api/sessions/{id}", r.withAuth(r.handleGetSession))

	// Push notifications (protected)
	r.mux.HandleFunc("POST /api/push/register", r.withAuth(r.handlePushRegister))
	r.mux.HandleFunc("POST /api/push/unregister", r.withAuth(r.handlePushUnregister))
}

func (r *Router) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func withSentryRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				hub := sentry.CurrentHub().Clone()
				hub.Scope().SetRequest(req)
				hub.RecoverWithContext(req.Context(), err)
				hub.Flush(2 * time.Second)
				http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, req)
	})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if req.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, req)
	})
}

func nowUTC() time.Time { return time.Now().UTC() }

// captureError sends an error to Sentry with request context
func captureError(req *http.Request, err error, msg string) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetRequest(req)
		scope.SetExtra("message", msg)
		sentry.CaptureException(err)
	})
}

// captureErr sends an error to Sentry from paths without a request in hand.
func captureErr(err error, msg string) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetExtra("message", msg)
		sentry.CaptureException(err)
	})
}
