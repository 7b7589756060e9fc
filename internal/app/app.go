package app

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/versestream/backend/internal/eventlog"
	"github.com/versestream/backend/internal/httpapi"
	"github.com/versestream/backend/internal/store"
)

type App struct {
	cfg      Config
	logger   *log.Logger
	db       *pgxpool.Pool
	store    *store.Store
	eventLog *eventlog.Logger
}

func New(cfg Config, logger *log.Logger) (*App, error) {
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, err
	}

	// Migrations are applied externally by the CI deploy job.
	// No automatic migration runner at startup.

	return &App{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		store:    store.New(db),
		eventLog: eventlog.New(db),
	}, nil
}

func (a *App) Router(sessions *httpapi.SessionRegistry) http.Handler {
	routerCfg := httpapi.RouterConfig{
		AssemblyAIAPIKey:    a.cfg.AssemblyAIAPIKey,
		LLMAPIKey:           a.cfg.LLMAPIKey,
		LLMModel:            a.cfg.LLMModel,
		LLMDetectionEnabled: a.cfg.LLMDetectionEnabled,
		JWTSecret:           a.cfg.JWTSecret,
		JWTExpiry:           a.cfg.JWTExpiry,
		ClientAppSecret:     a.cfg.ClientAppSecret,
		DiscordWebhookURL:   a.cfg.DiscordWebhookURL,
		APNsKeyPath:         a.cfg.APNsKeyPath,
		APNsKeyID:           a.cfg.APNsKeyID,
		APNsTeamID:          a.cfg.APNsTeamID,
		APNsBundleID:        a.cfg.APNsBundleID,
		APNsProduction:      a.cfg.APNsProduction,
	}
	return httpapi.NewRouter(routerCfg, a.logger, a.store, a.eventLog, sessions)
}

func (a *App) Close() error {
	if a.db != nil {
		a.db.Close()
	}
	return nil
}
