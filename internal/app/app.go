package app

import (
	"context"
	"fmt"
	"time"

	"bookmarket/pkg/events"
	"bookmarket/pkg/registry"
	"bookmarket/pkg/session"
	"bookmarket/pkg/settlement"
	"bookmarket/pkg/store"
)

const defaultVerifyTimeout = 10 * time.Second

// NonceStore issues and consumes one-time wallet login challenges.
// Satisfied by wallet.ChallengeStore.
type NonceStore interface {
	Issue(ctx context.Context, address string) (string, error)
	Consume(ctx context.Context, address, nonce string) (bool, error)
}

// Config holds runtime configuration for the core application.
type Config struct {
	DatabaseURL   string
	JWTSecret     string
	SessionTTL    time.Duration
	VerifyTimeout time.Duration

	Store     store.Store
	Sessions  *session.Manager
	Nonces    NonceStore
	Registry  registry.Registry
	Gateway   settlement.Gateway
	Publisher events.Publisher
}

// App is the application core wiring identity, listings and purchases
// over storage and the external collaborators.
type App struct {
	store         store.Store
	sessions      *session.Manager
	nonces        NonceStore
	registry      registry.Registry
	gateway       settlement.Gateway
	publisher     events.Publisher
	verifyTimeout time.Duration
}

// New constructs the application. Store and Sessions fall back to
// config-driven defaults; the external collaborators must be supplied.
func New(cfg Config) (*App, error) {
	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}

	sessions := cfg.Sessions
	if sessions == nil {
		var err error
		sessions, err = session.NewManager(cfg.JWTSecret, session.Options{TTL: cfg.SessionTTL})
		if err != nil {
			return nil, fmt.Errorf("init session manager: %w", err)
		}
	}

	if cfg.Registry == nil {
		return nil, fmt.Errorf("content registry required")
	}
	if cfg.Gateway == nil {
		return nil, fmt.Errorf("settlement gateway required")
	}
	if cfg.Nonces == nil {
		return nil, fmt.Errorf("nonce store required")
	}

	publisher := cfg.Publisher
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}

	verifyTimeout := cfg.VerifyTimeout
	if verifyTimeout <= 0 {
		verifyTimeout = defaultVerifyTimeout
	}

	return &App{
		store:         dataStore,
		sessions:      sessions,
		nonces:        cfg.Nonces,
		registry:      cfg.Registry,
		gateway:       cfg.Gateway,
		publisher:     publisher,
		verifyTimeout: verifyTimeout,
	}, nil
}

// Sessions exposes the token manager to the HTTP layer.
func (a *App) Sessions() *session.Manager {
	return a.sessions
}
