package main

import (
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"bookmarket/internal/app"
	"bookmarket/internal/config"
	"bookmarket/internal/ratelimit"
	"bookmarket/internal/server"
	"bookmarket/internal/util"
	"bookmarket/pkg/events"
	"bookmarket/pkg/registry"
	"bookmarket/pkg/session"
	"bookmarket/pkg/settlement"
	"bookmarket/pkg/wallet"
)

func main() {
	cfg, err := config.Load(os.Getenv("MARKET_CONFIG"))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel, "marketd")

	sessionTTL, err := config.ParseDuration("sessionTTL", cfg.SessionTTL)
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	settlementTimeout, err := config.ParseDuration("settlementTimeout", cfg.SettlementTimeout)
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	pollInterval, err := config.ParseDuration("settlementPollInterval", cfg.SettlementPollInterval)
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	verifyTimeout, err := config.ParseDuration("verifyTimeout", cfg.VerifyTimeout)
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})

	nonces, err := wallet.NewChallengeStore(redisClient, 5*time.Minute)
	if err != nil {
		log.Fatalf("failed to init nonce store: %v", err)
	}

	contentRegistry, err := buildRegistry(cfg)
	if err != nil {
		log.Fatalf("failed to init content registry: %v", err)
	}

	gateway, err := settlement.NewClient(settlement.Config{
		RPCURL:       cfg.SettlementRPCURL,
		Timeout:      settlementTimeout,
		PollInterval: pollInterval,
	})
	if err != nil {
		log.Fatalf("failed to init settlement client: %v", err)
	}

	var publisher events.Publisher = events.NoopPublisher{}
	if cfg.AMQPURL != "" {
		amqpPublisher, err := events.NewAMQPPublisher(events.AMQPConfig{
			URL:      cfg.AMQPURL,
			Exchange: cfg.AMQPExchange,
		})
		if err != nil {
			log.Fatalf("failed to init event publisher: %v", err)
		}
		defer amqpPublisher.Close()
		publisher = amqpPublisher
	}

	sessions, err := session.NewManager(cfg.JWTSecret, session.Options{TTL: sessionTTL})
	if err != nil {
		log.Fatalf("failed to init session manager: %v", err)
	}

	appCore, err := app.New(app.Config{
		DatabaseURL:   cfg.DatabaseURL,
		VerifyTimeout: verifyTimeout,
		Sessions:      sessions,
		Nonces:        nonces,
		Registry:      contentRegistry,
		Gateway:       gateway,
		Publisher:     publisher,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	var authLimiter *ratelimit.FixedWindowLimiter
	if cfg.AuthRateLimitPerMinute > 0 {
		authLimiter, err = ratelimit.New(redisClient, "", cfg.AuthRateLimitPerMinute, time.Minute)
		if err != nil {
			log.Fatalf("failed to init rate limiter: %v", err)
		}
	}

	trustedProxies, err := util.NewTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		log.Fatalf("failed to parse trusted proxies: %v", err)
	}

	httpServer, err := server.New(server.Config{
		App:            appCore,
		AuthLimiter:    authLimiter,
		TrustedProxies: trustedProxies,
		CORSOrigin:     cfg.CORSOrigin,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("marketd listening", "addr", addr, "registry", cfg.RegistryKind)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}

func buildRegistry(cfg config.FileConfig) (registry.Registry, error) {
	switch cfg.RegistryKind {
	case "minio":
		return registry.NewMinioRegistry(cfg.MinioEndpoint, cfg.MinioAccess, cfg.MinioSecret, cfg.MinioBucket, cfg.MinioUseSSL)
	default:
		timeout, err := config.ParseDuration("ipfsTimeout", cfg.IPFSTimeout)
		if err != nil {
			return nil, err
		}
		return registry.NewIPFSRegistry(cfg.IPFSAPIURL, timeout)
	}
}
