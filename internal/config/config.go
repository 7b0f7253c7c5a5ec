package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is used when no config path is supplied.
const DefaultPath = "config.yaml"

// FileConfig represents configuration loaded from YAML with MARKET_*
// environment overrides. Secrets (JWT secret, DSNs, storage credentials)
// are injected here at process start and nowhere else.
type FileConfig struct {
	Port        string `yaml:"port"`
	LogLevel    string `yaml:"logLevel"`
	DatabaseURL string `yaml:"databaseURL"`

	JWTSecret  string `yaml:"jwtSecret"`
	SessionTTL string `yaml:"sessionTTL"`

	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`

	// Registry selects the content-addressed backend: "ipfs" or "minio".
	RegistryKind  string `yaml:"registryKind"`
	IPFSAPIURL    string `yaml:"ipfsApiUrl"`
	IPFSTimeout   string `yaml:"ipfsTimeout"`
	MinioEndpoint string `yaml:"minioEndpoint"`
	MinioAccess   string `yaml:"minioAccessKey"`
	MinioSecret   string `yaml:"minioSecretKey"`
	MinioBucket   string `yaml:"minioBucket"`
	MinioUseSSL   bool   `yaml:"minioUseSSL"`

	SettlementRPCURL       string `yaml:"settlementRpcUrl"`
	SettlementTimeout      string `yaml:"settlementTimeout"`
	SettlementPollInterval string `yaml:"settlementPollInterval"`
	VerifyTimeout          string `yaml:"verifyTimeout"`

	AMQPURL      string `yaml:"amqpUrl"`
	AMQPExchange string `yaml:"amqpExchange"`

	CORSOrigin             string   `yaml:"corsOrigin"`
	TrustedProxies         []string `yaml:"trustedProxies"`
	AuthRateLimitPerMinute int      `yaml:"authRateLimitPerMinute"`
}

// Load reads config from path (defaults to config.yaml) and applies
// environment overrides.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	applyEnvOverrides(&cfg)
	if cfg.RegistryKind == "" {
		cfg.RegistryKind = "ipfs"
	}
	if cfg.AuthRateLimitPerMinute == 0 {
		cfg.AuthRateLimitPerMinute = 30
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *FileConfig) {
	overrides := []struct {
		env    string
		target *string
	}{
		{"MARKET_PORT", &cfg.Port},
		{"MARKET_LOG_LEVEL", &cfg.LogLevel},
		{"MARKET_DATABASE_URL", &cfg.DatabaseURL},
		{"MARKET_JWT_SECRET", &cfg.JWTSecret},
		{"MARKET_SESSION_TTL", &cfg.SessionTTL},
		{"MARKET_REDIS_ADDR", &cfg.RedisAddr},
		{"MARKET_REDIS_PASSWORD", &cfg.RedisPassword},
		{"MARKET_REGISTRY_KIND", &cfg.RegistryKind},
		{"MARKET_IPFS_API_URL", &cfg.IPFSAPIURL},
		{"MARKET_MINIO_ENDPOINT", &cfg.MinioEndpoint},
		{"MARKET_MINIO_ACCESS_KEY", &cfg.MinioAccess},
		{"MARKET_MINIO_SECRET_KEY", &cfg.MinioSecret},
		{"MARKET_MINIO_BUCKET", &cfg.MinioBucket},
		{"MARKET_SETTLEMENT_RPC_URL", &cfg.SettlementRPCURL},
		{"MARKET_AMQP_URL", &cfg.AMQPURL},
		{"MARKET_AMQP_EXCHANGE", &cfg.AMQPExchange},
		{"MARKET_CORS_ORIGIN", &cfg.CORSOrigin},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.env); v != "" {
			*o.target = v
		}
	}
	if v := os.Getenv("MARKET_AUTH_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.AuthRateLimitPerMinute = n
		}
	}
	if v := os.Getenv("MARKET_TRUSTED_PROXIES"); v != "" {
		parts := strings.Split(v, ",")
		cfg.TrustedProxies = cfg.TrustedProxies[:0]
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				cfg.TrustedProxies = append(cfg.TrustedProxies, p)
			}
		}
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required (set MARKET_DATABASE_URL)")
	}
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return errors.New("config: jwtSecret is required (set MARKET_JWT_SECRET)")
	}
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		return errors.New("config: redisAddr is required for nonces and rate limiting")
	}
	switch cfg.RegistryKind {
	case "ipfs":
		if strings.TrimSpace(cfg.IPFSAPIURL) == "" {
			return errors.New("config: ipfsApiUrl is required for the ipfs registry")
		}
	case "minio":
		if cfg.MinioEndpoint == "" || cfg.MinioAccess == "" || cfg.MinioSecret == "" || cfg.MinioBucket == "" {
			return errors.New("config: minio endpoint, credentials and bucket are required for the minio registry")
		}
	default:
		return fmt.Errorf("config: unknown registryKind %q (want ipfs or minio)", cfg.RegistryKind)
	}
	if strings.TrimSpace(cfg.SettlementRPCURL) == "" {
		return errors.New("config: settlementRpcUrl is required")
	}
	if cfg.AuthRateLimitPerMinute < 0 {
		return errors.New("config: authRateLimitPerMinute must be >= 0")
	}
	return nil
}

// ParseDuration parses an optional duration field; empty means zero.
func ParseDuration(field, raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	dur, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s duration: %w", field, err)
	}
	return dur, nil
}
