package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"

	ChangeFeedPostgres = "postgres"
	ChangeFeedRedis    = "redis"
	ChangeFeedMemory   = "memory"

	AcceptModeAtomic  = "atomic"
	AcceptModeRelaxed = "relaxed"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv             string
	Port               string
	StoreDriver        string
	DatabaseURL        string
	DBMaxConns         int
	JWTSecret          string
	JWTIssuer          string
	OIDCIssuer         string
	OIDCAudience       string
	AcceptMode         string
	RejectClosedVerify bool
	ChangeFeed         string
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	RedisChannel       string
	GeoIPDBPath        string
	SyncPollInterval   time.Duration
	ReconcileInterval  time.Duration
	ReconcileBatch     int
	CORSAllowedOrigins []string
	LogLevel           string
	HTTPReadTimeout    time.Duration
	HTTPWriteTimeout   time.Duration
	HTTPIdleTimeout    time.Duration
	RateLimitPerMin    int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:             getEnv("APP_ENV", "development"),
		Port:               getEnv("PORT", "8080"),
		StoreDriver:        strings.ToLower(getEnv("STORE_DRIVER", StoreDriverPostgres)),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		DBMaxConns:         getEnvInt("DB_MAX_CONNS", 10),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		JWTIssuer:          getEnv("JWT_ISSUER", "pulsethread"),
		OIDCIssuer:         strings.TrimSpace(os.Getenv("OIDC_ISSUER")),
		OIDCAudience:       strings.TrimSpace(os.Getenv("OIDC_AUDIENCE")),
		AcceptMode:         strings.ToLower(getEnv("ACCEPT_MODE", AcceptModeAtomic)),
		RejectClosedVerify: getEnvBool("VERIFY_REJECT_CLOSED_REQUESTS", false),
		ChangeFeed:         strings.ToLower(os.Getenv("CHANGE_FEED")),
		RedisAddr:          getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		RedisDB:            getEnvInt("REDIS_DB", 0),
		RedisChannel:       getEnv("REDIS_CHANNEL", "pulse_changes"),
		GeoIPDBPath:        os.Getenv("GEOIP_DB_PATH"),
		SyncPollInterval:   time.Second * time.Duration(getEnvInt("SYNC_POLL_INTERVAL_SECONDS", 15)),
		ReconcileInterval:  time.Second * time.Duration(getEnvInt("RECONCILE_INTERVAL_SECONDS", 30)),
		ReconcileBatch:     getEnvInt("RECONCILE_BATCH", 50),
		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		LogLevel:           os.Getenv("LOG_LEVEL"),
		HTTPReadTimeout:    time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:   time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:    time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:    getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
	}

	switch cfg.StoreDriver {
	case StoreDriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required")
		}
	case StoreDriverMemory:
	default:
		return nil, fmt.Errorf("unsupported STORE_DRIVER %q", cfg.StoreDriver)
	}

	if cfg.ChangeFeed == "" {
		cfg.ChangeFeed = ChangeFeedPostgres
		if cfg.StoreDriver == StoreDriverMemory {
			cfg.ChangeFeed = ChangeFeedMemory
		}
	}
	switch cfg.ChangeFeed {
	case ChangeFeedPostgres:
		if cfg.StoreDriver != StoreDriverPostgres {
			return nil, fmt.Errorf("CHANGE_FEED=postgres requires STORE_DRIVER=postgres")
		}
	case ChangeFeedRedis, ChangeFeedMemory:
	default:
		return nil, fmt.Errorf("unsupported CHANGE_FEED %q", cfg.ChangeFeed)
	}

	switch cfg.AcceptMode {
	case AcceptModeAtomic, AcceptModeRelaxed:
	default:
		return nil, fmt.Errorf("unsupported ACCEPT_MODE %q", cfg.AcceptMode)
	}

	if cfg.JWTSecret == "" && cfg.OIDCIssuer == "" {
		return nil, fmt.Errorf("JWT_SECRET or OIDC_ISSUER is required")
	}

	if cfg.ReconcileBatch <= 0 {
		cfg.ReconcileBatch = 50
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
