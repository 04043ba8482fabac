package whitelistd

import (
	"fmt"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/whitelist/pkg/whitelist"
)

const (
	defaultHTTPListenAddr = ":9046"
	defaultGRPCListenAddr = ":7046"
	defaultDataDir        = "data"
	defaultSessionIssuer  = "tauth"
	defaultSessionCookie  = "app_session"
	defaultCreditRate     = 1.0
	defaultCreditBurst    = 5
	defaultRequestTimeout = 5 * time.Second

	// DriverFile stores every collection as a JSON document under DataDir.
	DriverFile = "file"
	// DriverSQLite stores collections in a gorm-managed SQLite database.
	DriverSQLite = "sqlite"
	// DriverPostgres stores collections in PostgreSQL through gorm.
	DriverPostgres = "postgres"
	// DriverPGX stores collections in PostgreSQL through a pgx pool.
	DriverPGX = "pgx"
	// DriverRedis stores each collection as a Redis hash.
	DriverRedis = "redis"
)

// Config aggregates runtime settings for whitelistd.
type Config struct {
	HTTPListenAddr    string
	GRPCListenAddr    string
	StorageDriver     string
	StorageDSN        string
	DataDir           string
	RedisKeyPrefix    string
	CoinCost          int64
	DefaultTTLHours   int64
	SweepInterval     time.Duration
	RequestTimeout    time.Duration
	AllowedOrigins    []string
	CreditRateLimit   float64
	CreditRateBurst   int
	SessionSigningKey string
	SessionIssuer     string
	SessionCookieName string
}

// Validate applies defaults and ensures the configuration contains sane values.
func (cfg *Config) Validate() error {
	cfg.HTTPListenAddr = defaultIfEmpty(cfg.HTTPListenAddr, defaultHTTPListenAddr)
	cfg.GRPCListenAddr = defaultIfEmpty(cfg.GRPCListenAddr, defaultGRPCListenAddr)
	cfg.StorageDriver = strings.ToLower(defaultIfEmpty(cfg.StorageDriver, DriverFile))
	cfg.DataDir = defaultIfEmpty(cfg.DataDir, defaultDataDir)
	if cfg.CoinCost == 0 {
		cfg.CoinCost = whitelist.DefaultCoinCost
	}
	if cfg.DefaultTTLHours == 0 {
		cfg.DefaultTTLHours = whitelist.DefaultTTLHours
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.CreditRateLimit == 0 {
		cfg.CreditRateLimit = defaultCreditRate
	}
	if cfg.CreditRateBurst == 0 {
		cfg.CreditRateBurst = defaultCreditBurst
	}
	cfg.SessionIssuer = defaultIfEmpty(cfg.SessionIssuer, defaultSessionIssuer)
	cfg.SessionCookieName = defaultIfEmpty(cfg.SessionCookieName, defaultSessionCookie)

	switch cfg.StorageDriver {
	case DriverFile:
		if strings.TrimSpace(cfg.DataDir) == "" {
			return fmt.Errorf("data dir is required for the %s driver", DriverFile)
		}
	case DriverSQLite:
	case DriverPostgres, DriverPGX, DriverRedis:
		if strings.TrimSpace(cfg.StorageDSN) == "" {
			return fmt.Errorf("storage dsn is required for the %s driver", cfg.StorageDriver)
		}
	default:
		return fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
	if _, err := whitelist.NewCoinAmount(cfg.CoinCost); err != nil {
		return fmt.Errorf("coin cost: %w", err)
	}
	if _, err := whitelist.NewTTLHours(cfg.DefaultTTLHours); err != nil {
		return fmt.Errorf("default hours: %w", err)
	}
	if cfg.SweepInterval < 0 {
		return fmt.Errorf("sweep interval must not be negative")
	}
	if cfg.CreditRateLimit < 0 {
		return fmt.Errorf("credit rate limit must not be negative")
	}
	if cfg.CreditRateBurst < 0 {
		return fmt.Errorf("credit rate burst must not be negative")
	}
	return nil
}

// SessionEnabled reports whether member routes authenticate through tauth.
func (cfg Config) SessionEnabled() bool {
	return len(cfg.SessionSigningKey) > 0
}

func defaultIfEmpty(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return strings.TrimSpace(value)
}

// ParseAllowedOrigins splits comma-delimited origins into a slice.
func ParseAllowedOrigins(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	normalized := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			normalized = append(normalized, trimmed)
		}
	}
	return normalized
}
