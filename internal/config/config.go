package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAppName        = "WendeMarket"
	defaultAppEnv         = "development"
	defaultPort           = "8080"
	defaultLogLevel       = "info"
	defaultShutdownDelay  = 10 * time.Second
	defaultIdempotencyTTL = 24 * time.Hour

	// defaultBytePrice is the storage price per byte in ledger base units.
	defaultBytePrice = 10

	// defaultTotalSupply is minted to FTOwnerID when the ledger boots.
	defaultTotalSupply = 1_000_000_000

	// defaultCallBudget bounds how many cross-component hops a single
	// inbound call may fan out into before it aborts.
	defaultCallBudget = 16

	shutdownSecondsEnvVar  = "SHUTDOWN_TIMEOUT_SECONDS"
	shutdownDurationEnvVar = "SHUTDOWN_TIMEOUT"
	idemTTLSecondsEnvVar   = "IDEMPOTENCY_TTL_SECONDS"
	idemTTLDurEnvVar       = "IDEMPOTENCY_TTL"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string
	Env            string
	Port           string
	LogLevel       string
	DatabaseURL    string
	RedisURL       string
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration

	// StorageBytePrice is the per-byte price charged against storage credit.
	StorageBytePrice int64
	// FTTotalSupply is the payment ledger's fixed supply, minted at startup.
	FTTotalSupply int64
	// FTOwnerID receives the total supply at startup.
	FTOwnerID string
	// FTTokenID is the payment ledger's component identity; listings name it
	// as their payment token.
	FTTokenID string
	// NFTContractID is the asset registry's component identity.
	NFTContractID string
	// MarketAccountID is the coordinator's own ledger account.
	MarketAccountID string
	// MarketOwnerID may administer the supported payment token set.
	MarketOwnerID string
	// AdminKeyHash is the bcrypt hash guarding admin endpoints. Empty disables them.
	AdminKeyHash string
	// CallBudget is the default cross-component hop budget per inbound call.
	CallBudget int64
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	cfg := Config{
		AppName:          getEnv("APP_NAME", defaultAppName),
		Env:              getEnv("APP_ENV", defaultAppEnv),
		Port:             getEnv("PORT", defaultPort),
		LogLevel:         strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
		ShutdownPeriod:   defaultShutdownDelay,
		IdempotencyTTL:   defaultIdempotencyTTL,
		StorageBytePrice: defaultBytePrice,
		FTTotalSupply:    defaultTotalSupply,
		FTOwnerID:        getEnv("FT_OWNER_ID", "treasury"),
		FTTokenID:        getEnv("FT_TOKEN_ID", "stable"),
		NFTContractID:    getEnv("NFT_CONTRACT_ID", "nft"),
		MarketAccountID:  getEnv("MARKET_ACCOUNT_ID", "market"),
		MarketOwnerID:    getEnv("MARKET_OWNER_ID", "market-admin"),
		AdminKeyHash:     os.Getenv("ADMIN_KEY_HASH"),
		CallBudget:       defaultCallBudget,
	}

	if v := os.Getenv(shutdownSecondsEnvVar); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", shutdownSecondsEnvVar, err)
		}
		cfg.ShutdownPeriod = time.Duration(seconds) * time.Second
	} else if v := os.Getenv(shutdownDurationEnvVar); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", shutdownDurationEnvVar, err)
		}
		cfg.ShutdownPeriod = d
	}

	if v := os.Getenv(idemTTLSecondsEnvVar); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", idemTTLSecondsEnvVar, err)
		}
		cfg.IdempotencyTTL = time.Duration(seconds) * time.Second
	} else if v := os.Getenv(idemTTLDurEnvVar); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", idemTTLDurEnvVar, err)
		}
		cfg.IdempotencyTTL = d
	}

	if v := os.Getenv("STORAGE_BYTE_PRICE"); v != "" {
		price, err := strconv.ParseInt(v, 10, 64)
		if err != nil || price <= 0 {
			return Config{}, fmt.Errorf("invalid STORAGE_BYTE_PRICE %q", v)
		}
		cfg.StorageBytePrice = price
	}

	if v := os.Getenv("FT_TOTAL_SUPPLY"); v != "" {
		supply, err := strconv.ParseInt(v, 10, 64)
		if err != nil || supply <= 0 {
			return Config{}, fmt.Errorf("invalid FT_TOTAL_SUPPLY %q", v)
		}
		cfg.FTTotalSupply = supply
	}

	if v := os.Getenv("CALL_BUDGET"); v != "" {
		budget, err := strconv.ParseInt(v, 10, 64)
		if err != nil || budget <= 0 {
			return Config{}, fmt.Errorf("invalid CALL_BUDGET %q", v)
		}
		cfg.CallBudget = budget
	}

	if !isDev(cfg.Env) {
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL must be set when APP_ENV=%s", cfg.Env)
		}
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("REDIS_URL must be set when APP_ENV=%s", cfg.Env)
		}
	}

	return cfg, nil
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// IsDev reports whether the configured environment is a development environment.
func (c Config) IsDev() bool {
	return isDev(c.Env)
}

func isDev(env string) bool {
	switch strings.ToLower(env) {
	case "dev", "development", "local":
		return true
	default:
		return false
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
