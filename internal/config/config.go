// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/aristath/autoinvest/internal/utils"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// State codecs understood by the state store.
const (
	StateFormatYAML    = "yaml"
	StateFormatMsgpack = "msgpack"
)

// Sold fetch failure policies.
const (
	SoldFailureKeepStale     = "keep-stale"
	SoldFailureAssumeNotSold = "assume-not-sold"
)

// MinWorkers is the smallest scheduler pool that avoids head-of-line blocking.
const MinWorkers = 2

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for state, databases and backups (always absolute)
	LogLevel string
	Pretty   bool
	Port     int // 0 disables the status API

	Accounts []Account
	APIURL   string
	DryRun   bool

	ConnectTimeout time.Duration
	ReadTimeout    time.Duration

	LoanCacheTTL       time.Duration
	CacheSweepInterval time.Duration
	SoldTTL            time.Duration
	SoldFetchFailure   string
	TrackerLimit       int

	Workers          int
	PortfolioRefresh time.Duration
	MarketplacePoll  time.Duration
	MinIncrement     decimal.Decimal
	StrategyFile     string
	StateFormat      string

	Backup BackupConfig
}

// Account is one remote account identity the daemon trades for.
type Account struct {
	Username string
	Token    string
}

// BackupConfig holds backup schedule and optional S3-compatible upload settings.
type BackupConfig struct {
	Cron        string // empty disables backups
	Keep        int
	S3Bucket    string
	S3Endpoint  string
	S3Region    string
	S3AccessKey string // empty falls back to the default AWS credential chain
	S3SecretKey string
}

// S3Enabled reports whether archives should be uploaded.
func (b BackupConfig) S3Enabled() bool {
	return b.S3Bucket != ""
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("AUTOINVEST_DATA_DIR", "./data")

	// Always resolve to absolute path
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:            absDataDir,
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		Pretty:             getEnvAsBool("LOG_PRETTY", true),
		Port:               getEnvAsInt("AUTOINVEST_PORT", 8080),
		Accounts:           loadAccounts(getEnv("AUTOINVEST_ACCOUNTS", "")),
		APIURL:             strings.TrimRight(getEnv("AUTOINVEST_API_URL", "https://api.example.invalid"), "/"),
		DryRun:             getEnvAsBool("AUTOINVEST_DRY_RUN", false),
		ConnectTimeout:     getEnvAsDuration("AUTOINVEST_CONNECT_TIMEOUT", 10*time.Second),
		ReadTimeout:        getEnvAsDuration("AUTOINVEST_READ_TIMEOUT", 30*time.Second),
		LoanCacheTTL:       getEnvAsDuration("AUTOINVEST_LOAN_CACHE_TTL", time.Hour),
		CacheSweepInterval: getEnvAsDuration("AUTOINVEST_CACHE_SWEEP_INTERVAL", 30*time.Minute),
		SoldTTL:            getEnvAsDuration("AUTOINVEST_SOLD_TTL", 5*time.Minute),
		SoldFetchFailure:   getEnv("AUTOINVEST_SOLD_FETCH_FAILURE", SoldFailureKeepStale),
		TrackerLimit:       getEnvAsInt("AUTOINVEST_TRACKER_LIMIT", 64),
		Workers:            getEnvAsInt("AUTOINVEST_WORKERS", 4),
		PortfolioRefresh:   getEnvAsDuration("AUTOINVEST_PORTFOLIO_REFRESH", 5*time.Minute),
		MarketplacePoll:    getEnvAsDuration("AUTOINVEST_MARKETPLACE_POLL", time.Minute),
		MinIncrement:       getEnvAsDecimal("AUTOINVEST_MIN_INCREMENT", decimal.NewFromInt(200)),
		StrategyFile:       getEnv("AUTOINVEST_STRATEGY_FILE", ""),
		StateFormat:        strings.ToLower(getEnv("AUTOINVEST_STATE_FORMAT", StateFormatYAML)),
		Backup: BackupConfig{
			Cron:       os.Getenv("AUTOINVEST_BACKUP_CRON"),
			Keep:       getEnvAsInt("AUTOINVEST_BACKUP_KEEP", 7),
			S3Bucket:   getEnv("AUTOINVEST_S3_BUCKET", ""),
			S3Endpoint: getEnv("AUTOINVEST_S3_ENDPOINT", ""),
			S3Region:   getEnv("AUTOINVEST_S3_REGION", "auto"),

			S3AccessKey: getEnv("AUTOINVEST_S3_ACCESS_KEY", ""),
			S3SecretKey: getEnv("AUTOINVEST_S3_SECRET_KEY", ""),
		},
	}
	if _, set := os.LookupEnv("AUTOINVEST_BACKUP_CRON"); !set {
		cfg.Backup.Cron = "0 3 * * *"
	}

	if cfg.Workers < MinWorkers {
		cfg.Workers = MinWorkers
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if len(c.Accounts) == 0 {
		return fmt.Errorf("AUTOINVEST_ACCOUNTS must list at least one account")
	}
	switch c.StateFormat {
	case StateFormatYAML, StateFormatMsgpack:
	default:
		return fmt.Errorf("unsupported state format %q", c.StateFormat)
	}
	switch c.SoldFetchFailure {
	case SoldFailureKeepStale, SoldFailureAssumeNotSold:
	default:
		return fmt.Errorf("unsupported sold fetch failure policy %q", c.SoldFetchFailure)
	}
	if c.MinIncrement.IsNegative() {
		return fmt.Errorf("minimum increment must not be negative")
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	return nil
}

// StatePath is the file backing the persistent key/value store.
func (c *Config) StatePath() string {
	ext := ".yaml"
	if c.StateFormat == StateFormatMsgpack {
		ext = ".msgpack"
	}
	return filepath.Join(c.DataDir, "state"+ext)
}

// BackupDir is where backup archives are written.
func (c *Config) BackupDir() string {
	return filepath.Join(c.DataDir, "backups")
}

// loadAccounts parses the account list and picks up per-account tokens.
func loadAccounts(list string) []Account {
	var accounts []Account
	for _, name := range utils.ParseList(list) {
		accounts = append(accounts, Account{
			Username: name,
			Token:    getEnv(TokenKey(name), ""),
		})
	}
	return accounts
}

// TokenKey is the environment variable holding the bearer token for an account.
func TokenKey(username string) string {
	var b strings.Builder
	b.WriteString("AUTOINVEST_TOKEN_")
	for _, r := range strings.ToUpper(username) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}

func getEnvAsDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}
