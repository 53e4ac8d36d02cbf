package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("AUTOINVEST_DATA_DIR", dir)
	t.Setenv("AUTOINVEST_ACCOUNTS", "alice@example.com")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, time.Hour, cfg.LoanCacheTTL)
	assert.Equal(t, 30*time.Minute, cfg.CacheSweepInterval)
	assert.Equal(t, 5*time.Minute, cfg.SoldTTL)
	assert.Equal(t, SoldFailureKeepStale, cfg.SoldFetchFailure)
	assert.Equal(t, StateFormatYAML, cfg.StateFormat)
	assert.Equal(t, "0 3 * * *", cfg.Backup.Cron)
	assert.True(t, cfg.MinIncrement.Equal(decimal.NewFromInt(200)))
	assert.Equal(t, filepath.Join(dir, "state.yaml"), cfg.StatePath())
	require.Len(t, cfg.Accounts, 1)
	assert.Equal(t, "alice@example.com", cfg.Accounts[0].Username)
}

func TestLoad_RequiresAccounts(t *testing.T) {
	t.Setenv("AUTOINVEST_DATA_DIR", t.TempDir())
	t.Setenv("AUTOINVEST_ACCOUNTS", " , ")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_AccountsAndTokens(t *testing.T) {
	t.Setenv("AUTOINVEST_DATA_DIR", t.TempDir())
	t.Setenv("AUTOINVEST_ACCOUNTS", "alice, bob.smith ,alice")
	t.Setenv("AUTOINVEST_TOKEN_BOB_SMITH", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	require.Len(t, cfg.Accounts, 2)
	assert.Equal(t, "alice", cfg.Accounts[0].Username)
	assert.Equal(t, "", cfg.Accounts[0].Token)
	assert.Equal(t, "bob.smith", cfg.Accounts[1].Username)
	assert.Equal(t, "secret", cfg.Accounts[1].Token)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("AUTOINVEST_DATA_DIR", t.TempDir())
	t.Setenv("AUTOINVEST_ACCOUNTS", "alice")
	t.Setenv("AUTOINVEST_WORKERS", "1")
	t.Setenv("AUTOINVEST_MARKETPLACE_POLL", "15s")
	t.Setenv("AUTOINVEST_PORTFOLIO_REFRESH", "not-a-duration")
	t.Setenv("AUTOINVEST_STATE_FORMAT", "MSGPACK")
	t.Setenv("AUTOINVEST_MIN_INCREMENT", "500.5")
	t.Setenv("AUTOINVEST_BACKUP_CRON", "")
	t.Setenv("AUTOINVEST_DRY_RUN", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, MinWorkers, cfg.Workers, "pool size is clamped")
	assert.Equal(t, 15*time.Second, cfg.MarketplacePoll)
	assert.Equal(t, 5*time.Minute, cfg.PortfolioRefresh, "invalid duration falls back")
	assert.Equal(t, StateFormatMsgpack, cfg.StateFormat)
	assert.True(t, cfg.MinIncrement.Equal(decimal.RequireFromString("500.5")))
	assert.Equal(t, "", cfg.Backup.Cron, "explicitly empty cron disables backups")
	assert.True(t, cfg.DryRun)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Accounts:         []Account{{Username: "a"}},
			StateFormat:      StateFormatYAML,
			SoldFetchFailure: SoldFailureKeepStale,
			MinIncrement:     decimal.NewFromInt(200),
			Port:             8080,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"bad state format", func(c *Config) { c.StateFormat = "xml" }, true},
		{"bad sold policy", func(c *Config) { c.SoldFetchFailure = "guess" }, true},
		{"negative increment", func(c *Config) { c.MinIncrement = decimal.NewFromInt(-1) }, true},
		{"bad port", func(c *Config) { c.Port = 70000 }, true},
		{"server disabled", func(c *Config) { c.Port = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTokenKey(t *testing.T) {
	assert.Equal(t, "AUTOINVEST_TOKEN_ALICE_EXAMPLE_COM", TokenKey("alice@example.com"))
	assert.Equal(t, "AUTOINVEST_TOKEN_BOB1", TokenKey("bob1"))
}
