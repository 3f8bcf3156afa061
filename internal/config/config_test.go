package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/harrier/internal/domain"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, domain.TierCommunity, cfg.Tier)
	assert.Equal(t, domain.DefaultRuleConfig(), cfg.Rules)
	assert.Equal(t, domain.DefaultRuntimeRules, cfg.RuntimeRules)
	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Repository.Driver)
	assert.Equal(t, 5*time.Minute, cfg.Cache.LocalTTL)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HARRIER_RULES_VELOCITY_WINDOW_MINUTES", "15")
	t.Setenv("HARRIER_RULES_AMOUNT_DEVIATION_STD_THRESHOLD", "3.5")
	t.Setenv("HARRIER_RUNTIME_RULES", "amount_deviation,time_anomaly")
	t.Setenv("HARRIER_CACHE_REPORT_TTL", "90s")
	t.Setenv("HARRIER_DEBUG", "true")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 15, cfg.Rules.VelocityWindowMinutes)
	assert.Equal(t, 3.5, cfg.Rules.AmountDeviationStdThreshold)
	assert.Equal(t, []string{"amount_deviation", "time_anomaly"}, cfg.RuntimeRules)
	assert.Equal(t, 90*time.Second, cfg.Cache.ReportTTL)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadProTier(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HARRIER_TIER", "pro")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, domain.TierPro, cfg.Tier)
	assert.Equal(t, "postgres", cfg.Repository.Driver)
	assert.Equal(t, "redis", cfg.Cache.Type)
	assert.Equal(t, "nats", cfg.EventBus.Type)
	assert.True(t, cfg.AsyncWorker)
}

func TestLoadFileAndDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	file := filepath.Join(dir, "harrier.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
rules:
  min_user_history: 5
  velocity_threshold_count: 4
data:
  input_path: /srv/tx.csv
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("HARRIER_RULES_VELOCITY_THRESHOLD_COUNT=6\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("HARRIER_RULES_VELOCITY_THRESHOLD_COUNT") })

	cfg, err := Load(file)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Rules.MinUserHistory)
	assert.Equal(t, "/srv/tx.csv", cfg.Data.InputPath)
	// environment wins over the file
	assert.Equal(t, 6, cfg.Rules.VelocityThresholdCount)
	assert.Equal(t, 30, cfg.Rules.VelocityWindowMinutes)
}

func TestLoadMissingFile(t *testing.T) {
	t.Chdir(t.TempDir())
	_, err := Load("does-not-exist.yaml")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.Config)
	}{
		{"ZeroWindow", func(c *domain.Config) { c.Rules.VelocityWindowMinutes = 0 }},
		{"ZeroThreshold", func(c *domain.Config) { c.Rules.VelocityThresholdCount = 0 }},
		{"NegativeTolerance", func(c *domain.Config) { c.Rules.TimeAnomalyHourTolerance = -1 }},
		{"ZeroStd", func(c *domain.Config) { c.Rules.AmountDeviationStdThreshold = 0 }},
		{"ZeroHistory", func(c *domain.Config) { c.Rules.MinUserHistory = 0 }},
		{"UnknownRuntimeRule", func(c *domain.Config) { c.RuntimeRules = []string{"geo_anomaly"} }},
		{"UnknownSource", func(c *domain.Config) { c.Data.Source = "s3" }},
		{"RepositorySourceWithoutDriver", func(c *domain.Config) {
			c.Data.Source = domain.SourceRepository
			c.Repository.Driver = "none"
		}},
		{"BadPort", func(c *domain.Config) { c.Server.Port = 70000 }},
	}

	require.NoError(t, Validate(domain.DefaultConfig()))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := domain.DefaultConfig()
			tt.mutate(cfg)
			assert.ErrorIs(t, Validate(cfg), ErrInvalidConfig)
		})
	}
}
