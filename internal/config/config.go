// Package config loads Harrier configuration from defaults, an optional
// config file, a .env file and HARRIER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/rules"
)

// EnvPrefix prefixes every environment override, e.g. HARRIER_RULES_MIN_USER_HISTORY.
const EnvPrefix = "HARRIER"

// ErrInvalidConfig is returned when a loaded configuration fails validation.
var ErrInvalidConfig = errors.New("invalid configuration")

// Load builds the configuration. Precedence, lowest first: tier defaults,
// config file, environment. path may be empty; HARRIER_CONFIG is used then.
func Load(path string) (*domain.Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	base := domain.DefaultConfig()
	if strings.EqualFold(os.Getenv(EnvPrefix+"_TIER"), string(domain.TierPro)) {
		base = domain.ProConfig()
	}

	v := viper.New()
	setDefaults(v, base)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = os.Getenv(EnvPrefix + "_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg domain.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if v.GetBool("debug") {
		cfg.Logging.Level = "debug"
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Validate checks thresholds, the runtime rule subset and backend choices.
func Validate(cfg *domain.Config) error {
	r := cfg.Rules
	switch {
	case r.VelocityWindowMinutes <= 0:
		return fmt.Errorf("%w: velocity_window_minutes must be positive", ErrInvalidConfig)
	case r.VelocityThresholdCount <= 0:
		return fmt.Errorf("%w: velocity_threshold_count must be positive", ErrInvalidConfig)
	case r.TimeAnomalyHourTolerance < 0:
		return fmt.Errorf("%w: time_anomaly_hour_tolerance must not be negative", ErrInvalidConfig)
	case r.AmountDeviationStdThreshold <= 0:
		return fmt.Errorf("%w: amount_deviation_std_threshold must be positive", ErrInvalidConfig)
	case r.MinUserHistory <= 0:
		return fmt.Errorf("%w: min_user_history must be positive", ErrInvalidConfig)
	}

	if _, err := rules.ParseKinds(cfg.RuntimeRules); err != nil {
		return fmt.Errorf("%w: runtime_rules: %v", ErrInvalidConfig, err)
	}

	switch cfg.Data.Source {
	case domain.SourceFile, domain.SourceRepository:
	default:
		return fmt.Errorf("%w: unknown data source %q", ErrInvalidConfig, cfg.Data.Source)
	}
	if cfg.Data.Source == domain.SourceRepository && cfg.Repository.Driver == "none" {
		return fmt.Errorf("%w: data source repository needs a repository driver", ErrInvalidConfig)
	}

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("%w: server port %d out of range", ErrInvalidConfig, cfg.Server.Port)
	}
	return nil
}

func setDefaults(v *viper.Viper, c *domain.Config) {
	v.SetDefault("debug", false)

	v.SetDefault("server.host", c.Server.Host)
	v.SetDefault("server.port", c.Server.Port)
	v.SetDefault("server.read_timeout", c.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", c.Server.WriteTimeout)

	v.SetDefault("tier", string(c.Tier))

	v.SetDefault("rules.velocity_window_minutes", c.Rules.VelocityWindowMinutes)
	v.SetDefault("rules.velocity_threshold_count", c.Rules.VelocityThresholdCount)
	v.SetDefault("rules.time_anomaly_hour_tolerance", c.Rules.TimeAnomalyHourTolerance)
	v.SetDefault("rules.merchant_anomaly_risk_threshold", c.Rules.MerchantAnomalyRiskThreshold)
	v.SetDefault("rules.amount_deviation_std_threshold", c.Rules.AmountDeviationStdThreshold)
	v.SetDefault("rules.min_user_history", c.Rules.MinUserHistory)
	v.SetDefault("runtime_rules", c.RuntimeRules)

	v.SetDefault("data.source", c.Data.Source)
	v.SetDefault("data.input_path", c.Data.InputPath)
	v.SetDefault("data.output_path", c.Data.OutputPath)
	v.SetDefault("data.report_path", c.Data.ReportPath)

	v.SetDefault("repository.driver", c.Repository.Driver)
	v.SetDefault("repository.sqlite_path", c.Repository.SQLitePath)
	v.SetDefault("repository.postgres_host", c.Repository.PostgresHost)
	v.SetDefault("repository.postgres_port", c.Repository.PostgresPort)
	v.SetDefault("repository.postgres_user", c.Repository.PostgresUser)
	v.SetDefault("repository.postgres_password", c.Repository.PostgresPassword)
	v.SetDefault("repository.postgres_db", c.Repository.PostgresDB)
	v.SetDefault("repository.postgres_sslmode", c.Repository.PostgresSSLMode)
	v.SetDefault("repository.max_open_conns", c.Repository.MaxOpenConns)
	v.SetDefault("repository.max_idle_conns", c.Repository.MaxIdleConns)
	v.SetDefault("repository.conn_max_lifetime", c.Repository.ConnMaxLifetime)

	v.SetDefault("cache.type", c.Cache.Type)
	v.SetDefault("cache.local_max_size", c.Cache.LocalMaxSize)
	v.SetDefault("cache.local_ttl", c.Cache.LocalTTL)
	v.SetDefault("cache.redis_addr", c.Cache.RedisAddr)
	v.SetDefault("cache.redis_password", c.Cache.RedisPassword)
	v.SetDefault("cache.redis_db", c.Cache.RedisDB)
	v.SetDefault("cache.enable_two_phase", c.Cache.EnableTwoPhase)
	v.SetDefault("cache.report_ttl", c.Cache.ReportTTL)

	v.SetDefault("event_bus.type", c.EventBus.Type)
	v.SetDefault("event_bus.channel_buffer_size", c.EventBus.ChannelBufferSize)
	v.SetDefault("event_bus.nats_url", c.EventBus.NATSUrl)
	v.SetDefault("event_bus.nats_token", c.EventBus.NATSToken)
	v.SetDefault("event_bus.nats_max_reconnects", c.EventBus.NATSMaxReconnects)
	v.SetDefault("event_bus.nats_reconnect_wait", c.EventBus.NATSReconnectWait)

	v.SetDefault("logging.level", c.Logging.Level)
	v.SetDefault("logging.format", c.Logging.Format)
	v.SetDefault("tracing.enabled", c.Tracing.Enabled)
	v.SetDefault("tracing.service_name", c.Tracing.ServiceName)
	v.SetDefault("metrics.enabled", c.Metrics.Enabled)
	v.SetDefault("metrics.path", c.Metrics.Path)

	v.SetDefault("async_worker", c.AsyncWorker)
}
