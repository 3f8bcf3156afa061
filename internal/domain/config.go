package domain

import "time"

// Config holds the complete Harrier configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server" mapstructure:"server"`

	// Tier determines which backends are wired
	Tier Tier `json:"tier" mapstructure:"tier"`

	// Rules holds the detection thresholds
	Rules RuleConfig `json:"rules" mapstructure:"rules"`

	// RuntimeRules lists the rule identifiers applied to single-transaction checks.
	// Batch analysis always applies the full rule set.
	RuntimeRules []string `json:"runtimeRules" mapstructure:"runtime_rules"`

	// Data locations for batch analysis
	Data DataConfig `json:"data" mapstructure:"data"`

	// Component configurations
	Repository RepositoryConfig `json:"repository" mapstructure:"repository"`
	Cache      CacheConfig      `json:"cache" mapstructure:"cache"`
	EventBus   EventBusConfig   `json:"eventBus" mapstructure:"event_bus"`

	// Observability
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`
	Tracing TracingConfig `json:"tracing" mapstructure:"tracing"`
	Metrics MetricsConfig `json:"metrics" mapstructure:"metrics"`

	// AsyncWorker enables the bus-driven check worker.
	AsyncWorker bool `json:"asyncWorker" mapstructure:"async_worker"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host" mapstructure:"host"`
	Port         int    `json:"port" mapstructure:"port"`
	ReadTimeout  int    `json:"readTimeout" mapstructure:"read_timeout"`   // seconds
	WriteTimeout int    `json:"writeTimeout" mapstructure:"write_timeout"` // seconds
}

// DataConfig points at the batch input and export targets.
type DataConfig struct {
	// Source is "file" (InputPath) or "repository" (stored history).
	Source     string `json:"source" mapstructure:"source"`
	InputPath  string `json:"inputPath" mapstructure:"input_path"`
	OutputPath string `json:"outputPath" mapstructure:"output_path"`
	ReportPath string `json:"reportPath" mapstructure:"report_path"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `json:"format" mapstructure:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `json:"enabled" mapstructure:"enabled"`
	ServiceName string `json:"serviceName" mapstructure:"service_name"`
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Path    string `json:"path" mapstructure:"path"`
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity runs on SQLite, an in-process cache and channels
	TierCommunity Tier = "community"

	// TierPro runs on PostgreSQL, Redis and NATS
	TierPro Tier = "pro"
)

// Data sources for batch analysis.
const (
	SourceFile       = "file"
	SourceRepository = "repository"
)

// DefaultRuntimeRules is the rule subset used for single-transaction checks.
// A lone transaction cannot trip the velocity rule, so it is left out.
var DefaultRuntimeRules = []string{"amount_deviation", "merchant_anomaly", "time_anomaly"}

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8000,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier:         TierCommunity,
		Rules:        DefaultRuleConfig(),
		RuntimeRules: append([]string(nil), DefaultRuntimeRules...),
		Data: DataConfig{
			Source:     SourceFile,
			InputPath:  "./data/user_transactions.csv",
			OutputPath: "./data/output.csv",
			ReportPath: "./data/report.json",
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./harrier.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
			ReportTTL:    24 * time.Hour,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "harrier",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "harrier",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       time.Minute,
		ReportTTL:      24 * time.Hour,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	cfg.AsyncWorker = true
	return cfg
}
