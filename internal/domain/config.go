package domain

// Config holds the complete enforcement service configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines feature availability
	Tier Tier `json:"tier"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	// Enforcement is the injected policy regime: fixed penalty amounts,
	// payment terms, abuse thresholds. Explicit so the engine is testable
	// with alternate regimes without recompilation.
	Enforcement EnforcementConfig `json:"enforcement"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// EnforcementConfig holds the global enforcement settings consulted when
// cases are created and adjudicated.
type EnforcementConfig struct {
	// ViolationPenaltyAmount is the fixed circumvention penalty, set on a
	// violation case at creation and never recomputed.
	ViolationPenaltyAmount float64 `json:"violationPenaltyAmount"`

	// InvoiceTermDays: invoice due date = issue date + this term.
	InvoiceTermDays int `json:"invoiceTermDays"`

	// CollectionsGraceDays: unpaid this many days past due moves an
	// invoice to in_collection.
	CollectionsGraceDays int `json:"collectionsGraceDays"`

	// DisputeFeeAmount is the flat filing fee before abuse multipliers.
	DisputeFeeAmount float64 `json:"disputeFeeAmount"`

	// BanDurationDays is the temporary-ban cool-down.
	BanDurationDays int `json:"banDurationDays"`

	// Abuse scoring thresholds.
	MonthlyCaseThreshold int `json:"monthlyCaseThreshold"`
	TotalCaseThreshold   int `json:"totalCaseThreshold"`

	// MinDescriptionLen applies to violation and dispute submissions.
	MinDescriptionLen int `json:"minDescriptionLen"`

	// SweepIntervalSecs is how often the background worker runs the
	// grace-period and collections sweeps. 0 disables the timer; sweeps
	// can still be triggered externally.
	SweepIntervalSecs int `json:"sweepIntervalSecs"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool   `json:"enabled"`
	ServiceName  string `json:"serviceName"`
	ExporterType string `json:"exporterType"` // stdout, otlp, jaeger
	Endpoint     string `json:"endpoint"`
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity is the single-node tier with SQLite + channels
	TierCommunity Tier = "community"

	// TierPro is the hosted tier with PostgreSQL + NATS + Redis
	TierPro Tier = "pro"

	// TierEnterprise includes multi-node, SSO, etc.
	TierEnterprise Tier = "enterprise"
)

// DefaultEnforcement returns the stock enforcement regime.
func DefaultEnforcement() EnforcementConfig {
	return EnforcementConfig{
		ViolationPenaltyAmount: 5000,
		InvoiceTermDays:        30,
		CollectionsGraceDays:   30,
		DisputeFeeAmount:       250,
		BanDurationDays:        90,
		MonthlyCaseThreshold:   3,
		TotalCaseThreshold:     5,
		MinDescriptionLen:      20,
		SweepIntervalSecs:      300,
	}
}

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier: TierCommunity,
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./enforcement.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     300, // 5 minutes
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Enforcement: DefaultEnforcement(),
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "enforcement",
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
		PostgresDB:   "enforcement",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}
