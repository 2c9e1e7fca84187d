package config

import "time"

// Config is the root configuration structure for Ganymede. It contains
// all configuration sections for the management server, policy loading,
// the evaluation engine, limit persistence, audit storage, and telemetry.
type Config struct {
	// Server contains HTTP management API configuration including listen
	// address and timeouts.
	Server ServerConfig `yaml:"server"`

	// Policy contains configuration for policy loading including the
	// policy directory, watch mode, and the store timezone.
	Policy PolicyConfig `yaml:"policy"`

	// Engine contains evaluation engine configuration.
	Engine EngineConfig `yaml:"engine"`

	// Limits contains configuration for limit counter persistence.
	Limits LimitsConfig `yaml:"limits"`

	// Audit contains configuration for audit storage and retention.
	Audit AuditConfig `yaml:"audit"`

	// Telemetry contains configuration for observability including
	// logging and metrics.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig contains configuration for the HTTP management server.
type ServerConfig struct {
	// ListenAddress is the address and port for the management API.
	// Format: "host:port" (e.g., "127.0.0.1:8080").
	// Default: "127.0.0.1:8080"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading the entire request,
	// including the body. A zero or negative value means no timeout.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of
	// the response. A zero or negative value means no timeout.
	// Default: 30s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the maximum amount of time to wait for the next
	// request when keep-alives are enabled.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout is the maximum duration to wait for graceful
	// shutdown before in-flight requests are abandoned.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// PolicyConfig contains configuration for policy loading.
type PolicyConfig struct {
	// Dir is the directory holding policy YAML files. Files are loaded
	// in lexical order at startup.
	// Default: "policies"
	Dir string `yaml:"dir"`

	// Watch controls whether the policy directory is watched for changes
	// and reloaded automatically.
	// Default: true
	Watch bool `yaml:"watch"`

	// DebounceInterval is how long to wait after a filesystem event
	// before reloading, coalescing editor write bursts.
	// Default: 250ms
	DebounceInterval time.Duration `yaml:"debounce_interval"`

	// Timezone is the IANA timezone used for daily risk budget rollover
	// and time gate defaults.
	// Default: "UTC"
	Timezone string `yaml:"timezone"`
}

// EngineConfig contains evaluation engine configuration.
type EngineConfig struct {
	// DedupTTL is how long a decision is replayed for a repeated
	// idempotency key.
	// Default: 5m
	DedupTTL time.Duration `yaml:"dedup_ttl"`
}

// LimitsConfig contains configuration for limit counter persistence.
type LimitsConfig struct {
	// Persistence controls whether rate counters and risk budgets
	// survive restarts. Backend is "memory" or "sqlite".
	// Default: "memory"
	Backend string `yaml:"backend"`

	// SQLitePath is the database file path for the sqlite backend.
	// Default: "ganymede-limits.db"
	SQLitePath string `yaml:"sqlite_path"`

	// FlushInterval is how often live counters are written to the
	// backend.
	// Default: 1m
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// AuditConfig contains configuration for audit storage and retention.
type AuditConfig struct {
	// Backend selects the audit store: "memory" or "sqlite".
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// SQLitePath is the database file path for the sqlite backend.
	// Default: "ganymede-audit.db"
	SQLitePath string `yaml:"sqlite_path"`

	// RetentionDays is how long entries are kept before pruning.
	// Zero disables pruning.
	// Default: 90
	RetentionDays int `yaml:"retention_days"`

	// PruneSchedule is the cron expression for retention pruning runs.
	// Default: "0 3 * * *"
	PruneSchedule string `yaml:"prune_schedule"`
}

// TelemetryConfig contains configuration for observability.
type TelemetryConfig struct {
	// Logging contains structured logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains Prometheus metrics configuration.
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig contains structured logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, or error.
	// Default: "info"
	Level string `yaml:"level"`

	// Format is the log output format: "json" or "text".
	// Default: "json"
	Format string `yaml:"format"`
}

// MetricsConfig contains Prometheus metrics configuration.
type MetricsConfig struct {
	// Enabled controls whether the metrics endpoint is exposed.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the HTTP path for the metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`
}
