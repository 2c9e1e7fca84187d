package config

import "time"

// Default values for configuration fields.
const (
	// Server defaults
	DefaultListenAddress   = "127.0.0.1:8080"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	// Policy defaults
	DefaultPolicyDir       = "policies"
	DefaultPolicyWatch     = true
	DefaultPolicyDebounce  = 250 * time.Millisecond
	DefaultPolicyTimezone  = "UTC"

	// Engine defaults
	DefaultDedupTTL = 5 * time.Minute

	// Limits defaults
	DefaultLimitsBackend       = "memory"
	DefaultLimitsSQLitePath    = "ganymede-limits.db"
	DefaultLimitsFlushInterval = time.Minute

	// Audit defaults
	DefaultAuditBackend       = "sqlite"
	DefaultAuditSQLitePath    = "ganymede-audit.db"
	DefaultAuditRetentionDays = 90
	DefaultAuditPruneSchedule = "0 3 * * *"

	// Telemetry defaults
	DefaultLoggingLevel   = "info"
	DefaultLoggingFormat  = "json"
	DefaultMetricsEnabled = true
	DefaultMetricsPath    = "/metrics"
)

// ApplyDefaults fills zero-valued fields with their defaults. Explicitly
// configured values are never overwritten.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	if cfg.Policy.Dir == "" {
		cfg.Policy.Dir = DefaultPolicyDir
	}
	if cfg.Policy.DebounceInterval == 0 {
		cfg.Policy.DebounceInterval = DefaultPolicyDebounce
	}
	if cfg.Policy.Timezone == "" {
		cfg.Policy.Timezone = DefaultPolicyTimezone
	}

	if cfg.Engine.DedupTTL == 0 {
		cfg.Engine.DedupTTL = DefaultDedupTTL
	}

	if cfg.Limits.Backend == "" {
		cfg.Limits.Backend = DefaultLimitsBackend
	}
	if cfg.Limits.SQLitePath == "" {
		cfg.Limits.SQLitePath = DefaultLimitsSQLitePath
	}
	if cfg.Limits.FlushInterval == 0 {
		cfg.Limits.FlushInterval = DefaultLimitsFlushInterval
	}

	if cfg.Audit.Backend == "" {
		cfg.Audit.Backend = DefaultAuditBackend
	}
	if cfg.Audit.SQLitePath == "" {
		cfg.Audit.SQLitePath = DefaultAuditSQLitePath
	}
	if cfg.Audit.RetentionDays == 0 {
		cfg.Audit.RetentionDays = DefaultAuditRetentionDays
	}
	if cfg.Audit.PruneSchedule == "" {
		cfg.Audit.PruneSchedule = DefaultAuditPruneSchedule
	}

	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultMetricsPath
	}
}

// NewDefault returns a configuration with every field at its default.
func NewDefault() *Config {
	cfg := &Config{
		Policy: PolicyConfig{Watch: DefaultPolicyWatch},
		Telemetry: TelemetryConfig{
			Metrics: MetricsConfig{Enabled: DefaultMetricsEnabled},
		},
	}
	ApplyDefaults(cfg)
	return cfg
}
