package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "server:\n  listen_address: \"0.0.0.0:9090\"\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.ListenAddress != "0.0.0.0:9090" {
		t.Errorf("ListenAddress = %q, want configured value preserved", cfg.Server.ListenAddress)
	}
	if cfg.Server.ReadTimeout != DefaultReadTimeout {
		t.Errorf("ReadTimeout = %v, want default %v", cfg.Server.ReadTimeout, DefaultReadTimeout)
	}
	if cfg.Policy.Dir != DefaultPolicyDir {
		t.Errorf("Policy.Dir = %q, want default %q", cfg.Policy.Dir, DefaultPolicyDir)
	}
	if cfg.Audit.Backend != DefaultAuditBackend {
		t.Errorf("Audit.Backend = %q, want default %q", cfg.Audit.Backend, DefaultAuditBackend)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("Load of a missing file should error")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfig(t, "server: [not a map\n")
	if _, err := Load(path); err == nil {
		t.Fatal("Load of invalid YAML should error")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{
			name:   "bad listen address",
			mutate: func(c *Config) { c.Server.ListenAddress = "no-port" },
			field:  "server.listen_address",
		},
		{
			name:   "unknown timezone",
			mutate: func(c *Config) { c.Policy.Timezone = "Mars/Olympus" },
			field:  "policy.timezone",
		},
		{
			name:   "unknown limits backend",
			mutate: func(c *Config) { c.Limits.Backend = "redis" },
			field:  "limits.backend",
		},
		{
			name:   "invalid prune schedule",
			mutate: func(c *Config) { c.Audit.PruneSchedule = "not cron" },
			field:  "audit.prune_schedule",
		},
		{
			name:   "unknown log level",
			mutate: func(c *Config) { c.Telemetry.Logging.Level = "chatty" },
			field:  "telemetry.logging.level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefault()
			tt.mutate(cfg)
			err := Validate(cfg)
			if err == nil {
				t.Fatal("Validate should fail")
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("error %q does not mention field %q", err, tt.field)
			}
		})
	}
}

func TestValidateDefaultConfig(t *testing.T) {
	if err := Validate(NewDefault()); err != nil {
		t.Fatalf("default configuration should validate: %v", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfig(t, "server:\n  listen_address: \"127.0.0.1:8080\"\n")

	t.Setenv("GANYMEDE_SERVER_LISTEN_ADDRESS", "0.0.0.0:9999")
	t.Setenv("GANYMEDE_POLICY_WATCH", "false")
	t.Setenv("GANYMEDE_ENGINE_DEDUP_TTL", "90s")
	t.Setenv("GANYMEDE_AUDIT_RETENTION_DAYS", "30")

	cfg, err := LoadWithEnvOverrides(path)
	if err != nil {
		t.Fatalf("LoadWithEnvOverrides: %v", err)
	}
	if cfg.Server.ListenAddress != "0.0.0.0:9999" {
		t.Errorf("ListenAddress = %q, env override not applied", cfg.Server.ListenAddress)
	}
	if cfg.Policy.Watch {
		t.Error("Policy.Watch = true, env override not applied")
	}
	if cfg.Engine.DedupTTL != 90*time.Second {
		t.Errorf("DedupTTL = %v, want 90s", cfg.Engine.DedupTTL)
	}
	if cfg.Audit.RetentionDays != 30 {
		t.Errorf("RetentionDays = %d, want 30", cfg.Audit.RetentionDays)
	}
}

func TestEnvOverrideFailsValidation(t *testing.T) {
	path := writeConfig(t, "server:\n  listen_address: \"127.0.0.1:8080\"\n")
	t.Setenv("GANYMEDE_LIMITS_BACKEND", "cassandra")

	if _, err := LoadWithEnvOverrides(path); err == nil {
		t.Fatal("invalid env override should fail validation")
	}
}
