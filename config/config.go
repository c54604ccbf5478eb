package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sentinelops/arbiter/policy"
)

// Config represents the main configuration
type Config struct {
	ListenAddr  string `yaml:"listen_addr"`
	MetricsAddr string `yaml:"metrics_addr,omitempty"`
	StorageDir  string `yaml:"storage_dir"`
	AuditDir    string `yaml:"audit_dir"`

	Policy policy.Thresholds `yaml:"policy"`

	// PendingHorizon is how long a pending action waits for a human
	// decision before expiring.
	PendingHorizon time.Duration `yaml:"pending_horizon"`
	SweepInterval  time.Duration `yaml:"sweep_interval"`

	// CorrelationWindow bounds how far apart signals may be and still
	// combine into one confidence score.
	CorrelationWindow time.Duration `yaml:"correlation_window"`
}

// Default returns a configuration with standard values
func Default() Config {
	return Config{
		ListenAddr:        ":8080",
		StorageDir:        "data",
		AuditDir:          "data/audit",
		Policy:            policy.DefaultThresholds(),
		PendingHorizon:    24 * time.Hour,
		SweepInterval:     time.Minute,
		CorrelationWindow: 15 * time.Minute,
	}
}

// Load reads configuration from file, applying defaults for absent fields
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is intentional user input
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Validate ensures config has required fields and sane values.
// A malformed policy section is fatal; the engine must not start with it.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr is required")
	}
	if c.StorageDir == "" {
		return fmt.Errorf("storage_dir is required")
	}
	if c.AuditDir == "" {
		return fmt.Errorf("audit_dir is required")
	}
	if c.PendingHorizon <= 0 {
		return fmt.Errorf("pending_horizon must be positive")
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("sweep_interval must be positive")
	}
	if c.CorrelationWindow <= 0 {
		return fmt.Errorf("correlation_window must be positive")
	}
	return c.Policy.Validate()
}
