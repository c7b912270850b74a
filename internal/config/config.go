// Package config defines the shipper's configuration, loaded from an
// optional YAML file and overlaid with defaults, in the style of
// controlplane/pkg/yncp.LoadConfig.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/c2h5oh/datasize"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/tempesta-tech/tfw-logshipper/common/go/logging"
)

// Config is the shipper's full configuration. DBHost is always supplied
// positionally on the command line (spec §6) and overrides whatever a
// config file sets.
type Config struct {
	// Logging is the logging subsystem configuration.
	Logging logging.Config `yaml:"logging"`
	// Device configures access to the producer's character device.
	Device DeviceConfig `yaml:"device"`
	// Metrics configures the Prometheus metrics HTTP endpoint.
	Metrics MetricsConfig `yaml:"metrics"`
	// Commit configures the database commit retry policy.
	Commit CommitConfig `yaml:"commit"`
	// DBHost is the analytics database host to connect to.
	DBHost string `yaml:"db_host"`
}

// DeviceConfig configures the producer device mapping.
type DeviceConfig struct {
	// Path is the character device path.
	Path string `yaml:"path"`
	// RegionSize is the size of each per-CPU mmap region (header + ring).
	RegionSize datasize.ByteSize `yaml:"region_size"`
	// RetryInterval is how long the supervisor waits between attempts to
	// open the device while it is absent.
	RetryInterval time.Duration `yaml:"retry_interval"`
}

// MetricsConfig configures the metrics HTTP endpoint.
type MetricsConfig struct {
	Endpoint string `yaml:"endpoint"`
}

// CommitConfig configures the bounded commit-retry policy (spec §7
// "Transient-IO").
type CommitConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	InitialWait time.Duration `yaml:"initial_wait"`
	MaxWait     time.Duration `yaml:"max_wait"`
}

// DefaultConfig returns the configuration used when no file is given and
// no flags override it.
func DefaultConfig() *Config {
	return &Config{
		Logging: logging.Config{
			Level: zapcore.InfoLevel,
		},
		Device: DeviceConfig{
			Path:          "/dev/tempesta_mmap_log",
			RegionSize:    datasize.ByteSize(4 * datasize.MB),
			RetryInterval: time.Second,
		},
		Metrics: MetricsConfig{
			Endpoint: ":9221",
		},
		Commit: CommitConfig{
			MaxAttempts: 5,
			InitialWait: 100 * time.Millisecond,
			MaxWait:     5 * time.Second,
		},
	}
}

// Load reads the configuration from path, overlaying it on top of
// DefaultConfig. An empty path returns the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read %q: %w", path, err)
	}

	if err := yaml.Unmarshal(buf, cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse %q: %w", path, err)
	}

	return cfg, nil
}
