// Package config loads the pipeline's YAML configuration file and applies
// CLI flag overrides, following the same load-then-validate shape the
// rest of the stack uses for its settings.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable of the ticker pipeline.
type Config struct {
	Product string `yaml:"product"`
	Output  string `yaml:"output"`
	WSURL   string `yaml:"ws_url"`

	EMAIntervalSeconds int `yaml:"ema_interval_seconds"`

	RingACapacity int `yaml:"ring_a_capacity"`
	RingBCapacity int `yaml:"ring_b_capacity"`

	FlushIntervalMS        int `yaml:"flush_interval_ms"`
	ShutdownTimeoutSeconds int `yaml:"shutdown_timeout_seconds"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`

	MetricsDBPath string `yaml:"metrics_db_path"`
}

// Default returns the configuration used when no file is present and no
// flags override it.
func Default() Config {
	var cfg Config
	cfg.Product = "BTC-USD"
	cfg.Output = "ticker_data.csv"
	cfg.WSURL = "wss://ws-feed.exchange.example/ws"
	cfg.EMAIntervalSeconds = 5
	cfg.RingACapacity = 1024
	cfg.RingBCapacity = 1024
	cfg.FlushIntervalMS = 10
	cfg.ShutdownTimeoutSeconds = 5
	cfg.Logging.Level = "info"
	cfg.MetricsDBPath = "tickerpipe_metrics.db"
	return cfg
}

// Load reads and parses the YAML file at path, starting from Default()
// so any field the file omits keeps its default. An absent file is not
// an error: the caller may be relying entirely on flag overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}

	return cfg, nil
}

// ApplyFlags overrides cfg's fields with any non-empty flag values parsed
// from the command line.
func ApplyFlags(cfg Config, product, output, wsURL string) Config {
	if product != "" {
		cfg.Product = product
	}
	if output != "" {
		cfg.Output = output
	}
	if wsURL != "" {
		cfg.WSURL = wsURL
	}
	return cfg
}

// Validate checks that the configuration is internally consistent.
func (c Config) Validate() error {
	if c.Product == "" {
		return fmt.Errorf("config: product must not be empty")
	}
	if c.Output == "" {
		return fmt.Errorf("config: output path must not be empty")
	}
	if c.WSURL == "" {
		return fmt.Errorf("config: ws_url must not be empty")
	}
	if c.EMAIntervalSeconds <= 0 {
		return fmt.Errorf("config: ema_interval_seconds must be positive")
	}
	if c.RingACapacity <= 0 || c.RingACapacity&(c.RingACapacity-1) != 0 {
		return fmt.Errorf("config: ring_a_capacity must be a power of two")
	}
	if c.RingBCapacity <= 0 || c.RingBCapacity&(c.RingBCapacity-1) != 0 {
		return fmt.Errorf("config: ring_b_capacity must be a power of two")
	}
	if c.FlushIntervalMS <= 0 {
		return fmt.Errorf("config: flush_interval_ms must be positive")
	}
	if c.ShutdownTimeoutSeconds <= 0 {
		return fmt.Errorf("config: shutdown_timeout_seconds must be positive")
	}
	return nil
}

// EMAInterval returns the configured EMA gating interval as a Duration.
func (c Config) EMAInterval() time.Duration {
	return time.Duration(c.EMAIntervalSeconds) * time.Second
}

// FlushInterval returns the configured persistence flush cadence.
func (c Config) FlushInterval() time.Duration {
	return time.Duration(c.FlushIntervalMS) * time.Millisecond
}

// ShutdownTimeout returns the configured bounded join timeout for
// cooperative shutdown.
func (c Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}
