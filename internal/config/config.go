// Package config loads and validates gateway configuration.
//
// DESIGN: Configuration comes from a YAML file with env-var overrides for
// secrets. Anything not set falls back to the constants in defaults.go.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root gateway configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Cache     CacheConfig     `yaml:"cache"`
	Upstream  UpstreamConfig  `yaml:"upstream"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Pricing   PricingConfig   `yaml:"pricing"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	DrainTimeout    time.Duration `yaml:"drain_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// CacheConfig holds response cache settings. The cache is on unless
// explicitly disabled.
type CacheConfig struct {
	Disabled   bool          `yaml:"disabled"`
	MaxEntries int           `yaml:"max_entries"`
	MaxBytes   int64         `yaml:"max_bytes"`
	TTL        time.Duration `yaml:"ttl"`
}

// UpstreamConfig holds forwarding settings.
//
// Mode "forward" proxies to Endpoint; "simulate" synthesizes deterministic
// placeholder responses without any network I/O (useful for local testing
// and benchmarks).
type UpstreamConfig struct {
	Mode           string        `yaml:"mode"` // "forward" or "simulate"
	Endpoint       string        `yaml:"endpoint"`
	APIKeyEnv      string        `yaml:"api_key_env"` // env var holding the outbound key
	Timeout        time.Duration `yaml:"timeout"`
	MaxAttempts    int           `yaml:"max_attempts"`
	BackoffInitial time.Duration `yaml:"backoff_initial"`
	BackoffMax     time.Duration `yaml:"backoff_max"`
}

// AnalyticsConfig selects the call-history store.
type AnalyticsConfig struct {
	Driver string `yaml:"driver"` // "sqlite" or "memory"
	Path   string `yaml:"path"`   // sqlite file path
}

// MetricsConfig holds background aggregation settings.
type MetricsConfig struct {
	AggregationInterval time.Duration `yaml:"aggregation_interval"`
	RingCapacity        int           `yaml:"ring_capacity"`
	StreamInterval      time.Duration `yaml:"stream_interval"`
}

// PricingConfig holds catalog rules loaded from YAML.
// An empty Rules list means the built-in catalog is used.
type PricingConfig struct {
	Rules []PricingRule `yaml:"rules"`
}

// PricingRule is one catalog entry as it appears in config.
// Exact ids and prefix patterns share one declaration list; match order
// is the declaration order.
type PricingRule struct {
	Pattern       string  `yaml:"pattern"`
	InputPerMTok  float64 `yaml:"input_per_mtok"`
	OutputPerMTok float64 `yaml:"output_per_mtok"`
}

// LoggingConfig controls zerolog output.
type LoggingConfig struct {
	Level    string `yaml:"level"`
	FilePath string `yaml:"file_path"` // empty = stdout/stderr
}

// Load reads configuration from a YAML file. A missing path returns the
// default configuration rather than an error.
func Load(path string) (*Config, error) {
	if path == "" {
		cfg := &Config{}
		cfg.applyDefaults()
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return LoadFromBytes(data)
}

// LoadFromBytes parses configuration from raw YAML.
func LoadFromBytes(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills zero values with the constants from defaults.go.
func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultServerPort
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = DefaultServerReadTimeout
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = DefaultServerWriteTimeout
	}
	if c.Server.DrainTimeout == 0 {
		c.Server.DrainTimeout = DefaultDrainTimeout
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultServerShutdownTimeout
	}

	if c.Cache.MaxEntries == 0 {
		c.Cache.MaxEntries = DefaultCacheMaxEntries
	}
	if c.Cache.MaxBytes == 0 {
		c.Cache.MaxBytes = DefaultCacheMaxBytes
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = DefaultCacheTTL
	}

	if c.Upstream.Mode == "" {
		c.Upstream.Mode = "simulate"
	}
	if c.Upstream.Timeout == 0 {
		c.Upstream.Timeout = DefaultUpstreamTimeout
	}
	if c.Upstream.MaxAttempts == 0 {
		c.Upstream.MaxAttempts = DefaultUpstreamMaxAttempts
	}
	if c.Upstream.BackoffInitial == 0 {
		c.Upstream.BackoffInitial = DefaultUpstreamBackoffInitial
	}
	if c.Upstream.BackoffMax == 0 {
		c.Upstream.BackoffMax = DefaultUpstreamBackoffMax
	}

	if c.Analytics.Driver == "" {
		c.Analytics.Driver = "memory"
	}

	if c.Metrics.AggregationInterval == 0 {
		c.Metrics.AggregationInterval = DefaultAggregationInterval
	}
	if c.Metrics.RingCapacity == 0 {
		c.Metrics.RingCapacity = DefaultSnapshotRingCapacity
	}
	if c.Metrics.StreamInterval == 0 {
		c.Metrics.StreamInterval = DefaultStreamInterval
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate checks configuration consistency.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in [0, 65535], got %d", c.Server.Port)
	}
	if c.Cache.MaxEntries < 0 {
		return fmt.Errorf("cache.max_entries must be >= 0, got %d", c.Cache.MaxEntries)
	}
	if c.Cache.MaxBytes < 0 {
		return fmt.Errorf("cache.max_bytes must be >= 0, got %d", c.Cache.MaxBytes)
	}
	switch c.Upstream.Mode {
	case "forward", "simulate":
	default:
		return fmt.Errorf("upstream.mode must be forward or simulate, got %q", c.Upstream.Mode)
	}
	if c.Upstream.Mode == "forward" && c.Upstream.Endpoint == "" {
		return fmt.Errorf("upstream.endpoint is required when upstream.mode is forward")
	}
	if c.Upstream.MaxAttempts < 1 {
		return fmt.Errorf("upstream.max_attempts must be >= 1, got %d", c.Upstream.MaxAttempts)
	}
	switch c.Analytics.Driver {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("analytics.driver must be sqlite or memory, got %q", c.Analytics.Driver)
	}
	if c.Analytics.Driver == "sqlite" && c.Analytics.Path == "" {
		return fmt.Errorf("analytics.path is required when analytics.driver is sqlite")
	}
	if c.Metrics.RingCapacity < 1 {
		return fmt.Errorf("metrics.ring_capacity must be >= 1, got %d", c.Metrics.RingCapacity)
	}
	for i, r := range c.Pricing.Rules {
		if r.Pattern == "" {
			return fmt.Errorf("pricing.rules[%d].pattern must not be empty", i)
		}
		if r.InputPerMTok < 0 || r.OutputPerMTok < 0 {
			return fmt.Errorf("pricing.rules[%d] prices must be >= 0", i)
		}
	}
	return nil
}
