package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	BackendMemory = "memory"
	BackendBolt   = "bolt"
	BackendRedis  = "redis"
)

// Duration parses "30s" style strings from YAML and env values.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	// yaml.v3 happily coerces bare ints to strings, so gate on the tag:
	// a unitless 30 must not sneak through as "30"
	if value.Tag != "!!str" {
		return fmt.Errorf("duration must be a string like \"30s\", got %s", value.Tag)
	}
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\": %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

type Config struct {
	Listen       string   `yaml:"listen"`
	AuthToken    string   `yaml:"auth_token"`
	Backend      string   `yaml:"backend"`
	RedisURL     string   `yaml:"redis_url"`
	BoltPath     string   `yaml:"bolt_path"`
	LeaseTTL     Duration `yaml:"lease_ttl"`
	PollInterval Duration `yaml:"poll_interval"`
}

func Default() Config {
	return Config{
		Listen:       ":9999",
		Backend:      BackendMemory,
		LeaseTTL:     Duration(30 * time.Second),
		PollInterval: Duration(time.Second),
	}
}

// Load reads the optional YAML file at path, applies CEPH_LCM_* env
// overrides on top and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("CEPH_LCM_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("CEPH_LCM_AUTH_TOKEN"); v != "" {
		c.AuthToken = v
	}
	if v := os.Getenv("CEPH_LCM_BACKEND"); v != "" {
		c.Backend = v
	}
	if v := os.Getenv("CEPH_LCM_REDIS_URL"); v != "" {
		c.RedisURL = v
	}
	if v := os.Getenv("CEPH_LCM_BOLT_PATH"); v != "" {
		c.BoltPath = v
	}
	if v := os.Getenv("CEPH_LCM_LEASE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("CEPH_LCM_LEASE_TTL: %w", err)
		}
		c.LeaseTTL = Duration(d)
	}
	if v := os.Getenv("CEPH_LCM_POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("CEPH_LCM_POLL_INTERVAL: %w", err)
		}
		c.PollInterval = Duration(d)
	}
	return nil
}

func (c Config) Validate() error {
	switch c.Backend {
	case BackendMemory:
	case BackendBolt:
		if c.BoltPath == "" {
			return fmt.Errorf("backend %q requires bolt_path", c.Backend)
		}
	case BackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("backend %q requires redis_url", c.Backend)
		}
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if c.Listen == "" {
		return fmt.Errorf("listen address is required")
	}
	if c.LeaseTTL <= 0 {
		return fmt.Errorf("lease_ttl must be positive")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}
	return nil
}
