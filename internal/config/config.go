// Package config handles loading and validating the analyst.toml configuration file.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the top-level configuration.
type Config struct {
	Search    SearchConfig    `toml:"search"`
	Session   SessionConfig   `toml:"session"`
	Audit     AuditConfig     `toml:"audit"`
	Detection DetectionConfig `toml:"detection"`
	Log       LogConfig       `toml:"log"`
	Server    ServerConfig    `toml:"server"`
}

// SearchConfig selects and configures the search execution backend.
type SearchConfig struct {
	Backend  string `toml:"backend"` // fixture | elasticsearch
	Fixture  string `toml:"fixture"` // JSON file of documents for the fixture backend
	Endpoint string `toml:"endpoint"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	Timeout  int    `toml:"timeout"` // seconds
	// RateLimit caps outgoing requests per second (0 = unlimited).
	RateLimit float64 `toml:"rate_limit"`
}

// SessionConfig selects the conversation context backend.
type SessionConfig struct {
	Backend       string `toml:"backend"` // memory | redis
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	KeyPrefix     string `toml:"key_prefix"`
	// TTL in hours for redis-backed sessions (0 = no expiry).
	TTL int `toml:"ttl"`
}

// AuditConfig configures the write-only audit sink.
type AuditConfig struct {
	Sink    string `toml:"sink"` // none | file | nats
	Path    string `toml:"path"`
	NATSURL string `toml:"nats_url"`
	Subject string `toml:"subject"`
}

// DetectionConfig tunes the anomaly model.
type DetectionConfig struct {
	MinBatch      int     `toml:"min_batch"`
	Contamination float64 `toml:"contamination"`
	Trees         int     `toml:"trees"`
	SampleSize    int     `toml:"sample_size"`
	Seed          int64   `toml:"seed"`
}

// LogConfig configures zap output.
type LogConfig struct {
	Level      string `toml:"level"`
	Format     string `toml:"format"` // console | json
	File       string `toml:"file"`
	MaxSize    int    `toml:"max_size"` // megabytes
	MaxBackups int    `toml:"max_backups"`
	MaxAge     int    `toml:"max_age"` // days
	Compress   bool   `toml:"compress"`
}

// ServerConfig configures the local HTTP surface.
type ServerConfig struct {
	Listen string `toml:"listen"`
}

// minBatchFloor is the smallest batch the anomaly model will score.
const minBatchFloor = 10

// Default returns a configuration that runs entirely in-process.
func Default() *Config {
	return &Config{
		Search: SearchConfig{
			Backend: "fixture",
			Timeout: 30,
		},
		Session: SessionConfig{
			Backend:   "memory",
			RedisAddr: "localhost:6379",
			KeyPrefix: "analyst:session:",
			TTL:       24,
		},
		Audit: AuditConfig{
			Sink:    "none",
			Path:    "audit.jsonl",
			Subject: "analyst.audit.query",
		},
		Detection: DetectionConfig{
			MinBatch:      10,
			Contamination: 0.1,
			Trees:         100,
			SampleSize:    256,
			Seed:          42,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "console",
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     28,
		},
		Server: ServerConfig{
			Listen: "127.0.0.1:8000",
		},
	}
}

// Load reads a config file and returns a validated Config.
// An empty path yields the defaults plus environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("config file not found: %s\n  Create one with: cp analyst.example.toml analyst.toml", path)
			}
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	}

	// Environment variable overrides for sensitive values
	if pw := os.Getenv("ANALYST_SEARCH_PASSWORD"); pw != "" {
		cfg.Search.Password = pw
	}
	if pw := os.Getenv("ANALYST_REDIS_PASSWORD"); pw != "" {
		cfg.Session.RedisPassword = pw
	}
	if url := os.Getenv("ANALYST_NATS_URL"); url != "" {
		cfg.Audit.NATSURL = url
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// SearchTimeout returns the search timeout as a duration.
func (c *Config) SearchTimeout() time.Duration {
	return time.Duration(c.Search.Timeout) * time.Second
}

// SessionTTL returns the redis session expiry as a duration.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Session.TTL) * time.Hour
}

func (c *Config) validate() error {
	c.Search.Backend = strings.ToLower(c.Search.Backend)
	switch c.Search.Backend {
	case "fixture":
	case "elasticsearch":
		if c.Search.Endpoint == "" {
			return fmt.Errorf("search.endpoint is required for backend %q", c.Search.Backend)
		}
	case "":
		return fmt.Errorf("search.backend is required (fixture, elasticsearch)")
	default:
		return fmt.Errorf("unsupported search.backend: %q", c.Search.Backend)
	}
	if c.Search.Timeout <= 0 {
		c.Search.Timeout = 30
	}
	if c.Search.RateLimit < 0 {
		return fmt.Errorf("search.rate_limit must be >= 0")
	}

	c.Session.Backend = strings.ToLower(c.Session.Backend)
	switch c.Session.Backend {
	case "memory", "":
		c.Session.Backend = "memory"
	case "redis":
		if c.Session.RedisAddr == "" {
			return fmt.Errorf("session.redis_addr is required for backend %q", c.Session.Backend)
		}
	default:
		return fmt.Errorf("unsupported session.backend: %q", c.Session.Backend)
	}

	c.Audit.Sink = strings.ToLower(c.Audit.Sink)
	switch c.Audit.Sink {
	case "none", "":
		c.Audit.Sink = "none"
	case "file":
		if c.Audit.Path == "" {
			return fmt.Errorf("audit.path is required for sink %q", c.Audit.Sink)
		}
	case "nats":
		if c.Audit.NATSURL == "" {
			return fmt.Errorf("audit.nats_url is required for sink %q", c.Audit.Sink)
		}
		if c.Audit.Subject == "" {
			return fmt.Errorf("audit.subject is required for sink %q", c.Audit.Sink)
		}
	default:
		return fmt.Errorf("unsupported audit.sink: %q", c.Audit.Sink)
	}

	if c.Detection.Contamination <= 0 || c.Detection.Contamination > 0.5 {
		return fmt.Errorf("detection.contamination must be in (0, 0.5], got %v", c.Detection.Contamination)
	}
	// Batches under ten events are never scored; the knob can only raise the floor.
	if c.Detection.MinBatch < minBatchFloor {
		c.Detection.MinBatch = minBatchFloor
	}
	if c.Detection.Trees <= 0 {
		c.Detection.Trees = 100
	}
	if c.Detection.SampleSize <= 0 {
		c.Detection.SampleSize = 256
	}

	switch strings.ToLower(c.Log.Format) {
	case "console", "json":
		c.Log.Format = strings.ToLower(c.Log.Format)
	case "":
		c.Log.Format = "console"
	default:
		return fmt.Errorf("unsupported log.format: %q", c.Log.Format)
	}

	if c.Server.Listen == "" {
		c.Server.Listen = "127.0.0.1:8000"
	}

	return nil
}
