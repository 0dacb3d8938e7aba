package config

import (
	"path/filepath"
	"time"

	"grimm.is/pfw/internal/brand"
)

// CurrentSchemaVersion is the config schema this build writes.
const CurrentSchemaVersion = "1.0"

// Default values applied when the file leaves a setting empty.
const (
	DefaultReadTimeout     = 10 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
	DefaultMaxBodyBytes    = 1 << 20
	DefaultMaxConnections  = 512
	DefaultConsoleTimeout  = 10 * time.Second
)

// Config is the top-level pfw configuration.
type Config struct {
	SchemaVersion string `hcl:"schema_version,optional" json:"schema_version,omitempty"`

	Server  *ServerConfig  `hcl:"server,block" json:"server,omitempty"`
	Store   *StoreConfig   `hcl:"store,block" json:"store,omitempty"`
	Console *ConsoleConfig `hcl:"console,block" json:"console,omitempty"`
	Logging *LoggingConfig `hcl:"logging,block" json:"logging,omitempty"`
}

// ServerConfig configures the rule store service.
type ServerConfig struct {
	Listen string `hcl:"listen,optional" json:"listen,omitempty"`

	// Durations use Go syntax ("10s", "2m").
	ReadTimeout     string `hcl:"read_timeout,optional" json:"read_timeout,omitempty"`
	WriteTimeout    string `hcl:"write_timeout,optional" json:"write_timeout,omitempty"`
	IdleTimeout     string `hcl:"idle_timeout,optional" json:"idle_timeout,omitempty"`
	ShutdownTimeout string `hcl:"shutdown_timeout,optional" json:"shutdown_timeout,omitempty"`

	MaxBodyBytes   int64 `hcl:"max_body_bytes,optional" json:"max_body_bytes,omitempty"`
	MaxConnections int   `hcl:"max_connections,optional" json:"max_connections,omitempty"`

	// CORSOrigins lists allowed origins. Empty allows any origin.
	CORSOrigins []string `hcl:"cors_origins,optional" json:"cors_origins,omitempty"`

	RateLimit *RateLimitConfig `hcl:"rate_limit,block" json:"rate_limit,omitempty"`

	// APIKeys guard mutations when present. Reads stay open.
	APIKeys []APIKeyConfig `hcl:"api_key,block" json:"api_keys,omitempty"`
}

// RateLimitConfig limits mutations per client address.
type RateLimitConfig struct {
	Requests int    `hcl:"requests,optional" json:"requests,omitempty"`
	Interval string `hcl:"interval,optional" json:"interval,omitempty"`
}

// APIKeyConfig is a named bcrypt hash of an API key.
type APIKeyConfig struct {
	Name string `hcl:"name,label" json:"name"`
	Hash string `hcl:"hash" json:"hash"`
}

// StoreConfig selects the rule store backend.
type StoreConfig struct {
	Kind string `hcl:"kind,optional" json:"kind,omitempty"`
	Path string `hcl:"path,optional" json:"path,omitempty"`

	// Strict rejects rules with unknown actions, protocols or malformed
	// addresses. The default accepts anything that decodes.
	Strict bool `hcl:"strict,optional" json:"strict,omitempty"`
}

// ConsoleConfig configures the console and the rules CLI.
type ConsoleConfig struct {
	ServerURL string `hcl:"server_url,optional" json:"server_url,omitempty"`
	APIKey    string `hcl:"api_key,optional" json:"api_key,omitempty"`
	Timeout   string `hcl:"timeout,optional" json:"timeout,omitempty"`
	Language  string `hcl:"language,optional" json:"language,omitempty"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level string `hcl:"level,optional" json:"level,omitempty"`
	JSON  bool   `hcl:"json,optional" json:"json,omitempty"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills unset values. It is idempotent.
func (c *Config) ApplyDefaults() {
	if c.SchemaVersion == "" {
		c.SchemaVersion = CurrentSchemaVersion
	}
	c.ensureBlocks()

	s := c.Server
	if s.Listen == "" {
		s.Listen = brand.DefaultListen
	}
	if s.ReadTimeout == "" {
		s.ReadTimeout = DefaultReadTimeout.String()
	}
	if s.WriteTimeout == "" {
		s.WriteTimeout = DefaultWriteTimeout.String()
	}
	if s.IdleTimeout == "" {
		s.IdleTimeout = DefaultIdleTimeout.String()
	}
	if s.ShutdownTimeout == "" {
		s.ShutdownTimeout = DefaultShutdownTimeout.String()
	}
	if s.MaxBodyBytes == 0 {
		s.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if s.MaxConnections == 0 {
		s.MaxConnections = DefaultMaxConnections
	}
	if s.RateLimit != nil && s.RateLimit.Interval == "" {
		s.RateLimit.Interval = time.Minute.String()
	}

	if c.Store.Kind == "" {
		c.Store.Kind = "file"
	}
	if c.Store.Path == "" {
		switch c.Store.Kind {
		case "file":
			c.Store.Path = brand.DefaultRulesPath()
		case "sqlite":
			c.Store.Path = filepath.Join(brand.GetStateDir(), brand.LowerName+".db")
		}
	}

	if c.Console.ServerURL == "" {
		c.Console.ServerURL = brand.DefaultServerURL()
	}
	if c.Console.Timeout == "" {
		c.Console.Timeout = DefaultConsoleTimeout.String()
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

func (c *Config) ensureBlocks() {
	if c.Server == nil {
		c.Server = &ServerConfig{}
	}
	if c.Store == nil {
		c.Store = &StoreConfig{}
	}
	if c.Console == nil {
		c.Console = &ConsoleConfig{}
	}
	if c.Logging == nil {
		c.Logging = &LoggingConfig{}
	}
}

// Timeouts returns the parsed server timeouts. Invalid values fall back to
// the defaults; Validate reports them.
func (s *ServerConfig) Timeouts() (read, write, idle, shutdown time.Duration) {
	return durationOr(s.ReadTimeout, DefaultReadTimeout),
		durationOr(s.WriteTimeout, DefaultWriteTimeout),
		durationOr(s.IdleTimeout, DefaultIdleTimeout),
		durationOr(s.ShutdownTimeout, DefaultShutdownTimeout)
}

// Limit returns requests and interval, or zeroes when rate limiting is off.
func (r *RateLimitConfig) Limit() (int, time.Duration) {
	if r == nil || r.Requests <= 0 {
		return 0, 0
	}
	return r.Requests, durationOr(r.Interval, time.Minute)
}

// ClientTimeout returns the parsed console timeout.
func (c *ConsoleConfig) ClientTimeout() time.Duration {
	return durationOr(c.Timeout, DefaultConsoleTimeout)
}

func durationOr(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
