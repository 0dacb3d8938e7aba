package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"grimm.is/pfw/internal/logging"
	"grimm.is/pfw/internal/validation"
)

// Severity levels for validation findings.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field    string
	Message  string
	Severity string // "error" (default), "warning"
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// IsWarning reports whether the finding is advisory.
func (e ValidationError) IsWarning() bool {
	return e.Severity == SeverityWarning
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Errors returns only the findings that are not warnings.
func (e ValidationErrors) Errors() ValidationErrors {
	var out ValidationErrors
	for _, v := range e {
		if !v.IsWarning() {
			out = append(out, v)
		}
	}
	return out
}

// Warnings returns only the advisory findings.
func (e ValidationErrors) Warnings() ValidationErrors {
	var out ValidationErrors
	for _, v := range e {
		if v.IsWarning() {
			out = append(out, v)
		}
	}
	return out
}

type collector struct {
	errs ValidationErrors
}

func (c *collector) fail(field, format string, args ...any) {
	c.errs = append(c.errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...), Severity: SeverityError})
}

func (c *collector) warn(field, format string, args ...any) {
	c.errs = append(c.errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...), Severity: SeverityWarning})
}

func (c *collector) duration(field, value string) {
	if value == "" {
		return
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		c.fail(field, "invalid duration %q", value)
		return
	}
	if d <= 0 {
		c.fail(field, "must be positive")
	}
}

// Validate validates the entire configuration. Call ApplyDefaults first.
func (c *Config) Validate() ValidationErrors {
	v := &collector{}

	if c.SchemaVersion != "" && c.SchemaVersion != CurrentSchemaVersion {
		v.fail("schema_version", "unsupported version %q (want %s)", c.SchemaVersion, CurrentSchemaVersion)
	}
	if c.Server != nil {
		c.Server.validate(v)
	}
	if c.Store != nil {
		c.Store.validate(v)
	}
	if c.Console != nil {
		c.Console.validate(v)
	}
	if c.Logging != nil {
		if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
			v.fail("logging.level", "%v", err)
		}
	}
	return v.errs
}

func (s *ServerConfig) validate(v *collector) {
	host, _, err := net.SplitHostPort(s.Listen)
	if err != nil {
		v.fail("server.listen", "invalid address %q", s.Listen)
	}

	v.duration("server.read_timeout", s.ReadTimeout)
	v.duration("server.write_timeout", s.WriteTimeout)
	v.duration("server.idle_timeout", s.IdleTimeout)
	v.duration("server.shutdown_timeout", s.ShutdownTimeout)

	if s.MaxBodyBytes < 0 {
		v.fail("server.max_body_bytes", "must not be negative")
	}
	if s.MaxConnections < 0 {
		v.fail("server.max_connections", "must not be negative")
	}

	for i, origin := range s.CORSOrigins {
		if origin == "*" {
			continue
		}
		u, err := url.Parse(origin)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			v.fail(fmt.Sprintf("server.cors_origins[%d]", i), "invalid origin %q", origin)
		}
	}

	if rl := s.RateLimit; rl != nil {
		if rl.Requests < 0 {
			v.fail("server.rate_limit.requests", "must not be negative")
		}
		v.duration("server.rate_limit.interval", rl.Interval)
	}

	seen := make(map[string]bool)
	for _, k := range s.APIKeys {
		field := "server.api_key." + k.Name
		if err := validation.ValidateIdentifier(k.Name); err != nil {
			v.fail("server.api_key", "%v", err)
		}
		if seen[k.Name] {
			v.fail(field, "duplicate key name")
		}
		seen[k.Name] = true
		if _, err := bcrypt.Cost([]byte(k.Hash)); err != nil {
			v.fail(field, "hash is not a bcrypt hash (use `pfw hash-key`)")
		}
	}

	if err == nil && len(s.APIKeys) == 0 && !isLoopback(host) {
		v.warn("server.listen", "listening on %s without api_key blocks; anyone who can reach it may change rules", s.Listen)
	}
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func (s *StoreConfig) validate(v *collector) {
	switch s.Kind {
	case "memory":
	case "file", "sqlite":
		if s.Path == "" {
			v.fail("store.path", "required for %s store", s.Kind)
		} else if s.Path != ":memory:" {
			if err := validation.ValidatePath(s.Path, nil); err != nil {
				v.fail("store.path", "%v", err)
			}
		}
	default:
		v.fail("store.kind", "unknown store kind %q (want memory, file or sqlite)", s.Kind)
	}
}

func (c *ConsoleConfig) validate(v *collector) {
	if c.ServerURL != "" {
		u, err := url.Parse(c.ServerURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			v.fail("console.server_url", "invalid URL %q", c.ServerURL)
		}
	}
	v.duration("console.timeout", c.Timeout)
}
