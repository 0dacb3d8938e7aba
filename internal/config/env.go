package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"grimm.is/pfw/internal/brand"
)

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// Environment variable suffixes; the brand prefix is prepended.
const (
	EnvListen      = "LISTEN"
	EnvStoreKind   = "STORE_KIND"
	EnvStorePath   = "STORE_PATH"
	EnvStrict      = "STRICT"
	EnvServerURL   = "SERVER_URL"
	EnvAPIKey      = "API_KEY"
	EnvLogLevel    = "LOG_LEVEL"
	EnvLogJSON     = "LOG_JSON"
	EnvCORSOrigins = "CORS_ORIGINS"
)

// EnvName returns the full variable name for suffix.
func EnvName(suffix string) string {
	return brand.ConfigEnvPrefix + "_" + suffix
}

// ApplyEnv overrides settings from the environment. A nil lookup uses
// os.LookupEnv.
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	c.ensureBlocks()
	get := func(suffix string) (string, bool) {
		v, ok := lookup(EnvName(suffix))
		return strings.TrimSpace(v), ok && strings.TrimSpace(v) != ""
	}
	parseBool := func(suffix, v string) (bool, error) {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return false, fmt.Errorf("%s: %q is not a boolean", EnvName(suffix), v)
		}
		return b, nil
	}

	if v, ok := get(EnvListen); ok {
		c.Server.Listen = v
	}
	if v, ok := get(EnvCORSOrigins); ok {
		c.Server.CORSOrigins = splitList(v)
	}
	if v, ok := get(EnvStoreKind); ok {
		c.Store.Kind = strings.ToLower(v)
	}
	if v, ok := get(EnvStorePath); ok {
		c.Store.Path = v
	}
	if v, ok := get(EnvStrict); ok {
		b, err := parseBool(EnvStrict, v)
		if err != nil {
			return err
		}
		c.Store.Strict = b
	}
	if v, ok := get(EnvServerURL); ok {
		c.Console.ServerURL = v
	}
	if v, ok := get(EnvAPIKey); ok {
		c.Console.APIKey = v
	}
	if v, ok := get(EnvLogLevel); ok {
		c.Logging.Level = v
	}
	if v, ok := get(EnvLogJSON); ok {
		b, err := parseBool(EnvLogJSON, v)
		if err != nil {
			return err
		}
		c.Logging.JSON = b
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
