package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"grimm.is/pfw/internal/brand"
)

func lookupMap(m map[string]string) LookupFunc {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func hashFor(t *testing.T, key string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, CurrentSchemaVersion, cfg.SchemaVersion)
	assert.Equal(t, brand.DefaultListen, cfg.Server.Listen)
	assert.Equal(t, "file", cfg.Store.Kind)
	assert.Equal(t, brand.DefaultRulesPath(), cfg.Store.Path)
	assert.Equal(t, brand.DefaultServerURL(), cfg.Console.ServerURL)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 10*time.Second, cfg.Console.ClientTimeout())

	read, write, idle, shutdown := cfg.Server.Timeouts()
	assert.Equal(t, DefaultReadTimeout, read)
	assert.Equal(t, DefaultWriteTimeout, write)
	assert.Equal(t, DefaultIdleTimeout, idle)
	assert.Equal(t, DefaultShutdownTimeout, shutdown)

	assert.Empty(t, cfg.Validate(), "defaults must validate cleanly")
}

func TestLoadHCL(t *testing.T) {
	t.Setenv("PFW_TEST_LISTEN", "0.0.0.0:9000")
	hash := hashFor(t, "secret")

	src := `
server {
  listen          = env("PFW_TEST_LISTEN", "127.0.0.1:8000")
  max_connections = 64
  cors_origins    = ["https://fw.example.net"]

  rate_limit {
    requests = 30
  }

  api_key "ops" {
    hash = "` + hash + `"
  }
}

store {
  kind   = lower("SQLITE")
  path   = env("PFW_TEST_UNSET", "/tmp/pfw.db")
  strict = true
}

logging {
  level = "debug"
}
`
	cfg, err := LoadHCL([]byte(src), "test.hcl")
	require.NoError(t, err)
	cfg.ApplyDefaults()

	assert.Equal(t, "0.0.0.0:9000", cfg.Server.Listen)
	assert.Equal(t, 64, cfg.Server.MaxConnections)
	assert.Equal(t, []string{"https://fw.example.net"}, cfg.Server.CORSOrigins)
	require.Len(t, cfg.Server.APIKeys, 1)
	assert.Equal(t, "ops", cfg.Server.APIKeys[0].Name)
	assert.Equal(t, "sqlite", cfg.Store.Kind)
	assert.Equal(t, "/tmp/pfw.db", cfg.Store.Path)
	assert.True(t, cfg.Store.Strict)

	n, every := cfg.Server.RateLimit.Limit()
	assert.Equal(t, 30, n)
	assert.Equal(t, time.Minute, every)

	assert.Empty(t, cfg.Validate().Errors())
}

func TestLoadHCL_Errors(t *testing.T) {
	_, err := LoadHCL([]byte(`server {`), "bad.hcl")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HCL parse error")

	_, err = LoadHCL([]byte(`server { bogus = 1 }`), "bad.hcl")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HCL decode error")
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "pfw.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"store":{"kind":"memory"}}`), 0o644))
	cfg, err := LoadFile(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Store.Kind)

	// Unknown extension falls back to JSON when HCL fails.
	confPath := filepath.Join(dir, "pfw.conf")
	require.NoError(t, os.WriteFile(confPath, []byte(`{"logging":{"level":"warn"}}`), 0o644))
	cfg, err = LoadFile(confPath)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Logging.Level)

	_, err = LoadFile(filepath.Join(dir, "missing.hcl"))
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	cfg := &Config{}
	err := cfg.ApplyEnv(lookupMap(map[string]string{
		"PFW_LISTEN":       "127.0.0.1:9999",
		"PFW_STORE_KIND":   "SQLite",
		"PFW_STRICT":       "true",
		"PFW_SERVER_URL":   "http://fw:8000",
		"PFW_API_KEY":      "k",
		"PFW_LOG_LEVEL":    "error",
		"PFW_LOG_JSON":     "1",
		"PFW_CORS_ORIGINS": "https://a.example, https://b.example,",
		"PFW_STORE_PATH":   "",
	}))
	require.NoError(t, err)
	cfg.ApplyDefaults()

	assert.Equal(t, "127.0.0.1:9999", cfg.Server.Listen)
	assert.Equal(t, "sqlite", cfg.Store.Kind)
	assert.Equal(t, filepath.Join(brand.GetStateDir(), "pfw.db"), cfg.Store.Path)
	assert.True(t, cfg.Store.Strict)
	assert.Equal(t, "http://fw:8000", cfg.Console.ServerURL)
	assert.Equal(t, "k", cfg.Console.APIKey)
	assert.Equal(t, "error", cfg.Logging.Level)
	assert.True(t, cfg.Logging.JSON)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)

	err = (&Config{}).ApplyEnv(lookupMap(map[string]string{"PFW_STRICT": "maybe"}))
	assert.ErrorContains(t, err, "PFW_STRICT")
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pfw.hcl")
	require.NoError(t, os.WriteFile(path, []byte(`store { kind = "memory" }`), 0o644))

	cfg, err := Load(path, lookupMap(map[string]string{"PFW_LOG_LEVEL": "debug"}))
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Store.Kind)
	assert.Equal(t, "debug", cfg.Logging.Level)

	_, err = Load(path, lookupMap(map[string]string{"PFW_LOG_LEVEL": "loud"}))
	assert.ErrorContains(t, err, "logging.level")

	cfg, err = Load("", lookupMap(nil))
	require.NoError(t, err)
	assert.Equal(t, "file", cfg.Store.Kind)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		field   string
		warning bool
	}{
		{"bad listen", func(c *Config) { c.Server.Listen = "nope" }, "server.listen", false},
		{"bad timeout", func(c *Config) { c.Server.ReadTimeout = "soon" }, "server.read_timeout", false},
		{"negative timeout", func(c *Config) { c.Server.IdleTimeout = "-1s" }, "server.idle_timeout", false},
		{"negative body", func(c *Config) { c.Server.MaxBodyBytes = -1 }, "server.max_body_bytes", false},
		{"bad origin", func(c *Config) { c.Server.CORSOrigins = []string{"ftp://x"} }, "server.cors_origins[0]", false},
		{"bad rate interval", func(c *Config) {
			c.Server.RateLimit = &RateLimitConfig{Requests: 5, Interval: "x"}
		}, "server.rate_limit.interval", false},
		{"plain key", func(c *Config) {
			c.Server.APIKeys = []APIKeyConfig{{Name: "ops", Hash: "plaintext"}}
		}, "server.api_key.ops", false},
		{"unknown kind", func(c *Config) { c.Store.Kind = "redis" }, "store.kind", false},
		{"traversal", func(c *Config) { c.Store.Path = "../rules.json" }, "store.path", false},
		{"bad server url", func(c *Config) { c.Console.ServerURL = "fw:8000" }, "console.server_url", false},
		{"schema", func(c *Config) { c.SchemaVersion = "9" }, "schema_version", false},
		{"open listener", func(c *Config) { c.Server.Listen = "0.0.0.0:8000" }, "server.listen", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			errs := cfg.Validate()
			require.Len(t, errs, 1, errs.Error())
			assert.Equal(t, tt.field, errs[0].Field)
			assert.Equal(t, tt.warning, errs[0].IsWarning())
			assert.Equal(t, !tt.warning, errs.Errors().HasErrors())
		})
	}
}

func TestValidate_KeysSilenceOpenListenerWarning(t *testing.T) {
	cfg := Default()
	cfg.Server.Listen = "0.0.0.0:8000"
	cfg.Server.APIKeys = []APIKeyConfig{{Name: "ops", Hash: hashFor(t, "k")}}
	assert.Empty(t, cfg.Validate())
}

func TestGenerateHCL_RoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Server.APIKeys = []APIKeyConfig{{Name: "ops", Hash: hashFor(t, "k")}}
	cfg.Server.RateLimit = &RateLimitConfig{Requests: 10, Interval: "30s"}

	out := GenerateHCL(cfg)
	assert.NotContains(t, string(out), "null")
	assert.Contains(t, string(out), `api_key "ops"`)

	back, err := LoadHCL(out, "generated.hcl")
	require.NoError(t, err)
	back.ApplyDefaults()
	assert.Equal(t, cfg, back)
}

func TestSaveHCL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "etc", "pfw.hcl")
	cfg := Default()
	cfg.Store.Kind = "memory"

	require.NoError(t, SaveHCL(cfg, path))
	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))

	back, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "memory", back.Store.Kind)
}
