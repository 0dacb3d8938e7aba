package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"grimm.is/pfw/internal/config"
	"grimm.is/pfw/internal/ratelimit"
	"grimm.is/pfw/internal/rules"
)

func testKeys(t *testing.T, key string) *KeyChecker {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.MinCost)
	require.NoError(t, err)
	return NewKeyChecker([]config.APIKeyConfig{{Name: "ops", Hash: string(h)}})
}

func TestAuth_MutationsNeedKey(t *testing.T) {
	env := newTestEnv(t, func(o *ServerOptions) { o.Keys = testKeys(t, "s3cret") })
	rule := rules.Rule{Action: "deny"}

	resp := env.do(t, "POST", "/rules", rule)
	assert.Equal(t, http.StatusUnauthorized, resp.status)
	assert.NotEmpty(t, resp.header.Get("WWW-Authenticate"))

	resp = env.do(t, "POST", "/rules", rule, "Authorization", "Bearer wrong")
	assert.Equal(t, http.StatusUnauthorized, resp.status)

	resp = env.do(t, "POST", "/rules", rule, "Authorization", "Bearer s3cret")
	assert.Equal(t, http.StatusCreated, resp.status)

	resp = env.do(t, "DELETE", "/rules/0", nil, "X-API-Key", "s3cret")
	assert.Equal(t, http.StatusOK, resp.status)

	// Reads stay open.
	assert.Equal(t, http.StatusOK, env.do(t, "GET", "/rules", nil).status)
}

func TestKeyChecker(t *testing.T) {
	k := testKeys(t, "abc")
	assert.True(t, k.Enabled())

	name, ok := k.Check("abc")
	assert.True(t, ok)
	assert.Equal(t, "ops", name)

	// Second check is served from the digest cache.
	name, ok = k.Check("abc")
	assert.True(t, ok)
	assert.Equal(t, "ops", name)

	_, ok = k.Check("")
	assert.False(t, ok)
	_, ok = k.Check("abd")
	assert.False(t, ok)

	var none *KeyChecker
	assert.False(t, none.Enabled())
	assert.False(t, NewKeyChecker(nil).Enabled())
}

func TestHashKeyAndGenerate(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)
	assert.Regexp(t, `^pfw_[0-9a-f]{64}$`, key)

	hash, err := HashKey(key)
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)))

	_, err = HashKey("")
	assert.Error(t, err)
}

func TestRateLimit_Mutations(t *testing.T) {
	env := newTestEnv(t, func(o *ServerOptions) {
		o.Limiter = ratelimit.NewLimiter(2, time.Minute, nil)
	})
	rule := rules.Rule{Action: "allow"}

	assert.Equal(t, http.StatusCreated, env.do(t, "POST", "/rules", rule).status)
	assert.Equal(t, http.StatusCreated, env.do(t, "POST", "/rules", rule).status)

	resp := env.do(t, "POST", "/rules", rule)
	assert.Equal(t, http.StatusTooManyRequests, resp.status)
	assert.NotEmpty(t, resp.header.Get("Retry-After"))
	var e ErrorResponse
	resp.decode(t, &e)
	assert.Equal(t, "rate limit exceeded", e.Error)

	// Reads are not limited.
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, env.do(t, "GET", "/rules", nil).status)
	}
	assert.Len(t, env.list(t), 2)
}

func TestCORS(t *testing.T) {
	t.Run("any origin by default", func(t *testing.T) {
		env := newTestEnv(t)
		resp := env.do(t, "GET", "/rules", nil, "Origin", "http://ui.example")
		assert.Equal(t, "*", resp.header.Get("Access-Control-Allow-Origin"))

		resp = env.do(t, "OPTIONS", "/rules/0", nil,
			"Origin", "http://ui.example",
			"Access-Control-Request-Method", "PUT",
			"Access-Control-Request-Headers", "Authorization")
		assert.Equal(t, http.StatusNoContent, resp.status)
		assert.Equal(t, "PUT", resp.header.Get("Access-Control-Allow-Methods"))
		assert.Equal(t, "authorization", strings.ToLower(resp.header.Get("Access-Control-Allow-Headers")))
		assert.Equal(t, "600", resp.header.Get("Access-Control-Max-Age"))
	})

	t.Run("preflight for unlisted method", func(t *testing.T) {
		env := newTestEnv(t)
		resp := env.do(t, "OPTIONS", "/rules", nil,
			"Origin", "http://ui.example",
			"Access-Control-Request-Method", "PATCH")
		assert.Empty(t, resp.header.Get("Access-Control-Allow-Methods"))
		assert.Empty(t, resp.header.Get("Access-Control-Allow-Origin"))
	})

	t.Run("configured origins", func(t *testing.T) {
		env := newTestEnv(t, func(o *ServerOptions) {
			o.CORSOrigins = []string{"https://fw.example"}
		})
		resp := env.do(t, "GET", "/rules", nil, "Origin", "https://fw.example")
		assert.Equal(t, "https://fw.example", resp.header.Get("Access-Control-Allow-Origin"))
		assert.Contains(t, resp.header.Values("Vary"), "Origin")
		assert.Contains(t, strings.ToLower(resp.header.Get("Access-Control-Expose-Headers")), "x-request-id")

		resp = env.do(t, "GET", "/rules", nil, "Origin", "https://evil.example")
		assert.Empty(t, resp.header.Get("Access-Control-Allow-Origin"))
	})

	t.Run("no origin header", func(t *testing.T) {
		env := newTestEnv(t)
		resp := env.do(t, "GET", "/rules", nil)
		assert.Empty(t, resp.header.Get("Access-Control-Allow-Origin"))
	})
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"remote addr", nil, "192.0.2.1:5555", "192.0.2.1"},
		{"forwarded", map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"}, "10.0.0.1:1", "203.0.113.7"},
		{"bad forwarded", map[string]string{"X-Forwarded-For": "junk"}, "10.0.0.1:1", "10.0.0.1"},
		{"real ip", map[string]string{"X-Real-IP": "198.51.100.2"}, "10.0.0.1:1", "198.51.100.2"},
		{"no port", nil, "pipe", "pipe"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, getClientIP(r))
		})
	}
}
