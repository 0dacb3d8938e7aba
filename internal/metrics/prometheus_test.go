package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// value returns the counter or gauge sample of name whose labels match
// the given name/value pairs.
func value(t *testing.T, r *Registry, name string, labels ...string) float64 {
	t.Helper()
	families, err := r.gatherer.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	next:
		for _, m := range mf.GetMetric() {
			got := map[string]string{}
			for _, lp := range m.GetLabel() {
				got[lp.GetName()] = lp.GetValue()
			}
			for i := 0; i+1 < len(labels); i += 2 {
				if got[labels[i]] != labels[i+1] {
					continue next
				}
			}
			if c := m.GetCounter(); c != nil {
				return c.GetValue()
			}
			return m.GetGauge().GetValue()
		}
	}
	t.Fatalf("metric %s %v not found", name, labels)
	return 0
}

func TestRecordAPIRequest(t *testing.T) {
	r := NewIsolated()
	r.RecordAPIRequest("POST", "/rules", 201, 20*time.Millisecond)
	r.RecordAPIRequest("POST", "/rules", 201, 10*time.Millisecond)
	r.RecordAPIRequest("GET", "/rules", 200, time.Millisecond)

	assert.Equal(t, 2.0, value(t, r, "pfw_api_requests_total", "method", "POST", "route", "/rules", "code", "201"))
	assert.Equal(t, 1.0, value(t, r, "pfw_api_requests_total", "method", "GET", "route", "/rules", "code", "200"))
}

func TestStoreRecorder(t *testing.T) {
	r := NewIsolated()
	r.ObserveStoreOp("create", "ok")
	r.ObserveStoreOp("delete", "conflict")
	r.SetRuleCount(7)

	assert.Equal(t, 1.0, value(t, r, "pfw_store_operations_total", "op", "create", "result", "ok"))
	assert.Equal(t, 1.0, value(t, r, "pfw_store_operations_total", "op", "delete", "result", "conflict"))
	assert.Equal(t, 7.0, value(t, r, "pfw_rules"))
}

func TestHandlerExposesFuncs(t *testing.T) {
	r := NewIsolated()
	r.RegisterEventStats(func() (uint64, uint64) { return 12, 3 })
	r.RegisterUptime(time.Now().Add(-time.Minute))
	r.RegisterRateLimitKeys(func() int { return 4 })
	r.SetRuleCount(2)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body, _ := io.ReadAll(rec.Body)
	text := string(body)
	assert.True(t, strings.Contains(text, "pfw_events_published_total 12"), text)
	assert.True(t, strings.Contains(text, "pfw_events_dropped_total 3"), text)
	assert.True(t, strings.Contains(text, "pfw_rules 2"), text)
	assert.True(t, strings.Contains(text, "pfw_uptime_seconds"), text)
	assert.True(t, strings.Contains(text, "pfw_ratelimit_tracked_keys 4"), text)
}

func TestGetIsSingleton(t *testing.T) {
	assert.Same(t, Get(), Get())
}
