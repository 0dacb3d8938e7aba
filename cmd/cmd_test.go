package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"grimm.is/pfw/internal/api"
	"grimm.is/pfw/internal/client"
	"grimm.is/pfw/internal/clock"
	"grimm.is/pfw/internal/config"
	"grimm.is/pfw/internal/console"
	"grimm.is/pfw/internal/logging"
	"grimm.is/pfw/internal/metrics"
	"grimm.is/pfw/internal/rules"
	"grimm.is/pfw/internal/store"
)

func newTestClient(t *testing.T, seed ...rules.Rule) *client.HTTPClient {
	t.Helper()
	srv, err := api.NewServer(api.ServerOptions{Store: store.NewMemoryStore(nil), Logger: logging.Discard()})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	c := client.NewHTTPClient(ts.URL)
	for _, r := range seed {
		_, err := c.CreateRule(context.Background(), r)
		require.NoError(t, err)
	}
	return c
}

var (
	denyRule  = rules.Rule{Action: "deny", SrcIP: "10.0.0.1", Protocol: "tcp", SizeMax: 1500}
	allowRule = rules.Rule{Action: "allow", SrcIP: "10.0.0.2", Port: "443"}
)

func TestRunList_Table(t *testing.T) {
	c := newTestClient(t, denyRule, allowRule)

	var out bytes.Buffer
	require.NoError(t, RunList(context.Background(), c, &out, "table"))
	assert.Contains(t, out.String(), "ACTION")
	assert.Contains(t, out.String(), "10.0.0.1")
	assert.Contains(t, out.String(), "443")
	assert.Contains(t, out.String(), "2 rule(s)")
}

func TestRunList_ActiveColumn(t *testing.T) {
	night := rules.Rule{Action: "drop", Port: "22", StartTime: "22:00", EndTime: "06:00"}
	c := newTestClient(t, night)

	saved := listClock
	t.Cleanup(func() { listClock = saved })
	mc := clock.NewMockClock(time.Date(2024, 1, 1, 23, 30, 0, 0, time.Local))
	listClock = mc

	var out bytes.Buffer
	require.NoError(t, RunList(context.Background(), c, &out, "table"))
	assert.Contains(t, out.String(), "ACTIVE")
	assert.Regexp(t, `22:00-06:00\s+yes`, out.String())

	mc.Set(time.Date(2024, 1, 1, 12, 0, 0, 0, time.Local))
	out.Reset()
	require.NoError(t, RunList(context.Background(), c, &out, "table"))
	assert.Regexp(t, `22:00-06:00\s+no`, out.String())
}

func TestRunList_Empty(t *testing.T) {
	c := newTestClient(t)

	var out bytes.Buffer
	require.NoError(t, RunList(context.Background(), c, &out, ""))
	assert.Contains(t, out.String(), "No rules.")
}

func TestRunList_JSON(t *testing.T) {
	c := newTestClient(t, denyRule)

	var out bytes.Buffer
	require.NoError(t, RunList(context.Background(), c, &out, "json"))
	got, err := rules.Decode(out.Bytes(), rules.FormatJSON)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, rules.SameContent(denyRule, got[0]))

	assert.Error(t, RunList(context.Background(), c, &out, "xml"))
}

func TestRunSubmit_AddAndUpdate(t *testing.T) {
	c := newTestClient(t, denyRule)
	ctx := context.Background()

	s := console.New(c, nil)
	require.NoError(t, s.SetField(rules.FieldAction, "drop"))
	require.NoError(t, s.SetField(rules.FieldSrcIP, "192.168.1.0/24"))
	var out bytes.Buffer
	require.NoError(t, RunSubmit(ctx, s, &out))
	assert.Contains(t, out.String(), "#1")

	s = console.New(c, nil)
	require.NoError(t, StartEdit(ctx, s, "0"))
	require.NoError(t, s.SetField(rules.FieldPort, "22"))
	out.Reset()
	require.NoError(t, RunSubmit(ctx, s, &out))

	list, err := c.ListRules(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "22", list[0].Port)
	assert.Equal(t, "10.0.0.1", list[0].SrcIP, "unchanged fields keep their values")
	assert.Equal(t, "drop", list[1].Action)
}

func TestStartEdit_ByID(t *testing.T) {
	c := newTestClient(t, denyRule, allowRule)
	ctx := context.Background()
	list, err := c.ListRules(ctx)
	require.NoError(t, err)

	s := console.New(c, nil)
	require.NoError(t, StartEdit(ctx, s, list[1].ID))
	editing, idx := s.Editing()
	assert.True(t, editing)
	assert.Equal(t, 1, idx)
	assert.Equal(t, "allow", s.Draft().Get(rules.FieldAction))

	var verr *rules.ValidationError
	assert.ErrorAs(t, StartEdit(ctx, console.New(c, nil), "no-such-id"), &verr)
}

func TestRunDelete(t *testing.T) {
	c := newTestClient(t, denyRule, allowRule)
	ctx := context.Background()

	var out bytes.Buffer
	require.NoError(t, RunDelete(ctx, console.New(c, nil), "0", &out))
	assert.Contains(t, out.String(), "#0")

	list, err := c.ListRules(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "allow", list[0].Action)

	require.NoError(t, RunDelete(ctx, console.New(c, nil), list[0].ID, &out))
	assert.Error(t, RunDelete(ctx, console.New(c, nil), "0", &out), "index out of range")
}

func TestRunExportImport(t *testing.T) {
	src := newTestClient(t, denyRule, allowRule)
	dst := newTestClient(t, rules.Rule{Action: "allow", SrcIP: "any"})
	ctx := context.Background()

	var exported bytes.Buffer
	require.NoError(t, RunExport(ctx, src, &exported, rules.FormatYAML))
	rs, err := rules.Decode(exported.Bytes(), rules.FormatYAML)
	require.NoError(t, err)
	require.Len(t, rs, 2)

	var out bytes.Buffer
	require.NoError(t, RunImport(ctx, dst, rs, true, &out))
	assert.Contains(t, out.String(), "removed 1 existing rule(s)")
	assert.Contains(t, out.String(), "imported 2 rule(s)")

	list, err := dst.ListRules(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.True(t, rules.SameContent(denyRule, list[0]))
	assert.True(t, rules.SameContent(allowRule, list[1]))

	require.NoError(t, RunImport(ctx, dst, rs[:1], false, &out))
	list, err = dst.ListRules(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 3)
}

func TestRunDiff(t *testing.T) {
	c := newTestClient(t, denyRule, allowRule)
	ctx := context.Background()
	dir := t.TempDir()

	same := filepath.Join(dir, "same.json")
	var buf bytes.Buffer
	require.NoError(t, rules.Encode(&buf, []rules.Rule{denyRule, allowRule}, rules.FormatJSON))
	require.NoError(t, os.WriteFile(same, buf.Bytes(), 0644))

	var out bytes.Buffer
	require.NoError(t, RunDiff(ctx, c, same, &out))
	assert.Contains(t, out.String(), "No changes detected.")

	changed := filepath.Join(dir, "changed.yaml")
	buf.Reset()
	require.NoError(t, rules.Encode(&buf, []rules.Rule{denyRule}, rules.FormatYAML))
	require.NoError(t, os.WriteFile(changed, buf.Bytes(), 0644))

	out.Reset()
	err := RunDiff(ctx, c, changed, &out)
	assert.ErrorIs(t, err, ErrRulesDiffer)
	assert.Contains(t, out.String(), "+++ Running")
	assert.Contains(t, out.String(), "+1: allow 10.0.0.2 port=443")

	assert.Error(t, RunDiff(ctx, c, filepath.Join(dir, "missing.json"), &out))
}

func TestDescribeAddsHints(t *testing.T) {
	c := client.NewHTTPClient("http://127.0.0.1:1")

	err := describe(c, &client.ServerError{Status: http.StatusUnauthorized})
	assert.Contains(t, err.Error(), "--api-key")
	assert.True(t, client.IsUnauthorized(err))

	err = describe(c, &client.ServerError{Status: http.StatusConflict})
	assert.Contains(t, err.Error(), "pfw rules list")
	assert.True(t, client.IsConflict(err))

	err = describe(c, &client.NetworkError{Op: "GET /rules", URL: c.BaseURL(), Err: errors.New("refused")})
	assert.Contains(t, err.Error(), "cannot reach server at http://127.0.0.1:1")

	plain := errors.New("boom")
	assert.Same(t, plain, describe(c, plain))
	assert.NoError(t, describe(c, nil))
}

func TestRunHashKey(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, RunHashKey("", "ci", true, &out))

	var res hashKeyResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	assert.Equal(t, "ci", res.Name)
	require.NotEmpty(t, res.Key)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(res.Hash), []byte(res.Key)))

	out.Reset()
	require.NoError(t, RunHashKey("secret", "ops", false, &out))
	assert.NotContains(t, out.String(), "API Key:")
	assert.Contains(t, out.String(), `api_key "ops"`)

	assert.Error(t, RunHashKey("secret", "bad name", false, &out))
}

func TestRunServe(t *testing.T) {
	cfg := config.Default()
	cfg.Server.Listen = "127.0.0.1:0"
	cfg.Server.RateLimit = &config.RateLimitConfig{Requests: 100, Interval: "1m"}
	cfg.Store.Kind = "memory"
	cfg.Store.Path = ""

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ready := make(chan net.Addr, 1)
	done := make(chan error, 1)
	go func() {
		done <- RunServe(ctx, ServeOptions{
			Config:  cfg,
			Logger:  logging.Discard(),
			Metrics: metrics.NewIsolated(),
			Ready:   func(a net.Addr) { ready <- a },
		})
	}()

	var addr net.Addr
	select {
	case addr = <-ready:
	case err := <-done:
		t.Fatalf("RunServe returned early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not become ready")
	}

	c := client.NewHTTPClient("http://" + addr.String())
	_, err := c.CreateRule(ctx, denyRule)
	require.NoError(t, err)
	list, err := c.ListRules(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("RunServe did not stop")
	}
}

func TestRunServe_BadStore(t *testing.T) {
	cfg := config.Default()
	cfg.Store.Kind = "sqlite"
	cfg.Store.Path = filepath.Join(t.TempDir(), "missing", "dir", "rules.db")

	err := RunServe(context.Background(), ServeOptions{Config: cfg, Logger: logging.Discard()})
	assert.Error(t, err)
}
