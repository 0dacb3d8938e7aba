package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/pfw/internal/events"
	"grimm.is/pfw/internal/rules"
)

type wireEvent struct {
	Type   events.EventType      `json:"type"`
	Source string                `json:"source"`
	Data   events.RuleChangeData `json:"data"`
}

func dialRules(t *testing.T, env *testEnv) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(env.ts.URL, "http") + "/ws/rules"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return env.srv.Hub().Subscribers() == 1 },
		2*time.Second, 5*time.Millisecond)
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) wireEvent {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var e wireEvent
	require.NoError(t, json.Unmarshal(data, &e))
	return e
}

func TestWebSocket_StreamsRuleEvents(t *testing.T) {
	env := newTestEnv(t)
	conn := dialRules(t, env)

	created := env.create(t, rules.Rule{Action: "deny", SrcIP: "10.0.0.1"})
	e := readEvent(t, conn)
	assert.Equal(t, events.EventRuleCreated, e.Type)
	assert.Equal(t, "api", e.Source)
	assert.Equal(t, created.Rule.ID, e.Data.ID)
	assert.Equal(t, 0, e.Data.Index)
	assert.Equal(t, "10.0.0.1", e.Data.Rule.SrcIP)

	require.Equal(t, http.StatusOK, env.do(t, "PUT", "/rules/0", rules.Rule{Action: "allow"}).status)
	assert.Equal(t, events.EventRuleUpdated, readEvent(t, conn).Type)

	require.Equal(t, http.StatusOK, env.do(t, "DELETE", "/rules/0", nil).status)
	e = readEvent(t, conn)
	assert.Equal(t, events.EventRuleDeleted, e.Type)
	assert.Equal(t, created.Rule.ID, e.Data.ID)
}

func TestWebSocket_FailedMutationPublishesNothing(t *testing.T) {
	env := newTestEnv(t)
	conn := dialRules(t, env)

	require.Equal(t, http.StatusNotFound, env.do(t, "DELETE", "/rules/0", nil).status)
	published, _ := env.srv.Hub().Stats()
	assert.Zero(t, published)

	env.create(t, rules.Rule{Action: "allow"})
	assert.Equal(t, events.EventRuleCreated, readEvent(t, conn).Type)
}

func TestWebSocket_DisconnectUnsubscribes(t *testing.T) {
	env := newTestEnv(t)
	conn := dialRules(t, env)
	assert.Equal(t, 1, env.srv.ws.Clients())

	conn.Close()
	require.Eventually(t, func() bool {
		return env.srv.Hub().Subscribers() == 0 && env.srv.ws.Clients() == 0
	}, 2*time.Second, 5*time.Millisecond)
}

func TestWebSocket_CloseAll(t *testing.T) {
	env := newTestEnv(t)
	conn := dialRules(t, env)

	env.srv.ws.CloseAll()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
}

func TestUpgraderCheckOrigin(t *testing.T) {
	tests := []struct {
		origin, host string
		want         bool
	}{
		{"", "fw:8000", true},
		{"http://localhost:5173", "fw:8000", true},
		{"http://fw:8000", "fw:8000", true},
		{"https://fw:8000", "fw:8000", true},
		{"https://evil.example", "fw:8000", false},
	}
	for _, tt := range tests {
		r, _ := http.NewRequest("GET", "http://"+tt.host+"/ws/rules", nil)
		r.Host = tt.host
		if tt.origin != "" {
			r.Header.Set("Origin", tt.origin)
		}
		assert.Equal(t, tt.want, upgrader.CheckOrigin(r), tt.origin)
	}
}
