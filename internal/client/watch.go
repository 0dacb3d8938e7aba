package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"grimm.is/pfw/internal/events"
)

// RuleEvent is one message from /ws/rules.
type RuleEvent struct {
	Type      events.EventType      `json:"type"`
	Timestamp time.Time             `json:"timestamp"`
	Source    string                `json:"source"`
	Data      events.RuleChangeData `json:"data"`
}

func (c *HTTPClient) wsURL(path string) string {
	switch {
	case strings.HasPrefix(c.baseURL, "https://"):
		return "wss://" + strings.TrimPrefix(c.baseURL, "https://") + path
	case strings.HasPrefix(c.baseURL, "http://"):
		return "ws://" + strings.TrimPrefix(c.baseURL, "http://") + path
	}
	return c.baseURL + path
}

// Watch streams rule events to fn until ctx is canceled or the connection
// drops. It returns nil when ctx ends the stream.
func (c *HTTPClient) Watch(ctx context.Context, fn func(RuleEvent)) error {
	url := c.wsURL("/ws/rules")

	headers := http.Header{}
	headers.Set("User-Agent", c.userAgent)
	if c.apiKey != "" {
		headers.Set("Authorization", "Bearer "+c.apiKey)
	}

	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: c.httpClient.Timeout,
	}
	conn, _, err := dialer.DialContext(ctx, url, headers)
	if err != nil {
		return &NetworkError{Op: "WATCH /ws/rules", URL: url, Err: err}
	}
	defer conn.Close()

	// Unblock ReadMessage when ctx ends.
	stop := context.AfterFunc(ctx, func() {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	})
	defer stop()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return &NetworkError{Op: "WATCH /ws/rules", URL: url, Err: err}
		}

		var e RuleEvent
		if err := json.Unmarshal(msg, &e); err != nil {
			return &DecodeError{Op: "WATCH /ws/rules", Err: fmt.Errorf("event: %w", err)}
		}
		fn(e)
	}
}

// IsNetwork reports whether err is a NetworkError.
func IsNetwork(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}
