// Package testutil provides test helpers including a WebSocket test
// client for integration testing.
package testutil

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// WSClient is a simple WebSocket test client for integration testing.
type WSClient struct {
	conn *websocket.Conn
	t    *testing.T
}

// NewWSClient dials the given address and returns a test client.
//
// Precondition: addr must be a "host:port" string with a listening server.
// Postcondition: Returns a connected WSClient or fails the test.
func NewWSClient(t *testing.T, addr string) *WSClient {
	t.Helper()
	start := time.Now()

	url := fmt.Sprintf("ws://%s/", addr)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dialing %s: %v [%s]", url, err, time.Since(start))
	}

	t.Cleanup(func() {
		conn.Close()
	})

	return &WSClient{conn: conn, t: t}
}

// SendJSON marshals v and sends it as one text frame.
//
// Postcondition: The frame is written or the test fails.
func (c *WSClient) SendJSON(v any) {
	c.t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		c.t.Fatalf("marshalling message: %v", err)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.t.Fatalf("sending message: %v", err)
	}
}

// SendRaw sends raw bytes as one text frame.
func (c *WSClient) SendRaw(data []byte) {
	c.t.Helper()
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.t.Fatalf("sending raw frame: %v", err)
	}
}

// ReadMessage reads one text frame, decoded as a generic JSON object.
//
// Postcondition: Returns the decoded object or fails the test after the
// timeout.
func (c *WSClient) ReadMessage(timeout time.Duration) map[string]any {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(timeout))

	_, data, err := c.conn.ReadMessage()
	if err != nil {
		c.t.Fatalf("reading message: %v", err)
	}

	var msg map[string]any
	if err := json.Unmarshal(data, &msg); err != nil {
		c.t.Fatalf("decoding message %q: %v", data, err)
	}
	return msg
}

// ReadRaw reads one frame without decoding it. Used for replies that are
// not JSON, like the diagnostic echo.
//
// Postcondition: Returns the raw frame or fails the test after the timeout.
func (c *WSClient) ReadRaw(timeout time.Duration) []byte {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(timeout))

	_, data, err := c.conn.ReadMessage()
	if err != nil {
		c.t.Fatalf("reading raw frame: %v", err)
	}
	return data
}

// WaitForType reads frames until one arrives with the given type
// discriminator, discarding the rest.
//
// Postcondition: Returns the matching message or fails the test after the
// timeout.
func (c *WSClient) WaitForType(msgType string, timeout time.Duration) map[string]any {
	c.t.Helper()
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		msg := c.ReadMessage(time.Until(deadline))
		if msg["type"] == msgType {
			return msg
		}
	}
	c.t.Fatalf("no %q message within %s", msgType, timeout)
	return nil
}

// Close closes the underlying connection.
func (c *WSClient) Close() {
	_ = c.conn.Close()
}
