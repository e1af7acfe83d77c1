package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"loom/pkg/protocol"
)

// WSTransport dials the daemon's realtime channel over websocket and probes
// GET /health for heartbeats.
type WSTransport struct {
	// BaseURL is the daemon's HTTP address, e.g. "http://127.0.0.1:7777".
	BaseURL string

	HTTPClient *http.Client
	Dialer     *websocket.Dialer
}

func (t *WSTransport) httpClient() *http.Client {
	if t.HTTPClient != nil {
		return t.HTTPClient
	}
	return http.DefaultClient
}

func (t *WSTransport) wsURL() string {
	url := strings.Replace(t.BaseURL, "http://", "ws://", 1)
	url = strings.Replace(url, "https://", "wss://", 1)
	return strings.TrimSuffix(url, "/") + "/ws"
}

// Dial opens the websocket connection. No auth happens here; the first
// frame on the wire must be the Auth message, sent by Authenticate.
func (t *WSTransport) Dial(ctx context.Context) (Conn, error) {
	dialer := t.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	ws, _, err := dialer.DialContext(ctx, t.wsURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", t.wsURL(), err)
	}
	return &wsConn{ws: ws}, nil
}

// Heartbeat issues a lightweight GET /health.
func (t *WSTransport) Heartbeat(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSuffix(t.BaseURL, "/")+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := t.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check: status %d", resp.StatusCode)
	}
	return nil
}

type wsConn struct {
	ws *websocket.Conn
}

// Authenticate sends the Auth frame and waits for the typed response. The
// wait is bounded by ctx; any frame other than auth_success or auth_failure
// is a protocol error.
func (c *wsConn) Authenticate(ctx context.Context, token string) (string, error) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.ws.SetReadDeadline(deadline)
		_ = c.ws.SetWriteDeadline(deadline)
	}
	defer func() {
		_ = c.ws.SetReadDeadline(time.Time{})
		_ = c.ws.SetWriteDeadline(time.Time{})
	}()

	auth := protocol.ClientMessage{Type: protocol.MsgAuth, Token: token}
	if err := c.ws.WriteJSON(auth); err != nil {
		return "", fmt.Errorf("sending auth: %w", err)
	}

	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return "", fmt.Errorf("reading auth response: %w", err)
	}
	var resp protocol.ServerMessage
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("parsing auth response: %w", err)
	}
	switch resp.Type {
	case protocol.MsgAuthSuccess:
		return resp.SessionID, nil
	case protocol.MsgAuthFailure:
		return "", &AuthError{Reason: resp.Reason}
	default:
		return "", fmt.Errorf("unexpected auth response type %q", resp.Type)
	}
}

func (c *wsConn) Close() error {
	return c.ws.Close()
}
