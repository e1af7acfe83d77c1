package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"loom/pkg/config"
	"loom/pkg/protocol"
)

// apiClient talks to a running daemon's REST API.
type apiClient struct {
	baseURL string
	http    *http.Client
}

// newAPIClient resolves the daemon address from config.
func newAPIClient() (*apiClient, error) {
	home, err := config.Home()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(home)
	if err != nil {
		return nil, err
	}
	return &apiClient{
		baseURL: "http://" + cfg.Listen,
		http:    &http.Client{Timeout: 10 * time.Second},
	}, nil
}

func (c *apiClient) get(path string, out any) error {
	resp, err := c.http.Get(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("daemon not reachable at %s: %w", c.baseURL, err)
	}
	return decodeResponse(resp, out)
}

func (c *apiClient) post(path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := c.http.Post(c.baseURL+path, "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("daemon not reachable at %s: %w", c.baseURL, err)
	}
	return decodeResponse(resp, out)
}

func (c *apiClient) del(path string, out any) error {
	req, err := http.NewRequest(http.MethodDelete, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("daemon not reachable at %s: %w", c.baseURL, err)
	}
	return decodeResponse(resp, out)
}

// decodeResponse surfaces the daemon's uniform error body on failure.
func decodeResponse(resp *http.Response, out any) error {
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 400 {
		var e protocol.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&e); err == nil && e.Error != "" {
			return fmt.Errorf("%s", e.Error)
		}
		return fmt.Errorf("daemon returned %s", resp.Status)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// savedSession is the client credential persisted by `loomd pair`.
type savedSession struct {
	SessionID    string `json:"session_id"`
	SessionToken string `json:"session_token"`
}

func saveSession(path string, s savedSession) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	return nil
}

func loadSession(path string) (savedSession, error) {
	var s savedSession
	data, err := os.ReadFile(path) //nolint:gosec // path is under the loom home
	if err != nil {
		return s, err
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("parse session file: %w", err)
	}
	return s, nil
}
