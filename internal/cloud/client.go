// Package cloud talks to the hosted Postgres REST surface used for
// cross-device sync. Every operation degrades to a no-op when no client or
// signed-in identity is present, so the rest of the pipeline never branches
// on connectivity.
package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// Identity is the signed-in user as far as sync is concerned.
type Identity struct {
	UserID      string
	Email       string
	AccessToken string
}

// SessionRow mirrors the sessions table. ID is assigned server-side on
// first insert.
type SessionRow struct {
	ID        string          `json:"id,omitempty"`
	UserID    string          `json:"user_id"`
	Title     string          `json:"title"`
	History   json.RawMessage `json:"history"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type userSyncRow struct {
	UserID string          `json:"user_id"`
	Email  string          `json:"email"`
	Data   json.RawMessage `json:"data"`
}

// Client is a thin REST client for the sync backend. A nil *Client is
// valid; every method on it succeeds without doing anything.
type Client struct {
	baseURL string
	anonKey string
	http    *http.Client
	logger  *zap.Logger
}

type Config struct {
	BaseURL    string
	AnonKey    string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// New returns a client, or nil when no backend URL is configured.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		return nil
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{baseURL: cfg.BaseURL, anonKey: cfg.AnonKey, http: hc, logger: logger}
}

// UpsertSession creates or updates a session row and returns the row ID.
// When row.ID is empty the backend assigns one; callers persist it so the
// next upsert targets the same row.
func (c *Client) UpsertSession(ctx context.Context, id Identity, row SessionRow) (string, error) {
	if c == nil || id.UserID == "" {
		return row.ID, nil
	}
	row.UserID = id.UserID

	body, err := json.Marshal(row)
	if err != nil {
		return "", fmt.Errorf("encode session: %w", err)
	}

	var rows []SessionRow
	if err := c.do(ctx, id, http.MethodPost, "/rest/v1/sessions", body, &rows); err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", fmt.Errorf("upsert session: empty representation")
	}
	return rows[0].ID, nil
}

// ListSessions returns the identity's sessions, newest first.
func (c *Client) ListSessions(ctx context.Context, id Identity) ([]SessionRow, error) {
	if c == nil || id.UserID == "" {
		return nil, nil
	}
	path := "/rest/v1/sessions?user_id=eq." + url.QueryEscape(id.UserID) + "&order=updated_at.desc"
	var rows []SessionRow
	if err := c.do(ctx, id, http.MethodGet, path, nil, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// DeleteSession removes a session row. It reports whether a delete was
// actually issued, so callers can distinguish a no-op from a remote delete.
func (c *Client) DeleteSession(ctx context.Context, id Identity, sessionID string) (bool, error) {
	if c == nil || id.UserID == "" || sessionID == "" {
		return false, nil
	}
	path := "/rest/v1/sessions?id=eq." + url.QueryEscape(sessionID) +
		"&user_id=eq." + url.QueryEscape(id.UserID)
	if err := c.do(ctx, id, http.MethodDelete, path, nil, nil); err != nil {
		return false, err
	}
	return true, nil
}

// SaveUserData upserts the identity's full data blob into user_sync.
func (c *Client) SaveUserData(ctx context.Context, id Identity, data json.RawMessage) error {
	if c == nil || id.UserID == "" {
		return nil
	}
	body, err := json.Marshal(userSyncRow{UserID: id.UserID, Email: id.Email, Data: data})
	if err != nil {
		return fmt.Errorf("encode user data: %w", err)
	}
	return c.do(ctx, id, http.MethodPost, "/rest/v1/user_sync?on_conflict=user_id", body, nil)
}

// LoadUserData fetches the identity's data blob, or (nil, false, nil) when
// the backend has none.
func (c *Client) LoadUserData(ctx context.Context, id Identity) (json.RawMessage, bool, error) {
	if c == nil || id.UserID == "" {
		return nil, false, nil
	}
	path := "/rest/v1/user_sync?user_id=eq." + url.QueryEscape(id.UserID) + "&select=data"
	var rows []userSyncRow
	if err := c.do(ctx, id, http.MethodGet, path, nil, &rows); err != nil {
		return nil, false, err
	}
	if len(rows) == 0 || len(rows[0].Data) == 0 {
		return nil, false, nil
	}
	return rows[0].Data, true, nil
}

// RemoveUserData deletes the identity's blob from user_sync.
func (c *Client) RemoveUserData(ctx context.Context, id Identity) error {
	if c == nil || id.UserID == "" {
		return nil
	}
	path := "/rest/v1/user_sync?user_id=eq." + url.QueryEscape(id.UserID)
	return c.do(ctx, id, http.MethodDelete, path, nil, nil)
}

func (c *Client) do(ctx context.Context, id Identity, method, path string, body []byte, out any) error {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Authorization", "Bearer "+id.AccessToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Prefer", "resolution=merge-duplicates,return=representation")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	c.logger.Debug("sync request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, bytes.TrimSpace(raw))
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
