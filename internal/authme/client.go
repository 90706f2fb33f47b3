// Package authme keeps the legacy AuthMe credential store eventually
// consistent with approved accounts. The store itself is a black box behind
// an HTTP bridge; failure here never blocks an approval, it is audited and
// swallowed by the caller.
package authme

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/kitemc/verifyd/pkg/errors"
)

// Syncer provisions an account in the legacy authentication store.
type Syncer interface {
	EnsureAccount(ctx context.Context, username, credentialHash string) error
}

// Config holds the bridge endpoint settings.
type Config struct {
	Enabled bool
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Client talks to an AuthMe bridge over HTTP.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient builds a Syncer for the configured bridge. A disabled
// configuration yields a no-op syncer.
func NewClient(cfg Config) (Syncer, error) {
	if !cfg.Enabled {
		return Noop{}, nil
	}

	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("authme: base url is required when enabled")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL: base,
		token:   cfg.Token,
		http:    &http.Client{Timeout: timeout},
	}, nil
}

type ensureRequest struct {
	Username     string `json:"username"`
	PasswordHash string `json:"password_hash"`
}

// EnsureAccount registers the username with its initial credential state.
// The bridge treats an existing account as success, so the call is safe to
// repeat on re-approval.
func (c *Client) EnsureAccount(ctx context.Context, username, credentialHash string) error {
	body, err := json.Marshal(ensureRequest{
		Username:     username,
		PasswordHash: credentialHash,
	})
	if err != nil {
		return apperrors.ErrSyncFailure.WithInternal(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/accounts", bytes.NewReader(body))
	if err != nil {
		return apperrors.ErrSyncFailure.WithInternal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apperrors.ErrSyncFailure.WithInternal(err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apperrors.ErrSyncFailure.WithInternal(
			fmt.Errorf("authme: bridge returned status %d", resp.StatusCode))
	}
	return nil
}

// Noop satisfies Syncer when no legacy store is configured.
type Noop struct{}

func (Noop) EnsureAccount(context.Context, string, string) error { return nil }
