// Package vault is the client for the external secret store: bearer-token
// validation and the long-term home for finalized master keys. It is a
// plain net/http client over the HCMC storage API, a thin base-URL +
// bearer wrapper over GET/POST, unrelated to HashiCorp Vault's API.
package vault

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"
)

const (
	pathValid  = "/api/v1/storage/valid"
	pathSecret = "/api/v1/storage/secret"
)

// UpstreamError captures a non-2xx or otherwise failed vault call, with the
// response body retained for diagnostics.
type UpstreamError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("vault: %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("vault: %s returned status %d: %s", e.Op, e.StatusCode, e.Body)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// ErrUnauthorized is returned by ValidateToken when the vault rejects the
// token (any non-2xx response to /storage/valid).
var ErrUnauthorized = fmt.Errorf("vault: token rejected")

// Client talks to the HCMC vault over HTTP. A fresh *http.Client is reused
// across calls (connection pooling is free via Go's transport), but each
// logical operation re-issues its own request; there is no session state.
type Client struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger
}

// New constructs a vault Client pointed at baseURL (e.g. "https://hcmc.example.com").
func New(baseURL string, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{},
		log:     log,
	}
}

// ValidateToken performs an authenticated GET against /api/v1/storage/valid
// and treats any non-2xx response as unauthorized.
func (c *Client) ValidateToken(ctx context.Context, token string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+pathValid, nil)
	if err != nil {
		return &UpstreamError{Op: "validate_token", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return &UpstreamError{Op: "validate_token", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		c.log.Warn("vault rejected token",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", body),
		)
		return ErrUnauthorized
	}
	return nil
}

type masterKeyWrapper struct {
	MasterKey json.RawMessage `json:"master_key"`
}

// StoreMasterKey performs an authenticated POST of the serialized master key
// under a {"master_key": ...} wrapper to /api/v1/storage/secret. A non-2xx
// response is an UpstreamError with the response body captured.
func (c *Client) StoreMasterKey(ctx context.Context, token string, masterKey json.RawMessage) error {
	payload, err := json.Marshal(masterKeyWrapper{MasterKey: masterKey})
	if err != nil {
		return fmt.Errorf("vault: marshal master key: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+pathSecret, bytes.NewReader(payload))
	if err != nil {
		return &UpstreamError{Op: "store_master_key", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &UpstreamError{Op: "store_master_key", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return &UpstreamError{Op: "store_master_key", StatusCode: resp.StatusCode, Body: string(body)}
	}
	c.log.Info("mirrored master key to vault")
	return nil
}

// FetchMasterKey performs an authenticated GET against /api/v1/storage/secret.
// An empty body is treated as "no master key", an error, since this is a
// fallback read only reached on a local cache miss.
func (c *Client) FetchMasterKey(ctx context.Context, token string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+pathSecret, nil)
	if err != nil {
		return nil, &UpstreamError{Op: "fetch_master_key", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &UpstreamError{Op: "fetch_master_key", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &UpstreamError{Op: "fetch_master_key", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &UpstreamError{Op: "fetch_master_key", StatusCode: resp.StatusCode, Body: string(body)}
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, fmt.Errorf("vault: fetch_master_key: no master key on file")
	}

	var wrapper masterKeyWrapper
	if err := json.Unmarshal(body, &wrapper); err == nil && len(wrapper.MasterKey) > 0 {
		return wrapper.MasterKey, nil
	}
	// Fall back to treating the whole body as the master key document, in
	// case the vault returns the secret unwrapped.
	return json.RawMessage(body), nil
}
