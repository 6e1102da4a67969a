// Package remote is the HTTP client for the hosted identity service.
// Transport failures, timeouts and server errors collapse into
// ErrUnavailable so the caller can route to its local fallback;
// structured authentication answers come back as *APIError and are
// authoritative.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
)

// ErrUnavailable reports that the service could not answer. It is a
// routing signal, never an authentication verdict.
var ErrUnavailable = errors.New("remote: identity service unavailable")

// APIError is a structured non-2xx answer from the service. It means
// the service is up and has decided; callers must not fall back.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("remote: %s (%s, http %d)", e.Message, e.Code, e.Status)
}

// Identity is the service's answer to login, guest and me requests.
type Identity struct {
	UserID      string `json:"user_id"`
	Username    string `json:"username"`
	Role        string `json:"role"`
	AccessToken string `json:"access_token,omitempty"`
	SessionID   string `json:"session_id,omitempty"`
	Require2FA  bool   `json:"require_2fa,omitempty"`
}

// UserRecord is the admin CRUD representation of an account.
type UserRecord struct {
	UserID    string `json:"user_id"`
	Username  string `json:"username"`
	Role      string `json:"role"`
	IsActive  bool   `json:"is_active"`
	CreatedAt string `json:"created_at,omitempty"`
}

// Client talks to one identity service. Safe for concurrent use.
type Client struct {
	base        string
	http        *http.Client
	probeBudget time.Duration
}

// Config for New. Timeout bounds every request; ProbeBudget bounds the
// whole retried health probe.
type Config struct {
	BaseURL     string
	Timeout     time.Duration
	ProbeBudget time.Duration
}

func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		return nil, errors.New("remote: base URL required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("remote: bad base URL: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.ProbeBudget <= 0 {
		cfg.ProbeBudget = 10 * time.Second
	}
	return &Client{
		base:        base,
		http:        &http.Client{Timeout: cfg.Timeout},
		probeBudget: cfg.ProbeBudget,
	}, nil
}

type loginRequest struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	DeviceName string `json:"device_name,omitempty"`
	TOTPCode   string `json:"totp_code,omitempty"`
}

// Login authenticates. A pending-2FA answer has Require2FA set and no
// token; complete it by calling Login again with the code filled in.
func (c *Client) Login(ctx context.Context, username, password, deviceName, totpCode string) (*Identity, error) {
	var id Identity
	err := c.do(ctx, http.MethodPost, "/login", "", loginRequest{
		Username: username, Password: password, DeviceName: deviceName, TOTPCode: totpCode,
	}, &id)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// GuestLogin opens an anonymous session.
func (c *Client) GuestLogin(ctx context.Context) (*Identity, error) {
	var id Identity
	if err := c.do(ctx, http.MethodPost, "/guest", "", nil, &id); err != nil {
		return nil, err
	}
	return &id, nil
}

// Logout invalidates the bearer's session.
func (c *Client) Logout(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodPost, "/logout", token, nil, nil)
}

// Me returns the bearer's identity.
func (c *Client) Me(ctx context.Context, token string) (*Identity, error) {
	var id Identity
	if err := c.do(ctx, http.MethodGet, "/me", token, nil, &id); err != nil {
		return nil, err
	}
	return &id, nil
}

// CheckPermission asks the service whether the bearer holds a
// permission.
func (c *Client) CheckPermission(ctx context.Context, token, perm string) (bool, error) {
	var out struct {
		Allowed bool `json:"allowed"`
	}
	err := c.do(ctx, http.MethodPost, "/check-permission", token,
		map[string]string{"permission": perm}, &out)
	if err != nil {
		return false, err
	}
	return out.Allowed, nil
}

// ListUsers returns every account. Admin-scoped.
func (c *Client) ListUsers(ctx context.Context, token string) ([]UserRecord, error) {
	var out []UserRecord
	if err := c.do(ctx, http.MethodGet, "/users", token, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateUser provisions an account. Admin-scoped.
func (c *Client) CreateUser(ctx context.Context, token, username, pass, role string) (*UserRecord, error) {
	var out UserRecord
	err := c.do(ctx, http.MethodPost, "/users", token,
		map[string]string{"username": username, "password": pass, "role": role}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateUser patches an account. Admin-scoped.
func (c *Client) UpdateUser(ctx context.Context, token, userID string, fields map[string]any) (*UserRecord, error) {
	var out UserRecord
	err := c.do(ctx, http.MethodPut, "/users/"+url.PathEscape(userID), token, fields, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteUser removes an account. Admin-scoped.
func (c *Client) DeleteUser(ctx context.Context, token, userID string) error {
	return c.do(ctx, http.MethodDelete, "/users/"+url.PathEscape(userID), token, nil, nil)
}

// Healthy probes /health with fibonacci backoff until it answers or
// the probe budget runs out.
func (c *Client) Healthy(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.probeBudget)
	defer cancel()

	b := retry.NewFibonacci(250 * time.Millisecond)
	b = retry.WithMaxDuration(c.probeBudget, b)
	return retry.Do(ctx, b, func(ctx context.Context) error {
		if err := c.do(ctx, http.MethodGet, "/health", "", nil, nil); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}

// do performs one request. A non-2xx with a structured error body
// becomes *APIError; anything the service did not decide becomes
// ErrUnavailable.
func (c *Client) do(ctx context.Context, method, path, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("remote: encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("remote: build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: http %d", ErrUnavailable, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		var payload struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil || payload.Code == "" {
			// An unstructured 4xx from a proxy is not a verdict.
			return fmt.Errorf("%w: http %d", ErrUnavailable, resp.StatusCode)
		}
		apiErr.Code = payload.Code
		apiErr.Message = payload.Message
		return apiErr
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
		}
	}
	return nil
}
