// Package central is the client for the central ERP API: credential
// exchange for a bearer token and idempotent attendance uploads.
package central

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/himalco/dairyerp/attsync/internal/types"
)

const (
	httpTimeout = 30 * time.Second

	// Refresh the cached token when it is this close to expiry.
	tokenExpirySlack = 30 * time.Second
)

// UploadResult classifies a successful attendance upload.
type UploadResult int

const (
	// UploadCreated means the central system stored a new record.
	UploadCreated UploadResult = iota
	// UploadExists means the central system already holds a record for
	// this (employee, date); it owns de-duplication, we count it as updated.
	UploadExists
)

// Client talks to the central API. The cached bearer token is the one
// piece of state shared across daemon cycles; it is guarded by a mutex
// and treated as advisory — a stale token just triggers one re-login.
type Client struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
	logger     zerolog.Logger

	mu    sync.Mutex
	token string
}

// New creates a client for the central API at baseURL.
func New(baseURL, username, password string, logger zerolog.Logger) *Client {
	return &Client{
		baseURL:  baseURL,
		username: username,
		password: password,
		httpClient: &http.Client{
			Timeout: httpTimeout,
		},
		logger: logger.With().Str("component", "central").Logger(),
	}
}

// Authenticate ensures a usable bearer token is held, logging in if the
// cache is empty or near expiry. Returns types.ErrAuth on rejection.
func (c *Client) Authenticate(ctx context.Context) error {
	_, err := c.ensureToken(ctx)
	return err
}

// ensureToken returns the cached token, refreshing it when absent or
// within the expiry slack.
func (c *Client) ensureToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()

	if token != "" && !tokenExpired(token) {
		return token, nil
	}
	return c.login(ctx)
}

// login exchanges the configured credentials for a fresh token.
func (c *Client) login(ctx context.Context) (string, error) {
	body, err := json.Marshal(map[string]string{
		"username": c.username,
		"password": c.password,
	})
	if err != nil {
		return "", fmt.Errorf("marshal login request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/login", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: build login request: %v", types.ErrAuth, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: login request: %v", types.ErrAuth, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: login returned status %d", types.ErrAuth, resp.StatusCode)
	}

	var reply struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return "", fmt.Errorf("%w: decode login reply: %v", types.ErrAuth, err)
	}
	if reply.AccessToken == "" {
		return "", fmt.Errorf("%w: login reply carried no token", types.ErrAuth)
	}

	c.mu.Lock()
	c.token = reply.AccessToken
	c.mu.Unlock()

	c.logger.Debug().Msg("authenticated against central API")
	return reply.AccessToken, nil
}

// invalidateToken drops the cached token after a 401-class rejection.
func (c *Client) invalidateToken() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

// UploadAttendance posts one reconciled record. A 2xx response means a new
// record was created; 409 means the central system already holds one for
// this (employee, date). A 401 triggers a single re-login and retry.
func (c *Client) UploadAttendance(ctx context.Context, rec types.DailyAttendanceRecord) (UploadResult, error) {
	result, status, err := c.postAttendance(ctx, rec)
	if err == nil && status == http.StatusUnauthorized {
		c.invalidateToken()
		result, status, err = c.postAttendance(ctx, rec)
		if err == nil && status == http.StatusUnauthorized {
			return 0, fmt.Errorf("upload %s/%s: unauthorized after token refresh", rec.EmployeeID, rec.Date)
		}
	}
	if err != nil {
		return 0, err
	}
	return result, nil
}

// postAttendance performs one create request; the status is returned so
// the caller can react to a 401.
func (c *Client) postAttendance(ctx context.Context, rec types.DailyAttendanceRecord) (UploadResult, int, error) {
	token, err := c.ensureToken(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("upload %s/%s: %w", rec.EmployeeID, rec.Date, err)
	}

	body, err := json.Marshal(rec)
	if err != nil {
		return 0, 0, fmt.Errorf("marshal attendance record: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/attendance", bytes.NewReader(body))
	if err != nil {
		return 0, 0, fmt.Errorf("build attendance request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, 0, fmt.Errorf("upload %s/%s: %w", rec.EmployeeID, rec.Date, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return UploadCreated, resp.StatusCode, nil
	case resp.StatusCode == http.StatusConflict:
		return UploadExists, resp.StatusCode, nil
	case resp.StatusCode == http.StatusUnauthorized:
		return 0, resp.StatusCode, nil
	default:
		return 0, resp.StatusCode, fmt.Errorf("upload %s/%s: status %d", rec.EmployeeID, rec.Date, resp.StatusCode)
	}
}

// tokenExpired inspects the token's exp claim without verifying the
// signature (the agent is not the token's validator). Tokens that do not
// parse as JWTs are used as-is.
func tokenExpired(token string) bool {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return false
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return time.Until(exp.Time) < tokenExpirySlack
}
