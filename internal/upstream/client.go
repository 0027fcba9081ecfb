package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"attenddash/internal/observability"
)

// Credentials authenticate a student against the upstream login endpoint.
type Credentials struct {
	RollNumber string `json:"rollNumber"`
	Email      string `json:"email"`
	Password   string `json:"password"`
}

// LoginResult carries the bearer token and the opaque student profile the
// upstream returns alongside it.
type LoginResult struct {
	Token   string          `json:"token"`
	Student json.RawMessage `json:"student"`
}

// Error is a non-2xx upstream response with the message extracted from the
// body when parseable.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("upstream error %d: %s", e.StatusCode, e.Message)
}

// Config tunes the upstream client.
type Config struct {
	BaseURL string
	Timeout time.Duration
	Signer  Signer
	// SignLogin applies the request signature to the login call too. One
	// observed upstream variant requires it, the other rejects nothing
	// either way.
	SignLogin bool
}

// Client calls the third-party student-attendance API.
type Client struct {
	baseURL   string
	http      *http.Client
	signer    Signer
	signLogin bool
}

// New creates a client with an explicit timeout; upstream reliability is
// unknown, so never rely on the zero http.Client.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	signer := cfg.Signer
	if signer == nil {
		signer = NopSigner{}
	}
	return &Client{
		baseURL:   cfg.BaseURL,
		http:      &http.Client{Timeout: timeout},
		signer:    signer,
		signLogin: cfg.SignLogin,
	}
}

// Login authenticates a student and returns the bearer token plus profile.
func (c *Client) Login(ctx context.Context, creds Credentials) (LoginResult, error) {
	payload, _ := json.Marshal(creds)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/student/auth/login", bytes.NewReader(payload))
	if err != nil {
		return LoginResult{}, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	if c.signLogin {
		c.signer.Sign(req)
	}

	body, err := c.do(req, "login")
	if err != nil {
		return LoginResult{}, err
	}

	var result LoginResult
	if err := json.Unmarshal(body, &result); err != nil {
		return LoginResult{}, fmt.Errorf("decode login response: %w", err)
	}
	if result.Token == "" {
		return LoginResult{}, fmt.Errorf("no token received from upstream")
	}
	return result, nil
}

// DashboardStats fetches the overall/monthly/weekly headline numbers.
func (c *Client) DashboardStats(ctx context.Context, token string) ([]byte, error) {
	return c.get(ctx, token, "/student/dashboard/stats", nil, "dashboard_stats")
}

// AttendanceStats fetches the by-course breakdown.
func (c *Client) AttendanceStats(ctx context.Context, token, sectionView string) ([]byte, error) {
	if sectionView == "" {
		sectionView = "all-active"
	}
	query := url.Values{"sectionView": {sectionView}}
	return c.get(ctx, token, "/student/dashboard/attendance/stats", query, "attendance_stats")
}

// Records fetches one page of attendance records.
func (c *Client) Records(ctx context.Context, token string, page, limit int) ([]byte, error) {
	query := url.Values{
		"page":  {strconv.Itoa(page)},
		"limit": {strconv.Itoa(limit)},
	}
	return c.get(ctx, token, "/student/dashboard/attendance/records", query, "records")
}

// Profile fetches the student profile.
func (c *Client) Profile(ctx context.Context, token string) ([]byte, error) {
	return c.get(ctx, token, "/student/dashboard/profile", nil, "profile")
}

func (c *Client) get(ctx context.Context, token, path string, query url.Values, endpoint string) ([]byte, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	c.signer.Sign(req)

	return c.do(req, endpoint)
}

func (c *Client) do(req *http.Request, endpoint string) ([]byte, error) {
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		observability.UpstreamRequests().WithLabelValues(endpoint, "transport_error").Inc()
		return nil, fmt.Errorf("upstream request failed: %w", err)
	}
	defer resp.Body.Close()

	observability.UpstreamRequests().WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()
	observability.UpstreamLatency().WithLabelValues(endpoint).Observe(time.Since(start).Seconds())

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read upstream response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, &Error{StatusCode: resp.StatusCode, Message: extractMessage(body, resp.StatusCode)}
	}
	return body, nil
}

// extractMessage pulls a human-readable error out of an upstream failure
// body: JSON error/message fields first, raw text next, generic last.
func extractMessage(body []byte, status int) string {
	var parsed struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		if parsed.Error != "" {
			return parsed.Error
		}
		if parsed.Message != "" {
			return parsed.Message
		}
	}
	if len(body) > 0 {
		return string(body)
	}
	return fmt.Sprintf("request failed with status %d", status)
}
