// Package credentials implements the HTTP client for the external
// credentials service.
package credentials

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"

	"github.com/example/certs/internal/ports/secondary"
)

const (
	gradesPath       = "/api/v2/grades/"
	credentialsPath  = "/api/v2/credentials/"
	defaultUserAgent = "certs-worker"
)

// StatusError is returned when the service answers with a non-2xx status.
type StatusError struct {
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("credentials service %s returned %d: %s", e.Path, e.StatusCode, e.Body)
}

// Temporary reports whether the request may succeed when retried.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// Client posts grades and certificates to the credentials service.
type Client struct {
	http *resty.Client
}

// NewClient creates a client for the service at baseURL.
// An empty token sends no Authorization header.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", defaultUserAgent)
	if token != "" {
		c.SetAuthScheme("JWT").SetAuthToken(token)
	}
	return &Client{http: c}
}

// PostGrade sends a course grade.
func (c *Client) PostGrade(ctx context.Context, grade secondary.CredentialsGrade) error {
	return c.post(ctx, gradesPath, grade)
}

// PostCertificate awards or revokes a course certificate credential.
func (c *Client) PostCertificate(ctx context.Context, cert secondary.CredentialsCertificate) error {
	return c.post(ctx, credentialsPath, cert)
}

func (c *Client) post(ctx context.Context, path string, body any) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(path)
	if err != nil {
		return fmt.Errorf("failed to post to credentials service %s: %w", path, err)
	}
	if resp.IsError() {
		return &StatusError{Path: path, StatusCode: resp.StatusCode(), Body: truncate(resp.String(), 200)}
	}
	return nil
}

// truncate shortens s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}

var _ secondary.CredentialsClient = (*Client)(nil)
