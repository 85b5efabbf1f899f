// Package github is a minimal GitHub REST client for workflow dispatch and
// repository contents.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// DefaultBaseURL is the public GitHub API endpoint.
const DefaultBaseURL = "https://api.github.com"

// Config identifies the repository and credentials.
type Config struct {
	BaseURL    string        `mapstructure:"base_url"`
	Repository string        `mapstructure:"repository"`
	Token      string        `mapstructure:"token"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// APIError is a non-2xx GitHub response.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("github %s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
}

// Client issues authenticated requests against one repository.
type Client struct {
	baseURL string
	owner   string
	repo    string
	http    *http.Client
}

// NewClient builds a client. A non-empty token is attached as a bearer token
// through an oauth2 transport.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	owner, repo, ok := strings.Cut(strings.Trim(cfg.Repository, "/"), "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return nil, fmt.Errorf("repository must be owner/name, got %q", cfg.Repository)
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	httpClient := &http.Client{}
	if cfg.Token != "" {
		httpClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token}))
	}
	httpClient.Timeout = cfg.Timeout
	if httpClient.Timeout <= 0 {
		httpClient.Timeout = 30 * time.Second
	}
	return &Client{baseURL: base, owner: owner, repo: repo, http: httpClient}, nil
}

// RepoPath returns "/repos/<owner>/<repo>" joined with the given suffix.
func (c *Client) RepoPath(suffix string) string {
	return "/repos/" + c.owner + "/" + c.repo + "/" + strings.TrimLeft(suffix, "/")
}

// Do sends body as JSON and decodes a JSON response into out when out is
// non-nil. Non-2xx statuses are returned as *APIError.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	req.Header.Set("User-Agent", "kgr-crawler")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("github %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Method: method, Path: path, StatusCode: resp.StatusCode, Message: apiMessage(msg)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func apiMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Message != "" {
		return payload.Message
	}
	return strings.TrimSpace(string(body))
}
