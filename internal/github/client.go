// Package github is a rate-limited client for the GitHub REST API with
// credential rotation. It never mutates shared state beyond the rotator's
// pointer; quota exhaustion surfaces as *QuotaError so callers can decide
// how to pace themselves.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const searchPageSize = 100

// Config controls client behavior.
type Config struct {
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond float64
	Cooldown          time.Duration
	// MaxSearchResults is the hard ceiling GitHub imposes on search
	// results per query (1000). Not configurable upstream; kept here so
	// tests can lower it.
	MaxSearchResults int
}

// User is a GitHub profile snapshot.
type User struct {
	Login           string     `json:"login"`
	Name            string     `json:"name"`
	Email           string     `json:"email"`
	Bio             string     `json:"bio"`
	Location        string     `json:"location"`
	Company         string     `json:"company"`
	Blog            string     `json:"blog"`
	TwitterUsername string     `json:"twitter_username"`
	Hireable        *bool      `json:"hireable"`
	Followers       int        `json:"followers"`
	Following       int        `json:"following"`
	PublicRepos     int        `json:"public_repos"`
	PublicGists     int        `json:"public_gists"`
	HTMLURL         string     `json:"html_url"`
	AvatarURL       string     `json:"avatar_url"`
	CreatedAt       *time.Time `json:"created_at"`
	UpdatedAt       *time.Time `json:"updated_at"`
}

// Repo is one repository summary returned by the list endpoint.
type Repo struct {
	Name        string `json:"name"`
	Stars       int    `json:"stargazers_count"`
	Language    string `json:"language"`
	HTMLURL     string `json:"html_url"`
	Description string `json:"description"`
}

// RateLimitInfo reports remaining quota per call category.
type RateLimitInfo struct {
	Core   RateWindow `json:"core"`
	Search RateWindow `json:"search"`
}

// RateWindow is one category's quota window.
type RateWindow struct {
	Limit     int   `json:"limit"`
	Remaining int   `json:"remaining"`
	Reset     int64 `json:"reset"`
}

// Client issues paced, authenticated requests against the GitHub API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	rotator    *Rotator
	limiter    *rate.Limiter
	cooldown   time.Duration
	maxSearch  int
	logger     *zap.Logger
}

// NewClient builds a Client over the given rotator.
func NewClient(cfg Config, rotator *Rotator, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.github.com"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxSearchResults <= 0 {
		cfg.MaxSearchResults = 1000
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 60 * time.Second
	}
	limit := rate.Limit(cfg.RequestsPerSecond)
	if cfg.RequestsPerSecond <= 0 {
		limit = rate.Inf
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    cfg.BaseURL,
		rotator:    rotator,
		limiter:    rate.NewLimiter(limit, 1),
		cooldown:   cfg.Cooldown,
		maxSearch:  cfg.MaxSearchResults,
		logger:     logger,
	}
}

// SearchUsers runs a user search and invokes visit for each login, in API
// order, across pages. It stops when visit returns false, the result set
// is exhausted, or the per-query ceiling is reached. GitHub caps search
// results at 1000 per query; the client never pages past that ceiling.
func (c *Client) SearchUsers(ctx context.Context, query string, visit func(login string) bool) error {
	seen := 0
	for page := 1; seen < c.maxSearch; page++ {
		var result struct {
			TotalCount int `json:"total_count"`
			Items      []struct {
				Login string `json:"login"`
			} `json:"items"`
		}
		params := url.Values{}
		params.Set("q", query)
		params.Set("per_page", strconv.Itoa(searchPageSize))
		params.Set("page", strconv.Itoa(page))
		if err := c.get(ctx, "/search/users?"+params.Encode(), &result); err != nil {
			return err
		}
		if len(result.Items) == 0 {
			return nil
		}
		for _, item := range result.Items {
			if seen >= c.maxSearch {
				return nil
			}
			seen++
			if !visit(item.Login) {
				return nil
			}
		}
		if seen >= result.TotalCount {
			return nil
		}
	}
	return nil
}

// GetUser fetches one profile snapshot.
func (c *Client) GetUser(ctx context.Context, login string) (*User, error) {
	var user User
	if err := c.get(ctx, "/users/"+url.PathEscape(login), &user); err != nil {
		return nil, notFoundFor(err, login)
	}
	return &user, nil
}

// ListRecentRepos returns up to limit repositories ordered by most
// recently updated first.
func (c *Client) ListRecentRepos(ctx context.Context, login string, limit int) ([]Repo, error) {
	params := url.Values{}
	params.Set("sort", "updated")
	params.Set("direction", "desc")
	params.Set("per_page", strconv.Itoa(limit))
	var repos []Repo
	path := "/users/" + url.PathEscape(login) + "/repos?" + params.Encode()
	if err := c.get(ctx, path, &repos); err != nil {
		return nil, notFoundFor(err, login)
	}
	return repos, nil
}

// RateLimit returns the current quota windows per call category.
func (c *Client) RateLimit(ctx context.Context) (*RateLimitInfo, error) {
	var result struct {
		Resources RateLimitInfo `json:"resources"`
	}
	if err := c.get(ctx, "/rate_limit", &result); err != nil {
		return nil, err
	}
	return &result.Resources, nil
}

// HandleQuota rotates to the next credential and pauses the fixed
// cooldown. When the pool holds a single token, rotation is a no-op, so
// the client instead blocks until the reported reset instant.
func (c *Client) HandleQuota(ctx context.Context, quotaErr error) error {
	c.rotator.Rotate()

	var qe *QuotaError
	if c.rotator.Size() == 1 && errors.As(quotaErr, &qe) && !qe.ResetAt.IsZero() {
		return c.rotator.WaitForQuota(ctx, qe.ResetAt)
	}

	select {
	case <-time.After(c.cooldown):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("pace request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Authorization", "Bearer "+c.rotator.Current())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("github request %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response %s: %w", path, err)
		}
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if quotaExhausted(resp) {
		return &QuotaError{ResetAt: resetInstant(resp)}
	}
	return &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
}

// quotaExhausted distinguishes a drained quota window from an ordinary
// 403 (e.g. a blocked resource): GitHub sets X-RateLimit-Remaining to 0
// on the former.
func quotaExhausted(resp *http.Response) bool {
	if resp.StatusCode != http.StatusForbidden && resp.StatusCode != http.StatusTooManyRequests {
		return false
	}
	return resp.Header.Get("X-RateLimit-Remaining") == "0"
}

func resetInstant(resp *http.Response) time.Time {
	raw := resp.Header.Get("X-RateLimit-Reset")
	if raw == "" {
		return time.Time{}
	}
	epoch, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(epoch, 0)
}

// notFoundFor converts a 404 StatusError into a typed NotFoundError for
// the given login; any other error passes through unchanged.
func notFoundFor(err error, login string) error {
	var se *StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
		return &NotFoundError{Login: login}
	}
	return err
}
