// Package client reads from a remote paged directory API with an app-only bearer credential.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"directory-sync/backend/internal/directory/domain"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultPageDelay = 100 * time.Millisecond
	// defaultProbePath is the lightweight call used by TestConnection.
	defaultProbePath = "/users?$top=1&$select=id"
)

var (
	// ErrConfiguration is returned when the service credential is incomplete.
	ErrConfiguration = errors.New("directory: credentials not configured")
	// ErrAuth is returned when the token provider yields no token or the API rejects it.
	ErrAuth = errors.New("directory: authentication failed")
	// ErrConnectivity is returned when the API is unreachable, times out, or answers with a server error.
	ErrConnectivity = errors.New("directory: api unreachable")
)

// Config holds the credential and transport settings for a Client.
type Config struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	// TokenURL is the client-credentials token endpoint.
	TokenURL string
	Scopes   []string
	// BaseURL is prefixed to relative paths and relative continuation cursors.
	BaseURL string
	// PageDelay is the fixed pause between page fetches.
	PageDelay time.Duration
	// Timeout bounds each request.
	Timeout time.Duration
	// ProbePath is requested by TestConnection; defaults to a one-row users read.
	ProbePath string
}

// Client performs authenticated reads against the directory API.
// The token source is built lazily on first use and reused for the life of the Client.
type Client struct {
	cfg        Config
	httpClient *http.Client

	mu          sync.Mutex
	tokenSource oauth2.TokenSource

	sleep func(ctx context.Context, d time.Duration) error
}

// New returns a client for cfg. Missing credentials are not an error until a call needs a token.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.PageDelay < 0 {
		cfg.PageDelay = defaultPageDelay
	}
	if cfg.ProbePath == "" {
		cfg.ProbePath = defaultProbePath
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		sleep:      sleepContext,
	}
}

// HasCredentials reports whether tenant, client id and client secret are all set.
func (c *Client) HasCredentials() bool {
	return c.cfg.TenantID != "" && c.cfg.ClientID != "" && c.cfg.ClientSecret != ""
}

func (c *Client) source() (oauth2.TokenSource, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tokenSource != nil {
		return c.tokenSource, nil
	}
	if !c.HasCredentials() || c.cfg.TokenURL == "" {
		return nil, ErrConfiguration
	}
	cc := &clientcredentials.Config{
		ClientID:     c.cfg.ClientID,
		ClientSecret: c.cfg.ClientSecret,
		TokenURL:     c.cfg.TokenURL,
		Scopes:       c.cfg.Scopes,
	}
	// Token requests outlive any single caller's context, so the source gets its own.
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, c.httpClient)
	c.tokenSource = cc.TokenSource(ctx)
	return c.tokenSource, nil
}

// AccessToken returns a bearer token, fetching a new one when the cached token has expired.
func (c *Client) AccessToken(ctx context.Context) (*oauth2.Token, error) {
	ts, err := c.source()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tok, err := ts.Token()
	if err != nil {
		var uerr *url.Error
		if errors.As(err, &uerr) {
			return nil, fmt.Errorf("%w: token request: %v", ErrConnectivity, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrAuth, err)
	}
	if tok == nil || tok.AccessToken == "" {
		return nil, fmt.Errorf("%w: token provider returned no token", ErrAuth)
	}
	return tok, nil
}

// FetchPage performs one bounded-timeout authenticated GET and decodes the page body.
// path may be relative to BaseURL or an absolute URL (as continuation cursors usually are).
func (c *Client) FetchPage(ctx context.Context, path string) (*domain.Page, error) {
	tok, err := c.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.ResolveURL(path), nil)
	if err != nil {
		return nil, err
	}
	tok.SetAuthHeader(req)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectivity, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return nil, fmt.Errorf("%w: status=%d body=%s", ErrAuth, resp.StatusCode, string(b))
		}
		return nil, fmt.Errorf("%w: status=%d body=%s", ErrConnectivity, resp.StatusCode, string(b))
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	var page domain.Page
	if err := dec.Decode(&page); err != nil {
		return nil, fmt.Errorf("%w: decode page: %v", ErrConnectivity, err)
	}
	return &page, nil
}

// FetchAllPages follows continuation cursors from initialPath until the last page, pausing PageDelay
// between pages. It never returns an error: when a page fails, pagination stops and the result carries
// the records gathered so far with Complete=false and Err set.
func (c *Client) FetchAllPages(ctx context.Context, initialPath string) domain.FetchResult {
	var result domain.FetchResult
	next := initialPath
	seen := map[string]bool{}
	for next != "" {
		target := c.ResolveURL(next)
		if seen[target] {
			result.Err = fmt.Errorf("directory: continuation cursor repeated: %s", target)
			log.Printf("directory: stopping pagination of %s after %d pages: %v", initialPath, result.Pages, result.Err)
			return result
		}
		seen[target] = true

		if result.Pages > 0 && c.cfg.PageDelay > 0 {
			if err := c.sleep(ctx, c.cfg.PageDelay); err != nil {
				result.Err = err
				return result
			}
		}

		page, err := c.FetchPage(ctx, target)
		if err != nil {
			result.Err = err
			log.Printf("directory: page %d of %s failed, keeping %d records: %v", result.Pages+1, initialPath, len(result.Records), err)
			return result
		}
		result.Records = append(result.Records, page.Value...)
		result.Pages++
		next = page.Cursor()
	}
	result.Complete = true
	return result
}

// TestConnection issues one lightweight authenticated call. Any failure yields false.
func (c *Client) TestConnection(ctx context.Context) bool {
	if _, err := c.FetchPage(ctx, c.cfg.ProbePath); err != nil {
		log.Printf("directory: connection test failed: %v", err)
		return false
	}
	return true
}

// ResolveURL turns a relative path or cursor into an absolute URL under BaseURL.
func (c *Client) ResolveURL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return c.cfg.BaseURL + "/" + strings.TrimPrefix(path, "/")
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
