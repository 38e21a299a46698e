// Package client is a typed HTTP client for the portal REST API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/bizportal/portal/internal/auth"
)

// ErrSessionExpired is returned when the refresh token is rejected. The
// token store has been cleared and the caller must log in again.
var ErrSessionExpired = errors.New("client: session expired")

const refreshKey = "refresh"

// Client talks to one portal deployment.
type Client struct {
	baseURL   string
	hc        *http.Client
	tokens    TokenStore
	userAgent string
	refreshes singleflight.Group
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.hc = hc }
}

// WithTokenStore persists tokens somewhere other than memory.
func WithTokenStore(s TokenStore) Option {
	return func(c *Client) { c.tokens = s }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// New builds a client for baseURL, e.g. https://portal.example.com.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		hc:        &http.Client{Timeout: 60 * time.Second},
		tokens:    &MemoryStore{},
		userAgent: "portal-client",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Download is a file returned by an export or document endpoint.
type Download struct {
	Filename    string
	ContentType string
	Body        []byte
}

// Login exchanges credentials for tokens and stores them.
func (c *Client) Login(ctx context.Context, email, password string) (auth.Profile, error) {
	var pair auth.TokenPair
	body := map[string]string{"email": email, "password": password}
	if err := c.send(ctx, http.MethodPost, "/api/auth/login", nil, body, &pair, false); err != nil {
		return auth.Profile{}, err
	}
	if err := c.tokens.Save(Tokens{Access: pair.AccessToken, Refresh: pair.RefreshToken}); err != nil {
		return auth.Profile{}, err
	}
	if pair.User == nil {
		return auth.Profile{}, nil
	}
	return *pair.User, nil
}

// Logout revokes the session on the server and clears local tokens. Local
// tokens are cleared even when the server call fails.
func (c *Client) Logout(ctx context.Context) error {
	current, err := c.tokens.Load()
	if err != nil {
		return err
	}
	var callErr error
	if current.Access != "" {
		callErr = c.do(ctx, http.MethodPost, "/api/auth/logout", nil, map[string]string{"refresh_token": current.Refresh}, nil)
	}
	if err := c.tokens.Clear(); err != nil {
		return err
	}
	return callErr
}

// Me returns the signed-in user.
func (c *Client) Me(ctx context.Context) (auth.Profile, error) {
	var out auth.Profile
	err := c.do(ctx, http.MethodGet, "/api/auth/me", nil, nil, &out)
	return out, err
}

// do sends an authenticated JSON request.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	return c.send(ctx, method, path, query, in, out, true)
}

func (c *Client) send(ctx context.Context, method, path string, query url.Values, in, out any, authed bool) error {
	resp, err := c.roundTrip(ctx, method, path, query, in, authed)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("client: decode %s %s: %w", method, path, err)
	}
	return nil
}

// download fetches a file endpoint.
func (c *Client) download(ctx context.Context, path string, query url.Values) (Download, error) {
	return c.downloadWith(ctx, http.MethodGet, path, query, nil)
}

func (c *Client) downloadWith(ctx context.Context, method, path string, query url.Values, in any) (Download, error) {
	resp, err := c.roundTrip(ctx, method, path, query, in, true)
	if err != nil {
		return Download{}, err
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Download{}, fmt.Errorf("client: read %s: %w", path, err)
	}
	return Download{
		Filename:    filenameFrom(resp.Header.Get("Content-Disposition")),
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

// roundTrip performs the request, refreshing once on 401. The returned
// response always has a 2xx status.
func (c *Client) roundTrip(ctx context.Context, method, path string, query url.Values, in any, authed bool) (*http.Response, error) {
	var payload []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("client: encode %s %s: %w", method, path, err)
		}
		payload = b
	}

	var used string
	if authed {
		current, err := c.tokens.Load()
		if err != nil {
			return nil, err
		}
		used = current.Access
	}
	resp, err := c.attempt(ctx, method, path, query, payload, used)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized && authed {
		drain(resp)
		access, err := c.refresh(ctx, used)
		if err != nil {
			return nil, err
		}
		resp, err = c.attempt(ctx, method, path, query, payload, access)
		if err != nil {
			return nil, err
		}
	}
	if resp.StatusCode >= 300 {
		defer drain(resp)
		return nil, decodeError(resp)
	}
	return resp, nil
}

func (c *Client) attempt(ctx context.Context, method, path string, query url.Values, payload []byte, access string) (*http.Response, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if access != "" {
		req.Header.Set("Authorization", "Bearer "+access)
	}
	if key := idempotencyKey(ctx); key != "" {
		req.Header.Set(IdempotencyHeader, key)
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("client: %s %s: %w", method, path, err)
	}
	return resp, nil
}

// refresh rotates the token pair. Concurrent callers share one refresh
// call, and a caller whose token was already replaced reuses the new one.
func (c *Client) refresh(ctx context.Context, stale string) (string, error) {
	ch := c.refreshes.DoChan(refreshKey, func() (any, error) {
		current, err := c.tokens.Load()
		if err != nil {
			return "", err
		}
		if current.Access != "" && current.Access != stale {
			return current.Access, nil
		}
		if current.Refresh == "" {
			return "", ErrSessionExpired
		}
		// Detached so one caller's cancellation does not fail the others.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		var pair auth.TokenPair
		err = c.send(rctx, http.MethodPost, "/api/auth/refresh", nil, map[string]string{"refresh_token": current.Refresh}, &pair, false)
		if err != nil {
			_ = c.tokens.Clear()
			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.Status < http.StatusInternalServerError {
				return "", ErrSessionExpired
			}
			return "", fmt.Errorf("%w: %v", ErrSessionExpired, err)
		}
		if err := c.tokens.Save(Tokens{Access: pair.AccessToken, Refresh: pair.RefreshToken}); err != nil {
			return "", err
		}
		return pair.AccessToken, nil
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

func filenameFrom(disposition string) string {
	if disposition == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(disposition)
	if err != nil {
		return ""
	}
	return params["filename"]
}
