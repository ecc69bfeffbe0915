package daraja

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	tokenPath = "/oauth/v1/generate?grant_type=client_credentials"
	pushPath  = "/mpesa/stkpush/v1/processrequest"

	// tokenExpiryMargin keeps a cached token from being used right before the provider expires it.
	tokenExpiryMargin = 60 * time.Second

	maxErrorBody = 4 << 10
)

// TokenCache stores access tokens between payment attempts.
type TokenCache interface {
	Get(ctx context.Context) (string, bool, error)
	Set(ctx context.Context, token string, ttl time.Duration) error
	Delete(ctx context.Context) error
}

type Credentials struct {
	ConsumerKey    string
	ConsumerSecret string
}

type Options struct {
	BaseURL     string
	Credentials Credentials
	HTTPClient  *http.Client
	Cache       TokenCache
}

// Client talks to the Daraja API.
type Client struct {
	baseURL     string
	credentials Credentials
	client      *http.Client
	cache       TokenCache
}

func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &Client{
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		credentials: opts.Credentials,
		client:      httpClient,
		cache:       opts.Cache,
	}
}

type tokenResponse struct {
	AccessToken string      `json:"access_token"`
	ExpiresIn   json.Number `json:"expires_in"`
}

// AccessToken returns a bearer token, from the cache when one is configured and still fresh.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	if c.credentials.ConsumerKey == "" || c.credentials.ConsumerSecret == "" {
		return "", ErrMissingCredentials
	}

	if c.cache != nil {
		token, ok, err := c.cache.Get(ctx)
		if err != nil {
			// A broken cache only costs an extra token request.
			slog.Warn("failed to read cached token", "error", err)
		}

		if ok {
			return token, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+tokenPath, nil)
	if err != nil {
		return "", fmt.Errorf("creating token request: %w", err)
	}

	req.SetBasicAuth(c.credentials.ConsumerKey, c.credentials.ConsumerSecret)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrAuthFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", fmt.Errorf("%w: status %d: %s", ErrAuthFailed, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("%w: decoding token response: %w", ErrAuthFailed, err)
	}

	if tr.AccessToken == "" {
		return "", fmt.Errorf("%w: response did not contain access_token", ErrAuthFailed)
	}

	if c.cache != nil {
		if ttl := cacheTTL(tr.ExpiresIn); ttl > 0 {
			if err := c.cache.Set(ctx, tr.AccessToken, ttl); err != nil {
				slog.Warn("failed to cache token", "error", err)
			}
		}
	}

	return tr.AccessToken, nil
}

// InvalidateToken drops a cached token the provider no longer accepts.
func (c *Client) InvalidateToken(ctx context.Context) error {
	if c.cache == nil {
		return nil
	}

	if err := c.cache.Delete(ctx); err != nil {
		return fmt.Errorf("invalidating token: %w", err)
	}

	return nil
}

func cacheTTL(expiresIn json.Number) time.Duration {
	secs, err := expiresIn.Int64()
	if err != nil || secs <= 0 {
		return 0
	}

	return time.Duration(secs)*time.Second - tokenExpiryMargin
}
