package pix

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	domainErrors "github.com/cassiomorais/pixrelay/internal/domain/errors"
	"github.com/cassiomorais/pixrelay/internal/infrastructure/observability"
	"github.com/rs/zerolog"
)

const (
	defaultTokenMargin = 5 * time.Second
	defaultTokenTTL    = 300 * time.Second
	maxErrorBody       = 4 << 10
)

// TokenSource hands out bearer tokens for the provider API.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Invalidate()
}

// TokenCache holds one OAuth client-credentials token and renews it shortly
// before it expires. Concurrent callers may renew redundantly; only the
// token/expiry pair is guarded.
type TokenCache struct {
	client       *http.Client
	tokenURL     string
	clientID     string
	clientSecret string
	scope        string
	margin       time.Duration
	now          func() time.Time
	metrics      *observability.Metrics
	logger       zerolog.Logger

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

type TokenOption func(*TokenCache)

func WithScope(scope string) TokenOption {
	return func(c *TokenCache) { c.scope = scope }
}

func WithMargin(margin time.Duration) TokenOption {
	return func(c *TokenCache) { c.margin = margin }
}

func WithClock(now func() time.Time) TokenOption {
	return func(c *TokenCache) { c.now = now }
}

func WithTokenMetrics(m *observability.Metrics) TokenOption {
	return func(c *TokenCache) { c.metrics = m }
}

func WithTokenLogger(logger zerolog.Logger) TokenOption {
	return func(c *TokenCache) { c.logger = logger }
}

// NewTokenCache creates a cache that exchanges client credentials at tokenURL.
// client must carry the mutual-TLS identity.
func NewTokenCache(client *http.Client, tokenURL, clientID, clientSecret string, opts ...TokenOption) *TokenCache {
	c := &TokenCache{
		client:       client,
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		margin:       defaultTokenMargin,
		now:          time.Now,
		logger:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Token returns the cached token, renewing it when absent or within the
// safety margin of expiry.
func (c *TokenCache) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	token, expiresAt := c.token, c.expiresAt
	c.mu.Unlock()

	if token != "" && c.now().Add(c.margin).Before(expiresAt) {
		return token, nil
	}

	token, ttl, err := c.exchange(ctx)
	if err != nil {
		c.observe("failure")
		return "", err
	}
	c.observe("success")

	c.mu.Lock()
	c.token = token
	c.expiresAt = c.now().Add(ttl)
	c.mu.Unlock()

	c.logger.Debug().Dur("ttl", ttl).Msg("OAuth token renewed")
	return token, nil
}

// Invalidate drops the cached token so the next Token call renews it.
func (c *TokenCache) Invalidate() {
	c.mu.Lock()
	c.token = ""
	c.expiresAt = time.Time{}
	c.mu.Unlock()
}

type tokenResponse struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	ExpiresIn   json.Number `json:"expires_in"`
}

func (c *TokenCache) exchange(ctx context.Context) (string, time.Duration, error) {
	form := url.Values{"grant_type": {"client_credentials"}}
	if c.scope != "" {
		form.Set("scope", c.scope)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, domainErrors.NewProviderError("oauth", 0, "", fmt.Errorf("%w: %w", domainErrors.ErrAuthFailed, err))
	}
	req.SetBasicAuth(c.clientID, c.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", 0, domainErrors.NewProviderError("oauth", 0, "", fmt.Errorf("%w: %w", domainErrors.ErrAuthFailed, err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", 0, domainErrors.NewProviderError("oauth", 0, "", fmt.Errorf("%w: read body: %w", domainErrors.ErrAuthFailed, err))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", 0, domainErrors.NewProviderError("oauth", resp.StatusCode, truncate(body), domainErrors.ErrAuthFailed)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", 0, domainErrors.NewProviderError("oauth", 0, "", fmt.Errorf("%w: malformed token response: %w", domainErrors.ErrAuthFailed, err))
	}
	if tr.AccessToken == "" {
		return "", 0, domainErrors.NewProviderError("oauth", 0, "", fmt.Errorf("%w: token response has no access_token", domainErrors.ErrAuthFailed))
	}

	ttl := defaultTokenTTL
	if secs, err := tr.ExpiresIn.Int64(); err == nil && secs > 0 {
		ttl = time.Duration(secs) * time.Second
	}
	return tr.AccessToken, ttl, nil
}

func (c *TokenCache) observe(result string) {
	if c.metrics != nil {
		c.metrics.TokenRenewals.WithLabelValues(result).Inc()
	}
}

func truncate(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorBody {
		return s[:maxErrorBody] + "..."
	}
	return s
}
