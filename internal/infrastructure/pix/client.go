package pix

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	domainErrors "github.com/cassiomorais/pixrelay/internal/domain/errors"
	"github.com/cassiomorais/pixrelay/internal/infrastructure/observability"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const breakerName = "pix-provider"

// FactoryConfig describes where the provider API lives and how calls to it
// are bounded.
type FactoryConfig struct {
	APIBase      string
	PixPath      string // e.g. /pix/v2
	FallbackPath string // alternate QR prefix on the same host; empty disables it
	Timeout      time.Duration
	Breaker      BreakerConfig
}

type BreakerConfig struct {
	MaxRequests  uint32
	Interval     time.Duration
	Timeout      time.Duration
	FailureRatio float64
	MinRequests  uint32
}

// NewTransport returns an HTTP transport presenting cert on every
// connection. roots nil means the system roots; server certificates are
// always verified.
func NewTransport(cert tls.Certificate, roots *x509.CertPool) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSClientConfig: &tls.Config{
			Certificates: []tls.Certificate{cert},
			RootCAs:      roots,
			MinVersion:   tls.VersionTLS12,
		},
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        20,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
}

// NewHTTPClient wraps an mTLS transport with tracing and a fixed deadline.
func NewHTTPClient(transport http.RoundTripper, timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: otelhttp.NewTransport(transport),
		Timeout:   timeout,
	}
}

// Factory builds provider clients that share one transport, one token cache
// and one circuit breaker.
type Factory struct {
	cfg       FactoryConfig
	transport http.RoundTripper
	tokens    TokenSource
	breaker   *gobreaker.CircuitBreaker[*response]
	metrics   *observability.Metrics
	logger    zerolog.Logger
}

func NewFactory(cfg FactoryConfig, transport http.RoundTripper, tokens TokenSource, metrics *observability.Metrics, logger zerolog.Logger) *Factory {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.PixPath == "" {
		cfg.PixPath = "/pix/v2"
	}
	cfg.APIBase = strings.TrimRight(cfg.APIBase, "/")

	f := &Factory{
		cfg:       cfg,
		transport: otelhttp.NewTransport(transport),
		tokens:    tokens,
		metrics:   metrics,
		logger:    logger,
	}
	f.breaker = gobreaker.NewCircuitBreaker[*response](f.breakerSettings())
	return f
}

func (f *Factory) breakerSettings() gobreaker.Settings {
	b := f.cfg.Breaker
	if b.MaxRequests == 0 {
		b.MaxRequests = 5
	}
	if b.Interval == 0 {
		b.Interval = 60 * time.Second
	}
	if b.Timeout == 0 {
		b.Timeout = 30 * time.Second
	}
	if b.FailureRatio == 0 {
		b.FailureRatio = 0.6
	}
	if b.MinRequests == 0 {
		b.MinRequests = 10
	}

	return gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: b.MaxRequests,
		Interval:    b.Interval,
		Timeout:     b.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= b.MinRequests && failureRatio >= b.FailureRatio
		},
		// The provider refusing a request says nothing about its health.
		IsSuccessful: func(err error) bool {
			var pe *domainErrors.ProviderError
			if errors.As(err, &pe) {
				return pe.StatusCode >= 400 && pe.StatusCode < 500
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			f.logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
			if f.metrics != nil {
				f.metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			}
		},
	}
}

// Build obtains a token and returns a client bound to <apiBase><pixPath>.
func (f *Factory) Build(ctx context.Context) (*Client, error) {
	return f.build(ctx, f.cfg.PixPath)
}

func (f *Factory) build(ctx context.Context, prefix string) (*Client, error) {
	token, err := f.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	return &Client{
		http: &http.Client{
			Transport: &bearerTransport{token: token, base: f.transport},
			Timeout:   f.cfg.Timeout,
		},
		baseURL: f.cfg.APIBase + prefix,
		factory: f,
	}, nil
}

// bearerTransport attaches the access token to every request.
type bearerTransport struct {
	token string
	base  http.RoundTripper
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.Header.Set("Authorization", "Bearer "+t.token)
	return t.base.RoundTrip(r)
}
