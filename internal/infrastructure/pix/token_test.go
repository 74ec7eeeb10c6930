package pix

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	domainErrors "github.com/cassiomorais/pixrelay/internal/domain/errors"
	"github.com/cassiomorais/pixrelay/internal/infrastructure/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type oauthServer struct {
	*httptest.Server
	calls     atomic.Int32
	expiresIn atomic.Value // raw JSON value, empty omits the field
	status    atomic.Int32
	lastForm  atomic.Value
}

func newOAuthServer(t *testing.T) *oauthServer {
	t.Helper()
	s := &oauthServer{}
	s.expiresIn.Store("3600")
	s.status.Store(http.StatusOK)
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := s.calls.Add(1)

		user, pass, ok := r.BasicAuth()
		if !ok || user != "client-id" || pass != "client-secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = r.ParseForm()
		s.lastForm.Store(r.PostForm)

		if status := int(s.status.Load()); status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":"invalid_client"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		expiresIn := s.expiresIn.Load().(string)
		if expiresIn == "" {
			fmt.Fprintf(w, `{"access_token":"tok-%d","token_type":"Bearer"}`, n)
			return
		}
		fmt.Fprintf(w, `{"access_token":"tok-%d","token_type":"Bearer","expires_in":%s}`, n, expiresIn)
	}))
	t.Cleanup(s.Close)
	return s
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestCache(srv *oauthServer, clock *fakeClock, opts ...TokenOption) *TokenCache {
	opts = append([]TokenOption{WithClock(clock.Now)}, opts...)
	return NewTokenCache(srv.Client(), srv.URL+"/oauth/token", "client-id", "client-secret", opts...)
}

func TestTokenCache_FetchesOnceAndReuses(t *testing.T) {
	srv := newOAuthServer(t)
	cache := newTestCache(srv, newFakeClock())

	first, err := cache.Token(context.Background())
	require.NoError(t, err)
	second, err := cache.Token(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "tok-1", first)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), srv.calls.Load())
}

func TestTokenCache_RenewsWithinMargin(t *testing.T) {
	srv := newOAuthServer(t)
	srv.expiresIn.Store("60")
	clock := newFakeClock()
	cache := newTestCache(srv, clock)

	_, err := cache.Token(context.Background())
	require.NoError(t, err)

	clock.Advance(54 * time.Second)
	tok, err := cache.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok, "6s before expiry is outside the margin")
	assert.Equal(t, int32(1), srv.calls.Load())

	clock.Advance(2 * time.Second)
	tok, err = cache.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-2", tok, "4s before expiry is inside the margin")
	assert.Equal(t, int32(2), srv.calls.Load())
}

func TestTokenCache_DefaultsExpiry(t *testing.T) {
	srv := newOAuthServer(t)
	srv.expiresIn.Store("")
	clock := newFakeClock()
	cache := newTestCache(srv, clock)

	_, err := cache.Token(context.Background())
	require.NoError(t, err)

	clock.Advance(294 * time.Second)
	_, err = cache.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), srv.calls.Load())

	clock.Advance(2 * time.Second)
	_, err = cache.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), srv.calls.Load())
}

func TestTokenCache_AcceptsStringExpiry(t *testing.T) {
	srv := newOAuthServer(t)
	srv.expiresIn.Store(`"120"`)
	clock := newFakeClock()
	cache := newTestCache(srv, clock)

	_, err := cache.Token(context.Background())
	require.NoError(t, err)

	clock.Advance(100 * time.Second)
	_, err = cache.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), srv.calls.Load())
}

func TestTokenCache_SendsClientCredentialsGrant(t *testing.T) {
	srv := newOAuthServer(t)
	cache := newTestCache(srv, newFakeClock(), WithScope("cob.write cob.read"))

	_, err := cache.Token(context.Background())
	require.NoError(t, err)

	form := srv.lastForm.Load().(url.Values)
	assert.Equal(t, []string{"client_credentials"}, form["grant_type"])
	assert.Equal(t, []string{"cob.write cob.read"}, form["scope"])
}

func TestTokenCache_ExchangeRejected(t *testing.T) {
	srv := newOAuthServer(t)
	srv.status.Store(http.StatusUnauthorized)
	cache := newTestCache(srv, newFakeClock())

	_, err := cache.Token(context.Background())
	require.Error(t, err)

	assert.ErrorIs(t, err, domainErrors.ErrAuthFailed)
	var pe *domainErrors.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, http.StatusUnauthorized, pe.StatusCode)
	assert.Contains(t, pe.Body, "invalid_client")
}

func TestTokenCache_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()
	cache := NewTokenCache(srv.Client(), srv.URL, "id", "secret")

	_, err := cache.Token(context.Background())
	assert.ErrorIs(t, err, domainErrors.ErrAuthFailed)
}

func TestTokenCache_MissingAccessToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"expires_in":3600}`))
	}))
	defer srv.Close()
	cache := NewTokenCache(srv.Client(), srv.URL, "id", "secret")

	_, err := cache.Token(context.Background())
	assert.ErrorIs(t, err, domainErrors.ErrAuthFailed)
}

func TestTokenCache_NetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()
	cache := NewTokenCache(&http.Client{Timeout: time.Second}, addr, "id", "secret")

	_, err := cache.Token(context.Background())
	assert.ErrorIs(t, err, domainErrors.ErrAuthFailed)
}

func TestTokenCache_FailureIsNotCached(t *testing.T) {
	srv := newOAuthServer(t)
	srv.status.Store(http.StatusInternalServerError)
	cache := newTestCache(srv, newFakeClock())

	_, err := cache.Token(context.Background())
	require.Error(t, err)

	srv.status.Store(http.StatusOK)
	tok, err := cache.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-2", tok)
}

func TestTokenCache_Invalidate(t *testing.T) {
	srv := newOAuthServer(t)
	cache := newTestCache(srv, newFakeClock())

	_, err := cache.Token(context.Background())
	require.NoError(t, err)
	cache.Invalidate()
	tok, err := cache.Token(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "tok-2", tok)
	assert.Equal(t, int32(2), srv.calls.Load())
}

func TestTokenCache_ConcurrentCallers(t *testing.T) {
	srv := newOAuthServer(t)
	cache := newTestCache(srv, newFakeClock())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok, err := cache.Token(context.Background())
			assert.NoError(t, err)
			assert.NotEmpty(t, tok)
		}()
	}
	wg.Wait()

	// Redundant renewals are allowed, but once warm the cache serves alone.
	before := srv.calls.Load()
	_, err := cache.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, before, srv.calls.Load())
}

func TestTokenCache_RecordsRenewals(t *testing.T) {
	srv := newOAuthServer(t)
	m := observability.NewMetrics("test", prometheus.NewRegistry())
	cache := newTestCache(srv, newFakeClock(), WithTokenMetrics(m))

	_, err := cache.Token(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.TokenRenewals.WithLabelValues("success")))
}
