package token

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-logr/logr"

	"github.com/example/dshauth/platform"
)

const defaultHTTPTimeout = 30 * time.Second

// APIClientTokenFetcher hands out REST and data access tokens for one API
// key, reusing cached tokens until they are about to expire.
//
// It is safe for concurrent use. Concurrent misses for the same request may
// each reach the platform; the last successful answer stays cached.
type APIClientTokenFetcher struct {
	apiKey  string
	authURL string
	client  HTTPClient
	log     logr.Logger
	metrics *Metrics
	now     func() time.Time

	restTokens       *tokenCache[*RestToken]
	dataAccessTokens *tokenCache[*DataAccessToken]
}

// Option configures an APIClientTokenFetcher.
type Option func(*APIClientTokenFetcher)

// WithHTTPClient replaces the default *http.Client.
func WithHTTPClient(c HTTPClient) Option {
	return func(f *APIClientTokenFetcher) { f.client = c }
}

func WithLogger(l logr.Logger) Option {
	return func(f *APIClientTokenFetcher) { f.log = l }
}

func WithMetrics(m *Metrics) Option {
	return func(f *APIClientTokenFetcher) { f.metrics = m }
}

// WithAuthURL overrides the REST token endpoint of the platform.
func WithAuthURL(url string) Option {
	return func(f *APIClientTokenFetcher) { f.authURL = url }
}

func withClock(now func() time.Time) Option {
	return func(f *APIClientTokenFetcher) { f.now = now }
}

// NewAPIClientTokenFetcher creates a fetcher that requests REST tokens from
// p with apiKey.
func NewAPIClientTokenFetcher(apiKey string, p platform.Platform, opts ...Option) *APIClientTokenFetcher {
	f := &APIClientTokenFetcher{
		apiKey:           apiKey,
		authURL:          p.ProtocolRestToken,
		client:           &http.Client{Timeout: defaultHTTPTimeout},
		log:              logr.Discard(),
		now:              time.Now,
		restTokens:       newTokenCache[*RestToken](),
		dataAccessTokens: newTokenCache[*DataAccessToken](),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// GetOrFetchRestToken returns a cached REST token for an equal request, or
// fetches and caches a new one. Requests differing only in requested
// lifetime share a cache entry.
func (f *APIClientTokenFetcher) GetOrFetchRestToken(ctx context.Context, req RequestRestToken) (*RestToken, error) {
	key := req.cacheKey()
	if t, ok := f.restTokens.valid(key, f.now()); ok {
		f.metrics.lookup(KindRest, true)
		f.log.V(1).Info("rest token cache hit", "tenant", t.TenantID, "token", t.String())
		return t, nil
	}
	f.metrics.lookup(KindRest, false)

	t, err := f.FetchRestToken(ctx, req)
	if err != nil {
		return nil, err
	}
	f.restTokens.put(key, t)
	return t, nil
}

// FetchRestToken always asks the platform and leaves the cache alone.
func (f *APIClientTokenFetcher) FetchRestToken(ctx context.Context, req RequestRestToken) (*RestToken, error) {
	start := time.Now()
	t, err := req.Send(ctx, f.client, f.apiKey, f.authURL)
	f.metrics.fetched(KindRest, time.Since(start).Seconds(), err)
	if err != nil {
		return nil, fmt.Errorf("fetch rest token for tenant %s: %w", req.Tenant, err)
	}
	clientID, _ := req.ClientID()
	f.log.V(1).Info("fetched rest token", "tenant", req.Tenant, "client", clientID, "token", t.String())
	return t, nil
}

// GetOrFetchDataAccessToken returns a cached data access token for an equal
// request, or fetches one with a (possibly cached) tenant REST token.
func (f *APIClientTokenFetcher) GetOrFetchDataAccessToken(ctx context.Context, req RequestDataAccessToken) (*DataAccessToken, error) {
	key := req.cacheKey()
	if t, ok := f.dataAccessTokens.valid(key, f.now()); ok {
		f.metrics.lookup(KindDataAccess, true)
		f.log.V(1).Info("data access token cache hit", "client", t.ClientID, "token", t.String())
		return t, nil
	}
	f.metrics.lookup(KindDataAccess, false)

	t, err := f.FetchDataAccessToken(ctx, req)
	if err != nil {
		return nil, err
	}
	f.dataAccessTokens.put(key, t)
	return t, nil
}

// FetchDataAccessToken always requests a new data access token. The tenant
// REST token it needs is still taken from the cache when valid.
func (f *APIClientTokenFetcher) FetchDataAccessToken(ctx context.Context, req RequestDataAccessToken) (*DataAccessToken, error) {
	if err := ValidateClientID(req.ID); err != nil {
		return nil, err
	}
	rest, err := f.GetOrFetchRestToken(ctx, NewRequestRestToken(req.Tenant))
	if err != nil {
		return nil, err
	}

	start := time.Now()
	t, err := req.Send(ctx, f.client, rest)
	f.metrics.fetched(KindDataAccess, time.Since(start).Seconds(), err)
	if err != nil {
		return nil, fmt.Errorf("fetch data access token for client %s: %w", req.ID, err)
	}
	f.log.V(1).Info("fetched data access token", "tenant", req.Tenant, "client", req.ID, "token", t.String())
	return t, nil
}

func (f *APIClientTokenFetcher) ClearRestTokenCache() { f.restTokens.clear() }

func (f *APIClientTokenFetcher) ClearDataAccessTokenCache() { f.dataAccessTokens.clear() }

// ClearCache drops every cached token.
func (f *APIClientTokenFetcher) ClearCache() {
	f.ClearRestTokenCache()
	f.ClearDataAccessTokenCache()
}

// CachedTokens returns the number of cached REST and data access tokens.
func (f *APIClientTokenFetcher) CachedTokens() (rest, dataAccess int) {
	return f.restTokens.len(), f.dataAccessTokens.len()
}

func (f *APIClientTokenFetcher) String() string {
	return fmt.Sprintf("APIClientTokenFetcher{api_key: xxxxxx, auth_url: %s}", f.authURL)
}
