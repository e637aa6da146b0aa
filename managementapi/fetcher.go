// Package managementapi fetches and caches the bearer token of the DSH
// tenant management REST API.
package managementapi

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

	"github.com/go-logr/logr"

	"github.com/example/dshauth/platform"
)

const validityMargin = 5 * time.Second

// HTTPClient is satisfied by *http.Client.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// TokenFetcher holds one client-credentials token and refreshes it when it
// is about to expire. It is safe for concurrent use.
type TokenFetcher struct {
	clientID     string
	clientSecret string
	authURL      string
	client       HTTPClient
	log          logr.Logger
	now          func() time.Time

	mu        sync.RWMutex
	token     AccessToken
	fetchedAt time.Time
}

// NewTokenFetcher creates a fetcher for the given credentials and token
// endpoint. Use Builder to derive the endpoint and client id from a platform.
func NewTokenFetcher(clientID, clientSecret, authURL string, client HTTPClient) *TokenFetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &TokenFetcher{
		clientID:     clientID,
		clientSecret: clientSecret,
		authURL:      authURL,
		client:       client,
		log:          logr.Discard(),
		now:          time.Now,
	}
}

// ClientID returns the client id the fetcher authenticates as.
func (f *TokenFetcher) ClientID() string { return f.clientID }

// IsValid reports whether the cached token outlives the next five seconds.
func (f *TokenFetcher) IsValid() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.validAt(f.now())
}

func (f *TokenFetcher) validAt(now time.Time) bool {
	expiresAt := f.fetchedAt.Add(time.Duration(f.token.ExpiresIn) * time.Second)
	return expiresAt.After(now.Add(validityMargin))
}

// GetToken returns "{token_type} {access_token}", fetching a new token when
// the cached one is missing or about to expire.
func (f *TokenFetcher) GetToken(ctx context.Context) (string, error) {
	f.mu.RLock()
	if f.validAt(f.now()) {
		tok := f.token.FormattedToken()
		f.mu.RUnlock()
		return tok, nil
	}
	f.mu.RUnlock()

	f.log.V(1).Info("management api token expired, fetching new token", "client", f.clientID)
	fetchedAt := f.now()
	tok, err := f.FetchAccessToken(ctx)
	if err != nil {
		return "", err
	}

	f.mu.Lock()
	f.token = tok
	f.fetchedAt = fetchedAt
	f.mu.Unlock()
	return tok.FormattedToken(), nil
}

// FetchAccessToken always requests a new token and does not cache it.
func (f *TokenFetcher) FetchAccessToken(ctx context.Context) (AccessToken, error) {
	form := url.Values{}
	form.Set("client_id", f.clientID)
	form.Set("client_secret", f.clientSecret)
	form.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.authURL, strings.NewReader(form.Encode()))
	if err != nil {
		return AccessToken{}, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := f.client.Do(req)
	if err != nil {
		return AccessToken{}, fmt.Errorf("fetch management api token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		return AccessToken{}, &StatusCodeError{StatusCode: resp.StatusCode, ErrorBody: string(body)}
	}
	var tok AccessToken
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return AccessToken{}, fmt.Errorf("decode management api token: %w", err)
	}
	return tok, nil
}

func (f *TokenFetcher) String() string {
	return fmt.Sprintf("TokenFetcher{client_id: %s, client_secret: xxxxxx, auth_url: %s}", f.clientID, f.authURL)
}

// Builder assembles a TokenFetcher for a platform.
type Builder struct {
	platform     platform.Platform
	client       HTTPClient
	log          logr.Logger
	clientID     string
	clientSecret string
	tenantName   string
}

func NewBuilder(p platform.Platform) Builder {
	return Builder{platform: p, log: logr.Discard()}
}

func (b Builder) WithClientID(id string) Builder {
	b.clientID = id
	return b
}

func (b Builder) WithClientSecret(secret string) Builder {
	b.clientSecret = secret
	return b
}

// WithTenantName derives the client id from the platform realm unless an
// explicit client id is set.
func (b Builder) WithTenantName(tenant string) Builder {
	b.tenantName = tenant
	return b
}

func (b Builder) WithHTTPClient(c HTTPClient) Builder {
	b.client = c
	return b
}

func (b Builder) WithLogger(l logr.Logger) Builder {
	b.log = l
	return b
}

// Build validates the configuration. A client secret is required, as is
// either a client id or a tenant name.
func (b Builder) Build() (*TokenFetcher, error) {
	if b.clientSecret == "" {
		return nil, ErrUnknownClientSecret
	}
	clientID := b.clientID
	if clientID == "" && b.tenantName != "" {
		clientID = b.platform.ManagementAPIClientID(b.tenantName)
	}
	if clientID == "" {
		return nil, ErrUnknownClientID
	}
	f := NewTokenFetcher(clientID, b.clientSecret, b.platform.ManagementAPIToken, b.client)
	f.log = b.log
	return f, nil
}
