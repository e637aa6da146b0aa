package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-logr/logr"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/example/dshauth/internal/store"
	"github.com/example/dshauth/token"
)

const (
	testTenant   = "test_tenant"
	testAdminKey = "admin-secret"
)

type mockTokens struct {
	mock.Mock
}

func (m *mockTokens) GetOrFetchRestToken(ctx context.Context, req token.RequestRestToken) (*token.RestToken, error) {
	args := m.Called(ctx, req)
	tok, _ := args.Get(0).(*token.RestToken)
	return tok, args.Error(1)
}

func (m *mockTokens) GetOrFetchDataAccessToken(ctx context.Context, req token.RequestDataAccessToken) (*token.DataAccessToken, error) {
	args := m.Called(ctx, req)
	tok, _ := args.Get(0).(*token.DataAccessToken)
	return tok, args.Error(1)
}

func (m *mockTokens) ClearCache() {
	m.Called()
}

func sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("platform-secret"))
	require.NoError(t, err)
	return raw
}

func restToken(t *testing.T) *token.RestToken {
	t.Helper()
	tok, err := token.ParseRestToken(sign(t, jwt.MapClaims{
		"gen":       1,
		"endpoint":  "https://api.example.com",
		"iss":       "String",
		"exp":       time.Now().Add(time.Hour).Unix(),
		"tenant-id": testTenant,
		"claims": map[string]any{
			"datastreams/v0/mqtt/token": map[string]any{"id": "device-1", "tenant": testTenant},
		},
	}))
	require.NoError(t, err)
	return tok
}

func dataAccessToken(t *testing.T, clientID string) *token.DataAccessToken {
	t.Helper()
	tok, err := token.ParseDataAccessToken(sign(t, jwt.MapClaims{
		"gen":       1,
		"endpoint":  "broker.example.com",
		"iss":       "String",
		"iat":       time.Now().Unix(),
		"exp":       time.Now().Add(time.Hour).Unix(),
		"tenant-id": testTenant,
		"client-id": clientID,
		"ports":     map[string]any{"mqtts": []int{8883}, "mqttwss": []int{443}},
		"claims":    []map[string]any{},
	}))
	require.NoError(t, err)
	return tok
}

type testApp struct {
	*App
	tokens  *mockTokens
	handler http.Handler
}

// newTestApp builds an app on a memory registry. Retries are immediate and
// capped at two.
func newTestApp(t *testing.T, tokens TokenSource) *testApp {
	t.Helper()
	db := store.NewMemoryDB()
	require.NoError(t, db.Init())
	a := New(Options{
		DB:               db,
		Tokens:           tokens,
		Tenant:           testTenant,
		AdminAPIKey:      testAdminKey,
		DefaultRateLimit: 60,
		Log:              logr.Discard(),
	})
	a.newBackOff = func() backoff.BackOff {
		return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 2)
	}
	ta := &testApp{App: a, handler: a.Router()}
	ta.tokens, _ = tokens.(*mockTokens)
	return ta
}

// registerDevice stores a device directly and returns its API key.
func (ta *testApp) registerDevice(t *testing.T, clientID string, limit int, perms ...token.TopicPermission) string {
	t.Helper()
	key, err := store.GenerateAPIKey()
	require.NoError(t, err)
	hash, err := store.HashAPIKey(key)
	require.NoError(t, err)
	_, err = ta.DB.CreateDevice(store.NewDevice{
		ClientID:           clientID,
		APIKeyHash:         hash,
		APIKeyPrefix:       store.APIKeyPrefix(key),
		RateLimitPerMinute: limit,
		Permissions:        perms,
	})
	require.NoError(t, err)
	return key
}

func (ta *testApp) do(t *testing.T, method, path string, header map[string]string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	ta.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}
