package token

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	"github.com/example/dshauth/platform"
)

const testAPIKey = "test_token"

func mint(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("platform-secret"))
	require.NoError(t, err)
	return raw
}

func restClaims(tenant, endpoint string, exp time.Time) jwt.MapClaims {
	return jwt.MapClaims{
		"gen":       1,
		"endpoint":  endpoint,
		"iss":       "String",
		"exp":       exp.Unix(),
		"tenant-id": tenant,
		"claims": map[string]any{
			"datastreams/v0/mqtt/token": map[string]any{},
		},
	}
}

func dataAccessClaims(tenant, clientID string, exp time.Time) jwt.MapClaims {
	return jwt.MapClaims{
		"gen":       1,
		"endpoint":  "broker.example.com",
		"iss":       "String",
		"iat":       time.Now().Unix(),
		"exp":       exp.Unix(),
		"tenant-id": tenant,
		"client-id": clientID,
		"ports": map[string]any{
			"mqtts":   []int{8883},
			"mqttwss": []int{443, 8443},
		},
		"claims": []map[string]any{{
			"action": "subscribe",
			"resource": map[string]any{
				"type":   "topic",
				"prefix": "/tt",
				"stream": "weather",
				"topic":  "/weather/#",
			},
		}},
	}
}

// mockPlatform serves the REST token and data access token endpoints and
// counts the calls made to each.
type mockPlatform struct {
	t      *testing.T
	server *httptest.Server

	restCalls       atomic.Int32
	dataAccessCalls atomic.Int32

	mu         sync.Mutex
	restExp    time.Time
	dataExp    time.Time
	restStatus int
	lastBody   map[string]any
}

func newMockPlatform(t *testing.T) *mockPlatform {
	m := &mockPlatform{
		t:          t,
		restExp:    time.Now().Add(time.Hour),
		dataExp:    time.Now().Add(time.Hour),
		restStatus: http.StatusOK,
	}
	r := mux.NewRouter()
	r.HandleFunc("/auth/v0/token", m.handleRest).Methods(http.MethodPost)
	r.HandleFunc("/datastreams/v0/mqtt/token", m.handleDataAccess).Methods(http.MethodPost)
	m.server = httptest.NewServer(r)
	t.Cleanup(m.server.Close)
	return m
}

func (m *mockPlatform) authURL() string { return m.server.URL + "/auth/v0/token" }

func (m *mockPlatform) platform() platform.Platform {
	return platform.Platform{ID: "test", Realm: "test-dsh", ProtocolRestToken: m.authURL()}
}

func (m *mockPlatform) fetcher(opts ...Option) *APIClientTokenFetcher {
	return NewAPIClientTokenFetcher(testAPIKey, m.platform(), opts...)
}

func (m *mockPlatform) setExpiry(rest, data time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.restExp, m.dataExp = rest, data
}

func (m *mockPlatform) setRestStatus(code int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.restStatus = code
}

func (m *mockPlatform) body() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastBody
}

func (m *mockPlatform) record(r *http.Request) {
	b, _ := io.ReadAll(r.Body)
	var body map[string]any
	_ = json.Unmarshal(b, &body)
	m.mu.Lock()
	m.lastBody = body
	m.mu.Unlock()
}

func (m *mockPlatform) handleRest(w http.ResponseWriter, r *http.Request) {
	m.restCalls.Add(1)
	m.record(r)
	if r.Header.Get("apikey") != testAPIKey {
		http.Error(w, "unknown api key", http.StatusUnauthorized)
		return
	}
	m.mu.Lock()
	status, exp := m.restStatus, m.restExp
	m.mu.Unlock()
	if status != http.StatusOK {
		http.Error(w, "platform unavailable", status)
		return
	}
	tenant, _ := m.body()["tenant"].(string)
	_, _ = io.WriteString(w, mint(m.t, restClaims(tenant, m.server.URL, exp)))
}

func (m *mockPlatform) handleDataAccess(w http.ResponseWriter, r *http.Request) {
	m.dataAccessCalls.Add(1)
	m.record(r)
	m.mu.Lock()
	exp := m.dataExp
	m.mu.Unlock()
	bearer, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || strings.Count(bearer, ".") != 2 {
		http.Error(w, "invalid rest token", http.StatusUnauthorized)
		return
	}
	body := m.body()
	tenant, _ := body["tenant"].(string)
	id, _ := body["id"].(string)
	_, _ = io.WriteString(w, mint(m.t, dataAccessClaims(tenant, id, exp)))
}
