package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/example/dshauth/platform"
)

type fakePlatform struct {
	t        *testing.T
	server   *httptest.Server
	restBody map[string]any
	form     map[string]string
}

func newFakePlatform(t *testing.T) *fakePlatform {
	f := &fakePlatform{t: t}
	r := mux.NewRouter()
	r.HandleFunc("/auth/v0/token", f.rest).Methods(http.MethodPost)
	r.HandleFunc("/datastreams/v0/mqtt/token", f.dataAccess).Methods(http.MethodPost)
	r.HandleFunc("/idp/token", f.idp).Methods(http.MethodPost)
	f.server = httptest.NewServer(r)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakePlatform) sign(claims jwt.MapClaims) string {
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(f.t, err)
	return raw
}

func (f *fakePlatform) rest(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("apikey") != "key-1" {
		http.Error(w, "unknown api key", http.StatusUnauthorized)
		return
	}
	f.restBody = map[string]any{}
	require.NoError(f.t, json.NewDecoder(r.Body).Decode(&f.restBody))
	claims, _ := f.restBody["claims"].(map[string]any)
	if claims == nil {
		claims = map[string]any{"datastreams/v0/mqtt/token": map[string]any{}}
	}
	_, _ = io.WriteString(w, f.sign(jwt.MapClaims{
		"gen":       1,
		"endpoint":  f.server.URL,
		"iss":       "String",
		"exp":       time.Now().Add(time.Hour).Unix(),
		"tenant-id": f.restBody["tenant"],
		"claims":    claims,
	}))
}

func (f *fakePlatform) dataAccess(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	require.NoError(f.t, json.NewDecoder(r.Body).Decode(&body))
	claims := body["claims"]
	if claims == nil {
		claims = []any{}
	}
	_, _ = io.WriteString(w, f.sign(jwt.MapClaims{
		"gen":       1,
		"endpoint":  "broker.example.com",
		"iss":       "String",
		"iat":       time.Now().Unix(),
		"exp":       time.Now().Add(time.Hour).Unix(),
		"tenant-id": body["tenant"],
		"client-id": body["id"],
		"ports":     map[string]any{"mqtts": []int{8883}, "mqttwss": []int{443}},
		"claims":    claims,
	}))
}

func (f *fakePlatform) idp(w http.ResponseWriter, r *http.Request) {
	require.NoError(f.t, r.ParseForm())
	f.form = map[string]string{
		"client_id":     r.PostForm.Get("client_id"),
		"client_secret": r.PostForm.Get("client_secret"),
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, `{"access_token":"abc","expires_in":600,"token_type":"Bearer","scope":"tenants"}`)
}

func (f *fakePlatform) platforms() platform.Registry {
	return platform.Registry{
		"test": {ID: "test", Realm: "test-dsh", ProtocolRestToken: f.server.URL + "/auth/v0/token", ManagementAPIToken: f.server.URL + "/idp/token"},
	}
}

func (f *fakePlatform) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd(Options{HTTPClient: f.server.Client(), Platforms: f.platforms()})
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--platform", "test"}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestRestTokenText(t *testing.T) {
	f := newFakePlatform(t)
	out, err := f.run(t, "rest-token", "--tenant", "tenant-a", "--api-key", "key-1")
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(strings.TrimSpace(out), "."), out)
	assert.Equal(t, map[string]any{"tenant": "tenant-a"}, f.restBody)
}

func TestRestTokenDelegated(t *testing.T) {
	f := newFakePlatform(t)
	out, err := f.run(t, "rest-token", "-o", "json", "--tenant", "tenant-a", "--api-key", "key-1",
		"--client-id", "device-1", "--relexp", "300", "--claim", "subscribe:weather:/tt:/weather/#")
	require.NoError(t, err)

	var res restTokenResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "device-1", res.ClientID)
	assert.Equal(t, "tenant-a", res.Tenant)
	assert.Equal(t, f.server.URL, res.Endpoint)

	claim := f.restBody["claims"].(map[string]any)["datastreams/v0/mqtt/token"].(map[string]any)
	assert.Equal(t, "device-1", claim["id"])
	assert.EqualValues(t, 300, claim["relexp"])
	assert.Len(t, claim["claims"], 1)
}

func TestRestTokenFromEnvironment(t *testing.T) {
	f := newFakePlatform(t)
	t.Setenv("DSH_TENANT", "tenant-env")
	t.Setenv("DSH_API_KEY", "key-1")
	_, err := f.run(t, "rest-token")
	require.NoError(t, err)
	assert.Equal(t, "tenant-env", f.restBody["tenant"])
}

func TestRestTokenErrors(t *testing.T) {
	f := newFakePlatform(t)
	_, err := f.run(t, "rest-token", "--tenant", "tenant-a")
	assert.ErrorContains(t, err, "DSH_API_KEY")

	_, err = f.run(t, "rest-token", "--tenant", "tenant-a", "--api-key", "wrong")
	assert.ErrorContains(t, err, "status code: 401")

	_, err = f.run(t, "rest-token", "--tenant", "tenant-a", "--api-key", "key-1", "--client-id", "client A")
	assert.ErrorContains(t, err, "invalid client_id")

	_, err = f.run(t, "rest-token", "--tenant", "tenant-a", "--api-key", "key-1", "--claim", "read:weather")
	assert.ErrorContains(t, err, "action:stream:prefix:topic")
}

func TestDataAccessTokenYAML(t *testing.T) {
	f := newFakePlatform(t)
	out, err := f.run(t, "data-access-token", "-o", "yaml", "--tenant", "tenant-a", "--api-key", "key-1",
		"--client-id", "device-1", "--claim", "publish:weather:/tt:roof")
	require.NoError(t, err)

	var res map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &res))
	assert.Equal(t, "device-1", res["client_id"])
	assert.Equal(t, 8883, res["port_mqtts"])
	assert.Equal(t, 443, res["port_mqttwss"])
	require.Len(t, res["claims"], 1)
	assert.Equal(t, "publish", res["claims"].([]any)[0].(map[string]any)["action"])
}

func TestDataAccessTokenRequiresClientID(t *testing.T) {
	f := newFakePlatform(t)
	_, err := f.run(t, "data-access-token", "--tenant", "tenant-a", "--api-key", "key-1")
	assert.ErrorContains(t, err, "--client-id")
}

func TestManagementToken(t *testing.T) {
	f := newFakePlatform(t)
	out, err := f.run(t, "management-token", "--tenant", "tenant-a", "--client-secret", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "Bearer abc\n", out)
	assert.Equal(t, "robot:test-dsh:tenant-a", f.form["client_id"])
	assert.Equal(t, "s3cret", f.form["client_secret"])

	_, err = f.run(t, "management-token", "--client-secret", "s3cret")
	assert.Error(t, err)
}

func TestDecode(t *testing.T) {
	f := newFakePlatform(t)
	raw, err := f.run(t, "data-access-token", "--tenant", "tenant-a", "--api-key", "key-1", "--client-id", "device-1")
	require.NoError(t, err)

	out, err := f.run(t, "decode", "-o", "json", strings.TrimSpace(raw))
	require.NoError(t, err)
	var d struct {
		Kind   string         `json:"kind"`
		Valid  bool           `json:"valid"`
		Claims map[string]any `json:"claims"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &d))
	assert.Equal(t, "data-access", d.Kind)
	assert.True(t, d.Valid)
	assert.Equal(t, "device-1", d.Claims["client-id"])

	rest, err := f.run(t, "rest-token", "--tenant", "tenant-a", "--api-key", "key-1")
	require.NoError(t, err)
	root := NewRootCmd(Options{Platforms: f.platforms()})
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetIn(strings.NewReader(rest))
	root.SetArgs([]string{"--platform", "test", "decode", "-o", "yaml"})
	require.NoError(t, root.Execute())
	assert.Contains(t, buf.String(), "kind: rest")

	_, err = f.run(t, "decode", "not-a-token")
	assert.ErrorContains(t, err, "malformed token")
}

func TestUnknownOutputAndPlatform(t *testing.T) {
	f := newFakePlatform(t)
	_, err := f.run(t, "decode", "-o", "xml", "a.b.c")
	assert.ErrorContains(t, err, "unknown output format")

	root := NewRootCmd(Options{})
	root.SetOut(io.Discard)
	root.SetArgs([]string{"--platform", "staging", "decode", "a.b.c"})
	assert.Error(t, root.Execute())
}
