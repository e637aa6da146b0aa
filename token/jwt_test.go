package token

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitCompactSegmentCount(t *testing.T) {
	for _, raw := range []string{"", "a", "a.b", "a.b.c.d", "....."} {
		_, err := splitCompact(raw)
		assert.ErrorIs(t, err, ErrMalformedToken, raw)
	}
	c, err := splitCompact("h.p.s")
	require.NoError(t, err)
	assert.Equal(t, compactToken{header: "h", payload: "p", signature: "s"}, c)
}

func TestDecodeStandardAlphabet(t *testing.T) {
	payload := `{"iss":"~~~","tenant-id":"t","exp":4102444800,"endpoint":"e","gen":1,"claims":{"datastreams/v0/mqtt/token":{}}}`
	encoded := base64.RawStdEncoding.EncodeToString([]byte(payload))
	require.True(t, strings.ContainsAny(encoded, "+/"))

	raw := "eyJhbGciOiJub25lIn0." + encoded + ".sig"
	tok, err := ParseRestToken(raw)
	require.NoError(t, err)
	assert.Equal(t, "~~~", tok.Iss)
	assert.Equal(t, raw, tok.RawToken())
}

func TestDecodeRejectsBadPayload(t *testing.T) {
	_, err := ParseRestToken("h.!!!.s")
	assert.ErrorIs(t, err, ErrMalformedToken)

	notJSON := base64.RawStdEncoding.EncodeToString([]byte("hello"))
	_, err = ParseRestToken("h." + notJSON + ".s")
	assert.ErrorIs(t, err, ErrMalformedToken)

	wrongShape := base64.RawStdEncoding.EncodeToString([]byte(`{"exp":"tomorrow"}`))
	_, err = ParseRestToken("h." + wrongShape + ".s")
	assert.ErrorIs(t, err, ErrMalformedToken)
}

func TestDecodeRequiresClaims(t *testing.T) {
	for _, payload := range []string{`{}`, `{"sub":"someone"}`, `[]`} {
		raw := "eyJhbGciOiJub25lIn0." + base64.RawURLEncoding.EncodeToString([]byte(payload)) + ".sig"
		rest, err := ParseRestToken(raw)
		assert.ErrorIs(t, err, ErrMalformedToken, payload)
		assert.Nil(t, rest)
		dat, err := ParseDataAccessToken(raw)
		assert.ErrorIs(t, err, ErrMalformedToken, payload)
		assert.Nil(t, dat)
	}

	// A REST token is not a data access token: it has no client-id, ports or iat.
	restOnly := mint(t, restClaims("tenant", "endpoint", time.Now().Add(time.Hour)))
	_, err := ParseRestToken(restOnly)
	require.NoError(t, err)
	_, err = ParseDataAccessToken(restOnly)
	assert.ErrorContains(t, err, "client-id")

	withoutTenant := dataAccessClaims("tenant", "client", time.Now().Add(time.Hour))
	delete(withoutTenant, "tenant-id")
	_, err = ParseDataAccessToken(mint(t, withoutTenant))
	assert.ErrorIs(t, err, ErrMalformedToken)
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "h.p", redact("h.p.signature"))
	assert.Equal(t, "h.p", redact("h.p"))
	assert.Equal(t, "", redact(""))
}
