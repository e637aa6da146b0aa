package token

import (
	"fmt"
	"time"
)

// validityMargin is how long a token must still be valid for to be handed
// out. Tokens closer to expiry than this are treated as expired.
const validityMargin = 5 * time.Second

var restTokenClaims = []string{"gen", "endpoint", "iss", "claims", "exp", "tenant-id"}

// RestToken is a short-lived tenant token obtained with an API key. It is
// exchanged for DataAccessTokens at its Endpoint.
type RestToken struct {
	Gen      int64  `json:"gen"`
	Endpoint string `json:"endpoint"`
	Iss      string `json:"iss"`
	Claims   Claims `json:"claims"`
	Exp      int64  `json:"exp"`
	TenantID string `json:"tenant-id"`

	raw string
}

// ParseRestToken decodes a compact REST token. The raw string is retained
// as is for RawToken.
func ParseRestToken(raw string) (*RestToken, error) {
	var t RestToken
	if err := decodeCompact(raw, &t, restTokenClaims...); err != nil {
		return nil, err
	}
	t.raw = raw
	return &t, nil
}

// RawToken returns the token exactly as received from the platform.
func (t *RestToken) RawToken() string { return t.raw }

// ClientID returns the client id the token is delegated to, if any.
func (t *RestToken) ClientID() (string, bool) {
	id := t.Claims.MqttTokenClaim.ID
	if id == nil {
		return "", false
	}
	return *id, true
}

// ExpiresAt returns Exp as a time.
func (t *RestToken) ExpiresAt() time.Time { return time.Unix(t.Exp, 0) }

// IsValid reports whether the token is usable for at least another five
// seconds.
func (t *RestToken) IsValid() bool { return t.isValidAt(time.Now()) }

func (t *RestToken) isValidAt(now time.Time) bool {
	return t != nil && t.raw != "" && t.Exp >= now.Add(validityMargin).Unix()
}

func (t *RestToken) String() string {
	return fmt.Sprintf("RestToken{gen: %d, endpoint: %s, iss: %s, exp: %d, tenant_id: %s, raw_token: %s}",
		t.Gen, t.Endpoint, t.Iss, t.Exp, t.TenantID, redact(t.raw))
}
