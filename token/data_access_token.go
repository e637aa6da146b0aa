package token

import (
	"fmt"
	"time"
)

const (
	defaultPortMQTT uint16 = 8883
	defaultPortWSS  uint16 = 443
)

var dataAccessTokenClaims = []string{"gen", "endpoint", "ports", "iss", "claims", "exp", "client-id", "iat", "tenant-id"}

// Ports lists the broker ports per protocol.
type Ports struct {
	MQTTS   []uint16 `json:"mqtts"`
	MQTTWSS []uint16 `json:"mqttwss"`
}

// DataAccessToken grants an external client the topic permissions in
// Claims on the broker at Endpoint.
type DataAccessToken struct {
	Gen      int32             `json:"gen"`
	Endpoint string            `json:"endpoint"`
	Ports    Ports             `json:"ports"`
	Iss      string            `json:"iss"`
	Claims   []TopicPermission `json:"claims"`
	Exp      int64             `json:"exp"`
	ClientID string            `json:"client-id"`
	Iat      int64             `json:"iat"`
	TenantID string            `json:"tenant-id"`

	raw string
}

// ParseDataAccessToken decodes a compact data access token. The raw string
// is retained as is for RawToken.
func ParseDataAccessToken(raw string) (*DataAccessToken, error) {
	var t DataAccessToken
	if err := decodeCompact(raw, &t, dataAccessTokenClaims...); err != nil {
		return nil, err
	}
	t.raw = raw
	return &t, nil
}

func (t *DataAccessToken) RawToken() string { return t.raw }

// EndpointWSS returns the websocket url of the broker.
func (t *DataAccessToken) EndpointWSS() string {
	return fmt.Sprintf("wss://%s/mqtt", t.Endpoint)
}

// PortMQTT returns the first mqtts port, or 8883.
func (t *DataAccessToken) PortMQTT() uint16 {
	if len(t.Ports.MQTTS) == 0 {
		return defaultPortMQTT
	}
	return t.Ports.MQTTS[0]
}

// PortWSS returns the first mqttwss port, or 443.
func (t *DataAccessToken) PortWSS() uint16 {
	if len(t.Ports.MQTTWSS) == 0 {
		return defaultPortWSS
	}
	return t.Ports.MQTTWSS[0]
}

func (t *DataAccessToken) ExpiresAt() time.Time { return time.Unix(t.Exp, 0) }

// IsValid reports whether the token is usable for at least another five
// seconds.
func (t *DataAccessToken) IsValid() bool { return t.isValidAt(time.Now()) }

func (t *DataAccessToken) isValidAt(now time.Time) bool {
	return t != nil && t.raw != "" && t.Exp >= now.Add(validityMargin).Unix()
}

func (t *DataAccessToken) String() string {
	return fmt.Sprintf("DataAccessToken{gen: %d, endpoint: %s, iss: %s, claims: %v, exp: %d, client_id: %s, iat: %d, tenant_id: %s, raw_token: %s}",
		t.Gen, t.Endpoint, t.Iss, t.Claims, t.Exp, t.ClientID, t.Iat, t.TenantID, redact(t.raw))
}
