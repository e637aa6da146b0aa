package token

import (
	"context"
	"encoding/json"
	"net/http"
)

// RequestRestToken asks for a REST token for a tenant, optionally
// sub-delegated to a single external client.
type RequestRestToken struct {
	Tenant string  `json:"tenant"`
	Exp    *int64  `json:"exp,omitempty"`
	Claims *Claims `json:"claims,omitempty"`
}

func NewRequestRestToken(tenant string) RequestRestToken {
	return RequestRestToken{Tenant: tenant}
}

// WithExp sets the requested absolute expiry in unix seconds.
func (r RequestRestToken) WithExp(exp int64) RequestRestToken {
	r.Exp = &exp
	return r
}

func (r RequestRestToken) WithClaims(claim DatastreamsMqttTokenClaim) RequestRestToken {
	c := claim.ToClaims()
	r.Claims = &c
	return r
}

// ClientID returns the client id of the sub-delegation claim, if any.
func (r RequestRestToken) ClientID() (string, bool) {
	if r.Claims == nil || r.Claims.MqttTokenClaim.ID == nil {
		return "", false
	}
	return *r.Claims.MqttTokenClaim.ID, true
}

// Equal compares two requests ignoring every requested lifetime.
func (r RequestRestToken) Equal(other RequestRestToken) bool {
	return r.cacheKey() == other.cacheKey()
}

// cacheKey projects the request onto the fields that decide which token the
// platform hands out.
func (r RequestRestToken) cacheKey() string {
	projected := struct {
		Tenant string                     `json:"tenant"`
		Claim  *DatastreamsMqttTokenClaim `json:"claim,omitempty"`
	}{Tenant: r.Tenant}
	if r.Claims != nil {
		c := r.Claims.MqttTokenClaim.withoutLifetime()
		projected.Claim = &c
	}
	b, _ := json.Marshal(projected)
	return string(b)
}

// Send exchanges apiKey for a REST token at authURL.
func (r RequestRestToken) Send(ctx context.Context, client HTTPClient, apiKey, authURL string) (*RestToken, error) {
	header := http.Header{}
	header.Set("apikey", apiKey)
	body, err := post(ctx, client, authURL, header, r)
	if err != nil {
		return nil, err
	}
	return ParseRestToken(body)
}
