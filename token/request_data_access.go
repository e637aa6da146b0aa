package token

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
)

const maxClientIDLength = 64

// RequestDataAccessToken asks for a data access token bound to one external
// client id.
type RequestDataAccessToken struct {
	Tenant string            `json:"tenant"`
	ID     string            `json:"id"`
	Exp    *int64            `json:"exp,omitempty"`
	Claims []TopicPermission `json:"claims,omitempty"`
	// Dshclc is passed through to the platform untouched.
	Dshclc any `json:"dshclc,omitempty"`
}

func NewRequestDataAccessToken(tenant, clientID string) RequestDataAccessToken {
	return RequestDataAccessToken{Tenant: tenant, ID: clientID}
}

// WithExp sets the requested absolute expiry in unix seconds.
func (r RequestDataAccessToken) WithExp(exp int64) RequestDataAccessToken {
	r.Exp = &exp
	return r
}

// WithClaims replaces the requested permissions.
func (r RequestDataAccessToken) WithClaims(claims ...TopicPermission) RequestDataAccessToken {
	r.Claims = slices.Clone(claims)
	return r
}

// WithExtendedClaims appends to the requested permissions.
func (r RequestDataAccessToken) WithExtendedClaims(claims ...TopicPermission) RequestDataAccessToken {
	r.Claims = append(slices.Clone(r.Claims), claims...)
	return r
}

func (r RequestDataAccessToken) WithDshclc(dshclc any) RequestDataAccessToken {
	r.Dshclc = dshclc
	return r
}

// Equal compares two requests ignoring the requested expiry.
func (r RequestDataAccessToken) Equal(other RequestDataAccessToken) bool {
	return r.cacheKey() == other.cacheKey()
}

func (r RequestDataAccessToken) cacheKey() string {
	projected := r
	projected.Exp = nil
	b, err := json.Marshal(projected)
	if err != nil {
		// Dshclc did not encode, fall back to the remaining fields.
		projected.Dshclc = nil
		b, _ = json.Marshal(projected)
	}
	return string(b)
}

// Send exchanges rest for a data access token at the endpoint the REST token
// names. The client id is validated before anything is sent.
func (r RequestDataAccessToken) Send(ctx context.Context, client HTTPClient, rest *RestToken) (*DataAccessToken, error) {
	if err := ValidateClientID(r.ID); err != nil {
		return nil, err
	}
	url := ensureHTTPSPrefix(rest.Endpoint + "/datastreams/v0/mqtt/token")
	header := http.Header{}
	header.Set("Authorization", "Bearer "+rest.RawToken())
	body, err := post(ctx, client, url, header, r)
	if err != nil {
		return nil, err
	}
	return ParseDataAccessToken(body)
}

// ValidateClientID checks that id is at most 64 bytes of ASCII letters,
// digits and the characters @ - _ . :
func ValidateClientID(id string) error {
	if len(id) > maxClientIDLength {
		return &InvalidClientIDError{ClientID: id, Reason: "longer than 64 characters"}
	}
	for _, c := range []byte(id) {
		if !isClientIDChar(c) {
			return &InvalidClientIDError{ClientID: id, Reason: "contains characters other than alphanumerics and @-_.:"}
		}
	}
	return nil
}

func isClientIDChar(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	switch c {
	case '@', '-', '_', '.', ':':
		return true
	}
	return false
}
