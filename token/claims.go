package token

import "slices"

// Claims is the delegation part of a REST token request and of the REST
// token echoing it back.
type Claims struct {
	MqttTokenClaim DatastreamsMqttTokenClaim `json:"datastreams/v0/mqtt/token"`
}

// DatastreamsMqttTokenClaim restricts what a delegated REST token may be
// exchanged for. The zero value requests full access.
type DatastreamsMqttTokenClaim struct {
	// ID is the external client id the data access token will be bound to.
	ID *string `json:"id,omitempty"`
	// Tenant is the tenant name.
	Tenant *string `json:"tenant,omitempty"`
	// RelExp caps the lifetime of the data access token, in seconds from
	// issuance.
	RelExp *int32 `json:"relexp,omitempty"`
	// Exp is the requested absolute expiry, seconds since the unix epoch.
	Exp *int32 `json:"exp,omitempty"`
	// Claims limits the topic permissions of the data access token.
	Claims []TopicPermission `json:"claims,omitempty"`
}

func NewDatastreamsMqttTokenClaim() DatastreamsMqttTokenClaim {
	return DatastreamsMqttTokenClaim{}
}

func (c DatastreamsMqttTokenClaim) WithID(id string) DatastreamsMqttTokenClaim {
	c.ID = &id
	return c
}

func (c DatastreamsMqttTokenClaim) WithTenant(tenant string) DatastreamsMqttTokenClaim {
	c.Tenant = &tenant
	return c
}

func (c DatastreamsMqttTokenClaim) WithRelExp(relexp int32) DatastreamsMqttTokenClaim {
	c.RelExp = &relexp
	return c
}

func (c DatastreamsMqttTokenClaim) WithExp(exp int32) DatastreamsMqttTokenClaim {
	c.Exp = &exp
	return c
}

func (c DatastreamsMqttTokenClaim) WithClaims(claims ...TopicPermission) DatastreamsMqttTokenClaim {
	c.Claims = slices.Clone(claims)
	return c
}

// IDOrEmpty returns the client id, or "" when none is set.
func (c DatastreamsMqttTokenClaim) IDOrEmpty() string {
	if c.ID == nil {
		return ""
	}
	return *c.ID
}

// Claims wraps the mqtt token claim in the request envelope.
func (c DatastreamsMqttTokenClaim) ToClaims() Claims {
	return Claims{MqttTokenClaim: c}
}

// withoutLifetime drops the requested expiry hints. Two claims that differ
// only in lifetime delegate the same permissions.
func (c DatastreamsMqttTokenClaim) withoutLifetime() DatastreamsMqttTokenClaim {
	c.RelExp = nil
	c.Exp = nil
	return c
}
