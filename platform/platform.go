// Package platform describes the DSH deployments a token fetcher can talk to.
//
// The table is handed around as a value; nothing in this package is global
// mutable state. Use Default to get the built-in table and Lookup / Parse to
// pick an entry.
package platform

import (
	"fmt"
	"strings"
)

// ID identifies a DSH deployment.
type ID string

const (
	Prod   ID = "prod"
	ProdAz ID = "prod-az"
	ProdLz ID = "prod-lz"
	NpLz   ID = "np-lz"
	Poc    ID = "poc"
)

// Platform holds the realm and endpoints of one DSH deployment.
type Platform struct {
	ID    ID
	Realm string
	// RestAPI is the base URL of the tenant management REST API.
	RestAPI string
	// ManagementAPIToken is the OIDC client-credentials endpoint for the
	// management REST API.
	ManagementAPIToken string
	// ProtocolRestToken is where an API key is exchanged for a REST token.
	ProtocolRestToken string
	// ProtocolToken is the default data access token endpoint. Fetchers use
	// the endpoint carried by the REST token instead whenever they have one.
	ProtocolToken string
}

// ManagementAPIClientID returns the client id of the tenant's robot account
// on the management API.
func (p Platform) ManagementAPIClientID(tenant string) string {
	return fmt.Sprintf("robot:%s:%s", p.Realm, tenant)
}

func (p Platform) String() string { return string(p.ID) }

// Registry maps a platform ID to its endpoints.
type Registry map[ID]Platform

// Default returns a fresh copy of the built-in platform table.
func Default() Registry {
	return Registry{
		Prod: {
			ID:                 Prod,
			Realm:              "tt-dsh",
			RestAPI:            "https://api.kpn-dsh.com/resources/v0",
			ManagementAPIToken: "https://auth.prod.cp.kpn-dsh.com/auth/realms/tt-dsh/protocol/openid-connect/token",
			ProtocolRestToken:  "https://api.kpn-dsh.com/auth/v0/token",
			ProtocolToken:      "https://api.kpn-dsh.com/datastreams/v0/mqtt/token",
		},
		ProdAz: {
			ID:                 ProdAz,
			Realm:              "prod-azure-dsh",
			RestAPI:            "https://api.az.kpn-dsh.com/resources/v0",
			ManagementAPIToken: "https://auth.prod.cp.kpn-dsh.com/auth/realms/prod-azure-dsh/protocol/openid-connect/token",
			ProtocolRestToken:  "https://api.az.kpn-dsh.com/auth/v0/token",
			ProtocolToken:      "https://api.az.kpn-dsh.com/datastreams/v0/mqtt/token",
		},
		ProdLz: {
			ID:                 ProdLz,
			Realm:              "prod-lz-dsh",
			RestAPI:            "https://api.dsh-prod.dsh.prod.aws.kpn.com/resources/v0",
			ManagementAPIToken: "https://auth.prod.cp-prod.dsh.prod.aws.kpn.com/auth/realms/prod-lz-dsh/protocol/openid-connect/token",
			ProtocolRestToken:  "https://api.dsh-prod.dsh.prod.aws.kpn.com/auth/v0/token",
			ProtocolToken:      "https://api.dsh-prod.dsh.prod.aws.kpn.com/datastreams/v0/mqtt/token",
		},
		NpLz: {
			ID:                 NpLz,
			Realm:              "dev-lz-dsh",
			RestAPI:            "https://api.dsh-dev.dsh.np.aws.kpn.com/resources/v0",
			ManagementAPIToken: "https://auth.prod.cp-prod.dsh.prod.aws.kpn.com/auth/realms/dev-lz-dsh/protocol/openid-connect/token",
			ProtocolRestToken:  "https://api.dsh-dev.dsh.np.aws.kpn.com/auth/v0/token",
			ProtocolToken:      "https://api.dsh-dev.dsh.np.aws.kpn.com/datastreams/v0/mqtt/token",
		},
		Poc: {
			ID:                 Poc,
			Realm:              "poc-dsh",
			RestAPI:            "https://api.poc.kpn-dsh.com/resources/v0",
			ManagementAPIToken: "https://auth.prod.cp.kpn-dsh.com/auth/realms/poc-dsh/protocol/openid-connect/token",
			ProtocolRestToken:  "https://api.poc.kpn-dsh.com/auth/v0/token",
			ProtocolToken:      "https://api.poc.kpn-dsh.com/datastreams/v0/mqtt/token",
		},
	}
}

// Lookup returns the platform registered under id.
func (r Registry) Lookup(id ID) (Platform, error) {
	p, ok := r[id]
	if !ok {
		return Platform{}, fmt.Errorf("unknown platform %q", id)
	}
	return p, nil
}

// Parse resolves a user supplied platform name such as "NpLz", "np-lz" or
// "nplz".
func (r Registry) Parse(name string) (Platform, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.NewReplacer("_", "-").Replace(n)
	switch n {
	case "prodaz":
		n = string(ProdAz)
	case "prodlz":
		n = string(ProdLz)
	case "nplz":
		n = string(NpLz)
	}
	return r.Lookup(ID(n))
}

// IDs lists the registered platform ids in a stable order.
func (r Registry) IDs() []ID {
	out := make([]ID, 0, len(r))
	for _, id := range []ID{Prod, ProdAz, ProdLz, NpLz, Poc} {
		if _, ok := r[id]; ok {
			out = append(out, id)
		}
	}
	for id := range r {
		switch id {
		case Prod, ProdAz, ProdLz, NpLz, Poc:
			continue
		}
		out = append(out, id)
	}
	return out
}
