package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/dshauth/token"
)

type restTokenResult struct {
	Token    string    `json:"token"`
	Tenant   string    `json:"tenant"`
	ClientID string    `json:"client_id,omitempty"`
	Endpoint string    `json:"endpoint"`
	Expires  time.Time `json:"expires"`
}

func (r restTokenResult) Text() string { return r.Token }

type dataAccessTokenResult struct {
	Token    string                  `json:"token"`
	ClientID string                  `json:"client_id"`
	Endpoint string                  `json:"endpoint"`
	PortMQTT uint16                  `json:"port_mqtts"`
	PortWSS  uint16                  `json:"port_mqttwss"`
	Claims   []token.TopicPermission `json:"claims"`
	Expires  time.Time               `json:"expires"`
}

func (r dataAccessTokenResult) Text() string { return r.Token }

// parseClaim reads "action:stream:prefix:topic", e.g.
// "subscribe:weather:/tt:/weather/#".
func parseClaim(s string) (token.TopicPermission, error) {
	parts := strings.SplitN(s, ":", 4)
	if len(parts) != 4 {
		return token.TopicPermission{}, fmt.Errorf("claim %q: expected action:stream:prefix:topic", s)
	}
	action, err := token.ParseAction(parts[0])
	if err != nil {
		return token.TopicPermission{}, fmt.Errorf("claim %q: %w", s, err)
	}
	return token.NewTopicPermission(action, parts[1], parts[2], parts[3]), nil
}

func parseClaims(raw []string) ([]token.TopicPermission, error) {
	claims := make([]token.TopicPermission, 0, len(raw))
	for _, s := range raw {
		c, err := parseClaim(s)
		if err != nil {
			return nil, err
		}
		claims = append(claims, c)
	}
	return claims, nil
}

func addTenantFlags(cmd *cobra.Command) {
	cmd.Flags().String("api-key", "", "tenant API key")
	cmd.Flags().String("auth-url", "", "override the REST token endpoint of the platform")
	cmd.Flags().Int64("exp", 0, "requested absolute expiry in unix seconds")
}

func newRestTokenCmd(rt *runtime) *cobra.Command {
	var claimFlags []string
	var relexp int32
	cmd := &cobra.Command{
		Use:   "rest-token",
		Short: "Exchange the tenant API key for a REST token",
		Long: `Requests a REST token. With --client-id the token is delegated: it can only
be exchanged for data access tokens bound to that client id, optionally
limited by --claim and --relexp.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := rt.require("tenant", "api-key"); err != nil {
				return err
			}
			tenant := rt.v.GetString("tenant")
			req := token.NewRequestRestToken(tenant)
			if exp := rt.v.GetInt64("exp"); exp > 0 {
				req = req.WithExp(exp)
			}

			claims, err := parseClaims(claimFlags)
			if err != nil {
				return err
			}
			if id := rt.v.GetString("client-id"); id != "" || len(claims) > 0 || relexp > 0 {
				if err := token.ValidateClientID(id); err != nil {
					return err
				}
				claim := token.NewDatastreamsMqttTokenClaim().WithTenant(tenant)
				if id != "" {
					claim = claim.WithID(id)
				}
				if len(claims) > 0 {
					claim = claim.WithClaims(claims...)
				}
				if relexp > 0 {
					claim = claim.WithRelExp(relexp)
				}
				req = req.WithClaims(claim)
			}

			tok, err := rt.fetcher().FetchRestToken(cmd.Context(), req)
			if err != nil {
				return err
			}
			id, _ := tok.ClientID()
			return rt.print(cmd, restTokenResult{
				Token:    tok.RawToken(),
				Tenant:   tok.TenantID,
				ClientID: id,
				Endpoint: tok.Endpoint,
				Expires:  tok.ExpiresAt().UTC(),
			})
		},
	}
	addTenantFlags(cmd)
	cmd.Flags().String("client-id", "", "client id to delegate the token to")
	cmd.Flags().StringArrayVar(&claimFlags, "claim", nil, "permission to delegate as action:stream:prefix:topic (repeatable)")
	cmd.Flags().Int32Var(&relexp, "relexp", 0, "lifetime cap in seconds for data access tokens obtained with this token")
	return cmd
}

func newDataAccessTokenCmd(rt *runtime) *cobra.Command {
	var claimFlags []string
	cmd := &cobra.Command{
		Use:   "data-access-token",
		Short: "Request an MQTT data access token for a client id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := rt.require("tenant", "api-key", "client-id"); err != nil {
				return err
			}
			claims, err := parseClaims(claimFlags)
			if err != nil {
				return err
			}
			req := token.NewRequestDataAccessToken(rt.v.GetString("tenant"), rt.v.GetString("client-id"))
			if len(claims) > 0 {
				req = req.WithClaims(claims...)
			}
			if exp := rt.v.GetInt64("exp"); exp > 0 {
				req = req.WithExp(exp)
			}

			tok, err := rt.fetcher().FetchDataAccessToken(cmd.Context(), req)
			if err != nil {
				return err
			}
			return rt.print(cmd, dataAccessTokenResult{
				Token:    tok.RawToken(),
				ClientID: tok.ClientID,
				Endpoint: tok.Endpoint,
				PortMQTT: tok.PortMQTT(),
				PortWSS:  tok.PortWSS(),
				Claims:   tok.Claims,
				Expires:  tok.ExpiresAt().UTC(),
			})
		},
	}
	addTenantFlags(cmd)
	cmd.Flags().String("client-id", "", "external client id the token is bound to")
	cmd.Flags().StringArrayVar(&claimFlags, "claim", nil, "requested permission as action:stream:prefix:topic (repeatable)")
	return cmd
}
