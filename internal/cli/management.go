package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/example/dshauth/managementapi"
)

type managementTokenResult struct {
	Token     string    `json:"token"`
	ClientID  string    `json:"client_id"`
	TokenType string    `json:"token_type"`
	Expires   time.Time `json:"expires"`
}

func (r managementTokenResult) Text() string { return r.Token }

func newManagementTokenCmd(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "management-token",
		Short: "Fetch an access token for the management REST API",
		Long: `Runs the client credentials flow of the platform identity provider. The
client id defaults to the robot account of --tenant.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := rt.require("client-secret"); err != nil {
				return err
			}
			p := rt.platform
			if u := rt.v.GetString("auth-url"); u != "" {
				p.ManagementAPIToken = u
			}
			b := managementapi.NewBuilder(p).
				WithTenantName(rt.v.GetString("tenant")).
				WithClientID(rt.v.GetString("client-id")).
				WithClientSecret(rt.v.GetString("client-secret"))
			if rt.opts.HTTPClient != nil {
				b = b.WithHTTPClient(rt.opts.HTTPClient)
			}
			f, err := b.Build()
			if err != nil {
				return err
			}

			start := time.Now()
			tok, err := f.FetchAccessToken(cmd.Context())
			if err != nil {
				return err
			}
			return rt.print(cmd, managementTokenResult{
				Token:     tok.FormattedToken(),
				ClientID:  f.ClientID(),
				TokenType: tok.TokenType,
				Expires:   start.Add(time.Duration(tok.ExpiresIn) * time.Second).UTC().Truncate(time.Second),
			})
		},
	}
	cmd.Flags().String("client-id", "", "client id, overrides the one derived from --tenant")
	cmd.Flags().String("client-secret", "", "client secret of the robot account")
	cmd.Flags().String("auth-url", "", "override the token endpoint of the platform identity provider")
	return cmd
}
