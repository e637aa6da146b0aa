// Package cli implements dshtoken, a command line client for the DSH token
// endpoints.
package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/example/dshauth/platform"
	"github.com/example/dshauth/token"
)

// Options lets tests swap the transport and the platform table.
type Options struct {
	HTTPClient token.HTTPClient
	Platforms  platform.Registry
}

// runtime is the state resolved in PersistentPreRunE and shared by all
// subcommands.
type runtime struct {
	opts      Options
	v         *viper.Viper
	formatter Formatter
	platform  platform.Platform
}

// NewRootCmd builds the command tree. Every flag can also be set through a
// DSH_ prefixed environment variable, e.g. --api-key as DSH_API_KEY.
func NewRootCmd(opts Options) *cobra.Command {
	if opts.Platforms == nil {
		opts.Platforms = platform.Default()
	}
	rt := &runtime{opts: opts, v: viper.New()}
	rt.v.SetEnvPrefix("DSH")
	rt.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	rt.v.AutomaticEnv()

	root := &cobra.Command{
		Use:   "dshtoken",
		Short: "Request and inspect DSH tokens",
		Long: `dshtoken exchanges a tenant API key for REST and data access tokens,
fetches management API tokens and decodes tokens without verifying them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := rt.v.BindPFlags(cmd.Flags()); err != nil {
				return err
			}
			var err error
			if rt.formatter, err = NewFormatter(rt.v.GetString("output")); err != nil {
				return err
			}
			if rt.platform, err = opts.Platforms.Parse(rt.v.GetString("platform")); err != nil {
				return err
			}
			return nil
		},
	}
	root.PersistentFlags().StringP("output", "o", "text", "output format: text, json, yaml")
	root.PersistentFlags().StringP("platform", "p", string(platform.NpLz), "target platform: "+platformList(opts.Platforms))
	root.PersistentFlags().String("tenant", "", "tenant name")

	root.AddCommand(
		newRestTokenCmd(rt),
		newDataAccessTokenCmd(rt),
		newManagementTokenCmd(rt),
		newDecodeCmd(rt),
	)
	return root
}

// Execute runs the dshtoken command.
func Execute() {
	if err := NewRootCmd(Options{}).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func platformList(r platform.Registry) string {
	ids := r.IDs()
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = string(id)
	}
	return strings.Join(names, ", ")
}

func (rt *runtime) require(keys ...string) error {
	for _, k := range keys {
		if rt.v.GetString(k) == "" {
			return fmt.Errorf("--%s (or DSH_%s) is required", k, strings.ToUpper(strings.ReplaceAll(k, "-", "_")))
		}
	}
	return nil
}

func (rt *runtime) fetcher() *token.APIClientTokenFetcher {
	opts := []token.Option{}
	if u := rt.v.GetString("auth-url"); u != "" {
		opts = append(opts, token.WithAuthURL(u))
	}
	if rt.opts.HTTPClient != nil {
		opts = append(opts, token.WithHTTPClient(rt.opts.HTTPClient))
	}
	return token.NewAPIClientTokenFetcher(rt.v.GetString("api-key"), rt.platform, opts...)
}

func (rt *runtime) print(cmd *cobra.Command, data any) error {
	return rt.formatter.Format(cmd.OutOrStdout(), data)
}
