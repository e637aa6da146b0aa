package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/dshauth/token"
)

type decodedToken struct {
	Kind   string `json:"kind"`
	Valid  bool   `json:"valid"`
	Claims any    `json:"claims"`
}

func (d decodedToken) Text() string {
	if c, ok := d.Claims.(fmt.Stringer); ok {
		return c.String()
	}
	return d.Kind
}

func decode(raw, kind string) (decodedToken, error) {
	switch kind {
	case "rest":
		t, err := token.ParseRestToken(raw)
		if err != nil {
			return decodedToken{}, err
		}
		return decodedToken{Kind: "rest", Valid: t.IsValid(), Claims: t}, nil
	case "data-access":
		t, err := token.ParseDataAccessToken(raw)
		if err != nil {
			return decodedToken{}, err
		}
		return decodedToken{Kind: "data-access", Valid: t.IsValid(), Claims: t}, nil
	case "auto":
		// Only data access tokens carry a client-id.
		if t, err := token.ParseDataAccessToken(raw); err == nil && t.ClientID != "" {
			return decodedToken{Kind: "data-access", Valid: t.IsValid(), Claims: t}, nil
		}
		return decode(raw, "rest")
	}
	return decodedToken{}, fmt.Errorf("unknown token kind %q (supported: auto, rest, data-access)", kind)
}

func newDecodeCmd(rt *runtime) *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "decode [token|-]",
		Short: "Decode a token without verifying its signature",
		Long:  "Decodes a REST or data access token given as argument, or read from stdin when the argument is - or missing.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var raw string
			if len(args) == 1 && args[0] != "-" {
				raw = args[0]
			} else {
				b, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
				raw = string(b)
			}
			d, err := decode(strings.TrimSpace(raw), kind)
			if err != nil {
				return err
			}
			return rt.print(cmd, d)
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "auto", "token kind: auto, rest, data-access")
	return cmd
}
