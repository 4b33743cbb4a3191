package main

import (
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"
)

func newAuthorizeCmd(root *rootOptions) *cobra.Command {
	var header string
	cmd := &cobra.Command{
		Use:   "authorize",
		Short: "Print the authorizer decision for an Authorization header",
		Example: `  todod authorize --header "Bearer eyJhbGciOiJSUzI1NiIs..."
  TOKEN=... todod authorize --header "Bearer $TOKEN"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if header == "" {
				return errors.New("--header is required")
			}
			cfg, err := root.loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.ValidateAuth(); err != nil {
				return err
			}

			c, err := newObservability(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer c.Close(cmd.Context())
			c.buildAuth(cfg)

			decision := c.gate.Authorize(cmd.Context(), header)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(decision)
		},
	}
	cmd.Flags().StringVar(&header, "header", "", "Authorization header value, e.g. \"Bearer <token>\"")
	return cmd
}
