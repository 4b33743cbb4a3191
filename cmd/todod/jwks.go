package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newJWKSCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jwks",
		Short: "Inspect the published signing keys",
	}

	var asJSON bool
	get := &cobra.Command{
		Use:   "get <kid>",
		Short: "Fetch one signing key and print its PEM certificate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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

			entry, err := c.fetcher.FetchSigningKey(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(entry)
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), entry.Certificate)
			return err
		},
	}
	get.Flags().BoolVar(&asJSON, "json", false, "print the fetched key entry as JSON")

	cmd.AddCommand(get)
	return cmd
}
