package main

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/jonwraymond/todos/config"
	"github.com/jonwraymond/todos/secret"
)

type rootOptions struct {
	configPath string
	envFile    string
	secretsDir string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "todod",
		Short: "Todo API with a JWKS bearer token authorizer",
		Long: `todod serves the todo API. Every /todos request must carry an RS256
bearer token signed by a key published at JWKS_URL.

Configuration comes from an optional YAML file, then the environment. A .env
file in the working directory is loaded when present.`,
		Version:      Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadEnvFile(opts.envFile)
		},
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "YAML configuration file")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", "", "dotenv file to load (default: .env when present)")
	cmd.PersistentFlags().StringVar(&opts.secretsDir, "secrets-dir", secret.DefaultSecretsDir, "directory for secretref:file: references")

	cmd.AddCommand(newServeCmd(opts), newAuthorizeCmd(opts), newJWKSCmd(opts))
	return cmd
}

// loadEnvFile loads path, or .env when path is empty and the file exists.
// Variables already set in the environment win.
func loadEnvFile(path string) error {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		return nil
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// loadConfig reads the configuration and resolves secret references. It
// does not validate.
func (o *rootOptions) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}

	env, err := secret.DefaultRegistry.Create("env", nil)
	if err != nil {
		return nil, err
	}
	file, err := secret.DefaultRegistry.Create("file", map[string]any{"dir": o.secretsDir})
	if err != nil {
		return nil, err
	}
	resolver := secret.NewResolver(true, env, file)
	defer resolver.Close()

	if err := cfg.ResolveSecrets(cmd.Context(), resolver); err != nil {
		return nil, err
	}
	return cfg, nil
}
