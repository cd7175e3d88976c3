package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/layer-3/demogate/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the effective configuration",
}

var configCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate configuration and list configured scopes without revealing secrets",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "environment:     %s\n", cfg.Environment)
		fmt.Fprintf(out, "listen:          %s\n", cfg.Listen)
		fmt.Fprintf(out, "session secret:  %s\n", setOrMissing(cfg.Secrets.Session))
		fmt.Fprintf(out, "signing secret:  %s\n", setOrMissing(cfg.Secrets.Signing))
		fmt.Fprintf(out, "resource scopes: %d\n", len(cfg.ResourceScopes()))
		for _, scope := range cfg.ResourceScopes() {
			fmt.Fprintf(out, "  - %s\n", scope)
		}
		if cfg.Redis.URL != "" {
			fmt.Fprintf(out, "redis secrets:   %s (read at server start)\n", cfg.Redis.SecretsKey)
		}

		if cfg.Secrets.Session == "" || cfg.Secrets.Signing == "" {
			return fmt.Errorf("login is unavailable until both site secrets are configured")
		}
		return nil
	},
}

func setOrMissing(v string) string {
	if v == "" {
		return "missing"
	}
	return "set"
}

func init() {
	configCmd.AddCommand(configCheckCmd)
	rootCmd.AddCommand(configCmd)
}
