package cli

import (
	"fmt"

	"atsexpert/internal/config"
	"atsexpert/internal/formatters"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Print the configuration after defaults, the config file, environment
variables, Vault secrets and flags have been applied. Secrets are masked.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := getConfigFromContext(cmd.Context())
		if err != nil {
			return err
		}
		out, err := formatters.GlobalRegistry.Format(redactedConfig(cfg), "json")
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), out)
		return err
	},
}

// redactedConfig returns a copy of cfg with every secret masked
func redactedConfig(cfg *config.Config) config.Config {
	redacted := *cfg
	redacted.AI.APIKey = config.MaskSecret(cfg.AI.APIKey)
	redacted.Vault.Token = config.MaskSecret(cfg.Vault.Token)

	keys := make([]string, len(cfg.Server.APIKeys))
	for i, key := range cfg.Server.APIKeys {
		keys[i] = config.MaskSecret(key)
	}
	redacted.Server.APIKeys = keys
	return redacted
}
