package cli

import (
	"context"
	"fmt"

	"atsexpert/internal/config"
	"atsexpert/internal/errors"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Define custom private types for context keys.
type configKeyType struct{}
type loggerKeyType struct{}

// Use variables of these types as the keys.
var configKey = configKeyType{}
var loggerKey = loggerKeyType{}

// skipConfigAnnotation marks commands that run without loading configuration
const skipConfigAnnotation = "atsexpert/skip-config"

// flagKeys maps command-line flags to configuration keys. Only flags set
// explicitly override the config file and environment.
var flagKeys = map[string]string{
	"log-level": "app.logLevel",
	"model":     "ai.model",
	"timeout":   "ai.timeout",
	"port":      "server.port",
	"host":      "server.host",
	"tls-mode":  "server.tls.mode",
	"cert-file": "server.tls.certFile",
	"key-file":  "server.tls.keyFile",
	"ca-file":   "server.tls.caFile",
	"api-keys":  "server.apiKeys",
}

var configFile string

var rootCmd = &cobra.Command{
	Use:   "atsexpert",
	Short: "Evaluate resumes and score them against job descriptions with Gemini",
	Long: `atsexpert renders the first page of a PDF resume and asks a Gemini model
either for an HR-style evaluation or for an ATS-style match score against
an optional job description.

Run "atsexpert serve" for the web form and HTTP API, or use "evaluate"
and "ats-score" directly from the command line.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadRuntimeConfig,
}

// Execute runs the root command with ctx as the base context
func Execute(ctx context.Context) error {
	rootCmd.SetContext(ctx)
	return rootCmd.Execute()
}

// loadRuntimeConfig builds the configuration for cmd, applying explicitly
// set flags on top of the config file and environment, then attaches the
// config and a logger to the command context.
func loadRuntimeConfig(cmd *cobra.Command, _ []string) error {
	if cmd.Annotations[skipConfigAnnotation] == "true" {
		return nil
	}

	v := config.NewViper(configFile)
	var bindErr error
	cmd.Flags().Visit(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok || bindErr != nil {
			return
		}
		bindErr = v.BindPFlag(key, f)
	})
	if bindErr != nil {
		return fmt.Errorf("failed to bind flags: %w", bindErr)
	}

	cfg, err := config.LoadFromViper(v)
	if err != nil {
		return errors.NewConfigError(errors.ErrCodeInvalidConfig, "Failed to load configuration", err)
	}

	logger, err := errors.New(cfg.App.LogLevel)
	if err != nil {
		return errors.NewConfigError(errors.ErrCodeInvalidConfig, "Failed to initialize logger", err)
	}

	if err := config.ApplyVaultSecrets(cfg, logger); err != nil {
		return err
	}

	logger.Debug("Configuration loaded",
		"command", cmd.Name(),
		"version", Version,
		"log_level", cfg.App.LogLevel,
		"ai_provider", cfg.AI.Provider,
		"ai_model", cfg.AI.Model)

	ctx := context.WithValue(cmd.Context(), configKey, cfg)
	ctx = context.WithValue(ctx, loggerKey, logger)
	cmd.SetContext(ctx)
	return nil
}

// getConfigFromContext is a helper function to get config from context
func getConfigFromContext(ctx context.Context) (*config.Config, error) {
	if cfg, ok := ctx.Value(configKey).(*config.Config); ok {
		return cfg, nil
	}
	return nil, fmt.Errorf("config not found in context")
}

// getLoggerFromContext is a helper function to get logger from context
func getLoggerFromContext(ctx context.Context) (*errors.Logger, error) {
	if logger, ok := ctx.Value(loggerKey).(*errors.Logger); ok {
		return logger, nil
	}
	return nil, fmt.Errorf("logger not found in context")
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Config file (default: search /etc/atsexpert, $HOME/.atsexpert and .)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("model", "", "Gemini model name (overrides config)")
	rootCmd.PersistentFlags().Duration("timeout", 0, "Timeout for each model request (overrides config)")

	rootCmd.AddCommand(evaluateCmd)
	rootCmd.AddCommand(atsScoreCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
