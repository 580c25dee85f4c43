package cli

import (
	"context"
	"fmt"
	"time"

	"atsexpert/internal/config"
	"atsexpert/internal/server"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web form and HTTP API",
	Long: `Start an HTTP server with the single-page upload form and a JSON API.

Available endpoints:
- GET  /                      Upload form
- POST /                      Form submission (one of the two action buttons)
- POST /api/v1/evaluate       Resume evaluation (multipart: resume, job_description)
- POST /api/v1/ats-score      ATS match score (multipart: resume, job_description)
- GET  /health                Health check
- GET  /stats                 Server statistics

TLS Configuration:
- Use --tls-mode to set TLS mode: disabled, server, mutual
- Use --cert-file and --key-file for TLS certificates
- Use --ca-file for mutual TLS client certificate verification`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringP("port", "p", "", "Port to listen on (default from config)")
	serveCmd.Flags().String("host", "", "Host to bind to (default from config)")
	serveCmd.Flags().String("tls-mode", "", "TLS mode: disabled, server, mutual (overrides config)")
	serveCmd.Flags().String("cert-file", "", "Server certificate file (PEM, overrides config)")
	serveCmd.Flags().String("key-file", "", "Server private key file (PEM, overrides config)")
	serveCmd.Flags().String("ca-file", "", "CA certificate file for client cert verification (PEM, overrides config)")
	serveCmd.Flags().StringSlice("api-keys", nil, "API keys accepted on /api/ routes (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := getConfigFromContext(ctx)
	if err != nil {
		return err
	}
	logger, err := getLoggerFromContext(ctx)
	if err != nil {
		return err
	}

	// Validate TLS configuration after applying overrides
	if err := cfg.ValidateTLSConfig(); err != nil {
		return fmt.Errorf("invalid TLS configuration: %w", err)
	}

	rt, err := newServices(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		rt.Close(shutdownCtx)
	}()

	deps := server.Dependencies{
		Version:       Version,
		Evaluator:     rt.Pipeline,
		Health:        rt.AI,
		Observability: rt.Observability,
	}

	if cfg.Vault.Enabled && cfg.Vault.WatchInterval > 0 && cfg.Vault.Secrets.APIKeys != "" {
		client, err := config.NewVaultClient(cfg.Vault, logger)
		if err != nil {
			return fmt.Errorf("failed to create vault client for key rotation: %w", err)
		}
		deps.VaultClient = client
	}

	return server.NewServer(cfg, deps, logger).Start(ctx)
}
