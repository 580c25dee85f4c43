package cli

import (
	"context"

	"atsexpert/internal/ai"
	"atsexpert/internal/config"
	"atsexpert/internal/errors"
	"atsexpert/internal/observability"
	"atsexpert/internal/pipeline"
	"atsexpert/internal/rasterizer"
)

// services is the set of collaborators every submission command needs
type services struct {
	Pipeline      *pipeline.Pipeline
	AI            *ai.Service
	Observability *observability.ObservabilityManager
	logger        *errors.Logger
}

// newServices builds observability, the AI service, the rasterizer and the
// pipeline joining them. Call Close when done.
func newServices(ctx context.Context, cfg *config.Config, logger *errors.Logger) (*services, error) {
	om, err := observability.NewObservabilityManager(
		observability.SettingsFromConfig(cfg.Observability, Version), logger)
	if err != nil {
		return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig, "Failed to initialize observability", err)
	}

	svc, err := ai.NewService(ctx, cfg.AI, cfg.Observability.HealthCheck.AIModelCheckTimeout, logger)
	if err != nil {
		if shutdownErr := om.Shutdown(ctx); shutdownErr != nil {
			logger.Warn("Failed to shut down observability", "error", shutdownErr)
		}
		return nil, err
	}

	engine := rasterizer.New(cfg.Rasterizer.Executable(), rasterizer.ExecRunner{}, logger)
	logger.Debug("Rasterizer configured", "engine", engine.Engine())

	p := pipeline.New(engine, svc, pipeline.Options{
		Prompts:       ai.PromptsFromConfig(cfg.AI.Prompts),
		MaxUploadSize: cfg.App.MaxUploadSize,
		Metrics:       om.Metrics(),
		Logger:        logger,
	})

	return &services{Pipeline: p, AI: svc, Observability: om, logger: logger}, nil
}

// Close releases the AI client and flushes telemetry
func (r *services) Close(ctx context.Context) {
	if err := r.AI.Close(); err != nil {
		r.logger.Warn("Failed to close AI service", "error", err)
	}
	if err := r.Observability.Shutdown(ctx); err != nil {
		r.logger.Warn("Failed to shut down observability", "error", err)
	}
}
