package ai

import (
	"context"
	"fmt"
	"time"

	"atsexpert/internal/config"
	"atsexpert/internal/errors"
	"atsexpert/internal/types"
)

// Response is a successful model reply.
type Response struct {
	Text       string
	Model      string
	Elapsed    time.Duration
	TokenUsage *types.TokenUsage
}

// Service sends evaluation requests through the configured provider.
type Service struct {
	Provider AIProvider // Exported for health checks
	model    string
	logger   *errors.Logger
}

// NewService creates the provider named by cfg.Provider.
func NewService(ctx context.Context, cfg config.AIConfig, modelCheckTimeout time.Duration, logger *errors.Logger) (*Service, error) {
	logger.Debug("Initializing AI service",
		"provider", cfg.Provider,
		"model", cfg.Model,
		"timeout", cfg.Timeout.String(),
		"circuit_breaker", cfg.CircuitBreaker.Enabled)

	var provider AIProvider
	switch cfg.Provider {
	case "gemini", "":
		p, err := NewGeminiProvider(ctx, cfg, modelCheckTimeout, logger)
		if err != nil {
			return nil, err
		}
		provider = p
	default:
		return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig,
			fmt.Sprintf("Unsupported AI provider: %s", cfg.Provider), nil)
	}

	return NewServiceWithProvider(provider, cfg.Model, logger), nil
}

// NewServiceWithProvider wraps an existing provider.
func NewServiceWithProvider(provider AIProvider, model string, logger *errors.Logger) *Service {
	return &Service{Provider: provider, model: model, logger: logger}
}

// Model returns the configured model name.
func (s *Service) Model() string {
	return s.model
}

// Evaluate sends prompt, the first image payload and the job description
// in a single call. images must be the Rasterizer's output.
func (s *Service) Evaluate(ctx context.Context, intent types.Intent, prompt string, images []types.ImagePart, jobDescription string) (*Response, error) {
	if len(images) == 0 {
		return nil, errors.Request("no page image to send", fmt.Errorf("image payload list is empty"))
	}

	start := time.Now()
	text, usage, err := s.Provider.Generate(ctx, types.EvaluationRequest{
		Intent:         intent,
		Prompt:         prompt,
		Image:          images[0],
		JobDescription: jobDescription,
	})
	elapsed := time.Since(start)

	if err != nil {
		s.logger.LogError(err, "Model request failed",
			"intent", intent,
			"model", s.model,
			"elapsed_seconds", elapsed.Seconds())
		return nil, err
	}

	args := []any{
		"intent", intent,
		"model", s.model,
		"elapsed_seconds", elapsed.Seconds(),
		"response_length", len(text),
	}
	if usage != nil {
		args = append(args, "total_tokens", usage.TotalTokens)
	}
	s.logger.Info("response received", args...)

	return &Response{
		Text:       text,
		Model:      s.model,
		Elapsed:    elapsed,
		TokenUsage: usage,
	}, nil
}

// GetModelInfo returns information about the AI model for health checks
func (s *Service) GetModelInfo(ctx context.Context) *ModelInfo {
	return s.Provider.GetModelInfo(ctx)
}

// CircuitBreakerStats returns breaker statistics when the provider keeps any.
func (s *Service) CircuitBreakerStats() map[string]any {
	if p, ok := s.Provider.(interface{ GetCircuitBreakerStats() map[string]any }); ok {
		return p.GetCircuitBreakerStats()
	}
	return nil
}

// Close releases provider resources.
func (s *Service) Close() error {
	return s.Provider.Close()
}
