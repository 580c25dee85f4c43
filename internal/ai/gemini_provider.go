package ai

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"atsexpert/internal/config"
	"atsexpert/internal/errors"
	"atsexpert/internal/types"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"google.golang.org/api/googleapi"
	"google.golang.org/genai"
)

// GeminiProvider implements AIProvider for Google Gemini
type GeminiProvider struct {
	models            modelsAPI
	model             string
	timeout           time.Duration
	modelCheckTimeout time.Duration
	circuitBreaker    *CircuitBreaker[*genai.GenerateContentResponse]
	modelBreaker      *CircuitBreaker[*genai.Model]
	logger            *errors.Logger
}

// Ensure GeminiProvider implements AIProvider
var _ AIProvider = (*GeminiProvider)(nil)

// NewGeminiProvider creates a provider backed by the Gemini Developer API.
func NewGeminiProvider(ctx context.Context, cfg config.AIConfig, modelCheckTimeout time.Duration, logger *errors.Logger) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.NewConfigError(errors.ErrCodeMissingAPIKey,
			"no Gemini API key configured (set GOOGLE_API_KEY, GEMINI_API_KEY or ai.apiKey)", nil)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig,
			"Failed to create Gemini client", err)
	}

	return newGeminiProvider(client.Models, cfg, modelCheckTimeout, logger), nil
}

func newGeminiProvider(models modelsAPI, cfg config.AIConfig, modelCheckTimeout time.Duration, logger *errors.Logger) *GeminiProvider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = config.DefaultAITimeout
	}
	if modelCheckTimeout <= 0 {
		modelCheckTimeout = 10 * time.Second
	}

	return &GeminiProvider{
		models:            models,
		model:             cfg.Model,
		timeout:           timeout,
		modelCheckTimeout: modelCheckTimeout,
		circuitBreaker:    NewCircuitBreaker[*genai.GenerateContentResponse](breakerName("generate", cfg.Model), cfg.CircuitBreaker, logger),
		modelBreaker:      NewCircuitBreaker[*genai.Model](breakerName("model", cfg.Model), cfg.CircuitBreaker, logger),
		logger:            logger,
	}
}

// Model returns the configured model name.
func (g *GeminiProvider) Model() string {
	return g.model
}

// NoJobDescriptionText stands in for an empty job description. A text part
// with empty text marshals to {} (the field is omitempty), which the API
// rejects as a part without data.
const NoJobDescriptionText = "No job description was provided."

// BuildContents lays out the request as job description, page image, then
// prompt. The model is sensitive to this order. A non-empty job description
// is sent verbatim.
func BuildContents(jobDescription string, image []byte, mimeType, prompt string) []*genai.Content {
	if jobDescription == "" {
		jobDescription = NoJobDescriptionText
	}
	parts := []*genai.Part{
		genai.NewPartFromText(jobDescription),
		genai.NewPartFromBytes(image, mimeType),
		genai.NewPartFromText(prompt),
	}
	return []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
}

// Generate makes exactly one GenerateContent call bounded by the configured
// timeout. The response text is returned unmodified.
func (g *GeminiProvider) Generate(ctx context.Context, req types.EvaluationRequest) (string, *types.TokenUsage, error) {
	ctx, span := otel.Tracer("atsexpert.ai.gemini").Start(ctx, "ai.gemini.generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("ai.provider", "gemini"),
		attribute.String("ai.model", g.model),
		attribute.String("ai.intent", string(req.Intent)),
		attribute.Int("input.job_length", len(req.JobDescription)),
	)

	text, usage, err := g.generate(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, errors.CodeOf(err))
		return "", nil, err
	}

	if usage != nil {
		span.SetAttributes(
			attribute.Int("ai.tokens.input", usage.PromptTokens),
			attribute.Int("ai.tokens.output", usage.CandidatesTokens),
			attribute.Int("ai.tokens.total", usage.TotalTokens),
		)
	}
	return text, usage, nil
}

func (g *GeminiProvider) generate(ctx context.Context, req types.EvaluationRequest) (string, *types.TokenUsage, error) {
	image, err := req.Image.Bytes()
	if err != nil {
		return "", nil, errors.Request("invalid image payload", err)
	}
	contents := BuildContents(req.JobDescription, image, req.Image.MimeType, req.Prompt)

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	result, err := g.circuitBreaker.Execute(func() (*genai.GenerateContentResponse, error) {
		return g.models.GenerateContent(callCtx, g.model, contents, nil)
	})
	if err != nil {
		// The SDK sometimes surfaces a deadline as a transport error that
		// does not wrap context.DeadlineExceeded.
		if stderrors.Is(callCtx.Err(), context.DeadlineExceeded) && !stderrors.Is(ctx.Err(), context.Canceled) {
			err = fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
		}
		return "", nil, classifyError(err, g.timeout)
	}

	if result == nil {
		return "", nil, errors.Request("empty response", stderrors.New("model returned no response"))
	}
	if fb := result.PromptFeedback; fb != nil && fb.BlockReason != "" {
		cause := fmt.Errorf("prompt blocked: %s", fb.BlockReason)
		if fb.BlockReasonMessage != "" {
			cause = fmt.Errorf("prompt blocked: %s (%s)", fb.BlockReason, fb.BlockReasonMessage)
		}
		return "", nil, errors.Request("request rejected by model", cause)
	}

	text := result.Text()
	if text == "" {
		return "", nil, errors.Request("empty response", stderrors.New("model returned no text"))
	}
	return text, extractTokenUsage(result), nil
}

// classifyError maps a failed call onto the timeout or request failure.
func classifyError(err error, timeout time.Duration) *errors.AppError {
	if isTimeout(err) {
		return errors.Timeout(fmt.Sprintf("no response within %s", timeout), err).
			WithContext("timeout_seconds", timeout.Seconds())
	}

	appErr := errors.Request("model call failed", err)
	if IsRejection(err) {
		appErr.WithContext("circuit_breaker", "open")
	}

	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	var gErr *googleapi.Error
	switch {
	case stderrors.As(err, &apiErr):
		appErr.WithContext("status_code", apiErr.Code).WithContext("status", apiErr.Status)
	case stderrors.As(err, &apiErrPtr):
		appErr.WithContext("status_code", apiErrPtr.Code).WithContext("status", apiErrPtr.Status)
	case stderrors.As(err, &gErr):
		appErr.WithContext("status_code", gErr.Code)
	}
	return appErr
}

func isTimeout(err error) bool {
	if stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var apiErr genai.APIError
	if stderrors.As(err, &apiErr) {
		return apiErr.Code == http.StatusGatewayTimeout || apiErr.Status == "DEADLINE_EXCEEDED"
	}
	var apiErrPtr *genai.APIError
	if stderrors.As(err, &apiErrPtr) {
		return apiErrPtr.Code == http.StatusGatewayTimeout || apiErrPtr.Status == "DEADLINE_EXCEEDED"
	}

	var gErr *googleapi.Error
	if stderrors.As(err, &gErr) {
		return gErr.Code == http.StatusGatewayTimeout
	}
	return false
}

// apiStatusCode returns the HTTP status of an API reply carried by err
func apiStatusCode(err error) (int, bool) {
	var apiErr genai.APIError
	if stderrors.As(err, &apiErr) {
		return apiErr.Code, true
	}
	var apiErrPtr *genai.APIError
	if stderrors.As(err, &apiErrPtr) {
		return apiErrPtr.Code, true
	}
	var gErr *googleapi.Error
	if stderrors.As(err, &gErr) {
		return gErr.Code, true
	}
	return 0, false
}

// extractTokenUsage extracts token usage information from Gemini API response
func extractTokenUsage(result *genai.GenerateContentResponse) *types.TokenUsage {
	if result == nil || result.UsageMetadata == nil {
		return nil
	}

	usage := result.UsageMetadata
	return &types.TokenUsage{
		PromptTokens:     int(usage.PromptTokenCount),
		CandidatesTokens: int(usage.CandidatesTokenCount),
		TotalTokens:      int(usage.TotalTokenCount),
	}
}

// GetModelInfo checks the readiness and availability of the configured model
func (g *GeminiProvider) GetModelInfo(ctx context.Context) *ModelInfo {
	modelInfo := &ModelInfo{
		Name:      g.model,
		Available: false,
	}

	checkCtx, cancel := context.WithTimeout(ctx, g.modelCheckTimeout)
	defer cancel()

	model, err := g.modelBreaker.Execute(func() (*genai.Model, error) {
		return g.models.Get(checkCtx, g.model, &genai.GetModelConfig{})
	})
	if err != nil {
		modelInfo.Error = fmt.Sprintf("Failed to get model info: %v", err)
		g.logger.Warn("Model availability check failed",
			"model", g.model,
			"error", err.Error())
		return modelInfo
	}

	modelInfo.Available = true
	if model != nil {
		modelInfo.DisplayName = model.DisplayName
		modelInfo.Version = model.Version
	}

	g.logger.Debug("Model availability check successful",
		"model", g.model,
		"display_name", modelInfo.DisplayName,
		"version", modelInfo.Version)

	return modelInfo
}

// GetCircuitBreakerStats returns circuit breaker statistics
func (g *GeminiProvider) GetCircuitBreakerStats() map[string]any {
	return map[string]any{
		"ai_operations":    g.circuitBreaker.GetStats(),
		"model_operations": g.modelBreaker.GetStats(),
		"overall_healthy":  g.circuitBreaker.IsHealthy() && g.modelBreaker.IsHealthy(),
	}
}

// Close implements AIProvider interface
func (g *GeminiProvider) Close() error {
	// The genai client holds no resources in single-shot usage.
	return nil
}
