package ai

import (
	"context"

	"atsexpert/internal/types"

	"google.golang.org/genai"
)

// AIProvider sends one evaluation request to a generative backend.
// Token usage may be nil when the backend does not report it.
type AIProvider interface {
	Generate(ctx context.Context, req types.EvaluationRequest) (string, *types.TokenUsage, error)
	GetModelInfo(ctx context.Context) *ModelInfo
	Close() error
}

// modelsAPI is the slice of genai.Models the Gemini provider uses.
type modelsAPI interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	Get(ctx context.Context, model string, config *genai.GetModelConfig) (*genai.Model, error)
}

// ModelInfo represents information about the AI model
type ModelInfo struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName,omitempty"`
	Version     string `json:"version,omitempty"`
	Available   bool   `json:"available"`
	Error       string `json:"error,omitempty"`
}
