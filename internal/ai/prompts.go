package ai

import (
	"fmt"
	"strings"

	"atsexpert/internal/config"
	"atsexpert/internal/types"
)

// EvaluationPrompt asks for a fit assessment with strengths and weaknesses.
const EvaluationPrompt = `You are an experienced Technical Human Resource Manager. Your task is to review the provided resume against the job description.
Please share your professional evaluation on whether the candidate's profile aligns with the role.
Highlight the strengths and weaknesses of the applicant in relation to the specified job requirements.`

// ATSScoringPrompt asks for a percentage match, missing keywords and overall thoughts.
const ATSScoringPrompt = `You are a skilled ATS (Applicant Tracking System) scanner with a deep understanding of ATS functionality.
Evaluate the resume against the provided job description and:
- Provide a **percentage match**
- List **missing keywords**
- Give **overall thoughts**`

// Prompts holds the instruction text for each intent. It is resolved once
// at startup and never changes.
type Prompts struct {
	Evaluation string
	ATSScoring string
}

// DefaultPrompts returns the built-in prompts.
func DefaultPrompts() Prompts {
	return Prompts{
		Evaluation: EvaluationPrompt,
		ATSScoring: ATSScoringPrompt,
	}
}

// PromptsFromConfig applies configured overrides on top of the defaults.
func PromptsFromConfig(cfg config.PromptConfig) Prompts {
	return Prompts{
		Evaluation: resolvePrompt(cfg.Evaluation, EvaluationPrompt),
		ATSScoring: resolvePrompt(cfg.ATSScoring, ATSScoringPrompt),
	}
}

// For returns the prompt bound to intent.
func (p Prompts) For(intent types.Intent) (string, error) {
	switch intent {
	case types.IntentEvaluation:
		return p.Evaluation, nil
	case types.IntentATSScoring:
		return p.ATSScoring, nil
	default:
		return "", fmt.Errorf("no prompt for intent %q", intent)
	}
}

func resolvePrompt(override, fallback string) string {
	if strings.TrimSpace(override) != "" {
		return override
	}
	return fallback
}
