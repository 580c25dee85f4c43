package types

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// Intent selects which of the two fixed prompts a submission uses.
type Intent string

const (
	IntentEvaluation Intent = "evaluation"
	IntentATSScoring Intent = "ats_scoring"
)

// ParseIntent accepts the canonical values plus a few short aliases.
func ParseIntent(s string) (Intent, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "evaluation", "evaluate", "eval":
		return IntentEvaluation, nil
	case "ats_scoring", "ats-scoring", "ats", "ats-score", "score":
		return IntentATSScoring, nil
	default:
		return "", fmt.Errorf("unknown intent %q (expected evaluation or ats_scoring)", s)
	}
}

func (i Intent) Valid() bool {
	return i == IntentEvaluation || i == IntentATSScoring
}

// Title is the heading shown above a result of this intent.
func (i Intent) Title() string {
	switch i {
	case IntentEvaluation:
		return "Resume Evaluation"
	case IntentATSScoring:
		return "ATS Match Score & Analysis"
	default:
		return "Result"
	}
}

// ImagePart is an inlined image payload: base64 data plus its MIME type.
type ImagePart struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

// Bytes decodes the base64 payload back to the raw image bytes.
func (p ImagePart) Bytes() ([]byte, error) {
	return base64.StdEncoding.DecodeString(p.Data)
}

// Submission is one user-triggered request. A nil Document means nothing
// was uploaded; an empty non-nil Document is an empty upload.
type Submission struct {
	ID             string
	Intent         Intent
	Document       []byte
	DocumentName   string
	JobDescription string
}

// HasDocument reports whether a document was supplied at all.
func (s Submission) HasDocument() bool {
	return s.Document != nil
}

// EvaluationRequest is what the requester sends to the model.
type EvaluationRequest struct {
	Intent         Intent
	Prompt         string
	Image          ImagePart
	JobDescription string
}

// TokenUsage holds token counts reported by the model.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CandidatesTokens int `json:"candidates_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// EvaluationResult is the displayed outcome of a successful submission.
type EvaluationResult struct {
	SubmissionID   string      `json:"submission_id"`
	Intent         Intent      `json:"intent"`
	Text           string      `json:"result"`
	Model          string      `json:"model"`
	ElapsedSeconds float64     `json:"elapsed_seconds"`
	TokenUsage     *TokenUsage `json:"token_usage,omitempty"`
}

// Stage is a submission's position in the pipeline.
type Stage string

const (
	StageIdle           Stage = "idle"
	StageAwaitingUpload Stage = "awaiting_upload"
	StageRasterizing    Stage = "rasterizing"
	StageRequesting     Stage = "requesting"
	StageDisplaying     Stage = "displaying"
	StageFailed         Stage = "failed"
)

// Terminal reports whether no further transition can happen.
func (s Stage) Terminal() bool {
	return s == StageAwaitingUpload || s == StageDisplaying || s == StageFailed
}
