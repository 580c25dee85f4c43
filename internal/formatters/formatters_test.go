package formatters

import (
	"encoding/json"
	"testing"

	"atsexpert/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleResult() types.EvaluationResult {
	return types.EvaluationResult{
		SubmissionID:   "0190b6f2-0000-7000-8000-000000000001",
		Intent:         types.IntentATSScoring,
		Text:           "**Match: 82%**\n\nMissing keywords: Kubernetes\n",
		Model:          "gemini-1.5-flash",
		ElapsedSeconds: 3.14,
		TokenUsage:     &types.TokenUsage{PromptTokens: 900, CandidatesTokens: 120, TotalTokens: 1020},
	}
}

func TestTextFormat(t *testing.T) {
	out, err := GlobalRegistry.Format(sampleResult(), "text")
	require.NoError(t, err)

	assert.Contains(t, out, "=== ATS MATCH SCORE & ANALYSIS ===")
	assert.Contains(t, out, "Missing keywords: Kubernetes")
	assert.Contains(t, out, "Response received in 3.14 seconds (gemini-1.5-flash)")
	assert.Contains(t, out, "total=1020")
}

func TestMarkdownFormatAcceptsPointer(t *testing.T) {
	result := sampleResult()
	result.Intent = types.IntentEvaluation
	result.TokenUsage = nil

	out, err := GlobalRegistry.Format(&result, "markdown")
	require.NoError(t, err)

	assert.Contains(t, out, "# Resume Evaluation\n")
	assert.Contains(t, out, "**Match: 82%**")
	assert.Contains(t, out, "| Elapsed | 3.14 s |")
	assert.NotContains(t, out, "| Tokens |")
}

func TestJSONFormatUsesWireNames(t *testing.T) {
	out, err := GlobalRegistry.Format(sampleResult(), "json")
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, "ats_scoring", decoded["intent"])
	assert.Equal(t, 3.14, decoded["elapsed_seconds"])
	assert.Contains(t, decoded, "result")
}

func TestUnknownFormat(t *testing.T) {
	_, err := GlobalRegistry.Format(sampleResult(), "xml")
	assert.ErrorContains(t, err, "no formatter found")
}

func TestTextFormatterRejectsOtherTypes(t *testing.T) {
	_, err := ResultTextFormatter{}.Format("plain string")
	assert.Error(t, err)
}

func TestSupportedFormats(t *testing.T) {
	assert.Equal(t, []string{"json", "markdown", "text"}, GlobalRegistry.GetSupportedFormats())
}
