package common

import (
	"context"

	"atsexpert/internal/errors"
	"atsexpert/internal/types"
)

// Evaluator runs one submission to completion
type Evaluator interface {
	Run(ctx context.Context, sub types.Submission) (*types.EvaluationResult, error)
}

// SubmissionFiles names the inputs of a command-line submission
type SubmissionFiles struct {
	Document       string
	JobDescription string // file name, "-" for stdin, or empty
	Intent         types.Intent

	// MaxDocumentSize is the document ceiling in bytes; zero means none
	MaxDocumentSize int64
}

// RunSubmission reads the inputs, runs them through evaluator and writes
// the formatted result.
func RunSubmission(
	ctx context.Context,
	logger *errors.Logger,
	evaluator Evaluator,
	cmdConfig CommandConfig,
	files SubmissionFiles,
	outputHandler *OutputHandler,
) error {
	if logger == nil {
		logger = errors.Discard()
	}
	if outputHandler == nil {
		outputHandler = NewOutputHandler(logger)
	}
	fileProcessor := NewFileProcessor(logger)

	// Fail on a bad output path before paying for a model call
	if err := fileProcessor.ValidateOutputFile(cmdConfig.OutputFile); err != nil {
		return err
	}

	document, err := fileProcessor.ReadDocument(files.Document, files.MaxDocumentSize)
	if err != nil {
		return err
	}
	jobDescription, err := fileProcessor.ReadText(files.JobDescription)
	if err != nil {
		return err
	}

	logger.Info("Starting submission",
		"intent", files.Intent,
		"document", files.Document,
		"job_description_chars", len(jobDescription),
		"format", cmdConfig.OutputFormat)

	result, err := evaluator.Run(ctx, types.Submission{
		Intent:         files.Intent,
		Document:       document,
		DocumentName:   files.Document,
		JobDescription: jobDescription,
	})
	if err != nil {
		return err
	}

	if usage := result.TokenUsage; usage != nil {
		logger.Info("AI token usage",
			"prompt_tokens", usage.PromptTokens,
			"candidates_tokens", usage.CandidatesTokens,
			"total_tokens", usage.TotalTokens)
	}

	return outputHandler.HandleOutput(result, cmdConfig)
}
