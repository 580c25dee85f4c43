// Package pipeline runs one submission through rasterization and the model
// call. Every call to Run is independent; a Pipeline holds only read-only
// collaborators and may be shared between goroutines.
package pipeline

import (
	"context"
	"math"
	"time"

	"atsexpert/internal/ai"
	"atsexpert/internal/errors"
	"atsexpert/internal/observability"
	"atsexpert/internal/types"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Rasterizer renders the first page of a document.
type Rasterizer interface {
	Rasterize(ctx context.Context, document []byte) ([]types.ImagePart, error)
}

// Requester sends the page image, prompt and job description to the model.
type Requester interface {
	Evaluate(ctx context.Context, intent types.Intent, prompt string, images []types.ImagePart, jobDescription string) (*ai.Response, error)
}

// Pipeline wires a Rasterizer to a Requester.
type Pipeline struct {
	rasterizer    Rasterizer
	requester     Requester
	prompts       ai.Prompts
	maxUploadSize int64
	metrics       *observability.Metrics
	logger        *errors.Logger
}

// Options configures a Pipeline. Metrics may be nil.
type Options struct {
	Prompts       ai.Prompts
	MaxUploadSize int64
	Metrics       *observability.Metrics
	Logger        *errors.Logger
}

// New creates a Pipeline.
func New(rasterizer Rasterizer, requester Requester, opts Options) *Pipeline {
	if opts.Logger == nil {
		opts.Logger = errors.Discard()
	}
	if opts.Prompts == (ai.Prompts{}) {
		opts.Prompts = ai.DefaultPrompts()
	}
	return &Pipeline{
		rasterizer:    rasterizer,
		requester:     requester,
		prompts:       opts.Prompts,
		maxUploadSize: opts.MaxUploadSize,
		metrics:       opts.Metrics,
		logger:        opts.Logger,
	}
}

// MaxUploadSize returns the upload ceiling in bytes. Zero means unlimited.
func (p *Pipeline) MaxUploadSize() int64 {
	return p.maxUploadSize
}

// Run processes sub and returns the text to display. The returned error is
// always an *errors.AppError and is terminal for the submission.
func (p *Pipeline) Run(ctx context.Context, sub types.Submission) (*types.EvaluationResult, error) {
	if sub.ID == "" {
		sub.ID = newSubmissionID()
	}

	ctx, span := otel.Tracer("atsexpert.pipeline").Start(ctx, "pipeline.run")
	defer span.End()
	span.SetAttributes(
		attribute.String("submission.id", sub.ID),
		attribute.String("submission.intent", string(sub.Intent)),
		attribute.Int("document.size_bytes", len(sub.Document)),
	)

	t := &tracker{id: sub.ID, stage: types.StageIdle, logger: p.logger}
	result, err := p.run(ctx, sub, t)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, errors.CodeOf(err))
		p.metrics.RecordError(ctx, errors.CodeOf(err))

		outcome := observability.OutcomeFailed
		if t.stage == types.StageAwaitingUpload {
			outcome = observability.OutcomeAwaitingUpload
		}
		p.metrics.RecordSubmission(ctx, sub.Intent, outcome)
		return nil, err
	}

	p.metrics.RecordSubmission(ctx, sub.Intent, observability.OutcomeDisplayed)
	return result, nil
}

func (p *Pipeline) run(ctx context.Context, sub types.Submission, t *tracker) (*types.EvaluationResult, error) {
	prompt, err := p.prompts.For(sub.Intent)
	if err != nil {
		t.fail(err)
		return nil, errors.NewValidationError(errors.ErrCodeInvalidIntent,
			"exactly one of evaluation or ats_scoring must be selected", err)
	}

	if !sub.HasDocument() {
		err := errors.MissingInput()
		t.to(types.StageAwaitingUpload)
		return nil, err
	}

	if size := int64(len(sub.Document)); p.maxUploadSize > 0 && size > p.maxUploadSize {
		err := errors.Oversize(size, p.maxUploadSize)
		t.fail(err)
		return nil, err
	}

	t.to(types.StageRasterizing)
	start := time.Now()
	images, err := p.rasterizer.Rasterize(ctx, sub.Document)
	p.metrics.RecordRasterize(ctx, time.Since(start), err == nil)
	if err != nil {
		t.fail(err)
		return nil, err
	}

	t.to(types.StageRequesting)
	start = time.Now()
	resp, err := p.requester.Evaluate(ctx, sub.Intent, prompt, images, sub.JobDescription)
	if err != nil {
		p.metrics.RecordAIRequest(ctx, sub.Intent, time.Since(start), nil, false)
		t.fail(err)
		return nil, err
	}
	p.metrics.RecordAIRequest(ctx, sub.Intent, resp.Elapsed, resp.TokenUsage, true)

	t.to(types.StageDisplaying)
	return &types.EvaluationResult{
		SubmissionID:   sub.ID,
		Intent:         sub.Intent,
		Text:           resp.Text,
		Model:          resp.Model,
		ElapsedSeconds: roundSeconds(resp.Elapsed),
		TokenUsage:     resp.TokenUsage,
	}, nil
}

// StageOf returns the terminal stage a failed submission ended in.
func StageOf(err error) types.Stage {
	switch {
	case err == nil:
		return types.StageDisplaying
	case errors.HasCode(err, errors.ErrCodeMissingInput):
		return types.StageAwaitingUpload
	default:
		return types.StageFailed
	}
}

// tracker logs stage transitions for one submission.
type tracker struct {
	id     string
	stage  types.Stage
	logger *errors.Logger
}

func (t *tracker) to(next types.Stage) {
	t.logger.Debug("submission stage",
		"submission_id", t.id,
		"from", t.stage,
		"to", next)
	t.stage = next
}

func (t *tracker) fail(err error) {
	t.logger.LogError(err, "submission failed",
		"submission_id", t.id,
		"stage", t.stage)
	t.to(types.StageFailed)
}

func newSubmissionID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func roundSeconds(d time.Duration) float64 {
	return math.Round(d.Seconds()*100) / 100
}
