package observability

import (
	"context"
	"fmt"
	"time"

	"atsexpert/internal/types"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Submission outcomes
const (
	OutcomeDisplayed      = "displayed"
	OutcomeFailed         = "failed"
	OutcomeAwaitingUpload = "awaiting_upload"
)

// Metrics holds the application instruments. All record methods are safe
// on a nil *Metrics.
type Metrics struct {
	Submissions       metric.Int64Counter
	RasterizeDuration metric.Float64Histogram
	AIRequestDuration metric.Float64Histogram
	AITokens          metric.Int64Counter
	Errors            metric.Int64Counter
	RateLimitHits     metric.Int64Counter
	CertReloads       metric.Int64Counter
}

// NewMetrics creates every instrument on meter
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.Submissions, err = meter.Int64Counter(
		"atsexpert_submissions_total",
		metric.WithDescription("Submissions by intent and outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create submissions metric: %w", err)
	}

	m.RasterizeDuration, err = meter.Float64Histogram(
		"atsexpert_rasterize_duration_seconds",
		metric.WithDescription("Time spent rendering the first page"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create rasterize duration metric: %w", err)
	}

	m.AIRequestDuration, err = meter.Float64Histogram(
		"atsexpert_ai_request_duration_seconds",
		metric.WithDescription("Time spent waiting on the generative model"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create AI request duration metric: %w", err)
	}

	m.AITokens, err = meter.Int64Counter(
		"atsexpert_ai_tokens_total",
		metric.WithDescription("Tokens reported by the model"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create AI token metric: %w", err)
	}

	m.Errors, err = meter.Int64Counter(
		"atsexpert_errors_total",
		metric.WithDescription("Failed submissions by error code"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create errors metric: %w", err)
	}

	m.RateLimitHits, err = meter.Int64Counter(
		"atsexpert_rate_limit_hits_total",
		metric.WithDescription("Requests rejected by the rate limiter"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limit hits metric: %w", err)
	}

	m.CertReloads, err = meter.Int64Counter(
		"atsexpert_cert_reloads_total",
		metric.WithDescription("TLS certificate reloads"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create certificate reload metric: %w", err)
	}

	return m, nil
}

// RecordSubmission counts one finished submission
func (m *Metrics) RecordSubmission(ctx context.Context, intent types.Intent, outcome string) {
	if m == nil {
		return
	}
	m.Submissions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("intent", string(intent)),
		attribute.String("outcome", outcome),
	))
}

// RecordRasterize records how long rendering took
func (m *Metrics) RecordRasterize(ctx context.Context, d time.Duration, success bool) {
	if m == nil {
		return
	}
	m.RasterizeDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.Bool("success", success)))
}

// RecordAIRequest records the model call duration and token usage
func (m *Metrics) RecordAIRequest(ctx context.Context, intent types.Intent, d time.Duration, usage *types.TokenUsage, success bool) {
	if m == nil {
		return
	}
	m.AIRequestDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("intent", string(intent)),
		attribute.Bool("success", success),
	))

	if usage == nil {
		return
	}
	for _, tt := range []struct {
		tokenType string
		value     int
	}{
		{"prompt", usage.PromptTokens},
		{"candidates", usage.CandidatesTokens},
		{"total", usage.TotalTokens},
	} {
		m.AITokens.Add(ctx, int64(tt.value), metric.WithAttributes(attribute.String("type", tt.tokenType)))
	}
}

// RecordError counts a failure by its error code
func (m *Metrics) RecordError(ctx context.Context, code string) {
	if m == nil {
		return
	}
	if code == "" {
		code = "UNKNOWN"
	}
	m.Errors.Add(ctx, 1, metric.WithAttributes(attribute.String("code", code)))
}

// RecordRateLimitHit counts a throttled request
func (m *Metrics) RecordRateLimitHit(ctx context.Context, limitType string) {
	if m == nil {
		return
	}
	m.RateLimitHits.Add(ctx, 1, metric.WithAttributes(attribute.String("limit_type", limitType)))
}

// RecordCertReload counts a certificate reload attempt
func (m *Metrics) RecordCertReload(ctx context.Context, success bool) {
	if m == nil {
		return
	}
	m.CertReloads.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", success)))
}
