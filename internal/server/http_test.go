package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"atsexpert/internal/ai"
	"atsexpert/internal/config"
	"atsexpert/internal/errors"
	"atsexpert/internal/pipeline"
	"atsexpert/internal/types"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEvaluator struct {
	mu     sync.Mutex
	calls  []types.Submission
	result *types.EvaluationResult
	err    error
}

func (f *fakeEvaluator) Run(_ context.Context, sub types.Submission) (*types.EvaluationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, sub)
	if f.err != nil {
		return nil, f.err
	}
	result := *f.result
	result.Intent = sub.Intent
	return &result, nil
}

func (f *fakeEvaluator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeHealth struct {
	info *ai.ModelInfo
}

func (f *fakeHealth) GetModelInfo(context.Context) *ai.ModelInfo { return f.info }

func (f *fakeHealth) CircuitBreakerStats() map[string]any {
	return map[string]any{"state": "closed"}
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Host: "127.0.0.1",
			Port: "0",
			TLS:  config.TLSConfig{Mode: "disabled"},
		},
		App: config.AppConfig{MaxUploadSize: config.DefaultMaxUploadSize},
	}
}

func newTestServer(cfg *config.Config, eval Evaluator) *Server {
	return NewServer(cfg, Dependencies{
		Version:   "test",
		Evaluator: eval,
		Health:    &fakeHealth{info: &ai.ModelInfo{Name: "gemini-1.5-flash", Available: true}},
	}, errors.Discard())
}

func okEvaluator() *fakeEvaluator {
	return &fakeEvaluator{result: &types.EvaluationResult{
		SubmissionID:   "0190b6f2-0000-7000-8000-000000000001",
		Text:           "Strong Go background.",
		Model:          "gemini-1.5-flash",
		ElapsedSeconds: 2.47,
	}}
}

// multipartBody builds a form. A nil document omits the file part.
func multipartBody(t *testing.T, document []byte, jobDescription string, intents ...string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)

	require.NoError(t, mw.WriteField(fieldJobDescription, jobDescription))
	for _, intent := range intents {
		require.NoError(t, mw.WriteField(fieldIntent, intent))
	}
	if document != nil {
		fw, err := mw.CreateFormFile(fieldResume, "resume.pdf")
		require.NoError(t, err)
		_, err = fw.Write(document)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return body, mw.FormDataContentType()
}

func postForm(t *testing.T, h http.Handler, path string, document []byte, job string, intents ...string) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartBody(t, document, job, intents...)
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestFormRendersBothActions(t *testing.T) {
	s := newTestServer(testConfig(), okEvaluator())

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), `value="evaluation"`)
	assert.Contains(t, rec.Body.String(), `value="ats_scoring"`)
	assert.Contains(t, rec.Body.String(), "up to 100MB")
	assert.Contains(t, rec.Body.String(), "<title>ATS Resume Expert</title>")
	assert.Contains(t, rec.Body.String(), "<h1>ATS Resume Expert</h1>")
}

func TestFormShowsSubMegabyteLimit(t *testing.T) {
	cfg := testConfig()
	cfg.App.MaxUploadSize = 512 << 10
	s := newTestServer(cfg, okEvaluator())

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Contains(t, rec.Body.String(), "up to 512KB")
	assert.NotContains(t, rec.Body.String(), "0MB")
}

func TestFormSubmitShowsResult(t *testing.T) {
	tests := []struct {
		intent string
		title  string
	}{
		{"evaluation", "Resume Evaluation"},
		{"ats_scoring", "ATS Match Score &amp; Analysis"},
	}

	for _, tt := range tests {
		t.Run(tt.intent, func(t *testing.T) {
			eval := okEvaluator()
			s := newTestServer(testConfig(), eval)

			rec := postForm(t, s.Handler(), "/", []byte("%PDF-1.4"), "Senior Go engineer", tt.intent)

			require.Equal(t, http.StatusOK, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.title)
			assert.Contains(t, rec.Body.String(), "Strong Go background.")
			assert.Contains(t, rec.Body.String(), "2.47 seconds")
			// The job description survives the round trip
			assert.Contains(t, rec.Body.String(), "Senior Go engineer")

			require.Equal(t, 1, eval.callCount())
			sub := eval.calls[0]
			assert.Equal(t, types.Intent(tt.intent), sub.Intent)
			assert.Equal(t, []byte("%PDF-1.4"), sub.Document)
			assert.Equal(t, "resume.pdf", sub.DocumentName)
		})
	}
}

func TestFormSubmitRejectsIntentCombinations(t *testing.T) {
	tests := []struct {
		name    string
		intents []string
	}{
		{"both", []string{"evaluation", "ats_scoring"}},
		{"none", nil},
		{"unknown", []string{"summarize"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eval := okEvaluator()
			s := newTestServer(testConfig(), eval)

			rec := postForm(t, s.Handler(), "/", []byte("%PDF-1.4"), "", tt.intents...)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), "Choose exactly one action")
			assert.Equal(t, 0, eval.callCount())
		})
	}
}

func TestFormSubmitWithoutDocumentPassesNil(t *testing.T) {
	eval := &fakeEvaluator{err: errors.MissingInput()}
	s := newTestServer(testConfig(), eval)

	rec := postForm(t, s.Handler(), "/", nil, "job", "evaluation")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Please upload the resume")
	require.Equal(t, 1, eval.callCount())
	assert.Nil(t, eval.calls[0].Document)
}

func TestFormSubmitEmptyUploadIsNotMissing(t *testing.T) {
	eval := okEvaluator()
	s := newTestServer(testConfig(), eval)

	postForm(t, s.Handler(), "/", []byte{}, "", "evaluation")

	require.Equal(t, 1, eval.callCount())
	assert.NotNil(t, eval.calls[0].Document)
	assert.Empty(t, eval.calls[0].Document)
}

func TestAPIEvaluateReturnsJSON(t *testing.T) {
	eval := okEvaluator()
	s := newTestServer(testConfig(), eval)

	rec := postForm(t, s.Handler(), "/api/v1/ats-score", []byte("%PDF-1.4"), "Data engineer")

	require.Equal(t, http.StatusOK, rec.Code)
	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "ats_scoring", got["intent"])
	assert.Equal(t, "Strong Go background.", got["result"])
	assert.Equal(t, 2.47, got["elapsed_seconds"])
	assert.Equal(t, "0190b6f2-0000-7000-8000-000000000001", got["submission_id"])

	require.Equal(t, 1, eval.callCount())
	assert.Equal(t, "Data engineer", eval.calls[0].JobDescription)
}

func TestAPIRouteFixesIntent(t *testing.T) {
	eval := okEvaluator()
	s := newTestServer(testConfig(), eval)

	// The intent field is ignored on the API routes
	rec := postForm(t, s.Handler(), "/api/v1/evaluate", []byte("%PDF-1.4"), "", "ats_scoring", "evaluation")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, types.IntentEvaluation, eval.calls[0].Intent)
}

func TestAPIErrorStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"missing", errors.MissingInput(), http.StatusBadRequest, errors.ErrCodeMissingInput},
		{"oversize", errors.Oversize(200<<20, 100<<20), http.StatusRequestEntityTooLarge, errors.ErrCodeOversizeUpload},
		{"conversion", errors.Conversion("document has no pages", nil), http.StatusUnprocessableEntity, errors.ErrCodeConversionFailed},
		{"timeout", errors.Timeout("no response", context.DeadlineExceeded), http.StatusGatewayTimeout, errors.ErrCodeAITimeout},
		{"request", errors.Request("quota exceeded", nil), http.StatusBadGateway, errors.ErrCodeAIRequestFailed},
		{"breaker open", errors.Request("circuit open", gobreaker.ErrOpenState), http.StatusServiceUnavailable, errors.ErrCodeAIRequestFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(testConfig(), &fakeEvaluator{err: tt.err})

			rec := postForm(t, s.Handler(), "/api/v1/evaluate", []byte("%PDF-1.4"), "")

			assert.Equal(t, tt.status, rec.Code)
			var got ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			assert.Equal(t, tt.code, got.Error)
			assert.Equal(t, errors.UserMessage(tt.err), got.Message)
		})
	}
}

func TestAPIRejectsNonMultipart(t *testing.T) {
	eval := okEvaluator()
	s := newTestServer(testConfig(), eval)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/evaluate", strings.NewReader(`{"resume":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, eval.callCount())
}

type countingRasterizer struct {
	calls int
}

func (c *countingRasterizer) Rasterize(context.Context, []byte) ([]types.ImagePart, error) {
	c.calls++
	return []types.ImagePart{{MimeType: "image/jpeg", Data: "/9j/"}}, nil
}

type staticRequester struct{}

func (staticRequester) Evaluate(context.Context, types.Intent, string, []types.ImagePart, string) (*ai.Response, error) {
	return &ai.Response{Text: "ok", Elapsed: time.Second}, nil
}

func TestOversizeUploadNeverReachesRasterizer(t *testing.T) {
	cfg := testConfig()
	cfg.App.MaxUploadSize = 1024

	raster := &countingRasterizer{}
	p := pipeline.New(raster, staticRequester{}, pipeline.Options{MaxUploadSize: cfg.App.MaxUploadSize})
	s := newTestServer(cfg, p)

	rec := postForm(t, s.Handler(), "/api/v1/evaluate", bytes.Repeat([]byte("x"), 1025), "")
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, 0, raster.calls)

	rec = postForm(t, s.Handler(), "/api/v1/evaluate", bytes.Repeat([]byte("x"), 1024), "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, raster.calls)
}

func TestBodyBeyondRequestLimitIsOversize(t *testing.T) {
	cfg := testConfig()
	cfg.App.MaxUploadSize = 1024
	eval := okEvaluator()
	s := newTestServer(cfg, eval)

	rec := postForm(t, s.Handler(), "/api/v1/evaluate", bytes.Repeat([]byte("x"), multipartOverhead+4096), "")

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, 0, eval.callCount())
}

func TestAPIAuthentication(t *testing.T) {
	cfg := testConfig()
	cfg.Server.APIKeys = []string{"secret-key-123"}
	eval := okEvaluator()
	s := newTestServer(cfg, eval)
	h := s.Handler()

	rec := postForm(t, h, "/api/v1/evaluate", []byte("%PDF-1.4"), "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	for _, header := range []struct{ name, value string }{
		{"X-API-Key", "secret-key-123"},
		{"Authorization", "Bearer secret-key-123"},
	} {
		body, contentType := multipartBody(t, []byte("%PDF-1.4"), "")
		req := httptest.NewRequest(http.MethodPost, "/api/v1/evaluate", body)
		req.Header.Set("Content-Type", contentType)
		req.Header.Set(header.name, header.value)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, header.name)
	}

	body, contentType := multipartBody(t, []byte("%PDF-1.4"), "")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/evaluate", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-API-Key", "wrong")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	assert.Equal(t, 2, eval.callCount())

	// The form is not behind API keys
	rec = postForm(t, h, "/", []byte("%PDF-1.4"), "", "evaluation")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimitRejectsBurst(t *testing.T) {
	cfg := testConfig()
	cfg.Server.RateLimit = config.RateLimitConfig{
		Enabled:        true,
		RequestsPerMin: 1,
		BurstCapacity:  1,
		ByIP:           true,
	}
	s := newTestServer(cfg, okEvaluator())
	defer s.RateLimiter.Close()
	h := s.Handler()

	rec := postForm(t, h, "/api/v1/evaluate", []byte("%PDF-1.4"), "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = postForm(t, h, "/api/v1/evaluate", []byte("%PDF-1.4"), "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// Health is never throttled
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name   string
		info   *ai.ModelInfo
		status int
		state  string
	}{
		{"available", &ai.ModelInfo{Name: "gemini-1.5-flash", Available: true}, http.StatusOK, "healthy"},
		{"unavailable", &ai.ModelInfo{Name: "gemini-1.5-flash", Error: "not found"}, http.StatusServiceUnavailable, "degraded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewServer(testConfig(), Dependencies{
				Version:   "1.2.3",
				Evaluator: okEvaluator(),
				Health:    &fakeHealth{info: tt.info},
			}, errors.Discard())

			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tt.status, rec.Code)
			var got map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			assert.Equal(t, tt.state, got["status"])
			assert.Equal(t, "1.2.3", got["version"])
			assert.Contains(t, got, "circuit_breaker")
		})
	}
}

func TestStats(t *testing.T) {
	cfg := testConfig()
	cfg.Server.APIKeys = []string{"a", "b"}
	s := newTestServer(cfg, okEvaluator())

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))

	auth, ok := got["auth"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, auth["enabled"])
	assert.Equal(t, float64(2), auth["key_count"])
	assert.Equal(t, float64(config.DefaultMaxUploadSize+multipartOverhead), got["max_request_size"])
}

func TestMethodNotAllowed(t *testing.T) {
	s := newTestServer(testConfig(), okEvaluator())

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/evaluate", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServeShutsDownOnCancel(t *testing.T) {
	s := newTestServer(testConfig(), okEvaluator())
	httpServer := s.newHTTPServer()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.serve(ctx, httpServer, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
