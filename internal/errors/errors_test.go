package errors

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"missing input", MissingInput(), "Please upload the resume"},
		{"oversize", Oversize(200<<20, 100<<20), "File too large! Please upload a resume smaller than 100MB."},
		{"oversize under a megabyte", Oversize(2048, 512<<10), "File too large! Please upload a resume smaller than 512KB."},
		{"oversize without limit", NewValidationError(ErrCodeOversizeUpload, "too big", nil), "File too large! Please upload a resume smaller than 100MB."},
		{"conversion", Conversion("render failed", stderrors.New("syntax error")), "Error processing PDF: syntax error"},
		{"timeout", Timeout("deadline", stderrors.New("context deadline exceeded")), "Gemini API timeout: context deadline exceeded"},
		{"request", Request("call failed", stderrors.New("403 forbidden")), "Gemini API error: 403 forbidden"},
		{"plain error", stderrors.New("boom"), "Something went wrong: boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, UserMessage(tt.err))
		})
	}
}

func TestHasCodeThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("stage failed: %w", Conversion("zero pages", nil))

	assert.True(t, HasCode(wrapped, ErrCodeConversionFailed))
	assert.False(t, HasCode(wrapped, ErrCodeAITimeout))
	assert.False(t, HasCode(nil, ErrCodeConversionFailed))
	assert.Equal(t, "", CodeOf(stderrors.New("plain")))
}

func TestSizeLabel(t *testing.T) {
	tests := []struct {
		limit int64
		want  string
	}{
		{100 << 20, "100MB"},
		{1 << 20, "1MB"},
		{3<<20 + 1<<19, "3584KB"},
		{512 << 10, "512KB"},
		{1500, "1KB"},
		{16, "16 bytes"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SizeLabel(tt.limit))
	}
}

func TestOversizeContext(t *testing.T) {
	err := Oversize(10, 5)

	assert.Equal(t, ErrorTypeValidation, err.Type)
	assert.Equal(t, int64(10), err.Context["size_bytes"])
	assert.Equal(t, int64(5), err.Context["limit_bytes"])
}

func TestLogErrorExpandsAppError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, slog.LevelDebug)

	logger.LogError(Request("call failed", stderrors.New("503")), "submission failed", "submission_id", "abc")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "submission failed", record["msg"])
	assert.Equal(t, "ai", record["error_type"])
	assert.Equal(t, ErrCodeAIRequestFailed, record["error_code"])
	assert.Equal(t, "503", record["error_cause"])
	assert.Equal(t, "abc", record["submission_id"])
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New("verbose")
	assert.Error(t, err)

	logger, err := New("warn")
	require.NoError(t, err)
	assert.NotNil(t, logger)
}
