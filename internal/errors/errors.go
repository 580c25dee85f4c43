package errors

import (
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeConversion ErrorType = "conversion"
	ErrorTypeIO         ErrorType = "io"
	ErrorTypeAI         ErrorType = "ai"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeInternal   ErrorType = "internal"
)

// AppError represents a structured application error
type AppError struct {
	Type    ErrorType      `json:"type"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Cause   error          `json:"cause,omitempty"`
	Context map[string]any `json:"context,omitempty"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func newAppError(typ ErrorType, code, message string, cause error) *AppError {
	return &AppError{
		Type:    typ,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func NewValidationError(code, message string, cause error) *AppError {
	return newAppError(ErrorTypeValidation, code, message, cause)
}

func NewConversionError(code, message string, cause error) *AppError {
	return newAppError(ErrorTypeConversion, code, message, cause)
}

func NewIOError(code, message string, cause error) *AppError {
	return newAppError(ErrorTypeIO, code, message, cause)
}

func NewAIError(code, message string, cause error) *AppError {
	return newAppError(ErrorTypeAI, code, message, cause)
}

func NewConfigError(code, message string, cause error) *AppError {
	return newAppError(ErrorTypeConfig, code, message, cause)
}

func NewInternalError(code, message string, cause error) *AppError {
	return newAppError(ErrorTypeInternal, code, message, cause)
}

// WithContext adds context to an error
func (e *AppError) WithContext(key string, value any) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// Submission failure constructors. Each one is terminal for the submission
// that produced it.

// MissingInput reports that no document was supplied.
func MissingInput() *AppError {
	return NewValidationError(ErrCodeMissingInput, "no document supplied", nil)
}

// Oversize reports a document above the upload ceiling.
func Oversize(size, limit int64) *AppError {
	return NewValidationError(ErrCodeOversizeUpload,
		fmt.Sprintf("document is %d bytes, limit is %d bytes", size, limit), nil).
		WithContext("size_bytes", size).
		WithContext("limit_bytes", limit)
}

// Conversion reports a document that could not be read or rendered.
func Conversion(message string, cause error) *AppError {
	return NewConversionError(ErrCodeConversionFailed, message, cause)
}

// Timeout reports a generative call that exceeded its deadline.
func Timeout(message string, cause error) *AppError {
	return NewAIError(ErrCodeAITimeout, message, cause)
}

// Request reports any other generative call failure.
func Request(message string, cause error) *AppError {
	return NewAIError(ErrCodeAIRequestFailed, message, cause)
}

// CodeOf returns the code of the first AppError in err's chain, or "".
func CodeOf(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// HasCode reports whether err carries an AppError with the given code.
func HasCode(err error, code string) bool {
	return err != nil && CodeOf(err) == code
}

// SizeLabel renders an upload ceiling as a whole number of MB, KB or bytes.
// Partial units round down so the label never promises more than the limit.
func SizeLabel(limit int64) string {
	switch {
	case limit >= 1<<20 && limit%(1<<20) == 0:
		return fmt.Sprintf("%dMB", limit>>20)
	case limit >= 1<<10:
		return fmt.Sprintf("%dKB", limit>>10)
	default:
		return fmt.Sprintf("%d bytes", limit)
	}
}

// UserMessage turns err into the short message shown in place of a result.
func UserMessage(err error) string {
	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		return "Something went wrong: " + err.Error()
	}

	switch appErr.Code {
	case ErrCodeMissingInput:
		return "Please upload the resume"
	case ErrCodeOversizeUpload:
		limit, _ := appErr.Context["limit_bytes"].(int64)
		if limit <= 0 {
			limit = 100 << 20
		}
		return fmt.Sprintf("File too large! Please upload a resume smaller than %s.", SizeLabel(limit))
	case ErrCodeConversionFailed:
		return "Error processing PDF: " + causeText(appErr)
	case ErrCodeAITimeout:
		return "Gemini API timeout: " + causeText(appErr)
	case ErrCodeAIRequestFailed:
		return "Gemini API error: " + causeText(appErr)
	case ErrCodeInvalidIntent:
		return "Choose exactly one action: resume evaluation or ATS score"
	default:
		return appErr.Message
	}
}

func causeText(e *AppError) string {
	if e.Cause != nil {
		return e.Cause.Error()
	}
	return e.Message
}

// Logger wraps slog with application-specific methods
type Logger struct {
	logger *slog.Logger
}

// NewLogger creates a new structured logger writing JSON to stderr, keeping
// stdout free for command output
func NewLogger(level slog.Level) *Logger {
	return NewLoggerTo(os.Stderr, level)
}

// NewLoggerTo creates a structured logger writing JSON to w
func NewLoggerTo(w io.Writer, level slog.Level) *Logger {
	opts := &slog.HandlerOptions{
		Level: level,
	}

	handler := slog.NewJSONHandler(w, opts)
	return &Logger{logger: slog.New(handler)}
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return NewLoggerTo(io.Discard, slog.LevelError)
}

// With returns a logger that adds args to every record.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{logger: l.logger.With(args...)}
}

// LogError logs an application error with appropriate level and context
func (l *Logger) LogError(err error, message string, args ...any) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		logArgs := []any{
			"error_type", appErr.Type,
			"error_code", appErr.Code,
			"error_message", appErr.Message,
		}
		if appErr.Cause != nil {
			logArgs = append(logArgs, "error_cause", appErr.Cause.Error())
		}

		for key, value := range appErr.Context {
			logArgs = append(logArgs, key, value)
		}

		logArgs = append(logArgs, args...)

		l.logger.Error(message, logArgs...)
	} else {
		logArgs := append([]any{"error", err.Error()}, args...)
		l.logger.Error(message, logArgs...)
	}
}

func (l *Logger) Info(message string, args ...any) {
	l.logger.Info(message, args...)
}

func (l *Logger) Debug(message string, args ...any) {
	l.logger.Debug(message, args...)
}

func (l *Logger) Warn(message string, args ...any) {
	l.logger.Warn(message, args...)
}

// New creates a new logger instance
func New(level string) (*Logger, error) {
	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "info":
		slogLevel = slog.LevelInfo
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		return nil, fmt.Errorf("invalid log level: %s", level)
	}

	return NewLogger(slogLevel), nil
}

// Common error codes
const (
	ErrCodeMissingInput     = "MISSING_INPUT"
	ErrCodeOversizeUpload   = "OVERSIZE_UPLOAD"
	ErrCodeConversionFailed = "CONVERSION_FAILED"
	ErrCodeAITimeout        = "AI_TIMEOUT"
	ErrCodeAIRequestFailed  = "AI_REQUEST_FAILED"
	ErrCodeInvalidIntent    = "INVALID_INTENT"
	ErrCodeFileNotFound     = "FILE_NOT_FOUND"
	ErrCodeFileNotReadable  = "FILE_NOT_READABLE"
	ErrCodeInvalidFormat    = "INVALID_FORMAT"
	ErrCodeInvalidRequest   = "INVALID_REQUEST"
	ErrCodeMissingAPIKey    = "MISSING_API_KEY"
	ErrCodeInvalidConfig    = "INVALID_CONFIG"
)
