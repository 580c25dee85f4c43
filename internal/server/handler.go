package server

import (
	"bytes"
	"embed"
	stderrors "errors"
	"fmt"
	"html/template"
	"io"
	"mime/multipart"
	"net/http"

	"atsexpert/internal/ai"
	"atsexpert/internal/errors"
	"atsexpert/internal/types"

	"go.opentelemetry.io/otel/attribute"
)

//go:embed templates/index.html
var templateFS embed.FS

var pageTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

// Form field names shared by the page and the API
const (
	fieldResume         = "resume"
	fieldJobDescription = "job_description"
	fieldIntent         = "intent"
)

// pageData feeds templates/index.html
type pageData struct {
	JobDescription string
	MaxUpload      string
	Result         *types.EvaluationResult
	Error          string
}

// formHandler renders the empty form
func (s *Server) formHandler(w http.ResponseWriter, r *http.Request) {
	s.renderPage(w, http.StatusOK, pageData{})
}

// formSubmitHandler handles one press of either form button
func (s *Server) formSubmitHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.Observability.Tracer("atsexpert.server").Start(r.Context(), "server.form_submit")
	defer span.End()

	sub, err := s.parseSubmission(r, "")
	if err != nil {
		span.RecordError(err)
		s.renderPage(w, statusFor(err), pageData{
			JobDescription: sub.JobDescription,
			Error:          errors.UserMessage(err),
		})
		return
	}
	span.SetAttributes(attribute.String("submission.intent", string(sub.Intent)))

	result, err := s.Evaluator.Run(ctx, sub)
	if err != nil {
		span.RecordError(err)
		s.renderPage(w, statusFor(err), pageData{
			JobDescription: sub.JobDescription,
			Error:          errors.UserMessage(err),
		})
		return
	}

	s.renderPage(w, http.StatusOK, pageData{
		JobDescription: sub.JobDescription,
		Result:         result,
	})
}

// apiHandler returns the JSON handler for a route bound to intent
func (s *Server) apiHandler(intent types.Intent) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := s.Observability.Tracer("atsexpert.server").Start(r.Context(), "api."+string(intent))
		defer span.End()

		sub, err := s.parseSubmission(r, intent)
		if err != nil {
			span.RecordError(err)
			s.writeAppError(w, err)
			return
		}

		result, err := s.Evaluator.Run(ctx, sub)
		if err != nil {
			span.RecordError(err)
			s.writeAppError(w, err)
			return
		}

		span.SetAttributes(
			attribute.String("submission.id", result.SubmissionID),
			attribute.Float64("elapsed_seconds", result.ElapsedSeconds),
		)
		writeJSON(w, http.StatusOK, result)
	}
}

// parseSubmission reads the multipart body. A fixed intent ignores the
// intent field; otherwise exactly one intent value must be present. The
// size check on the document itself is left to the pipeline.
func (s *Server) parseSubmission(r *http.Request, fixed types.Intent) (types.Submission, error) {
	var sub types.Submission

	if s.MaxRequestSize > 0 && r.ContentLength > s.MaxRequestSize {
		return sub, errors.Oversize(r.ContentLength, s.MaxUploadSize)
	}
	if err := r.ParseMultipartForm(s.MaxRequestSize); err != nil {
		var maxErr *http.MaxBytesError
		if stderrors.As(err, &maxErr) {
			return sub, errors.Oversize(r.ContentLength, s.MaxUploadSize)
		}
		return sub, errors.NewValidationError(errors.ErrCodeInvalidRequest,
			"request must be multipart/form-data", err)
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	sub.JobDescription = r.FormValue(fieldJobDescription)

	if fixed != "" {
		sub.Intent = fixed
	} else {
		intent, err := parseIntentField(r.MultipartForm.Value[fieldIntent])
		if err != nil {
			return sub, err
		}
		sub.Intent = intent
	}

	file, header, err := r.FormFile(fieldResume)
	if stderrors.Is(err, http.ErrMissingFile) {
		return sub, nil
	}
	if err != nil {
		return sub, errors.NewValidationError(errors.ErrCodeInvalidRequest, "could not read uploaded file", err)
	}
	defer file.Close()

	document, err := readUpload(file)
	if err != nil {
		return sub, errors.NewIOError(errors.ErrCodeFileNotReadable, "could not read uploaded file", err)
	}
	sub.Document = document
	sub.DocumentName = header.Filename
	return sub, nil
}

func parseIntentField(values []string) (types.Intent, error) {
	if len(values) != 1 {
		return "", errors.NewValidationError(errors.ErrCodeInvalidIntent,
			fmt.Sprintf("expected exactly one intent, got %d", len(values)), nil)
	}
	intent, err := types.ParseIntent(values[0])
	if err != nil {
		return "", errors.NewValidationError(errors.ErrCodeInvalidIntent, err.Error(), err)
	}
	return intent, nil
}

// readUpload returns the file contents as a non-nil slice, so that an empty
// upload is distinguishable from no upload.
func readUpload(file multipart.File) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, file); err != nil {
		return nil, err
	}
	if buf.Len() == 0 {
		return []byte{}, nil
	}
	return buf.Bytes(), nil
}

func (s *Server) renderPage(w http.ResponseWriter, status int, data pageData) {
	data.MaxUpload = errors.SizeLabel(s.MaxUploadSize)

	var buf bytes.Buffer
	if err := s.page.Execute(&buf, data); err != nil {
		s.Logger.LogError(err, "Failed to render page")
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// statusFor maps a submission failure to an HTTP status
func statusFor(err error) int {
	switch errors.CodeOf(err) {
	case errors.ErrCodeMissingInput, errors.ErrCodeInvalidIntent, errors.ErrCodeInvalidRequest:
		return http.StatusBadRequest
	case errors.ErrCodeOversizeUpload:
		return http.StatusRequestEntityTooLarge
	case errors.ErrCodeConversionFailed, errors.ErrCodeFileNotReadable:
		return http.StatusUnprocessableEntity
	case errors.ErrCodeAITimeout:
		return http.StatusGatewayTimeout
	case errors.ErrCodeAIRequestFailed:
		if ai.IsRejection(err) {
			return http.StatusServiceUnavailable
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeAppError(w http.ResponseWriter, err error) {
	code := errors.CodeOf(err)
	if code == "" {
		code = "INTERNAL_ERROR"
	}
	writeErrorResponse(w, code, errors.UserMessage(err), statusFor(err))
}
