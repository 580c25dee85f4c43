// Package rasterizer turns the first page of an uploaded PDF into an inlined
// JPEG payload. Rendering is delegated to poppler's pdftoppm, fed through
// stdin and stdout so that nothing touches the disk.
package rasterizer

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os/exec"
	"strings"
	"time"

	"atsexpert/internal/errors"
	"atsexpert/internal/types"

	"github.com/ledongthuc/pdf"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	// MimeType of every payload produced here.
	MimeType = "image/jpeg"
	// JPEGQuality is the maximum quality accepted by image/jpeg.
	JPEGQuality = 100

	headerWindow = 1024
)

// Runner executes the rendering engine. stdin is piped to the process and
// its stdout is returned.
type Runner interface {
	Run(ctx context.Context, name string, args []string, stdin []byte) ([]byte, error)
}

// ExecRunner runs real processes.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args []string, stdin []byte) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = bytes.NewReader(stdin)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return stdout.Bytes(), nil
}

// Rasterizer renders page one of a document.
type Rasterizer struct {
	engine string
	runner Runner
	logger *errors.Logger
}

// New creates a Rasterizer running the pdftoppm executable at engine.
// A nil runner uses ExecRunner.
func New(engine string, runner Runner, logger *errors.Logger) *Rasterizer {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Rasterizer{engine: engine, runner: runner, logger: logger}
}

// Engine returns the executable this Rasterizer runs.
func (r *Rasterizer) Engine() string {
	return r.engine
}

// Rasterize returns a single-element list holding page one as a base64
// JPEG. A nil document yields a missing-input error; anything that cannot be
// read or rendered yields a conversion error.
func (r *Rasterizer) Rasterize(ctx context.Context, document []byte) ([]types.ImagePart, error) {
	if document == nil {
		return nil, errors.MissingInput()
	}

	ctx, span := otel.Tracer("atsexpert.rasterizer").Start(ctx, "rasterizer.rasterize")
	defer span.End()
	span.SetAttributes(attribute.Int("document.size_bytes", len(document)))

	parts, err := r.rasterize(ctx, document)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, errors.CodeOf(err))
		return nil, err
	}
	return parts, nil
}

func (r *Rasterizer) rasterize(ctx context.Context, document []byte) ([]types.ImagePart, error) {
	if len(document) == 0 {
		return nil, errors.Conversion("document is empty", nil)
	}
	if !hasPDFHeader(document) {
		return nil, errors.Conversion("document is not a PDF", fmt.Errorf("missing %%PDF- header"))
	}

	pages, err := CountPages(document)
	switch {
	case err != nil:
		// pdftoppm repairs damaged cross-reference tables that the Go
		// parser rejects, so it gets the final say.
		r.logger.Debug("PDF structure probe failed, deferring to renderer", "error", err.Error())
	case pages == 0:
		return nil, errors.Conversion("document has no pages", fmt.Errorf("page count is 0"))
	default:
		r.logger.Debug("PDF structure probed", "pages", pages)
	}

	start := time.Now()
	raw, err := r.runner.Run(ctx, r.engine, firstPageArgs(), document)
	if err != nil {
		return nil, errors.Conversion("failed to render first page", err).
			WithContext("engine", r.engine)
	}
	if len(raw) == 0 {
		return nil, errors.Conversion("renderer produced no image", fmt.Errorf("empty output from %s", r.engine))
	}

	img, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, errors.Conversion("failed to decode rendered page", err)
	}

	encoded, err := EncodeJPEG(img)
	if err != nil {
		return nil, errors.Conversion("failed to encode page as JPEG", err)
	}

	bounds := img.Bounds()
	r.logger.Debug("First page rasterized",
		"width", bounds.Dx(),
		"height", bounds.Dy(),
		"jpeg_bytes", len(encoded),
		"duration_ms", time.Since(start).Milliseconds())

	return []types.ImagePart{{
		MimeType: MimeType,
		Data:     base64.StdEncoding.EncodeToString(encoded),
	}}, nil
}

// firstPageArgs renders page one only, at the engine's default resolution,
// reading the document from stdin and writing PNG to stdout.
func firstPageArgs() []string {
	return []string{"-f", "1", "-l", "1", "-png", "-"}
}

// EncodeJPEG encodes img at JPEGQuality.
func EncodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// CountPages parses the document structure and returns its page count.
func CountPages(document []byte) (n int, err error) {
	// the parser panics on some malformed inputs
	defer func() {
		if rec := recover(); rec != nil {
			n, err = 0, fmt.Errorf("malformed PDF: %v", rec)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(document), int64(len(document)))
	if err != nil {
		return 0, err
	}
	return reader.NumPage(), nil
}

// hasPDFHeader looks for the %PDF- marker in the first KiB, where readers
// are required to accept it.
func hasPDFHeader(document []byte) bool {
	window := document
	if len(window) > headerWindow {
		window = window[:headerWindow]
	}
	return bytes.Contains(window, []byte("%PDF-"))
}
