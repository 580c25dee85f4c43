package rasterizer

import (
	"bytes"
	"context"
	"encoding/base64"
	stderrors "errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os/exec"
	"strings"
	"testing"

	"atsexpert/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	calls  int
	name   string
	args   []string
	stdin  []byte
	output []byte
	err    error
}

func (f *fakeRunner) Run(_ context.Context, name string, args []string, stdin []byte) ([]byte, error) {
	f.calls++
	f.name = name
	f.args = args
	f.stdin = stdin
	return f.output, f.err
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 10), G: uint8(y * 10), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// buildPDF writes a minimal document with one blank page per media box and a
// correct cross-reference table.
func buildPDF(mediaBoxes ...[2]int) []byte {
	var buf bytes.Buffer
	var offsets []int

	buf.WriteString("%PDF-1.4\n")
	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	kids := make([]string, len(mediaBoxes))
	for i := range mediaBoxes {
		kids[i] = fmt.Sprintf("%d 0 R", i+3)
	}
	obj("<< /Type /Catalog /Pages 2 0 R >>")
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(mediaBoxes)))
	for _, box := range mediaBoxes {
		obj(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %d %d] >>", box[0], box[1]))
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(offsets)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}

func TestRasterizeFirstPageOnly(t *testing.T) {
	doc := buildPDF([2]int{200, 100}, [2]int{100, 300}, [2]int{50, 50})
	runner := &fakeRunner{output: pngBytes(t, 8, 4)}
	r := New("/usr/bin/pdftoppm", runner, errors.Discard())

	parts, err := r.Rasterize(context.Background(), doc)
	require.NoError(t, err)

	assert.Equal(t, 1, runner.calls)
	assert.Equal(t, "/usr/bin/pdftoppm", runner.name)
	assert.Equal(t, []string{"-f", "1", "-l", "1", "-png", "-"}, runner.args)
	assert.Equal(t, doc, runner.stdin)

	require.Len(t, parts, 1)
	assert.Equal(t, "image/jpeg", parts[0].MimeType)

	raw, err := base64.StdEncoding.DecodeString(parts[0].Data)
	require.NoError(t, err)
	img, err := jpeg.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 8, 4), img.Bounds())
}

func TestRasterizePayloadRoundTrip(t *testing.T) {
	runner := &fakeRunner{output: pngBytes(t, 5, 5)}
	r := New("pdftoppm", runner, errors.Discard())

	parts, err := r.Rasterize(context.Background(), buildPDF([2]int{100, 100}))
	require.NoError(t, err)

	raw, err := parts[0].Bytes()
	require.NoError(t, err)
	assert.Equal(t, parts[0].Data, base64.StdEncoding.EncodeToString(raw))
}

func TestRasterizeMissingInput(t *testing.T) {
	runner := &fakeRunner{}
	r := New("pdftoppm", runner, errors.Discard())

	_, err := r.Rasterize(context.Background(), nil)

	assert.True(t, errors.HasCode(err, errors.ErrCodeMissingInput))
	assert.Equal(t, 0, runner.calls)
}

func TestRasterizeConversionFailures(t *testing.T) {
	tests := []struct {
		name       string
		document   []byte
		runner     *fakeRunner
		wantCalled bool
	}{
		{name: "empty document", document: []byte{}, runner: &fakeRunner{}},
		{name: "not a pdf", document: []byte("PK\x03\x04 this is a zip"), runner: &fakeRunner{}},
		{name: "zero pages", document: buildPDF(), runner: &fakeRunner{}},
		{
			name:       "renderer fails",
			document:   []byte("%PDF-1.7\ngarbage"),
			runner:     &fakeRunner{err: stderrors.New("Syntax Error: Couldn't find trailer dictionary")},
			wantCalled: true,
		},
		{
			name:       "renderer prints nothing",
			document:   []byte("%PDF-1.7\ngarbage"),
			runner:     &fakeRunner{},
			wantCalled: true,
		},
		{
			name:       "renderer prints junk",
			document:   []byte("%PDF-1.7\ngarbage"),
			runner:     &fakeRunner{output: []byte("not an image")},
			wantCalled: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New("pdftoppm", tt.runner, errors.Discard())

			parts, err := r.Rasterize(context.Background(), tt.document)

			assert.Nil(t, parts)
			assert.True(t, errors.HasCode(err, errors.ErrCodeConversionFailed), "got %v", err)
			assert.Equal(t, tt.wantCalled, tt.runner.calls == 1)
		})
	}
}

func TestRasterizeRendererErrorIsCause(t *testing.T) {
	cause := stderrors.New("exit status 1: May not be a PDF file")
	r := New("pdftoppm", &fakeRunner{err: cause}, errors.Discard())

	_, err := r.Rasterize(context.Background(), []byte("%PDF-1.4\n"))

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, errors.UserMessage(err), "May not be a PDF file")
}

func TestCountPages(t *testing.T) {
	n, err := CountPages(buildPDF([2]int{10, 10}, [2]int{20, 20}, [2]int{30, 30}))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = CountPages(buildPDF())
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = CountPages([]byte("%PDF-1.4\nnot really"))
	assert.Error(t, err)
}

func TestHasPDFHeader(t *testing.T) {
	assert.True(t, hasPDFHeader([]byte("%PDF-1.7\n")))
	assert.True(t, hasPDFHeader(append(bytes.Repeat([]byte{' '}, 100), []byte("%PDF-1.4")...)))
	assert.False(t, hasPDFHeader(append(bytes.Repeat([]byte{' '}, 2000), []byte("%PDF-1.4")...)))
	assert.False(t, hasPDFHeader([]byte("hello")))
}

// Exercises the real poppler binary when it is installed.
func TestRasterizeWithPoppler(t *testing.T) {
	engine, err := exec.LookPath("pdftoppm")
	if err != nil {
		t.Skip("pdftoppm not installed")
	}

	// Page one is landscape, page two portrait.
	doc := buildPDF([2]int{200, 100}, [2]int{100, 300})
	r := New(engine, nil, errors.Discard())

	parts, err := r.Rasterize(context.Background(), doc)
	require.NoError(t, err)
	require.Len(t, parts, 1)

	raw, err := parts[0].Bytes()
	require.NoError(t, err)
	img, err := jpeg.Decode(bytes.NewReader(raw))
	require.NoError(t, err)

	bounds := img.Bounds()
	assert.Greater(t, bounds.Dx(), bounds.Dy())
}
