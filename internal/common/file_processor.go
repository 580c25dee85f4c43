package common

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"atsexpert/internal/errors"
	"atsexpert/internal/utils"
)

// StdinName is the file name that reads from standard input
const StdinName = "-"

// FileProcessor handles common file operations
type FileProcessor struct {
	logger *errors.Logger
	stdin  io.Reader
}

// NewFileProcessor creates a new file processor instance
func NewFileProcessor(logger *errors.Logger) *FileProcessor {
	if logger == nil {
		logger = errors.Discard()
	}
	return &FileProcessor{logger: logger, stdin: os.Stdin}
}

// ReadFile reads content from a file with proper error handling
func (fp *FileProcessor) ReadFile(filename string) ([]byte, error) {
	if filename == StdinName {
		content, err := io.ReadAll(fp.stdin)
		if err != nil {
			return nil, errors.NewIOError(errors.ErrCodeFileNotReadable,
				"Failed to read standard input", err)
		}
		return content, nil
	}

	file, err := os.Open(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewIOError(errors.ErrCodeFileNotFound,
				fmt.Sprintf("File not found: %s", filename), err)
		}
		return nil, errors.NewIOError(errors.ErrCodeFileNotReadable,
			fmt.Sprintf("Cannot read file: %s", filename), err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			fp.logger.Warn("Failed to close file", "filename", filename, "error", err)
		}
	}()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, errors.NewIOError(errors.ErrCodeFileNotReadable,
			fmt.Sprintf("Failed to read file content: %s", filename), err)
	}
	return content, nil
}

// ReadDocument validates and reads the uploaded document. The bytes are
// returned as-is; the rasterizer decides whether they are a usable PDF.
// A file larger than maxSize is refused before it is read; zero means no
// ceiling.
func (fp *FileProcessor) ReadDocument(filename string, maxSize int64) ([]byte, error) {
	info, err := os.Stat(filename)
	if os.IsNotExist(err) {
		return nil, errors.NewIOError(errors.ErrCodeFileNotFound,
			fmt.Sprintf("File not found: %s", filename), err)
	}
	if err := utils.ValidateInputFile(filename); err != nil {
		return nil, errors.NewValidationError("INVALID_INPUT_FILE",
			fmt.Sprintf("Invalid file %s", filename), err)
	}
	if maxSize > 0 && info != nil && info.Size() > maxSize {
		fp.logger.Warn("Document exceeds upload ceiling",
			"filename", filename,
			"size", utils.FormatFileSize(info.Size()),
			"limit", utils.FormatFileSize(maxSize))
		return nil, errors.Oversize(info.Size(), maxSize)
	}

	if !utils.IsPDFFile(filename) {
		fp.logger.Warn("Document does not have a .pdf extension", "filename", filename)
	}

	content, err := fp.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	fp.logger.Debug("Read document", "filename", filename, "size", utils.FormatFileSize(int64(len(content))))
	return content, nil
}

// ReadText reads an optional text input. An empty filename yields "".
func (fp *FileProcessor) ReadText(filename string) (string, error) {
	if filename == "" {
		return "", nil
	}
	if filename != StdinName {
		if err := utils.ValidateInputFile(filename); err != nil {
			return "", errors.NewValidationError("INVALID_INPUT_FILE",
				fmt.Sprintf("Invalid file %s", filename), err)
		}
	}
	content, err := fp.ReadFile(filename)
	if err != nil {
		return "", err
	}
	return string(content), nil
}

// WriteFile writes content to a file with directory creation
func (fp *FileProcessor) WriteFile(filename, content string) error {
	dir := filepath.Dir(filename)
	if dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return errors.NewIOError("DIRECTORY_CREATE_FAILED",
				fmt.Sprintf("Cannot create directory: %s", dir), err)
		}
	}

	if err := os.WriteFile(filename, []byte(content), 0600); err != nil {
		return errors.NewIOError("FILE_WRITE_FAILED",
			fmt.Sprintf("Cannot write file: %s", filename), err)
	}
	return nil
}

// ValidateOutputFile validates output file path
func (fp *FileProcessor) ValidateOutputFile(filename string) error {
	if filename == "" {
		return nil // stdout
	}

	if err := utils.ValidateOutputFile(filename); err != nil {
		return errors.NewValidationError("INVALID_OUTPUT_FILE",
			fmt.Sprintf("Invalid output file: %s", filename), err)
	}
	return nil
}
