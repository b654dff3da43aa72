package indexer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"notebook-rag/internal/apperrors"
)

// Supported file types, by lower-cased extension.
const (
	TypePDF      = "pdf"
	TypeMarkdown = "md"
	TypeText     = "txt"
)

// FileType returns the lower-cased extension of path without the dot.
func FileType(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}

// CheckSupported fails with UnsupportedFormat unless the file can be extracted.
func CheckSupported(path string) error {
	switch ext := FileType(path); ext {
	case TypePDF, TypeMarkdown, TypeText:
		return nil
	default:
		return apperrors.UnsupportedFormat(ext)
	}
}

// Extractor turns a stored file into raw text.
type Extractor struct {
	timeout time.Duration
}

// NewExtractor creates an extractor. A zero timeout means no limit.
func NewExtractor(timeout time.Duration) *Extractor {
	return &Extractor{timeout: timeout}
}

type extractResult struct {
	text string
	err  error
}

// Extract reads the file at path, dispatching on its extension.
// Text files must be valid UTF-8.
func (e *Extractor) Extract(ctx context.Context, path string) (string, error) {
	if err := CheckSupported(path); err != nil {
		return "", err
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	// The PDF reader is not context aware, so extraction runs on its own
	// goroutine and is abandoned when the context ends.
	results := make(chan extractResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				results <- extractResult{err: fmt.Errorf("extractor panicked: %v", r)}
			}
		}()
		text, err := extractFile(path)
		results <- extractResult{text: text, err: err}
	}()

	select {
	case res := <-results:
		if res.err != nil {
			return "", apperrors.ExtractionFailure("failed to extract "+filepath.Base(path), res.err)
		}
		return res.text, nil
	case <-ctx.Done():
		return "", apperrors.ExtractionFailure("failed to extract "+filepath.Base(path), ctx.Err())
	}
}

func extractFile(path string) (string, error) {
	switch FileType(path) {
	case TypePDF:
		return extractPDF(path)
	default:
		return readText(path)
	}
}

func readText(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	if !utf8.Valid(content) {
		return "", fmt.Errorf("file is not valid UTF-8")
	}
	return string(content), nil
}

func extractPDF(path string) (string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("failed to read pdf text: %w", err)
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", fmt.Errorf("failed to read pdf text: %w", err)
	}
	return buf.String(), nil
}
