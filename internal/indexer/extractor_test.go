package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"notebook-rag/internal/apperrors"
)

// writeBlankPDF writes a one-page PDF whose page has no text.
func writeBlankPDF(t *testing.T, path string) {
	t.Helper()

	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R /Resources << >> >>",
		"<< /Length 0 >>\nstream\n\nendstream",
	}

	var b strings.Builder
	b.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := b.Len()
	fmt.Fprintf(&b, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&b, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&b, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatalf("write pdf: %v", err)
	}
}

func TestCheckSupported(t *testing.T) {
	tests := []struct {
		path    string
		wantErr bool
	}{
		{path: "/docs/report.pdf"},
		{path: "/docs/REPORT.PDF"},
		{path: "/docs/notes.md"},
		{path: "/docs/notes.Txt"},
		{path: "/docs/setup.exe", wantErr: true},
		{path: "/docs/archive.tar.gz", wantErr: true},
		{path: "/docs/README", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			err := CheckSupported(tt.path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("CheckSupported() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, apperrors.ErrUnsupportedFormat) {
				t.Errorf("CheckSupported() error = %v, want UnsupportedFormat", err)
			}
		})
	}
}

func TestCheckSupported_Message(t *testing.T) {
	err := CheckSupported("/tmp/setup.EXE")
	if err == nil || err.Error() != "unsupported file format: .exe" {
		t.Errorf("CheckSupported() error = %v", err)
	}
}

func TestExtractor_Extract(t *testing.T) {
	dir := t.TempDir()
	write := func(name string, content []byte) string {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, content, 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		return path
	}

	tests := []struct {
		name     string
		path     string
		want     string
		wantCode apperrors.Code
	}{
		{name: "text file", path: write("a.txt", []byte("hello\n\nworld")), want: "hello\n\nworld"},
		{name: "markdown verbatim", path: write("b.MD", []byte("# Title\n\n*body*")), want: "# Title\n\n*body*"},
		{name: "invalid utf-8", path: write("c.txt", []byte{0xff, 0xfe, 0xfd}), wantCode: apperrors.CodeExtraction},
		{name: "missing file", path: filepath.Join(dir, "missing.txt"), wantCode: apperrors.CodeExtraction},
		{name: "corrupt pdf", path: write("d.pdf", []byte("not a pdf")), wantCode: apperrors.CodeExtraction},
		{name: "unsupported", path: write("e.exe", []byte("MZ")), wantCode: apperrors.CodeUnsupportedFormat},
	}

	e := NewExtractor(0)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Extract(context.Background(), tt.path)
			if tt.wantCode != "" {
				if code := apperrors.CodeOf(err); code != tt.wantCode {
					t.Fatalf("Extract() error = %v, want code %s", err, tt.wantCode)
				}
				return
			}
			if err != nil {
				t.Fatalf("Extract() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Extract() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractor_BlankPDFHasNoChunks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blank.pdf")
	writeBlankPDF(t, path)

	text, err := NewExtractor(0).Extract(context.Background(), path)
	if err != nil {
		// A reader that rejects the page is also an extraction failure.
		if !errors.Is(err, apperrors.ErrExtraction) {
			t.Fatalf("Extract() error = %v, want ExtractionFailure", err)
		}
		return
	}
	if chunks := Chunk(text); len(chunks) != 0 {
		t.Errorf("Chunk(blank pdf) = %q, want none", chunks)
	}
}

func TestExtractor_CanceledContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.txt")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Either the read wins or cancellation does; a cancellation must be typed.
	if _, err := NewExtractor(0).Extract(ctx, path); err != nil && !errors.Is(err, apperrors.ErrExtraction) {
		t.Errorf("Extract() error = %v, want ExtractionFailure", err)
	}
}
