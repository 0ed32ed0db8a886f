// Package docs enforces the admission policy for user-uploaded documents
// before any remote call is made: declared type, real (sniffed) type, size
// caps, and a basic readability check for PDFs.
package docs

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Policy bounds what a single turn may upload.
type Policy struct {
	MaxFileBytes  int64 // per-file cap
	MaxTotalBytes int64 // aggregate cap per turn
	MaxFiles      int   // new files per turn
}

// DefaultPolicy returns the caps used in production.
func DefaultPolicy() Policy {
	return Policy{
		MaxFileBytes:  10 << 20,
		MaxTotalBytes: 20 << 20,
		MaxFiles:      4,
	}
}

// allowedTypes is the full set of declared MIME types accepted for upload.
var allowedTypes = map[string]bool{
	"application/pdf": true,
	"image/jpeg":      true,
	"image/png":       true,
	"image/webp":      true,
}

// AllowedType reports whether the declared MIME type is accepted.
// Parameters after a semicolon are ignored.
func AllowedType(mime string) bool {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	return allowedTypes[mime]
}

// CheckBatch validates per-turn totals. Each violation gets its own
// user-readable message so the widget can surface actionable feedback.
func (p Policy) CheckBatch(count int, totalBytes int64) error {
	if count > p.MaxFiles {
		return fmt.Errorf("too many files: %d attached, at most %d allowed per message", count, p.MaxFiles)
	}
	if totalBytes > p.MaxTotalBytes {
		return fmt.Errorf("attachments too large: %d MB total, at most %d MB allowed per message",
			totalBytes>>20, p.MaxTotalBytes>>20)
	}
	return nil
}

// CheckFile validates a single file: declared type, size, sniffed content
// type, and (for PDFs) that the file actually parses as a PDF with at
// least one page. Size is checked first so an oversized file is reported
// as a size problem, not a content problem.
func (p Policy) CheckFile(name, mime string, data []byte) error {
	if !AllowedType(mime) {
		return fmt.Errorf("file type not allowed for %s: %s (allowed: PDF, JPEG, PNG, WEBP)", name, mime)
	}
	if int64(len(data)) > p.MaxFileBytes {
		return fmt.Errorf("file %s is too large: %d MB, the per-file limit is %d MB",
			name, int64(len(data))>>20, p.MaxFileBytes>>20)
	}
	if len(data) == 0 {
		return fmt.Errorf("file %s is empty", name)
	}

	sniffed := http.DetectContentType(data)
	if !typesMatch(mime, sniffed) {
		return fmt.Errorf("file %s does not look like %s (detected %s)", name, baseType(mime), baseType(sniffed))
	}

	if baseType(mime) == "application/pdf" {
		return checkPDF(name, data)
	}
	return nil
}

// checkPDF rejects PDFs the parser cannot open and PDFs with no pages.
func checkPDF(name string, data []byte) error {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("file %s is not a readable PDF: %v", name, err)
	}
	if r.NumPage() == 0 {
		return fmt.Errorf("file %s is a PDF with no pages", name)
	}
	return nil
}

func baseType(mime string) string {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	return mime
}

func typesMatch(declared, sniffed string) bool {
	return baseType(declared) == baseType(sniffed)
}
