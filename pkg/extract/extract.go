// Package extract turns submitted documents into plain text for grading.
package extract

import (
	"context"
	"errors"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

var (
	// ErrUnsupportedFormat indicates the document type cannot be converted to text.
	ErrUnsupportedFormat = errors.New("unsupported document format")
	// ErrExtraction indicates the document is corrupt or produced no text.
	ErrExtraction = errors.New("text extraction failed")
)

// Supported MIME types.
const (
	MimePlainText = "text/plain"
	MimePDF       = "application/pdf"
	MimeDOC       = "application/msword"
	MimeDOCX      = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// Extractor converts document bytes to plain text. mimeHint may be empty, in which case
// the type is sniffed from the content.
type Extractor interface {
	Extract(ctx context.Context, data []byte, mimeHint string) (string, error)
}

// DetectMime sniffs the MIME type of data and maps it onto one of the supported types.
// Unknown types are returned as detected.
func DetectMime(data []byte) string {
	return Normalize(mimetype.Detect(data).String())
}

// Normalize strips parameters and folds aliases of supported types.
func Normalize(m string) string {
	lower := strings.ToLower(strings.TrimSpace(m))
	if idx := strings.Index(lower, ";"); idx >= 0 {
		lower = strings.TrimSpace(lower[:idx])
	}

	switch lower {
	case "text/plain", "text/x-sql", "application/sql", "text/markdown", "text/csv":
		return MimePlainText
	case "application/pdf", "application/x-pdf":
		return MimePDF
	case "application/msword", "application/x-ole-storage", "application/vnd.ms-word":
		return MimeDOC
	case MimeDOCX:
		return MimeDOCX
	default:
		return lower
	}
}

// IsSupported reports whether m (normalized) can be extracted by a Router.
func IsSupported(m string) bool {
	switch Normalize(m) {
	case MimePlainText, MimePDF, MimeDOC, MimeDOCX:
		return true
	default:
		return false
	}
}

// Router dispatches documents to the extractor responsible for their type.
type Router struct {
	plain     Extractor
	documents Extractor
}

// NewRouter builds a router. documents handles PDF/DOC/DOCX and may be nil, in which
// case those formats are reported as unsupported.
func NewRouter(documents Extractor) *Router {
	return &Router{
		plain:     PlainText{},
		documents: documents,
	}
}

// Extract implements Extractor.
func (r *Router) Extract(ctx context.Context, data []byte, mimeHint string) (string, error) {
	kind := Normalize(mimeHint)
	if kind == "" || kind == "application/octet-stream" {
		kind = DetectMime(data)
	}

	switch kind {
	case MimePlainText:
		return r.plain.Extract(ctx, data, mimeHint)
	case MimePDF, MimeDOC, MimeDOCX:
		if r.documents == nil {
			return "", ErrUnsupportedFormat
		}
		return r.documents.Extract(ctx, data, kind)
	default:
		return "", ErrUnsupportedFormat
	}
}
