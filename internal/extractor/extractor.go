// Package extractor converts raw document bytes into plain text with
// 1-indexed page boundaries. It is a pure transform: no side effects,
// deterministic for identical input.
package extractor

import (
	"errors"
	"path/filepath"
	"strings"

	"github.com/docuchat/docuchat/internal/domain"
)

var (
	// ErrUnsupportedFormat is returned for anything other than PDF or DOCX.
	ErrUnsupportedFormat = errors.New("unsupported document format")
	// ErrCorruptDocument is returned when parsing fails irrecoverably,
	// e.g. an encrypted or truncated file.
	ErrCorruptDocument = errors.New("document is corrupt or unreadable")
	// ErrEmptyDocument is returned when no extractable text is found.
	ErrEmptyDocument = errors.New("document contains no extractable text")
)

// Format is a supported document format.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
)

// DefaultDOCXPageChars is the synthetic page size for DOCX input.
// Word documents carry no page boundaries, so pages are cut on a fixed
// character budget to keep citation page numbers meaningful.
const DefaultDOCXPageChars = 3200

// DetectFormat maps a filename extension to a Format.
// Returns ErrUnsupportedFormat for unknown extensions.
func DetectFormat(filename string) (Format, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return FormatPDF, nil
	case ".docx", ".doc":
		return FormatDOCX, nil
	default:
		return "", ErrUnsupportedFormat
	}
}

// Extractor turns document bytes into page-tagged plain text.
type Extractor struct {
	docxPageChars int
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithDOCXPageChars overrides the synthetic page budget for DOCX input.
func WithDOCXPageChars(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.docxPageChars = n
		}
	}
}

// New creates an Extractor with default settings.
func New(opts ...Option) *Extractor {
	e := &Extractor{docxPageChars: DefaultDOCXPageChars}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract produces the page sequence for the given content and format.
func (e *Extractor) Extract(content []byte, format Format) ([]domain.Page, error) {
	switch format {
	case FormatPDF:
		return e.extractPDF(content)
	case FormatDOCX:
		return e.extractDOCX(content)
	default:
		return nil, ErrUnsupportedFormat
	}
}

// hasText reports whether any page carries non-whitespace content.
func hasText(pages []domain.Page) bool {
	for _, p := range pages {
		if strings.TrimSpace(p.Text) != "" {
			return true
		}
	}
	return false
}
