package extractor

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/docuchat/docuchat/internal/domain"
)

// extractPDF reads the text of every page in document order.
// The pdf library panics on some malformed inputs, so the whole parse is
// guarded and a panic is reported as a corrupt document.
func (e *Extractor) extractPDF(content []byte) (pages []domain.Page, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("%w: pdf parse panic: %v", ErrCorruptDocument, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptDocument, err)
	}

	total := reader.NumPage()
	if total == 0 {
		return nil, ErrEmptyDocument
	}

	pages = make([]domain.Page, 0, total)
	for i := 1; i <= total; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, domain.Page{Number: i})
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			// A single unreadable page is tolerated; the page keeps its
			// number so later pages stay correctly indexed.
			pages = append(pages, domain.Page{Number: i})
			continue
		}
		pages = append(pages, domain.Page{Number: i, Text: strings.TrimSpace(text)})
	}

	if !hasText(pages) {
		return nil, ErrEmptyDocument
	}
	return pages, nil
}
