package extractor

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/docuchat/docuchat/internal/domain"
)

// extractDOCX pulls paragraph text out of word/document.xml and cuts it
// into synthetic pages on the configured character budget, breaking at
// paragraph boundaries where possible.
//
// A .docx file is a zip archive; the main body lives in word/document.xml
// with runs of text in <w:t> elements grouped into <w:p> paragraphs.
func (e *Extractor) extractDOCX(content []byte) ([]domain.Page, error) {
	archive, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptDocument, err)
	}

	var docXML io.ReadCloser
	for _, f := range archive.File {
		if f.Name == "word/document.xml" {
			docXML, err = f.Open()
			if err != nil {
				return nil, fmt.Errorf("%w: open document.xml: %v", ErrCorruptDocument, err)
			}
			break
		}
	}
	if docXML == nil {
		return nil, fmt.Errorf("%w: missing word/document.xml", ErrCorruptDocument)
	}
	defer docXML.Close()

	paragraphs, err := parseDocumentXML(docXML)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptDocument, err)
	}

	pages := e.paginate(paragraphs)
	if !hasText(pages) {
		return nil, ErrEmptyDocument
	}
	return pages, nil
}

// parseDocumentXML streams the XML and collects non-empty paragraphs.
func parseDocumentXML(r io.Reader) ([]string, error) {
	decoder := xml.NewDecoder(r)

	var paragraphs []string
	var current strings.Builder
	inText := false

	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode document.xml: %w", err)
		}

		switch elem := token.(type) {
		case xml.StartElement:
			switch elem.Name.Local {
			case "t":
				inText = true
			case "tab":
				current.WriteByte('\t')
			case "br":
				current.WriteByte('\n')
			}
		case xml.EndElement:
			switch elem.Name.Local {
			case "t":
				inText = false
			case "p":
				if text := strings.TrimSpace(current.String()); text != "" {
					paragraphs = append(paragraphs, text)
				}
				current.Reset()
			}
		case xml.CharData:
			if inText {
				current.Write(elem)
			}
		}
	}

	// Trailing run outside a closed paragraph.
	if text := strings.TrimSpace(current.String()); text != "" {
		paragraphs = append(paragraphs, text)
	}
	return paragraphs, nil
}

// paginate packs paragraphs into pages of roughly docxPageChars characters.
// A paragraph longer than the budget becomes a page (or pages) of its own
// rather than being dropped.
func (e *Extractor) paginate(paragraphs []string) []domain.Page {
	var pages []domain.Page
	var current strings.Builder

	flush := func() {
		if current.Len() == 0 {
			return
		}
		pages = append(pages, domain.Page{
			Number: len(pages) + 1,
			Text:   strings.TrimSpace(current.String()),
		})
		current.Reset()
	}

	for _, para := range paragraphs {
		if current.Len() > 0 && current.Len()+len(para) > e.docxPageChars {
			flush()
		}
		for len(para) > e.docxPageChars {
			// Back the cut off to a rune start so a page break never
			// splits a multi-byte character.
			cut := e.docxPageChars
			for cut > 0 && !utf8.RuneStart(para[cut]) {
				cut--
			}
			if cut == 0 {
				_, cut = utf8.DecodeRuneInString(para)
			}
			current.WriteString(para[:cut])
			para = para[cut:]
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
	}
	flush()

	return pages
}
