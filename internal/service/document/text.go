package document

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// extractText pulls plain text out of an uploaded file. PDFs go through the
// pdf reader; everything else is treated as text when it decodes as UTF-8.
func extractText(contentType string, data []byte) (string, error) {
	mime := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))

	if mime == "application/pdf" {
		return extractPDFText(data)
	}

	if !utf8.Valid(data) {
		return "", fmt.Errorf("content type %q is not text and cannot be decoded", contentType)
	}
	return strings.TrimSpace(string(data)), nil
}

func extractPDFText(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}

	var sb strings.Builder
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// Skip unreadable pages; whatever text the rest yields still
			// feeds the extraction.
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	return strings.TrimSpace(sb.String()), nil
}
