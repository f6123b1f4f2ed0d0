package extractor

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"

	"github.com/palashjain21/calo-balance-sync-analyzer/internal/lines"
)

// pdfText returns the text of each page of a PDF log export. It tries the
// row-based layout first, then per-page plain text, then whole-document
// plain text, keeping the first result that looks like log output.
func pdfText(data []byte) (pages []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("PDF library crashed: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}

	numPages := r.NumPage()
	if numPages == 0 {
		return nil, fmt.Errorf("PDF has no pages")
	}

	pages = extractByRow(r, numPages)
	if looksLikeLog(pages) {
		return pages, nil
	}

	pages = extractByPagePlainText(r, numPages)
	if looksLikeLog(pages) {
		return pages, nil
	}

	if plain := extractByReaderPlainText(r); plain != "" {
		return []string{plain}, nil
	}
	if totalTextLen(pages) == 0 {
		return nil, fmt.Errorf("no text could be extracted from PDF")
	}
	return pages, nil
}

// looksLikeLog requires mostly readable characters and at least one
// timestamp. Identity-encoded fonts produce text that fails both.
func looksLikeLog(pages []string) bool {
	if totalTextLen(pages) == 0 || textQuality(pages) <= 0.6 {
		return false
	}
	for _, p := range pages {
		if lines.Timestamp.MatchString(p) {
			return true
		}
	}
	return false
}

// textQuality is the share of ASCII letters, digits, spaces and punctuation.
func textQuality(pages []string) float64 {
	total, readable := 0, 0
	for _, page := range pages {
		for _, r := range page {
			total++
			if r < unicode.MaxASCII && (unicode.IsPrint(r) || unicode.IsSpace(r)) {
				readable++
			}
		}
	}
	if total == 0 {
		return 0
	}
	return float64(readable) / float64(total)
}

func extractByRow(r *pdf.Reader, numPages int) []string {
	var pages []string
	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			continue
		}
		var out []string
		for _, row := range rows {
			words := make([]string, 0, len(row.Content))
			for _, word := range row.Content {
				words = append(words, word.S)
			}
			if line := strings.TrimSpace(strings.Join(words, " ")); line != "" {
				out = append(out, line)
			}
		}
		pages = append(pages, strings.Join(out, "\n"))
	}
	return pages
}

func extractByPagePlainText(r *pdf.Reader, numPages int) []string {
	var pages []string
	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		fonts := make(map[string]*pdf.Font)
		for _, name := range page.Fonts() {
			f := page.Font(name)
			fonts[name] = &f
		}
		text, err := page.GetPlainText(fonts)
		if err != nil {
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			pages = append(pages, text)
		}
	}
	return pages
}

func extractByReaderPlainText(r *pdf.Reader) string {
	reader, err := r.GetPlainText()
	if err != nil {
		return ""
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func totalTextLen(pages []string) int {
	n := 0
	for _, p := range pages {
		n += len(strings.TrimSpace(p))
	}
	return n
}
