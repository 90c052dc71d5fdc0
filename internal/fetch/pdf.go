package fetch

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// pdfTextPages bounds how much of a PDF is extracted; the executive summary
// and publication date sit in the first few pages.
const pdfTextPages = 5

// wordsPerPage converts HTML and plain-text length into a page estimate.
const wordsPerPage = 500

// isPDF trusts the body's magic over the URL: report links ending in .pdf
// often land on an HTML download page.
func isPDF(doc *Document) bool {
	return doc.ContentType == "application/pdf" || bytes.HasPrefix(doc.Body, []byte("%PDF-"))
}

// extractPDF fills Text from the first pages and Pages from the page tree.
// A document the parser cannot read keeps an empty Text and zero Pages.
func extractPDF(doc *Document) (err error) {
	defer func() {
		// The parser panics on some malformed cross-reference tables.
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf: %v", r)
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(doc.Body), int64(len(doc.Body)))
	if err != nil {
		return fmt.Errorf("pdf: %w", err)
	}
	doc.Pages = r.NumPage()

	var b strings.Builder
	for i := 1; i <= doc.Pages && i <= pdfTextPages; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		fonts := make(map[string]*pdf.Font)
		for _, name := range p.Fonts() {
			f := p.Font(name)
			fonts[name] = &f
		}
		text, err := p.GetPlainText(fonts)
		if err != nil {
			continue
		}
		b.WriteString(text)
		b.WriteByte('\n')
	}
	doc.Text = strings.TrimSpace(b.String())
	return nil
}

func estimatePages(text string) int {
	return len(strings.Fields(text)) / wordsPerPage
}
