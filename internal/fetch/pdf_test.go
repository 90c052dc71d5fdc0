package fetch

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// buildPDF renders one text line per page into a minimal PDF 1.4 document
// with a valid cross-reference table.
func buildPDF(lines []string) []byte {
	n := len(lines)
	// Objects: 1 catalog, 2 page tree, 3 font, then a page and its content
	// stream for every line.
	objs := make([]string, 0, 3+2*n)
	kids := make([]string, n)
	for i := range lines {
		kids[i] = fmt.Sprintf("%d 0 R", 4+2*i)
	}
	objs = append(objs,
		"<< /Type /Catalog /Pages 2 0 R >>",
		fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), n),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
	)
	for i, line := range lines {
		stream := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", line)
		objs = append(objs,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", 5+2*i),
			fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream),
		)
	}

	var b bytes.Buffer
	b.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, o := range objs {
		offsets[i] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n%s\nendobj\n", i+1, o)
	}
	xref := b.Len()
	fmt.Fprintf(&b, "xref\n0 %d\n0000000000 65535 f \n", len(objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(&b, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&b, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return b.Bytes()
}

func TestFetchPDFExtractsTextAndPages(t *testing.T) {
	t.Parallel()
	lines := make([]string, 7)
	for i := range lines {
		lines[i] = fmt.Sprintf("Page %d of the outlook", i+1)
	}
	lines[0] = "Adaptation Finance Outlook 2023"
	lines[6] = "Annex published 1999"
	body := buildPDF(lines)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	doc, err := Fetcher{Client: srv.Client()}.Fetch(context.Background(), srv.URL+"/outlook.pdf")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if doc.Pages != 7 {
		t.Fatalf("Pages = %d, want 7", doc.Pages)
	}
	if !strings.Contains(doc.Text, "2023") {
		t.Fatalf("first page text missing: %q", doc.Text)
	}
	if strings.Contains(doc.Text, "1999") {
		t.Fatalf("text beyond the first %d pages was extracted: %q", pdfTextPages, doc.Text)
	}
	if got := Year(doc.Text, doc.URL); got != 2023 {
		t.Fatalf("Year from pdf text = %d, want 2023", got)
	}
}

func TestEstimatePages(t *testing.T) {
	t.Parallel()
	if got := estimatePages(strings.Repeat("word ", 1250)); got != 2 {
		t.Fatalf("estimatePages = %d, want 2", got)
	}
	if got := estimatePages(""); got != 0 {
		t.Fatalf("estimatePages(empty) = %d", got)
	}
}
