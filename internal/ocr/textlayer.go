package ocr

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"facturas/internal/util"
)

// pdfTextLayer reads embedded text from the first maxPages pages. Scanned
// PDFs have none and return an empty string.
func pdfTextLayer(path string, maxPages int) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("pdf reader panic: %v", r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		if f != nil {
			f.Close()
		}
		return "", err
	}
	defer f.Close()

	n := r.NumPage()
	if maxPages > 0 && n > maxPages {
		n = maxPages
	}
	var b strings.Builder
	for i := 1; i <= n; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		s, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		b.WriteString(s)
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String()), nil
}

// usableText reports whether an embedded text layer is good enough to skip OCR.
func usableText(text string, minChars int, minRatio float64) bool {
	return utf8.RuneCountInString(text) >= minChars && util.AlnumRatio(text) >= minRatio
}
