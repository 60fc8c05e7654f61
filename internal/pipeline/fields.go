package pipeline

import (
	"regexp"
	"strings"
	"time"

	"facturas/internal/util"
)

// strategy is one attempt at reading a field from the invoice text.
type strategy[T any] func(text string) (T, bool)

// firstOf returns the result of the first strategy that succeeds.
func firstOf[T any](text string, strategies ...strategy[T]) (T, bool) {
	for _, s := range strategies {
		if v, ok := s(text); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}

var (
	reDateDMY = regexp.MustCompile(`\b(\d{1,2})[/-](\d{1,2})[/-](\d{2,4})\b`)
	reDateYMD = regexp.MustCompile(`\b(\d{4})[/-](\d{1,2})[/-](\d{1,2})\b`)

	reInvoiceNumberLabeled = regexp.MustCompile(`(?i)factura\s*(?:electr[oó]nica\s*)?n[°º]?\s*:?\s*(\d+)`)
	reInvoiceNumberSign    = regexp.MustCompile(`(?i)\bn[°º]\s*:?\s*(\d{4,})`)
	reInvoiceNumberBare    = regexp.MustCompile(`\b(\d{4,})\b`)

	reTotalWithSign = regexp.MustCompile(`(?i)\btotal\b\s*:?\s*\$\s*(\d{1,3}(?:\.\d{3})+(?:,\d+)?|\d+(?:,\d+)?)`)
	reTotalPlain    = regexp.MustCompile(`(?i)\btotal\b\s*:?\s*\$?\s*(\d{1,3}(?:\.\d{3})+(?:,\d+)?|\d+(?:,\d+)?)`)
)

func dateStrategy(re *regexp.Regexp, layouts ...string) strategy[time.Time] {
	return func(text string) (time.Time, bool) {
		m := re.FindString(text)
		if m == "" {
			return time.Time{}, false
		}
		value := strings.ReplaceAll(m, "-", "/")
		for _, layout := range layouts {
			if t, err := time.Parse(layout, value); err == nil {
				return t, true
			}
		}
		return time.Time{}, false
	}
}

func captureStrategy(re *regexp.Regexp) strategy[string] {
	return func(text string) (string, bool) {
		m := re.FindStringSubmatch(text)
		if len(m) < 2 {
			return "", false
		}
		return m[1], true
	}
}

func amountStrategy(re *regexp.Regexp) strategy[int64] {
	return func(text string) (int64, bool) {
		m := re.FindStringSubmatch(text)
		if len(m) < 2 {
			return 0, false
		}
		return util.ParseAmount(m[1])
	}
}

var (
	dateStrategies = []strategy[time.Time]{
		dateStrategy(reDateDMY, "2/1/2006", "2/1/06"),
		dateStrategy(reDateYMD, "2006/1/2"),
	}
	invoiceNumberStrategies = []strategy[string]{
		captureStrategy(reInvoiceNumberLabeled),
		captureStrategy(reInvoiceNumberSign),
		captureStrategy(reInvoiceNumberBare),
	}
	totalStrategies = []strategy[int64]{
		amountStrategy(reTotalWithSign),
		amountStrategy(reTotalPlain),
	}
)

func ExtractDate(text string) *time.Time {
	if t, ok := firstOf(text, dateStrategies...); ok {
		return &t
	}
	return nil
}

func ExtractInvoiceNumber(text string) *string {
	if n, ok := firstOf(text, invoiceNumberStrategies...); ok {
		return &n
	}
	return nil
}

func ExtractTotal(text string) *int64 {
	if v, ok := firstOf(text, totalStrategies...); ok {
		return &v
	}
	return nil
}
