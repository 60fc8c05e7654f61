package util

import (
	"regexp"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
)

var (
	reGroupedAmount = regexp.MustCompile(`^\d{1,3}(?:\.\d{3})+(?:,\d+)?$`)
	rePlainAmount   = regexp.MustCompile(`^\d+(?:,\d+)?$`)
)

// ParseAmount reads a locale-formatted amount ("19.000", "1.234,50", "850")
// as whole currency units. '.' groups thousands and ',' starts the decimal
// part, which is truncated. Values beyond int64 are rejected.
func ParseAmount(token string) (int64, bool) {
	s := strings.TrimSpace(token)
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return 0, false
	}
	if !reGroupedAmount.MatchString(s) && !rePlainAmount.MatchString(s) {
		return 0, false
	}

	s = strings.ReplaceAll(s, ".", "")
	s = strings.Replace(s, ",", ".", 1)
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, false
	}
	whole := d.Truncate(0).BigInt()
	if !whole.IsInt64() {
		return 0, false
	}
	return whole.Int64(), true
}

// FormatAmount renders n with '.' as thousands separator, e.g. 19000 -> "19.000".
func FormatAmount(n int64) string {
	return humanize.FormatInteger("#.###,", int(n))
}
