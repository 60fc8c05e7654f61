package pipeline

import (
	"regexp"
	"strings"
	"unicode"

	"facturas/internal"
	"facturas/internal/util"
)

const (
	priceLineMinLen = 10
	tabularMinLen   = 15
	tabularQtyMax   = 100

	// upper bound for a lone number to be read as a price outside code rows
	plausiblePriceMax = 9999999
)

var reLeadingDigits = regexp.MustCompile(`^\d+\s*`)

// parsePriceLines is the first fallback: a line whose first number is
// price-sized becomes an item named by the text before that number.
func parsePriceLines(lines []string) []internal.CandidateLineItem {
	out := []internal.CandidateLineItem{}
	for i, raw := range lines {
		line := util.CollapseSpaces(raw)
		if len(line) < priceLineMinLen || isHeaderLine(line) || isNoiseLine(line) {
			continue
		}

		tokens := numericTokens(line, nil)
		if len(tokens) == 0 {
			continue
		}
		price := tokens[0]
		if price.value < priceMin || price.value > plausiblePriceMax {
			continue
		}

		name := fallbackName(line[:price.start])
		if !validName(name) {
			continue
		}
		out = append(out, internal.CandidateLineItem{
			LineNo:    i + 1,
			RawLine:   line,
			RawName:   name,
			Quantity:  1,
			UnitPrice: price.value,
			Method:    internal.MethodPriceLine,
		})
	}
	return out
}

// parseTabularLines is the last fallback for column layouts with at least
// two numbers per row: small numbers (<=100) are quantities, the first
// number >=1000 is the price.
func parseTabularLines(lines []string) []internal.CandidateLineItem {
	out := []internal.CandidateLineItem{}
	for i, raw := range lines {
		line := util.CollapseSpaces(raw)
		if len(line) < tabularMinLen || isHeaderLine(line) || isNoiseLine(line) {
			continue
		}

		tokens := numericTokens(line, nil)
		if len(tokens) < 2 {
			continue
		}
		qty := 1
		var price int64
		for _, t := range tokens {
			if !t.fraction && t.value >= qtyMin && t.value <= tabularQtyMax {
				qty = int(t.value)
			} else if t.value >= priceMin && t.value <= plausiblePriceMax && price == 0 {
				price = t.value
			}
		}
		if price == 0 {
			continue
		}

		first := strings.IndexFunc(line, unicode.IsDigit)
		if first < 0 {
			continue
		}
		name := fallbackName(line[:first])
		if !validName(name) {
			continue
		}
		out = append(out, internal.CandidateLineItem{
			LineNo:    i + 1,
			RawLine:   line,
			RawName:   name,
			Quantity:  qty,
			UnitPrice: price,
			Method:    internal.MethodTabular,
		})
	}
	return out
}

func fallbackName(prefix string) string {
	prefix = reLeadingDigits.ReplaceAllString(strings.TrimSpace(prefix), "")
	packs := rePackCount.FindAllStringIndex(prefix, -1)
	return cleanName(prefix, numericTokens(prefix, packs), packs)
}
