package pipeline

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"facturas/internal"
	"facturas/internal/util"
)

const (
	qtyMin = 1
	qtyMax = 1000

	priceMin     = 1000
	priceMax     = 100000
	priceWideMin = 500
	priceWideMax = 200000

	// smallest value still taken as a price when no candidate range matched
	pricePlausibleMin = 100
)

var (
	reCodePrefix  = regexp.MustCompile(`^(\d{4,7})\s+(.+)$`)
	reNumberToken = regexp.MustCompile(`\d{1,3}(?:\.\d{3})+(?:,\d+)?|\d+(?:,\d+)?`)
	rePackCount   = regexp.MustCompile(`(?i)\bx\s?\d+\b`)
	reUnitWords   = regexp.MustCompile(`(?i)\b(?:un|und|unid|unidad|unidades|ud|uds|cj|caja|cajas|pq|paq|paquete|paquetes|disp|display|bot|botella|bolsa|saco|doc|docena|pack|bli|blister|c/u)\b`)
	reMeasure     = regexp.MustCompile(`(?i)^\d+(?:[.,]\d+)?(?:ml|cc|l|lt|lts|g|gr|grs|kg|kgs|mg|oz|cm|mm|mt|m|w)$`)
)

var nameStopWords = map[string]struct{}{
	"codigo": {}, "cod": {}, "descripcion": {}, "um": {}, "cantidad": {}, "precio": {}, "unit": {},
	"unitario": {}, "descuento": {}, "valor": {}, "ptax": {}, "unidad": {}, "alcoh": {},
}

type numToken struct {
	raw      string
	value    int64
	start    int
	end      int
	fraction bool
}

// ParseItems turns raw OCR text into candidate line items. Code-prefixed rows
// are tried first; the two looser methods only run when nothing was found.
func ParseItems(text string) []internal.CandidateLineItem {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")

	items := []internal.CandidateLineItem{}
	state := stateBeforeTable
	for i, raw := range lines {
		line := util.CollapseSpaces(raw)
		if line == "" {
			continue
		}
		// a code row stays an item even when its name holds a header or noise
		// word; only summary amounts are kept out
		item, ok := parseCodeLine(line)
		if !ok || hasKeyword(line, totalKeywords) {
			state = nextState(state, line)
			continue
		}
		item.LineNo = i + 1
		item.RawLine = line
		item.InTable = state == stateInTable
		items = append(items, item)
	}

	if len(items) == 0 {
		items = parsePriceLines(lines)
	}
	if len(items) == 0 {
		items = parseTabularLines(lines)
	}
	return items
}

// parseCodeLine handles "CODE NAME ... NUMBERS" rows.
func parseCodeLine(line string) (internal.CandidateLineItem, bool) {
	m := reCodePrefix.FindStringSubmatch(line)
	if m == nil {
		return internal.CandidateLineItem{}, false
	}
	rest := m[2]
	packs := rePackCount.FindAllStringIndex(rest, -1)
	tokens := numericTokens(rest, packs)

	qtyPos := chooseQuantity(tokens)
	pricePos := choosePrice(tokens, qtyPos)
	if pricePos < 0 && qtyPos >= 0 {
		// the only usable number was taken as a quantity; give it back to the price
		qtyPos = -1
		pricePos = choosePrice(tokens, qtyPos)
	}
	if pricePos < 0 {
		return internal.CandidateLineItem{}, false
	}

	name := cleanName(rest, tokens, packs)
	if !validName(name) {
		return internal.CandidateLineItem{}, false
	}

	qty := 1
	if qtyPos >= 0 {
		qty = int(tokens[qtyPos].value)
	}
	return internal.CandidateLineItem{
		RawName:   name,
		Quantity:  qty,
		UnitPrice: tokens[pricePos].value,
		Method:    internal.MethodCodePrefix,
	}, true
}

// numericTokens finds standalone numbers in s. Numbers glued to letters
// ("500ML", "X12") and numbers inside masked spans are not tokens.
func numericTokens(s string, masked [][]int) []numToken {
	out := []numToken{}
	for _, loc := range reNumberToken.FindAllStringIndex(s, -1) {
		if gluedToLetter(s, loc[0], loc[1]) || overlaps(loc, masked) {
			continue
		}
		raw := s[loc[0]:loc[1]]
		value, ok := util.ParseAmount(raw)
		if !ok {
			continue
		}
		out = append(out, numToken{
			raw:      raw,
			value:    value,
			start:    loc[0],
			end:      loc[1],
			fraction: strings.Contains(raw, ","),
		})
	}
	return out
}

func gluedToLetter(s string, start, end int) bool {
	if start > 0 {
		r, _ := utf8.DecodeLastRuneInString(s[:start])
		if unicode.IsLetter(r) {
			return true
		}
	}
	if end < len(s) {
		r, _ := utf8.DecodeRuneInString(s[end:])
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

func overlaps(loc []int, spans [][]int) bool {
	for _, sp := range spans {
		if loc[0] < sp[1] && sp[0] < loc[1] {
			return true
		}
	}
	return false
}

// chooseQuantity returns the smallest whole-number token in [1,1000] among
// the first half of the tokens, or -1.
func chooseQuantity(tokens []numToken) int {
	early := (len(tokens) + 1) / 2
	best := -1
	for i := 0; i < early; i++ {
		t := tokens[i]
		if t.fraction || t.value < qtyMin || t.value > qtyMax {
			continue
		}
		if best < 0 || t.value < tokens[best].value {
			best = i
		}
	}
	return best
}

// choosePrice picks the largest of the first three tokens inside the price
// range (widened when empty), skipping the quantity token. Failing that it
// takes the largest remaining plausible number. Returns -1 when nothing fits.
func choosePrice(tokens []numToken, skip int) int {
	inRange := func(lo, hi int64) []int {
		out := []int{}
		for i, t := range tokens {
			if i != skip && t.value >= lo && t.value <= hi {
				out = append(out, i)
			}
		}
		return out
	}

	candidates := inRange(priceMin, priceMax)
	if len(candidates) == 0 {
		candidates = inRange(priceWideMin, priceWideMax)
	}
	if len(candidates) > 0 {
		if len(candidates) > 3 {
			candidates = candidates[:3]
		}
		best := candidates[0]
		for _, i := range candidates[1:] {
			if tokens[i].value > tokens[best].value {
				best = i
			}
		}
		return best
	}

	best := -1
	for i, t := range tokens {
		if i == skip || t.value < pricePlausibleMin {
			continue
		}
		if best < 0 || t.value > tokens[best].value {
			best = i
		}
	}
	return best
}

// cleanName strips numbers, pack counts, unit words, residual codes and
// column words from s.
func cleanName(s string, tokens []numToken, packs [][]int) string {
	b := []byte(s)
	blank := func(start, end int) {
		for i := start; i < end; i++ {
			b[i] = ' '
		}
	}
	for _, t := range tokens {
		blank(t.start, t.end)
	}
	for _, p := range packs {
		blank(p[0], p[1])
	}

	stripped := reUnitWords.ReplaceAllString(string(b), " ")
	keep := []string{}
	for _, f := range strings.Fields(stripped) {
		f = strings.Trim(f, ".,;:|$#*_-()[]'\"")
		if f == "" || !hasAlnum(f) || isResidualCode(f) {
			continue
		}
		if _, stop := nameStopWords[util.NormalizeName(f)]; stop {
			continue
		}
		keep = append(keep, f)
	}
	return util.CollapseSpaces(strings.Join(keep, " "))
}

// isResidualCode reports leftover SKU-like fragments such as "AB12345";
// measures like "500ML" are kept.
func isResidualCode(f string) bool {
	if reMeasure.MatchString(f) {
		return false
	}
	digits, letters := 0, 0
	for _, r := range f {
		switch {
		case unicode.IsDigit(r):
			digits++
		case unicode.IsLetter(r):
			letters++
		}
	}
	if letters == 0 {
		return digits > 0
	}
	return digits >= 4
}

func hasAlnum(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

func validName(name string) bool {
	return utf8.RuneCountInString(name) >= 3 && !util.IsNumeric(name) && util.HasLetter(name)
}
