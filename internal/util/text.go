package util

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	reNonWord = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)
	reSpaces  = regexp.MustCompile(`\s+`)
)

// NormalizeName lowercases, folds accents ("código" -> "codigo") and reduces
// punctuation to single spaces.
func NormalizeName(input string) string {
	s := strings.ToLower(input)
	if folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), s); err == nil {
		s = folded
	}
	s = reNonWord.ReplaceAllString(s, " ")
	return CollapseSpaces(s)
}

func CollapseSpaces(input string) string {
	return strings.TrimSpace(reSpaces.ReplaceAllString(input, " "))
}

// SignificantWords returns the words of a normalized name longer than three runes.
func SignificantWords(normalized string) []string {
	parts := strings.Fields(normalized)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if len([]rune(p)) > 3 {
			out = append(out, p)
		}
	}
	return out
}

func HasLetter(input string) bool {
	for _, r := range input {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

func IsNumeric(input string) bool {
	s := strings.TrimSpace(input)
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) && r != '.' && r != ',' && r != ' ' {
			return false
		}
	}
	return true
}

// AlnumRatio is the share of letters and digits among the non-space runes of s.
func AlnumRatio(s string) float64 {
	total, alnum := 0, 0
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			alnum++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(alnum) / float64(total)
}
