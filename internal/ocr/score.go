package ocr

import (
	"strings"
	"unicode/utf8"

	"facturas/internal/util"
)

// transcription is the text one preprocessing variant produced.
type transcription struct {
	variant string
	text    string
}

func (t transcription) length() int { return utf8.RuneCountInString(t.text) }
func (t transcription) words() int  { return len(strings.Fields(t.text)) }

// pickBest keeps transcriptions whose alphanumeric ratio clears minRatio and
// returns the longest, breaking ties by word count. Earlier candidates win
// full ties.
func pickBest(cands []transcription, minRatio float64) (transcription, bool) {
	var best transcription
	found := false
	for _, c := range cands {
		if c.text == "" || util.AlnumRatio(c.text) < minRatio {
			continue
		}
		if !found || c.length() > best.length() ||
			(c.length() == best.length() && c.words() > best.words()) {
			best = c
			found = true
		}
	}
	return best, found
}
