package pipeline

import (
	"sort"
	"strings"

	"facturas/internal"
	"facturas/internal/catalog"
	"facturas/internal/util"
)

type Matcher struct {
	index *catalog.Index
}

func NewMatcher(index *catalog.Index) *Matcher {
	if index == nil {
		index = catalog.BuildIndex(nil)
	}
	return &Matcher{index: index}
}

// Match looks up an extracted name: exact normalized name first, then the
// best keyword-overlap score. Equal scores keep the earlier catalog entry.
func (m *Matcher) Match(name string) (*internal.CatalogEntry, bool) {
	normalized := util.NormalizeName(name)
	if normalized == "" || m.index.Len() == 0 {
		return nil, false
	}

	if pos, ok := m.index.ByName[normalized]; ok {
		entry := m.index.Entries[pos]
		return &entry, true
	}

	words := util.SignificantWords(normalized)
	if len(words) == 0 {
		return nil, false
	}

	best, bestScore := -1, 0
	for i := range m.index.Entries {
		score := m.score(i, words)
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	if best < 0 || bestScore < 1 {
		return nil, false
	}
	entry := m.index.Entries[best]
	return &entry, true
}

func (m *Matcher) score(pos int, words []string) int {
	entryName := m.index.NormalizedNames[pos]
	score := 0
	for _, w := range words {
		if strings.Contains(entryName, w) {
			score++
		}
		for _, k := range m.index.Keywords[pos] {
			if strings.Contains(w, k) {
				score += 2
			}
		}
	}
	return score
}

type Alternative struct {
	Entry internal.CatalogEntry
	Score int
}

// Alternatives ranks catalog entries sharing at least one significant word
// with name, best first. exclude drops an already chosen entry.
func (m *Matcher) Alternatives(name string, exclude *internal.CatalogEntry, limit int) []Alternative {
	words := util.SignificantWords(util.NormalizeName(name))
	positions := map[int]struct{}{}
	for _, w := range words {
		for _, pos := range m.index.WordToEntries[w] {
			positions[pos] = struct{}{}
		}
	}

	out := make([]Alternative, 0, len(positions))
	for pos := range positions {
		entry := m.index.Entries[pos]
		if exclude != nil && exclude.ID == entry.ID {
			continue
		}
		out = append(out, Alternative{Entry: entry, Score: m.score(pos, words)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Entry.ID < out[j].Entry.ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
