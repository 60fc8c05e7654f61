package catalog

import (
	"facturas/internal"
	"facturas/internal/util"
)

// Index is a read-only view over a catalog snapshot, built once per
// invocation. Positions refer to Entries and keep the caller's order.
type Index struct {
	Entries         []internal.CatalogEntry
	ByName          map[string]int
	WordToEntries   map[string][]int
	NormalizedNames []string
	Keywords        [][]string
}

func BuildIndex(entries []internal.CatalogEntry) *Index {
	idx := &Index{
		Entries:         entries,
		ByName:          make(map[string]int, len(entries)),
		WordToEntries:   map[string][]int{},
		NormalizedNames: make([]string, len(entries)),
		Keywords:        make([][]string, len(entries)),
	}

	for i, e := range entries {
		name := util.NormalizeName(e.DisplayName)
		idx.NormalizedNames[i] = name
		if _, exists := idx.ByName[name]; !exists && name != "" {
			idx.ByName[name] = i
		}

		seen := map[string]struct{}{}
		for _, w := range util.SignificantWords(name) {
			if _, dup := seen[w]; dup {
				continue
			}
			seen[w] = struct{}{}
			idx.Keywords[i] = append(idx.Keywords[i], w)
			idx.WordToEntries[w] = append(idx.WordToEntries[w], i)
		}
	}

	return idx
}

func (idx *Index) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.Entries)
}
