package stats

import (
	"maps"
	"slices"

	"github.com/roach88/loreweave/internal/ir"
)

// CultureStats describes one culture at one tick.
type CultureStats struct {
	Culture string  `json:"culture"`
	Count   int     `json:"count"`
	Share   float64 `json:"share"`
	// Awareness is the fraction of the culture's active relationships that
	// reach an entity of another culture.
	Awareness float64 `json:"awareness"`
}

// CulturalAwareness summarizes every culture among the active entities,
// ordered by culture name. Entities without a culture are not counted.
func CulturalAwareness(ents []ir.Entity, rels []ir.Relationship) []CultureStats {
	culture := make(map[ir.EntityID]string, len(ents))
	counts := map[string]int{}
	total := 0
	for _, e := range ents {
		if !e.Active() || e.Culture == "" {
			continue
		}
		culture[e.ID] = e.Culture
		counts[e.Culture]++
		total++
	}

	edges := map[string]int{}
	cross := map[string]int{}
	for _, r := range rels {
		if !r.Active() {
			continue
		}
		a, okA := culture[r.Src]
		b, okB := culture[r.Dst]
		if !okA || !okB {
			continue
		}
		edges[a]++
		if a != b {
			edges[b]++
			cross[a]++
			cross[b]++
		}
	}

	out := make([]CultureStats, 0, len(counts))
	for _, c := range slices.Sorted(maps.Keys(counts)) {
		s := CultureStats{Culture: c, Count: counts[c], Share: float64(counts[c]) / float64(total)}
		if edges[c] > 0 {
			s.Awareness = float64(cross[c]) / float64(edges[c])
		}
		out = append(out, s)
	}
	return out
}
