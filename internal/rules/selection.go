package rules

import (
	"cmp"
	"math/rand/v2"
	"slices"

	"github.com/roach88/loreweave/internal/ir"
)

// Candidate is an entity competing in a selection.
type Candidate struct {
	ID ir.EntityID
	// Rank is the number of preference filters the entity matched.
	Rank int
	// Weight is the entity's prominence, or its weight tag value.
	Weight float64
}

// SelectEntities picks entities per spec. Candidates are active entities
// passing the hard filters and not saturated; preference filters rank them
// before the pick strategy applies. Winners are recorded against the
// saturation tracker when the spec caps wins per tick.
func SelectEntities(ctx *Context, spec ir.SelectionSpec, r EntityResolver) []ir.EntityID {
	sat := spec.Saturation
	var cands []Candidate
	partOf := make(map[ir.EntityID]ir.EntityID)
	for _, e := range MatchingEntities(ctx, spec.Filters, r) {
		if sat != nil && saturated(ctx, e, sat) {
			continue
		}
		rank := 0
		for _, f := range spec.Prefer {
			if EntityPassesFilter(ctx, e, f, r) {
				rank++
			}
		}
		w := e.Prominence
		if spec.WeightTag != "" {
			w = e.Tags[spec.WeightTag]
		}
		cands = append(cands, Candidate{ID: e.ID, Rank: rank, Weight: w})
		partOf[e.ID] = e.PartOf
	}
	if len(cands) == 0 {
		return nil
	}

	winners := ApplyPickStrategy(cands, spec.Pick, spec.Count, ctx.Rand)
	if sat != nil && sat.MaxWinsPerTick > 0 && ctx.Saturation != nil {
		for _, id := range winners {
			ctx.Saturation.Record(id, partOf[id])
		}
	}
	return winners
}

func saturated(ctx *Context, e ir.Entity, sat *ir.Saturation) bool {
	if sat.RelationshipKind != "" && sat.MaxRelationships > 0 &&
		ctx.Graph.CountRelationships(e.ID, sat.RelationshipKind, ir.DirectionBoth) >= sat.MaxRelationships {
		return true
	}
	if sat.MaxWinsPerTick > 0 && ctx.Saturation != nil {
		if ctx.Saturation.Wins(e.ID) >= sat.MaxWinsPerTick {
			return true
		}
		if sat.PerCluster && e.PartOf != "" && ctx.Saturation.ClusterWins(e.PartOf) >= sat.MaxWinsPerTick {
			return true
		}
	}
	return false
}

// ApplyPickStrategy picks up to count winners (at least one) from cands.
// Candidates are grouped into tiers by Rank, highest first; a strategy
// exhausts a tier before moving to the next.
//
//   - first:    input order within a tier
//   - top:      highest weight within a tier; ties keep input order
//   - weighted: seeded weighted-random without replacement within a tier
//   - random:   seeded uniform without replacement within a tier
func ApplyPickStrategy(cands []Candidate, strategy ir.PickStrategy, count int, rng *rand.Rand) []ir.EntityID {
	if count <= 0 {
		count = 1
	}
	ordered := slices.Clone(cands)
	slices.SortStableFunc(ordered, func(a, b Candidate) int { return cmp.Compare(b.Rank, a.Rank) })

	out := make([]ir.EntityID, 0, min(count, len(ordered)))
	for start := 0; start < len(ordered) && len(out) < count; {
		end := start
		for end < len(ordered) && ordered[end].Rank == ordered[start].Rank {
			end++
		}
		tier := ordered[start:end]
		need := count - len(out)

		switch strategy {
		case ir.PickTop:
			slices.SortStableFunc(tier, func(a, b Candidate) int { return cmp.Compare(b.Weight, a.Weight) })
			out = appendIDs(out, tier[:min(need, len(tier))])
		case ir.PickWeighted:
			out = append(out, weightedDraw(tier, need, rng, false)...)
		case ir.PickRandom:
			out = append(out, weightedDraw(tier, need, rng, true)...)
		default:
			out = appendIDs(out, tier[:min(need, len(tier))])
		}
		start = end
	}
	return out
}

func appendIDs(out []ir.EntityID, cands []Candidate) []ir.EntityID {
	for _, c := range cands {
		out = append(out, c.ID)
	}
	return out
}

// weightedDraw draws n candidates without replacement. Non-positive weights
// count as zero; when every remaining weight is zero the draw is uniform.
func weightedDraw(pool []Candidate, n int, rng *rand.Rand, uniform bool) []ir.EntityID {
	remaining := slices.Clone(pool)
	out := make([]ir.EntityID, 0, min(n, len(remaining)))
	for len(out) < n && len(remaining) > 0 {
		total := 0.0
		if !uniform {
			for _, c := range remaining {
				total += max(0, c.Weight)
			}
		}
		idx := 0
		if total <= 0 {
			idx = rng.IntN(len(remaining))
		} else {
			x := rng.Float64() * total
			idx = len(remaining) - 1
			for i, c := range remaining {
				x -= max(0, c.Weight)
				if x < 0 {
					idx = i
					break
				}
			}
		}
		out = append(out, remaining[idx].ID)
		remaining = slices.Delete(remaining, idx, idx+1)
	}
	return out
}

// WeightedIndex draws an index with probability proportional to weights.
// It returns -1 when weights is empty; all-zero weights draw uniformly.
func WeightedIndex(weights []float64, rng *rand.Rand) int {
	if len(weights) == 0 {
		return -1
	}
	total := 0.0
	for _, w := range weights {
		total += max(0, w)
	}
	if total <= 0 {
		return rng.IntN(len(weights))
	}
	x := rng.Float64() * total
	for i, w := range weights {
		x -= max(0, w)
		if x < 0 {
			return i
		}
	}
	return len(weights) - 1
}
