package systems

import (
	"cmp"
	"fmt"
	"maps"
	"slices"

	"github.com/roach88/loreweave/internal/coords"
	"github.com/roach88/loreweave/internal/ir"
	"github.com/roach88/loreweave/internal/rules"
)

// CalculateSimilarity scores two entities in [0, 1] as the weighted mean of
// tag Jaccard similarity, culture match and proximity within radius.
func CalculateSimilarity(a, b ir.Entity, w ir.SimilarityWeights, radius float64) float64 {
	total := w.Tags + w.Culture + w.Proximity
	if total <= 0 {
		return 0
	}
	score := 0.0
	if w.Tags > 0 {
		score += w.Tags * jaccard(a.Tags, b.Tags)
	}
	if w.Culture > 0 && a.Culture != "" && a.Culture == b.Culture {
		score += w.Culture
	}
	if w.Proximity > 0 && radius > 0 {
		if d := coords.Distance(a.Coords, b.Coords); d < radius {
			score += w.Proximity * (1 - d/radius)
		}
	}
	return score / total
}

func jaccard(a, b map[string]float64) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for k := range a {
		if _, ok := b[k]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// FindBestClusterMatch returns the index of the cluster whose mean
// similarity to e is highest and at least threshold, or -1. Full clusters
// (maxSize > 0) are skipped; ties keep the earlier cluster.
func FindBestClusterMatch(e ir.Entity, clusters [][]ir.Entity, w ir.SimilarityWeights, radius, threshold float64, maxSize int) int {
	best, bestScore := -1, threshold
	for i, cl := range clusters {
		if len(cl) == 0 || (maxSize > 0 && len(cl) >= maxSize) {
			continue
		}
		sum := 0.0
		for _, m := range cl {
			sum += CalculateSimilarity(e, m, w, radius)
		}
		score := sum / float64(len(cl))
		if score > bestScore || (best == -1 && score >= threshold) {
			best, bestScore = i, score
		}
	}
	return best
}

// DetectClusters groups entities greedily in input order.
func DetectClusters(ents []ir.Entity, s ir.ClusterSettings) [][]ir.Entity {
	var clusters [][]ir.Entity
	for _, e := range ents {
		if i := FindBestClusterMatch(e, clusters, s.Weights, s.Radius, s.Threshold, s.MaxSize); i >= 0 {
			clusters[i] = append(clusters[i], e)
			continue
		}
		clusters = append(clusters, []ir.Entity{e})
	}
	return clusters
}

// NewClusterFormation builds the cluster formation system. Clusters are
// recomputed every run from unaffiliated entities; each cluster of at least
// min_size members becomes a composite entity.
func NewClusterFormation(cfg ir.SystemConfig, s ir.ClusterSettings) System {
	sys := base(cfg)
	sys.Run = func(ctx *rules.Context) error {
		cands := rules.MatchingEntities(ctx, s.Filters, rules.SimpleResolver{})
		cands = slices.DeleteFunc(cands, func(e ir.Entity) bool { return e.PartOf != "" })

		formed := 0
		for _, cl := range DetectClusters(cands, s) {
			if len(cl) < max(2, s.MinSize) {
				continue
			}
			if s.MaxPerTick > 0 && formed >= s.MaxPerTick {
				break
			}
			if err := formComposite(ctx, cl, s); err != nil {
				return err
			}
			formed++
		}
		return nil
	}
	return sys
}

func formComposite(ctx *rules.Context, members []ir.Entity, s ir.ClusterSettings) error {
	points := make([]ir.Coordinates, len(members))
	cultures := make(map[string]int)
	prom := 0.0
	ids := make([]ir.EntityID, len(members))
	for i, m := range members {
		points[i] = m.Coords
		ids[i] = m.ID
		prom += m.Prominence
		if m.Culture != "" {
			cultures[m.Culture]++
		}
	}
	culture := majority(cultures)

	spec := s.Composite
	init := ir.EntityInit{
		Kind:       spec.Kind,
		Subtype:    spec.Subtype,
		Culture:    culture,
		Prominence: spec.Prominence,
		Tags:       maps.Clone(spec.Tags),
		Coords:     coords.Centroid(points),
		Name: rules.ExpandName(spec.Name, map[string]string{
			"kind":    spec.Kind,
			"subtype": spec.Subtype,
			"culture": culture,
			"size":    fmt.Sprint(len(members)),
		}),
	}
	if init.Prominence == 0 {
		init.Prominence = prom / float64(len(members))
	}
	composite, err := ctx.Graph.AddEntity(init)
	if err != nil {
		return fmt.Errorf("composite: %w", err)
	}
	for _, id := range ids {
		parent := composite
		if err := ctx.Graph.UpdateEntity(id, ir.EntityPatch{PartOf: &parent}); err != nil {
			return fmt.Errorf("join %s: %w", id, err)
		}
		if s.RelationshipKind != "" && s.RelationshipKind != ir.KindPartOf {
			if _, err := ctx.Graph.AddRelationship(s.RelationshipKind, id, composite, 1); err != nil {
				return fmt.Errorf("link %s: %w", id, err)
			}
		}
	}
	ctx.Graph.Annotate("cluster_formed", composite, ids, "", float64(len(members)))
	return nil
}

// majority returns the most common key; ties go to the smallest key.
func majority(counts map[string]int) string {
	keys := slices.Sorted(maps.Keys(counts))
	best := ""
	for _, k := range keys {
		if best == "" || cmp.Compare(counts[k], counts[best]) > 0 {
			best = k
		}
	}
	return best
}
