package systems

import (
	"errors"
	"fmt"

	"github.com/roach88/loreweave/internal/graph"
	"github.com/roach88/loreweave/internal/ir"
	"github.com/roach88/loreweave/internal/rules"
)

// NewConnectionEvolution builds the connection evolution system. Existing
// relationships of the kind strengthen when their endpoints are similar and
// weaken otherwise; then each source may form one new relationship toward
// targets chosen by the target selection.
func NewConnectionEvolution(cfg ir.SystemConfig, s ir.ConnectionSettings) System {
	sys := base(cfg)
	sys.Run = func(ctx *rules.Context) error {
		g := ctx.Graph
		existing := g.Relationships(func(r ir.Relationship) bool { return r.Active() && r.Kind == s.RelationshipKind })
		for _, r := range existing {
			a, okA := g.Entity(r.Src)
			b, okB := g.Entity(r.Dst)
			if !okA || !okB {
				continue
			}
			delta := -s.Weaken
			if CalculateSimilarity(a, b, s.Weights, s.Radius) >= s.Threshold {
				delta = s.Strengthen
			}
			if delta == 0 {
				continue
			}
			if _, err := g.ModifyRelationshipStrength(r.ID, delta); err != nil {
				return fmt.Errorf("evolve %s: %w", r.ID, err)
			}
		}

		sources := rules.MatchingEntities(ctx, s.Sources, rules.SimpleResolver{})
		for _, src := range sources {
			if s.FormChance <= 0 || ctx.Rand.Float64() >= s.FormChance {
				continue
			}
			spec := s.Target
			spec.Filters = append(append([]ir.Filter{}, spec.Filters...), ir.ExcludeFilter{Entities: []ir.VarRef{ir.VarSelf}})
			r := rules.SimpleResolver{Bindings: rules.Bindings{string(ir.VarSelf): src.ID}}
			for _, dst := range rules.SelectEntities(ctx, spec, r) {
				if g.HasRelationship(src.ID, dst, s.RelationshipKind) {
					continue
				}
				_, err := g.AddRelationship(s.RelationshipKind, src.ID, dst, s.InitialStrength)
				if errors.Is(err, graph.ErrInvalidEndpoint) {
					continue
				}
				if err != nil {
					return fmt.Errorf("form %s->%s: %w", src.ID, dst, err)
				}
			}
		}
		return nil
	}
	return sys
}
