package systems

import (
	"fmt"
	"slices"

	"github.com/roach88/loreweave/internal/ir"
	"github.com/roach88/loreweave/internal/rules"
)

// NewRelationshipMaintenance builds the relationship maintenance system.
// Every maintained relationship decays each tick; pairs sharing a culture or
// a composite are reinforced. Relationships older than grace_ticks whose
// strength fell below cull_threshold are archived.
func NewRelationshipMaintenance(cfg ir.SystemConfig, s ir.MaintenanceSettings) System {
	sys := base(cfg)
	sys.Run = func(ctx *rules.Context) error {
		g := ctx.Graph
		rels := g.Relationships(func(r ir.Relationship) bool {
			if !r.Active() || structural(r.Kind) || g.IsHistoricalKind(r.Kind) {
				return false
			}
			return len(s.Kinds) == 0 || slices.Contains(s.Kinds, r.Kind)
		})
		for _, r := range rels {
			a, _ := g.Entity(r.Src)
			b, _ := g.Entity(r.Dst)
			delta := -s.Decay
			if (a.Culture != "" && a.Culture == b.Culture) || (a.PartOf != "" && a.PartOf == b.PartOf) {
				delta += s.Reinforce
			}
			strength := r.Strength
			if delta != 0 {
				v, err := g.ModifyRelationshipStrength(r.ID, delta)
				if err != nil {
					return fmt.Errorf("maintain %s: %w", r.ID, err)
				}
				strength = v
			}
			if strength < s.CullThreshold && ctx.Tick-r.FormedTick >= int64(s.GraceTicks) {
				if err := g.ArchiveRelationship(r.ID); err != nil {
					return fmt.Errorf("cull %s: %w", r.ID, err)
				}
			}
		}
		return nil
	}
	return sys
}
