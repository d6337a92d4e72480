package systems

import (
	"fmt"
	"math"

	"github.com/roach88/loreweave/internal/ir"
	"github.com/roach88/loreweave/internal/rules"
)

// NewGraphContagion builds the graph contagion system. The infected set is
// fixed when the system starts each tick, so newly infected entities do not
// spread until the next tick. Each edge from an infected entity transmits with
// probability transmission * strength; recovery removes the tag and sets
// the immunity tag.
func NewGraphContagion(cfg ir.SystemConfig, s ir.ContagionSettings) System {
	sys := base(cfg)
	sys.Run = func(ctx *rules.Context) error {
		g := ctx.Graph
		infected := g.ActiveEntities(func(e ir.Entity) bool { return e.HasTag(s.Tag) })
		isInfected := make(map[ir.EntityID]bool, len(infected))
		for _, e := range infected {
			isInfected[e.ID] = true
		}

		type infection struct {
			id    ir.EntityID
			value float64
		}
		var (
			newly     []infection
			recovered []ir.EntityID
			claimed   = make(map[ir.EntityID]bool)
		)
		for _, src := range infected {
			for _, r := range g.GetActiveRelationships(src.ID) {
				if !viaKind(s.Via, r.Kind) {
					continue
				}
				other := r.Other(src.ID)
				if isInfected[other] || claimed[other] {
					continue
				}
				n, ok := g.Entity(other)
				if !ok || !n.Active() || (s.ImmunityTag != "" && n.HasTag(s.ImmunityTag)) {
					continue
				}
				if !rules.EntityPassesAllFilters(ctx, n, s.Susceptible, rules.SimpleResolver{}) {
					continue
				}
				if ctx.Rand.Float64() < s.Transmission*r.Strength {
					claimed[other] = true
					newly = append(newly, infection{id: other, value: src.Tags[s.Tag]})
				}
			}
			if s.Recovery > 0 && ctx.Rand.Float64() < s.Recovery {
				recovered = append(recovered, src.ID)
			}
		}

		for _, inf := range newly {
			if err := g.UpdateEntity(inf.id, ir.EntityPatch{SetTags: map[string]float64{s.Tag: inf.value}}); err != nil {
				return fmt.Errorf("infect %s: %w", inf.id, err)
			}
		}
		for _, id := range recovered {
			patch := ir.EntityPatch{RemoveTags: []string{s.Tag}}
			if s.ImmunityTag != "" {
				patch.SetTags = map[string]float64{s.ImmunityTag: 1}
			}
			if err := g.UpdateEntity(id, patch); err != nil {
				return fmt.Errorf("recover %s: %w", id, err)
			}
		}
		return nil
	}
	return sys
}

// DiffusionDelta returns rate * sum(s_i * (v_i - v)) / sum(s_i) for one node,
// or 0 when the node has no weighted neighbors.
func DiffusionDelta(v float64, neighbors, strengths []float64, rate float64) float64 {
	num, den := 0.0, 0.0
	for i, nv := range neighbors {
		num += strengths[i] * (nv - v)
		den += strengths[i]
	}
	if den <= 0 {
		return 0
	}
	return rate * num / den
}

// NewTagDiffusion builds the tag diffusion system. All deltas are computed
// from the tick-start values and applied together; results are clamped to
// [min, max].
func NewTagDiffusion(cfg ir.SystemConfig, s ir.TagDiffusionSettings) System {
	sys := base(cfg)
	sys.Run = func(ctx *rules.Context) error {
		g := ctx.Graph
		nodes := rules.MatchingEntities(ctx, s.Filters, rules.SimpleResolver{})
		value := make(map[ir.EntityID]float64, len(nodes))
		for _, e := range nodes {
			value[e.ID] = e.Tags[s.Tag]
		}

		type update struct {
			id     ir.EntityID
			before float64
			after  float64
			had    bool
		}
		var updates []update
		for _, e := range nodes {
			var vals, weights []float64
			for _, r := range g.GetActiveRelationships(e.ID) {
				if !viaKind(s.Via, r.Kind) {
					continue
				}
				nv, ok := value[r.Other(e.ID)]
				if !ok {
					continue
				}
				vals = append(vals, nv)
				weights = append(weights, r.Strength)
			}
			v := value[e.ID]
			delta := DiffusionDelta(v, vals, weights, s.Rate)
			if math.Abs(delta) < 1e-12 {
				continue
			}
			updates = append(updates, update{id: e.ID, before: v, after: min(s.Max, max(s.Min, v+delta)), had: e.HasTag(s.Tag)})
		}
		for _, u := range updates {
			if u.had && u.after == u.before {
				continue
			}
			if err := g.UpdateEntity(u.id, ir.EntityPatch{SetTags: map[string]float64{s.Tag: u.after}}); err != nil {
				return fmt.Errorf("diffuse %s: %w", u.id, err)
			}
		}
		return nil
	}
	return sys
}

// NewPlaneDiffusion builds the plane diffusion system. Entities on the plane
// carrying the source tag inject its value into the plane's field, the field
// diffuses and decays, and every entity on the plane receives the sampled
// value as its output tag.
func NewPlaneDiffusion(cfg ir.SystemConfig, s ir.PlaneDiffusionSettings) System {
	sys := base(cfg)
	sys.Run = func(ctx *rules.Context) error {
		if ctx.Coords == nil {
			return fmt.Errorf("plane %q: no coordinate context", s.Plane)
		}
		g := ctx.Graph
		field := ctx.Coords.Field(s.Plane, s.NoiseScale)
		onPlane := g.ActiveEntities(func(e ir.Entity) bool { return e.Coords.Plane == s.Plane })
		for _, e := range onPlane {
			if v, ok := e.Tags[s.SourceTag]; ok {
				field.Inject(e.Coords, v)
			}
		}
		field.Step(s.Rate, s.Decay)
		for _, e := range onPlane {
			v := field.Sample(e.Coords)
			if old, ok := e.Tags[s.OutputTag]; ok && math.Abs(old-v) < 1e-6 {
				continue
			}
			if err := g.UpdateEntity(e.ID, ir.EntityPatch{SetTags: map[string]float64{s.OutputTag: v}}); err != nil {
				return fmt.Errorf("sample %s: %w", e.ID, err)
			}
		}
		return nil
	}
	return sys
}
