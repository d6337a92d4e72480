package interp

import (
	"fmt"

	"github.com/roach88/loreweave/internal/ir"
	"github.com/roach88/loreweave/internal/rules"
)

// Template is an executable entity template.
type Template struct {
	cfg ir.TemplateConfig
}

// CreateTemplateFromDeclarative validates cfg and builds a Template.
func CreateTemplateFromDeclarative(cfg ir.TemplateConfig) (*Template, error) {
	if cfg.ID == "" {
		return nil, configErr("template", "", "id", "required")
	}
	if cfg.Weight < 0 {
		return nil, configErr("template", cfg.ID, "weight", "must not be negative")
	}
	placement := cfg.Placement
	if placement == "" {
		placement = ir.PlacementRandom
	}
	if !ir.ValidPlacements[placement] {
		return nil, configErr("template", cfg.ID, "placement", "unknown placement %q", cfg.Placement)
	}
	if (placement == ir.PlacementNearAnchor || placement == ir.PlacementAnchorPlane) && cfg.Anchor == nil {
		return nil, configErr("template", cfg.ID, "anchor", "required by placement %q", placement)
	}
	cfg.Placement = placement

	err := checkEntitySpec("entity", cfg.Entity)
	if err == nil {
		err = checkConditions("conditions", cfg.Conditions)
	}
	if err == nil && cfg.Anchor != nil {
		err = checkSelection("anchor", *cfg.Anchor)
	}
	if err == nil {
		err = checkMutations("mutations", cfg.Mutations)
	}
	for i, rel := range cfg.Relationships {
		if err != nil {
			break
		}
		if rel.Kind == "" {
			err = bad(fmt.Sprintf("relationships[%d].kind", i), "required")
		}
	}
	if err != nil {
		return nil, wrap("template", cfg.ID, err)
	}
	return &Template{cfg: cfg}, nil
}

// ID returns the template id.
func (t *Template) ID() string { return t.cfg.ID }

// Weight returns the declared selection weight.
func (t *Template) Weight() float64 { return t.cfg.Weight }

// EraWeight returns the weight multiplier for era; unlisted eras weigh 1.
func (t *Template) EraWeight(eraID string) float64 {
	if w, ok := t.cfg.EraWeights[eraID]; ok {
		return w
	}
	return 1
}

// CanApply reports whether the conditions hold and, for anchored templates,
// at least one anchor candidate exists.
func (t *Template) CanApply(ctx *rules.Context) bool {
	if !rules.EvaluateAll(ctx, t.cfg.Conditions, rules.SimpleResolver{}) {
		return false
	}
	if t.cfg.Anchor == nil {
		return true
	}
	return len(rules.MatchingEntities(ctx, t.cfg.Anchor.Filters, rules.SimpleResolver{})) > 0
}

// Expand creates one entity. The new entity is bound as "self" and the
// anchor as "anchor" for the template's relationships and mutations.
func (t *Template) Expand(ctx *rules.Context) (ir.EntityID, error) {
	b := rules.Bindings{}
	var anchor ir.Entity
	if t.cfg.Anchor != nil {
		ids := rules.SelectEntities(ctx, *t.cfg.Anchor, rules.SimpleResolver{})
		if len(ids) == 0 {
			return "", nil
		}
		b[string(ir.VarAnchor)] = ids[0]
		anchor, _ = ctx.Graph.Entity(ids[0])
	}

	spec := t.cfg.Entity
	switch t.cfg.Placement {
	case ir.PlacementNearAnchor:
		spec.Near = ir.VarAnchor
	case ir.PlacementAnchorPlane:
		spec.Plane = anchor.Coords.Plane
	}
	r := rules.SimpleResolver{Bindings: b}
	init, ok := rules.BuildEntityInit(ctx, spec, r, t.cfg.Radius)
	if !ok {
		ctx.Log().Debug("template skipped: unresolved reference", "template", t.cfg.ID, "tick", ctx.Tick)
		return "", nil
	}
	if t.cfg.Placement == ir.PlacementNone {
		init.Coords = ir.Coordinates{}
	}
	id, err := ctx.Graph.AddEntity(init)
	if err != nil {
		return "", err
	}
	b[string(ir.VarSelf)] = id

	muts := make([]ir.Mutation, 0, len(t.cfg.Relationships)+len(t.cfg.Mutations))
	for _, rel := range t.cfg.Relationships {
		muts = append(muts, ir.CreateRelationshipMutation{Kind: rel.Kind, Src: rel.Src, Dst: rel.Dst, Strength: rel.Strength})
	}
	muts = append(muts, t.cfg.Mutations...)
	if err := rules.ApplyMutations(ctx, muts, r, b); err != nil {
		return id, err
	}
	return id, nil
}
