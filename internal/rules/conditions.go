package rules

import (
	"slices"

	"github.com/roach88/loreweave/internal/ir"
)

// EvaluateCondition reports whether cond holds. Conditions referring to an
// unresolvable entity are false.
func EvaluateCondition(ctx *Context, cond ir.Condition, r EntityResolver) bool {
	switch c := cond.(type) {
	case ir.CountCondition:
		n := len(MatchingEntities(ctx, c.Filters, r))
		return ApplyOperator(c.Op, float64(n), c.Value)

	case ir.MetricCondition:
		return ApplyOperator(c.Op, EvaluateMetric(ctx, c.Metric, r), c.Value)

	case ir.PressureCondition:
		return ApplyOperator(c.Op, ctx.Pressures.Get(c.Pressure), c.Value)

	case ir.TagCondition:
		e, ok := resolveEntity(ctx, r, c.Entity)
		if !ok {
			return false
		}
		return e.HasTag(c.Tag) == c.Present

	case ir.ProminenceCondition:
		e, ok := resolveEntity(ctx, r, c.Entity)
		if !ok {
			return false
		}
		return ApplyOperator(c.Op, e.Prominence, c.Value)

	case ir.RelationshipCondition:
		id, ok := r.Resolve(ctx, c.Entity)
		if !ok {
			return false
		}
		found := false
		if c.With != "" {
			other, ok := r.Resolve(ctx, c.With)
			if !ok {
				return false
			}
			for _, rel := range ctx.Graph.ActiveRelationshipsOf(id, c.Kind, c.Direction) {
				if rel.Other(id) == other {
					found = true
					break
				}
			}
		} else {
			found = ctx.Graph.CountRelationships(id, c.Kind, c.Direction) > 0
		}
		return found == c.Present

	case ir.ChanceCondition:
		if c.Probability <= 0 {
			return false
		}
		return ctx.Rand.Float64() < c.Probability

	case ir.EraCondition:
		return slices.Contains(c.Eras, ctx.EraID)

	case ir.TickCondition:
		return ApplyOperator(c.Op, float64(ctx.Tick), c.Value)

	case ir.AllCondition:
		for _, child := range c.Conditions {
			if !EvaluateCondition(ctx, child, r) {
				return false
			}
		}
		return true

	case ir.AnyCondition:
		for _, child := range c.Conditions {
			if EvaluateCondition(ctx, child, r) {
				return true
			}
		}
		return false

	case ir.NotCondition:
		return !EvaluateCondition(ctx, c.Condition, r)

	default:
		return false
	}
}

// EvaluateAll reports whether every condition holds. An empty list holds.
func EvaluateAll(ctx *Context, conds []ir.Condition, r EntityResolver) bool {
	for _, c := range conds {
		if !EvaluateCondition(ctx, c, r) {
			return false
		}
	}
	return true
}
