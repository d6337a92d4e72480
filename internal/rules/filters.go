package rules

import (
	"slices"

	"github.com/roach88/loreweave/internal/coords"
	"github.com/roach88/loreweave/internal/ir"
)

// EntityPassesFilter reports whether e satisfies f. Filters that reference
// an unresolvable variable reject the entity.
func EntityPassesFilter(ctx *Context, e ir.Entity, f ir.Filter, r EntityResolver) bool {
	switch f := f.(type) {
	case ir.KindFilter:
		if e.Kind != f.Kind {
			return false
		}
		return len(f.Subtypes) == 0 || slices.Contains(f.Subtypes, e.Subtype)

	case ir.StatusFilter:
		return e.Status == f.Status

	case ir.TagFilter:
		v, has := e.Tags[f.Tag]
		if !f.Present {
			return !has
		}
		if !has {
			return false
		}
		return !f.Compared || ApplyOperator(f.Op, v, f.Value)

	case ir.CultureFilter:
		want := f.Culture
		if f.SameAs != "" {
			other, ok := resolveEntity(ctx, r, f.SameAs)
			if !ok {
				return false
			}
			want = other.Culture
		}
		return (e.Culture == want) != f.Different

	case ir.ProminenceFilter:
		return ApplyOperator(f.Op, e.Prominence, f.Value)

	case ir.RelationshipFilter:
		n := 0
		if f.With != "" {
			other, ok := r.Resolve(ctx, f.With)
			if !ok {
				return false
			}
			for _, rel := range ctx.Graph.ActiveRelationshipsOf(e.ID, f.Kind, f.Direction) {
				if rel.Other(e.ID) == other {
					n++
				}
			}
		} else {
			n = ctx.Graph.CountRelationships(e.ID, f.Kind, f.Direction)
		}
		return ApplyOperator(f.Op, float64(n), f.Count)

	case ir.PlaneFilter:
		return e.Coords.Plane == f.Plane

	case ir.NearFilter:
		other, ok := resolveEntity(ctx, r, f.Of)
		if !ok {
			return false
		}
		return coords.Distance(e.Coords, other.Coords) <= f.Radius

	case ir.PartOfFilter:
		if f.Of == "" {
			return (e.PartOf != "") == f.Present
		}
		composite, ok := r.Resolve(ctx, f.Of)
		if !ok {
			return false
		}
		return (e.PartOf == composite) == f.Present

	case ir.ExcludeFilter:
		for _, ref := range f.Entities {
			if id, ok := r.Resolve(ctx, ref); ok && id == e.ID {
				return false
			}
		}
		return true

	case ir.NotFilter:
		return !EntityPassesFilter(ctx, e, f.Filter, r)

	default:
		return false
	}
}

// EntityPassesAllFilters reports whether e satisfies every filter.
func EntityPassesAllFilters(ctx *Context, e ir.Entity, filters []ir.Filter, r EntityResolver) bool {
	for _, f := range filters {
		if !EntityPassesFilter(ctx, e, f, r) {
			return false
		}
	}
	return true
}

// MatchingEntities returns active entities passing filters, in insertion order.
func MatchingEntities(ctx *Context, filters []ir.Filter, r EntityResolver) []ir.Entity {
	return ctx.Graph.ActiveEntities(func(e ir.Entity) bool {
		return EntityPassesAllFilters(ctx, e, filters, r)
	})
}
