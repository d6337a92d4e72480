package rules

import (
	"errors"
	"fmt"
	"maps"
	"strconv"
	"strings"

	"github.com/roach88/loreweave/internal/graph"
	"github.com/roach88/loreweave/internal/ir"
)

// MutationResult is a planned mutation with every reference resolved.
// Planning never touches the graph; ApplyMutationResult commits it.
type MutationResult struct {
	Mutation ir.Mutation
	// Skipped is set when a reference did not resolve; committing a skipped
	// result does nothing.
	Skipped bool
	Reason  string

	Entity ir.EntityID
	Other  ir.EntityID
	// Related lists resolved participants of a narrate mutation.
	Related []ir.EntityID
	// Init is the entity to create for create_entity.
	Init ir.EntityInit
}

func skip(m ir.Mutation, format string, args ...any) MutationResult {
	return MutationResult{Mutation: m, Skipped: true, Reason: fmt.Sprintf(format, args...)}
}

// ApplyMutation resolves a mutation's references and returns the plan.
func ApplyMutation(ctx *Context, mutation ir.Mutation, r EntityResolver) (MutationResult, error) {
	res := MutationResult{Mutation: mutation}
	entity := func(ref ir.VarRef) bool {
		id, ok := r.Resolve(ctx, ref)
		res.Entity = id
		return ok
	}
	pair := func(src, dst ir.VarRef) bool {
		a, okA := r.Resolve(ctx, src)
		b, okB := r.Resolve(ctx, dst)
		res.Entity, res.Other = a, b
		return okA && okB
	}

	switch m := mutation.(type) {
	case ir.SetTagMutation:
		if !entity(m.Entity) {
			return skip(m, "unresolved entity %q", m.Entity), nil
		}
	case ir.RemoveTagMutation:
		if !entity(m.Entity) {
			return skip(m, "unresolved entity %q", m.Entity), nil
		}
	case ir.AdjustProminenceMutation:
		if !entity(m.Entity) {
			return skip(m, "unresolved entity %q", m.Entity), nil
		}
	case ir.SetStatusMutation:
		if !entity(m.Entity) {
			return skip(m, "unresolved entity %q", m.Entity), nil
		}
	case ir.ArchiveEntityMutation:
		if !entity(m.Entity) {
			return skip(m, "unresolved entity %q", m.Entity), nil
		}
	case ir.CreateRelationshipMutation:
		if !pair(m.Src, m.Dst) {
			return skip(m, "unresolved endpoint %q -> %q", m.Src, m.Dst), nil
		}
		if res.Entity == res.Other {
			return skip(m, "self relationship on %s", res.Entity), nil
		}
	case ir.ArchiveRelationshipMutation:
		if !pair(m.Src, m.Dst) {
			return skip(m, "unresolved endpoint %q -> %q", m.Src, m.Dst), nil
		}
	case ir.AdjustRelationshipMutation:
		if !pair(m.Src, m.Dst) {
			return skip(m, "unresolved endpoint %q -> %q", m.Src, m.Dst), nil
		}
	case ir.CreateEntityMutation:
		init, ok := BuildEntityInit(ctx, m.Entity, r, 0)
		if !ok {
			return skip(m, "unresolved reference in entity spec"), nil
		}
		res.Init = init
	case ir.AdjustPressureMutation:
		// Nothing to resolve.
	case ir.NarrateMutation:
		if !entity(m.Subject) {
			return skip(m, "unresolved subject %q", m.Subject), nil
		}
		for _, p := range m.Participants {
			if id, ok := r.Resolve(ctx, p); ok {
				res.Related = append(res.Related, id)
			}
		}
	default:
		return MutationResult{}, fmt.Errorf("unknown mutation %T", mutation)
	}
	return res, nil
}

// ApplyMutationResult commits a planned mutation. It returns the id of the
// entity created by create_entity, or "".
func ApplyMutationResult(ctx *Context, res MutationResult) (ir.EntityID, error) {
	if res.Skipped {
		return "", nil
	}
	g := ctx.Graph
	switch m := res.Mutation.(type) {
	case ir.SetTagMutation:
		return "", g.UpdateEntity(res.Entity, ir.EntityPatch{SetTags: map[string]float64{m.Tag: m.Value}})
	case ir.RemoveTagMutation:
		return "", g.UpdateEntity(res.Entity, ir.EntityPatch{RemoveTags: []string{m.Tag}})
	case ir.AdjustProminenceMutation:
		return "", g.UpdateEntity(res.Entity, ir.EntityPatch{ProminenceDelta: m.Delta})
	case ir.SetStatusMutation:
		if m.Status == ir.StatusArchived {
			return "", g.ArchiveEntity(res.Entity, ir.PolicyArchiveMembers)
		}
		status := m.Status
		return "", g.UpdateEntity(res.Entity, ir.EntityPatch{Status: &status})
	case ir.ArchiveEntityMutation:
		return "", g.ArchiveEntity(res.Entity, m.Policy)
	case ir.CreateRelationshipMutation:
		if g.HasRelationship(res.Entity, res.Other, m.Kind) {
			return "", nil
		}
		_, err := g.AddRelationship(m.Kind, res.Entity, res.Other, m.Strength)
		return "", err
	case ir.ArchiveRelationshipMutation:
		for _, rel := range g.ActiveRelationshipsOf(res.Entity, m.Kind, ir.DirectionOut) {
			if rel.Dst == res.Other {
				if err := g.ArchiveRelationship(rel.ID); err != nil {
					return "", err
				}
			}
		}
		return "", nil
	case ir.AdjustRelationshipMutation:
		for _, rel := range g.ActiveRelationshipsOf(res.Entity, m.Kind, ir.DirectionOut) {
			if rel.Dst == res.Other {
				if _, err := g.ModifyRelationshipStrength(rel.ID, m.Delta); err != nil {
					return "", err
				}
			}
		}
		return "", nil
	case ir.CreateEntityMutation:
		return g.AddEntity(res.Init)
	case ir.AdjustPressureMutation:
		ctx.Pressures.Adjust(m.Pressure, m.Delta)
		return "", nil
	case ir.NarrateMutation:
		g.Annotate(m.Kind, res.Entity, res.Related, m.Description, m.Magnitude)
		return "", nil
	default:
		return "", fmt.Errorf("unknown mutation %T", res.Mutation)
	}
}

// ApplyMutations plans and commits mutations in order. Entities created by
// create_entity are bound under their Bind name into b so later mutations
// can reference them. Mutations refused by the conflict policy, or aimed at
// entities and relationships that are gone or archived, are skipped.
func ApplyMutations(ctx *Context, muts []ir.Mutation, r EntityResolver, b Bindings) error {
	for i, m := range muts {
		res, err := ApplyMutation(ctx, m, r)
		if err != nil {
			return fmt.Errorf("mutation %d: %w", i, err)
		}
		if res.Skipped {
			ctx.Log().Debug("mutation skipped", "tick", ctx.Tick, "index", i, "reason", res.Reason)
			continue
		}
		id, err := ApplyMutationResult(ctx, res)
		if staleTarget(err) {
			ctx.Log().Debug("mutation refused", "tick", ctx.Tick, "index", i, "error", err)
			continue
		}
		if err != nil {
			return fmt.Errorf("mutation %d (%T): %w", i, m, err)
		}
		if cm, ok := m.(ir.CreateEntityMutation); ok && cm.Bind != "" && b != nil {
			b[cm.Bind] = id
		}
	}
	return nil
}

// staleTarget reports graph errors that make a single mutation a no-op
// rather than a system failure.
func staleTarget(err error) bool {
	return errors.Is(err, graph.ErrClaimed) ||
		errors.Is(err, graph.ErrEntityArchived) ||
		errors.Is(err, graph.ErrEntityNotFound) ||
		errors.Is(err, graph.ErrInvalidEndpoint) ||
		errors.Is(err, graph.ErrRelationshipNotFound) ||
		errors.Is(err, graph.ErrRelationshipArchived)
}

// BuildEntityInit turns an entity spec into a concrete init, resolving
// culture inheritance, composite membership and placement. radius bounds
// placement near an anchor; 0 uses the plane's cell size.
func BuildEntityInit(ctx *Context, spec ir.EntitySpec, r EntityResolver, radius float64) (ir.EntityInit, bool) {
	init := ir.EntityInit{
		Kind:       spec.Kind,
		Subtype:    spec.Subtype,
		Culture:    spec.Culture,
		Prominence: spec.Prominence,
		Tags:       maps.Clone(spec.Tags),
	}
	if spec.CultureFrom != "" {
		src, ok := resolveEntity(ctx, r, spec.CultureFrom)
		if !ok {
			return init, false
		}
		init.Culture = src.Culture
	}
	if spec.PartOf != "" {
		id, ok := r.Resolve(ctx, spec.PartOf)
		if !ok {
			return init, false
		}
		init.PartOf = id
	}

	var anchor ir.Entity
	hasAnchor := false
	if spec.Near != "" {
		a, ok := resolveEntity(ctx, r, spec.Near)
		if !ok {
			return init, false
		}
		anchor, hasAnchor = a, true
	}
	if ctx.Coords != nil {
		switch {
		case hasAnchor:
			init.Coords = ctx.Coords.PlaceNear(anchor.Coords, radius, ctx.Rand, occupied(ctx, anchor.Coords.Plane))
		case spec.Plane != "":
			init.Coords = ctx.Coords.PlaceRandom(spec.Plane, ctx.Rand, occupied(ctx, spec.Plane))
		case ctx.Coords.DefaultPlane() != "":
			plane := ctx.Coords.DefaultPlane()
			init.Coords = ctx.Coords.PlaceRandom(plane, ctx.Rand, occupied(ctx, plane))
		}
	}

	vars := map[string]string{
		"kind":    spec.Kind,
		"subtype": spec.Subtype,
		"culture": init.Culture,
		"tick":    strconv.FormatInt(ctx.Tick, 10),
		"n":       strconv.Itoa(ctx.Graph.EntityCount() + 1),
	}
	if hasAnchor {
		vars["anchor"] = anchor.Name
	}
	init.Name = ExpandName(spec.Name, vars)
	return init, true
}

// ExpandName replaces {key} placeholders in pattern.
func ExpandName(pattern string, vars map[string]string) string {
	if !strings.Contains(pattern, "{") {
		return pattern
	}
	pairs := make([]string, 0, 2*len(vars))
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(pattern)
}

func occupied(ctx *Context, plane string) []ir.Coordinates {
	var out []ir.Coordinates
	for _, e := range ctx.Graph.ActiveEntities(func(e ir.Entity) bool { return e.Coords.Plane == plane }) {
		out = append(out, e.Coords)
	}
	return out
}
