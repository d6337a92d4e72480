package rules

import (
	"strconv"
	"strings"

	"github.com/roach88/loreweave/internal/ir"
)

// Bindings maps variable names to entity ids.
type Bindings map[string]ir.EntityID

// Clone returns a copy of the bindings.
func (b Bindings) Clone() Bindings {
	out := make(Bindings, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

// EntityResolver turns a variable reference into an entity id.
type EntityResolver interface {
	Resolve(ctx *Context, ref ir.VarRef) (ir.EntityID, bool)
}

// SimpleResolver resolves, in order: a bound variable, "tag:<name>" (first
// active entity carrying the tag), then a literal entity id.
type SimpleResolver struct {
	Bindings Bindings
}

// Resolve implements EntityResolver.
func (r SimpleResolver) Resolve(ctx *Context, ref ir.VarRef) (ir.EntityID, bool) {
	if ref == "" {
		ref = ir.VarSelf
	}
	if id, ok := r.Bindings[string(ref)]; ok && id != "" {
		return id, true
	}
	if tag, ok := strings.CutPrefix(string(ref), "tag:"); ok {
		ids := ctx.Graph.ActiveIDs(func(e ir.Entity) bool { return e.HasTag(tag) })
		if len(ids) == 0 {
			return "", false
		}
		return ids[0], true
	}
	if ref == ir.VarSelf || ref == ir.VarActor || ref == ir.VarTarget || ref == ir.VarAnchor {
		return "", false
	}
	id := ir.EntityID(ref)
	if ctx.Graph.Has(id) {
		return id, true
	}
	return "", false
}

// ActionResolver resolves relative to an in-flight action: "actor" and
// "self" are the actor, "target" is the first target and "target.N" the
// N-th. Anything else falls back to SimpleResolver over Bindings.
type ActionResolver struct {
	Actor    ir.EntityID
	Targets  []ir.EntityID
	Bindings Bindings
}

// Resolve implements EntityResolver.
func (r ActionResolver) Resolve(ctx *Context, ref ir.VarRef) (ir.EntityID, bool) {
	switch {
	case ref == "" || ref == ir.VarSelf || ref == ir.VarActor:
		return r.Actor, r.Actor != ""
	case ref == ir.VarTarget:
		if len(r.Targets) == 0 {
			break
		}
		return r.Targets[0], true
	}
	if n, ok := strings.CutPrefix(string(ref), "target."); ok {
		i, err := strconv.Atoi(n)
		if err != nil || i < 0 || i >= len(r.Targets) {
			return "", false
		}
		return r.Targets[i], true
	}
	return SimpleResolver{Bindings: r.Bindings}.Resolve(ctx, ref)
}

// resolveEntity resolves ref and loads the entity.
func resolveEntity(ctx *Context, r EntityResolver, ref ir.VarRef) (ir.Entity, bool) {
	id, ok := r.Resolve(ctx, ref)
	if !ok {
		return ir.Entity{}, false
	}
	return ctx.Graph.Entity(id)
}

// ResolveVariablesForEntity binds "self" to self and then each declared
// variable, in order, to the entity its selection picks. Selections see
// earlier bindings and never pick self. Extra picks bind as "<name>.1",
// "<name>.2" and so on. ok is false when a required variable has no
// candidate.
func ResolveVariablesForEntity(ctx *Context, vars []ir.VariableSpec, self ir.EntityID) (Bindings, bool) {
	b := Bindings{string(ir.VarSelf): self}
	for _, v := range vars {
		spec := v.Select
		spec.Filters = append(append([]ir.Filter{}, spec.Filters...), ir.ExcludeFilter{Entities: []ir.VarRef{ir.VarSelf}})
		ids := SelectEntities(ctx, spec, SimpleResolver{Bindings: b})
		if len(ids) == 0 {
			if v.Required {
				return b, false
			}
			continue
		}
		b[v.Name] = ids[0]
		for i, id := range ids[1:] {
			b[v.Name+"."+strconv.Itoa(i+1)] = id
		}
	}
	return b, true
}

// Targets returns the ids bound to name, name.1, name.2, ... in order.
func (b Bindings) Targets(name string) []ir.EntityID {
	first, ok := b[name]
	if !ok {
		return nil
	}
	out := []ir.EntityID{first}
	for i := 1; ; i++ {
		id, ok := b[name+"."+strconv.Itoa(i)]
		if !ok {
			return out
		}
		out = append(out, id)
	}
}
