// Package graph is the typed entity/relationship store of a run.
//
// The store is an arena plus indices: entities and relationships live in
// id-keyed tables with insertion-order slices, and adjacency lists map each
// entity to the ids of its outgoing and incoming relationships. Callers hold
// ids only and re-resolve through the store on every access; every read
// returns a copy.
//
// A Graph is owned by exactly one engine and is not safe for concurrent use.
package graph

import (
	"fmt"
	"maps"
	"slices"

	"github.com/roach88/loreweave/internal/ir"
)

// Listener receives every mutation applied to the graph, in order.
type Listener interface {
	Record(rec ir.MutationRecord)
}

// Graph stores the entities and relationships of one run.
type Graph struct {
	entities map[ir.EntityID]*ir.Entity
	order    []ir.EntityID
	byKind   map[string][]ir.EntityID
	members  map[ir.EntityID][]ir.EntityID

	rels     map[ir.RelationshipID]*ir.Relationship
	relOrder []ir.RelationshipID
	out      map[ir.EntityID][]ir.RelationshipID
	in       map[ir.EntityID][]ir.RelationshipID

	// idCounters hold the next generated suffix per kind; ids are never reused.
	idCounters map[string]int64
	relSeq     int64
	recSeq     int64

	tick       int64
	actor      string
	listener   Listener
	policy     ir.ConflictPolicy
	claims     map[ir.EntityID]string
	historical map[string]bool
}

// Option configures a Graph.
type Option func(*Graph)

// WithListener sets the mutation listener.
func WithListener(l Listener) Option {
	return func(g *Graph) { g.listener = l }
}

// WithConflictPolicy sets the conflict policy. Default: sequential.
func WithConflictPolicy(p ir.ConflictPolicy) Option {
	return func(g *Graph) { g.policy = p }
}

// WithHistoricalEdgeKinds declares relationship kinds that may reference
// archived entities. The supersedes kind is always historical.
func WithHistoricalEdgeKinds(kinds ...string) Option {
	return func(g *Graph) {
		for _, k := range kinds {
			g.historical[k] = true
		}
	}
}

// New creates an empty graph.
func New(opts ...Option) *Graph {
	g := &Graph{
		entities:   make(map[ir.EntityID]*ir.Entity),
		byKind:     make(map[string][]ir.EntityID),
		members:    make(map[ir.EntityID][]ir.EntityID),
		rels:       make(map[ir.RelationshipID]*ir.Relationship),
		out:        make(map[ir.EntityID][]ir.RelationshipID),
		in:         make(map[ir.EntityID][]ir.RelationshipID),
		idCounters: make(map[string]int64),
		policy:     ir.ConflictSequential,
		claims:     make(map[ir.EntityID]string),
		historical: map[string]bool{ir.KindSupersedes: true},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// SetListener replaces the mutation listener.
func (g *Graph) SetListener(l Listener) {
	g.listener = l
}

// SetActor tags subsequent mutations with the given system id.
func (g *Graph) SetActor(systemID string) {
	g.actor = systemID
}

// Actor returns the current actor.
func (g *Graph) Actor() string {
	return g.actor
}

// SetTick advances the logical clock and clears per-tick claims.
func (g *Graph) SetTick(tick int64) {
	g.tick = tick
	clear(g.claims)
}

// Tick returns the current tick.
func (g *Graph) Tick() int64 {
	return g.tick
}

// ConflictPolicy returns the active conflict policy.
func (g *Graph) ConflictPolicy() ir.ConflictPolicy {
	return g.policy
}

// IsHistoricalKind reports whether edges of kind may reference archived entities.
func (g *Graph) IsHistoricalKind(kind string) bool {
	return g.historical[kind]
}

// HistoricalKinds returns the declared historical edge kinds, sorted.
func (g *Graph) HistoricalKinds() []string {
	return slices.Sorted(maps.Keys(g.historical))
}

// Entity returns a copy of the entity with the given id.
func (g *Graph) Entity(id ir.EntityID) (ir.Entity, bool) {
	e, ok := g.entities[id]
	if !ok {
		return ir.Entity{}, false
	}
	return e.Clone(), true
}

// Has reports whether id names an entity in any status.
func (g *Graph) Has(id ir.EntityID) bool {
	_, ok := g.entities[id]
	return ok
}

// EntityCount returns the number of entities in any status.
func (g *Graph) EntityCount() int {
	return len(g.order)
}

// RelationshipCount returns the number of relationships in any status.
func (g *Graph) RelationshipCount() int {
	return len(g.relOrder)
}

// FindEntities returns every entity matching pred, in insertion order.
// A nil pred matches all.
func (g *Graph) FindEntities(pred func(ir.Entity) bool) []ir.Entity {
	var out []ir.Entity
	for _, id := range g.order {
		e := g.entities[id]
		if pred == nil || pred(*e) {
			out = append(out, e.Clone())
		}
	}
	return out
}

// ActiveEntities returns active entities matching pred, in insertion order.
func (g *Graph) ActiveEntities(pred func(ir.Entity) bool) []ir.Entity {
	return g.FindEntities(func(e ir.Entity) bool {
		return e.Active() && (pred == nil || pred(e))
	})
}

// ActiveIDs returns ids of active entities matching pred, in insertion order.
func (g *Graph) ActiveIDs(pred func(ir.Entity) bool) []ir.EntityID {
	var out []ir.EntityID
	for _, id := range g.order {
		e := g.entities[id]
		if e.Active() && (pred == nil || pred(*e)) {
			out = append(out, id)
		}
	}
	return out
}

// ByKind returns entities of kind in any status, in insertion order.
func (g *Graph) ByKind(kind string) []ir.Entity {
	ids := g.byKind[kind]
	out := make([]ir.Entity, 0, len(ids))
	for _, id := range ids {
		out = append(out, g.entities[id].Clone())
	}
	return out
}

// Members returns the ids of entities whose PartOf is id.
func (g *Graph) Members(id ir.EntityID) []ir.EntityID {
	return slices.Clone(g.members[id])
}

// Relationship returns a copy of the relationship with the given id.
func (g *Graph) Relationship(id ir.RelationshipID) (ir.Relationship, bool) {
	r, ok := g.rels[id]
	if !ok {
		return ir.Relationship{}, false
	}
	return *r, true
}

// Relationships returns every relationship matching pred, in insertion order.
func (g *Graph) Relationships(pred func(ir.Relationship) bool) []ir.Relationship {
	var out []ir.Relationship
	for _, id := range g.relOrder {
		r := g.rels[id]
		if pred == nil || pred(*r) {
			out = append(out, *r)
		}
	}
	return out
}

// edges returns relationship ids touching id in the given direction,
// outgoing before incoming, each in formation order.
func (g *Graph) edges(id ir.EntityID, dir ir.Direction) []ir.RelationshipID {
	switch dir {
	case ir.DirectionOut:
		return g.out[id]
	case ir.DirectionIn:
		return g.in[id]
	default:
		all := make([]ir.RelationshipID, 0, len(g.out[id])+len(g.in[id]))
		all = append(all, g.out[id]...)
		return append(all, g.in[id]...)
	}
}

func (g *Graph) relationshipsOf(id ir.EntityID, dir ir.Direction, kind string, active bool) []ir.Relationship {
	var out []ir.Relationship
	for _, rid := range g.edges(id, dir) {
		r := g.rels[rid]
		if r.Active() != active {
			continue
		}
		if kind != "" && r.Kind != kind {
			continue
		}
		out = append(out, *r)
	}
	return out
}

// GetActiveRelationships returns active relationships touching id in either direction.
func (g *Graph) GetActiveRelationships(id ir.EntityID) []ir.Relationship {
	return g.relationshipsOf(id, ir.DirectionBoth, "", true)
}

// GetHistoricalRelationships returns archived relationships touching id in
// either direction.
func (g *Graph) GetHistoricalRelationships(id ir.EntityID) []ir.Relationship {
	return g.relationshipsOf(id, ir.DirectionBoth, "", false)
}

// ActiveRelationshipsOf returns active relationships of kind touching id in
// direction dir. An empty kind matches all kinds.
func (g *Graph) ActiveRelationshipsOf(id ir.EntityID, kind string, dir ir.Direction) []ir.Relationship {
	return g.relationshipsOf(id, dir, kind, true)
}

// GetRelated returns the entities at the other end of id's active
// relationships of kind in direction dir. Each neighbor appears once.
func (g *Graph) GetRelated(id ir.EntityID, kind string, dir ir.Direction) []ir.Entity {
	seen := make(map[ir.EntityID]bool)
	var out []ir.Entity
	for _, r := range g.relationshipsOf(id, dir, kind, true) {
		other := r.Other(id)
		if seen[other] {
			continue
		}
		seen[other] = true
		if e, ok := g.entities[other]; ok {
			out = append(out, e.Clone())
		}
	}
	return out
}

// HasRelationship reports whether an active relationship of kind links a
// and b in either direction. An empty kind matches all kinds.
func (g *Graph) HasRelationship(a, b ir.EntityID, kind string) bool {
	_, ok := g.findActive(a, b, kind)
	return ok
}

// FindRelationship returns the first active relationship of kind from src to dst.
func (g *Graph) FindRelationship(src, dst ir.EntityID, kind string) (ir.Relationship, bool) {
	for _, rid := range g.out[src] {
		r := g.rels[rid]
		if r.Active() && r.Dst == dst && (kind == "" || r.Kind == kind) {
			return *r, true
		}
	}
	return ir.Relationship{}, false
}

func (g *Graph) findActive(a, b ir.EntityID, kind string) (ir.Relationship, bool) {
	if r, ok := g.FindRelationship(a, b, kind); ok {
		return r, true
	}
	return g.FindRelationship(b, a, kind)
}

// CountRelationships counts active relationships of kind touching id in
// direction dir.
func (g *Graph) CountRelationships(id ir.EntityID, kind string, dir ir.Direction) int {
	n := 0
	for _, rid := range g.edges(id, dir) {
		r := g.rels[rid]
		if r.Active() && (kind == "" || r.Kind == kind) {
			n++
		}
	}
	return n
}

// Snapshot returns copies of all entities and relationships in insertion order.
func (g *Graph) Snapshot() ([]ir.Entity, []ir.Relationship) {
	return g.FindEntities(nil), g.Relationships(nil)
}

// Digest hashes the current state.
func (g *Graph) Digest() (string, error) {
	ents, rels := g.Snapshot()
	d, err := ir.StateDigest(ents, rels)
	if err != nil {
		return "", fmt.Errorf("graph digest: %w", err)
	}
	return d, nil
}

// Clone returns a deep copy of the graph. The copy shares the listener.
func (g *Graph) Clone() *Graph {
	c := &Graph{
		entities:   make(map[ir.EntityID]*ir.Entity, len(g.entities)),
		order:      slices.Clone(g.order),
		byKind:     make(map[string][]ir.EntityID, len(g.byKind)),
		members:    make(map[ir.EntityID][]ir.EntityID, len(g.members)),
		rels:       make(map[ir.RelationshipID]*ir.Relationship, len(g.rels)),
		relOrder:   slices.Clone(g.relOrder),
		out:        make(map[ir.EntityID][]ir.RelationshipID, len(g.out)),
		in:         make(map[ir.EntityID][]ir.RelationshipID, len(g.in)),
		idCounters: maps.Clone(g.idCounters),
		relSeq:     g.relSeq,
		recSeq:     g.recSeq,
		tick:       g.tick,
		actor:      g.actor,
		listener:   g.listener,
		policy:     g.policy,
		claims:     maps.Clone(g.claims),
		historical: maps.Clone(g.historical),
	}
	for id, e := range g.entities {
		ce := e.Clone()
		c.entities[id] = &ce
	}
	for k, ids := range g.byKind {
		c.byKind[k] = slices.Clone(ids)
	}
	for k, ids := range g.members {
		c.members[k] = slices.Clone(ids)
	}
	for id, r := range g.rels {
		cr := *r
		c.rels[id] = &cr
	}
	for k, ids := range g.out {
		c.out[k] = slices.Clone(ids)
	}
	for k, ids := range g.in {
		c.in[k] = slices.Clone(ids)
	}
	return c
}
