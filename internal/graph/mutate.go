package graph

import (
	"fmt"
	"maps"
	"slices"
	"strconv"

	"github.com/roach88/loreweave/internal/ir"
)

func (g *Graph) record(rec ir.MutationRecord) {
	g.recSeq++
	rec.Seq = g.recSeq
	rec.Tick = g.tick
	rec.SystemID = g.actor
	if g.listener != nil {
		g.listener.Record(rec)
	}
}

// claim marks id as touched by the current actor this tick.
func (g *Graph) claim(id ir.EntityID) {
	if _, ok := g.claims[id]; !ok {
		g.claims[id] = g.actor
	}
}

// checkClaim enforces the first-claim policy for destructive operations.
func (g *Graph) checkClaim(id ir.EntityID) error {
	if g.policy != ir.ConflictFirstClaim {
		return nil
	}
	if owner, ok := g.claims[id]; ok && owner != g.actor {
		return fmt.Errorf("%w: %s held by %q", ErrClaimed, id, owner)
	}
	return nil
}

// nextID generates "<kind>-<n>", skipping ids that are already taken.
func (g *Graph) nextID(kind string) ir.EntityID {
	for {
		g.idCounters[kind]++
		id := ir.EntityID(kind + "-" + strconv.FormatInt(g.idCounters[kind], 10))
		if _, taken := g.entities[id]; !taken {
			return id
		}
	}
}

func (g *Graph) live(id ir.EntityID) (*ir.Entity, error) {
	e, ok := g.entities[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntityNotFound, id)
	}
	if e.Status == ir.StatusArchived {
		return nil, fmt.Errorf("%w: %s", ErrEntityArchived, id)
	}
	return e, nil
}

// AddEntity inserts an entity and returns its id. An explicit id must be
// unique; an empty id is generated. A PartOf link also creates a part_of
// relationship from the new entity to its composite.
func (g *Graph) AddEntity(init ir.EntityInit) (ir.EntityID, error) {
	if init.Kind == "" {
		return "", fmt.Errorf("%w: kind is required", ErrInvalidEntity)
	}
	status := init.Status
	if status == "" {
		status = ir.StatusActive
	}
	if !ir.ValidStatuses[status] {
		return "", fmt.Errorf("%w: unknown status %q", ErrInvalidEntity, status)
	}
	if init.PartOf != "" {
		if _, err := g.live(init.PartOf); err != nil {
			return "", fmt.Errorf("part_of: %w", err)
		}
	}

	id := init.ID
	if id == "" {
		id = g.nextID(init.Kind)
	} else if _, exists := g.entities[id]; exists {
		return "", fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}

	tags := make(map[string]float64, len(init.Tags))
	maps.Copy(tags, init.Tags)
	e := &ir.Entity{
		ID:          id,
		Kind:        init.Kind,
		Subtype:     init.Subtype,
		Name:        init.Name,
		Culture:     init.Culture,
		Status:      status,
		Prominence:  init.Prominence,
		Tags:        tags,
		Coords:      init.Coords,
		CreatedTick: g.tick,
		UpdatedTick: g.tick,
		PartOf:      init.PartOf,
	}
	g.entities[id] = e
	g.order = append(g.order, id)
	g.byKind[e.Kind] = append(g.byKind[e.Kind], id)
	g.claim(id)
	g.record(ir.MutationRecord{Op: ir.OpEntityCreated, Entity: id, Kind: e.Kind, After: e.Prominence})

	if init.PartOf != "" {
		g.members[init.PartOf] = append(g.members[init.PartOf], id)
		if _, err := g.addRelationship(ir.KindPartOf, id, init.PartOf, 1); err != nil {
			return "", err
		}
	}
	return id, nil
}

// UpdateEntity applies patch to a non-archived entity. Archival goes through
// ArchiveEntity so member and edge policies apply.
func (g *Graph) UpdateEntity(id ir.EntityID, patch ir.EntityPatch) error {
	e, err := g.live(id)
	if err != nil {
		return err
	}
	if patch.Status != nil {
		if *patch.Status == ir.StatusArchived {
			return fmt.Errorf("%w: use ArchiveEntity to archive %s", ErrInvalidEntity, id)
		}
		if !ir.ValidStatuses[*patch.Status] {
			return fmt.Errorf("%w: unknown status %q", ErrInvalidEntity, *patch.Status)
		}
	}
	if patch.PartOf != nil && *patch.PartOf != "" {
		if *patch.PartOf == id {
			return fmt.Errorf("%w: %s cannot be part of itself", ErrInvalidEntity, id)
		}
		if _, err := g.live(*patch.PartOf); err != nil {
			return fmt.Errorf("part_of: %w", err)
		}
		if g.isAncestor(id, *patch.PartOf) {
			return fmt.Errorf("%w: %s is already an ancestor of %s", ErrInvalidEntity, id, *patch.PartOf)
		}
	}

	g.claim(id)
	changed := false
	if patch.Name != nil && *patch.Name != e.Name {
		e.Name = *patch.Name
		changed = true
		g.record(ir.MutationRecord{Op: ir.OpEntityUpdated, Entity: id, Kind: e.Kind, Key: "name", Note: e.Name})
	}
	if patch.Culture != nil && *patch.Culture != e.Culture {
		e.Culture = *patch.Culture
		changed = true
		g.record(ir.MutationRecord{Op: ir.OpEntityUpdated, Entity: id, Kind: e.Kind, Key: "culture", Note: e.Culture})
	}
	if patch.Coords != nil && *patch.Coords != e.Coords {
		e.Coords = *patch.Coords
		changed = true
		g.record(ir.MutationRecord{Op: ir.OpEntityUpdated, Entity: id, Kind: e.Kind, Key: "coords"})
	}
	if patch.Status != nil && *patch.Status != e.Status {
		g.record(ir.MutationRecord{Op: ir.OpStatusChanged, Entity: id, Kind: e.Kind, Key: string(e.Status), Note: string(*patch.Status)})
		e.Status = *patch.Status
		changed = true
	}
	before := e.Prominence
	if patch.Prominence != nil {
		e.Prominence = *patch.Prominence
	}
	e.Prominence += patch.ProminenceDelta
	if e.Prominence != before {
		changed = true
		g.record(ir.MutationRecord{Op: ir.OpProminenceChanged, Entity: id, Kind: e.Kind, Before: before, After: e.Prominence})
	}
	for _, tag := range slices.Sorted(maps.Keys(patch.SetTags)) {
		v := patch.SetTags[tag]
		old, had := e.Tags[tag]
		if had && old == v {
			continue
		}
		if e.Tags == nil {
			e.Tags = make(map[string]float64)
		}
		e.Tags[tag] = v
		changed = true
		g.record(ir.MutationRecord{Op: ir.OpTagSet, Entity: id, Kind: e.Kind, Key: tag, Before: old, After: v})
	}
	for _, tag := range patch.RemoveTags {
		old, had := e.Tags[tag]
		if !had {
			continue
		}
		delete(e.Tags, tag)
		changed = true
		g.record(ir.MutationRecord{Op: ir.OpTagRemoved, Entity: id, Kind: e.Kind, Key: tag, Before: old})
	}
	if patch.PartOf != nil && *patch.PartOf != e.PartOf {
		g.setPartOf(e, *patch.PartOf)
		changed = true
	}
	if changed {
		e.UpdatedTick = g.tick
	}
	return nil
}

// setPartOf moves e to a new composite (or none), archiving the old part_of
// edge and creating the new one.
func (g *Graph) setPartOf(e *ir.Entity, parent ir.EntityID) {
	old := e.PartOf
	if old != "" {
		g.members[old] = slices.DeleteFunc(g.members[old], func(m ir.EntityID) bool { return m == e.ID })
		if r, ok := g.FindRelationship(e.ID, old, ir.KindPartOf); ok {
			g.archiveRelationship(g.rels[r.ID])
		}
	}
	e.PartOf = parent
	e.UpdatedTick = g.tick
	g.record(ir.MutationRecord{Op: ir.OpPartOfChanged, Entity: e.ID, Kind: e.Kind, Other: parent, Note: string(old)})
	if parent != "" {
		g.members[parent] = append(g.members[parent], e.ID)
		// The parent was validated live by the caller.
		_, _ = g.addRelationship(ir.KindPartOf, e.ID, parent, 1)
	}
}

// ArchiveEntity archives an entity. Members of the entity are handled by
// policy; the entity's own active relationships are archived, except edges
// of historical kinds.
func (g *Graph) ArchiveEntity(id ir.EntityID, policy ir.ArchivePolicy) error {
	if policy == "" {
		policy = ir.PolicyArchiveMembers
	}
	if !ir.ValidArchivePolicies[policy] {
		return fmt.Errorf("%w: unknown archive policy %q", ErrInvalidEntity, policy)
	}
	if _, err := g.live(id); err != nil {
		return err
	}
	if err := g.checkClaim(id); err != nil {
		return err
	}
	g.archive(id, policy, map[ir.EntityID]bool{})
	return nil
}

// isAncestor reports whether id appears on the part_of chain starting at
// from (inclusive).
func (g *Graph) isAncestor(id, from ir.EntityID) bool {
	seen := map[ir.EntityID]bool{}
	for cur := from; cur != "" && !seen[cur]; {
		if cur == id {
			return true
		}
		seen[cur] = true
		e, ok := g.entities[cur]
		if !ok {
			return false
		}
		cur = e.PartOf
	}
	return false
}

func (g *Graph) archive(id ir.EntityID, policy ir.ArchivePolicy, visited map[ir.EntityID]bool) {
	e := g.entities[id]
	visited[id] = true
	g.claim(id)

	for _, m := range slices.Clone(g.members[id]) {
		member := g.entities[m]
		if member.Status == ir.StatusArchived || visited[m] {
			continue
		}
		switch policy {
		case ir.PolicyArchiveMembers:
			g.archive(m, policy, visited)
		case ir.PolicyReparentMembers:
			g.setPartOf(member, e.PartOf)
		case ir.PolicyDetachMembers:
			g.setPartOf(member, "")
		}
	}

	for _, rid := range g.edges(id, ir.DirectionBoth) {
		r := g.rels[rid]
		if r.Active() && !g.historical[r.Kind] {
			g.archiveRelationship(r)
		}
	}

	before := e.Status
	e.Status = ir.StatusArchived
	e.UpdatedTick = g.tick
	g.record(ir.MutationRecord{Op: ir.OpEntityArchived, Entity: id, Kind: e.Kind, Key: string(before), Note: string(policy), Before: e.Prominence})
}

// SupersedeEntity replaces oldID with a new entity. The old entity becomes
// historical and keeps its id; its active relationships and members move to
// the successor, and a supersedes edge links the successor to it.
// Empty Kind and PartOf in init are inherited from the old entity.
func (g *Graph) SupersedeEntity(oldID ir.EntityID, init ir.EntityInit) (ir.EntityID, error) {
	old, err := g.live(oldID)
	if err != nil {
		return "", err
	}
	if old.Status != ir.StatusActive {
		return "", fmt.Errorf("%w: %s is %s", ErrInvalidEntity, oldID, old.Status)
	}
	if err := g.checkClaim(oldID); err != nil {
		return "", err
	}
	if init.Kind == "" {
		init.Kind = old.Kind
	}
	if init.PartOf == "" {
		init.PartOf = old.PartOf
	}
	newID, err := g.AddEntity(init)
	if err != nil {
		return "", err
	}

	// Members follow the successor.
	for _, m := range slices.Clone(g.members[oldID]) {
		if member := g.entities[m]; member.Status != ir.StatusArchived {
			g.setPartOf(member, newID)
		}
	}
	for _, rid := range slices.Clone(g.edges(oldID, ir.DirectionBoth)) {
		r := g.rels[rid]
		if !r.Active() || g.historical[r.Kind] {
			continue
		}
		g.archiveRelationship(r)
		if r.Kind == ir.KindPartOf {
			// The successor's own part_of edge was created by AddEntity.
			continue
		}
		src, dst := r.Src, r.Dst
		if src == oldID {
			src = newID
		} else {
			dst = newID
		}
		if src == dst {
			continue
		}
		if _, exists := g.FindRelationship(src, dst, r.Kind); exists {
			continue
		}
		if _, err := g.addRelationship(r.Kind, src, dst, r.Strength); err != nil {
			return "", fmt.Errorf("transfer %s: %w", r.ID, err)
		}
	}

	old.Status = ir.StatusHistorical
	old.SupersededBy = newID
	old.UpdatedTick = g.tick
	g.claim(oldID)
	g.record(ir.MutationRecord{Op: ir.OpEntitySuperseded, Entity: oldID, Kind: old.Kind, Other: newID, Before: old.Prominence})

	if _, err := g.addRelationship(ir.KindSupersedes, newID, oldID, 1); err != nil {
		return "", err
	}
	return newID, nil
}

// AddRelationship creates a directed relationship. Endpoints must exist and
// differ; they must not be archived unless kind is a historical edge kind.
func (g *Graph) AddRelationship(kind string, src, dst ir.EntityID, strength float64) (ir.RelationshipID, error) {
	if kind == "" {
		return "", fmt.Errorf("%w: kind is required", ErrInvalidEndpoint)
	}
	return g.addRelationship(kind, src, dst, strength)
}

func (g *Graph) addRelationship(kind string, src, dst ir.EntityID, strength float64) (ir.RelationshipID, error) {
	if src == dst {
		return "", fmt.Errorf("%w: self-loop on %s", ErrInvalidEndpoint, src)
	}
	for _, id := range []ir.EntityID{src, dst} {
		e, ok := g.entities[id]
		if !ok {
			return "", fmt.Errorf("%w: %s: %w", ErrInvalidEndpoint, id, ErrEntityNotFound)
		}
		if e.Status == ir.StatusArchived && !g.historical[kind] {
			return "", fmt.Errorf("%w: %s: %w", ErrInvalidEndpoint, id, ErrEntityArchived)
		}
	}
	g.relSeq++
	id := ir.RelationshipID("rel-" + strconv.FormatInt(g.relSeq, 10))
	r := &ir.Relationship{
		ID:         id,
		Kind:       kind,
		Src:        src,
		Dst:        dst,
		Strength:   strength,
		FormedTick: g.tick,
		Status:     ir.RelationshipActive,
	}
	g.rels[id] = r
	g.relOrder = append(g.relOrder, id)
	g.out[src] = append(g.out[src], id)
	g.in[dst] = append(g.in[dst], id)
	g.record(ir.MutationRecord{Op: ir.OpRelationshipCreated, Relationship: id, Entity: src, Other: dst, Kind: kind, After: strength})
	return id, nil
}

// ModifyRelationshipStrength adds delta to an active relationship's strength,
// clamped to [0, 1], and returns the new value.
func (g *Graph) ModifyRelationshipStrength(id ir.RelationshipID, delta float64) (float64, error) {
	r, ok := g.rels[id]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrRelationshipNotFound, id)
	}
	if !r.Active() {
		return 0, fmt.Errorf("%w: %s", ErrRelationshipArchived, id)
	}
	before := r.Strength
	r.Strength = min(1, max(0, r.Strength+delta))
	if r.Strength != before {
		g.record(ir.MutationRecord{Op: ir.OpRelationshipStrength, Relationship: id, Entity: r.Src, Other: r.Dst, Kind: r.Kind, Before: before, After: r.Strength})
	}
	return r.Strength, nil
}

// ArchiveRelationship archives a relationship. Archiving an archived
// relationship is a no-op.
func (g *Graph) ArchiveRelationship(id ir.RelationshipID) error {
	r, ok := g.rels[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRelationshipNotFound, id)
	}
	if r.Active() {
		g.archiveRelationship(r)
	}
	return nil
}

func (g *Graph) archiveRelationship(r *ir.Relationship) {
	r.Status = ir.RelationshipHistorical
	r.ArchivedTick = g.tick
	g.record(ir.MutationRecord{Op: ir.OpRelationshipArchived, Relationship: r.ID, Entity: r.Src, Other: r.Dst, Kind: r.Kind, Before: r.Strength})
}

// Annotate records a narrative annotation without changing state.
func (g *Graph) Annotate(kind string, subject ir.EntityID, participants []ir.EntityID, note string, magnitude float64) {
	g.record(ir.MutationRecord{
		Op:           ir.OpAnnotation,
		Entity:       subject,
		Kind:         kind,
		Note:         note,
		After:        magnitude,
		Participants: slices.Clone(participants),
	})
}
