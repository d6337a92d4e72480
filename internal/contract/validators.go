package contract

import (
	"fmt"
	"math"

	"github.com/roach88/loreweave/internal/ir"
)

type danglingRelationship struct{}

func (danglingRelationship) Class() string                { return ClassDanglingRelationship }
func (danglingRelationship) DefaultSeverity() ir.Severity { return ir.SeverityHard }

func (danglingRelationship) Validate(v *View) []ir.Violation {
	var out []ir.Violation
	for _, r := range v.Relationships {
		for _, end := range []ir.EntityID{r.Src, r.Dst} {
			if _, ok := v.Entity(end); !ok {
				out = append(out, ir.Violation{
					Message:        fmt.Sprintf("relationship %s (%s) references missing entity %s", r.ID, r.Kind, end),
					EntityID:       end,
					RelationshipID: r.ID,
				})
			}
		}
	}
	return out
}

type archivedEndpoint struct{}

func (archivedEndpoint) Class() string                { return ClassArchivedEndpoint }
func (archivedEndpoint) DefaultSeverity() ir.Severity { return ir.SeverityHard }

func (archivedEndpoint) Validate(v *View) []ir.Violation {
	var out []ir.Violation
	for _, r := range v.Relationships {
		if !r.Active() || v.Historical(r.Kind) {
			continue
		}
		for _, end := range []ir.EntityID{r.Src, r.Dst} {
			if e, ok := v.Entity(end); ok && e.Status == ir.StatusArchived {
				out = append(out, ir.Violation{
					Message:        fmt.Sprintf("active relationship %s (%s) references archived entity %s", r.ID, r.Kind, end),
					EntityID:       end,
					RelationshipID: r.ID,
				})
			}
		}
	}
	return out
}

type duplicateID struct{}

func (duplicateID) Class() string                { return ClassDuplicateID }
func (duplicateID) DefaultSeverity() ir.Severity { return ir.SeverityHard }

func (duplicateID) Validate(v *View) []ir.Violation {
	var out []ir.Violation
	ents := make(map[ir.EntityID]bool, len(v.Entities))
	for _, e := range v.Entities {
		if ents[e.ID] {
			out = append(out, ir.Violation{Message: fmt.Sprintf("entity id %s is not unique", e.ID), EntityID: e.ID})
		}
		ents[e.ID] = true
	}
	rels := make(map[ir.RelationshipID]bool, len(v.Relationships))
	for _, r := range v.Relationships {
		if rels[r.ID] {
			out = append(out, ir.Violation{Message: fmt.Sprintf("relationship id %s is not unique", r.ID), RelationshipID: r.ID})
		}
		rels[r.ID] = true
	}
	return out
}

// partOfIntegrity requires every non-archived member to point at an existing,
// non-archived composite through an active part_of edge.
type partOfIntegrity struct{}

func (partOfIntegrity) Class() string                { return ClassPartOfIntegrity }
func (partOfIntegrity) DefaultSeverity() ir.Severity { return ir.SeverityHard }

func (partOfIntegrity) Validate(v *View) []ir.Violation {
	edges := make(map[[2]ir.EntityID]bool)
	for _, r := range v.Relationships {
		if r.Active() && r.Kind == ir.KindPartOf {
			edges[[2]ir.EntityID{r.Src, r.Dst}] = true
		}
	}
	var out []ir.Violation
	for _, e := range v.Entities {
		if e.PartOf == "" || e.Status == ir.StatusArchived {
			continue
		}
		parent, ok := v.Entity(e.PartOf)
		switch {
		case !ok:
			out = append(out, ir.Violation{Message: fmt.Sprintf("%s is part of missing entity %s", e.ID, e.PartOf), EntityID: e.ID})
		case parent.Status == ir.StatusArchived:
			out = append(out, ir.Violation{Message: fmt.Sprintf("%s is part of archived entity %s", e.ID, e.PartOf), EntityID: e.ID})
		case e.PartOf == e.ID:
			out = append(out, ir.Violation{Message: fmt.Sprintf("%s is part of itself", e.ID), EntityID: e.ID})
		case e.Status == ir.StatusActive && !edges[[2]ir.EntityID{e.ID, e.PartOf}]:
			out = append(out, ir.Violation{Message: fmt.Sprintf("%s has no active part_of edge to %s", e.ID, e.PartOf), EntityID: e.ID})
		}
	}
	return out
}

type prominenceRange struct{}

func (prominenceRange) Class() string                { return ClassProminenceRange }
func (prominenceRange) DefaultSeverity() ir.Severity { return ir.SeveritySoft }

func (prominenceRange) Validate(v *View) []ir.Violation {
	var out []ir.Violation
	for _, e := range v.Entities {
		if !e.Active() {
			continue
		}
		p := e.Prominence
		switch {
		case math.IsNaN(p) || math.IsInf(p, 0):
			out = append(out, ir.Violation{Message: fmt.Sprintf("%s prominence is not finite", e.ID), EntityID: e.ID})
		case v.promMax > v.promMin && (p < v.promMin || p > v.promMax):
			out = append(out, ir.Violation{
				Message:  fmt.Sprintf("%s prominence %g outside [%g, %g]", e.ID, p, v.promMin, v.promMax),
				EntityID: e.ID,
			})
		}
	}
	return out
}

type strengthRange struct{}

func (strengthRange) Class() string                { return ClassStrengthRange }
func (strengthRange) DefaultSeverity() ir.Severity { return ir.SeveritySoft }

func (strengthRange) Validate(v *View) []ir.Violation {
	var out []ir.Violation
	for _, r := range v.Relationships {
		if !r.Active() {
			continue
		}
		if math.IsNaN(r.Strength) || r.Strength < 0 || r.Strength > 1 {
			out = append(out, ir.Violation{
				Message:        fmt.Sprintf("relationship %s strength %g outside [0, 1]", r.ID, r.Strength),
				RelationshipID: r.ID,
			})
		}
	}
	return out
}
