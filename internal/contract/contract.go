// Package contract checks structural invariants of the world graph after
// every tick.
//
// Each Validator covers one violation class. The Enforcer runs all of them
// over a read-only View of the graph and assigns each violation the
// severity configured for its class: hard violations halt the run, soft
// violations are reported and the run continues.
package contract

import (
	"github.com/roach88/loreweave/internal/graph"
	"github.com/roach88/loreweave/internal/ir"
)

// Violation classes.
const (
	ClassDanglingRelationship = "dangling_relationship"
	ClassArchivedEndpoint     = "archived_endpoint"
	ClassDuplicateID          = "duplicate_id"
	ClassPartOfIntegrity      = "part_of_integrity"
	ClassProminenceRange      = "prominence_range"
	ClassStrengthRange        = "strength_range"
)

// Validator checks one violation class.
type Validator interface {
	Class() string
	// DefaultSeverity applies unless the bundle overrides the class.
	DefaultSeverity() ir.Severity
	Validate(v *View) []ir.Violation
}

// View is a read-only snapshot of a graph for validation.
type View struct {
	Tick          int64
	Entities      []ir.Entity
	Relationships []ir.Relationship

	byID       map[ir.EntityID]ir.Entity
	historical map[string]bool
	promMin    float64
	promMax    float64
}

// NewView indexes a snapshot. historical lists relationship kinds that may
// reference archived entities.
func NewView(tick int64, ents []ir.Entity, rels []ir.Relationship, historical []string) *View {
	v := &View{
		Tick:          tick,
		Entities:      ents,
		Relationships: rels,
		byID:          make(map[ir.EntityID]ir.Entity, len(ents)),
		historical:    map[string]bool{ir.KindSupersedes: true},
	}
	for _, e := range ents {
		if _, dup := v.byID[e.ID]; !dup {
			v.byID[e.ID] = e
		}
	}
	for _, k := range historical {
		v.historical[k] = true
	}
	return v
}

// Entity looks up an entity by id.
func (v *View) Entity(id ir.EntityID) (ir.Entity, bool) {
	e, ok := v.byID[id]
	return e, ok
}

// Historical reports whether edges of kind may reference archived entities.
func (v *View) Historical(kind string) bool {
	return v.historical[kind]
}

// Result aggregates the violations of one check.
type Result struct {
	Violations []ir.Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	r.Violations = append(r.Violations, other.Violations...)
}

// Halt reports whether any violation is hard.
func (r Result) Halt() bool {
	for _, v := range r.Violations {
		if v.Severity == ir.SeverityHard {
			return true
		}
	}
	return false
}

// Hard returns the hard violations.
func (r Result) Hard() []ir.Violation { return r.filter(ir.SeverityHard) }

// Soft returns the soft violations.
func (r Result) Soft() []ir.Violation { return r.filter(ir.SeveritySoft) }

func (r Result) filter(sev ir.Severity) []ir.Violation {
	var out []ir.Violation
	for _, v := range r.Violations {
		if v.Severity == sev {
			out = append(out, v)
		}
	}
	return out
}

// Enforcer runs registered validators and applies severity policy.
type Enforcer struct {
	validators []Validator
	policies   map[string]ir.Severity
	historical []string
	promMin    float64
	promMax    float64
}

// New creates an enforcer with the built-in validators.
func New(cfg ir.ContractConfig) *Enforcer {
	e := &Enforcer{
		policies:   cfg.Policies,
		historical: cfg.HistoricalEdgeKinds,
		promMin:    cfg.ProminenceMin,
		promMax:    cfg.ProminenceMax,
	}
	e.Register(danglingRelationship{})
	e.Register(archivedEndpoint{})
	e.Register(duplicateID{})
	e.Register(partOfIntegrity{})
	e.Register(prominenceRange{})
	e.Register(strengthRange{})
	return e
}

// Register appends a validator.
func (e *Enforcer) Register(v Validator) {
	e.validators = append(e.validators, v)
}

// Severity returns the effective severity for class.
func (e *Enforcer) Severity(class string, def ir.Severity) ir.Severity {
	if s, ok := e.policies[class]; ok {
		return s
	}
	return def
}

// Check validates the graph state at tick.
func (e *Enforcer) Check(g *graph.Graph, tick int64) Result {
	ents, rels := g.Snapshot()
	kinds := append(g.HistoricalKinds(), e.historical...)
	return e.CheckView(NewView(tick, ents, rels, kinds))
}

// CheckView validates a prepared view.
func (e *Enforcer) CheckView(v *View) Result {
	v.promMin, v.promMax = e.promMin, e.promMax
	var res Result
	for _, val := range e.validators {
		sev := e.Severity(val.Class(), val.DefaultSeverity())
		found := val.Validate(v)
		for i := range found {
			found[i].Class = val.Class()
			found[i].Severity = sev
			found[i].Tick = v.Tick
		}
		res.Merge(Result{Violations: found})
	}
	return res
}
