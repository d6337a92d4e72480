// Package narrative turns the mutations of a tick into ranked narrative
// events.
//
// A Tracker listens to the graph and groups the tick's raw mutations into
// Changes. An EventBuilder scores each change, coalesces repeats of the same
// change on the same subject, and appends the surviving events to an
// append-only Log.
package narrative

import (
	"math"
	"slices"

	"github.com/roach88/loreweave/internal/ir"
)

// Change kinds derived from structural mutations. Annotations keep the kind
// they were recorded with.
const (
	KindEmergence      = "emergence"
	KindDownfall       = "downfall"
	KindSuccession     = "succession"
	KindRise           = "rise"
	KindDecline        = "decline"
	KindBondFormed     = "bond_formed"
	KindBondBroken     = "bond_broken"
	KindTransformation = "transformation"
)

// Change is one narratively relevant change observed during a tick.
type Change struct {
	Kind         string
	Subject      ir.EntityID
	Participants []ir.EntityID
	Magnitude    float64
	SystemID     string
	// Detail qualifies the kind, e.g. the relationship kind of a bond.
	Detail      string
	Description string
}

// Tracker records every graph mutation of the current tick. It implements
// graph.Listener.
type Tracker struct {
	records []ir.MutationRecord
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Record appends a mutation.
func (t *Tracker) Record(rec ir.MutationRecord) {
	t.records = append(t.records, rec)
}

// Reset drops the recorded mutations. Slices returned by Records stay valid.
func (t *Tracker) Reset() {
	t.records = nil
}

// Records returns the mutations recorded since the last Reset.
func (t *Tracker) Records() []ir.MutationRecord {
	return slices.Clone(t.records)
}

// Len returns the number of recorded mutations.
func (t *Tracker) Len() int {
	return len(t.records)
}

type changeKey struct {
	kind    string
	subject ir.EntityID
	system  string
	detail  string
}

// Changes groups the recorded mutations. Structural mutations on the same
// subject by the same system fold into one change per kind; annotations
// always become their own change. Order follows the first mutation of each
// change.
func (t *Tracker) Changes() []Change {
	var out []Change
	index := make(map[changeKey]int)

	add := func(rec ir.MutationRecord, kind string, subject ir.EntityID, detail string, mag float64, other ir.EntityID) {
		k := changeKey{kind: kind, subject: subject, system: rec.SystemID, detail: detail}
		i, ok := index[k]
		if !ok {
			i = len(out)
			index[k] = i
			out = append(out, Change{Kind: kind, Subject: subject, SystemID: rec.SystemID, Detail: detail})
		}
		c := &out[i]
		c.Magnitude += mag
		if other != "" && other != subject && !slices.Contains(c.Participants, other) {
			c.Participants = append(c.Participants, other)
		}
	}

	for _, rec := range t.records {
		switch rec.Op {
		case ir.OpAnnotation:
			out = append(out, Change{
				Kind:         rec.Kind,
				Subject:      rec.Entity,
				Participants: slices.Clone(rec.Participants),
				Magnitude:    rec.After,
				SystemID:     rec.SystemID,
				Description:  rec.Note,
			})
		case ir.OpEntityCreated:
			if rec.Kind != ir.KindEra {
				add(rec, KindEmergence, rec.Entity, "", 1+math.Max(rec.After, 0), "")
			}
		case ir.OpEntityArchived:
			if rec.Kind != ir.KindEra {
				add(rec, KindDownfall, rec.Entity, "", 1+math.Max(rec.Before, 0), "")
			}
		case ir.OpEntitySuperseded:
			if rec.Kind != ir.KindEra {
				add(rec, KindSuccession, rec.Other, "", 1+math.Max(rec.Before, 0), rec.Entity)
			}
		case ir.OpProminenceChanged:
			if d := rec.After - rec.Before; d > 0 {
				add(rec, KindRise, rec.Entity, "", d, "")
			} else if d < 0 {
				add(rec, KindDecline, rec.Entity, "", -d, "")
			}
		case ir.OpTagSet, ir.OpTagRemoved:
			add(rec, KindTransformation, rec.Entity, "", math.Abs(rec.After-rec.Before), "")
		case ir.OpStatusChanged:
			add(rec, KindTransformation, rec.Entity, "", 1, "")
		case ir.OpPartOfChanged:
			add(rec, KindTransformation, rec.Entity, "", 1, rec.Other)
		case ir.OpEntityUpdated:
			if rec.Key != "coords" {
				add(rec, KindTransformation, rec.Entity, "", 0.5, "")
			}
		case ir.OpRelationshipCreated:
			if !structural(rec.Kind) {
				add(rec, KindBondFormed, rec.Entity, rec.Kind, rec.After, rec.Other)
			}
		case ir.OpRelationshipArchived:
			if !structural(rec.Kind) {
				add(rec, KindBondBroken, rec.Entity, rec.Kind, rec.Before, rec.Other)
			}
		case ir.OpRelationshipStrength:
			// Gradual strength drift is not an event.
		}
	}
	return out
}

// structural edges are narrated through the entity changes that create them.
func structural(kind string) bool {
	return kind == ir.KindPartOf || kind == ir.KindSupersedes
}
