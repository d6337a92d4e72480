package narrative

import (
	"fmt"
	"slices"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/roach88/loreweave/internal/ir"
)

// EntityLookup resolves entity ids; *graph.Graph satisfies it.
type EntityLookup interface {
	Entity(id ir.EntityID) (ir.Entity, bool)
}

var effects = map[string]string{
	KindSuccession:     "succeeded",
	KindBondFormed:     "bonded",
	KindBondBroken:     "estranged",
	KindTransformation: "affiliated",
}

// EventBuilder turns a tick's changes into narrative events and appends
// them to a Log.
type EventBuilder struct {
	cfg   ir.NarrativeConfig
	log   *Log
	tags  *TagGenerator
	title cases.Caser
	seq   int64
}

// NewEventBuilder creates a builder that appends to log.
func NewEventBuilder(cfg ir.NarrativeConfig, log *Log) *EventBuilder {
	return &EventBuilder{
		cfg:   cfg,
		log:   log,
		tags:  NewTagGenerator(),
		title: cases.Title(language.English),
	}
}

// Log returns the log events are appended to.
func (b *EventBuilder) Log() *Log { return b.log }

// Build scores changes observed at tick, drops those below the configured
// minimum significance, and appends the rest to the log ranked by
// significance. Changes of the same kind on the same subject merge within a
// tick; a repeat within the coalesce window of an earlier event yields a new
// event with accumulated magnitude that supersedes the earlier one.
func (b *EventBuilder) Build(entities EntityLookup, tick int64, era ir.EntityID, changes []Change) []ir.NarrativeEvent {
	var events []ir.NarrativeEvent
	for _, c := range mergeChanges(changes) {
		var supersedes string
		if last, ok := b.log.Last(c.Kind, c.Subject); ok && b.cfg.CoalesceWindow > 0 && tick-last.Tick <= int64(b.cfg.CoalesceWindow) {
			c.Magnitude += last.Magnitude
			var prior []ir.EntityID
			for _, p := range last.Participants {
				prior = append(prior, p.Entity)
			}
			c.Participants = union(prior, c.Participants)
			if c.Description == "" {
				c.Description = last.Description
			}
			supersedes = last.ID
		}

		subject, _ := entities.Entity(c.Subject)
		sig := CalculateSignificance(c, SignificanceInput{
			Prominence: subject.Prominence,
			Frequency:  b.log.Frequency(c.Kind),
			Scale:      b.cfg.ProminenceScale,
			Weights:    b.cfg.Weights,
		})
		if sig < b.cfg.MinSignificance {
			continue
		}

		involved := make([]ir.Entity, 0, len(c.Participants)+1)
		if subject.ID != "" {
			involved = append(involved, subject)
		}
		parts := make([]ir.Participant, 0, len(c.Participants))
		for _, id := range c.Participants {
			parts = append(parts, ir.Participant{Entity: id, Effect: effectOf(c.Kind)})
			if e, ok := entities.Entity(id); ok {
				involved = append(involved, e)
			}
		}

		events = append(events, ir.NarrativeEvent{
			Tick:         tick,
			Era:          era,
			Kind:         c.Kind,
			Subject:      c.Subject,
			Participants: parts,
			Magnitude:    c.Magnitude,
			Significance: sig,
			Description:  b.describe(c, subject, involved),
			Tags:         b.tags.Generate(c.Kind, involved),
			SystemID:     c.SystemID,
			Supersedes:   supersedes,
		})
	}

	SortBySignificance(events)
	for i := range events {
		b.seq++
		events[i].ID = fmt.Sprintf("ev-%d", b.seq)
		b.log.Append(events[i])
	}
	return events
}

func mergeChanges(changes []Change) []Change {
	out := make([]Change, 0, len(changes))
	index := make(map[eventKey]int, len(changes))
	for _, c := range changes {
		k := eventKey{c.Kind, c.Subject}
		i, ok := index[k]
		if !ok {
			index[k] = len(out)
			c.Participants = slices.Clone(c.Participants)
			out = append(out, c)
			continue
		}
		out[i].Magnitude += c.Magnitude
		out[i].Participants = union(out[i].Participants, c.Participants)
		if out[i].Description == "" {
			out[i].Description = c.Description
		}
	}
	return out
}

func union(a, b []ir.EntityID) []ir.EntityID {
	out := slices.Clone(a)
	for _, id := range b {
		if !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}

func effectOf(kind string) string {
	if e, ok := effects[kind]; ok {
		return e
	}
	return "involved"
}

func (b *EventBuilder) describe(c Change, subject ir.Entity, involved []ir.Entity) string {
	if c.Description != "" {
		return c.Description
	}
	who := b.label(subject, c.Subject)
	var others []string
	for _, e := range involved {
		if e.ID != c.Subject {
			others = append(others, b.label(e, e.ID))
		}
	}
	with := strings.Join(others, ", ")
	if with == "" {
		with = "unknown parties"
	}

	switch c.Kind {
	case KindEmergence:
		return who + " emerged"
	case KindDownfall:
		return who + " fell"
	case KindSuccession:
		return who + " succeeded " + with
	case KindRise:
		return who + " rose in prominence"
	case KindDecline:
		return who + " declined in prominence"
	case KindBondFormed:
		return fmt.Sprintf("%s formed %s ties with %s", who, humanize(c.Detail), with)
	case KindBondBroken:
		return fmt.Sprintf("%s severed %s ties with %s", who, humanize(c.Detail), with)
	case KindTransformation:
		return who + " was transformed"
	default:
		return fmt.Sprintf("%s: %s", b.title.String(humanize(c.Kind)), who)
	}
}

// label names an entity as "<Kind> <Name>", or by id when it has no name.
func (b *EventBuilder) label(e ir.Entity, id ir.EntityID) string {
	if e.Name == "" {
		return string(id)
	}
	return b.title.String(humanize(e.Kind)) + " " + e.Name
}

func humanize(s string) string {
	return strings.NewReplacer("_", " ", "-", " ").Replace(s)
}
