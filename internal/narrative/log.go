package narrative

import (
	"cmp"
	"slices"

	"github.com/roach88/loreweave/internal/ir"
)

type eventKey struct {
	kind    string
	subject ir.EntityID
}

// Log is the append-only event history of one run. Events are never
// modified; coalescing appends a new event that supersedes an older one.
type Log struct {
	events     []ir.NarrativeEvent
	superseded map[string]bool
	last       map[eventKey]int
	freq       map[string]int
}

// NewLog creates an empty log.
func NewLog() *Log {
	return &Log{
		superseded: make(map[string]bool),
		last:       make(map[eventKey]int),
		freq:       make(map[string]int),
	}
}

// Append adds an event. Frequency counts only events that do not supersede
// another, so coalescing does not make a kind look common.
func (l *Log) Append(ev ir.NarrativeEvent) {
	if ev.Supersedes != "" {
		l.superseded[ev.Supersedes] = true
	} else {
		l.freq[ev.Kind]++
	}
	l.last[eventKey{ev.Kind, ev.Subject}] = len(l.events)
	l.events = append(l.events, ev)
}

// Len returns the number of events, superseded ones included.
func (l *Log) Len() int { return len(l.events) }

// Events returns every event in append order.
func (l *Log) Events() []ir.NarrativeEvent {
	return slices.Clone(l.events)
}

// Since returns the events appended at or after index i.
func (l *Log) Since(i int) []ir.NarrativeEvent {
	if i >= len(l.events) {
		return nil
	}
	return slices.Clone(l.events[max(i, 0):])
}

// Latest returns the events no later event supersedes, in append order.
func (l *Log) Latest() []ir.NarrativeEvent {
	out := make([]ir.NarrativeEvent, 0, max(len(l.events)-len(l.superseded), 0))
	for _, ev := range l.events {
		if !l.superseded[ev.ID] {
			out = append(out, ev)
		}
	}
	return out
}

// Last returns the most recent event of kind on subject.
func (l *Log) Last(kind string, subject ir.EntityID) (ir.NarrativeEvent, bool) {
	i, ok := l.last[eventKey{kind, subject}]
	if !ok {
		return ir.NarrativeEvent{}, false
	}
	return l.events[i], true
}

// Frequency counts the distinct events of kind so far.
func (l *Log) Frequency(kind string) int {
	return l.freq[kind]
}

// Ranked returns the latest events by descending significance. Ties keep
// append order. limit <= 0 returns all.
func (l *Log) Ranked(limit int) []ir.NarrativeEvent {
	out := l.Latest()
	SortBySignificance(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// SortBySignificance orders events by descending significance, stable.
func SortBySignificance(events []ir.NarrativeEvent) {
	slices.SortStableFunc(events, func(a, b ir.NarrativeEvent) int {
		return cmp.Compare(b.Significance, a.Significance)
	})
}
