package stats

import (
	"maps"
	"time"

	"github.com/roach88/loreweave/internal/ir"
)

// TickStats summarizes the world after one tick.
type TickStats struct {
	Tick           int64              `json:"tick"`
	Entities       int                `json:"entities"`
	ActiveEntities int                `json:"active_entities"`
	Relationships  int                `json:"relationships"`
	ByKind         map[string]int     `json:"by_kind"`
	Delta          map[string]int     `json:"delta,omitempty"`
	Pressures      map[string]float64 `json:"pressures,omitempty"`
	Mutations      int                `json:"mutations"`
	Events         int                `json:"events"`
	Violations     int                `json:"violations"`
	SystemErrors   int                `json:"system_errors"`
	Cultures       []CultureStats     `json:"cultures,omitempty"`
}

// PressureRange tracks one pressure over a run.
type PressureRange struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Final float64 `json:"final"`
}

// RunSummary aggregates the tick statistics of a run.
type RunSummary struct {
	Ticks              int                      `json:"ticks"`
	FinalEntities      int                      `json:"final_entities"`
	FinalActive        int                      `json:"final_active"`
	FinalRelationships int                      `json:"final_relationships"`
	FinalByKind        map[string]int           `json:"final_by_kind"`
	PeakByKind         map[string]int           `json:"peak_by_kind"`
	Pressures          map[string]PressureRange `json:"pressures,omitempty"`
	Mutations          int                      `json:"mutations"`
	Events             int                      `json:"events"`
	Violations         int                      `json:"violations"`
	SystemErrors       int                      `json:"system_errors"`
	EventsPerTick      float64                  `json:"events_per_tick"`
}

// Observation is the raw input for one tick.
type Observation struct {
	Tick          int64
	Entities      []ir.Entity
	Relationships []ir.Relationship
	Pressures     map[string]float64
	Mutations     int
	Events        int
	Violations    []ir.Violation
	// FailedSystems lists the ids of systems that failed this tick.
	FailedSystems []string
	Duration      time.Duration
}

// Collector accumulates tick statistics for one run.
type Collector struct {
	pop     *PopulationTracker
	metrics *Metrics
	ticks   []TickStats
	summary RunSummary
}

// NewCollector creates a collector. metrics may be nil.
func NewCollector(metrics *Metrics) *Collector {
	return &Collector{
		pop:     NewPopulationTracker(0),
		metrics: metrics,
		summary: RunSummary{Pressures: map[string]PressureRange{}},
	}
}

// Observe records one tick and returns its statistics.
func (c *Collector) Observe(o Observation) TickStats {
	sample := c.pop.Observe(o.Tick, o.Entities)
	ts := TickStats{
		Tick:         o.Tick,
		Entities:     len(o.Entities),
		ByKind:       sample.ByKind,
		Delta:        sample.Delta,
		Pressures:    maps.Clone(o.Pressures),
		Mutations:    o.Mutations,
		Events:       o.Events,
		Violations:   len(o.Violations),
		SystemErrors: len(o.FailedSystems),
		Cultures:     CulturalAwareness(o.Entities, o.Relationships),
	}
	for _, n := range sample.ByKind {
		ts.ActiveEntities += n
	}
	for _, r := range o.Relationships {
		if r.Active() {
			ts.Relationships++
		}
	}

	s := &c.summary
	s.Ticks++
	s.FinalEntities = ts.Entities
	s.FinalActive = ts.ActiveEntities
	s.FinalRelationships = ts.Relationships
	s.FinalByKind = maps.Clone(ts.ByKind)
	s.Mutations += ts.Mutations
	s.Events += ts.Events
	s.Violations += ts.Violations
	s.SystemErrors += ts.SystemErrors
	for id, v := range o.Pressures {
		r, seen := s.Pressures[id]
		if !seen {
			r = PressureRange{Min: v, Max: v}
		}
		r.Min = min(r.Min, v)
		r.Max = max(r.Max, v)
		r.Final = v
		s.Pressures[id] = r
	}

	c.ticks = append(c.ticks, ts)
	if c.metrics != nil {
		c.metrics.ObserveTick(ts, o.Violations, o.FailedSystems, o.Duration)
	}
	return ts
}

// Ticks returns every recorded tick.
func (c *Collector) Ticks() []TickStats {
	return c.ticks
}

// Population returns the population tracker.
func (c *Collector) Population() *PopulationTracker {
	return c.pop
}

// Summary returns the run summary so far.
func (c *Collector) Summary() RunSummary {
	s := c.summary
	s.PeakByKind = c.pop.Peaks()
	s.Pressures = maps.Clone(c.summary.Pressures)
	if s.Ticks > 0 {
		s.EventsPerTick = float64(s.Events) / float64(s.Ticks)
	}
	return s
}
