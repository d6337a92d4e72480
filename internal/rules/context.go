// Package rules evaluates the declarative rule primitives of a bundle:
// conditions, filters, metrics, mutations, entity selection and variable
// resolution.
//
// Every evaluator switches exhaustively over the closed variant sets defined
// in package ir. Evaluation never panics on unexpected data: an unresolvable
// variable or an empty candidate set makes the rule application a no-op.
package rules

import (
	"log/slog"
	"maps"
	"math/rand/v2"
	"slices"

	"github.com/roach88/loreweave/internal/coords"
	"github.com/roach88/loreweave/internal/graph"
	"github.com/roach88/loreweave/internal/ir"
)

// Context is the view of the run a system receives for one tick.
// Systems must not retain it, or anything reached through it, across ticks.
type Context struct {
	Tick     int64
	SystemID string
	// Era is the active era entity, EraID its configured era id.
	Era   ir.EntityID
	EraID string

	Graph      *graph.Graph
	Rand       *rand.Rand
	Pressures  *PressureTable
	Coords     *coords.Context
	Saturation *SaturationTracker
	Logger     *slog.Logger
}

// WithSystem returns a shallow copy of the context bound to systemID.
func (c *Context) WithSystem(systemID string) *Context {
	cp := *c
	cp.SystemID = systemID
	if c.Logger != nil {
		cp.Logger = c.Logger.With("system", systemID)
	}
	return &cp
}

// Log returns the context logger, or a discarding logger.
func (c *Context) Log() *slog.Logger {
	if c.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.Logger
}

// PressureTable holds the current value of every pressure.
type PressureTable struct {
	values map[string]float64
}

// NewPressureTable creates an empty table.
func NewPressureTable() *PressureTable {
	return &PressureTable{values: make(map[string]float64)}
}

// Get returns the value of id, or 0 when unknown.
func (p *PressureTable) Get(id string) float64 {
	return p.values[id]
}

// Set stores the value of id.
func (p *PressureTable) Set(id string, v float64) {
	p.values[id] = v
}

// Adjust adds delta to id and returns the new value.
func (p *PressureTable) Adjust(id string, delta float64) float64 {
	p.values[id] += delta
	return p.values[id]
}

// Has reports whether id has been set.
func (p *PressureTable) Has(id string) bool {
	_, ok := p.values[id]
	return ok
}

// Snapshot returns a copy of all values.
func (p *PressureTable) Snapshot() map[string]float64 {
	return maps.Clone(p.values)
}

// IDs returns pressure ids in sorted order.
func (p *PressureTable) IDs() []string {
	return slices.Sorted(maps.Keys(p.values))
}

// Clone returns an independent copy.
func (p *PressureTable) Clone() *PressureTable {
	return &PressureTable{values: maps.Clone(p.values)}
}

// SaturationTracker counts how often each entity (and each composite, via
// members) won a selection this tick.
type SaturationTracker struct {
	wins    map[ir.EntityID]int
	cluster map[ir.EntityID]int
}

// NewSaturationTracker creates an empty tracker.
func NewSaturationTracker() *SaturationTracker {
	return &SaturationTracker{
		wins:    make(map[ir.EntityID]int),
		cluster: make(map[ir.EntityID]int),
	}
}

// Reset clears all counts. The engine calls it at the start of each tick.
func (s *SaturationTracker) Reset() {
	clear(s.wins)
	clear(s.cluster)
}

// Record counts one win for id and its composite.
func (s *SaturationTracker) Record(id, partOf ir.EntityID) {
	s.wins[id]++
	if partOf != "" {
		s.cluster[partOf]++
	}
}

// Wins returns the wins of id this tick.
func (s *SaturationTracker) Wins(id ir.EntityID) int {
	return s.wins[id]
}

// ClusterWins returns the wins of all members of composite this tick.
func (s *SaturationTracker) ClusterWins(composite ir.EntityID) int {
	return s.cluster[composite]
}
