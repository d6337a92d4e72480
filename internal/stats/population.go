// Package stats derives per-tick statistics and a run summary from the
// world graph, and exports them as prometheus metrics.
package stats

import (
	"maps"

	"github.com/roach88/loreweave/internal/ir"
)

// PopulationSample counts entities at one tick.
type PopulationSample struct {
	Tick int64 `json:"tick"`
	// ByKind counts active entities.
	ByKind   map[string]int    `json:"by_kind"`
	ByStatus map[ir.Status]int `json:"by_status"`
	// Delta is the change in ByKind since the previous sample.
	Delta map[string]int `json:"delta,omitempty"`
}

// PopulationTracker keeps a bounded history of population samples.
type PopulationTracker struct {
	window  int
	history []PopulationSample
	last    map[string]int
	peak    map[string]int
}

// NewPopulationTracker keeps the last window samples; window <= 0 keeps all.
func NewPopulationTracker(window int) *PopulationTracker {
	return &PopulationTracker{
		window: window,
		last:   map[string]int{},
		peak:   map[string]int{},
	}
}

// Observe samples ents at tick.
func (p *PopulationTracker) Observe(tick int64, ents []ir.Entity) PopulationSample {
	s := PopulationSample{
		Tick:     tick,
		ByKind:   map[string]int{},
		ByStatus: map[ir.Status]int{},
		Delta:    map[string]int{},
	}
	for _, e := range ents {
		s.ByStatus[e.Status]++
		if e.Active() {
			s.ByKind[e.Kind]++
		}
	}
	for kind, n := range s.ByKind {
		if d := n - p.last[kind]; d != 0 {
			s.Delta[kind] = d
		}
		p.peak[kind] = max(p.peak[kind], n)
	}
	for kind, n := range p.last {
		if _, ok := s.ByKind[kind]; !ok && n != 0 {
			s.Delta[kind] = -n
		}
	}
	p.last = maps.Clone(s.ByKind)

	p.history = append(p.history, s)
	if p.window > 0 && len(p.history) > p.window {
		p.history = p.history[len(p.history)-p.window:]
	}
	return s
}

// History returns the retained samples, oldest first.
func (p *PopulationTracker) History() []PopulationSample {
	return p.history
}

// Peak returns the highest active count observed for kind.
func (p *PopulationTracker) Peak(kind string) int {
	return p.peak[kind]
}

// Peaks returns the peak count of every kind observed.
func (p *PopulationTracker) Peaks() map[string]int {
	return maps.Clone(p.peak)
}

// Trend averages the per-tick delta of kind over the last n samples.
func (p *PopulationTracker) Trend(kind string, n int) float64 {
	if n <= 0 || len(p.history) == 0 {
		return 0
	}
	h := p.history[max(len(p.history)-n, 0):]
	sum := 0
	for _, s := range h {
		sum += s.Delta[kind]
	}
	return float64(sum) / float64(len(h))
}
