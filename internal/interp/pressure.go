package interp

import (
	"fmt"

	"github.com/roach88/loreweave/internal/ir"
	"github.com/roach88/loreweave/internal/rules"
)

// Pressure is an executable pressure.
type Pressure struct {
	cfg     ir.PressureConfig
	eraMods map[string]float64
}

// CreatePressureFromDeclarative validates cfg and builds a Pressure.
func CreatePressureFromDeclarative(cfg ir.PressureConfig) (*Pressure, error) {
	if cfg.ID == "" {
		return nil, configErr("pressure", "", "id", "required")
	}
	if cfg.Max < cfg.Min {
		return nil, configErr("pressure", cfg.ID, "max", "below min (%v < %v)", cfg.Max, cfg.Min)
	}
	if cfg.Decay < 0 || cfg.Decay > 1 {
		return nil, configErr("pressure", cfg.ID, "decay", "must be within [0, 1], got %v", cfg.Decay)
	}
	for i, src := range cfg.Sources {
		if err := checkMetric(fmt.Sprintf("sources[%d].metric", i), src.Metric); err != nil {
			return nil, wrap("pressure", cfg.ID, err)
		}
	}
	return &Pressure{cfg: cfg, eraMods: make(map[string]float64)}, nil
}

// LoadPressures builds every pressure in declared order, rejecting
// duplicate ids.
func LoadPressures(cfgs []ir.PressureConfig) ([]*Pressure, error) {
	seen := make(map[string]bool, len(cfgs))
	out := make([]*Pressure, 0, len(cfgs))
	for _, cfg := range cfgs {
		if seen[cfg.ID] {
			return nil, configErr("pressure", cfg.ID, "id", "duplicate")
		}
		seen[cfg.ID] = true
		p, err := CreatePressureFromDeclarative(cfg)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// ID returns the pressure id.
func (p *Pressure) ID() string { return p.cfg.ID }

// Initial returns the starting value, clamped to the pressure's bounds.
func (p *Pressure) Initial() float64 { return p.clamp(p.cfg.Initial) }

// SetEraModifier adds delta to every evaluation while era is active.
func (p *Pressure) SetEraModifier(era string, delta float64) {
	p.eraMods[era] += delta
}

// Evaluate computes the next value:
// clamp(v*(1-decay) + sum(weight*metric) + era modifier).
// v is the current table value, or the initial value before the first tick.
func (p *Pressure) Evaluate(ctx *rules.Context) float64 {
	v := p.cfg.Initial
	if ctx.Pressures.Has(p.cfg.ID) {
		v = ctx.Pressures.Get(p.cfg.ID)
	}
	next := v * (1 - p.cfg.Decay)
	for _, src := range p.cfg.Sources {
		next += src.Weight * rules.EvaluateMetric(ctx, src.Metric, rules.SimpleResolver{})
	}
	next += p.eraMods[ctx.EraID]
	return p.clamp(next)
}

func (p *Pressure) clamp(v float64) float64 {
	if p.cfg.Max > p.cfg.Min {
		return min(p.cfg.Max, max(p.cfg.Min, v))
	}
	return v
}
