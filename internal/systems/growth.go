package systems

import (
	"fmt"
	"math"

	"github.com/roach88/loreweave/internal/ir"
	"github.com/roach88/loreweave/internal/rules"
)

// GrowthUnits returns how many entities growth adds this tick:
// per_tick + floor(pressure * pressure_scale), capped by max_per_tick.
// The pressure term is clamped to the int32 range before conversion.
func GrowthUnits(s ir.GrowthSettings, pressure float64) int {
	extra := math.Floor(pressure * s.PressureScale)
	switch {
	case math.IsNaN(extra):
		extra = 0
	case extra < math.MinInt32:
		extra = math.MinInt32
	case extra > math.MaxInt32:
		extra = math.MaxInt32
	}
	n := s.PerTick + int(extra)
	if s.MaxPerTick > 0 {
		n = min(n, s.MaxPerTick)
	}
	return max(0, n)
}

// NewGrowth builds the growth system. Each unit re-checks the gate
// conditions, then picks an applicable template by weight times era weight.
func NewGrowth(cfg ir.SystemConfig, s ir.GrowthSettings, templates []WeightedTemplate) System {
	sys := base(cfg)
	sys.Run = func(ctx *rules.Context) error {
		pressure := 0.0
		if s.Pressure != "" {
			pressure = ctx.Pressures.Get(s.Pressure)
		}
		units := GrowthUnits(s, pressure)
		for unit := range units {
			if unit > 0 && !rules.EvaluateAll(ctx, cfg.Conditions, rules.SimpleResolver{}) {
				break
			}
			var (
				candidates []Template
				weights    []float64
			)
			for _, wt := range templates {
				if !wt.Template.CanApply(ctx) {
					continue
				}
				candidates = append(candidates, wt.Template)
				weights = append(weights, wt.Weight*wt.Template.EraWeight(ctx.EraID))
			}
			if len(candidates) == 0 {
				ctx.Log().Debug("growth: no applicable template", "tick", ctx.Tick)
				return nil
			}
			tmpl := candidates[rules.WeightedIndex(weights, ctx.Rand)]
			if _, err := tmpl.Expand(ctx); err != nil {
				return fmt.Errorf("template %s: %w", tmpl.ID(), err)
			}
		}
		return nil
	}
	return sys
}
