package systems

import (
	"fmt"

	"github.com/roach88/loreweave/internal/ir"
	"github.com/roach88/loreweave/internal/rules"
)

// Hysteresis is the arming state of a threshold trigger.
type Hysteresis struct {
	Op        ir.Operator
	Threshold float64
	Reset     float64
	disarmed  bool
}

// NewHysteresis creates an armed trigger. The trigger re-arms once the value
// no longer satisfies op against reset.
func NewHysteresis(op ir.Operator, threshold, reset float64) *Hysteresis {
	return &Hysteresis{Op: op, Threshold: threshold, Reset: reset}
}

// Observe feeds one value and reports whether the trigger fires.
func (h *Hysteresis) Observe(v float64) bool {
	if h.disarmed {
		if !rules.ApplyOperator(h.Op, v, h.Reset) {
			h.disarmed = false
		}
		return false
	}
	if rules.ApplyOperator(h.Op, v, h.Threshold) {
		h.disarmed = true
		return true
	}
	return false
}

// Armed reports whether the trigger can fire.
func (h *Hysteresis) Armed() bool {
	return !h.disarmed
}

// NewThresholdTrigger builds a threshold trigger. On firing it runs the
// action (if any), then the mutation list, then the narrative annotation.
func NewThresholdTrigger(cfg ir.SystemConfig, s ir.ThresholdSettings, action Action) System {
	sys := base(cfg)
	reset := s.Threshold
	if s.Reset != nil {
		reset = *s.Reset
	}
	h := NewHysteresis(s.Op, s.Threshold, reset)
	sys.Run = func(ctx *rules.Context) error {
		v := rules.EvaluateMetric(ctx, s.Metric, rules.SimpleResolver{})
		if !h.Observe(v) {
			return nil
		}
		ctx.Log().Debug("threshold fired", "tick", ctx.Tick, "value", v)
		if action != nil {
			if _, err := action.Fire(ctx); err != nil {
				return fmt.Errorf("action %s: %w", action.ID(), err)
			}
		}
		b := rules.Bindings{}
		if ctx.Era != "" {
			b[string(ir.VarSelf)] = ctx.Era
		}
		if err := rules.ApplyMutations(ctx, s.Mutations, rules.SimpleResolver{Bindings: b}, b); err != nil {
			return err
		}
		if s.Narrative != nil {
			ctx.Graph.Annotate(s.Narrative.Kind, ctx.Era, nil, s.Narrative.Description, s.Narrative.Magnitude)
		}
		return nil
	}
	return sys
}
