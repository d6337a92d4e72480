package interp

import (
	"fmt"

	"github.com/roach88/loreweave/internal/ir"
	"github.com/roach88/loreweave/internal/rules"
)

// ExecutableAction is an action an agent can attempt.
type ExecutableAction struct {
	cfg ir.ActionConfig
}

// CreateExecutableAction validates cfg and builds an ExecutableAction.
func CreateExecutableAction(cfg ir.ActionConfig) (*ExecutableAction, error) {
	if cfg.ID == "" {
		return nil, configErr("action", "", "id", "required")
	}
	if cfg.BaseChance < 0 || cfg.BaseChance > 1 {
		return nil, configErr("action", cfg.ID, "base_chance", "must be within [0, 1], got %v", cfg.BaseChance)
	}
	if cfg.Cooldown < 0 {
		return nil, configErr("action", cfg.ID, "cooldown", "must not be negative")
	}
	if len(cfg.Mutations) == 0 && cfg.Narrative == nil {
		return nil, configErr("action", cfg.ID, "mutations", "an action needs mutations or a narrative")
	}
	err := checkFilters("actor", cfg.Actor)
	seen := map[string]bool{}
	for i, v := range cfg.Variables {
		if err != nil {
			break
		}
		field := fmt.Sprintf("variables[%d]", i)
		switch {
		case v.Name == "":
			err = bad(field+".name", "required")
		case v.Name == string(ir.VarSelf) || v.Name == string(ir.VarActor):
			err = bad(field+".name", "%q is reserved", v.Name)
		case seen[v.Name]:
			err = bad(field+".name", "duplicate variable %q", v.Name)
		default:
			seen[v.Name] = true
			err = checkSelection(field+".select", v.Select)
		}
	}
	if err == nil {
		err = checkConditions("conditions", cfg.Conditions)
	}
	if err == nil {
		err = checkMutations("mutations", cfg.Mutations)
	}
	for i, pm := range cfg.PressureModifiers {
		if err == nil && pm.Pressure == "" {
			err = bad(fmt.Sprintf("pressure_modifiers[%d].pressure", i), "required")
		}
	}
	if err == nil && cfg.Narrative != nil && cfg.Narrative.Kind == "" {
		err = bad("narrative.kind", "required")
	}
	if err != nil {
		return nil, wrap("action", cfg.ID, err)
	}
	return &ExecutableAction{cfg: cfg}, nil
}

// LoadActions builds every action in declared order, rejecting duplicate ids.
func LoadActions(cfgs []ir.ActionConfig) ([]*ExecutableAction, error) {
	seen := make(map[string]bool, len(cfgs))
	out := make([]*ExecutableAction, 0, len(cfgs))
	for _, cfg := range cfgs {
		if seen[cfg.ID] {
			return nil, configErr("action", cfg.ID, "id", "duplicate")
		}
		seen[cfg.ID] = true
		a, err := CreateExecutableAction(cfg)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func (a *ExecutableAction) ID() string       { return a.cfg.ID }
func (a *ExecutableAction) Category() string { return a.cfg.Category }
func (a *ExecutableAction) Cooldown() int    { return a.cfg.Cooldown }

// CanPerform checks that actor is active and passes the actor filters.
func (a *ExecutableAction) CanPerform(ctx *rules.Context, actor ir.Entity) bool {
	if !actor.Active() {
		return false
	}
	r := rules.SimpleResolver{Bindings: rules.Bindings{string(ir.VarSelf): actor.ID}}
	return rules.EntityPassesAllFilters(ctx, actor, a.cfg.Actor, r)
}

// CalculateAttemptChance returns
// (base_chance + prominence_factor*prominence) * prod(1 + factor*pressure),
// clamped to [0, 1].
func (a *ExecutableAction) CalculateAttemptChance(ctx *rules.Context, actor ir.Entity) float64 {
	chance := a.cfg.BaseChance + a.cfg.ProminenceFactor*actor.Prominence
	for _, pm := range a.cfg.PressureModifiers {
		chance *= 1 + pm.Factor*ctx.Pressures.Get(pm.Pressure)
	}
	return min(1, max(0, chance))
}

// Execute resolves the action's variables relative to actor, checks its
// conditions and applies its mutations and narrative. It returns false when
// a required variable has no candidate or a condition fails.
func (a *ExecutableAction) Execute(ctx *rules.Context, actor ir.EntityID) (bool, error) {
	b, ok := rules.ResolveVariablesForEntity(ctx, a.cfg.Variables, actor)
	if !ok {
		return false, nil
	}
	b[string(ir.VarActor)] = actor
	targets := b.Targets(string(ir.VarTarget))
	r := rules.ActionResolver{Actor: actor, Targets: targets, Bindings: b}
	if !rules.EvaluateAll(ctx, a.cfg.Conditions, r) {
		return false, nil
	}
	if err := rules.ApplyMutations(ctx, a.cfg.Mutations, r, b); err != nil {
		return false, err
	}
	if n := a.cfg.Narrative; n != nil {
		ctx.Graph.Annotate(n.Kind, actor, targets, n.Description, n.Magnitude)
	}
	ctx.Log().Debug("action executed", "action", a.cfg.ID, "actor", actor, "tick", ctx.Tick)
	return true, nil
}

// Fire executes the action with the most prominent eligible actor; ties go
// to the earliest created entity.
func (a *ExecutableAction) Fire(ctx *rules.Context) (bool, error) {
	var (
		best  ir.Entity
		found bool
	)
	for _, e := range ctx.Graph.ActiveEntities(nil) {
		if !a.CanPerform(ctx, e) {
			continue
		}
		if !found || e.Prominence > best.Prominence {
			best, found = e, true
		}
	}
	if !found {
		return false, nil
	}
	return a.Execute(ctx, best.ID)
}
