package interp

import (
	"fmt"

	"github.com/roach88/loreweave/internal/ir"
	"github.com/roach88/loreweave/internal/rules"
	"github.com/roach88/loreweave/internal/systems"
)

// Program is a compiled bundle. It is immutable after Compile and may be
// shared by several engines; Systems builds the per-run system instances.
type Program struct {
	bundle    *ir.Bundle
	pressures []*Pressure
	lib       *Library
	systems   []ir.SystemConfig
}

// Compile loads pressures, templates, actions and eras, then validates every
// enabled system in declared order. The first error is returned.
func Compile(b *ir.Bundle) (*Program, error) {
	if b == nil {
		return nil, fmt.Errorf("compile: nil bundle")
	}
	if b.ConflictPolicy != "" && !ir.ValidConflictPolicies[b.ConflictPolicy] {
		return nil, configErr("bundle", "", "conflict_policy", "unknown policy %q", b.ConflictPolicy)
	}
	for class, sev := range b.Contracts.Policies {
		if !ir.ValidSeverities[sev] {
			return nil, configErr("bundle", "", "contracts.policies."+class, "unknown severity %q", sev)
		}
	}

	pressures, err := LoadPressures(b.Pressures)
	if err != nil {
		return nil, err
	}
	pressureIDs := make(map[string]*Pressure, len(pressures))
	for _, p := range pressures {
		pressureIDs[p.ID()] = p
	}

	if err := checkEras(b.Eras, pressureIDs); err != nil {
		return nil, err
	}
	for _, era := range b.Eras {
		for _, pm := range era.PressureModifiers {
			pressureIDs[pm.Pressure].SetEraModifier(era.ID, pm.Factor)
		}
	}

	lib := &Library{
		Templates: make(map[string]*Template, len(b.Templates)),
		Actions:   make(map[string]*ExecutableAction, len(b.Actions)),
		Eras:      b.Eras,
	}
	for _, cfg := range b.Templates {
		if _, dup := lib.Templates[cfg.ID]; dup {
			return nil, configErr("template", cfg.ID, "id", "duplicate")
		}
		t, err := CreateTemplateFromDeclarative(cfg)
		if err != nil {
			return nil, err
		}
		lib.Templates[cfg.ID] = t
	}
	actions, err := LoadActions(b.Actions)
	if err != nil {
		return nil, err
	}
	for _, a := range actions {
		lib.Actions[a.ID()] = a
		lib.ActionOrder = append(lib.ActionOrder, a.ID())
		for _, pm := range a.cfg.PressureModifiers {
			if pressureIDs[pm.Pressure] == nil {
				return nil, configErr("action", a.ID(), "pressure_modifiers", "unknown pressure %q", pm.Pressure)
			}
		}
	}

	var enabled []ir.SystemConfig
	seen := make(map[string]bool, len(b.Systems))
	for _, cfg := range b.Systems {
		if seen[cfg.ID] {
			return nil, configErr("system", cfg.ID, "id", "duplicate")
		}
		seen[cfg.ID] = true
		if _, err := CreateSystemFromDeclarative(cfg, lib); err != nil {
			return nil, err
		}
		if gs, ok := cfg.Settings.(ir.GrowthSettings); ok && gs.Pressure != "" && pressureIDs[gs.Pressure] == nil {
			return nil, configErr("system", cfg.ID, "settings.pressure", "unknown pressure %q", gs.Pressure)
		}
		if !cfg.Disabled {
			enabled = append(enabled, cfg)
		}
	}

	return &Program{bundle: b, pressures: pressures, lib: lib, systems: enabled}, nil
}

func checkEras(eras []ir.EraConfig, pressures map[string]*Pressure) error {
	ids := make(map[string]bool, len(eras))
	for _, era := range eras {
		if era.ID == "" {
			return configErr("era", "", "id", "required")
		}
		if ids[era.ID] {
			return configErr("era", era.ID, "id", "duplicate")
		}
		ids[era.ID] = true
	}
	for _, era := range eras {
		if era.Next != "" && !ids[era.Next] {
			return configErr("era", era.ID, "next", "unknown era %q", era.Next)
		}
		if era.MinTicks < 0 || era.MaxTicks < 0 {
			return configErr("era", era.ID, "min_ticks", "tick bounds must not be negative")
		}
		if era.MaxTicks > 0 && era.MaxTicks < era.MinTicks {
			return configErr("era", era.ID, "max_ticks", "below min_ticks")
		}
		if err := checkConditions("conditions", era.Conditions); err != nil {
			return wrap("era", era.ID, err)
		}
		for i, pm := range era.PressureModifiers {
			if pressures[pm.Pressure] == nil {
				return configErr("era", era.ID, fmt.Sprintf("pressure_modifiers[%d]", i), "unknown pressure %q", pm.Pressure)
			}
		}
	}
	return nil
}

// Bundle returns the compiled bundle.
func (p *Program) Bundle() *ir.Bundle { return p.bundle }

// Pressures returns the compiled pressures in declared order.
func (p *Program) Pressures() []*Pressure { return p.pressures }

// Eras returns the declared eras.
func (p *Program) Eras() []ir.EraConfig { return p.lib.Eras }

// Systems builds fresh instances of every enabled system in declared order.
// Stateful systems (triggers, catalysts, era transitions) must not be shared
// between runs, so each engine calls Systems once.
func (p *Program) Systems() ([]systems.System, error) {
	out := make([]systems.System, 0, len(p.systems))
	for _, cfg := range p.systems {
		sys, err := CreateSystemFromDeclarative(cfg, p.lib)
		if err != nil {
			return nil, fmt.Errorf("system %s: %w", cfg.ID, err)
		}
		out = append(out, sys)
	}
	return out, nil
}

// InitPressures writes every pressure's initial value into table.
func (p *Program) InitPressures(table *rules.PressureTable) {
	for _, pr := range p.pressures {
		table.Set(pr.ID(), pr.Initial())
	}
}

// EvaluatePressures recomputes every pressure in declared order. Later
// pressures observe earlier pressures' new values.
func (p *Program) EvaluatePressures(ctx *rules.Context) {
	for _, pr := range p.pressures {
		ctx.Pressures.Set(pr.ID(), pr.Evaluate(ctx))
	}
}
