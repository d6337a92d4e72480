package interp

import (
	"fmt"

	"github.com/roach88/loreweave/internal/ir"
	"github.com/roach88/loreweave/internal/systems"
)

// Library holds the compiled entries systems may reference.
type Library struct {
	Templates map[string]*Template
	Actions   map[string]*ExecutableAction
	// ActionOrder lists action ids in declared order.
	ActionOrder []string
	Eras        []ir.EraConfig
}

// IsDeclarativeSystem reports whether v is a system declaration that
// CreateSystemFromDeclarative accepts.
func IsDeclarativeSystem(v any) bool {
	switch v.(type) {
	case ir.SystemConfig, *ir.SystemConfig:
		return true
	}
	return false
}

// CreateSystemFromDeclarative validates cfg against lib and builds the
// system. Each call returns a system with fresh per-run state.
func CreateSystemFromDeclarative(cfg ir.SystemConfig, lib *Library) (systems.System, error) {
	if lib == nil {
		lib = &Library{}
	}
	fail := func(field, format string, args ...any) (systems.System, error) {
		return systems.System{}, configErr("system", cfg.ID, field, format, args...)
	}
	if cfg.ID == "" {
		return fail("id", "required")
	}
	if !ir.ValidSystemTypes[cfg.Type] {
		return fail("type", "unknown system type %q", cfg.Type)
	}
	if err := checkConditions("conditions", cfg.Conditions); err != nil {
		return systems.System{}, wrap("system", cfg.ID, err)
	}
	for _, era := range cfg.Eras {
		if !hasEra(lib.Eras, era) {
			return fail("eras", "unknown era %q", era)
		}
	}
	if cfg.Settings == nil {
		return fail("settings", "required for %s", cfg.Type)
	}

	switch s := cfg.Settings.(type) {
	case ir.GrowthSettings:
		if cfg.Type != ir.SystemGrowth {
			break
		}
		if len(s.Templates) == 0 {
			return fail("settings.templates", "at least one template required")
		}
		if s.PerTick < 0 || s.MaxPerTick < 0 {
			return fail("settings", "unit counts must not be negative")
		}
		var wts []systems.WeightedTemplate
		for i, ref := range s.Templates {
			t, ok := lib.Templates[ref.Template]
			if !ok {
				return fail(fmt.Sprintf("settings.templates[%d]", i), "unknown template %q", ref.Template)
			}
			w := ref.Weight
			if w == 0 {
				w = t.Weight()
			}
			wts = append(wts, systems.WeightedTemplate{Template: t, Weight: w})
		}
		return systems.NewGrowth(cfg, s, wts), nil

	case ir.ClusterSettings:
		if cfg.Type != ir.SystemClusterFormation {
			break
		}
		err := checkFilters("settings.filters", s.Filters)
		if err == nil {
			err = checkWeights("settings.weights", s.Weights)
		}
		if err == nil {
			err = checkEntitySpec("settings.composite", s.Composite)
		}
		if err != nil {
			return systems.System{}, wrap("system", cfg.ID, err)
		}
		if s.MaxSize > 0 && s.MaxSize < s.MinSize {
			return fail("settings.max_size", "below min_size")
		}
		return systems.NewClusterFormation(cfg, s), nil

	case ir.ConnectionSettings:
		if cfg.Type != ir.SystemConnectionEvolution {
			break
		}
		if s.RelationshipKind == "" {
			return fail("settings.relationship_kind", "required")
		}
		err := checkFilters("settings.sources", s.Sources)
		if err == nil {
			err = checkSelection("settings.target", s.Target)
		}
		if err == nil {
			err = checkWeights("settings.weights", s.Weights)
		}
		if err != nil {
			return systems.System{}, wrap("system", cfg.ID, err)
		}
		return systems.NewConnectionEvolution(cfg, s), nil

	case ir.MaintenanceSettings:
		if cfg.Type != ir.SystemRelationshipMaintenance {
			break
		}
		if s.Decay < 0 || s.Reinforce < 0 || s.GraceTicks < 0 {
			return fail("settings", "rates must not be negative")
		}
		return systems.NewRelationshipMaintenance(cfg, s), nil

	case ir.ContagionSettings:
		if cfg.Type != ir.SystemGraphContagion {
			break
		}
		if s.Tag == "" {
			return fail("settings.tag", "required")
		}
		if s.Transmission < 0 || s.Transmission > 1 || s.Recovery < 0 || s.Recovery > 1 {
			return fail("settings", "probabilities must be within [0, 1]")
		}
		if err := checkFilters("settings.susceptible", s.Susceptible); err != nil {
			return systems.System{}, wrap("system", cfg.ID, err)
		}
		return systems.NewGraphContagion(cfg, s), nil

	case ir.TagDiffusionSettings:
		if cfg.Type != ir.SystemTagDiffusion {
			break
		}
		if s.Tag == "" {
			return fail("settings.tag", "required")
		}
		if s.Max < s.Min {
			return fail("settings.max", "below min")
		}
		if s.Rate < 0 || s.Rate > 1 {
			return fail("settings.rate", "must be within [0, 1], got %v", s.Rate)
		}
		if err := checkFilters("settings.filters", s.Filters); err != nil {
			return systems.System{}, wrap("system", cfg.ID, err)
		}
		return systems.NewTagDiffusion(cfg, s), nil

	case ir.PlaneDiffusionSettings:
		if cfg.Type != ir.SystemPlaneDiffusion {
			break
		}
		if s.Plane == "" || s.SourceTag == "" || s.OutputTag == "" {
			return fail("settings", "plane, source_tag and output_tag are required")
		}
		if s.Rate < 0 || s.Rate > 1 || s.Decay < 0 || s.Decay > 1 {
			return fail("settings", "rate and decay must be within [0, 1]")
		}
		return systems.NewPlaneDiffusion(cfg, s), nil

	case ir.EraSpawnerSettings:
		if cfg.Type != ir.SystemEraSpawner {
			break
		}
		if len(lib.Eras) == 0 {
			return fail("settings", "no eras declared")
		}
		if s.Era != "" && !hasEra(lib.Eras, s.Era) {
			return fail("settings.era", "unknown era %q", s.Era)
		}
		return systems.NewEraSpawner(cfg, s, lib.Eras), nil

	case ir.EraTransitionSettings:
		if cfg.Type != ir.SystemEraTransition {
			break
		}
		if len(lib.Eras) == 0 {
			return fail("settings", "no eras declared")
		}
		return systems.NewEraTransition(cfg, s, lib.Eras), nil

	case ir.ThresholdSettings:
		if cfg.Type != ir.SystemThresholdTrigger {
			break
		}
		err := checkMetric("settings.metric", s.Metric)
		if err == nil {
			err = checkOp("settings", s.Op)
		}
		if err == nil {
			err = checkMutations("settings.mutations", s.Mutations)
		}
		if err != nil {
			return systems.System{}, wrap("system", cfg.ID, err)
		}
		var action systems.Action
		if s.Action != "" {
			a, ok := lib.Actions[s.Action]
			if !ok {
				return fail("settings.action", "unknown action %q", s.Action)
			}
			action = a
		}
		if action == nil && len(s.Mutations) == 0 && s.Narrative == nil {
			return fail("settings", "a trigger needs an action, mutations or a narrative")
		}
		return systems.NewThresholdTrigger(cfg, s, action), nil

	case ir.CatalystSettings:
		if cfg.Type != ir.SystemUniversalCatalyst {
			break
		}
		if s.AttemptsPerTick < 0 || s.CategoryCooldown < 0 {
			return fail("settings", "counts must not be negative")
		}
		if s.BaseRate < 0 || s.BaseRate > 1 {
			return fail("settings.base_rate", "must be within [0, 1], got %v", s.BaseRate)
		}
		if err := checkFilters("settings.agents", s.Agents); err != nil {
			return systems.System{}, wrap("system", cfg.ID, err)
		}
		ids := s.Actions
		if len(ids) == 0 {
			ids = lib.ActionOrder
		}
		actions := make([]systems.Action, 0, len(ids))
		for i, id := range ids {
			a, ok := lib.Actions[id]
			if !ok {
				return fail(fmt.Sprintf("settings.actions[%d]", i), "unknown action %q", id)
			}
			actions = append(actions, a)
		}
		return systems.NewUniversalCatalyst(cfg, s, actions), nil
	}
	return fail("settings", "%T does not match system type %q", cfg.Settings, cfg.Type)
}

func hasEra(eras []ir.EraConfig, id string) bool {
	for _, e := range eras {
		if e.ID == id {
			return true
		}
	}
	return false
}
