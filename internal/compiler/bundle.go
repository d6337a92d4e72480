package compiler

import (
	"cuelang.org/go/cue"

	"github.com/roach88/loreweave/internal/ir"
)

// CompileBundle compiles a schema-checked CUE value into a Bundle.
//
// The value is usually produced by Parse with DefBundle:
//
//	v, err := compiler.Parse("rules.cue", src, compiler.DefBundle)
//	bundle, err := compiler.CompileBundle(v)
func CompileBundle(v cue.Value) (*ir.Bundle, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	b := &ir.Bundle{}
	err := decodeFields(v,
		field("conflict_policy", &b.ConflictPolicy),
		nested("pressures"), nested("templates"), nested("actions"),
		nested("systems"), nested("eras"), nested("contracts"), nested("narrative"),
	)
	if err != nil {
		return nil, err
	}

	if err := eachElem(v, "pressures", func(e cue.Value) error {
		p, err := compilePressure(e)
		b.Pressures = append(b.Pressures, p)
		return err
	}); err != nil {
		return nil, err
	}
	if err := eachElem(v, "templates", func(e cue.Value) error {
		t, err := compileTemplate(e)
		b.Templates = append(b.Templates, t)
		return err
	}); err != nil {
		return nil, err
	}
	if err := eachElem(v, "actions", func(e cue.Value) error {
		a, err := compileAction(e)
		b.Actions = append(b.Actions, a)
		return err
	}); err != nil {
		return nil, err
	}
	if err := eachElem(v, "systems", func(e cue.Value) error {
		s, err := compileSystem(e)
		b.Systems = append(b.Systems, s)
		return err
	}); err != nil {
		return nil, err
	}
	if err := eachElem(v, "eras", func(e cue.Value) error {
		era, err := compileEra(e)
		b.Eras = append(b.Eras, era)
		return err
	}); err != nil {
		return nil, err
	}

	if c, ok := lookup(v, "contracts"); ok {
		err := decodeFields(c,
			field("policies", &b.Contracts.Policies),
			field("historical_edge_kinds", &b.Contracts.HistoricalEdgeKinds),
			field("prominence_min", &b.Contracts.ProminenceMin),
			field("prominence_max", &b.Contracts.ProminenceMax))
		if err != nil {
			return nil, err
		}
	}
	if n, ok := lookup(v, "narrative"); ok {
		err := decodeFields(n,
			field("min_significance", &b.Narrative.MinSignificance),
			field("coalesce_window", &b.Narrative.CoalesceWindow),
			field("prominence_scale", &b.Narrative.ProminenceScale),
			field("weights", &b.Narrative.Weights))
		if err != nil {
			return nil, err
		}
	}
	return b, nil
}

func compilePressure(v cue.Value) (ir.PressureConfig, error) {
	var p ir.PressureConfig
	err := decodeFields(v,
		field("id", &p.ID), field("initial", &p.Initial), field("min", &p.Min),
		field("max", &p.Max), field("decay", &p.Decay), nested("sources"))
	if err != nil {
		return p, err
	}
	err = eachElem(v, "sources", func(e cue.Value) error {
		src := ir.PressureSource{Weight: 1}
		if err := decodeFields(e, nested("metric"), field("weight", &src.Weight)); err != nil {
			return err
		}
		m, err := decodeMetricField(e, "metric")
		if err != nil {
			return err
		}
		src.Metric = m
		p.Sources = append(p.Sources, src)
		return nil
	})
	return p, err
}

func compileTemplate(v cue.Value) (ir.TemplateConfig, error) {
	t := ir.TemplateConfig{Weight: 1}
	err := decodeFields(v,
		field("id", &t.ID), field("weight", &t.Weight), field("era_weights", &t.EraWeights),
		nested("conditions"), nested("anchor"), nested("entity"),
		field("placement", &t.Placement), field("radius", &t.Radius),
		field("relationships", &t.Relationships), nested("mutations"))
	if err != nil {
		return t, err
	}
	if t.Conditions, err = decodeConditionList(v, "conditions"); err != nil {
		return t, err
	}
	if a, ok := lookup(v, "anchor"); ok {
		sel, err := decodeSelection(a)
		if err != nil {
			return t, err
		}
		t.Anchor = &sel
	}
	if t.Entity, err = decodeEntitySpecField(v, "entity"); err != nil {
		return t, err
	}
	t.Mutations, err = decodeMutationList(v, "mutations")
	return t, err
}

func compileAction(v cue.Value) (ir.ActionConfig, error) {
	a := ir.ActionConfig{BaseChance: 1}
	err := decodeFields(v,
		field("id", &a.ID), field("category", &a.Category), nested("actor"), nested("variables"),
		nested("conditions"), field("base_chance", &a.BaseChance),
		field("prominence_factor", &a.ProminenceFactor),
		field("pressure_modifiers", &a.PressureModifiers),
		field("cooldown", &a.Cooldown), nested("mutations"), nested("narrative"))
	if err != nil {
		return a, err
	}
	if a.Actor, err = decodeFilterList(v, "actor"); err != nil {
		return a, err
	}
	if err := eachElem(v, "variables", func(e cue.Value) error {
		var vs ir.VariableSpec
		if err := decodeFields(e, field("name", &vs.Name), nested("select"), field("required", &vs.Required)); err != nil {
			return err
		}
		sel, ok := lookup(e, "select")
		if !ok {
			return compileErr(e, "select", "variable %q requires select", vs.Name)
		}
		spec, err := decodeSelection(sel)
		if err != nil {
			return err
		}
		vs.Select = spec
		a.Variables = append(a.Variables, vs)
		return nil
	}); err != nil {
		return a, err
	}
	if a.Conditions, err = decodeConditionList(v, "conditions"); err != nil {
		return a, err
	}
	if a.Mutations, err = decodeMutationList(v, "mutations"); err != nil {
		return a, err
	}
	a.Narrative, err = decodeNarrative(v, "narrative")
	return a, err
}

func compileEra(v cue.Value) (ir.EraConfig, error) {
	var e ir.EraConfig
	err := decodeFields(v,
		field("id", &e.ID), field("name", &e.Name), field("min_ticks", &e.MinTicks),
		field("max_ticks", &e.MaxTicks), nested("conditions"), field("next", &e.Next),
		field("pressure_modifiers", &e.PressureModifiers))
	if err != nil {
		return e, err
	}
	e.Conditions, err = decodeConditionList(v, "conditions")
	return e, err
}

func compileSystem(v cue.Value) (ir.SystemConfig, error) {
	var s ir.SystemConfig
	err := decodeFields(v,
		field("id", &s.ID), field("type", &s.Type), field("disabled", &s.Disabled),
		field("eras", &s.Eras), nested("conditions"), nested("settings"))
	if err != nil {
		return s, err
	}
	if s.Conditions, err = decodeConditionList(v, "conditions"); err != nil {
		return s, err
	}
	settings, ok := lookup(v, "settings")
	if !ok {
		// An empty struct accepts every settings shape with its defaults.
		settings = v.Context().CompileString("{}")
	}
	s.Settings, err = compileSettings(s.Type, settings)
	return s, err
}

// compileSettings decodes the settings variant selected by the system type.
func compileSettings(typ ir.SystemType, v cue.Value) (ir.SystemSettings, error) {
	var err error
	switch typ {
	case ir.SystemGrowth:
		var s ir.GrowthSettings
		err = decodeFields(v,
			field("templates", &s.Templates), field("per_tick", &s.PerTick), field("pressure", &s.Pressure),
			field("pressure_scale", &s.PressureScale), field("max_per_tick", &s.MaxPerTick))
		return s, err

	case ir.SystemClusterFormation:
		s := ir.ClusterSettings{MinSize: 2}
		err = decodeFields(v,
			nested("filters"), field("weights", &s.Weights), field("threshold", &s.Threshold),
			field("radius", &s.Radius), field("min_size", &s.MinSize), field("max_size", &s.MaxSize),
			field("max_per_tick", &s.MaxPerTick), nested("composite"),
			field("relationship_kind", &s.RelationshipKind))
		if err != nil {
			return nil, err
		}
		if s.Filters, err = decodeFilterList(v, "filters"); err != nil {
			return nil, err
		}
		s.Composite, err = decodeEntitySpecField(v, "composite")
		return s, err

	case ir.SystemConnectionEvolution:
		var s ir.ConnectionSettings
		err = decodeFields(v,
			field("relationship_kind", &s.RelationshipKind), nested("sources"), nested("target"),
			field("form_chance", &s.FormChance), field("initial_strength", &s.InitialStrength),
			field("weights", &s.Weights), field("radius", &s.Radius), field("threshold", &s.Threshold),
			field("strengthen", &s.Strengthen), field("weaken", &s.Weaken))
		if err != nil {
			return nil, err
		}
		if s.Sources, err = decodeFilterList(v, "sources"); err != nil {
			return nil, err
		}
		if t, ok := lookup(v, "target"); ok {
			s.Target, err = decodeSelection(t)
		}
		return s, err

	case ir.SystemRelationshipMaintenance:
		var s ir.MaintenanceSettings
		err = decodeFields(v,
			field("kinds", &s.Kinds), field("decay", &s.Decay), field("reinforce", &s.Reinforce),
			field("cull_threshold", &s.CullThreshold), field("grace_ticks", &s.GraceTicks))
		return s, err

	case ir.SystemGraphContagion:
		var s ir.ContagionSettings
		err = decodeFields(v,
			field("tag", &s.Tag), field("via", &s.Via), field("transmission", &s.Transmission),
			field("recovery", &s.Recovery), field("immunity_tag", &s.ImmunityTag), nested("susceptible"))
		if err != nil {
			return nil, err
		}
		s.Susceptible, err = decodeFilterList(v, "susceptible")
		return s, err

	case ir.SystemTagDiffusion:
		var s ir.TagDiffusionSettings
		err = decodeFields(v,
			field("tag", &s.Tag), field("via", &s.Via), field("rate", &s.Rate),
			field("min", &s.Min), field("max", &s.Max), nested("filters"))
		if err != nil {
			return nil, err
		}
		s.Filters, err = decodeFilterList(v, "filters")
		return s, err

	case ir.SystemPlaneDiffusion:
		var s ir.PlaneDiffusionSettings
		err = decodeFields(v,
			field("plane", &s.Plane), field("source_tag", &s.SourceTag), field("output_tag", &s.OutputTag),
			field("rate", &s.Rate), field("decay", &s.Decay), field("noise_scale", &s.NoiseScale))
		return s, err

	case ir.SystemEraSpawner:
		var s ir.EraSpawnerSettings
		err = decodeFields(v, field("era", &s.Era))
		return s, err

	case ir.SystemEraTransition:
		err = decodeFields(v)
		return ir.EraTransitionSettings{}, err

	case ir.SystemThresholdTrigger:
		var s ir.ThresholdSettings
		err = decodeFields(v,
			nested("metric"), field("op", &s.Op), field("threshold", &s.Threshold),
			nested("reset_threshold"), field("action", &s.Action), nested("mutations"), nested("narrative"))
		if err != nil {
			return nil, err
		}
		if s.Metric, err = decodeMetricField(v, "metric"); err != nil {
			return nil, err
		}
		if r, ok := lookup(v, "reset_threshold"); ok {
			var reset float64
			if err := r.Decode(&reset); err != nil {
				return nil, formatCUEError(err)
			}
			s.Reset = &reset
		}
		if s.Mutations, err = decodeMutationList(v, "mutations"); err != nil {
			return nil, err
		}
		s.Narrative, err = decodeNarrative(v, "narrative")
		return s, err

	case ir.SystemUniversalCatalyst:
		s := ir.CatalystSettings{AttemptsPerTick: 1, BaseRate: 1}
		err = decodeFields(v,
			field("actions", &s.Actions), nested("agents"), field("attempts_per_tick", &s.AttemptsPerTick),
			field("base_rate", &s.BaseRate), field("category_cooldown", &s.CategoryCooldown))
		if err != nil {
			return nil, err
		}
		s.Agents, err = decodeFilterList(v, "agents")
		return s, err

	default:
		return nil, compileErr(v, "type", "unknown system type %q", typ)
	}
}
