package interp

import (
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/loreweave/internal/coords"
	"github.com/roach88/loreweave/internal/graph"
	"github.com/roach88/loreweave/internal/ir"
	"github.com/roach88/loreweave/internal/rules"
)

type recorder struct {
	recs []ir.MutationRecord
}

func (r *recorder) Record(rec ir.MutationRecord) { r.recs = append(r.recs, rec) }

func (r *recorder) ops(op ir.ChangeOp) []ir.MutationRecord {
	var out []ir.MutationRecord
	for _, rec := range r.recs {
		if rec.Op == op {
			out = append(out, rec)
		}
	}
	return out
}

func newTestContext(t *testing.T) (*rules.Context, *recorder) {
	t.Helper()
	rec := &recorder{}
	g := graph.New(graph.WithListener(rec))
	g.SetTick(1)
	return &rules.Context{
		Tick:       1,
		Graph:      g,
		Rand:       rand.New(rand.NewPCG(42, 0)),
		Pressures:  rules.NewPressureTable(),
		Coords:     coords.New([]ir.Plane{{Name: "surface", Width: 100, Height: 100, CellSize: 10}}, 42),
		Saturation: rules.NewSaturationTracker(),
	}, rec
}

func add(t *testing.T, ctx *rules.Context, init ir.EntityInit) ir.EntityID {
	t.Helper()
	id, err := ctx.Graph.AddEntity(init)
	require.NoError(t, err)
	return id
}

func requireConfigError(t *testing.T, err error, field string) {
	t.Helper()
	require.Error(t, err)
	var ce *ConfigError
	require.True(t, errors.As(err, &ce), "want *ConfigError, got %T: %v", err, err)
	assert.Equal(t, field, ce.Field)
}

func TestCreatePressureFromDeclarativeValidates(t *testing.T) {
	_, err := CreatePressureFromDeclarative(ir.PressureConfig{})
	requireConfigError(t, err, "id")

	_, err = CreatePressureFromDeclarative(ir.PressureConfig{ID: "p", Min: 5, Max: 1})
	requireConfigError(t, err, "max")

	_, err = CreatePressureFromDeclarative(ir.PressureConfig{ID: "p", Decay: 2})
	requireConfigError(t, err, "decay")

	_, err = CreatePressureFromDeclarative(ir.PressureConfig{ID: "p", Sources: []ir.PressureSource{{Metric: nil}}})
	requireConfigError(t, err, "sources[0].metric")

	_, err = LoadPressures([]ir.PressureConfig{{ID: "p"}, {ID: "p"}})
	requireConfigError(t, err, "id")
}

func TestPressureEvaluate(t *testing.T) {
	ctx, _ := newTestContext(t)
	add(t, ctx, ir.EntityInit{Kind: "npc"})
	add(t, ctx, ir.EntityInit{Kind: "npc"})

	p, err := CreatePressureFromDeclarative(ir.PressureConfig{
		ID: "crowding", Initial: 10, Min: 0, Max: 100, Decay: 0.5,
		Sources: []ir.PressureSource{
			{Metric: ir.CountMetric{Filters: []ir.Filter{ir.KindFilter{Kind: "npc"}}}, Weight: 2},
		},
	})
	require.NoError(t, err)

	assert.InDelta(t, 9.0, p.Evaluate(ctx), 1e-9, "10*0.5 + 2*2")

	ctx.Pressures.Set("crowding", 4)
	assert.InDelta(t, 6.0, p.Evaluate(ctx), 1e-9)

	p.SetEraModifier("war", 3)
	ctx.EraID = "war"
	assert.InDelta(t, 9.0, p.Evaluate(ctx), 1e-9)

	ctx.Pressures.Set("crowding", 500)
	assert.InDelta(t, 100.0, p.Evaluate(ctx), 1e-9, "clamped to max")
}

func TestTemplateExpandNearAnchor(t *testing.T) {
	ctx, _ := newTestContext(t)
	town := add(t, ctx, ir.EntityInit{Kind: "settlement", Name: "Ashford", Culture: "river",
		Coords: ir.Coordinates{Plane: "surface", X: 50, Y: 50}})

	tmpl, err := CreateTemplateFromDeclarative(ir.TemplateConfig{
		ID:        "villager",
		Weight:    1,
		Anchor:    &ir.SelectionSpec{Filters: []ir.Filter{ir.KindFilter{Kind: "settlement"}}, Pick: ir.PickFirst, Count: 1},
		Placement: ir.PlacementNearAnchor,
		Radius:    5,
		Entity: ir.EntitySpec{
			Kind: "npc", Name: "{culture} villager of {anchor}", CultureFrom: ir.VarAnchor, Prominence: 1,
		},
		Relationships: []ir.RelationshipSpec{{Kind: "lives_in", Src: ir.VarSelf, Dst: ir.VarAnchor, Strength: 1}},
		Mutations:     []ir.Mutation{ir.AdjustProminenceMutation{Entity: ir.VarAnchor, Delta: 0.5}},
	})
	require.NoError(t, err)
	require.True(t, tmpl.CanApply(ctx))

	id, err := tmpl.Expand(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	e, ok := ctx.Graph.Entity(id)
	require.True(t, ok)
	assert.Equal(t, "river", e.Culture)
	assert.Equal(t, "river villager of Ashford", e.Name)
	assert.Equal(t, "surface", e.Coords.Plane)
	assert.LessOrEqual(t, coords.Distance(e.Coords, ir.Coordinates{Plane: "surface", X: 50, Y: 50}), 5.0+1e-9)
	assert.True(t, ctx.Graph.HasRelationship(id, town, "lives_in"))

	anchor, _ := ctx.Graph.Entity(town)
	assert.InDelta(t, 0.5, anchor.Prominence, 1e-9)
}

func TestTemplateWithoutAnchorCandidates(t *testing.T) {
	ctx, _ := newTestContext(t)
	tmpl, err := CreateTemplateFromDeclarative(ir.TemplateConfig{
		ID:        "villager",
		Anchor:    &ir.SelectionSpec{Filters: []ir.Filter{ir.KindFilter{Kind: "settlement"}}},
		Placement: ir.PlacementNearAnchor,
		Entity:    ir.EntitySpec{Kind: "npc"},
	})
	require.NoError(t, err)
	assert.False(t, tmpl.CanApply(ctx))
	id, err := tmpl.Expand(ctx)
	require.NoError(t, err)
	assert.Empty(t, id)
	assert.Zero(t, ctx.Graph.EntityCount())
}

func TestTemplateEraWeight(t *testing.T) {
	tmpl, err := CreateTemplateFromDeclarative(ir.TemplateConfig{
		ID: "fort", EraWeights: map[string]float64{"war": 3}, Entity: ir.EntitySpec{Kind: "settlement"},
	})
	require.NoError(t, err)
	assert.Equal(t, 3.0, tmpl.EraWeight("war"))
	assert.Equal(t, 1.0, tmpl.EraWeight("peace"))
}

func TestCreateTemplateFromDeclarativeValidates(t *testing.T) {
	tests := []struct {
		name  string
		cfg   ir.TemplateConfig
		field string
	}{
		{"missing id", ir.TemplateConfig{Entity: ir.EntitySpec{Kind: "npc"}}, "id"},
		{"missing kind", ir.TemplateConfig{ID: "t"}, "entity.kind"},
		{"era kind", ir.TemplateConfig{ID: "t", Entity: ir.EntitySpec{Kind: ir.KindEra}}, "entity.kind"},
		{"anchor required", ir.TemplateConfig{ID: "t", Placement: ir.PlacementNearAnchor, Entity: ir.EntitySpec{Kind: "npc"}}, "anchor"},
		{"bad placement", ir.TemplateConfig{ID: "t", Placement: "orbit", Entity: ir.EntitySpec{Kind: "npc"}}, "placement"},
		{"bad condition op", ir.TemplateConfig{ID: "t", Entity: ir.EntitySpec{Kind: "npc"},
			Conditions: []ir.Condition{ir.TickCondition{Op: "almost"}}}, "conditions[0].op"},
		{"nested filter", ir.TemplateConfig{ID: "t", Entity: ir.EntitySpec{Kind: "npc"},
			Conditions: []ir.Condition{ir.NotCondition{Condition: ir.CountCondition{
				Op: ir.OpGT, Filters: []ir.Filter{ir.NotFilter{Filter: ir.KindFilter{}}},
			}}}}, "conditions[0].not.filters[0].not.kind"},
		{"relationship kind", ir.TemplateConfig{ID: "t", Entity: ir.EntitySpec{Kind: "npc"},
			Relationships: []ir.RelationshipSpec{{Src: ir.VarSelf, Dst: ir.VarAnchor}}}, "relationships[0].kind"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CreateTemplateFromDeclarative(tt.cfg)
			requireConfigError(t, err, tt.field)
		})
	}
}

func tradeAction() ir.ActionConfig {
	return ir.ActionConfig{
		ID:       "trade",
		Category: "economy",
		Actor:    []ir.Filter{ir.KindFilter{Kind: "npc"}, ir.TagFilter{Tag: "merchant", Present: true}},
		Variables: []ir.VariableSpec{{
			Name:     "target",
			Required: true,
			Select: ir.SelectionSpec{
				Filters: []ir.Filter{ir.KindFilter{Kind: "npc"}},
				Pick:    ir.PickFirst,
				Count:   1,
			},
		}},
		BaseChance:        0.2,
		ProminenceFactor:  0.1,
		PressureModifiers: []ir.PressureModifier{{Pressure: "prosperity", Factor: 0.5}},
		Cooldown:          3,
		Mutations: []ir.Mutation{
			ir.CreateRelationshipMutation{Kind: "trades_with", Src: ir.VarActor, Dst: ir.VarTarget, Strength: 0.4},
			ir.SetTagMutation{Entity: ir.VarTarget, Tag: "goods", Value: 1},
		},
		Narrative: &ir.NarrativeSpec{Kind: "trade", Description: "a deal was struck", Magnitude: 1},
	}
}

func TestExecutableActionExecute(t *testing.T) {
	ctx, rec := newTestContext(t)
	merchant := add(t, ctx, ir.EntityInit{Kind: "npc", Prominence: 2, Tags: map[string]float64{"merchant": 1}})
	buyer := add(t, ctx, ir.EntityInit{Kind: "npc"})

	act, err := CreateExecutableAction(tradeAction())
	require.NoError(t, err)
	assert.Equal(t, "trade", act.ID())
	assert.Equal(t, "economy", act.Category())
	assert.Equal(t, 3, act.Cooldown())

	m, _ := ctx.Graph.Entity(merchant)
	b, _ := ctx.Graph.Entity(buyer)
	assert.True(t, act.CanPerform(ctx, m))
	assert.False(t, act.CanPerform(ctx, b))

	ok, err := act.Execute(ctx, merchant)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, ctx.Graph.HasRelationship(merchant, buyer, "trades_with"))
	b, _ = ctx.Graph.Entity(buyer)
	assert.True(t, b.HasTag("goods"))

	notes := rec.ops(ir.OpAnnotation)
	require.Len(t, notes, 1)
	assert.Equal(t, "trade", notes[0].Kind)
	assert.Equal(t, merchant, notes[0].Entity)
	assert.Equal(t, []ir.EntityID{buyer}, notes[0].Participants)
}

func TestExecutableActionMissingTargetIsNoop(t *testing.T) {
	ctx, _ := newTestContext(t)
	merchant := add(t, ctx, ir.EntityInit{Kind: "npc", Tags: map[string]float64{"merchant": 1}})
	act, err := CreateExecutableAction(tradeAction())
	require.NoError(t, err)

	ok, err := act.Execute(ctx, merchant)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, ctx.Graph.RelationshipCount())
}

func TestCalculateAttemptChance(t *testing.T) {
	ctx, _ := newTestContext(t)
	act, err := CreateExecutableAction(tradeAction())
	require.NoError(t, err)

	actor := ir.Entity{Prominence: 2}
	assert.InDelta(t, 0.4, act.CalculateAttemptChance(ctx, actor), 1e-9)

	ctx.Pressures.Set("prosperity", 2)
	assert.InDelta(t, 0.8, act.CalculateAttemptChance(ctx, actor), 1e-9)

	ctx.Pressures.Set("prosperity", 10)
	assert.Equal(t, 1.0, act.CalculateAttemptChance(ctx, actor))

	ctx.Pressures.Set("prosperity", -10)
	assert.Equal(t, 0.0, act.CalculateAttemptChance(ctx, actor))
}

func TestExecutableActionFirePicksMostProminent(t *testing.T) {
	ctx, _ := newTestContext(t)
	add(t, ctx, ir.EntityInit{Kind: "npc", Prominence: 1, Tags: map[string]float64{"merchant": 1}})
	big := add(t, ctx, ir.EntityInit{Kind: "npc", Prominence: 5, Tags: map[string]float64{"merchant": 1}})
	add(t, ctx, ir.EntityInit{Kind: "npc", Prominence: 9})

	act, err := CreateExecutableAction(tradeAction())
	require.NoError(t, err)
	ok, err := act.Fire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, ctx.Graph.CountRelationships(big, "trades_with", ir.DirectionOut))
}

func TestCreateExecutableActionValidates(t *testing.T) {
	cfg := tradeAction()
	cfg.Variables = append(cfg.Variables, ir.VariableSpec{Name: "target"})
	_, err := CreateExecutableAction(cfg)
	requireConfigError(t, err, "variables[1].name")

	cfg = tradeAction()
	cfg.Variables[0].Select.Pick = "lottery"
	_, err = CreateExecutableAction(cfg)
	requireConfigError(t, err, "variables[0].select.pick")

	cfg = tradeAction()
	cfg.BaseChance = 1.5
	_, err = CreateExecutableAction(cfg)
	requireConfigError(t, err, "base_chance")

	cfg = tradeAction()
	cfg.Mutations = []ir.Mutation{ir.ArchiveEntityMutation{Entity: ir.VarTarget, Policy: "vanish"}}
	_, err = CreateExecutableAction(cfg)
	requireConfigError(t, err, "mutations[0].policy")

	_, err = LoadActions([]ir.ActionConfig{tradeAction(), tradeAction()})
	requireConfigError(t, err, "id")
}

func TestIsDeclarativeSystem(t *testing.T) {
	assert.True(t, IsDeclarativeSystem(ir.SystemConfig{}))
	assert.True(t, IsDeclarativeSystem(&ir.SystemConfig{}))
	assert.False(t, IsDeclarativeSystem(ir.TemplateConfig{}))
	assert.False(t, IsDeclarativeSystem(nil))
}

func TestCreateSystemFromDeclarativeValidates(t *testing.T) {
	lib := &Library{Eras: []ir.EraConfig{{ID: "dawn"}}}
	tests := []struct {
		name  string
		cfg   ir.SystemConfig
		field string
	}{
		{"unknown type", ir.SystemConfig{ID: "s", Type: "weather", Settings: ir.GrowthSettings{}}, "type"},
		{"missing settings", ir.SystemConfig{ID: "s", Type: ir.SystemGrowth}, "settings"},
		{"mismatched settings", ir.SystemConfig{ID: "s", Type: ir.SystemGrowth, Settings: ir.ClusterSettings{}}, "settings"},
		{"unknown template", ir.SystemConfig{ID: "s", Type: ir.SystemGrowth,
			Settings: ir.GrowthSettings{Templates: []ir.TemplateRef{{Template: "ghost"}}}}, "settings.templates[0]"},
		{"unknown era", ir.SystemConfig{ID: "s", Type: ir.SystemEraTransition, Eras: []string{"dusk"},
			Settings: ir.EraTransitionSettings{}}, "eras"},
		{"unknown action", ir.SystemConfig{ID: "s", Type: ir.SystemThresholdTrigger,
			Settings: ir.ThresholdSettings{Metric: ir.ConstantMetric{Value: 1}, Op: ir.OpGT, Action: "ghost"}}, "settings.action"},
		{"trigger without effect", ir.SystemConfig{ID: "s", Type: ir.SystemThresholdTrigger,
			Settings: ir.ThresholdSettings{Metric: ir.ConstantMetric{Value: 1}, Op: ir.OpGT}}, "settings"},
		{"diffusion bounds", ir.SystemConfig{ID: "s", Type: ir.SystemTagDiffusion,
			Settings: ir.TagDiffusionSettings{Tag: "x", Min: 1, Max: 0}}, "settings.max"},
		{"contagion probability", ir.SystemConfig{ID: "s", Type: ir.SystemGraphContagion,
			Settings: ir.ContagionSettings{Tag: "x", Transmission: 2}}, "settings"},
		{"gate condition", ir.SystemConfig{ID: "s", Type: ir.SystemEraSpawner, Settings: ir.EraSpawnerSettings{},
			Conditions: []ir.Condition{ir.ChanceCondition{Probability: 3}}}, "conditions[0].probability"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CreateSystemFromDeclarative(tt.cfg, lib)
			requireConfigError(t, err, tt.field)
		})
	}
}

func testBundle() *ir.Bundle {
	return &ir.Bundle{
		Pressures: []ir.PressureConfig{{ID: "unrest", Max: 10}},
		Templates: []ir.TemplateConfig{{ID: "village", Weight: 1, Entity: ir.EntitySpec{Kind: "settlement"}}},
		Eras: []ir.EraConfig{
			{ID: "dawn", MaxTicks: 5, Next: "dusk", PressureModifiers: []ir.PressureModifier{{Pressure: "unrest", Factor: 1}}},
			{ID: "dusk"},
		},
		Systems: []ir.SystemConfig{
			{ID: "eras", Type: ir.SystemEraSpawner, Settings: ir.EraSpawnerSettings{}},
			{ID: "growth", Type: ir.SystemGrowth, Settings: ir.GrowthSettings{
				Templates: []ir.TemplateRef{{Template: "village"}}, PerTick: 1,
			}},
			{ID: "alarm", Type: ir.SystemThresholdTrigger, Settings: ir.ThresholdSettings{
				Metric:    ir.CountMetric{Filters: []ir.Filter{ir.KindFilter{Kind: "settlement"}}},
				Op:        ir.OpGTE,
				Threshold: 1,
				Mutations: []ir.Mutation{ir.AdjustPressureMutation{Pressure: "unrest", Delta: 1}},
			}},
			{ID: "off", Type: ir.SystemRelationshipMaintenance, Disabled: true, Settings: ir.MaintenanceSettings{}},
		},
	}
}

func TestCompile(t *testing.T) {
	prog, err := Compile(testBundle())
	require.NoError(t, err)

	syss, err := prog.Systems()
	require.NoError(t, err)
	require.Len(t, syss, 3, "disabled systems are dropped")
	assert.Equal(t, "eras", syss[0].ID)
	assert.Equal(t, "growth", syss[1].ID)
	assert.Equal(t, "alarm", syss[2].ID)
	assert.Len(t, prog.Pressures(), 1)
	assert.Len(t, prog.Eras(), 2)
}

func TestProgramSystemsAreFreshPerCall(t *testing.T) {
	prog, err := Compile(testBundle())
	require.NoError(t, err)

	run := func() float64 {
		ctx, _ := newTestContext(t)
		prog.InitPressures(ctx.Pressures)
		syss, err := prog.Systems()
		require.NoError(t, err)
		for _, sys := range syss {
			require.NoError(t, sys.Run(ctx))
		}
		return ctx.Pressures.Get("unrest")
	}
	first := run()
	second := run()
	assert.Equal(t, 1.0, first)
	assert.Equal(t, first, second, "trigger arming state must not leak between runs")
}

func TestProgramSystemsReportsRebuildFailure(t *testing.T) {
	prog, err := Compile(testBundle())
	require.NoError(t, err)

	prog.systems = append(prog.systems, ir.SystemConfig{ID: "broken", Type: ir.SystemGrowth})
	syss, err := prog.Systems()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "system broken")
	assert.Nil(t, syss)
}

func TestProgramEvaluatePressuresUsesEraModifiers(t *testing.T) {
	prog, err := Compile(testBundle())
	require.NoError(t, err)
	ctx, _ := newTestContext(t)
	prog.InitPressures(ctx.Pressures)

	ctx.EraID = "dawn"
	prog.EvaluatePressures(ctx)
	assert.InDelta(t, 1.0, ctx.Pressures.Get("unrest"), 1e-9)

	ctx.EraID = "dusk"
	prog.EvaluatePressures(ctx)
	assert.InDelta(t, 1.0, ctx.Pressures.Get("unrest"), 1e-9, "no decay, no modifier")
}

func TestCompileRejectsBadBundles(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(b *ir.Bundle)
		kind   string
		field  string
	}{
		{"conflict policy", func(b *ir.Bundle) { b.ConflictPolicy = "chaos" }, "bundle", "conflict_policy"},
		{"severity", func(b *ir.Bundle) { b.Contracts.Policies = map[string]ir.Severity{"duplicate_id": "fatal"} },
			"bundle", "contracts.policies.duplicate_id"},
		{"unknown next era", func(b *ir.Bundle) { b.Eras[1].Next = "night" }, "era", "next"},
		{"era pressure", func(b *ir.Bundle) { b.Eras[0].PressureModifiers[0].Pressure = "joy" }, "era", "pressure_modifiers[0]"},
		{"duplicate system", func(b *ir.Bundle) { b.Systems = append(b.Systems, b.Systems[0]) }, "system", "id"},
		{"duplicate template", func(b *ir.Bundle) { b.Templates = append(b.Templates, b.Templates[0]) }, "template", "id"},
		{"growth pressure", func(b *ir.Bundle) {
			gs := b.Systems[1].Settings.(ir.GrowthSettings)
			gs.Pressure = "joy"
			b.Systems[1].Settings = gs
		}, "system", "settings.pressure"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := testBundle()
			tt.mutate(b)
			_, err := Compile(b)
			requireConfigError(t, err, tt.field)
			var ce *ConfigError
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, tt.kind, ce.Kind)
		})
	}
}
