package systems

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/loreweave/internal/coords"
	"github.com/roach88/loreweave/internal/graph"
	"github.com/roach88/loreweave/internal/ir"
	"github.com/roach88/loreweave/internal/rules"
)

func newTestContext(t *testing.T) *rules.Context {
	t.Helper()
	g := graph.New()
	g.SetTick(1)
	return &rules.Context{
		Tick:       1,
		Graph:      g,
		Rand:       rand.New(rand.NewPCG(42, 0)),
		Pressures:  rules.NewPressureTable(),
		Coords:     coords.New(nil, 42),
		Saturation: rules.NewSaturationTracker(),
	}
}

func advance(ctx *rules.Context, tick int64) {
	ctx.Tick = tick
	ctx.Graph.SetTick(tick)
	ctx.Saturation.Reset()
}

func add(t *testing.T, ctx *rules.Context, init ir.EntityInit) ir.EntityID {
	t.Helper()
	id, err := ctx.Graph.AddEntity(init)
	require.NoError(t, err)
	return id
}

type fakeTemplate struct {
	id   string
	kind string
}

func (f fakeTemplate) ID() string { return f.id }
func (f fakeTemplate) EraWeight(string) float64 { return 1 }
func (f fakeTemplate) CanApply(*rules.Context) bool { return true }
func (f fakeTemplate) Expand(ctx *rules.Context) (ir.EntityID, error) {
	return ctx.Graph.AddEntity(ir.EntityInit{Kind: f.kind})
}

type fakeAction struct {
	id       string
	category string
	cooldown int
	executed int
}

func (f *fakeAction) ID() string { return f.id }
func (f *fakeAction) Category() string { return f.category }
func (f *fakeAction) Cooldown() int { return f.cooldown }
func (f *fakeAction) CanPerform(*rules.Context, ir.Entity) bool { return true }
func (f *fakeAction) CalculateAttemptChance(*rules.Context, ir.Entity) float64 { return 1 }
func (f *fakeAction) Execute(*rules.Context, ir.EntityID) (bool, error) {
	f.executed++
	return true, nil
}
func (f *fakeAction) Fire(ctx *rules.Context) (bool, error) {
	f.executed++
	return true, nil
}

func TestGrowthUnits(t *testing.T) {
	tests := []struct {
		name     string
		s        ir.GrowthSettings
		pressure float64
		want     int
	}{
		{"per tick only", ir.GrowthSettings{PerTick: 2}, 0, 2},
		{"pressure scaled", ir.GrowthSettings{PerTick: 1, PressureScale: 0.5}, 5, 3},
		{"floor", ir.GrowthSettings{PerTick: 0, PressureScale: 1}, 0.9, 0},
		{"capped", ir.GrowthSettings{PerTick: 1, PressureScale: 1, MaxPerTick: 3}, 10, 3},
		{"never negative", ir.GrowthSettings{PerTick: 0, PressureScale: 1}, -4, 0},
		{"pressure lowers per tick", ir.GrowthSettings{PerTick: 3, PressureScale: 1}, -1, 2},
		{"unbounded pressure clamped", ir.GrowthSettings{PerTick: 1, PressureScale: 1}, 1e300, 1 + math.MaxInt32},
		{"infinite pressure capped", ir.GrowthSettings{PerTick: 1, PressureScale: 1, MaxPerTick: 5}, math.Inf(1), 5},
		{"negative infinity", ir.GrowthSettings{PerTick: 1, PressureScale: 1}, math.Inf(-1), 0},
		{"nan pressure", ir.GrowthSettings{PerTick: 2, PressureScale: 1}, math.NaN(), 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GrowthUnits(tt.s, tt.pressure))
		})
	}
}

func TestGrowthRechecksGateBetweenUnits(t *testing.T) {
	ctx := newTestContext(t)
	cfg := ir.SystemConfig{
		ID:   "growth",
		Type: ir.SystemGrowth,
		Conditions: []ir.Condition{ir.CountCondition{
			Filters: []ir.Filter{ir.KindFilter{Kind: "settlement"}}, Op: ir.OpLT, Value: 3,
		}},
	}
	sys := NewGrowth(cfg, ir.GrowthSettings{PerTick: 5}, []WeightedTemplate{
		{Template: fakeTemplate{id: "village", kind: "settlement"}, Weight: 1},
	})

	require.True(t, sys.Active(ctx))
	require.NoError(t, sys.Run(ctx))
	assert.Len(t, ctx.Graph.ByKind("settlement"), 3)
	assert.False(t, sys.Active(ctx))
}

func TestGrowthWithoutTemplatesIsNoop(t *testing.T) {
	ctx := newTestContext(t)
	sys := NewGrowth(ir.SystemConfig{ID: "growth"}, ir.GrowthSettings{PerTick: 2}, nil)
	require.NoError(t, sys.Run(ctx))
	assert.Equal(t, 0, ctx.Graph.EntityCount())
}

func TestSystemActiveEras(t *testing.T) {
	ctx := newTestContext(t)
	sys := base(ir.SystemConfig{ID: "s", Eras: []string{"dawn"}})
	ctx.EraID = "dusk"
	assert.False(t, sys.Active(ctx))
	ctx.EraID = "dawn"
	assert.True(t, sys.Active(ctx))
}

func TestCalculateSimilarity(t *testing.T) {
	w := ir.SimilarityWeights{Tags: 1, Culture: 1}
	a := ir.Entity{Culture: "river", Tags: map[string]float64{"trade": 1, "fish": 1}}
	b := ir.Entity{Culture: "river", Tags: map[string]float64{"trade": 1, "fish": 1}}
	c := ir.Entity{Culture: "hill", Tags: map[string]float64{"ore": 1}}

	assert.InDelta(t, 1.0, CalculateSimilarity(a, b, w, 0), 1e-9)
	assert.InDelta(t, 0.0, CalculateSimilarity(a, c, w, 0), 1e-9)

	half := ir.Entity{Culture: "hill", Tags: map[string]float64{"trade": 1}}
	assert.InDelta(t, 0.25, CalculateSimilarity(a, half, w, 0), 1e-9)

	near := ir.SimilarityWeights{Proximity: 1}
	p := ir.Entity{Coords: ir.Coordinates{Plane: "surface", X: 0, Y: 0}}
	q := ir.Entity{Coords: ir.Coordinates{Plane: "surface", X: 5, Y: 0}}
	assert.InDelta(t, 0.5, CalculateSimilarity(p, q, near, 10), 1e-9)
	assert.Zero(t, CalculateSimilarity(p, q, ir.SimilarityWeights{}, 10))
}

func TestFindBestClusterMatch(t *testing.T) {
	w := ir.SimilarityWeights{Culture: 1}
	clusters := [][]ir.Entity{
		{{ID: "a", Culture: "hill"}},
		{{ID: "b", Culture: "river"}, {ID: "b2", Culture: "river"}},
		{{ID: "c", Culture: "river"}},
	}
	e := ir.Entity{ID: "x", Culture: "river"}
	assert.Equal(t, 1, FindBestClusterMatch(e, clusters, w, 0, 0.5, 0))
	assert.Equal(t, 2, FindBestClusterMatch(e, clusters, w, 0, 0.5, 2), "full clusters are skipped")
	assert.Equal(t, -1, FindBestClusterMatch(ir.Entity{Culture: "sea"}, clusters, w, 0, 0.5, 0))
}

func TestClusterFormationCreatesComposites(t *testing.T) {
	ctx := newTestContext(t)
	for _, c := range []string{"river", "river", "river", "hill", "hill", "sea"} {
		add(t, ctx, ir.EntityInit{Kind: "npc", Culture: c, Prominence: 2})
	}
	sys := NewClusterFormation(ir.SystemConfig{ID: "clusters"}, ir.ClusterSettings{
		Filters:   []ir.Filter{ir.KindFilter{Kind: "npc"}},
		Weights:   ir.SimilarityWeights{Culture: 1},
		Threshold: 0.5,
		MinSize:   2,
		Composite: ir.EntitySpec{Kind: "faction", Name: "{culture} band of {size}"},
	})
	require.NoError(t, sys.Run(ctx))

	factions := ctx.Graph.ByKind("faction")
	require.Len(t, factions, 2)
	assert.Equal(t, "river", factions[0].Culture)
	assert.Equal(t, "river band of 3", factions[0].Name)
	assert.InDelta(t, 2.0, factions[0].Prominence, 1e-9)
	assert.Len(t, ctx.Graph.Members(factions[0].ID), 3)
	assert.Len(t, ctx.Graph.Members(factions[1].ID), 2)

	loner := ctx.Graph.ActiveEntities(func(e ir.Entity) bool { return e.Culture == "sea" })
	require.Len(t, loner, 1)
	assert.Empty(t, loner[0].PartOf)

	require.NoError(t, sys.Run(ctx))
	assert.Len(t, ctx.Graph.ByKind("faction"), 2, "members already in a composite are skipped")
}

func TestConnectionEvolutionFormsAndEvolves(t *testing.T) {
	ctx := newTestContext(t)
	a := add(t, ctx, ir.EntityInit{Kind: "npc", Culture: "river"})
	b := add(t, ctx, ir.EntityInit{Kind: "npc", Culture: "river"})
	sys := NewConnectionEvolution(ir.SystemConfig{ID: "friends"}, ir.ConnectionSettings{
		RelationshipKind: "friend",
		Sources:          []ir.Filter{ir.KindFilter{Kind: "npc"}},
		Target: ir.SelectionSpec{
			Filters: []ir.Filter{ir.KindFilter{Kind: "npc"}},
			Pick:    ir.PickFirst,
			Count:   1,
		},
		FormChance:      1,
		InitialStrength: 0.5,
		Weights:         ir.SimilarityWeights{Culture: 1},
		Threshold:       0.5,
		Strengthen:      0.1,
		Weaken:          0.1,
	})

	require.NoError(t, sys.Run(ctx))
	require.True(t, ctx.Graph.HasRelationship(a, b, "friend"))
	assert.Equal(t, 1, ctx.Graph.CountRelationships(a, "friend", ir.DirectionBoth), "no duplicate in reverse")

	advance(ctx, 2)
	require.NoError(t, sys.Run(ctx))
	rel, ok := ctx.Graph.FindRelationship(a, b, "friend")
	require.True(t, ok)
	assert.InDelta(t, 0.6, rel.Strength, 1e-9)
}

func TestRelationshipMaintenanceDecaysAndCulls(t *testing.T) {
	ctx := newTestContext(t)
	a := add(t, ctx, ir.EntityInit{Kind: "npc", Culture: "river"})
	b := add(t, ctx, ir.EntityInit{Kind: "npc", Culture: "hill"})
	c := add(t, ctx, ir.EntityInit{Kind: "npc", Culture: "river"})
	weak, err := ctx.Graph.AddRelationship("friend", a, b, 0.5)
	require.NoError(t, err)
	kin, err := ctx.Graph.AddRelationship("friend", a, c, 0.5)
	require.NoError(t, err)

	sys := NewRelationshipMaintenance(ir.SystemConfig{ID: "upkeep"}, ir.MaintenanceSettings{
		Decay: 0.2, Reinforce: 0.2, CullThreshold: 0.2, GraceTicks: 1,
	})

	advance(ctx, 2)
	require.NoError(t, sys.Run(ctx))
	r, _ := ctx.Graph.Relationship(weak)
	assert.InDelta(t, 0.3, r.Strength, 1e-9)
	assert.True(t, r.Active())

	advance(ctx, 3)
	require.NoError(t, sys.Run(ctx))
	r, _ = ctx.Graph.Relationship(weak)
	assert.False(t, r.Active(), "below cull threshold after grace")

	k, _ := ctx.Graph.Relationship(kin)
	assert.True(t, k.Active())
	assert.InDelta(t, 0.5, k.Strength, 1e-9, "shared culture offsets decay")
}

func TestMaintenanceIgnoresStructuralEdges(t *testing.T) {
	ctx := newTestContext(t)
	f := add(t, ctx, ir.EntityInit{Kind: "faction"})
	m := add(t, ctx, ir.EntityInit{Kind: "npc", PartOf: f})
	sys := NewRelationshipMaintenance(ir.SystemConfig{ID: "upkeep"}, ir.MaintenanceSettings{Decay: 1, CullThreshold: 0.5})
	advance(ctx, 5)
	require.NoError(t, sys.Run(ctx))
	assert.True(t, ctx.Graph.HasRelationship(m, f, ir.KindPartOf))
}

func TestGraphContagionUsesTickStartSet(t *testing.T) {
	ctx := newTestContext(t)
	a := add(t, ctx, ir.EntityInit{Kind: "npc", Tags: map[string]float64{"plague": 1}})
	b := add(t, ctx, ir.EntityInit{Kind: "npc"})
	c := add(t, ctx, ir.EntityInit{Kind: "npc"})
	_, err := ctx.Graph.AddRelationship("neighbor", a, b, 1)
	require.NoError(t, err)
	_, err = ctx.Graph.AddRelationship("neighbor", b, c, 1)
	require.NoError(t, err)

	sys := NewGraphContagion(ir.SystemConfig{ID: "plague"}, ir.ContagionSettings{Tag: "plague", Transmission: 1})
	require.NoError(t, sys.Run(ctx))

	eb, _ := ctx.Graph.Entity(b)
	ec, _ := ctx.Graph.Entity(c)
	assert.True(t, eb.HasTag("plague"))
	assert.False(t, ec.HasTag("plague"), "newly infected do not spread in the same tick")

	advance(ctx, 2)
	require.NoError(t, sys.Run(ctx))
	ec, _ = ctx.Graph.Entity(c)
	assert.True(t, ec.HasTag("plague"))
}

func TestGraphContagionRecoveryGrantsImmunity(t *testing.T) {
	ctx := newTestContext(t)
	a := add(t, ctx, ir.EntityInit{Kind: "npc", Tags: map[string]float64{"plague": 1}})
	b := add(t, ctx, ir.EntityInit{Kind: "npc", Tags: map[string]float64{"immune": 1}})
	_, err := ctx.Graph.AddRelationship("neighbor", a, b, 1)
	require.NoError(t, err)

	sys := NewGraphContagion(ir.SystemConfig{ID: "plague"}, ir.ContagionSettings{
		Tag: "plague", Transmission: 1, Recovery: 1, ImmunityTag: "immune",
	})
	require.NoError(t, sys.Run(ctx))

	ea, _ := ctx.Graph.Entity(a)
	eb, _ := ctx.Graph.Entity(b)
	assert.False(t, ea.HasTag("plague"))
	assert.True(t, ea.HasTag("immune"))
	assert.False(t, eb.HasTag("plague"))
}

func TestDiffusionDelta(t *testing.T) {
	assert.InDelta(t, 0.5, DiffusionDelta(0, []float64{1}, []float64{1}, 0.5), 1e-9)
	assert.InDelta(t, 0.25, DiffusionDelta(0, []float64{1, 0}, []float64{1, 1}, 0.5), 1e-9)
	assert.Zero(t, DiffusionDelta(1, nil, nil, 0.5))
	assert.Zero(t, DiffusionDelta(1, []float64{3}, []float64{0}, 0.5))
}

func TestTagDiffusionIsSynchronous(t *testing.T) {
	ctx := newTestContext(t)
	a := add(t, ctx, ir.EntityInit{Kind: "npc", Tags: map[string]float64{"faith": 1}})
	b := add(t, ctx, ir.EntityInit{Kind: "npc", Tags: map[string]float64{"faith": 0}})
	_, err := ctx.Graph.AddRelationship("neighbor", a, b, 1)
	require.NoError(t, err)

	sys := NewTagDiffusion(ir.SystemConfig{ID: "faith"}, ir.TagDiffusionSettings{
		Tag: "faith", Rate: 0.5, Min: 0, Max: 1,
		Filters: []ir.Filter{ir.KindFilter{Kind: "npc"}},
	})
	require.NoError(t, sys.Run(ctx))

	ea, _ := ctx.Graph.Entity(a)
	eb, _ := ctx.Graph.Entity(b)
	assert.InDelta(t, 0.5, ea.Tags["faith"], 1e-9)
	assert.InDelta(t, 0.5, eb.Tags["faith"], 1e-9)
}

func TestPlaneDiffusionWritesOutputTag(t *testing.T) {
	ctx := newTestContext(t)
	ctx.Coords = coords.New([]ir.Plane{{Name: "surface", Width: 40, Height: 40, CellSize: 10}}, 7)
	src := add(t, ctx, ir.EntityInit{Kind: "shrine", Tags: map[string]float64{"mana": 5},
		Coords: ir.Coordinates{Plane: "surface", X: 5, Y: 5}})
	sys := NewPlaneDiffusion(ir.SystemConfig{ID: "mana"}, ir.PlaneDiffusionSettings{
		Plane: "surface", SourceTag: "mana", OutputTag: "ambient", Rate: 0.2, Decay: 0.1,
	})
	require.NoError(t, sys.Run(ctx))

	e, _ := ctx.Graph.Entity(src)
	require.True(t, e.HasTag("ambient"))
	assert.Greater(t, e.Tags["ambient"], 0.0)
}

func TestHysteresis(t *testing.T) {
	h := NewHysteresis(ir.OpGTE, 10, 5)
	assert.True(t, h.Armed())
	assert.False(t, h.Observe(9))
	assert.True(t, h.Observe(10))
	assert.False(t, h.Armed())
	assert.False(t, h.Observe(12), "stays disarmed above the reset level")
	assert.False(t, h.Observe(6))
	assert.False(t, h.Armed())
	assert.False(t, h.Observe(4), "re-arming does not fire")
	assert.True(t, h.Armed())
	assert.True(t, h.Observe(11))
}

func TestThresholdTriggerFiresOncePerCrossing(t *testing.T) {
	ctx := newTestContext(t)
	add(t, ctx, ir.EntityInit{Kind: "npc"})
	add(t, ctx, ir.EntityInit{Kind: "npc"})

	action := &fakeAction{id: "riot"}
	sys := NewThresholdTrigger(ir.SystemConfig{ID: "unrest"}, ir.ThresholdSettings{
		Metric:    ir.CountMetric{Filters: []ir.Filter{ir.KindFilter{Kind: "npc"}}},
		Op:        ir.OpGTE,
		Threshold: 2,
		Mutations: []ir.Mutation{ir.AdjustPressureMutation{Pressure: "unrest", Delta: 1}},
	}, action)

	for tick := int64(1); tick <= 3; tick++ {
		advance(ctx, tick)
		require.NoError(t, sys.Run(ctx))
	}
	assert.Equal(t, 1, action.executed)
	assert.InDelta(t, 1.0, ctx.Pressures.Get("unrest"), 1e-9)
}

func TestEraSpawnerAndTransition(t *testing.T) {
	ctx := newTestContext(t)
	eras := []ir.EraConfig{
		{ID: "dawn", Name: "Age of Dawn", MaxTicks: 2, Next: "dusk"},
		{ID: "dusk", Name: "Age of Dusk"},
	}
	spawn := NewEraSpawner(ir.SystemConfig{ID: "spawn"}, ir.EraSpawnerSettings{}, eras)
	trans := NewEraTransition(ir.SystemConfig{ID: "trans"}, ir.EraTransitionSettings{}, eras)

	require.NoError(t, spawn.Run(ctx))
	require.NoError(t, spawn.Run(ctx))
	era, ok := ActiveEra(ctx)
	require.True(t, ok)
	assert.Equal(t, "dawn", era.Subtype)
	assert.Len(t, ctx.Graph.ByKind(ir.KindEra), 1)

	advance(ctx, 2)
	require.NoError(t, trans.Run(ctx))
	era, _ = ActiveEra(ctx)
	assert.Equal(t, "dawn", era.Subtype)

	advance(ctx, 3)
	require.NoError(t, trans.Run(ctx))
	next, ok := ActiveEra(ctx)
	require.True(t, ok)
	assert.Equal(t, "dusk", next.Subtype)
	assert.Equal(t, "Age of Dusk", next.Name)

	old, _ := ctx.Graph.Entity(era.ID)
	assert.Equal(t, ir.StatusHistorical, old.Status)
	assert.Equal(t, next.ID, old.SupersededBy)
}

func TestEraTransitionRejectsReentry(t *testing.T) {
	ctx := newTestContext(t)
	eras := []ir.EraConfig{
		{ID: "a", MaxTicks: 1, Next: "b"},
		{ID: "b", MaxTicks: 1, Next: "a"},
	}
	require.NoError(t, NewEraSpawner(ir.SystemConfig{ID: "spawn"}, ir.EraSpawnerSettings{}, eras).Run(ctx))
	trans := NewEraTransition(ir.SystemConfig{ID: "trans"}, ir.EraTransitionSettings{}, eras)

	advance(ctx, 2)
	require.NoError(t, trans.Run(ctx))
	advance(ctx, 3)
	require.NoError(t, trans.Run(ctx))
	advance(ctx, 4)
	err := trans.Run(ctx)
	require.ErrorIs(t, err, ErrReentrantTransition)
}

func TestEraReady(t *testing.T) {
	ctx := newTestContext(t)
	tests := []struct {
		name string
		era  ir.EraConfig
		age  int64
		want bool
	}{
		{"terminal era", ir.EraConfig{MinTicks: 0}, 10, false},
		{"below min", ir.EraConfig{MinTicks: 5, Next: "n"}, 4, false},
		{"no gates", ir.EraConfig{MinTicks: 5, Next: "n"}, 5, true},
		{"max reached", ir.EraConfig{MaxTicks: 3, Next: "n", Conditions: []ir.Condition{ir.TickCondition{Op: ir.OpGT, Value: 99}}}, 3, true},
		{"conditions fail", ir.EraConfig{MaxTicks: 9, Next: "n", Conditions: []ir.Condition{ir.TickCondition{Op: ir.OpGT, Value: 99}}}, 3, false},
		{"conditions hold", ir.EraConfig{MaxTicks: 9, Next: "n", Conditions: []ir.Condition{ir.TickCondition{Op: ir.OpGTE, Value: 1}}}, 3, true},
		{"waiting for max", ir.EraConfig{MaxTicks: 9, Next: "n"}, 3, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EraReady(ctx, tt.era, tt.age))
		})
	}
}

func TestCatalystActionCooldown(t *testing.T) {
	ctx := newTestContext(t)
	add(t, ctx, ir.EntityInit{Kind: "npc", Prominence: 1})
	act := &fakeAction{id: "trade", cooldown: 2}
	sys := NewUniversalCatalyst(ir.SystemConfig{ID: "catalyst"}, ir.CatalystSettings{
		Agents:          []ir.Filter{ir.KindFilter{Kind: "npc"}},
		AttemptsPerTick: 1,
		BaseRate:        1,
	}, []Action{act})

	var fired []int
	for tick := int64(1); tick <= 5; tick++ {
		advance(ctx, tick)
		before := act.executed
		require.NoError(t, sys.Run(ctx))
		fired = append(fired, act.executed-before)
	}
	assert.Equal(t, []int{1, 0, 0, 1, 0}, fired)
}

func TestCatalystCategoryCooldown(t *testing.T) {
	ctx := newTestContext(t)
	add(t, ctx, ir.EntityInit{Kind: "npc", Prominence: 1})
	a := &fakeAction{id: "raid", category: "war"}
	b := &fakeAction{id: "siege", category: "war"}
	sys := NewUniversalCatalyst(ir.SystemConfig{ID: "catalyst"}, ir.CatalystSettings{
		Agents:           []ir.Filter{ir.KindFilter{Kind: "npc"}},
		AttemptsPerTick:  3,
		BaseRate:         1,
		CategoryCooldown: 4,
	}, []Action{a, b})

	for tick := int64(1); tick <= 5; tick++ {
		advance(ctx, tick)
		require.NoError(t, sys.Run(ctx))
	}
	assert.Equal(t, 1, a.executed+b.executed)

	advance(ctx, 6)
	require.NoError(t, sys.Run(ctx))
	assert.Equal(t, 2, a.executed+b.executed)
}

func TestCatalystWithoutAgents(t *testing.T) {
	ctx := newTestContext(t)
	act := &fakeAction{id: "trade"}
	sys := NewUniversalCatalyst(ir.SystemConfig{ID: "catalyst"}, ir.CatalystSettings{
		Agents: []ir.Filter{ir.KindFilter{Kind: "npc"}}, AttemptsPerTick: 2, BaseRate: 1,
	}, []Action{act})
	require.NoError(t, sys.Run(ctx))
	assert.Zero(t, act.executed)
}
