package contract

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/loreweave/internal/graph"
	"github.com/roach88/loreweave/internal/ir"
)

func active(id ir.EntityID) ir.Entity {
	return ir.Entity{ID: id, Kind: "npc", Status: ir.StatusActive, Prominence: 1}
}

func rel(id ir.RelationshipID, kind string, src, dst ir.EntityID) ir.Relationship {
	return ir.Relationship{ID: id, Kind: kind, Src: src, Dst: dst, Strength: 0.5, Status: ir.RelationshipActive}
}

func classes(res Result) []string {
	var out []string
	for _, v := range res.Violations {
		out = append(out, v.Class)
	}
	return out
}

func TestCleanGraphHasNoViolations(t *testing.T) {
	g := graph.New()
	f, err := g.AddEntity(ir.EntityInit{Kind: "faction"})
	require.NoError(t, err)
	a, err := g.AddEntity(ir.EntityInit{Kind: "npc", PartOf: f})
	require.NoError(t, err)
	b, err := g.AddEntity(ir.EntityInit{Kind: "npc", PartOf: f})
	require.NoError(t, err)
	_, err = g.AddRelationship("ally", a, b, 0.5)
	require.NoError(t, err)
	require.NoError(t, g.ArchiveEntity(f, ir.PolicyDetachMembers))

	res := New(ir.ContractConfig{}).Check(g, 3)
	assert.Empty(t, res.Violations)
	assert.False(t, res.Halt())
}

func TestSupersededGraphHasNoViolations(t *testing.T) {
	g := graph.New()
	f, err := g.AddEntity(ir.EntityInit{Kind: "faction"})
	require.NoError(t, err)
	m, err := g.AddEntity(ir.EntityInit{Kind: "npc", PartOf: f})
	require.NoError(t, err)
	_, err = g.SupersedeEntity(m, ir.EntityInit{Name: "heir"})
	require.NoError(t, err)
	require.NoError(t, g.ArchiveEntity(f, ir.PolicyArchiveMembers))

	res := New(ir.ContractConfig{}).Check(g, 1)
	assert.Empty(t, res.Violations)
}

func TestValidators(t *testing.T) {
	archived := active("gone")
	archived.Status = ir.StatusArchived

	tests := []struct {
		name  string
		ents  []ir.Entity
		rels  []ir.Relationship
		hist  []string
		class string
	}{
		{
			name:  "dangling",
			ents:  []ir.Entity{active("a")},
			rels:  []ir.Relationship{rel("rel-1", "ally", "a", "ghost")},
			class: ClassDanglingRelationship,
		},
		{
			name:  "archived endpoint",
			ents:  []ir.Entity{active("a"), archived},
			rels:  []ir.Relationship{rel("rel-1", "ally", "a", "gone")},
			class: ClassArchivedEndpoint,
		},
		{
			name:  "duplicate entity",
			ents:  []ir.Entity{active("a"), active("a")},
			class: ClassDuplicateID,
		},
		{
			name:  "duplicate relationship",
			ents:  []ir.Entity{active("a"), active("b")},
			rels:  []ir.Relationship{rel("rel-1", "ally", "a", "b"), rel("rel-1", "foe", "b", "a")},
			class: ClassDuplicateID,
		},
		{
			name: "member of archived composite",
			ents: []ir.Entity{
				{ID: "m", Kind: "npc", Status: ir.StatusActive, PartOf: "gone"},
				archived,
			},
			class: ClassPartOfIntegrity,
		},
		{
			name:  "member without edge",
			ents:  []ir.Entity{{ID: "m", Kind: "npc", Status: ir.StatusActive, PartOf: "a"}, active("a")},
			class: ClassPartOfIntegrity,
		},
		{
			name:  "strength",
			ents:  []ir.Entity{active("a"), active("b")},
			rels:  []ir.Relationship{{ID: "rel-1", Kind: "ally", Src: "a", Dst: "b", Strength: 1.5, Status: ir.RelationshipActive}},
			class: ClassStrengthRange,
		},
		{
			name:  "non-finite prominence",
			ents:  []ir.Entity{{ID: "a", Kind: "npc", Status: ir.StatusActive, Prominence: math.NaN()}},
			class: ClassProminenceRange,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := New(ir.ContractConfig{}).CheckView(NewView(7, tt.ents, tt.rels, tt.hist))
			require.Equal(t, []string{tt.class}, classes(res))
			assert.Equal(t, int64(7), res.Violations[0].Tick)
			assert.NotEmpty(t, res.Violations[0].Message)
		})
	}
}

func TestHistoricalEdgeKindsAreExempt(t *testing.T) {
	archived := active("gone")
	archived.Status = ir.StatusArchived
	ents := []ir.Entity{active("a"), archived}
	rels := []ir.Relationship{rel("rel-1", "remembers", "a", "gone")}

	e := New(ir.ContractConfig{})
	assert.Len(t, e.CheckView(NewView(1, ents, rels, nil)).Violations, 1)

	e = New(ir.ContractConfig{HistoricalEdgeKinds: []string{"remembers"}})
	assert.Empty(t, e.CheckView(NewView(1, ents, rels, e.historical)).Violations)
}

func TestSeverityPolicy(t *testing.T) {
	ents := []ir.Entity{{ID: "a", Kind: "npc", Status: ir.StatusActive, Prominence: 50}}

	e := New(ir.ContractConfig{ProminenceMin: 0, ProminenceMax: 10})
	res := e.CheckView(NewView(1, ents, nil, nil))
	require.Len(t, res.Violations, 1)
	assert.Equal(t, ir.SeveritySoft, res.Violations[0].Severity)
	assert.False(t, res.Halt())
	assert.Len(t, res.Soft(), 1)

	e = New(ir.ContractConfig{
		ProminenceMin: 0, ProminenceMax: 10,
		Policies: map[string]ir.Severity{ClassProminenceRange: ir.SeverityHard},
	})
	res = e.CheckView(NewView(1, ents, nil, nil))
	assert.True(t, res.Halt())
	assert.Len(t, res.Hard(), 1)
}

func TestStructuralClassesHaltByDefault(t *testing.T) {
	res := New(ir.ContractConfig{}).CheckView(NewView(1, []ir.Entity{active("a")},
		[]ir.Relationship{rel("rel-1", "ally", "a", "ghost")}, nil))
	assert.True(t, res.Halt())
}

type alwaysFails struct{}

func (alwaysFails) Class() string                { return "custom" }
func (alwaysFails) DefaultSeverity() ir.Severity { return ir.SeveritySoft }
func (alwaysFails) Validate(*View) []ir.Violation {
	return []ir.Violation{{Message: "nope"}}
}

func TestRegisterCustomValidator(t *testing.T) {
	e := New(ir.ContractConfig{})
	e.Register(alwaysFails{})
	res := e.CheckView(NewView(2, nil, nil, nil))
	require.Len(t, res.Violations, 1)
	assert.Equal(t, "custom", res.Violations[0].Class)
	assert.Equal(t, ir.SeveritySoft, res.Violations[0].Severity)
}
