package queryir

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_EventQuery(t *testing.T) {
	query := Select{
		From: TableEvents,
		Filter: And{Predicates: []Predicate{
			Equals{Field: "run_id", Value: "run-1"},
			AtLeast{Field: "significance", Value: 0.5},
			AtMost{Field: "tick", Value: int64(40)},
			Current{},
		}},
		OrderBy: []Order{{Field: "significance", Desc: true}},
		Limit:   10,
	}

	result := Validate(query)
	assert.True(t, result.Valid)
	assert.Empty(t, result.Errors)
	assert.NoError(t, result.Err())
}

func TestValidate_PointerForms(t *testing.T) {
	query := &Select{
		From:   TableViolations,
		Filter: &And{Predicates: []Predicate{&Equals{Field: "severity", Value: "hard"}}},
	}
	assert.True(t, Validate(query).Valid)
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name  string
		query Query
		want  string
	}{
		{"nil query", nil, "nil query"},
		{"unknown table", Select{From: "entities"}, `unknown table "entities"`},
		{"unknown column", Select{From: TableTicks, Columns: []string{"delta"}}, `select: unknown column "delta" on ticks`},
		{"unknown order", Select{From: TableEvents, OrderBy: []Order{{Field: "weight"}}}, `order by: unknown column "weight" on events`},
		{"string for number", Select{From: TableEvents, Filter: AtLeast{Field: "tick", Value: "3"}}, "tick >=: string value for integer column"},
		{"number for text", Select{From: TableEvents, Filter: Equals{Field: "kind", Value: 3}}, "kind =: numeric value for text column"},
		{"null", Select{From: TableEvents, Filter: Equals{Field: "kind", Value: nil}}, "NULL never compares equal"},
		{"nan", Select{From: TableEvents, Filter: AtLeast{Field: "significance", Value: math.NaN()}}, "significance >=: NaN"},
		{"bool for real", Select{From: TableEvents, Filter: Equals{Field: "magnitude", Value: true}}, "bool value for real column"},
		{"unsupported value", Select{From: TableTicks, Filter: Equals{Field: "tick", Value: []int{1}}}, "unsupported value type []int"},
		{"current on ticks", Select{From: TableTicks, Filter: Current{}}, "current: only events can be superseded, not ticks"},
		{"negative limit", Select{From: TableTicks, Limit: -1}, "negative limit -1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Validate(tt.query)
			assert.False(t, result.Valid)
			require.NotEmpty(t, result.Errors)
			assert.Contains(t, result.Errors[0], tt.want)
			assert.ErrorContains(t, result.Err(), tt.want)
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	query := Select{
		From:    TableViolations,
		Columns: []string{"kind"},
		Filter: And{Predicates: []Predicate{
			Equals{Field: "severity", Value: 1},
			Current{},
		}},
		Limit: -5,
	}

	result := Validate(query)
	assert.False(t, result.Valid)
	assert.Len(t, result.Errors, 4)
	assert.ErrorContains(t, result.Err(), "(and 3 more)")
}

func TestBoolOnIntegerColumn(t *testing.T) {
	result := Validate(Select{From: TableTicks, Filter: Equals{Field: "halted", Value: true}})
	assert.True(t, result.Valid, result.Errors)
}

func TestCatalog(t *testing.T) {
	for table, info := range Catalog {
		_, ok := info.Column(info.StableKey)
		assert.True(t, ok, "%s stable key %q must be a column", table, info.StableKey)
		_, ok = info.Column("run_id")
		assert.True(t, ok, "%s must be keyed by run", table)
	}
	assert.Equal(t, []string{"run_id", "tick", "era", "mutations", "events", "violations", "failures", "halted"},
		Catalog[TableTicks].Names())
	assert.Equal(t, "real", Real.String())
}
