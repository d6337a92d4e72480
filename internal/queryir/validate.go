package queryir

import (
	"fmt"
	"math"
)

// ValidationResult lists everything wrong with a query.
type ValidationResult struct {
	// Valid is true when the query can be compiled.
	Valid bool

	// Errors is empty when Valid is true.
	Errors []string
}

// Err returns the first error, or nil for a valid query.
func (r ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	if len(r.Errors) == 1 {
		return fmt.Errorf("invalid query: %s", r.Errors[0])
	}
	return fmt.Errorf("invalid query: %s (and %d more)", r.Errors[0], len(r.Errors)-1)
}

// Validate checks a query against the catalog:
//  1. the table exists
//  2. every selected, filtered and ordered column exists on it
//  3. comparison values match the column's storage class
//  4. Current is only used on events
//  5. Limit is not negative
//
// It does not fail fast. Validate is a pure function.
func Validate(query Query) ValidationResult {
	v := &validator{errors: []string{}}
	v.validateQuery(query)
	return ValidationResult{
		Valid:  len(v.errors) == 0,
		Errors: v.errors,
	}
}

type validator struct {
	table  Table
	info   TableInfo
	errors []string
}

func (v *validator) addError(format string, args ...any) {
	v.errors = append(v.errors, fmt.Sprintf(format, args...))
}

func (v *validator) validateQuery(q Query) {
	switch query := q.(type) {
	case nil:
		v.addError("nil query")
	case Select:
		v.validateSelect(query)
	case *Select:
		if query == nil {
			v.addError("nil query")
			return
		}
		v.validateSelect(*query)
	default:
		v.addError("unknown query type %T", q)
	}
}

func (v *validator) validateSelect(sel Select) {
	info, ok := Catalog[sel.From]
	if !ok {
		v.addError("unknown table %q", sel.From)
		return
	}
	v.table, v.info = sel.From, info

	for _, c := range sel.Columns {
		v.column("select", c)
	}
	if sel.Filter != nil {
		v.validatePredicate(sel.Filter)
	}
	for _, o := range sel.OrderBy {
		v.column("order by", o.Field)
	}
	if sel.Limit < 0 {
		v.addError("negative limit %d", sel.Limit)
	}
}

func (v *validator) column(clause, name string) (Column, bool) {
	c, ok := v.info.Column(name)
	if !ok {
		v.addError("%s: unknown column %q on %s", clause, name, v.table)
	}
	return c, ok
}

func (v *validator) validatePredicate(p Predicate) {
	switch pred := p.(type) {
	case Equals:
		v.comparison("=", pred.Field, pred.Value)
	case *Equals:
		v.comparison("=", pred.Field, pred.Value)
	case AtLeast:
		v.comparison(">=", pred.Field, pred.Value)
	case *AtLeast:
		v.comparison(">=", pred.Field, pred.Value)
	case AtMost:
		v.comparison("<=", pred.Field, pred.Value)
	case *AtMost:
		v.comparison("<=", pred.Field, pred.Value)
	case And:
		v.validateAnd(pred)
	case *And:
		v.validateAnd(*pred)
	case Current, *Current:
		if v.table != TableEvents {
			v.addError("current: only events can be superseded, not %s", v.table)
		}
	default:
		v.addError("unknown predicate type %T", p)
	}
}

func (v *validator) validateAnd(and And) {
	for _, sub := range and.Predicates {
		v.validatePredicate(sub)
	}
}

// comparison checks that value fits the column's storage class.
func (v *validator) comparison(op, field string, value any) {
	col, ok := v.column(op, field)
	if !ok {
		return
	}
	if value == nil {
		v.addError("%s %s: NULL never compares equal; use a value", field, op)
		return
	}
	switch val := value.(type) {
	case string:
		if col.Type != Text {
			v.addError("%s %s: string value for %s column", field, op, col.Type)
		}
	case int, int32, int64:
		if col.Type == Text {
			v.addError("%s %s: numeric value for text column", field, op)
		}
	case bool:
		if col.Type != Integer {
			v.addError("%s %s: bool value for %s column", field, op, col.Type)
		}
	case float64:
		if col.Type == Text {
			v.addError("%s %s: numeric value for text column", field, op)
		}
		if math.IsNaN(val) {
			v.addError("%s %s: NaN", field, op)
		}
	default:
		v.addError("%s %s: unsupported value type %T", field, op, value)
	}
}
