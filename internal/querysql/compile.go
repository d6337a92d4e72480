// Package querysql compiles queryir queries to parameterized SQLite SQL.
package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/loreweave/internal/queryir"
)

// alias is the correlation name of the queried table.
const alias = "t"

// Compile converts a query to SQL and its parameters.
//
// Selected columns are aliased to their bare names so result rows scan
// into structs by column name.
//
// The query is validated first. Values are never interpolated: every
// comparison value and the limit are bound as ? parameters. Every query
// ends its ORDER BY with the table's stable key so results are totally
// ordered.
func Compile(q queryir.Query) (string, []any, error) {
	if err := queryir.Validate(q).Err(); err != nil {
		return "", nil, err
	}
	switch query := q.(type) {
	case queryir.Select:
		return compileSelect(query)
	case *queryir.Select:
		return compileSelect(*query)
	default:
		return "", nil, fmt.Errorf("unsupported query type: %T", q)
	}
}

func compileSelect(q queryir.Select) (string, []any, error) {
	info := queryir.Catalog[q.From]

	columns := q.Columns
	if len(columns) == 0 {
		columns = info.Names()
	}
	var b strings.Builder
	b.WriteString("SELECT ")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(qualify(c) + " AS " + c)
	}
	fmt.Fprintf(&b, " FROM %s AS %s", q.From, alias)

	var params []any
	if q.Filter != nil {
		where, whereParams, err := compilePredicate(q.From, q.Filter)
		if err != nil {
			return "", nil, fmt.Errorf("compile filter: %w", err)
		}
		b.WriteString(" WHERE ")
		b.WriteString(where)
		params = whereParams
	}

	b.WriteString(" ORDER BY ")
	b.WriteString(orderBy(q.OrderBy, info.StableKey))

	if q.Limit > 0 {
		b.WriteString(" LIMIT ?")
		params = append(params, q.Limit)
	}
	return b.String(), params, nil
}

func qualify(column string) string {
	return alias + "." + column
}

// orderBy renders the caller's keys followed by the stable key.
func orderBy(keys []queryir.Order, stable string) string {
	parts := make([]string, 0, len(keys)+1)
	seenStable := false
	for _, k := range keys {
		dir := "ASC"
		if k.Desc {
			dir = "DESC"
		}
		parts = append(parts, qualify(k.Field)+" "+dir)
		if k.Field == stable {
			seenStable = true
		}
	}
	if !seenStable {
		parts = append(parts, qualify(stable)+" ASC")
	}
	return strings.Join(parts, ", ")
}

func compilePredicate(table queryir.Table, p queryir.Predicate) (string, []any, error) {
	switch pred := p.(type) {
	case queryir.Equals:
		return comparison(pred.Field, "=", pred.Value)
	case *queryir.Equals:
		return comparison(pred.Field, "=", pred.Value)
	case queryir.AtLeast:
		return comparison(pred.Field, ">=", pred.Value)
	case *queryir.AtLeast:
		return comparison(pred.Field, ">=", pred.Value)
	case queryir.AtMost:
		return comparison(pred.Field, "<=", pred.Value)
	case *queryir.AtMost:
		return comparison(pred.Field, "<=", pred.Value)
	case queryir.And:
		return compileAnd(table, pred)
	case *queryir.And:
		return compileAnd(table, *pred)
	case queryir.Current, *queryir.Current:
		return fmt.Sprintf(
			"NOT EXISTS (SELECT 1 FROM %s n WHERE n.run_id = %s AND n.supersedes = %s)",
			table, qualify("run_id"), qualify("id")), nil, nil
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func comparison(field, op string, value any) (string, []any, error) {
	if v, ok := value.(bool); ok {
		value = 0
		if v {
			value = 1
		}
	}
	return fmt.Sprintf("%s %s ?", qualify(field), op), []any{value}, nil
}

func compileAnd(table queryir.Table, and queryir.And) (string, []any, error) {
	if len(and.Predicates) == 0 {
		return "1 = 1", nil, nil
	}
	parts := make([]string, 0, len(and.Predicates))
	var params []any
	for _, pred := range and.Predicates {
		sql, ps, err := compilePredicate(table, pred)
		if err != nil {
			return "", nil, err
		}
		if _, nested := pred.(queryir.And); nested {
			sql = "(" + sql + ")"
		}
		parts = append(parts, sql)
		params = append(params, ps...)
	}
	return strings.Join(parts, " AND "), params, nil
}
