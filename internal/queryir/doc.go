// Package queryir describes read queries over recorded runs as data.
//
// Readers of the store (the CLI, the scenario harness, the exporter) build
// a Select instead of writing SQL. The query is checked against the table
// catalog by Validate and compiled to parameterized SQL by querysql, so
// every filter over events, violations and ticks goes through one place.
//
// Query and Predicate are sealed interfaces using the marker method
// pattern. Only types in this package implement them, which keeps the
// type switches in querysql exhaustive:
//
//	switch p := pred.(type) {
//	case Equals:
//	case AtLeast:
//	case AtMost:
//	case And:
//	case Current:
//	}
//
// Every compiled query has a total order. Callers choose the leading sort
// keys; the table's stable key (the recording sequence, or the tick) is
// always appended as the final tiebreaker so that two reads of the same
// run return rows in the same order.
package queryir
