package queryir

// Query is a read over one recorded table. Sealed.
type Query interface {
	queryNode()
}

// Predicate is a row filter. Sealed.
type Predicate interface {
	predicateNode()
}

// Table names a recorded table.
type Table string

const (
	TableEvents     Table = "events"
	TableViolations Table = "violations"
	TableTicks      Table = "ticks"
)

// Select reads Columns from a table.
//
//	SELECT <columns> FROM <from> WHERE <filter> ORDER BY <order>, <stable key> LIMIT <limit>
//
// Empty Columns selects every catalog column of the table in catalog
// order. A zero Limit means no limit.
type Select struct {
	From    Table
	Columns []string
	Filter  Predicate
	OrderBy []Order
	Limit   int
}

func (Select) queryNode() {}

// Order is one sort key.
type Order struct {
	Field string
	Desc  bool
}

// Equals matches rows where Field = Value.
type Equals struct {
	Field string
	Value any
}

func (Equals) predicateNode() {}

// AtLeast matches rows where Field >= Value.
type AtLeast struct {
	Field string
	Value any
}

func (AtLeast) predicateNode() {}

// AtMost matches rows where Field <= Value.
type AtMost struct {
	Field string
	Value any
}

func (AtMost) predicateNode() {}

// And matches rows where every predicate holds. Empty And matches all rows.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Current matches narrative events that no later event supersedes.
// Only valid on TableEvents.
type Current struct{}

func (Current) predicateNode() {}

// ColumnType is the storage class of a catalog column.
type ColumnType int

const (
	Text ColumnType = iota
	Integer
	Real
)

func (t ColumnType) String() string {
	switch t {
	case Integer:
		return "integer"
	case Real:
		return "real"
	default:
		return "text"
	}
}

// Column is one catalog entry.
type Column struct {
	Name string
	Type ColumnType
}

// TableInfo describes a queryable table.
type TableInfo struct {
	Columns []Column
	// StableKey is appended to every ORDER BY on the table.
	StableKey string
}

// Column returns the named column.
func (ti TableInfo) Column(name string) (Column, bool) {
	for _, c := range ti.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Names returns the column names in catalog order.
func (ti TableInfo) Names() []string {
	names := make([]string, len(ti.Columns))
	for i, c := range ti.Columns {
		names[i] = c.Name
	}
	return names
}

// Catalog lists the queryable tables. The delta blob of ticks is read by
// key only and is not part of the catalog.
var Catalog = map[Table]TableInfo{
	TableEvents: {
		StableKey: "seq",
		Columns: []Column{
			{"run_id", Text},
			{"seq", Integer},
			{"id", Text},
			{"tick", Integer},
			{"era", Text},
			{"kind", Text},
			{"subject", Text},
			{"magnitude", Real},
			{"significance", Real},
			{"description", Text},
			{"system_id", Text},
			{"supersedes", Text},
			{"participants", Text},
			{"tags", Text},
		},
	},
	TableViolations: {
		StableKey: "seq",
		Columns: []Column{
			{"run_id", Text},
			{"seq", Integer},
			{"tick", Integer},
			{"class", Text},
			{"severity", Text},
			{"message", Text},
			{"entity_id", Text},
			{"relationship_id", Text},
		},
	},
	TableTicks: {
		StableKey: "tick",
		Columns: []Column{
			{"run_id", Text},
			{"tick", Integer},
			{"era", Text},
			{"mutations", Integer},
			{"events", Integer},
			{"violations", Integer},
			{"failures", Integer},
			{"halted", Integer},
		},
	},
}
