package ir

// Operator is a numeric comparison used by conditions, filters and triggers.
type Operator string

const (
	OpGT  Operator = "gt"
	OpGTE Operator = "gte"
	OpLT  Operator = "lt"
	OpLTE Operator = "lte"
	OpEQ  Operator = "eq"
	OpNEQ Operator = "neq"
)

// ValidOperators defines allowed comparison operators.
var ValidOperators = map[Operator]bool{
	OpGT: true, OpGTE: true, OpLT: true, OpLTE: true, OpEQ: true, OpNEQ: true,
}

// VarRef names an entity binding such as "self", "actor", "target" or a
// declared variable. The empty ref means "self".
type VarRef string

// Well-known bindings.
const (
	VarSelf   VarRef = "self"
	VarActor  VarRef = "actor"
	VarTarget VarRef = "target"
	VarAnchor VarRef = "anchor"
)

// Condition is a sealed interface over boolean rule expressions.
type Condition interface {
	condition()
}

// CountCondition compares the number of active entities passing Filters.
type CountCondition struct {
	Filters []Filter `json:"filters"`
	Op      Operator `json:"op"`
	Value   float64  `json:"value"`
}

// MetricCondition compares an evaluated metric.
type MetricCondition struct {
	Metric Metric   `json:"metric"`
	Op     Operator `json:"op"`
	Value  float64  `json:"value"`
}

// PressureCondition compares the current value of a pressure.
type PressureCondition struct {
	Pressure string   `json:"pressure"`
	Op       Operator `json:"op"`
	Value    float64  `json:"value"`
}

// TagCondition checks a tag on a bound entity.
type TagCondition struct {
	Entity  VarRef `json:"entity"`
	Tag     string `json:"tag"`
	Present bool   `json:"present"`
}

// ProminenceCondition compares a bound entity's prominence.
type ProminenceCondition struct {
	Entity VarRef   `json:"entity"`
	Op     Operator `json:"op"`
	Value  float64  `json:"value"`
}

// RelationshipCondition checks whether a bound entity has an active
// relationship of Kind, optionally with another bound entity.
type RelationshipCondition struct {
	Entity    VarRef    `json:"entity"`
	Kind      string    `json:"kind"`
	Direction Direction `json:"direction"`
	With      VarRef    `json:"with,omitempty"`
	Present   bool      `json:"present"`
}

// ChanceCondition passes with the given probability using the run rng.
type ChanceCondition struct {
	Probability float64 `json:"probability"`
}

// EraCondition passes while the active era is one of Eras.
type EraCondition struct {
	Eras []string `json:"eras"`
}

// TickCondition compares the current tick.
type TickCondition struct {
	Op    Operator `json:"op"`
	Value float64  `json:"value"`
}

// AllCondition passes when every child passes.
type AllCondition struct {
	Conditions []Condition `json:"conditions"`
}

// AnyCondition passes when at least one child passes.
type AnyCondition struct {
	Conditions []Condition `json:"conditions"`
}

// NotCondition inverts its child.
type NotCondition struct {
	Condition Condition `json:"condition"`
}

func (CountCondition) condition()        {}
func (MetricCondition) condition()       {}
func (PressureCondition) condition()     {}
func (TagCondition) condition()          {}
func (ProminenceCondition) condition()   {}
func (RelationshipCondition) condition() {}
func (ChanceCondition) condition()       {}
func (EraCondition) condition()          {}
func (TickCondition) condition()         {}
func (AllCondition) condition()          {}
func (AnyCondition) condition()          {}
func (NotCondition) condition()          {}

// Filter is a sealed interface over per-entity predicates.
type Filter interface {
	filter()
}

// KindFilter matches kind and, when given, one of Subtypes.
type KindFilter struct {
	Kind     string   `json:"kind"`
	Subtypes []string `json:"subtypes,omitempty"`
}

// StatusFilter matches an entity status.
type StatusFilter struct {
	Status Status `json:"status"`
}

// TagFilter matches tag presence, optionally comparing the tag value.
type TagFilter struct {
	Tag      string   `json:"tag"`
	Present  bool     `json:"present"`
	Op       Operator `json:"op,omitempty"`
	Value    float64  `json:"value,omitempty"`
	Compared bool     `json:"compared,omitempty"`
}

// CultureFilter matches a literal culture or the culture of a bound entity.
type CultureFilter struct {
	Culture   string `json:"culture,omitempty"`
	SameAs    VarRef `json:"same_as,omitempty"`
	Different bool   `json:"different,omitempty"`
}

// ProminenceFilter compares prominence.
type ProminenceFilter struct {
	Op    Operator `json:"op"`
	Value float64  `json:"value"`
}

// RelationshipFilter compares the number of active relationships of Kind.
// With restricts counting to relationships with a bound entity.
type RelationshipFilter struct {
	Kind      string    `json:"kind"`
	Direction Direction `json:"direction"`
	With      VarRef    `json:"with,omitempty"`
	Op        Operator  `json:"op"`
	Count     float64   `json:"count"`
}

// PlaneFilter matches entities on a plane.
type PlaneFilter struct {
	Plane string `json:"plane"`
}

// NearFilter matches entities within Radius of a bound entity.
type NearFilter struct {
	Of     VarRef  `json:"of"`
	Radius float64 `json:"radius"`
}

// PartOfFilter matches members of a bound composite, or any member when
// Of is empty.
type PartOfFilter struct {
	Of      VarRef `json:"of,omitempty"`
	Present bool   `json:"present"`
}

// ExcludeFilter rejects the listed bound entities.
type ExcludeFilter struct {
	Entities []VarRef `json:"entities"`
}

// NotFilter inverts its child.
type NotFilter struct {
	Filter Filter `json:"filter"`
}

func (KindFilter) filter()         {}
func (StatusFilter) filter()       {}
func (TagFilter) filter()          {}
func (CultureFilter) filter()      {}
func (ProminenceFilter) filter()   {}
func (RelationshipFilter) filter() {}
func (PlaneFilter) filter()        {}
func (NearFilter) filter()         {}
func (PartOfFilter) filter()       {}
func (ExcludeFilter) filter()      {}
func (NotFilter) filter()          {}

// Mutation is a sealed interface over graph change instructions.
type Mutation interface {
	mutation()
}

// SetTagMutation sets a tag value on a bound entity.
type SetTagMutation struct {
	Entity VarRef  `json:"entity"`
	Tag    string  `json:"tag"`
	Value  float64 `json:"value"`
}

// RemoveTagMutation removes a tag from a bound entity.
type RemoveTagMutation struct {
	Entity VarRef `json:"entity"`
	Tag    string `json:"tag"`
}

// AdjustProminenceMutation adds Delta to a bound entity's prominence.
type AdjustProminenceMutation struct {
	Entity VarRef  `json:"entity"`
	Delta  float64 `json:"delta"`
}

// SetStatusMutation changes a bound entity's status.
type SetStatusMutation struct {
	Entity VarRef `json:"entity"`
	Status Status `json:"status"`
}

// CreateRelationshipMutation adds an edge between two bound entities.
type CreateRelationshipMutation struct {
	Kind     string  `json:"kind"`
	Src      VarRef  `json:"src"`
	Dst      VarRef  `json:"dst"`
	Strength float64 `json:"strength"`
}

// ArchiveRelationshipMutation archives active edges of Kind from Src to Dst.
type ArchiveRelationshipMutation struct {
	Kind string `json:"kind"`
	Src  VarRef `json:"src"`
	Dst  VarRef `json:"dst"`
}

// AdjustRelationshipMutation changes the strength of edges of Kind from Src to Dst.
type AdjustRelationshipMutation struct {
	Kind  string  `json:"kind"`
	Src   VarRef  `json:"src"`
	Dst   VarRef  `json:"dst"`
	Delta float64 `json:"delta"`
}

// CreateEntityMutation adds an entity and binds its id under Bind.
type CreateEntityMutation struct {
	Bind   string     `json:"bind,omitempty"`
	Entity EntitySpec `json:"entity"`
}

// ArchiveEntityMutation archives a bound entity under Policy.
type ArchiveEntityMutation struct {
	Entity VarRef        `json:"entity"`
	Policy ArchivePolicy `json:"policy"`
}

// AdjustPressureMutation adds Delta to a pressure for the rest of the tick.
type AdjustPressureMutation struct {
	Pressure string  `json:"pressure"`
	Delta    float64 `json:"delta"`
}

// NarrateMutation records a narrative annotation without changing state.
type NarrateMutation struct {
	Kind         string   `json:"kind"`
	Subject      VarRef   `json:"subject"`
	Participants []VarRef `json:"participants,omitempty"`
	Description  string   `json:"description,omitempty"`
	Magnitude    float64  `json:"magnitude"`
}

func (SetTagMutation) mutation()              {}
func (RemoveTagMutation) mutation()           {}
func (AdjustProminenceMutation) mutation()    {}
func (SetStatusMutation) mutation()           {}
func (CreateRelationshipMutation) mutation()  {}
func (ArchiveRelationshipMutation) mutation() {}
func (AdjustRelationshipMutation) mutation()  {}
func (CreateEntityMutation) mutation()        {}
func (ArchiveEntityMutation) mutation()       {}
func (AdjustPressureMutation) mutation()      {}
func (NarrateMutation) mutation()             {}

// EntitySpec describes an entity created by a template or mutation.
type EntitySpec struct {
	Kind        string             `json:"kind"`
	Subtype     string             `json:"subtype,omitempty"`
	Name        string             `json:"name,omitempty"`
	Culture     string             `json:"culture,omitempty"`
	CultureFrom VarRef             `json:"culture_from,omitempty"`
	Prominence  float64            `json:"prominence"`
	Tags        map[string]float64 `json:"tags,omitempty"`
	PartOf      VarRef             `json:"part_of,omitempty"`
	Near        VarRef             `json:"near,omitempty"`
	Plane       string             `json:"plane,omitempty"`
}

// Metric is a sealed interface over numeric rule expressions.
type Metric interface {
	metric()
}

// CountMetric counts active entities passing Filters.
type CountMetric struct {
	Filters []Filter `json:"filters"`
}

// RatioMetric divides two counts; a zero denominator yields 0.
type RatioMetric struct {
	Numerator   []Filter `json:"numerator"`
	Denominator []Filter `json:"denominator"`
}

// AvgProminenceMetric averages prominence over active entities passing Filters.
type AvgProminenceMetric struct {
	Filters []Filter `json:"filters"`
}

// RelationshipCountMetric counts active relationships of Kind, globally or
// for a bound entity.
type RelationshipCountMetric struct {
	Kind   string `json:"kind,omitempty"`
	Entity VarRef `json:"entity,omitempty"`
}

// TagSumMetric sums a tag's values over active entities passing Filters.
type TagSumMetric struct {
	Tag     string   `json:"tag"`
	Filters []Filter `json:"filters,omitempty"`
}

// PressureMetric reads a pressure.
type PressureMetric struct {
	Pressure string `json:"pressure"`
}

// ConstantMetric is a literal.
type ConstantMetric struct {
	Value float64 `json:"value"`
}

// ScaledMetric computes Metric*Factor + Offset.
type ScaledMetric struct {
	Metric Metric  `json:"metric"`
	Factor float64 `json:"factor"`
	Offset float64 `json:"offset"`
}

func (CountMetric) metric()             {}
func (RatioMetric) metric()             {}
func (AvgProminenceMetric) metric()     {}
func (RelationshipCountMetric) metric() {}
func (TagSumMetric) metric()            {}
func (PressureMetric) metric()          {}
func (ConstantMetric) metric()          {}
func (ScaledMetric) metric()            {}

// PickStrategy selects winners from ranked candidates.
type PickStrategy string

const (
	PickFirst    PickStrategy = "first"
	PickTop      PickStrategy = "top"
	PickWeighted PickStrategy = "weighted"
	PickRandom   PickStrategy = "random"
)

// ValidPickStrategies defines allowed pick strategies.
var ValidPickStrategies = map[PickStrategy]bool{
	PickFirst: true, PickTop: true, PickWeighted: true, PickRandom: true,
}

// Saturation caps how often an entity can be selected.
type Saturation struct {
	// RelationshipKind and MaxRelationships exclude candidates that already
	// hold MaxRelationships active edges of that kind.
	RelationshipKind string `json:"relationship_kind,omitempty"`
	MaxRelationships int    `json:"max_relationships,omitempty"`
	// MaxWinsPerTick caps selections of one entity within a tick.
	MaxWinsPerTick int `json:"max_wins_per_tick,omitempty"`
	// PerCluster applies MaxWinsPerTick to the candidate's composite too.
	PerCluster bool `json:"per_cluster,omitempty"`
}

// SelectionSpec describes how to choose entities from the graph.
type SelectionSpec struct {
	Filters    []Filter     `json:"filters"`
	Prefer     []Filter     `json:"prefer,omitempty"`
	Pick       PickStrategy `json:"pick"`
	Count      int          `json:"count"`
	WeightTag  string       `json:"weight_tag,omitempty"`
	Saturation *Saturation  `json:"saturation,omitempty"`
}

// VariableSpec binds Name to the entity chosen by Select.
type VariableSpec struct {
	Name     string        `json:"name"`
	Select   SelectionSpec `json:"select"`
	Required bool          `json:"required"`
}
