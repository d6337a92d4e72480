package ir

// ConflictPolicy decides what happens when two systems touch the same
// entity within one tick.
type ConflictPolicy string

const (
	// ConflictSequential runs systems in catalog order; later systems see and
	// may override earlier systems' mutations.
	ConflictSequential ConflictPolicy = "sequential"
	// ConflictFirstClaim refuses destructive operations (archive, supersede)
	// on an entity already created or modified by another system this tick.
	ConflictFirstClaim ConflictPolicy = "first-claim"
)

// ValidConflictPolicies defines allowed conflict policies.
var ValidConflictPolicies = map[ConflictPolicy]bool{
	ConflictSequential: true,
	ConflictFirstClaim: true,
}

// Bundle is the compiled, data-only rule configuration of a run.
type Bundle struct {
	Pressures      []PressureConfig `json:"pressures,omitempty"`
	Templates      []TemplateConfig `json:"templates,omitempty"`
	Actions        []ActionConfig   `json:"actions,omitempty"`
	Systems        []SystemConfig   `json:"systems"`
	Eras           []EraConfig      `json:"eras,omitempty"`
	Contracts      ContractConfig   `json:"contracts"`
	Narrative      NarrativeConfig  `json:"narrative"`
	ConflictPolicy ConflictPolicy   `json:"conflict_policy"`
}

// PressureSource contributes Weight * Metric to a pressure each tick.
type PressureSource struct {
	Metric Metric  `json:"metric"`
	Weight float64 `json:"weight"`
}

// PressureConfig declares a scalar driver recomputed at the start of each tick.
type PressureConfig struct {
	ID      string           `json:"id"`
	Initial float64          `json:"initial"`
	Min     float64          `json:"min"`
	Max     float64          `json:"max"`
	Decay   float64          `json:"decay"`
	Sources []PressureSource `json:"sources,omitempty"`
}

// PlacementMode selects where a template places a new entity.
type PlacementMode string

const (
	PlacementNone        PlacementMode = "none"
	PlacementNearAnchor  PlacementMode = "near_anchor"
	PlacementRandom      PlacementMode = "random"
	PlacementAnchorPlane PlacementMode = "anchor_plane"
)

// ValidPlacements defines allowed placement modes.
var ValidPlacements = map[PlacementMode]bool{
	PlacementNone: true, PlacementNearAnchor: true, PlacementRandom: true, PlacementAnchorPlane: true,
}

// RelationshipSpec links two bindings when a template expands. The new
// entity is bound as "self".
type RelationshipSpec struct {
	Kind     string  `json:"kind"`
	Src      VarRef  `json:"src"`
	Dst      VarRef  `json:"dst"`
	Strength float64 `json:"strength"`
}

// TemplateConfig declares how a growth unit creates an entity.
type TemplateConfig struct {
	ID            string             `json:"id"`
	Weight        float64            `json:"weight"`
	EraWeights    map[string]float64 `json:"era_weights,omitempty"`
	Conditions    []Condition        `json:"conditions,omitempty"`
	Anchor        *SelectionSpec     `json:"anchor,omitempty"`
	Entity        EntitySpec         `json:"entity"`
	Placement     PlacementMode      `json:"placement"`
	Radius        float64            `json:"radius"`
	Relationships []RelationshipSpec `json:"relationships,omitempty"`
	Mutations     []Mutation         `json:"mutations,omitempty"`
}

// PressureModifier scales a value by Factor * pressure.
type PressureModifier struct {
	Pressure string  `json:"pressure"`
	Factor   float64 `json:"factor"`
}

// NarrativeSpec annotates an action outcome.
type NarrativeSpec struct {
	Kind        string  `json:"kind"`
	Description string  `json:"description,omitempty"`
	Magnitude   float64 `json:"magnitude"`
}

// ActionConfig declares an agent action attempted by the catalyst or fired
// by a threshold trigger.
type ActionConfig struct {
	ID                string             `json:"id"`
	Category          string             `json:"category,omitempty"`
	Actor             []Filter           `json:"actor,omitempty"`
	Variables         []VariableSpec     `json:"variables,omitempty"`
	Conditions        []Condition        `json:"conditions,omitempty"`
	BaseChance        float64            `json:"base_chance"`
	ProminenceFactor  float64            `json:"prominence_factor"`
	PressureModifiers []PressureModifier `json:"pressure_modifiers,omitempty"`
	Cooldown          int                `json:"cooldown"`
	Mutations         []Mutation         `json:"mutations"`
	Narrative         *NarrativeSpec     `json:"narrative,omitempty"`
}

// SystemType names a behavior of the systems catalog.
type SystemType string

const (
	SystemGrowth                  SystemType = "growth"
	SystemClusterFormation        SystemType = "cluster_formation"
	SystemConnectionEvolution     SystemType = "connection_evolution"
	SystemRelationshipMaintenance SystemType = "relationship_maintenance"
	SystemGraphContagion          SystemType = "graph_contagion"
	SystemTagDiffusion            SystemType = "tag_diffusion"
	SystemPlaneDiffusion          SystemType = "plane_diffusion"
	SystemEraSpawner              SystemType = "era_spawner"
	SystemEraTransition           SystemType = "era_transition"
	SystemThresholdTrigger        SystemType = "threshold_trigger"
	SystemUniversalCatalyst       SystemType = "universal_catalyst"
)

// ValidSystemTypes defines allowed system types.
var ValidSystemTypes = map[SystemType]bool{
	SystemGrowth:                  true,
	SystemClusterFormation:        true,
	SystemConnectionEvolution:     true,
	SystemRelationshipMaintenance: true,
	SystemGraphContagion:          true,
	SystemTagDiffusion:            true,
	SystemPlaneDiffusion:          true,
	SystemEraSpawner:              true,
	SystemEraTransition:           true,
	SystemThresholdTrigger:        true,
	SystemUniversalCatalyst:       true,
}

// SystemConfig declares one entry of the systems catalog. Settings holds the
// variant matching Type.
type SystemConfig struct {
	ID         string         `json:"id"`
	Type       SystemType     `json:"type"`
	Disabled   bool           `json:"disabled,omitempty"`
	Eras       []string       `json:"eras,omitempty"`
	Conditions []Condition    `json:"conditions,omitempty"`
	Settings   SystemSettings `json:"settings"`
}

// SystemSettings is a sealed interface over per-type system settings.
type SystemSettings interface {
	settings()
}

// TemplateRef selects a template with a weight.
type TemplateRef struct {
	Template string  `json:"template"`
	Weight   float64 `json:"weight"`
}

// GrowthSettings configures pressure-driven population growth.
type GrowthSettings struct {
	Templates     []TemplateRef `json:"templates"`
	PerTick       int           `json:"per_tick"`
	Pressure      string        `json:"pressure,omitempty"`
	PressureScale float64       `json:"pressure_scale"`
	MaxPerTick    int           `json:"max_per_tick"`
}

// SimilarityWeights weight the components of entity similarity.
type SimilarityWeights struct {
	Tags      float64 `json:"tags"`
	Culture   float64 `json:"culture"`
	Proximity float64 `json:"proximity"`
}

// ClusterSettings configures cluster detection and composite synthesis.
type ClusterSettings struct {
	Filters          []Filter          `json:"filters"`
	Weights          SimilarityWeights `json:"weights"`
	Threshold        float64           `json:"threshold"`
	Radius           float64           `json:"radius"`
	MinSize          int               `json:"min_size"`
	MaxSize          int               `json:"max_size"`
	MaxPerTick       int               `json:"max_per_tick"`
	Composite        EntitySpec        `json:"composite"`
	RelationshipKind string            `json:"relationship_kind"`
}

// ConnectionSettings configures relationship formation and evolution.
type ConnectionSettings struct {
	RelationshipKind string            `json:"relationship_kind"`
	Sources          []Filter          `json:"sources"`
	Target           SelectionSpec     `json:"target"`
	FormChance       float64           `json:"form_chance"`
	InitialStrength  float64           `json:"initial_strength"`
	Weights          SimilarityWeights `json:"weights"`
	Radius           float64           `json:"radius"`
	Threshold        float64           `json:"threshold"`
	Strengthen       float64           `json:"strengthen"`
	Weaken           float64           `json:"weaken"`
}

// MaintenanceSettings configures relationship aging.
type MaintenanceSettings struct {
	Kinds         []string `json:"kinds,omitempty"`
	Decay         float64  `json:"decay"`
	Reinforce     float64  `json:"reinforce"`
	CullThreshold float64  `json:"cull_threshold"`
	GraceTicks    int      `json:"grace_ticks"`
}

// ContagionSettings configures tag spread along edges.
type ContagionSettings struct {
	Tag          string   `json:"tag"`
	Via          []string `json:"via,omitempty"`
	Transmission float64  `json:"transmission"`
	Recovery     float64  `json:"recovery"`
	ImmunityTag  string   `json:"immunity_tag,omitempty"`
	Susceptible  []Filter `json:"susceptible,omitempty"`
}

// TagDiffusionSettings configures numeric tag diffusion along edges.
type TagDiffusionSettings struct {
	Tag     string   `json:"tag"`
	Via     []string `json:"via,omitempty"`
	Rate    float64  `json:"rate"`
	Min     float64  `json:"min"`
	Max     float64  `json:"max"`
	Filters []Filter `json:"filters,omitempty"`
}

// PlaneDiffusionSettings configures a scalar field on a plane grid.
type PlaneDiffusionSettings struct {
	Plane      string  `json:"plane"`
	SourceTag  string  `json:"source_tag"`
	OutputTag  string  `json:"output_tag"`
	Rate       float64 `json:"rate"`
	Decay      float64 `json:"decay"`
	NoiseScale float64 `json:"noise_scale"`
}

// EraSpawnerSettings configures creation of the first era.
type EraSpawnerSettings struct {
	Era string `json:"era,omitempty"`
}

// EraTransitionSettings configures era succession.
type EraTransitionSettings struct{}

// ThresholdSettings configures a hysteresis trigger.
type ThresholdSettings struct {
	Metric    Metric         `json:"metric"`
	Op        Operator       `json:"op"`
	Threshold float64        `json:"threshold"`
	Reset     *float64       `json:"reset_threshold,omitempty"`
	Action    string         `json:"action,omitempty"`
	Mutations []Mutation     `json:"mutations,omitempty"`
	Narrative *NarrativeSpec `json:"narrative,omitempty"`
}

// CatalystSettings configures random action injection.
type CatalystSettings struct {
	Actions          []string `json:"actions,omitempty"`
	Agents           []Filter `json:"agents,omitempty"`
	AttemptsPerTick  int      `json:"attempts_per_tick"`
	BaseRate         float64  `json:"base_rate"`
	CategoryCooldown int      `json:"category_cooldown"`
}

func (GrowthSettings) settings()         {}
func (ClusterSettings) settings()        {}
func (ConnectionSettings) settings()     {}
func (MaintenanceSettings) settings()    {}
func (ContagionSettings) settings()      {}
func (TagDiffusionSettings) settings()   {}
func (PlaneDiffusionSettings) settings() {}
func (EraSpawnerSettings) settings()     {}
func (EraTransitionSettings) settings()  {}
func (ThresholdSettings) settings()      {}
func (CatalystSettings) settings()       {}

// EraConfig declares one era of the run's timeline.
type EraConfig struct {
	ID                string             `json:"id"`
	Name              string             `json:"name,omitempty"`
	MinTicks          int                `json:"min_ticks"`
	MaxTicks          int                `json:"max_ticks"`
	Conditions        []Condition        `json:"conditions,omitempty"`
	Next              string             `json:"next,omitempty"`
	PressureModifiers []PressureModifier `json:"pressure_modifiers,omitempty"`
}

// ContractConfig tunes the post-tick contract enforcer.
type ContractConfig struct {
	// Policies overrides the default severity per violation class.
	Policies            map[string]Severity `json:"policies,omitempty"`
	HistoricalEdgeKinds []string            `json:"historical_edge_kinds,omitempty"`
	ProminenceMin       float64             `json:"prominence_min"`
	ProminenceMax       float64             `json:"prominence_max"`
}

// SignificanceWeights weight the components of significance scoring.
type SignificanceWeights struct {
	Magnitude    float64 `json:"magnitude"`
	Prominence   float64 `json:"prominence"`
	Rarity       float64 `json:"rarity"`
	Participants float64 `json:"participants"`
}

// NarrativeConfig tunes event extraction.
type NarrativeConfig struct {
	MinSignificance float64             `json:"min_significance"`
	CoalesceWindow  int                 `json:"coalesce_window"`
	ProminenceScale float64             `json:"prominence_scale"`
	Weights         SignificanceWeights `json:"weights"`
}
