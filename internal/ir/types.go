package ir

import (
	"maps"
	"slices"
)

// EntityID identifies an entity for the lifetime of a run.
type EntityID string

// RelationshipID identifies a relationship for the lifetime of a run.
type RelationshipID string

// Status is the lifecycle state of an entity.
type Status string

const (
	StatusActive     Status = "active"
	StatusHistorical Status = "historical"
	StatusArchived   Status = "archived"
)

// ValidStatuses defines allowed entity statuses.
var ValidStatuses = map[Status]bool{
	StatusActive:     true,
	StatusHistorical: true,
	StatusArchived:   true,
}

// Coordinates place an entity on a named plane.
// The plane is the ontological layer; X and Y are positions within it.
type Coordinates struct {
	Plane string  `json:"plane,omitempty"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
}

// Entity is a node in the world graph.
type Entity struct {
	ID           EntityID           `json:"id"`
	Kind         string             `json:"kind"`
	Subtype      string             `json:"subtype,omitempty"`
	Name         string             `json:"name,omitempty"`
	Culture      string             `json:"culture,omitempty"`
	Status       Status             `json:"status"`
	Prominence   float64            `json:"prominence"`
	Tags         map[string]float64 `json:"tags,omitempty"`
	Coords       Coordinates        `json:"coords"`
	CreatedTick  int64              `json:"created_tick"`
	UpdatedTick  int64              `json:"updated_tick"`
	PartOf       EntityID           `json:"part_of,omitempty"`
	SupersededBy EntityID           `json:"superseded_by,omitempty"`
}

// Active reports whether the entity takes part in active selection.
func (e Entity) Active() bool {
	return e.Status == StatusActive
}

// HasTag reports whether the tag is present on the entity.
func (e Entity) HasTag(tag string) bool {
	_, ok := e.Tags[tag]
	return ok
}

// TagKeys returns the entity's tags in sorted order.
func (e Entity) TagKeys() []string {
	return slices.Sorted(maps.Keys(e.Tags))
}

// Clone returns a deep copy of the entity.
func (e Entity) Clone() Entity {
	c := e
	if e.Tags != nil {
		c.Tags = maps.Clone(e.Tags)
	}
	return c
}

// RelationshipStatus is the lifecycle state of a relationship.
type RelationshipStatus string

const (
	RelationshipActive     RelationshipStatus = "active"
	RelationshipHistorical RelationshipStatus = "historical"
)

// Relationship is a directed, weighted edge between two entities.
type Relationship struct {
	ID           RelationshipID     `json:"id"`
	Kind         string             `json:"kind"`
	Src          EntityID           `json:"src"`
	Dst          EntityID           `json:"dst"`
	Strength     float64            `json:"strength"`
	FormedTick   int64              `json:"formed_tick"`
	ArchivedTick int64              `json:"archived_tick,omitempty"`
	Status       RelationshipStatus `json:"status"`
}

// Active reports whether the relationship is live.
func (r Relationship) Active() bool {
	return r.Status == RelationshipActive
}

// Other returns the endpoint opposite to id.
func (r Relationship) Other(id EntityID) EntityID {
	if r.Src == id {
		return r.Dst
	}
	return r.Src
}

// Direction selects which edges of an entity a query considers.
type Direction string

const (
	DirectionOut  Direction = "out"
	DirectionIn   Direction = "in"
	DirectionBoth Direction = "both"
)

// ValidDirections defines allowed relationship directions.
var ValidDirections = map[Direction]bool{
	DirectionOut:  true,
	DirectionIn:   true,
	DirectionBoth: true,
	"":            true,
}

// Participant is one entity affected by a narrative event.
type Participant struct {
	Entity EntityID `json:"entity"`
	Effect string   `json:"effect"`
}

// NarrativeEvent is an immutable record of a significant change.
// Events are append-only; a later event may supersede an earlier one.
type NarrativeEvent struct {
	ID           string        `json:"id"`
	Tick         int64         `json:"tick"`
	Era          EntityID      `json:"era,omitempty"`
	Kind         string        `json:"kind"`
	Subject      EntityID      `json:"subject"`
	Participants []Participant `json:"participants,omitempty"`
	Magnitude    float64       `json:"magnitude"`
	Significance float64       `json:"significance"`
	Description  string        `json:"description"`
	Tags         []string      `json:"tags,omitempty"`
	SystemID     string        `json:"system_id,omitempty"`
	Supersedes   string        `json:"supersedes,omitempty"`
}

// Severity classifies how a contract violation is handled.
type Severity string

const (
	// SeverityHard halts the run and restores the last valid tick.
	SeverityHard Severity = "hard"
	// SeveritySoft logs a warning and lets the run continue.
	SeveritySoft Severity = "soft"
)

// ValidSeverities defines allowed violation severities.
var ValidSeverities = map[Severity]bool{
	SeverityHard: true,
	SeveritySoft: true,
}

// Violation reports a failed structural check after a tick.
type Violation struct {
	Class          string         `json:"class"`
	Severity       Severity       `json:"severity"`
	Message        string         `json:"message"`
	Tick           int64          `json:"tick"`
	EntityID       EntityID       `json:"entity_id,omitempty"`
	RelationshipID RelationshipID `json:"relationship_id,omitempty"`
}

// ArchivePolicy declares what happens to composite members when the
// composite is archived.
type ArchivePolicy string

const (
	// PolicyArchiveMembers archives members recursively with the composite.
	PolicyArchiveMembers ArchivePolicy = "archive-members"
	// PolicyReparentMembers moves members to the composite's own parent.
	PolicyReparentMembers ArchivePolicy = "reparent-members"
	// PolicyDetachMembers clears the members' part-of link.
	PolicyDetachMembers ArchivePolicy = "detach-members"
)

// ValidArchivePolicies defines allowed archive policies.
var ValidArchivePolicies = map[ArchivePolicy]bool{
	PolicyArchiveMembers:  true,
	PolicyReparentMembers: true,
	PolicyDetachMembers:   true,
}

// Relationship kinds the graph itself maintains.
const (
	KindPartOf     = "part_of"
	KindSupersedes = "supersedes"
)

// KindEra is the entity kind of era entities.
const KindEra = "era"
