package ir

// ChangeOp names one kind of recorded graph change.
type ChangeOp string

const (
	OpEntityCreated        ChangeOp = "entity_created"
	OpEntityUpdated        ChangeOp = "entity_updated"
	OpEntityArchived       ChangeOp = "entity_archived"
	OpEntitySuperseded     ChangeOp = "entity_superseded"
	OpTagSet               ChangeOp = "tag_set"
	OpTagRemoved           ChangeOp = "tag_removed"
	OpProminenceChanged    ChangeOp = "prominence_changed"
	OpStatusChanged        ChangeOp = "status_changed"
	OpPartOfChanged        ChangeOp = "part_of_changed"
	OpRelationshipCreated  ChangeOp = "relationship_created"
	OpRelationshipStrength ChangeOp = "relationship_strength"
	OpRelationshipArchived ChangeOp = "relationship_archived"
	OpAnnotation           ChangeOp = "annotation"
)

// MutationRecord is one recorded graph change, the unit of a tick delta.
// Which fields are set depends on Op.
type MutationRecord struct {
	Seq          int64          `json:"seq"`
	Tick         int64          `json:"tick"`
	SystemID     string         `json:"system_id,omitempty"`
	Op           ChangeOp       `json:"op"`
	Entity       EntityID       `json:"entity,omitempty"`
	Relationship RelationshipID `json:"relationship,omitempty"`
	Other        EntityID       `json:"other,omitempty"`
	Kind         string         `json:"kind,omitempty"`
	Key          string         `json:"key,omitempty"`
	Before       float64        `json:"before"`
	After        float64        `json:"after"`
	Note         string         `json:"note,omitempty"`
	Participants []EntityID     `json:"participants,omitempty"`
}
