package graph

import "errors"

// Sentinel errors returned by graph mutations. Callers match them with errors.Is.
var (
	ErrEntityNotFound       = errors.New("entity not found")
	ErrEntityArchived       = errors.New("entity is archived")
	ErrDuplicateID          = errors.New("duplicate entity id")
	ErrRelationshipNotFound = errors.New("relationship not found")
	ErrRelationshipArchived = errors.New("relationship is archived")
	ErrInvalidEndpoint      = errors.New("invalid relationship endpoint")
	ErrInvalidEntity        = errors.New("invalid entity")
	// ErrClaimed is returned under the first-claim conflict policy when a
	// system tries to archive or supersede an entity another system already
	// touched this tick.
	ErrClaimed = errors.New("entity claimed by another system this tick")
)
