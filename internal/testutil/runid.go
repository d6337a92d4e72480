package testutil

// FixedRunID generates the same run id every time.
//
// Unlike engine.FixedGenerator which returns ids in sequence and panics when
// they run out, FixedRunID serves any number of engines. Harness scenarios
// that run twice to check determinism use it so both runs share an id.
//
// Thread-safety: FixedRunID is stateless and safe for concurrent use.
type FixedRunID struct {
	id string
}

// NewFixedRunID creates a fixed run id generator.
// If id is empty, Generate returns "test-run".
func NewFixedRunID(id string) *FixedRunID {
	if id == "" {
		id = "test-run"
	}
	return &FixedRunID{id: id}
}

// Generate returns the fixed id. Implements engine.RunIDGenerator.
func (g *FixedRunID) Generate() string {
	return g.id
}
