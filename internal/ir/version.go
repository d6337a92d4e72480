package ir

// Version constants for the bundle schema and engine.
const (
	// BundleVersion is the declarative bundle schema version.
	BundleVersion = "1"

	// EngineVersion is the loreweave engine version.
	EngineVersion = "0.1.0"
)
