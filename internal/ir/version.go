package ir

// Version constants for definitions and the plan engine.
const (
	// IRVersion is the field set metadata schema version.
	IRVersion = "1"

	// EngineVersion is the modplan engine version, recorded on change log entries.
	EngineVersion = "0.1.0"
)
