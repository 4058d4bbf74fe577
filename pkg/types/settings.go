package types

// CurrentSettingsVersion is the current version of the settings struct.
// Increment this value when adding new fields that require default values.
const CurrentSettingsVersion = 1

// Settings represents the mutable configuration stored in the database.
type Settings struct {
	// ExclusionList holds the observation keys that are never persisted. It is
	// grown automatically by the reconciler.
	ExclusionList []string `json:"exclusionList"`
}
