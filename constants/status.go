package constants

// ProcessingStatus is the terminal outcome written to the processing log.
type ProcessingStatus string

// Stable values (store these exact strings in the log).
const (
	StatusSuccess  ProcessingStatus = "success"
	StatusSkipped  ProcessingStatus = "skipped"  // permanent: not enough text
	StatusFailed   ProcessingStatus = "failed"   // permanent: unusable document
	StatusRequeued ProcessingStatus = "requeued" // transient: unmarked for retry
)

// Action is the classifier decision for the destination group.
type Action string

const (
	ActionExisting Action = "existing"
	ActionNew      Action = "new"
)

// Valid reports whether a is one of the two accepted actions.
func (a Action) Valid() bool {
	return a == ActionExisting || a == ActionNew
}
