package model

// Toast is an ephemeral UI notification. It is never persisted and lives only
// until its TTL elapses or the user dismisses it.
type Toast struct {
	ID        string
	Kind      Kind
	Title     string
	Message   string
	Priority  Priority
	CreatedAt int64 // epoch millis
}
