package domain

import "time"

// EntityKind identifies which entity a TransitionRecord belongs to
type EntityKind string

const (
	EntityKindCard        EntityKind = "CARD"
	EntityKindTransaction EntityKind = "TRANSACTION"
)

// TransitionRecord captures a single status change of a card or transaction.
// Records are returned to the caller for persistence or publishing; entities do
// not keep a history themselves.
type TransitionRecord struct {
	Kind           EntityKind `json:"kind"`
	EntityID       string     `json:"entity_id"`
	PreviousStatus string     `json:"previous_status"`
	NewStatus      string     `json:"new_status"`
	Reason         string     `json:"reason,omitempty"`
	Timestamp      time.Time  `json:"timestamp"`
}
