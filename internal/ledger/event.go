package ledger

import "time"

// Status is the lifecycle state of a candidate as recorded in the ledger.
type Status string

const (
	StatusPending         Status = "PENDING"
	StatusConflictPending Status = "CONFLICT_PENDING"
	StatusAdopted         Status = "ADOPTED"
	StatusRejected        Status = "REJECTED"
	StatusInvalid         Status = "INVALID"
)

// Terminal reports whether the status accepts no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusAdopted, StatusRejected, StatusInvalid:
		return true
	}
	return false
}

// Valid reports whether s is one of the known lifecycle statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConflictPending, StatusAdopted, StatusRejected, StatusInvalid:
		return true
	}
	return false
}

// EventType identifies a lifecycle event.
type EventType string

const (
	EventPropose       EventType = "PROPOSE"
	EventAdopt         EventType = "ADOPT"
	EventReject        EventType = "REJECT"
	EventBitmapInvalid EventType = "BITMAP_INVALID"
	EventConflictMark  EventType = "CONFLICT_MARK"
	EventConflictClear EventType = "CONFLICT_CLEAR"
)

// ReasonRequired reports whether events of this type must carry a reason.
func (t EventType) ReasonRequired() bool {
	switch t {
	case EventReject, EventBitmapInvalid, EventConflictMark:
		return true
	}
	return false
}

// Valid reports whether t is one of the known event types.
func (t EventType) Valid() bool {
	switch t {
	case EventPropose, EventAdopt, EventReject, EventBitmapInvalid, EventConflictMark, EventConflictClear:
		return true
	}
	return false
}

// Event is one immutable ledger entry. Seq is assigned by the ledger on
// append and is the authoritative order; At is wall-clock time for display
// and windowing only. PayloadRef and Note are carried on PROPOSE so that a
// full replay rebuilds the candidate store without any second source.
type Event struct {
	Seq         int64     `json:"seq"`
	CandidateID string    `json:"candidate_id"`
	EpisodeID   string    `json:"episode_id,omitempty"`
	Type        EventType `json:"event_type"`
	PrevStatus  Status    `json:"previous_status,omitempty"`
	NewStatus   Status    `json:"new_status"`
	Reason      string    `json:"reason,omitempty"`
	Actor       string    `json:"actor,omitempty"`
	PayloadRef  string    `json:"payload_ref,omitempty"`
	Note        string    `json:"note,omitempty"`
	At          time.Time `json:"at"`
}
