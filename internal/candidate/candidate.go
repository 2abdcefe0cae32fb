// Package candidate holds the materialized current-state view of bitmap
// candidates. The Store is a projection over the ledger, never a source of
// truth: it can always be rebuilt by replaying events from sequence 0, and
// on process start it must be rebuilt before serving anything.
package candidate

import (
	"time"

	"bitledger/internal/ledger"
)

// Candidate is one proposed unit of derived knowledge moving through the
// lifecycle. ID and EpisodeID are immutable after PROPOSE.
type Candidate struct {
	ID              string        `json:"id"`
	EpisodeID       string        `json:"episode_id"`
	PayloadRef      string        `json:"payload_ref,omitempty"`
	Note            string        `json:"note,omitempty"`
	Status          ledger.Status `json:"status"`
	TransitionCount int           `json:"transition_count"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}
