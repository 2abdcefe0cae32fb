package lifecycle

import (
	"errors"
	"fmt"

	"bitledger/internal/ledger"
)

// Race outcomes (ErrAlreadyFinalized, ErrConflictingAdoption) are expected
// under concurrent decision-making and must be treated by callers as normal
// results, not system failures.
var (
	ErrNotFound            = errors.New("candidate not found")
	ErrDuplicateID         = errors.New("candidate id already used")
	ErrAlreadyFinalized    = errors.New("candidate already finalized")
	ErrConflictingAdoption = errors.New("another candidate in scope already adopted")
	ErrConflictUnresolved  = errors.New("conflict not resolved")
	ErrReasonRequired      = errors.New("reason required")
	ErrInvalidTransition   = errors.New("invalid transition")
)

// TransitionError reports a rejected transition with enough detail for the
// caller to explain what was attempted from where.
type TransitionError struct {
	CandidateID string
	From        ledger.Status
	Event       ledger.EventType
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition: %s from %s for candidate %s", e.Event, e.From, e.CandidateID)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }
