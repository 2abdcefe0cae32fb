package lifecycle

import "bitledger/internal/ledger"

// transitions is the lifecycle state machine. Statuses absent from the
// outer map (the terminal ones) accept no events at all.
var transitions = map[ledger.Status]map[ledger.EventType]ledger.Status{
	ledger.StatusPending: {
		ledger.EventAdopt:         ledger.StatusAdopted,
		ledger.EventReject:        ledger.StatusRejected,
		ledger.EventBitmapInvalid: ledger.StatusInvalid,
		ledger.EventConflictMark:  ledger.StatusConflictPending,
	},
	ledger.StatusConflictPending: {
		ledger.EventConflictClear: ledger.StatusPending,
		ledger.EventReject:        ledger.StatusRejected,
		ledger.EventBitmapInvalid: ledger.StatusInvalid,
	},
}

// next returns the status reached by applying ev to from, if the transition
// table allows it.
func next(from ledger.Status, ev ledger.EventType) (ledger.Status, bool) {
	to, ok := transitions[from][ev]
	return to, ok
}
