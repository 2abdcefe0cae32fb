package lifecycle

import (
	"context"
	"fmt"

	"bitledger/internal/candidate"
	"bitledger/internal/ledger"
)

const verifyBatch = 1000

// VerifyReplay replays the full ledger and checks the history invariants:
// sequence numbers strictly increase, every candidate starts with PROPOSE,
// every transition follows the table, no event appears after a terminal
// status, and (when scope is non-nil) no scope ever holds two ADOPTED
// candidates. Returns the number of events checked.
func VerifyReplay(ctx context.Context, l ledger.Ledger, scope ScopeFunc) (int64, error) {
	statuses := make(map[string]ledger.Status)
	episodes := make(map[string]string)
	adoptedInScope := make(map[string]string)

	var count, since, lastSeq int64
	for {
		batch, err := l.ReadSince(ctx, since, verifyBatch)
		if err != nil {
			return count, fmt.Errorf("verify read: %w", err)
		}
		if len(batch) == 0 {
			return count, nil
		}
		for _, ev := range batch {
			if ev.Seq <= lastSeq {
				return count, fmt.Errorf("seq %d not after %d", ev.Seq, lastSeq)
			}
			lastSeq = ev.Seq
			since = ev.Seq

			cur, seen := statuses[ev.CandidateID]
			switch {
			case ev.Type == ledger.EventPropose:
				if seen {
					return count, fmt.Errorf("seq %d: PROPOSE for existing candidate %s", ev.Seq, ev.CandidateID)
				}
				if ev.NewStatus != ledger.StatusPending {
					return count, fmt.Errorf("seq %d: PROPOSE lands on %s, want PENDING", ev.Seq, ev.NewStatus)
				}
				episodes[ev.CandidateID] = ev.EpisodeID
			case !seen:
				return count, fmt.Errorf("seq %d: %s before PROPOSE for candidate %s", ev.Seq, ev.Type, ev.CandidateID)
			case cur.Terminal():
				return count, fmt.Errorf("seq %d: %s after terminal %s for candidate %s", ev.Seq, ev.Type, cur, ev.CandidateID)
			default:
				to, ok := next(cur, ev.Type)
				if !ok {
					return count, fmt.Errorf("seq %d: %s from %s not allowed for candidate %s", ev.Seq, ev.Type, cur, ev.CandidateID)
				}
				if ev.NewStatus != to {
					return count, fmt.Errorf("seq %d: %s records %s, table says %s", ev.Seq, ev.Type, ev.NewStatus, to)
				}
				if ev.PrevStatus != cur {
					return count, fmt.Errorf("seq %d: recorded prev %s, replay says %s", ev.Seq, ev.PrevStatus, cur)
				}
			}
			statuses[ev.CandidateID] = ev.NewStatus

			if scope != nil && ev.NewStatus == ledger.StatusAdopted {
				key := scope(candidate.Candidate{ID: ev.CandidateID, EpisodeID: episodes[ev.CandidateID]})
				if key != "" {
					if prev, taken := adoptedInScope[key]; taken && prev != ev.CandidateID {
						return count, fmt.Errorf("seq %d: scope %s adopted both %s and %s", ev.Seq, key, prev, ev.CandidateID)
					}
					adoptedInScope[key] = ev.CandidateID
				}
			}
			count++
		}
	}
}
