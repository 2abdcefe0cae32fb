package lifecycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"bitledger/internal/candidate"
	"bitledger/internal/ledger"
)

func newTestEngine(t *testing.T, opts Options) (*Engine, *ledger.MemLedger, *candidate.Store) {
	t.Helper()
	l := ledger.NewMemLedger()
	s := candidate.NewStore()
	return New(l, s, opts), l, s
}

func mustPropose(t *testing.T, e *Engine, id, episode string) candidate.Candidate {
	t.Helper()
	c, err := e.Propose(context.Background(), ProposeRequest{ID: id, EpisodeID: episode, Actor: "tester"})
	if err != nil {
		t.Fatalf("Propose(%s): %v", id, err)
	}
	return c
}

func TestEngine_ProposeCreatesPending(t *testing.T) {
	e, l, _ := newTestEngine(t, Options{})

	c, err := e.Propose(context.Background(), ProposeRequest{
		EpisodeID: "ep1", PayloadRef: "blob://p1", Note: "first", Actor: "proposer",
	})
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}
	if c.ID == "" {
		t.Fatal("expected assigned candidate id")
	}
	if c.Status != ledger.StatusPending {
		t.Errorf("status = %s, want PENDING", c.Status)
	}
	if c.PayloadRef != "blob://p1" || c.Note != "first" {
		t.Errorf("payload/note not carried: %+v", c)
	}

	seq, err := l.LastSeq(context.Background())
	if err != nil {
		t.Fatalf("LastSeq: %v", err)
	}
	if seq != 1 {
		t.Errorf("seq = %d, want 1", seq)
	}
}

func TestEngine_ProposeDuplicateID(t *testing.T) {
	e, _, _ := newTestEngine(t, Options{DedupWindow: -1})
	mustPropose(t, e, "c1", "ep1")

	_, err := e.Propose(context.Background(), ProposeRequest{ID: "c1", EpisodeID: "ep9", Actor: "other"})
	if !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("err = %v, want ErrDuplicateID", err)
	}
}

func TestEngine_NotFound(t *testing.T) {
	e, _, _ := newTestEngine(t, Options{})
	ctx := context.Background()

	if _, err := e.Adopt(ctx, "ghost", "tester"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Adopt err = %v, want ErrNotFound", err)
	}
	if _, err := e.Reject(ctx, "ghost", "why", "tester"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Reject err = %v, want ErrNotFound", err)
	}
	if _, err := e.ClearConflict(ctx, "ghost", "tester"); !errors.Is(err, ErrNotFound) {
		t.Errorf("ClearConflict err = %v, want ErrNotFound", err)
	}
}

func TestEngine_ReasonRequired(t *testing.T) {
	e, l, _ := newTestEngine(t, Options{})
	mustPropose(t, e, "c1", "ep1")
	ctx := context.Background()

	if _, err := e.Reject(ctx, "c1", "  ", "tester"); !errors.Is(err, ErrReasonRequired) {
		t.Errorf("Reject err = %v, want ErrReasonRequired", err)
	}
	if _, err := e.MarkInvalid(ctx, "c1", "", "tester"); !errors.Is(err, ErrReasonRequired) {
		t.Errorf("MarkInvalid err = %v, want ErrReasonRequired", err)
	}
	if _, err := e.MarkConflict(ctx, "c1", "", "tester"); !errors.Is(err, ErrReasonRequired) {
		t.Errorf("MarkConflict err = %v, want ErrReasonRequired", err)
	}

	// Nothing was written past the PROPOSE.
	seq, _ := l.LastSeq(ctx)
	if seq != 1 {
		t.Errorf("seq = %d, want 1", seq)
	}
}

func TestEngine_TerminalRejectsEverything(t *testing.T) {
	e, _, _ := newTestEngine(t, Options{DedupWindow: -1})
	mustPropose(t, e, "c3", "ep3")
	ctx := context.Background()

	if _, err := e.MarkInvalid(ctx, "c3", "checksum_mismatch", "validator"); err != nil {
		t.Fatalf("MarkInvalid: %v", err)
	}
	if _, err := e.Adopt(ctx, "c3", "reviewer"); !errors.Is(err, ErrAlreadyFinalized) {
		t.Errorf("Adopt after INVALID err = %v, want ErrAlreadyFinalized", err)
	}
	if _, err := e.Reject(ctx, "c3", "late", "reviewer"); !errors.Is(err, ErrAlreadyFinalized) {
		t.Errorf("Reject after INVALID err = %v, want ErrAlreadyFinalized", err)
	}
	if _, err := e.ClearConflict(ctx, "c3", "reviewer"); !errors.Is(err, ErrAlreadyFinalized) {
		t.Errorf("ClearConflict after INVALID err = %v, want ErrAlreadyFinalized", err)
	}
}

func TestEngine_InvalidTransition(t *testing.T) {
	e, _, _ := newTestEngine(t, Options{DedupWindow: -1})
	mustPropose(t, e, "c1", "ep1")
	ctx := context.Background()

	// CONFLICT_CLEAR from plain PENDING is not in the table.
	_, err := e.ClearConflict(ctx, "c1", "tester")
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
	var te *TransitionError
	if !errors.As(err, &te) {
		t.Fatalf("err %v is not a *TransitionError", err)
	}
	if te.From != ledger.StatusPending || te.Event != ledger.EventConflictClear {
		t.Errorf("TransitionError = %+v", te)
	}
}

func TestEngine_ConflictScenario(t *testing.T) {
	e, _, _ := newTestEngine(t, Options{DedupWindow: -1})
	ctx := context.Background()

	c1 := mustPropose(t, e, "c1", "ep1")
	if c1.Status != ledger.StatusPending {
		t.Fatalf("c1 status = %s, want PENDING", c1.Status)
	}

	// Second proposal in the same episode trips auto conflict marking on both.
	c2 := mustPropose(t, e, "c2", "ep1")
	if c2.Status != ledger.StatusConflictPending {
		t.Fatalf("c2 status = %s, want CONFLICT_PENDING", c2.Status)
	}
	c1, err := e.Adopt(ctx, "c1", "reviewer")
	if !errors.Is(err, ErrConflictUnresolved) {
		t.Fatalf("Adopt(c1) err = %v, want ErrConflictUnresolved", err)
	}

	// Clearing is blocked while the conflicting mate is still live.
	if _, err := e.ClearConflict(ctx, "c1", "reviewer"); !errors.Is(err, ErrConflictUnresolved) {
		t.Fatalf("ClearConflict err = %v, want ErrConflictUnresolved", err)
	}

	if _, err := e.Reject(ctx, "c2", "superseded", "reviewer"); err != nil {
		t.Fatalf("Reject(c2): %v", err)
	}
	c1, err = e.ClearConflict(ctx, "c1", "reviewer")
	if err != nil {
		t.Fatalf("ClearConflict(c1): %v", err)
	}
	if c1.Status != ledger.StatusPending {
		t.Fatalf("c1 status = %s, want PENDING", c1.Status)
	}
	c1, err = e.Adopt(ctx, "c1", "reviewer")
	if err != nil {
		t.Fatalf("Adopt(c1): %v", err)
	}
	if c1.Status != ledger.StatusAdopted {
		t.Fatalf("c1 status = %s, want ADOPTED", c1.Status)
	}
}

func TestEngine_AdoptScopeExclusive(t *testing.T) {
	e, _, _ := newTestEngine(t, Options{DedupWindow: -1})
	ctx := context.Background()

	mustPropose(t, e, "c1", "ep1")
	if _, err := e.Adopt(ctx, "c1", "reviewer"); err != nil {
		t.Fatalf("Adopt(c1): %v", err)
	}

	// c1 is terminal, so c2 proposes cleanly into the scope.
	c2 := mustPropose(t, e, "c2", "ep1")
	if c2.Status != ledger.StatusPending {
		t.Fatalf("c2 status = %s, want PENDING", c2.Status)
	}
	if _, err := e.Adopt(ctx, "c2", "reviewer"); !errors.Is(err, ErrConflictingAdoption) {
		t.Fatalf("Adopt(c2) err = %v, want ErrConflictingAdoption", err)
	}
}

func TestEngine_ConcurrentAdoptSameID(t *testing.T) {
	e, _, _ := newTestEngine(t, Options{DedupWindow: -1})
	mustPropose(t, e, "c1", "ep1")

	results := make([]error, 2)
	var g errgroup.Group
	for i, actor := range []string{"alice", "bob"} {
		g.Go(func() error {
			_, err := e.Adopt(context.Background(), "c1", actor)
			results[i] = err
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	var wins, finalized int
	for _, err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrAlreadyFinalized):
			finalized++
		default:
			t.Fatalf("unexpected outcome: %v", err)
		}
	}
	if wins != 1 || finalized != 1 {
		t.Fatalf("wins = %d, finalized = %d; want 1 and 1", wins, finalized)
	}
}

func TestEngine_ConcurrentAdoptSameScope(t *testing.T) {
	// Seed two PENDING candidates in one scope directly (as a replayed
	// ledger would produce before conflict marking existed), then race
	// adopts on both. At most one may win.
	l := ledger.NewMemLedger()
	s := candidate.NewStore()
	ctx := context.Background()
	for _, id := range []string{"c1", "c2"} {
		ev := ledger.Event{
			CandidateID: id,
			EpisodeID:   "ep1",
			Type:        ledger.EventPropose,
			NewStatus:   ledger.StatusPending,
			At:          time.Now().UTC(),
		}
		seq, err := l.Append(ctx, ev)
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
		ev.Seq = seq
		if err := s.Apply(ev); err != nil {
			t.Fatalf("Apply: %v", err)
		}
	}
	e := New(l, s, Options{DedupWindow: -1})

	results := make([]error, 2)
	var g errgroup.Group
	for i, id := range []string{"c1", "c2"} {
		g.Go(func() error {
			_, err := e.Adopt(ctx, id, "reviewer")
			results[i] = err
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	var wins int
	for _, err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrConflictingAdoption):
		default:
			t.Fatalf("unexpected outcome: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("wins = %d, want exactly 1", wins)
	}
	var adopted int
	for _, c := range s.Snapshot() {
		if c.Status == ledger.StatusAdopted {
			adopted++
		}
	}
	if adopted != 1 {
		t.Fatalf("adopted in scope = %d, want 1", adopted)
	}
}

func TestEngine_DedupWindowAnswersRetries(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	e, l, _ := newTestEngine(t, Options{Now: clock})
	ctx := context.Background()

	mustPropose(t, e, "c1", "ep1")
	if _, err := e.Reject(ctx, "c1", "low_confidence", "reviewer"); err != nil {
		t.Fatalf("Reject: %v", err)
	}
	seqBefore, _ := l.LastSeq(ctx)

	// Same actor retrying inside the window gets the candidate back, no
	// new event, no ErrAlreadyFinalized.
	c, err := e.Reject(ctx, "c1", "low_confidence", "reviewer")
	if err != nil {
		t.Fatalf("retry Reject: %v", err)
	}
	if c.Status != ledger.StatusRejected {
		t.Errorf("retry status = %s, want REJECTED", c.Status)
	}
	if seqAfter, _ := l.LastSeq(ctx); seqAfter != seqBefore {
		t.Errorf("retry appended an event: %d -> %d", seqBefore, seqAfter)
	}

	// A different actor is not a retry.
	if _, err := e.Reject(ctx, "c1", "other", "intruder"); !errors.Is(err, ErrAlreadyFinalized) {
		t.Errorf("different actor err = %v, want ErrAlreadyFinalized", err)
	}

	// Past the window the retry behaves like a fresh request again.
	now = now.Add(DefaultDedupWindow + time.Second)
	if _, err := e.Reject(ctx, "c1", "low_confidence", "reviewer"); !errors.Is(err, ErrAlreadyFinalized) {
		t.Errorf("expired retry err = %v, want ErrAlreadyFinalized", err)
	}
}

func TestEngine_CustomScopePredicate(t *testing.T) {
	// Scope by note instead of episode.
	byNote := func(c candidate.Candidate) string { return c.Note }
	e, _, _ := newTestEngine(t, Options{Scope: byNote, DedupWindow: -1})
	ctx := context.Background()

	if _, err := e.Propose(ctx, ProposeRequest{ID: "c1", EpisodeID: "ep1", Note: "target-x", Actor: "p"}); err != nil {
		t.Fatalf("Propose c1: %v", err)
	}
	// Different episode, same note: collides under the custom predicate.
	c2, err := e.Propose(ctx, ProposeRequest{ID: "c2", EpisodeID: "ep2", Note: "target-x", Actor: "p"})
	if err != nil {
		t.Fatalf("Propose c2: %v", err)
	}
	if c2.Status != ledger.StatusConflictPending {
		t.Errorf("c2 status = %s, want CONFLICT_PENDING", c2.Status)
	}
}

func TestEngine_EmptyScopeNeverCollides(t *testing.T) {
	e, _, _ := newTestEngine(t, Options{DedupWindow: -1})
	c1 := mustPropose(t, e, "c1", "")
	c2 := mustPropose(t, e, "c2", "")
	if c1.Status != ledger.StatusPending || c2.Status != ledger.StatusPending {
		t.Errorf("statuses = %s, %s; want PENDING, PENDING", c1.Status, c2.Status)
	}
}

func TestEngine_AutoConflictEventShape(t *testing.T) {
	e, l, _ := newTestEngine(t, Options{DedupWindow: -1})
	mustPropose(t, e, "c1", "ep1")
	mustPropose(t, e, "c2", "ep1")

	events, err := l.ReadSince(context.Background(), 0, 0)
	if err != nil {
		t.Fatalf("ReadSince: %v", err)
	}
	var marks []ledger.Event
	for _, ev := range events {
		if ev.Type == ledger.EventConflictMark {
			marks = append(marks, ev)
		}
	}
	if len(marks) != 2 {
		t.Fatalf("conflict marks = %d, want 2", len(marks))
	}
	for _, ev := range marks {
		if ev.Reason != "episode_collision" {
			t.Errorf("reason = %q, want episode_collision", ev.Reason)
		}
		if ev.Actor != "engine/auto-conflict" {
			t.Errorf("actor = %q, want engine/auto-conflict", ev.Actor)
		}
	}
}
