// Package lifecycle validates and applies candidate lifecycle events. The
// Engine is the only writer of the ledger: every mutation goes through
// validate, append, then fold into the store, in that order, so a failed
// append leaves no trace anywhere.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"bitledger/internal/candidate"
	"bitledger/internal/ledger"
	"bitledger/internal/logging"
)

// DefaultDedupWindow is how long an applied (candidate, event, actor) triple
// answers retries without a second append.
const DefaultDedupWindow = 2 * time.Minute

const (
	autoConflictActor  = "engine/auto-conflict"
	autoConflictReason = "episode_collision"
)

// ScopeFunc maps a candidate to its collision scope. Candidates with an
// empty scope never collide. The default is EpisodeScope; deployments with a
// different collision rule supply their own.
type ScopeFunc func(c candidate.Candidate) string

// EpisodeScope scopes candidates by their originating episode.
func EpisodeScope(c candidate.Candidate) string { return c.EpisodeID }

// Options configures an Engine. Zero values pick defaults; set DedupWindow
// negative to disable idempotent retry tracking.
type Options struct {
	Scope       ScopeFunc
	DedupWindow time.Duration
	Now         func() time.Time
	Logger      *slog.Logger
}

// Engine applies lifecycle events with single-writer-per-candidate
// serialization. Operations that touch scope-wide invariants (PROPOSE,
// ADOPT, CONFLICT_CLEAR) also hold the scope lock, always taken before the
// candidate lock.
type Engine struct {
	ledger ledger.Ledger
	store  *candidate.Store
	scope  ScopeFunc
	window time.Duration
	now    func() time.Time
	log    *slog.Logger

	candLocks  *keyedMutex
	scopeLocks *keyedMutex

	dedupMu sync.Mutex
	dedup   map[string]time.Time
}

// New returns an Engine writing to l and projecting into store.
func New(l ledger.Ledger, store *candidate.Store, opts Options) *Engine {
	if opts.Scope == nil {
		opts.Scope = EpisodeScope
	}
	if opts.DedupWindow == 0 {
		opts.DedupWindow = DefaultDedupWindow
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.Logger == nil {
		opts.Logger = logging.New("engine")
	}
	return &Engine{
		ledger:     l,
		store:      store,
		scope:      opts.Scope,
		window:     opts.DedupWindow,
		now:        opts.Now,
		log:        opts.Logger,
		candLocks:  newKeyedMutex(),
		scopeLocks: newKeyedMutex(),
		dedup:      make(map[string]time.Time),
	}
}

// ProposeRequest carries the fields of a PROPOSE. ID is normally left empty
// and assigned by the engine.
type ProposeRequest struct {
	ID         string
	EpisodeID  string
	PayloadRef string
	Note       string
	Actor      string
}

// Propose creates a PENDING candidate and appends its PROPOSE event. If the
// new candidate collides with live candidates in the same scope, the engine
// auto-marks every plain-PENDING member of the collision set CONFLICT_PENDING
// through the same append path.
func (e *Engine) Propose(ctx context.Context, req ProposeRequest) (candidate.Candidate, error) {
	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	scopeKey := e.scope(candidate.Candidate{
		ID:         id,
		EpisodeID:  req.EpisodeID,
		PayloadRef: req.PayloadRef,
		Note:       req.Note,
	})
	if scopeKey != "" {
		defer e.scopeLocks.lock(scopeKey)()
	}
	defer e.candLocks.lock(id)()

	if hit, ok := e.dedupHit(id, ledger.EventPropose, req.Actor); ok {
		return hit, nil
	}
	if _, exists := e.store.Get(id); exists {
		applyRejected.WithLabelValues("duplicate_id").Inc()
		return candidate.Candidate{}, fmt.Errorf("propose %s: %w", id, ErrDuplicateID)
	}

	ev := ledger.Event{
		CandidateID: id,
		EpisodeID:   req.EpisodeID,
		Type:        ledger.EventPropose,
		NewStatus:   ledger.StatusPending,
		Actor:       req.Actor,
		PayloadRef:  req.PayloadRef,
		Note:        req.Note,
		At:          e.now(),
	}
	seq, err := e.ledger.Append(ctx, ev)
	if err != nil {
		return candidate.Candidate{}, fmt.Errorf("append %s: %w", ev.Type, err)
	}
	ev.Seq = seq
	if err := e.store.Apply(ev); err != nil {
		return candidate.Candidate{}, fmt.Errorf("project %s: %w", ev.Type, err)
	}
	e.remember(id, ledger.EventPropose, req.Actor)
	eventsApplied.WithLabelValues(string(ledger.EventPropose)).Inc()
	liveCandidates.Inc()
	e.log.Info("candidate proposed", "candidate_id", id, "episode_id", req.EpisodeID, "seq", seq)

	if scopeKey != "" {
		if err := e.autoMarkConflicts(ctx, scopeKey, id); err != nil {
			return candidate.Candidate{}, err
		}
	}

	out, _ := e.store.Get(id)
	return out, nil
}

// autoMarkConflicts marks every plain-PENDING member of the collision set
// around newID, newID included. Caller holds the scope lock and newID's
// candidate lock.
func (e *Engine) autoMarkConflicts(ctx context.Context, scopeKey, newID string) error {
	others := e.scopeMates(scopeKey, newID, true)
	if len(others) == 0 {
		return nil
	}

	if c, ok := e.store.Get(newID); ok && c.Status == ledger.StatusPending {
		if _, err := e.commit(ctx, c, ledger.EventConflictMark, ledger.StatusConflictPending,
			autoConflictReason, autoConflictActor); err != nil {
			return err
		}
	}
	for _, o := range others {
		if o.Status != ledger.StatusPending {
			continue
		}
		unlock := e.candLocks.lock(o.ID)
		cur, ok := e.store.Get(o.ID)
		if ok && cur.Status == ledger.StatusPending {
			if _, err := e.commit(ctx, cur, ledger.EventConflictMark, ledger.StatusConflictPending,
				autoConflictReason, autoConflictActor); err != nil {
				unlock()
				return err
			}
		}
		unlock()
	}
	return nil
}

// Adopt finalizes the candidate as ADOPTED. Fails with
// ErrConflictingAdoption if another candidate in the same scope is already
// ADOPTED, and with ErrConflictUnresolved while the candidate is
// CONFLICT_PENDING.
func (e *Engine) Adopt(ctx context.Context, id, actor string) (candidate.Candidate, error) {
	c, ok := e.store.Get(id)
	if !ok {
		return candidate.Candidate{}, fmt.Errorf("adopt %s: %w", id, ErrNotFound)
	}
	scopeKey := e.scope(c)
	if scopeKey != "" {
		defer e.scopeLocks.lock(scopeKey)()
	}
	defer e.candLocks.lock(id)()

	if hit, ok := e.dedupHit(id, ledger.EventAdopt, actor); ok {
		return hit, nil
	}
	c, _ = e.store.Get(id)
	if c.Status.Terminal() {
		applyRejected.WithLabelValues("already_finalized").Inc()
		return candidate.Candidate{}, fmt.Errorf("adopt %s: %w", id, ErrAlreadyFinalized)
	}
	if c.Status == ledger.StatusConflictPending {
		applyRejected.WithLabelValues("conflict_unresolved").Inc()
		return candidate.Candidate{}, fmt.Errorf("adopt %s: %w", id, ErrConflictUnresolved)
	}
	if scopeKey != "" {
		for _, o := range e.scopeMates(scopeKey, id, false) {
			if o.Status == ledger.StatusAdopted {
				applyRejected.WithLabelValues("conflicting_adoption").Inc()
				return candidate.Candidate{}, fmt.Errorf("adopt %s in scope %s: %w", id, scopeKey, ErrConflictingAdoption)
			}
		}
	}
	return e.commit(ctx, c, ledger.EventAdopt, ledger.StatusAdopted, "", actor)
}

// Reject finalizes the candidate as REJECTED. A reason is required.
func (e *Engine) Reject(ctx context.Context, id, reason, actor string) (candidate.Candidate, error) {
	return e.decide(ctx, id, ledger.EventReject, reason, actor)
}

// MarkInvalid finalizes the candidate as INVALID after failed payload
// validation. A reason is required.
func (e *Engine) MarkInvalid(ctx context.Context, id, reason, actor string) (candidate.Candidate, error) {
	return e.decide(ctx, id, ledger.EventBitmapInvalid, reason, actor)
}

// MarkConflict moves a PENDING candidate to CONFLICT_PENDING. A reason is
// required.
func (e *Engine) MarkConflict(ctx context.Context, id, reason, actor string) (candidate.Candidate, error) {
	return e.decide(ctx, id, ledger.EventConflictMark, reason, actor)
}

// decide runs the common single-candidate transition path.
func (e *Engine) decide(ctx context.Context, id string, typ ledger.EventType, reason, actor string) (candidate.Candidate, error) {
	if typ.ReasonRequired() && strings.TrimSpace(reason) == "" {
		applyRejected.WithLabelValues("reason_required").Inc()
		return candidate.Candidate{}, fmt.Errorf("%s %s: %w", typ, id, ErrReasonRequired)
	}
	if _, ok := e.store.Get(id); !ok {
		return candidate.Candidate{}, fmt.Errorf("%s %s: %w", typ, id, ErrNotFound)
	}
	defer e.candLocks.lock(id)()

	if hit, ok := e.dedupHit(id, typ, actor); ok {
		return hit, nil
	}
	c, _ := e.store.Get(id)
	if c.Status.Terminal() {
		applyRejected.WithLabelValues("already_finalized").Inc()
		return candidate.Candidate{}, fmt.Errorf("%s %s: %w", typ, id, ErrAlreadyFinalized)
	}
	to, ok := next(c.Status, typ)
	if !ok {
		applyRejected.WithLabelValues("invalid_transition").Inc()
		return candidate.Candidate{}, &TransitionError{CandidateID: id, From: c.Status, Event: typ}
	}
	return e.commit(ctx, c, typ, to, reason, actor)
}

// ClearConflict returns a CONFLICT_PENDING candidate to PENDING once no
// other live candidate remains in its scope.
func (e *Engine) ClearConflict(ctx context.Context, id, actor string) (candidate.Candidate, error) {
	c, ok := e.store.Get(id)
	if !ok {
		return candidate.Candidate{}, fmt.Errorf("clear conflict %s: %w", id, ErrNotFound)
	}
	scopeKey := e.scope(c)
	if scopeKey != "" {
		defer e.scopeLocks.lock(scopeKey)()
	}
	defer e.candLocks.lock(id)()

	if hit, ok := e.dedupHit(id, ledger.EventConflictClear, actor); ok {
		return hit, nil
	}
	c, _ = e.store.Get(id)
	if c.Status.Terminal() {
		applyRejected.WithLabelValues("already_finalized").Inc()
		return candidate.Candidate{}, fmt.Errorf("clear conflict %s: %w", id, ErrAlreadyFinalized)
	}
	to, ok := next(c.Status, ledger.EventConflictClear)
	if !ok {
		applyRejected.WithLabelValues("invalid_transition").Inc()
		return candidate.Candidate{}, &TransitionError{CandidateID: id, From: c.Status, Event: ledger.EventConflictClear}
	}
	if scopeKey != "" {
		for _, o := range e.scopeMates(scopeKey, id, true) {
			applyRejected.WithLabelValues("conflict_unresolved").Inc()
			return candidate.Candidate{}, fmt.Errorf("clear conflict %s: candidate %s still live in scope: %w",
				id, o.ID, ErrConflictUnresolved)
		}
	}
	return e.commit(ctx, c, ledger.EventConflictClear, to, "", actor)
}

// commit appends the transition event and folds it into the store. Caller
// holds the candidate lock (and the scope lock where required).
func (e *Engine) commit(ctx context.Context, c candidate.Candidate, typ ledger.EventType, to ledger.Status, reason, actor string) (candidate.Candidate, error) {
	ev := ledger.Event{
		CandidateID: c.ID,
		EpisodeID:   c.EpisodeID,
		Type:        typ,
		PrevStatus:  c.Status,
		NewStatus:   to,
		Reason:      reason,
		Actor:       actor,
		At:          e.now(),
	}
	seq, err := e.ledger.Append(ctx, ev)
	if err != nil {
		return candidate.Candidate{}, fmt.Errorf("append %s: %w", typ, err)
	}
	ev.Seq = seq
	if err := e.store.Apply(ev); err != nil {
		return candidate.Candidate{}, fmt.Errorf("project %s: %w", typ, err)
	}
	e.remember(c.ID, typ, actor)
	eventsApplied.WithLabelValues(string(typ)).Inc()
	if to.Terminal() {
		liveCandidates.Dec()
	}
	e.log.Info("transition applied",
		"candidate_id", c.ID, "event", typ, "from", c.Status, "to", to, "actor", actor, "seq", seq)

	out, _ := e.store.Get(c.ID)
	return out, nil
}

// scopeMates returns the other candidates sharing scopeKey. liveOnly skips
// terminal candidates.
func (e *Engine) scopeMates(scopeKey, excludeID string, liveOnly bool) []candidate.Candidate {
	var out []candidate.Candidate
	for _, c := range e.store.Snapshot() {
		if c.ID == excludeID || e.scope(c) != scopeKey {
			continue
		}
		if liveOnly && c.Status.Terminal() {
			continue
		}
		out = append(out, c)
	}
	return out
}

func dedupKey(id string, typ ledger.EventType, actor string) string {
	return id + "|" + string(typ) + "|" + actor
}

// dedupHit reports whether the same (candidate, event, actor) was applied
// within the dedup window; a hit answers the retry with the candidate's
// current state and no new event.
func (e *Engine) dedupHit(id string, typ ledger.EventType, actor string) (candidate.Candidate, bool) {
	if e.window <= 0 {
		return candidate.Candidate{}, false
	}
	key := dedupKey(id, typ, actor)
	now := e.now()

	e.dedupMu.Lock()
	at, ok := e.dedup[key]
	if ok && now.Sub(at) > e.window {
		delete(e.dedup, key)
		ok = false
	}
	e.dedupMu.Unlock()

	if !ok {
		return candidate.Candidate{}, false
	}
	dedupHits.Inc()
	c, found := e.store.Get(id)
	return c, found
}

func (e *Engine) remember(id string, typ ledger.EventType, actor string) {
	if e.window <= 0 {
		return
	}
	now := e.now()
	e.dedupMu.Lock()
	for k, at := range e.dedup {
		if now.Sub(at) > e.window {
			delete(e.dedup, k)
		}
	}
	e.dedup[dedupKey(id, typ, actor)] = now
	e.dedupMu.Unlock()
}
