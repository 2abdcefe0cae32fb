// Package audit computes windowed, read-only views over the lifecycle
// ledger. Nothing here writes; every result is derived by folding events
// whose timestamp falls inside the trailing window, so two calls with the
// same window and no intervening appends produce identical output.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"bitledger/internal/ledger"
	"bitledger/internal/logging"
)

const (
	// DefaultWindowDays bounds aggregation when the caller does not pick
	// a window.
	DefaultWindowDays = 7
	// DefaultRecentLimit caps the recent-transitions and recent-failures
	// tails.
	DefaultRecentLimit = 20
	// DefaultReasonLimit caps the top-failure-reasons ranking.
	DefaultReasonLimit = 10

	readBatch = 1000
)

// Summary is the dashboard aggregation. Status counts cover candidates that
// had at least one event inside the window, at their status as of the last
// windowed event.
type Summary struct {
	WindowDays            int            `json:"window_days"`
	GeneratedAt           time.Time      `json:"generated_at"`
	CandidateStatusCounts map[string]int `json:"candidate_status_counts"`
	EventCounts           map[string]int `json:"event_counts"`
	InvalidReasonCounts   map[string]int `json:"invalid_reason_counts"`
	AdoptionRate          float64        `json:"adoption_rate"`
	PendingCount          int            `json:"pending_count"`
	RecentTransitions     []ledger.Event `json:"recent_transitions"`
	Stale                 bool           `json:"stale,omitempty"`
}

// Totals is the header block of an Audit.
type Totals struct {
	CandidateTotal int            `json:"candidate_total"`
	StatusCounts   map[string]int `json:"status_counts"`
	EventCounts    map[string]int `json:"event_counts"`
}

// CandidateActivity is one row of the most-contested-candidates view.
type CandidateActivity struct {
	CandidateID   string           `json:"candidate_id"`
	EventCount    int              `json:"event_count"`
	CurrentStatus ledger.Status    `json:"current_status"`
	LastEvent     ledger.EventType `json:"last_event"`
	LastAt        time.Time        `json:"last_at"`
}

// ReasonCount is one entry of the failure-reason ranking.
type ReasonCount struct {
	Reason string `json:"reason"`
	Count  int    `json:"count"`
}

// Audit is the deep-dive aggregation behind the audit endpoint.
type Audit struct {
	WindowDays           int                 `json:"window_days"`
	GeneratedAt          time.Time           `json:"generated_at"`
	Totals               Totals              `json:"totals"`
	CandidateTransitions []CandidateActivity `json:"candidate_transitions"`
	TopFailureReasons    []ReasonCount       `json:"top_failure_reasons"`
	RecentFailures       []ledger.Event      `json:"recent_failures"`
	Stale                bool                `json:"stale,omitempty"`
}

// Options configures an Aggregator. Zero values pick defaults.
type Options struct {
	Now    func() time.Time
	Logger *slog.Logger
}

// Aggregator reads the ledger and folds. On a read failure it degrades to
// the last successful result, marked stale, so decision-making endpoints
// keep rendering during transient storage trouble.
type Aggregator struct {
	ledger ledger.Ledger
	now    func() time.Time
	log    *slog.Logger

	mu          sync.Mutex
	lastSummary *Summary
	lastAudit   *Audit
}

// New returns an Aggregator over l.
func New(l ledger.Ledger, opts Options) *Aggregator {
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.Logger == nil {
		opts.Logger = logging.New("audit")
	}
	return &Aggregator{ledger: l, now: opts.Now, log: opts.Logger}
}

// Summarize folds events inside the trailing window into a Summary.
func (a *Aggregator) Summarize(ctx context.Context, windowDays int) (Summary, error) {
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}
	events, err := a.windowed(ctx, windowDays)
	if err != nil {
		a.mu.Lock()
		cached := a.lastSummary
		a.mu.Unlock()
		if cached != nil {
			a.log.Warn("summary degraded to cached result", "error", err)
			stale := *cached
			stale.Stale = true
			return stale, nil
		}
		return Summary{}, fmt.Errorf("summarize: %w", err)
	}

	s := Summary{
		WindowDays:            windowDays,
		GeneratedAt:           a.now(),
		CandidateStatusCounts: make(map[string]int),
		EventCounts:           make(map[string]int),
		InvalidReasonCounts:   make(map[string]int),
		RecentTransitions:     recentTail(events, DefaultRecentLimit, nil),
	}

	lastStatus := make(map[string]ledger.Status)
	for _, ev := range events {
		s.EventCounts[string(ev.Type)]++
		if ev.Type == ledger.EventBitmapInvalid && ev.Reason != "" {
			s.InvalidReasonCounts[ev.Reason]++
		}
		lastStatus[ev.CandidateID] = ev.NewStatus
	}
	for _, st := range lastStatus {
		s.CandidateStatusCounts[string(st)]++
		if st == ledger.StatusPending || st == ledger.StatusConflictPending {
			s.PendingCount++
		}
	}

	decided := s.EventCounts[string(ledger.EventAdopt)] +
		s.EventCounts[string(ledger.EventReject)] +
		s.EventCounts[string(ledger.EventBitmapInvalid)]
	if decided > 0 {
		s.AdoptionRate = float64(s.EventCounts[string(ledger.EventAdopt)]) / float64(decided)
	}

	a.mu.Lock()
	a.lastSummary = &s
	a.mu.Unlock()
	return s, nil
}

// Snapshot folds events inside the trailing window into an Audit.
func (a *Aggregator) Snapshot(ctx context.Context, windowDays, limit, reasonLimit int) (Audit, error) {
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	if reasonLimit <= 0 {
		reasonLimit = DefaultReasonLimit
	}
	events, err := a.windowed(ctx, windowDays)
	if err != nil {
		a.mu.Lock()
		cached := a.lastAudit
		a.mu.Unlock()
		if cached != nil {
			a.log.Warn("audit degraded to cached result", "error", err)
			stale := *cached
			stale.Stale = true
			return stale, nil
		}
		return Audit{}, fmt.Errorf("audit snapshot: %w", err)
	}

	out := Audit{
		WindowDays:  windowDays,
		GeneratedAt: a.now(),
		Totals: Totals{
			StatusCounts: make(map[string]int),
			EventCounts:  make(map[string]int),
		},
		RecentFailures: recentTail(events, limit, func(ev ledger.Event) bool {
			return failureEvent(ev.Type)
		}),
	}

	type acc struct {
		count int
		last  ledger.Event
	}
	perCandidate := make(map[string]*acc)
	reasons := make(map[string]int)
	for _, ev := range events {
		out.Totals.EventCounts[string(ev.Type)]++
		if failureEvent(ev.Type) && ev.Reason != "" {
			reasons[ev.Reason]++
		}
		c := perCandidate[ev.CandidateID]
		if c == nil {
			c = &acc{}
			perCandidate[ev.CandidateID] = c
		}
		c.count++
		c.last = ev
	}

	out.Totals.CandidateTotal = len(perCandidate)
	for id, c := range perCandidate {
		out.Totals.StatusCounts[string(c.last.NewStatus)]++
		out.CandidateTransitions = append(out.CandidateTransitions, CandidateActivity{
			CandidateID:   id,
			EventCount:    c.count,
			CurrentStatus: c.last.NewStatus,
			LastEvent:     c.last.Type,
			LastAt:        c.last.At,
		})
	}
	sort.Slice(out.CandidateTransitions, func(i, j int) bool {
		a, b := out.CandidateTransitions[i], out.CandidateTransitions[j]
		if a.EventCount != b.EventCount {
			return a.EventCount > b.EventCount
		}
		return a.CandidateID < b.CandidateID
	})
	if len(out.CandidateTransitions) > limit {
		out.CandidateTransitions = out.CandidateTransitions[:limit]
	}

	for r, n := range reasons {
		out.TopFailureReasons = append(out.TopFailureReasons, ReasonCount{Reason: r, Count: n})
	}
	sort.Slice(out.TopFailureReasons, func(i, j int) bool {
		a, b := out.TopFailureReasons[i], out.TopFailureReasons[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Reason < b.Reason
	})
	if len(out.TopFailureReasons) > reasonLimit {
		out.TopFailureReasons = out.TopFailureReasons[:reasonLimit]
	}

	a.mu.Lock()
	a.lastAudit = &out
	a.mu.Unlock()
	return out, nil
}

// Timeline returns the candidate's own windowed events plus related events
// from scope mates sharing the episode. Both slices are in ledger order.
func (a *Aggregator) Timeline(ctx context.Context, candidateID, episodeID string, windowDays, limit int) (own, related []ledger.Event, err error) {
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	events, err := a.windowed(ctx, windowDays)
	if err != nil {
		return nil, nil, fmt.Errorf("timeline %s: %w", candidateID, err)
	}
	for _, ev := range events {
		switch {
		case ev.CandidateID == candidateID:
			own = append(own, ev)
		case episodeID != "" && ev.EpisodeID == episodeID:
			related = append(related, ev)
		}
	}
	if len(own) > limit {
		own = own[len(own)-limit:]
	}
	if len(related) > limit {
		related = related[len(related)-limit:]
	}
	return own, related, nil
}

// windowed reads the full ledger in batches and keeps events inside the
// trailing window.
func (a *Aggregator) windowed(ctx context.Context, windowDays int) ([]ledger.Event, error) {
	cutoff := a.now().AddDate(0, 0, -windowDays)
	var (
		out   []ledger.Event
		since int64
	)
	for {
		batch, err := a.ledger.ReadSince(ctx, since, readBatch)
		if err != nil {
			return nil, err
		}
		if len(batch) == 0 {
			return out, nil
		}
		for _, ev := range batch {
			if !ev.At.Before(cutoff) {
				out = append(out, ev)
			}
			since = ev.Seq
		}
	}
}

func failureEvent(t ledger.EventType) bool {
	switch t {
	case ledger.EventReject, ledger.EventBitmapInvalid, ledger.EventConflictMark:
		return true
	}
	return false
}

// recentTail returns up to limit events matching keep (nil keeps all),
// newest first.
func recentTail(events []ledger.Event, limit int, keep func(ledger.Event) bool) []ledger.Event {
	out := make([]ledger.Event, 0, limit)
	for i := len(events) - 1; i >= 0 && len(out) < limit; i-- {
		if keep == nil || keep(events[i]) {
			out = append(out, events[i])
		}
	}
	return out
}
