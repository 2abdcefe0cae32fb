package candidate

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"bitledger/internal/ledger"
)

// rebuildBatch is the read size used when replaying the ledger.
const rebuildBatch = 1000

// Store is the in-memory projection of candidate current state. A single
// mutex with short critical sections guards the map; Apply is the only fold
// path, used both by startup replay and by the lifecycle engine after each
// append, so live state and replayed state cannot diverge.
type Store struct {
	mu         sync.RWMutex
	candidates map[string]*Candidate
}

// NewStore returns an empty projection.
func NewStore() *Store {
	return &Store{candidates: make(map[string]*Candidate)}
}

// Get returns the candidate by id.
func (s *Store) Get(id string) (Candidate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.candidates[id]
	if !ok {
		return Candidate{}, false
	}
	return *c, true
}

// Len returns the number of known candidates.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.candidates)
}

// ListByStatus returns candidates with the given status, newest first.
// An empty status returns all candidates.
func (s *Store) ListByStatus(status ledger.Status) []Candidate {
	s.mu.RLock()
	out := make([]Candidate, 0)
	for _, c := range s.candidates {
		if status == "" || c.Status == status {
			out = append(out, *c)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ListByEpisode returns candidates sharing the episode, oldest first.
func (s *Store) ListByEpisode(episodeID string) []Candidate {
	s.mu.RLock()
	out := make([]Candidate, 0)
	for _, c := range s.candidates {
		if episodeID != "" && c.EpisodeID == episodeID {
			out = append(out, *c)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Snapshot returns a copy of the full projection keyed by candidate id.
func (s *Store) Snapshot() map[string]Candidate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Candidate, len(s.candidates))
	for id, c := range s.candidates {
		out[id] = *c
	}
	return out
}

// Apply folds one ledger event into the projection. The caller (engine or
// replay) is responsible for ordering; Apply trusts the event.
func (s *Store) Apply(ev ledger.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ev.Type == ledger.EventPropose {
		if _, exists := s.candidates[ev.CandidateID]; exists {
			return fmt.Errorf("apply %s: candidate %s already exists", ev.Type, ev.CandidateID)
		}
		s.candidates[ev.CandidateID] = &Candidate{
			ID:              ev.CandidateID,
			EpisodeID:       ev.EpisodeID,
			PayloadRef:      ev.PayloadRef,
			Note:            ev.Note,
			Status:          ev.NewStatus,
			TransitionCount: 1,
			CreatedAt:       ev.At,
			UpdatedAt:       ev.At,
		}
		return nil
	}

	c, ok := s.candidates[ev.CandidateID]
	if !ok {
		return fmt.Errorf("apply %s: unknown candidate %s", ev.Type, ev.CandidateID)
	}
	c.Status = ev.NewStatus
	c.UpdatedAt = ev.At
	c.TransitionCount++
	return nil
}

// Rebuild clears the projection and replays the full ledger from sequence 0.
// Must complete before the store serves any request after process start.
func (s *Store) Rebuild(ctx context.Context, l ledger.Ledger) error {
	s.mu.Lock()
	s.candidates = make(map[string]*Candidate)
	s.mu.Unlock()

	var since int64
	for {
		events, err := l.ReadSince(ctx, since, rebuildBatch)
		if err != nil {
			return fmt.Errorf("rebuild: %w", err)
		}
		if len(events) == 0 {
			return nil
		}
		for _, ev := range events {
			if err := s.Apply(ev); err != nil {
				return fmt.Errorf("rebuild at seq %d: %w", ev.Seq, err)
			}
			since = ev.Seq
		}
	}
}
