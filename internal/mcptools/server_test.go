package mcptools

import (
	"context"
	"strings"
	"testing"

	"bitledger/internal/audit"
	"bitledger/internal/candidate"
	"bitledger/internal/ledger"
	"bitledger/internal/lifecycle"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	l := ledger.NewMemLedger()
	store := candidate.NewStore()
	engine := lifecycle.New(l, store, lifecycle.Options{DedupWindow: -1})
	agg := audit.New(l, audit.Options{})
	return NewServer(engine, store, agg)
}

func TestProposeAndDecide(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	_, out, err := s.handlePropose(ctx, nil, proposeInput{EpisodeID: "ep1", Actor: "agent"})
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if out.Status != "PENDING" || out.CandidateID == "" {
		t.Fatalf("propose output = %+v", out)
	}

	_, dec, err := s.handleDecide(ctx, nil, decideInput{
		CandidateID: out.CandidateID, Decision: "adopt", Actor: "agent",
	})
	if err != nil {
		t.Fatalf("adopt: %v", err)
	}
	if dec.Status != "ADOPTED" {
		t.Errorf("status = %s, want ADOPTED", dec.Status)
	}

	_, _, err = s.handleDecide(ctx, nil, decideInput{
		CandidateID: out.CandidateID, Decision: "reject", Reason: "late", Actor: "other",
	})
	if err == nil || !strings.Contains(err.Error(), "finalized") {
		t.Errorf("reject after adopt err = %v, want already finalized", err)
	}
}

func TestDecideUnknownDecision(t *testing.T) {
	s := newTestServer(t)
	_, _, err := s.handleDecide(context.Background(), nil, decideInput{
		CandidateID: "x", Decision: "promote", Actor: "agent",
	})
	if err == nil {
		t.Fatal("expected error for unknown decision")
	}
}

func TestListAndSummary(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	for range 3 {
		if _, _, err := s.handlePropose(ctx, nil, proposeInput{Actor: "agent"}); err != nil {
			t.Fatalf("propose: %v", err)
		}
	}
	_, list, err := s.handleList(ctx, nil, listInput{Status: "PENDING", Limit: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if list.Count != 2 {
		t.Errorf("count = %d, want 2", list.Count)
	}
	if _, _, err := s.handleList(ctx, nil, listInput{Status: "BOGUS"}); err == nil {
		t.Error("expected error for bogus status filter")
	}

	_, sum, err := s.handleSummary(ctx, nil, summaryInput{WindowDays: 7})
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if sum.EventCounts["PROPOSE"] != 3 {
		t.Errorf("PROPOSE count = %d, want 3", sum.EventCounts["PROPOSE"])
	}
}
