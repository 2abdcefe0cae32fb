package main

import (
	"context"
	"path/filepath"
	"testing"

	"bitledger/internal/ledger"
	"bitledger/internal/lifecycle"
)

func TestOpenCore_RebuildsFromDisk(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "ledger.db")
	ctx := context.Background()

	c, err := openCore(ctx, "", dbPath, "")
	if err != nil {
		t.Fatalf("openCore: %v", err)
	}
	cand, err := c.engine.Propose(ctx, lifecycle.ProposeRequest{EpisodeID: "ep1", Actor: "cli"})
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}
	if _, err := c.engine.Adopt(ctx, cand.ID, "cli"); err != nil {
		t.Fatalf("Adopt: %v", err)
	}
	c.Close()

	// Reopen: the projection must come back from replay alone.
	c2, err := openCore(ctx, "", dbPath, "")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer c2.Close()

	got, ok := c2.store.Get(cand.ID)
	if !ok {
		t.Fatal("candidate missing after reopen")
	}
	if got.Status != ledger.StatusAdopted {
		t.Errorf("status = %s, want ADOPTED", got.Status)
	}

	if _, err := lifecycle.VerifyReplay(ctx, c2.ledger, lifecycle.EpisodeScope); err != nil {
		t.Errorf("VerifyReplay: %v", err)
	}
}

func TestOpenCore_MemoryLedger(t *testing.T) {
	c, err := openCore(context.Background(), "", ":memory:", "")
	if err != nil {
		t.Fatalf("openCore: %v", err)
	}
	defer c.Close()
	if c.store.Len() != 0 {
		t.Errorf("fresh store len = %d", c.store.Len())
	}
}
