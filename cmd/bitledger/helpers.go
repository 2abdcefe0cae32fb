package main

import (
	"context"
	"fmt"
	"os"

	"bitledger/internal/audit"
	"bitledger/internal/candidate"
	"bitledger/internal/config"
	"bitledger/internal/ledger"
	"bitledger/internal/lifecycle"
	"bitledger/internal/logging"
)

// core bundles the wired components every subcommand needs.
type core struct {
	cfg    config.Config
	ledger ledger.Ledger
	store  *candidate.Store
	engine *lifecycle.Engine
	agg    *audit.Aggregator
}

func (c *core) Close() {
	_ = c.ledger.Close()
}

// openCore loads config, opens the ledger, and rebuilds the projection by
// full replay. Flags override file values when non-empty.
func openCore(ctx context.Context, configPath, dbPath, listen string) (*core, error) {
	cfg, err := config.LoadFromPath(configPath)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	if listen != "" {
		cfg.Listen = listen
	}

	logging.Init(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat, os.Stderr)
	log := logging.New("bitledger")

	var l ledger.Ledger
	if cfg.DBPath == ":memory:" {
		l = ledger.NewMemLedger()
	} else {
		sl, err := ledger.Open(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open ledger: %w", err)
		}
		l = sl
	}

	store := candidate.NewStore()
	if err := store.Rebuild(ctx, l); err != nil {
		_ = l.Close()
		return nil, fmt.Errorf("rebuild projection: %w", err)
	}
	seq, _ := l.LastSeq(ctx)
	log.Info("projection rebuilt", "db", cfg.DBPath, "candidates", store.Len(), "last_seq", seq)

	window, err := cfg.DedupWindowDuration()
	if err != nil {
		_ = l.Close()
		return nil, err
	}
	var scope lifecycle.ScopeFunc
	if cfg.Scope == "none" {
		scope = func(candidate.Candidate) string { return "" }
	}
	engine := lifecycle.New(l, store, lifecycle.Options{
		Scope:       scope,
		DedupWindow: window,
	})
	agg := audit.New(l, audit.Options{})

	return &core{cfg: cfg, ledger: l, store: store, engine: engine, agg: agg}, nil
}
