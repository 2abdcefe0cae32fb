// Package mcptools exposes the candidate lifecycle over MCP so agent-driven
// validators and reviewers can propose and decide without the HTTP surface.
package mcptools

import (
	"context"
	"fmt"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"bitledger/internal/audit"
	"bitledger/internal/candidate"
	"bitledger/internal/ledger"
	"bitledger/internal/lifecycle"
)

// Server wraps the MCP SDK server around the lifecycle engine.
type Server struct {
	MCPServer *sdkmcp.Server

	engine *lifecycle.Engine
	store  *candidate.Store
	agg    *audit.Aggregator
}

// NewServer creates an MCP server with the lifecycle and audit tools.
func NewServer(e *lifecycle.Engine, store *candidate.Store, agg *audit.Aggregator) *Server {
	s := &Server{engine: e, store: store, agg: agg}
	s.MCPServer = sdkmcp.NewServer(
		&sdkmcp.Implementation{Name: "bitledger", Version: "dev"},
		nil,
	)
	s.registerTools()
	return s
}

// Run serves MCP over the given transport until ctx is cancelled.
func (s *Server) Run(ctx context.Context, t sdkmcp.Transport) error {
	return s.MCPServer.Run(ctx, t)
}

func (s *Server) registerTools() {
	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "propose_candidate",
		Description: "Propose a new bitmap candidate. Returns the assigned candidate ID; the candidate starts PENDING (or CONFLICT_PENDING when it collides with a live candidate in the same episode).",
	}, s.handlePropose)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "decide_candidate",
		Description: "Apply a lifecycle decision: adopt, reject, invalid, conflict, or clear_conflict. reject/invalid/conflict require a reason.",
	}, s.handleDecide)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "get_candidate",
		Description: "Get a candidate's current state by ID.",
	}, s.handleGet)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "list_candidates",
		Description: "List candidates, optionally filtered by status (PENDING, CONFLICT_PENDING, ADOPTED, REJECTED, INVALID).",
	}, s.handleList)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "bitmap_summary",
		Description: "Windowed audit summary: status counts, event counts, invalid reasons, adoption rate, recent transitions.",
	}, s.handleSummary)
}

// --- Tool input/output types ---

type proposeInput struct {
	EpisodeID  string `json:"episode_id,omitempty" jsonschema:"originating episode, used for conflict detection"`
	PayloadRef string `json:"payload_ref,omitempty" jsonschema:"reference to the bitmap payload blob"`
	Note       string `json:"note,omitempty" jsonschema:"free-text annotation"`
	Actor      string `json:"actor" jsonschema:"who is proposing"`
}

type proposeOutput struct {
	CandidateID string `json:"candidate_id"`
	Status      string `json:"status"`
}

type decideInput struct {
	CandidateID string `json:"candidate_id" jsonschema:"candidate to decide"`
	Decision    string `json:"decision" jsonschema:"one of adopt, reject, invalid, conflict, clear_conflict"`
	Reason      string `json:"reason,omitempty" jsonschema:"required for reject, invalid, conflict"`
	Actor       string `json:"actor" jsonschema:"who is deciding"`
}

type decideOutput struct {
	CandidateID string `json:"candidate_id"`
	Status      string `json:"status"`
}

type getInput struct {
	CandidateID string `json:"candidate_id" jsonschema:"candidate to look up"`
}

type listInput struct {
	Status string `json:"status,omitempty" jsonschema:"status filter; empty lists all"`
	Limit  int    `json:"limit,omitempty" jsonschema:"max rows (0 = unlimited)"`
}

type listOutput struct {
	Candidates []candidate.Candidate `json:"candidates"`
	Count      int                   `json:"count"`
}

type summaryInput struct {
	WindowDays int `json:"window_days,omitempty" jsonschema:"trailing window in days (default 7)"`
}

// --- Tool handlers ---

func (s *Server) handlePropose(ctx context.Context, _ *sdkmcp.CallToolRequest, input proposeInput) (*sdkmcp.CallToolResult, proposeOutput, error) {
	c, err := s.engine.Propose(ctx, lifecycle.ProposeRequest{
		EpisodeID:  input.EpisodeID,
		PayloadRef: input.PayloadRef,
		Note:       input.Note,
		Actor:      input.Actor,
	})
	if err != nil {
		return nil, proposeOutput{}, fmt.Errorf("propose_candidate: %w", err)
	}
	return nil, proposeOutput{CandidateID: c.ID, Status: string(c.Status)}, nil
}

func (s *Server) handleDecide(ctx context.Context, _ *sdkmcp.CallToolRequest, input decideInput) (*sdkmcp.CallToolResult, decideOutput, error) {
	var (
		c   candidate.Candidate
		err error
	)
	switch input.Decision {
	case "adopt":
		c, err = s.engine.Adopt(ctx, input.CandidateID, input.Actor)
	case "reject":
		c, err = s.engine.Reject(ctx, input.CandidateID, input.Reason, input.Actor)
	case "invalid":
		c, err = s.engine.MarkInvalid(ctx, input.CandidateID, input.Reason, input.Actor)
	case "conflict":
		c, err = s.engine.MarkConflict(ctx, input.CandidateID, input.Reason, input.Actor)
	case "clear_conflict":
		c, err = s.engine.ClearConflict(ctx, input.CandidateID, input.Actor)
	default:
		return nil, decideOutput{}, fmt.Errorf("unknown decision %q", input.Decision)
	}
	if err != nil {
		return nil, decideOutput{}, fmt.Errorf("decide_candidate %s: %w", input.Decision, err)
	}
	return nil, decideOutput{CandidateID: c.ID, Status: string(c.Status)}, nil
}

func (s *Server) handleGet(_ context.Context, _ *sdkmcp.CallToolRequest, input getInput) (*sdkmcp.CallToolResult, candidate.Candidate, error) {
	c, ok := s.store.Get(input.CandidateID)
	if !ok {
		return nil, candidate.Candidate{}, fmt.Errorf("get_candidate %s: %w", input.CandidateID, lifecycle.ErrNotFound)
	}
	return nil, c, nil
}

func (s *Server) handleList(_ context.Context, _ *sdkmcp.CallToolRequest, input listInput) (*sdkmcp.CallToolResult, listOutput, error) {
	status := ledger.Status(input.Status)
	if status != "" && !status.Valid() {
		return nil, listOutput{}, fmt.Errorf("unknown status %q", input.Status)
	}
	list := s.store.ListByStatus(status)
	if input.Limit > 0 && len(list) > input.Limit {
		list = list[:input.Limit]
	}
	return nil, listOutput{Candidates: list, Count: len(list)}, nil
}

func (s *Server) handleSummary(ctx context.Context, _ *sdkmcp.CallToolRequest, input summaryInput) (*sdkmcp.CallToolResult, audit.Summary, error) {
	sum, err := s.agg.Summarize(ctx, input.WindowDays)
	if err != nil {
		return nil, audit.Summary{}, fmt.Errorf("bitmap_summary: %w", err)
	}
	return nil, sum, nil
}
