// Package httpapi exposes the lifecycle engine and audit aggregator over
// HTTP. All mutation endpoints delegate to the engine; read endpoints serve
// the projection and windowed aggregations.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"bitledger/internal/audit"
	"bitledger/internal/candidate"
	"bitledger/internal/ledger"
	"bitledger/internal/lifecycle"
	"bitledger/internal/logging"
)

const shutdownGrace = 10 * time.Second

// Server wires the core components behind a gin router.
type Server struct {
	engine *lifecycle.Engine
	store  *candidate.Store
	agg    *audit.Aggregator
	ledger ledger.Ledger
	log    *slog.Logger

	windowDays int
}

// NewServer builds a Server. windowDays is the default audit window for
// requests that omit one.
func NewServer(e *lifecycle.Engine, store *candidate.Store, agg *audit.Aggregator, l ledger.Ledger, windowDays int) *Server {
	if windowDays <= 0 {
		windowDays = audit.DefaultWindowDays
	}
	return &Server{
		engine:     e,
		store:      store,
		agg:        agg,
		ledger:     l,
		log:        logging.New("httpapi"),
		windowDays: windowDays,
	}
}

// Router builds the route table.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", Healthz(s.ledger))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	v1.POST("/candidates", ProposeCandidate(s.engine))
	v1.GET("/candidates", ListCandidates(s.store))
	v1.GET("/candidates/:id", GetCandidate(s.store))
	v1.GET("/candidates/:id/timeline", CandidateTimeline(s.store, s.agg))

	v1.POST("/candidates/:id/adopt", Decide(func(c *gin.Context, id string, body decisionBody) (candidate.Candidate, error) {
		return s.engine.Adopt(c.Request.Context(), id, body.Actor)
	}))
	v1.POST("/candidates/:id/reject", Decide(func(c *gin.Context, id string, body decisionBody) (candidate.Candidate, error) {
		return s.engine.Reject(c.Request.Context(), id, body.Reason, body.Actor)
	}))
	v1.POST("/candidates/:id/invalid", Decide(func(c *gin.Context, id string, body decisionBody) (candidate.Candidate, error) {
		return s.engine.MarkInvalid(c.Request.Context(), id, body.Reason, body.Actor)
	}))
	v1.POST("/candidates/:id/conflict", Decide(func(c *gin.Context, id string, body decisionBody) (candidate.Candidate, error) {
		return s.engine.MarkConflict(c.Request.Context(), id, body.Reason, body.Actor)
	}))
	v1.POST("/candidates/:id/clear-conflict", Decide(func(c *gin.Context, id string, body decisionBody) (candidate.Candidate, error) {
		return s.engine.ClearConflict(c.Request.Context(), id, body.Actor)
	}))

	v1.GET("/bitmap/summary", BitmapSummary(s.agg, s.windowDays))
	v1.GET("/bitmap/audit", BitmapAudit(s.agg, s.windowDays))

	return r
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Router()}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Info("http listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		s.log.Info("http shutting down")
		shCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(shCtx)
	})
	return g.Wait()
}
