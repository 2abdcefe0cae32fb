package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"bitledger/internal/audit"
	"bitledger/internal/candidate"
	"bitledger/internal/ledger"
	"bitledger/internal/lifecycle"
)

type proposeBody struct {
	EpisodeID  string `json:"episode_id"`
	PayloadRef string `json:"payload_ref"`
	Note       string `json:"note"`
	Actor      string `json:"actor"`
}

type decisionBody struct {
	Reason string `json:"reason"`
	Actor  string `json:"actor"`
}

// ProposeCandidate creates a new PENDING candidate.
func ProposeCandidate(e *lifecycle.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body proposeBody
		if err := c.ShouldBindJSON(&body); err != nil {
			writeBadRequest(c, "invalid request body: "+err.Error())
			return
		}
		cand, err := e.Propose(c.Request.Context(), lifecycle.ProposeRequest{
			EpisodeID:  body.EpisodeID,
			PayloadRef: body.PayloadRef,
			Note:       body.Note,
			Actor:      body.Actor,
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"candidate_id": cand.ID, "status": cand.Status})
	}
}

// Decide runs one of the single-candidate transition endpoints.
func Decide(apply func(c *gin.Context, id string, body decisionBody) (candidate.Candidate, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body decisionBody
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&body); err != nil {
				writeBadRequest(c, "invalid request body: "+err.Error())
				return
			}
		}
		cand, err := apply(c, c.Param("id"), body)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"candidate_id": cand.ID, "status": cand.Status})
	}
}

// GetCandidate returns one candidate's current state.
func GetCandidate(store *candidate.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		cand, ok := store.Get(c.Param("id"))
		if !ok {
			writeError(c, lifecycle.ErrNotFound)
			return
		}
		c.JSON(http.StatusOK, cand)
	}
}

// ListCandidates returns candidates, optionally filtered by status and
// bounded by limit.
func ListCandidates(store *candidate.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := ledger.Status(c.Query("status"))
		if status != "" && !status.Valid() {
			writeBadRequest(c, "unknown status "+string(status))
			return
		}
		limit, ok := intQuery(c, "limit", 0)
		if !ok {
			return
		}
		list := store.ListByStatus(status)
		if limit > 0 && len(list) > limit {
			list = list[:limit]
		}
		c.JSON(http.StatusOK, gin.H{"candidates": list, "count": len(list)})
	}
}

// CandidateTimeline returns a candidate's windowed event history plus the
// events of its scope mates.
func CandidateTimeline(store *candidate.Store, agg *audit.Aggregator) gin.HandlerFunc {
	return func(c *gin.Context) {
		cand, ok := store.Get(c.Param("id"))
		if !ok {
			writeError(c, lifecycle.ErrNotFound)
			return
		}
		days, ok := intQuery(c, "window_days", 0)
		if !ok {
			return
		}
		limit, ok := intQuery(c, "limit", 0)
		if !ok {
			return
		}
		own, related, err := agg.Timeline(c.Request.Context(), cand.ID, cand.EpisodeID, days, limit)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"candidate": cand, "events": own, "related": related})
	}
}

// BitmapSummary serves the windowed dashboard aggregation.
func BitmapSummary(agg *audit.Aggregator, defaultDays int) gin.HandlerFunc {
	return func(c *gin.Context) {
		days, ok := intQuery(c, "window_days", defaultDays)
		if !ok {
			return
		}
		s, err := agg.Summarize(c.Request.Context(), days)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, s)
	}
}

// BitmapAudit serves the deep-dive audit aggregation.
func BitmapAudit(agg *audit.Aggregator, defaultDays int) gin.HandlerFunc {
	return func(c *gin.Context) {
		days, ok := intQuery(c, "window_days", defaultDays)
		if !ok {
			return
		}
		limit, ok := intQuery(c, "limit", 0)
		if !ok {
			return
		}
		reasonLimit, ok := intQuery(c, "reason_limit", 0)
		if !ok {
			return
		}
		a, err := agg.Snapshot(c.Request.Context(), days, limit, reasonLimit)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, a)
	}
}

// Healthz reports liveness and the ledger's last sequence number.
func Healthz(l ledger.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		seq, err := l.LastSeq(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "last_seq": seq})
	}
}

// intQuery parses an optional integer query param; on a bad value it writes
// the 400 itself and reports false.
func intQuery(c *gin.Context, name string, def int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		writeBadRequest(c, "invalid "+name)
		return 0, false
	}
	return v, true
}
