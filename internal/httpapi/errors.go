package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"bitledger/internal/lifecycle"
)

// errorBody is the structured error envelope. Code is machine-readable so a
// client can tell "someone else already decided this" from "your request was
// malformed".
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Reason  string `json:"reason,omitempty"`
}

func writeError(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "INTERNAL"
	switch {
	case errors.Is(err, lifecycle.ErrNotFound):
		status, code = http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, lifecycle.ErrReasonRequired):
		status, code = http.StatusBadRequest, "REASON_REQUIRED"
	case errors.Is(err, lifecycle.ErrDuplicateID):
		status, code = http.StatusConflict, "DUPLICATE_ID"
	case errors.Is(err, lifecycle.ErrAlreadyFinalized):
		status, code = http.StatusConflict, "ALREADY_FINALIZED"
	case errors.Is(err, lifecycle.ErrConflictingAdoption):
		status, code = http.StatusConflict, "CONFLICTING_ADOPTION"
	case errors.Is(err, lifecycle.ErrConflictUnresolved):
		status, code = http.StatusConflict, "CONFLICT_UNRESOLVED"
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		status, code = http.StatusConflict, "INVALID_TRANSITION"
	}
	c.JSON(status, gin.H{"error": errorBody{Code: code, Message: err.Error()}})
}

func writeBadRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": errorBody{Code: "BAD_REQUEST", Message: msg}})
}
