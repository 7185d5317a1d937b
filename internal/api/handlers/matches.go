package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/eshaffer321/receipt-reconciler/internal/api/dto"
	"github.com/eshaffer321/receipt-reconciler/internal/application/service"
)

// MatchesHandler handles candidate review: suggestions, commits, unmatches
// and skips.
type MatchesHandler struct {
	*Base
}

// NewMatchesHandler creates a new matches handler.
func NewMatchesHandler(rec *service.Reconciler, logger *slog.Logger) *MatchesHandler {
	return &MatchesHandler{
		Base: NewBase(rec, logger),
	}
}

// Candidates handles GET /api/candidates - the review queue.
func (h *MatchesHandler) Candidates(c *gin.Context) {
	set, err := h.rec.GetCandidates(c.Request.Context(), service.CandidateQuery{
		StatementID:    c.Query("statement_id"),
		CrossStatement: ParseBoolParam(c, "cross_statement", false),
	})
	if err != nil {
		h.HandleError(c, err, "candidates")
		return
	}
	h.WriteJSON(c, http.StatusOK, set)
}

// Commit handles POST /api/matches - links a receipt and a charge.
func (h *MatchesHandler) Commit(c *gin.Context) {
	var req dto.MatchRequest
	if !h.BindJSON(c, &req) {
		return
	}

	receipt, charge, err := h.rec.CommitMatch(c.Request.Context(), req.ReceiptID, req.ChargeID)
	if err != nil {
		h.HandleError(c, err, "receipt or charge")
		return
	}
	h.WriteJSON(c, http.StatusOK, dto.MatchResponse{Receipt: receipt, Charge: charge})
}

// Unmatch handles DELETE /api/matches/:receiptID.
func (h *MatchesHandler) Unmatch(c *gin.Context) {
	receipt, charge, err := h.rec.Unmatch(c.Request.Context(), c.Param("receiptID"))
	if err != nil {
		h.HandleError(c, err, "receipt")
		return
	}
	h.WriteJSON(c, http.StatusOK, dto.MatchResponse{Receipt: receipt, Charge: charge})
}

// Skip handles POST /api/skips. The write happens in the background so the
// review UI can move on immediately.
func (h *MatchesHandler) Skip(c *gin.Context) {
	var req dto.MatchRequest
	if !h.BindJSON(c, &req) {
		return
	}

	h.rec.RecordSkipAsync(req.ReceiptID, req.ChargeID, req.Features)
	h.WriteJSON(c, http.StatusAccepted, dto.AcceptedResponse{Status: "accepted"})
}
