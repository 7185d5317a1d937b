package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/eshaffer321/receipt-reconciler/internal/api/dto"
	"github.com/eshaffer321/receipt-reconciler/internal/application/service"
)

// ReceiptsHandler handles receipt-related HTTP requests.
type ReceiptsHandler struct {
	*Base
}

// NewReceiptsHandler creates a new receipts handler.
func NewReceiptsHandler(rec *service.Reconciler, logger *slog.Logger) *ReceiptsHandler {
	return &ReceiptsHandler{
		Base: NewBase(rec, logger),
	}
}

// Create handles POST /api/receipts - stores a receipt and attempts a match.
func (h *ReceiptsHandler) Create(c *gin.Context) {
	var req dto.ReceiptRequest
	if !h.BindJSON(c, &req) {
		return
	}
	receipt, err := req.ToReceipt()
	if err != nil {
		h.WriteError(c, http.StatusBadRequest, dto.ValidationError(err.Error()))
		return
	}

	result, err := h.rec.AddReceipt(c.Request.Context(), receipt)
	if err != nil {
		h.HandleError(c, err, "receipt")
		return
	}
	h.WriteJSON(c, http.StatusCreated, result)
}

// Get handles GET /api/receipts/:id.
func (h *ReceiptsHandler) Get(c *gin.Context) {
	receipt, err := h.rec.GetReceipt(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.HandleError(c, err, "receipt")
		return
	}
	h.WriteJSON(c, http.StatusOK, receipt)
}

// Patch handles PATCH /api/receipts/:id - applies extracted fields, then
// reassigns the statement and attempts an auto-match.
func (h *ReceiptsHandler) Patch(c *gin.Context) {
	var req dto.ReceiptPatchRequest
	if !h.BindJSON(c, &req) {
		return
	}

	patch := service.ReceiptPatch{
		Merchant: req.Merchant,
		Amount:   req.Amount,
		Category: req.Category,
		Status:   req.Status,
	}
	if req.Date != nil {
		d, err := dto.ParseDate(*req.Date)
		if err != nil {
			h.WriteError(c, http.StatusBadRequest, dto.ValidationError(err.Error()))
			return
		}
		patch.Date = &d
	}

	result, err := h.rec.UpdateReceipt(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		h.HandleError(c, err, "receipt")
		return
	}
	h.WriteJSON(c, http.StatusOK, result)
}

// Delete handles DELETE /api/receipts/:id.
func (h *ReceiptsHandler) Delete(c *gin.Context) {
	if err := h.rec.DeleteReceipt(c.Request.Context(), c.Param("id")); err != nil {
		h.HandleError(c, err, "receipt")
		return
	}
	c.Status(http.StatusNoContent)
}

// Attempt handles POST /api/receipts/:id/attempt. An unmatched outcome is a
// normal 200 response.
func (h *ReceiptsHandler) Attempt(c *gin.Context) {
	result, err := h.rec.Attempt(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.HandleError(c, err, "receipt")
		return
	}
	h.WriteJSON(c, http.StatusOK, result)
}

// Assign handles POST /api/receipts/:id/assign.
func (h *ReceiptsHandler) Assign(c *gin.Context) {
	receipt, err := h.rec.AssignStatement(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.HandleError(c, err, "receipt")
		return
	}
	h.WriteJSON(c, http.StatusOK, receipt)
}

// CreateCharge handles POST /api/receipts/:id/charge - records a charge paid
// outside the statement card and matches the receipt to it.
func (h *ReceiptsHandler) CreateCharge(c *gin.Context) {
	receipt, charge, err := h.rec.CreateChargeFromReceipt(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.HandleError(c, err, "receipt")
		return
	}
	h.WriteJSON(c, http.StatusCreated, dto.MatchResponse{Receipt: receipt, Charge: charge})
}
