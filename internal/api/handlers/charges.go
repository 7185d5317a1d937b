package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/eshaffer321/receipt-reconciler/internal/api/dto"
	"github.com/eshaffer321/receipt-reconciler/internal/application/service"
)

// ChargesHandler handles charge-related HTTP requests.
type ChargesHandler struct {
	*Base
}

// NewChargesHandler creates a new charges handler.
func NewChargesHandler(rec *service.Reconciler, logger *slog.Logger) *ChargesHandler {
	return &ChargesHandler{
		Base: NewBase(rec, logger),
	}
}

// Create handles POST /api/charges.
func (h *ChargesHandler) Create(c *gin.Context) {
	var req dto.ChargeRequest
	if !h.BindJSON(c, &req) {
		return
	}
	charge, err := req.ToCharge()
	if err != nil {
		h.WriteError(c, http.StatusBadRequest, dto.ValidationError(err.Error()))
		return
	}

	if err := h.rec.AddCharge(c.Request.Context(), charge); err != nil {
		h.HandleError(c, err, "statement")
		return
	}
	h.WriteJSON(c, http.StatusCreated, charge)
}

// Delete handles DELETE /api/charges/:id. A matched receipt is freed.
func (h *ChargesHandler) Delete(c *gin.Context) {
	if err := h.rec.DeleteCharge(c.Request.Context(), c.Param("id")); err != nil {
		h.HandleError(c, err, "charge")
		return
	}
	c.Status(http.StatusNoContent)
}

// SetFlags handles PUT /api/charges/:id/flags.
func (h *ChargesHandler) SetFlags(c *gin.Context) {
	var req dto.ChargeFlagsRequest
	if !h.BindJSON(c, &req) {
		return
	}

	charge, err := h.rec.SetChargeFlags(c.Request.Context(), c.Param("id"), req.Personal, req.NoReceiptRequired)
	if err != nil {
		h.HandleError(c, err, "charge")
		return
	}
	h.WriteJSON(c, http.StatusOK, charge)
}
