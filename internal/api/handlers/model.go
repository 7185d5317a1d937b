package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/eshaffer321/receipt-reconciler/internal/api/dto"
	"github.com/eshaffer321/receipt-reconciler/internal/application/service"
	"github.com/eshaffer321/receipt-reconciler/internal/domain/merchant"
)

// ModelHandler exposes the confidence model and the merchant normalizer.
type ModelHandler struct {
	*Base
}

// NewModelHandler creates a new model handler.
func NewModelHandler(rec *service.Reconciler, logger *slog.Logger) *ModelHandler {
	return &ModelHandler{
		Base: NewBase(rec, logger),
	}
}

// Get handles GET /api/model.
func (h *ModelHandler) Get(c *gin.Context) {
	h.WriteJSON(c, http.StatusOK, h.rec.ModelInfo(c.Request.Context()))
}

// Train handles POST /api/model/train. A run skipped for lack of samples is
// still a 200 with trained=false.
func (h *ModelHandler) Train(c *gin.Context) {
	result, err := h.rec.Train(c.Request.Context())
	if err != nil {
		h.HandleError(c, err, "model")
		return
	}
	h.WriteJSON(c, http.StatusOK, result)
}

// AddAlias handles POST /api/aliases.
func (h *ModelHandler) AddAlias(c *gin.Context) {
	var req dto.AliasRequest
	if !h.BindJSON(c, &req) {
		return
	}

	alias := merchant.Alias{Pattern: req.Pattern, Canonical: req.Canonical, Regex: req.Regex}
	if err := h.rec.AddAlias(c.Request.Context(), alias); err != nil {
		h.HandleError(c, err, "alias")
		return
	}
	h.WriteJSON(c, http.StatusCreated, alias)
}

// Normalize handles GET /api/merchants/normalize?name=.
func (h *ModelHandler) Normalize(c *gin.Context) {
	name := c.Query("name")
	if name == "" {
		h.WriteError(c, http.StatusBadRequest, dto.BadRequestError("name is required"))
		return
	}
	h.WriteJSON(c, http.StatusOK, dto.NormalizeResponse{Input: name, Normalized: h.rec.Normalize(name)})
}
