package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/eshaffer321/receipt-reconciler/internal/application/service"
)

// StatsHandler handles stats-related HTTP requests.
type StatsHandler struct {
	*Base
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(rec *service.Reconciler, logger *slog.Logger) *StatsHandler {
	return &StatsHandler{
		Base: NewBase(rec, logger),
	}
}

// Get handles GET /api/stats - returns aggregate reconciliation counts.
func (h *StatsHandler) Get(c *gin.Context) {
	stats, err := h.rec.Stats(c.Request.Context())
	if err != nil {
		h.HandleError(c, err, "stats")
		return
	}
	h.WriteJSON(c, http.StatusOK, stats)
}
