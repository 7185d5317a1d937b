package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/eshaffer321/receipt-reconciler/internal/api/dto"
	"github.com/eshaffer321/receipt-reconciler/internal/application/service"
)

// StatementsHandler handles statement-related HTTP requests.
type StatementsHandler struct {
	*Base
}

// NewStatementsHandler creates a new statements handler.
func NewStatementsHandler(rec *service.Reconciler, logger *slog.Logger) *StatementsHandler {
	return &StatementsHandler{
		Base: NewBase(rec, logger),
	}
}

// List handles GET /api/statements.
func (h *StatementsHandler) List(c *gin.Context) {
	statements, err := h.rec.ListStatements(c.Request.Context())
	if err != nil {
		h.HandleError(c, err, "statements")
		return
	}
	h.WriteJSON(c, http.StatusOK, dto.StatementListResponse{
		Statements: statements,
		Count:      len(statements),
	})
}

// Create handles POST /api/statements. Unassigned receipts falling inside
// the new period are pulled in.
func (h *StatementsHandler) Create(c *gin.Context) {
	var req dto.StatementRequest
	if !h.BindJSON(c, &req) {
		return
	}
	st, err := req.ToStatement()
	if err != nil {
		h.WriteError(c, http.StatusBadRequest, dto.ValidationError(err.Error()))
		return
	}

	if err := h.rec.AddStatement(c.Request.Context(), st); err != nil {
		h.HandleError(c, err, "statement")
		return
	}
	h.WriteJSON(c, http.StatusCreated, st)
}
