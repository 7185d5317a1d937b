package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/eshaffer321/receipt-reconciler/internal/api/dto"
	"github.com/eshaffer321/receipt-reconciler/internal/application/service"
	"github.com/eshaffer321/receipt-reconciler/internal/domain/model"
)

// Base provides shared functionality for all handlers.
type Base struct {
	rec    *service.Reconciler
	logger *slog.Logger
}

// NewBase creates a new base handler backed by the reconciler.
func NewBase(rec *service.Reconciler, logger *slog.Logger) *Base {
	if logger == nil {
		logger = slog.Default()
	}
	return &Base{rec: rec, logger: logger}
}

// WriteJSON writes a JSON response with the given status code.
func (b *Base) WriteJSON(c *gin.Context, status int, data interface{}) {
	c.JSON(status, data)
}

// WriteError writes an error response with the given status code.
func (b *Base) WriteError(c *gin.Context, status int, err dto.APIError) {
	c.AbortWithStatusJSON(status, err)
}

// HandleError maps engine errors onto HTTP responses.
func (b *Base) HandleError(c *gin.Context, err error, resource string) {
	status, apiErr := StatusFor(err, resource)
	if status == http.StatusInternalServerError {
		b.logger.Error("request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"error", err)
	}
	b.WriteError(c, status, apiErr)
}

// StatusFor picks the HTTP status and envelope for err.
func StatusFor(err error, resource string) (int, dto.APIError) {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound, dto.NotFoundError(resource)
	case errors.Is(err, model.ErrAlreadyMatched),
		errors.Is(err, model.ErrNotMatched),
		errors.Is(err, model.ErrTrainingInProgress):
		return http.StatusConflict, dto.ConflictError(resource, err.Error())
	case errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, model.ErrInsufficientData):
		return http.StatusBadRequest, dto.ValidationError(err.Error())
	default:
		return http.StatusInternalServerError, dto.InternalError()
	}
}

// BindJSON decodes the request body, writing a 400 on failure.
func (b *Base) BindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		b.WriteError(c, http.StatusBadRequest, dto.BadRequestError(err.Error()))
		return false
	}
	return true
}

// ParseBoolParam parses a boolean query parameter with a default value.
func ParseBoolParam(c *gin.Context, name string, defaultVal bool) bool {
	val := c.Query(name)
	if val == "" {
		return defaultVal
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return parsed
}
