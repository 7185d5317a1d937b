package dto

import (
	"time"

	"github.com/eshaffer321/receipt-reconciler/internal/domain/model"
)

// HealthResponse is returned by the health check endpoint.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// MatchResponse carries both sides of a match after a commit or unmatch.
type MatchResponse struct {
	Receipt *model.Receipt `json:"receipt"`
	Charge  *model.Charge  `json:"charge,omitempty"`
}

// AcceptedResponse acknowledges work queued in the background.
type AcceptedResponse struct {
	Status string `json:"status"`
}

// StatementListResponse is returned when listing statements.
type StatementListResponse struct {
	Statements []*model.Statement `json:"statements"`
	Count      int                `json:"count"`
}

// NormalizeResponse is returned by the merchant normalization endpoint.
type NormalizeResponse struct {
	Input      string `json:"input"`
	Normalized string `json:"normalized"`
}

// NewHealthResponse creates a health response with current timestamp.
func NewHealthResponse() HealthResponse {
	return HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}
