package dto

import (
	"time"

	"deep-research-agent/internal/entity"
)

type StartResearchRequest struct {
	Query   string                 `json:"query" validate:"required,min=5,max=500"`
	Context map[string]interface{} `json:"context"`
}

type StartResearchResponse struct {
	SessionID   string    `json:"session_id"`
	Status      string    `json:"status"`
	TotalStages int       `json:"total_stages"`
	CreatedAt   time.Time `json:"created_at"`
}

type SessionSummaryResponse struct {
	SessionID       string    `json:"session_id"`
	CreatedAt       time.Time `json:"created_at"`
	Query           string    `json:"query"`
	Status          string    `json:"status"`
	ConfidenceScore float64   `json:"confidence_score"`
}

type SetReportPathRequest struct {
	ReportPath string `json:"report_path" validate:"required"`
}

type CleanupRequest struct {
	DaysOld int `json:"days_old" validate:"gte=0"`
}

type CleanupResponse struct {
	Deleted int `json:"deleted"`
}

type ActiveRunResponse struct {
	Running   bool   `json:"running"`
	SessionID string `json:"session_id,omitempty"`
}

func ToSessionSummaries(items []entity.SessionMetadata) []SessionSummaryResponse {
	out := make([]SessionSummaryResponse, 0, len(items))
	for _, item := range items {
		out = append(out, SessionSummaryResponse{
			SessionID:       item.SessionID,
			CreatedAt:       item.CreatedAt,
			Query:           item.Query,
			Status:          item.Status,
			ConfidenceScore: item.ConfidenceScore,
		})
	}
	return out
}
