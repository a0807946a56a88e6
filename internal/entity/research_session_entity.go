package entity

import (
	"fmt"
	"time"
)

// Session lifecycle states. Stage states are "stage_<n>", see StageStatus.
const (
	SessionStatusCreated   = "created"
	SessionStatusCompleted = "completed"
	SessionStatusError     = "error"
)

// StageStatus returns the status recorded after stage n has been flushed.
func StageStatus(n int) string {
	return fmt.Sprintf("stage_%d", n)
}

// Finding is the loosely-typed payload a stage produces. Its shape varies by
// stage but always carries a "summary".
type Finding map[string]interface{}

type Session struct {
	SessionID       string                 `json:"session_id"`
	CreatedAt       time.Time              `json:"created_at"`
	ModifiedAt      time.Time              `json:"modified_at"`
	Query           string                 `json:"query"`
	Context         map[string]interface{} `json:"context"`
	ResearchResults ResearchResults        `json:"research_results"`
	ReportPath      string                 `json:"report_path,omitempty"`
	Status          string                 `json:"status"`
	Error           string                 `json:"error,omitempty"`
}

type ResearchResults struct {
	Stages           []StageResult     `json:"stages"`
	FinalConclusions *FinalConclusions `json:"final_conclusions"`
	ConfidenceScore  float64           `json:"confidence_score"`
}

type StageResult struct {
	Stage     int       `json:"stage"`
	StageName string    `json:"stage_name"`
	Finding   Finding   `json:"finding"`
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error,omitempty"`
}

// Degraded reports whether the stage failed and carries a synthetic finding.
func (s StageResult) Degraded() bool {
	return s.Error != ""
}

type FinalConclusions struct {
	Summary         string   `json:"summary"`
	KeyFindings     []string `json:"key_findings"`
	Recommendations []string `json:"recommendations"`
	KnowledgeGaps   []string `json:"knowledge_gaps"`
	StagesCompleted int      `json:"stages_completed"`
	StagesDegraded  int      `json:"stages_degraded"`
}

// SessionMetadata is the summary row returned by session listings.
type SessionMetadata struct {
	SessionID       string    `json:"session_id"`
	CreatedAt       time.Time `json:"created_at"`
	Query           string    `json:"query"`
	Status          string    `json:"status"`
	ConfidenceScore float64   `json:"confidence_score"`
}
