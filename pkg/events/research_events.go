package events

import (
	"time"
)

const (
	TypeStageCompleted = "research.stage_completed"
	TypeRunCompleted   = "research.run_completed"
	TypeRunFailed      = "research.run_failed"
)

// Payload keys shared by every research event.
const (
	KeyRunID      = "run_id"
	KeySessionID  = "session_id"
	KeyOccurredAt = "occurred_at"
)

// StageCompletedEvent is emitted once a stage result has been persisted.
type StageCompletedEvent struct {
	RunID       string
	SessionID   string
	Stage       int
	StageName   string
	TotalStages int
	Degraded    bool
	Error       string
	Summary     string
	OccurredAt  time.Time
}

func (e StageCompletedEvent) EventType() string { return TypeStageCompleted }

func (e StageCompletedEvent) Timestamp() time.Time { return e.OccurredAt }

func (e StageCompletedEvent) Payload() map[string]interface{} {
	payload := map[string]interface{}{
		KeyRunID:       e.RunID,
		KeySessionID:   e.SessionID,
		KeyOccurredAt:  e.OccurredAt.UTC().Format(time.RFC3339Nano),
		"stage":        e.Stage,
		"stage_name":   e.StageName,
		"total_stages": e.TotalStages,
		"degraded":     e.Degraded,
		"summary":      e.Summary,
	}
	if e.Error != "" {
		payload["error"] = e.Error
	}
	return payload
}

type RunCompletedEvent struct {
	RunID           string
	SessionID       string
	ConfidenceScore float64
	StagesCompleted int
	StagesDegraded  int
	OccurredAt      time.Time
}

func (e RunCompletedEvent) EventType() string { return TypeRunCompleted }

func (e RunCompletedEvent) Timestamp() time.Time { return e.OccurredAt }

func (e RunCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		KeyRunID:           e.RunID,
		KeySessionID:       e.SessionID,
		KeyOccurredAt:      e.OccurredAt.UTC().Format(time.RFC3339Nano),
		"confidence_score": e.ConfidenceScore,
		"stages_completed": e.StagesCompleted,
		"stages_degraded":  e.StagesDegraded,
	}
}

type RunFailedEvent struct {
	RunID      string
	SessionID  string
	Reason     string
	OccurredAt time.Time
}

func (e RunFailedEvent) EventType() string { return TypeRunFailed }

func (e RunFailedEvent) Timestamp() time.Time { return e.OccurredAt }

func (e RunFailedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		KeyRunID:      e.RunID,
		KeySessionID:  e.SessionID,
		KeyOccurredAt: e.OccurredAt.UTC().Format(time.RFC3339Nano),
		"reason":      e.Reason,
	}
}

// Envelope is the wire form of an event on every bus.
type Envelope struct {
	Type       string                 `json:"type"`
	OccurredAt time.Time              `json:"occurred_at"`
	Data       map[string]interface{} `json:"data"`
}

func ToEnvelope(e Event) Envelope {
	return Envelope{
		Type:       e.EventType(),
		OccurredAt: e.Timestamp().UTC(),
		Data:       e.Payload(),
	}
}

func (env Envelope) Event() BaseEvent {
	return BaseEvent{Type: env.Type, Data: env.Data, OccurredAt: env.OccurredAt}
}
