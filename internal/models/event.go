// internal/models/event.go
package models

import "time"

// Workflow event types.
const (
	EventBatchGenerated  = "batch_generated"
	EventChoiceCommitted = "choice_committed"
)

// WorkflowEvent is pushed to subscribers of a project.
type WorkflowEvent struct {
	Type        string         `json:"type"`
	ProjectID   string         `json:"project_id"`
	Stage       Stage          `json:"stage"`
	BatchID     string         `json:"batch_id,omitempty"`
	CandidateID string         `json:"candidate_id,omitempty"`
	Next        Stage          `json:"next,omitempty"`
	Fallback    bool           `json:"fallback,omitempty"`
	Quality     *QualityRecord `json:"quality,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}
