package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"aidflow-backend/workflow"

	"github.com/google/uuid"
)

// ApplicationJobStatus represents the status of an asynchronous submission
type ApplicationJobStatus string

const (
	JobStatusPending    ApplicationJobStatus = "pending"
	JobStatusInProgress ApplicationJobStatus = "in_progress"
	JobStatusCompleted  ApplicationJobStatus = "completed"
	JobStatusFailed     ApplicationJobStatus = "failed"
)

// ApplicationJob tracks one submission processed in the background.
type ApplicationJob struct {
	ID            uuid.UUID            `json:"id"`
	UserID        uuid.UUID            `json:"user_id"`
	ProgramID     string               `json:"program_id"`
	Status        ApplicationJobStatus `json:"status"`
	CurrentStage  *string              `json:"current_stage,omitempty"`
	Stages        workflow.Stages      `json:"stages"`
	ApplicationID *uuid.UUID           `json:"application_id,omitempty"`
	Result        *JobResult           `json:"result,omitempty"`
	ErrorMessage  *string              `json:"error_message,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
	CompletedAt   *time.Time           `json:"completed_at,omitempty"`
}

// DocumentError records one document that could not be stored.
type DocumentError struct {
	Kind     DocumentKind `json:"kind"`
	Filename string       `json:"filename"`
	Error    string       `json:"error"`
}

// JobResult is the summary stored on a finished job.
type JobResult struct {
	EligibilityScore  *int               `json:"eligibilityScore"`
	EligibilityStatus string             `json:"eligibilityStatus"`
	Metrics           *EligibilityResult `json:"eligibilityMetrics"`
	DocumentErrors    []DocumentError    `json:"documentErrors,omitempty"`
	AnalysisError     string             `json:"analysisError,omitempty"`
}

// Value implements driver.Valuer for JSONB
func (r JobResult) Value() (driver.Value, error) {
	return json.Marshal(r)
}

// Scan implements sql.Scanner for JSONB
func (r *JobResult) Scan(value interface{}) error {
	switch v := value.(type) {
	case []byte:
		if len(v) == 0 {
			return nil
		}
		return json.Unmarshal(v, r)
	case string:
		return json.Unmarshal([]byte(v), r)
	default:
		return nil
	}
}
