package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"aidflow-backend/models"
	"aidflow-backend/workflow"

	"github.com/google/uuid"
)

// ApplicationJobRepository handles database operations for background submissions
type ApplicationJobRepository struct {
	db DBTX
}

// NewApplicationJobRepository creates a new application job repository
func NewApplicationJobRepository(db DBTX) *ApplicationJobRepository {
	return &ApplicationJobRepository{db: db}
}

// Create creates a new application job
func (r *ApplicationJobRepository) Create(ctx context.Context, job *models.ApplicationJob) error {
	if job.Stages == nil {
		job.Stages = workflow.DefaultStages()
	}

	query := `
		INSERT INTO application_jobs (
			user_id, program_id, status, current_stage, stages
		) VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`

	return r.db.QueryRow(
		ctx, query,
		job.UserID,
		job.ProgramID,
		job.Status,
		job.CurrentStage,
		job.Stages,
	).Scan(&job.ID, &job.CreatedAt, &job.UpdatedAt)
}

// GetByID retrieves an application job by ID
func (r *ApplicationJobRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ApplicationJob, error) {
	job := &models.ApplicationJob{}
	var result []byte
	query := `
		SELECT id, user_id, program_id, status, current_stage, stages,
			application_id, result, error_message,
			created_at, updated_at, completed_at
		FROM application_jobs
		WHERE id = $1`

	err := r.db.QueryRow(ctx, query, id).Scan(
		&job.ID,
		&job.UserID,
		&job.ProgramID,
		&job.Status,
		&job.CurrentStage,
		&job.Stages,
		&job.ApplicationID,
		&result,
		&job.ErrorMessage,
		&job.CreatedAt,
		&job.UpdatedAt,
		&job.CompletedAt,
	)
	if err != nil {
		return nil, notFound(err, "application job "+id.String())
	}

	if job.Stages == nil {
		job.Stages = make(workflow.Stages, 0)
	}
	if len(result) > 0 {
		job.Result = &models.JobResult{}
		if err := json.Unmarshal(result, job.Result); err != nil {
			return nil, fmt.Errorf("failed to decode job result for %s: %w", id, err)
		}
	}

	return job, nil
}

// UpdateStatus updates the status of an application job
func (r *ApplicationJobRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.ApplicationJobStatus) error {
	query := `
		UPDATE application_jobs SET
			status = $2,
			updated_at = NOW()
		WHERE id = $1`

	_, err := r.db.Exec(ctx, query, id, status)
	return err
}

// UpdateProgress stores the latest workflow snapshot
func (r *ApplicationJobRepository) UpdateProgress(ctx context.Context, id uuid.UUID, currentStage string, stages workflow.Stages) error {
	query := `
		UPDATE application_jobs SET
			current_stage = $2,
			stages = $3,
			updated_at = NOW()
		WHERE id = $1`

	_, err := r.db.Exec(ctx, query, id, currentStage, stages)
	return err
}

// Complete marks an application job as completed with its outcome
func (r *ApplicationJobRepository) Complete(ctx context.Context, id uuid.UUID, applicationID *uuid.UUID, result models.JobResult) error {
	now := time.Now()
	query := `
		UPDATE application_jobs SET
			status = $2,
			application_id = $3,
			result = $4,
			completed_at = $5,
			updated_at = $5
		WHERE id = $1`

	_, err := r.db.Exec(ctx, query, id, models.JobStatusCompleted, applicationID, result, now)
	return err
}

// Fail marks an application job as failed
func (r *ApplicationJobRepository) Fail(ctx context.Context, id uuid.UUID, errorMessage string, result *models.JobResult) error {
	query := `
		UPDATE application_jobs SET
			status = $2,
			error_message = $3,
			result = $4,
			updated_at = NOW()
		WHERE id = $1`

	_, err := r.db.Exec(ctx, query, id, models.JobStatusFailed, errorMessage, result)
	return err
}
