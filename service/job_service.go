package service

import (
	"context"
	"errors"
	"fmt"

	"aidflow-backend/apperr"
	"aidflow-backend/logger"
	"aidflow-backend/metrics"
	"aidflow-backend/models"
	"aidflow-backend/workflow"

	"github.com/google/uuid"
)

// JobStore persists background submissions.
type JobStore interface {
	Create(ctx context.Context, job *models.ApplicationJob) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.ApplicationJob, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.ApplicationJobStatus) error
	UpdateProgress(ctx context.Context, id uuid.UUID, currentStage string, stages workflow.Stages) error
	Complete(ctx context.Context, id uuid.UUID, applicationID *uuid.UUID, result models.JobResult) error
	Fail(ctx context.Context, id uuid.UUID, errorMessage string, result *models.JobResult) error
}

// JobService runs submissions in the background and records their
// workflow so clients can poll progress.
type JobService struct {
	jobs         JobStore
	applications *ApplicationService
	log          logger.Logger
}

// JobServiceOption is a functional option for JobService
type JobServiceOption func(*JobService)

// WithJobStore sets the application job repository
func WithJobStore(store JobStore) JobServiceOption {
	return func(s *JobService) {
		s.jobs = store
	}
}

// WithApplicationService sets the pipeline the jobs run
func WithApplicationService(app *ApplicationService) JobServiceOption {
	return func(s *JobService) {
		s.applications = app
	}
}

// WithJobLogger sets the logger
func WithJobLogger(l logger.Logger) JobServiceOption {
	return func(s *JobService) {
		s.log = l
	}
}

// NewJobService creates a new job service
func NewJobService(opts ...JobServiceOption) *JobService {
	s := &JobService{log: logger.NewNoOpLogger()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var ErrJobNotFound = errors.New("application job not found")

// Enqueue validates the submission and records a pending job. It returns
// immediately; the caller starts Process in the background.
func (s *JobService) Enqueue(ctx context.Context, req SubmitRequest) (*models.ApplicationJob, error) {
	if s.jobs == nil || s.applications == nil {
		return nil, fmt.Errorf("%w: job service not configured", apperr.ErrConfigurationMissing)
	}
	if _, err := s.applications.Validate(req); err != nil {
		return nil, err
	}

	job := &models.ApplicationJob{
		UserID:    req.UserID,
		ProgramID: req.ProgramID,
		Status:    models.JobStatusPending,
		Stages:    workflow.DefaultStages(),
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("%w: failed to create application job: %v", apperr.ErrPersistenceFailure, err)
	}
	return job, nil
}

// Process runs the pipeline for a job created by Enqueue. Every workflow
// transition is written back to the job row.
func (s *JobService) Process(ctx context.Context, jobID uuid.UUID, req SubmitRequest) error {
	if s.jobs == nil || s.applications == nil {
		return fmt.Errorf("%w: job service not configured", apperr.ErrConfigurationMissing)
	}

	metrics.ApplicationJobsActive.Inc()
	defer metrics.ApplicationJobsActive.Dec()

	log := s.log.WithFields(map[string]interface{}{"job_id": jobID.String()})

	if err := s.jobs.UpdateStatus(ctx, jobID, models.JobStatusInProgress); err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}

	tracker := workflow.NewTracker(workflow.WithObserver(func(snap workflow.Snapshot) {
		if err := s.jobs.UpdateProgress(ctx, jobID, string(snap.Current), snap.Stages); err != nil {
			log.Warn("failed to record workflow progress", map[string]interface{}{"error": err.Error()})
		}
	}))

	result, err := s.applications.SubmitTracked(ctx, req, tracker)
	if err != nil {
		var partial *models.JobResult
		var submitErr *SubmitError
		if errors.As(err, &submitErr) && len(submitErr.DocumentErrors) > 0 {
			partial = &models.JobResult{DocumentErrors: submitErr.DocumentErrors}
		}
		s.markJobFailed(ctx, jobID, err.Error(), partial)
		return err
	}

	appID := result.ApplicationID
	if err := s.jobs.Complete(ctx, jobID, &appID, result.JobResult()); err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}

	log.Info("application job completed", map[string]interface{}{
		"application_id": appID.String(),
	})
	return nil
}

// GetJob retrieves a job with its stages and result.
func (s *JobService) GetJob(ctx context.Context, jobID uuid.UUID) (*models.ApplicationJob, error) {
	if s.jobs == nil {
		return nil, fmt.Errorf("%w: job repository not set", apperr.ErrConfigurationMissing)
	}
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, fmt.Errorf("%w: %w", apperr.ErrNotFound, ErrJobNotFound)
		}
		return nil, fmt.Errorf("%w: %v", apperr.ErrPersistenceFailure, err)
	}
	return job, nil
}

func (s *JobService) markJobFailed(ctx context.Context, jobID uuid.UUID, errorMessage string, result *models.JobResult) {
	if err := s.jobs.Fail(ctx, jobID, errorMessage, result); err != nil {
		s.log.Error("failed to mark job failed", map[string]interface{}{
			"job_id": jobID.String(),
			"error":  err.Error(),
		})
	}
}
