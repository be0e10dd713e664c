package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"aidflow-backend/analysis"
	"aidflow-backend/apperr"
	"aidflow-backend/models"
	"aidflow-backend/prompt"
	"aidflow-backend/storage"
	"aidflow-backend/workflow"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func resultJSON(t testing.TB, overall int) string {
	t.Helper()
	metrics := make([]models.EligibilityMetric, 0, len(models.MetricNames))
	for _, name := range models.MetricNames {
		metrics = append(metrics, models.EligibilityMetric{
			Name:        name,
			Score:       overall / 5,
			MaxScore:    models.MetricMaxScore,
			Explanation: "consistent with the documents",
		})
	}
	b, err := json.Marshal(models.EligibilityResult{
		OverallScore:    overall,
		Metrics:         metrics,
		Summary:         "Household income is below the program threshold.",
		ConfidenceLevel: models.ConfidenceHigh,
	})
	require.NoError(t, err)
	return string(b)
}

// scriptedProvider answers with reply or err and records every prompt.
type scriptedProvider struct {
	mu      sync.Mutex
	reply   string
	err     error
	prompts []prompt.Prompt
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Generate(_ context.Context, pr prompt.Prompt) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prompts = append(p.prompts, pr)
	return p.reply, p.err
}

func (p *scriptedProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.prompts)
}

func newTestAnalyzer(p analysis.Provider) *analysis.Analyzer {
	return analysis.NewAnalyzer(p,
		analysis.WithMaxAttempts(1),
		analysis.WithInitialBackoff(time.Millisecond),
		analysis.WithTimeout(5*time.Second),
	)
}

type memoryApplicationStore struct {
	mu      sync.Mutex
	created []*models.Application
	err     error
	applied []string
}

func (s *memoryApplicationStore) Create(_ context.Context, app *models.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	app.ID = uuid.New()
	app.CreatedAt = time.Now()
	s.created = append(s.created, app)
	return nil
}

func (s *memoryApplicationStore) ListByUserID(_ context.Context, userID uuid.UUID) ([]*models.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Application
	for i := len(s.created) - 1; i >= 0; i-- {
		if s.created[i].UserID == userID {
			out = append(out, s.created[i])
		}
	}
	return out, nil
}

func (s *memoryApplicationStore) AppliedProgramIDs(context.Context, uuid.UUID) ([]string, error) {
	return s.applied, nil
}

type memoryProgramStore map[string]*models.AidProgram

func (s memoryProgramStore) GetByID(_ context.Context, id string) (*models.AidProgram, error) {
	if p, ok := s[id]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("aid program %s: %w", id, apperr.ErrNotFound)
}

func (s memoryProgramStore) GetByIDs(_ context.Context, ids []string) ([]*models.AidProgram, error) {
	var out []*models.AidProgram
	for _, id := range ids {
		if p, ok := s[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

type memoryUserStore struct {
	mu       sync.Mutex
	users    map[uuid.UUID]*models.User
	appended []string
}

func (s *memoryUserStore) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	return nil, fmt.Errorf("user %s: %w", id, apperr.ErrNotFound)
}

func (s *memoryUserStore) AppendDocument(_ context.Context, userID uuid.UUID, kind models.DocumentKind, uri string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; !ok {
		return fmt.Errorf("user %s: %w", userID, apperr.ErrNotFound)
	}
	s.appended = append(s.appended, string(kind)+"="+uri)
	return nil
}

// brokenStorage fails every upload.
type brokenStorage struct{}

func (brokenStorage) Upload(context.Context, storage.ObjectKey, string, io.Reader) (string, error) {
	return "", errors.New("bucket unreachable")
}
func (brokenStorage) Download(context.Context, string) (io.ReadCloser, error) {
	return nil, errors.New("bucket unreachable")
}
func (brokenStorage) Delete(context.Context, string) error { return nil }
func (brokenStorage) URL(p string) string                  { return "https://files.test/" + p }

func newLocalStorage(t *testing.T) *storage.LocalStorage {
	t.Helper()
	st, err := storage.NewLocalStorage(t.TempDir(), "https://files.test")
	require.NoError(t, err)
	return st
}

type memoryDocumentStore struct {
	mu   sync.Mutex
	docs map[uuid.UUID]*models.Document
	err  error
}

func (s *memoryDocumentStore) Create(_ context.Context, doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if s.docs == nil {
		s.docs = make(map[uuid.UUID]*models.Document)
	}
	doc.CreatedAt = time.Now()
	s.docs[doc.ID] = doc
	return nil
}

func (s *memoryDocumentStore) GetByID(_ context.Context, id uuid.UUID) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.docs[id]; ok {
		return d, nil
	}
	return nil, fmt.Errorf("document %s: %w", id, apperr.ErrNotFound)
}

func (s *memoryDocumentStore) ListByUserID(_ context.Context, userID uuid.UUID) ([]*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Document
	for _, d := range s.docs {
		if d.UserID == userID {
			out = append(out, d)
		}
	}
	return out, nil
}

type memoryJobStore struct {
	mu        sync.Mutex
	jobs      map[uuid.UUID]*models.ApplicationJob
	progress  []string
	completed *models.JobResult
	failedMsg string
	failedRes *models.JobResult
}

func newMemoryJobStore() *memoryJobStore {
	return &memoryJobStore{jobs: make(map[uuid.UUID]*models.ApplicationJob)}
}

func (s *memoryJobStore) Create(_ context.Context, job *models.ApplicationJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job.ID = uuid.New()
	job.CreatedAt = time.Now()
	job.UpdatedAt = job.CreatedAt
	s.jobs[job.ID] = job
	return nil
}

func (s *memoryJobStore) GetByID(_ context.Context, id uuid.UUID) (*models.ApplicationJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[id]; ok {
		return j, nil
	}
	return nil, fmt.Errorf("application job %s: %w", id, apperr.ErrNotFound)
}

func (s *memoryJobStore) UpdateStatus(_ context.Context, id uuid.UUID, status models.ApplicationJobStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[id].Status = status
	return nil
}

func (s *memoryJobStore) UpdateProgress(_ context.Context, id uuid.UUID, current string, stages workflow.Stages) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job := s.jobs[id]
	job.CurrentStage = &current
	job.Stages = stages
	s.progress = append(s.progress, current)
	return nil
}

func (s *memoryJobStore) Complete(_ context.Context, id uuid.UUID, appID *uuid.UUID, result models.JobResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job := s.jobs[id]
	job.Status = models.JobStatusCompleted
	job.ApplicationID = appID
	job.Result = &result
	s.completed = &result
	return nil
}

func (s *memoryJobStore) Fail(_ context.Context, id uuid.UUID, msg string, result *models.JobResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job := s.jobs[id]
	job.Status = models.JobStatusFailed
	job.ErrorMessage = &msg
	job.Result = result
	s.failedMsg = msg
	s.failedRes = result
	return nil
}

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 16)...)
