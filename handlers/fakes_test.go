package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"sync"
	"testing"
	"time"

	"aidflow-backend/analysis"
	"aidflow-backend/apperr"
	"aidflow-backend/models"
	"aidflow-backend/prompt"
	"aidflow-backend/workflow"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func replyJSON(t testing.TB, overall int) string {
	t.Helper()
	metrics := make([]models.EligibilityMetric, 0, len(models.MetricNames))
	for _, name := range models.MetricNames {
		metrics = append(metrics, models.EligibilityMetric{
			Name:        name,
			Score:       overall / 5,
			MaxScore:    models.MetricMaxScore,
			Explanation: "matches the pay slip",
		})
	}
	b, err := json.Marshal(models.EligibilityResult{
		OverallScore:    overall,
		Metrics:         metrics,
		Summary:         "Income is below the threshold.",
		ConfidenceLevel: models.ConfidenceMedium,
	})
	require.NoError(t, err)
	return string(b)
}

type stubProvider struct {
	mu    sync.Mutex
	reply string
	err   error
	calls int
	// release, when set, holds every call until it is closed.
	release chan struct{}
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) Generate(context.Context, prompt.Prompt) (string, error) {
	if p.release != nil {
		<-p.release
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return p.reply, p.err
}

func (p *stubProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func stubAnalyzer(p analysis.Provider) *analysis.Analyzer {
	return analysis.NewAnalyzer(p,
		analysis.WithMaxAttempts(1),
		analysis.WithInitialBackoff(time.Millisecond),
		analysis.WithTimeout(5*time.Second),
	)
}

type appStore struct {
	mu   sync.Mutex
	apps []*models.Application
}

func (s *appStore) Create(_ context.Context, app *models.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	app.ID = uuid.New()
	app.CreatedAt = time.Now()
	s.apps = append(s.apps, app)
	return nil
}

func (s *appStore) ListByUserID(_ context.Context, userID uuid.UUID) ([]*models.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Application
	for _, a := range s.apps {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *appStore) AppliedProgramIDs(_ context.Context, userID uuid.UUID) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[string]bool{}
	ids := []string{}
	for _, a := range s.apps {
		if a.UserID == userID && !seen[a.ProgramID] {
			seen[a.ProgramID] = true
			ids = append(ids, a.ProgramID)
		}
	}
	return ids, nil
}

type programStore map[string]*models.AidProgram

func (s programStore) GetByID(_ context.Context, id string) (*models.AidProgram, error) {
	if p, ok := s[id]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("aid program %s: %w", id, apperr.ErrNotFound)
}

func (s programStore) GetByIDs(_ context.Context, ids []string) ([]*models.AidProgram, error) {
	out := []*models.AidProgram{}
	for _, id := range ids {
		if p, ok := s[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

type userStore struct {
	mu    sync.Mutex
	users map[uuid.UUID]*models.User
}

func (s *userStore) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	return nil, fmt.Errorf("user %s: %w", id, apperr.ErrNotFound)
}

func (s *userStore) AppendDocument(_ context.Context, userID uuid.UUID, kind models.DocumentKind, uri string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("user %s: %w", userID, apperr.ErrNotFound)
	}
	switch kind {
	case models.DocumentPaySlip:
		u.ProveOfIncome = &uri
	case models.DocumentAdditional:
		u.AdditionalDocument = append(u.AdditionalDocument, uri)
	default:
		u.ProveOfIdentity = append(u.ProveOfIdentity, uri)
	}
	return nil
}

type documentStore struct {
	mu   sync.Mutex
	docs map[uuid.UUID]*models.Document
}

func (s *documentStore) Create(_ context.Context, doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.docs == nil {
		s.docs = make(map[uuid.UUID]*models.Document)
	}
	doc.CreatedAt = time.Now()
	s.docs[doc.ID] = doc
	return nil
}

func (s *documentStore) GetByID(_ context.Context, id uuid.UUID) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.docs[id]; ok {
		return d, nil
	}
	return nil, fmt.Errorf("document %s: %w", id, apperr.ErrNotFound)
}

func (s *documentStore) ListByUserID(_ context.Context, userID uuid.UUID) ([]*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*models.Document{}
	for _, d := range s.docs {
		if d.UserID == userID {
			out = append(out, d)
		}
	}
	return out, nil
}

// jobStore hands out copies so background updates never race with reads.
type jobStore struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]models.ApplicationJob
}

func (s *jobStore) Create(_ context.Context, job *models.ApplicationJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.jobs == nil {
		s.jobs = make(map[uuid.UUID]models.ApplicationJob)
	}
	job.ID = uuid.New()
	job.CreatedAt = time.Now()
	job.UpdatedAt = job.CreatedAt
	cp := *job
	cp.Stages = append(workflow.Stages(nil), job.Stages...)
	s.jobs[job.ID] = cp
	return nil
}

func (s *jobStore) GetByID(_ context.Context, id uuid.UUID) (*models.ApplicationJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("application job %s: %w", id, apperr.ErrNotFound)
	}
	return &j, nil
}

func (s *jobStore) all() []models.ApplicationJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ApplicationJob, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j)
	}
	return out
}

func (s *jobStore) update(id uuid.UUID, fn func(*models.ApplicationJob)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("application job %s: %w", id, apperr.ErrNotFound)
	}
	fn(&j)
	s.jobs[id] = j
	return nil
}

func (s *jobStore) UpdateStatus(_ context.Context, id uuid.UUID, status models.ApplicationJobStatus) error {
	return s.update(id, func(j *models.ApplicationJob) { j.Status = status })
}

func (s *jobStore) UpdateProgress(_ context.Context, id uuid.UUID, current string, stages workflow.Stages) error {
	stages = append(workflow.Stages(nil), stages...)
	return s.update(id, func(j *models.ApplicationJob) {
		j.CurrentStage = &current
		j.Stages = stages
	})
}

func (s *jobStore) Complete(_ context.Context, id uuid.UUID, appID *uuid.UUID, result models.JobResult) error {
	return s.update(id, func(j *models.ApplicationJob) {
		j.Status = models.JobStatusCompleted
		j.ApplicationID = appID
		j.Result = &result
	})
}

func (s *jobStore) Fail(_ context.Context, id uuid.UUID, msg string, result *models.JobResult) error {
	return s.update(id, func(j *models.ApplicationJob) {
		j.Status = models.JobStatusFailed
		j.ErrorMessage = &msg
		j.Result = result
	})
}

var pngData = append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 16)...)

type formFile struct {
	field    string
	filename string
	mimeType string
	data     []byte
}

func multipartRequest(t *testing.T, method, target string, fields map[string]string, files ...formFile) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, f.field, f.filename))
		h.Set("Content-Type", f.mimeType)
		part, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}
