package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"aidflow-backend/analysis"
	"aidflow-backend/apperr"
	"aidflow-backend/logger"
	"aidflow-backend/metrics"
	"aidflow-backend/models"
	"aidflow-backend/prompt"
	"aidflow-backend/scoring"
	"aidflow-backend/storage"
	"aidflow-backend/workflow"

	"github.com/google/uuid"
)

// ApplicationStore persists and reads applications.
type ApplicationStore interface {
	Create(ctx context.Context, app *models.Application) error
	ListByUserID(ctx context.Context, userID uuid.UUID) ([]*models.Application, error)
	AppliedProgramIDs(ctx context.Context, userID uuid.UUID) ([]string, error)
}

// ProgramStore reads aid programs.
type ProgramStore interface {
	GetByID(ctx context.Context, id string) (*models.AidProgram, error)
	GetByIDs(ctx context.Context, ids []string) ([]*models.AidProgram, error)
}

// UserStore reads applicant accounts and records their documents.
type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	AppendDocument(ctx context.Context, userID uuid.UUID, kind models.DocumentKind, uri string) error
}

// Analyzer runs one eligibility analysis.
type Analyzer interface {
	Provider() string
	Analyze(ctx context.Context, p prompt.Prompt) (*analysis.Analysis, error)
}

// ApplicationService runs the eligibility pipeline: collect documents,
// compose the prompt, analyze, interpret the score and persist.
type ApplicationService struct {
	applications ApplicationStore
	programs     ProgramStore
	users        UserStore
	storage      storage.Storage
	analyzer     Analyzer
	composer     *prompt.Composer
	log          logger.Logger

	persistOnAnalysisFailure bool
	abortOnUploadFailure     bool
}

// ApplicationServiceOption is a functional option for ApplicationService
type ApplicationServiceOption func(*ApplicationService)

// WithApplicationStore sets the application repository
func WithApplicationStore(store ApplicationStore) ApplicationServiceOption {
	return func(s *ApplicationService) {
		s.applications = store
	}
}

// WithProgramStore sets the program repository. When set, submissions to
// unknown programs are rejected before the AI call.
func WithProgramStore(store ProgramStore) ApplicationServiceOption {
	return func(s *ApplicationService) {
		s.programs = store
	}
}

// WithUserStore sets the user repository used to read stored documents.
func WithUserStore(store UserStore) ApplicationServiceOption {
	return func(s *ApplicationService) {
		s.users = store
	}
}

// WithStorage sets the document storage backend
func WithStorage(st storage.Storage) ApplicationServiceOption {
	return func(s *ApplicationService) {
		s.storage = st
	}
}

// WithAnalyzer sets the eligibility analyzer
func WithAnalyzer(a Analyzer) ApplicationServiceOption {
	return func(s *ApplicationService) {
		s.analyzer = a
	}
}

// WithServiceLogger sets the logger
func WithServiceLogger(l logger.Logger) ApplicationServiceOption {
	return func(s *ApplicationService) {
		s.log = l
	}
}

// WithPersistOnAnalysisFailure controls whether an application is still
// recorded when the AI provider is unavailable or times out.
func WithPersistOnAnalysisFailure(persist bool) ApplicationServiceOption {
	return func(s *ApplicationService) {
		s.persistOnAnalysisFailure = persist
	}
}

// WithAbortOnUploadFailure controls whether a failed document upload
// rejects the whole submission.
func WithAbortOnUploadFailure(abort bool) ApplicationServiceOption {
	return func(s *ApplicationService) {
		s.abortOnUploadFailure = abort
	}
}

// NewApplicationService creates a new application service
func NewApplicationService(opts ...ApplicationServiceOption) *ApplicationService {
	s := &ApplicationService{
		composer:                 prompt.NewComposer(),
		log:                      logger.NewNoOpLogger(),
		persistOnAnalysisFailure: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UploadedFile is one document received with a submission.
type UploadedFile struct {
	Kind     models.DocumentKind
	Filename string
	MIMEType string
	Data     []byte
}

// SubmitRequest represents one application submission
type SubmitRequest struct {
	UserID          uuid.UUID
	ProgramID       string
	ProfileData     string
	Category        string
	BackgroundStory string
	Files           []UploadedFile
}

// SubmitResult represents the outcome of a submission
type SubmitResult struct {
	ApplicationID      uuid.UUID
	Status             models.AdminStatus
	EligibilityScore   *int
	EligibilityStatus  scoring.EligibilityStatus
	EligibilityMetrics *models.EligibilityResult
	Outcome            analysis.Outcome
	Documents          []string
	DocumentErrors     []models.DocumentError
	AnalysisError      string
	Workflow           workflow.Snapshot
}

// JobResult summarizes the submission for a background job.
func (r *SubmitResult) JobResult() models.JobResult {
	return models.JobResult{
		EligibilityScore:  r.EligibilityScore,
		EligibilityStatus: string(r.EligibilityStatus),
		Metrics:           r.EligibilityMetrics,
		DocumentErrors:    r.DocumentErrors,
		AnalysisError:     r.AnalysisError,
	}
}

// SubmitError is returned when a submission stops before an application is
// recorded. It carries the per-document failures collected so far.
type SubmitError struct {
	Err            error
	DocumentErrors []models.DocumentError
	Workflow       workflow.Snapshot
}

func (e *SubmitError) Error() string { return e.Err.Error() }
func (e *SubmitError) Unwrap() error { return e.Err }

// Validate checks a submission without touching any collaborator and
// returns the decoded profile.
func (s *ApplicationService) Validate(req SubmitRequest) (models.ProfileData, error) {
	if req.UserID == uuid.Nil {
		return nil, fmt.Errorf("%w: userId is required", apperr.ErrInvalidInput)
	}
	if strings.TrimSpace(req.ProgramID) == "" {
		return nil, fmt.Errorf("%w: aidProgramId is required", apperr.ErrInvalidInput)
	}
	for _, f := range req.Files {
		if !f.Kind.Valid() {
			return nil, fmt.Errorf("%w: unknown document kind %q", apperr.ErrInvalidInput, f.Kind)
		}
	}
	return prompt.DecodeProfile(req.ProfileData)
}

// Submit runs the pipeline with a fresh workflow tracker.
func (s *ApplicationService) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	return s.SubmitTracked(ctx, req, workflow.NewTracker())
}

// SubmitTracked runs the pipeline and reports every stage transition to
// tracker. Stages only complete after their step returned; on a terminal
// error the tracker is failed and stages stay frozen.
func (s *ApplicationService) SubmitTracked(ctx context.Context, req SubmitRequest, tracker *workflow.Tracker) (*SubmitResult, error) {
	if err := s.checkDependencies(); err != nil {
		return nil, err
	}

	profile, err := s.Validate(req)
	if err != nil {
		return nil, err
	}

	log := s.log.WithFields(map[string]interface{}{
		"user_id":    req.UserID.String(),
		"program_id": req.ProgramID,
	})

	fail := func(err error, docErrs []models.DocumentError) (*SubmitResult, error) {
		tracker.Fail(err)
		return nil, &SubmitError{Err: err, DocumentErrors: docErrs, Workflow: tracker.Snapshot()}
	}

	if s.programs != nil {
		if _, err := s.programs.GetByID(ctx, req.ProgramID); err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				return nil, fmt.Errorf("%w: aid program %s does not exist", apperr.ErrInvalidInput, req.ProgramID)
			}
			return nil, fmt.Errorf("%w: failed to load aid program: %v", apperr.ErrPersistenceFailure, err)
		}
	}

	var user *models.User
	if s.users != nil {
		user, err = s.users.GetByID(ctx, req.UserID)
		if err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				return nil, fmt.Errorf("%w: user %s does not exist", apperr.ErrInvalidInput, req.UserID)
			}
			return nil, fmt.Errorf("%w: failed to load user: %v", apperr.ErrPersistenceFailure, err)
		}
	}

	// Stage 1: documents.
	_ = tracker.Start(workflow.StageDocAnalysis)
	collected := s.collectDocuments(ctx, req, user)
	if len(collected.errors) > 0 {
		log.Warn("some documents could not be stored", map[string]interface{}{
			"failed": len(collected.errors),
		})
		if s.abortOnUploadFailure {
			return fail(fmt.Errorf("%w: %d document(s) could not be stored", apperr.ErrDocumentUpload, len(collected.errors)), collected.errors)
		}
	}

	p, err := s.composer.Compose(prompt.Input{
		Profile:         profile,
		Category:        req.Category,
		BackgroundStory: req.BackgroundStory,
		Documents:       collected.prompt,
	})
	if err != nil {
		return fail(err, collected.errors)
	}
	_ = tracker.Complete(workflow.StageDocAnalysis)

	// Stage 2: program requirements, the AI call.
	_ = tracker.Start(workflow.StageProgramReq)
	result := &SubmitResult{
		Status:         models.AdminStatusPending,
		Documents:      collected.uris,
		DocumentErrors: collected.errors,
	}

	analyzed, err := s.analyzer.Analyze(ctx, p)
	if err != nil {
		log.Error("eligibility analysis failed", map[string]interface{}{
			"provider": s.analyzer.Provider(),
			"error":    err.Error(),
		})
		if !s.persistOnAnalysisFailure {
			return fail(err, collected.errors)
		}
		result.AnalysisError = err.Error()
		// The row is persisted anyway, so the stage closes flagged degraded
		// rather than staying open.
		_ = tracker.CompleteDegraded(workflow.StageProgramReq)
	} else {
		_ = tracker.Complete(workflow.StageProgramReq)
	}

	// Stage 3: approval rate.
	_ = tracker.Start(workflow.StageCalcRate)
	rawResult := ""
	if analyzed != nil {
		rawResult = analyzed.Raw
		result.EligibilityScore = analyzed.Score
		result.EligibilityMetrics = analyzed.Result
		result.Outcome = analyzed.Outcome
	} else {
		rawResult = result.AnalysisError
	}
	result.EligibilityStatus = scoring.Interpret(result.EligibilityScore)
	if result.EligibilityScore == nil {
		_ = tracker.CompleteDegraded(workflow.StageCalcRate)
	} else {
		_ = tracker.Complete(workflow.StageCalcRate)
	}

	// Stage 4: persist.
	_ = tracker.Start(workflow.StageSendData)
	app := &models.Application{
		UserID:             req.UserID,
		ProgramID:          req.ProgramID,
		Status:             result.Status,
		EligibilityScore:   result.EligibilityScore,
		AnalysisResult:     rawResult,
		EligibilityMetrics: result.EligibilityMetrics,
		Documents:          collected.uris,
		ProfileData:        profile,
	}
	if req.Category != "" {
		category := req.Category
		app.Category = &category
	}
	if err := s.applications.Create(ctx, app); err != nil {
		log.Error("failed to persist application", map[string]interface{}{"error": err.Error()})
		return fail(fmt.Errorf("%w: %v", apperr.ErrPersistenceFailure, err), collected.errors)
	}
	_ = tracker.Complete(workflow.StageSendData)

	result.ApplicationID = app.ID
	result.Workflow = tracker.Snapshot()
	metrics.ApplicationsSubmitted.WithLabelValues(string(result.EligibilityStatus)).Inc()

	log.Info("application submitted", map[string]interface{}{
		"application_id":     app.ID.String(),
		"eligibility_status": string(result.EligibilityStatus),
		"outcome":            string(result.Outcome),
		"documents":          len(collected.uris),
	})

	return result, nil
}

func (s *ApplicationService) checkDependencies() error {
	if s.applications == nil {
		return fmt.Errorf("%w: application repository not set", apperr.ErrConfigurationMissing)
	}
	if s.analyzer == nil {
		return fmt.Errorf("%w: analyzer not set", apperr.ErrConfigurationMissing)
	}
	return nil
}

type collectedDocuments struct {
	prompt []prompt.Document
	uris   []string
	errors []models.DocumentError
}

// collectDocuments stores freshly uploaded files and gathers the URIs of
// documents already on the user's profile. Uploaded images are always
// passed inline, even when storing them failed, so a storage outage does
// not reduce what the analyzer sees.
func (s *ApplicationService) collectDocuments(ctx context.Context, req SubmitRequest, user *models.User) collectedDocuments {
	var out collectedDocuments
	seen := make(map[string]bool)
	counts := make(map[models.DocumentKind]int)

	for _, f := range req.Files {
		counts[f.Kind]++
		label := string(f.Kind)
		if counts[f.Kind] > 1 {
			label = fmt.Sprintf("%s_%d", f.Kind, counts[f.Kind])
		}
		mimeType := f.MIMEType
		if mimeType == "" {
			mimeType = storage.DetectContentType(f.Filename)
		}

		uri, err := s.storeUpload(ctx, req.UserID, f, mimeType)
		if err != nil {
			metrics.DocumentUploadFailures.WithLabelValues(string(f.Kind)).Inc()
			out.errors = append(out.errors, models.DocumentError{
				Kind:     f.Kind,
				Filename: f.Filename,
				Error:    err.Error(),
			})
		} else if !seen[uri] {
			seen[uri] = true
			out.uris = append(out.uris, uri)
		}

		switch {
		case len(f.Data) > 0 && strings.HasPrefix(mimeType, "image/"):
			out.prompt = append(out.prompt, prompt.Document{Label: label, MIMEType: mimeType, Data: f.Data, URI: uri})
		case uri != "":
			out.prompt = append(out.prompt, prompt.Document{Label: label, MIMEType: mimeType, URI: uri})
		}
	}

	if user != nil {
		for i, uri := range user.DocumentURIs() {
			if uri == "" || seen[uri] {
				continue
			}
			seen[uri] = true
			out.uris = append(out.uris, uri)
			out.prompt = append(out.prompt, prompt.Document{
				Label:    fmt.Sprintf("stored_document_%d", i+1),
				MIMEType: storage.DetectContentType(uri),
				URI:      uri,
			})
		}
	}

	if out.uris == nil {
		out.uris = []string{}
	}
	return out
}

func (s *ApplicationService) storeUpload(ctx context.Context, userID uuid.UUID, f UploadedFile, mimeType string) (string, error) {
	if len(f.Data) == 0 {
		return "", fmt.Errorf("%w: %s is empty", apperr.ErrDocumentUpload, f.Filename)
	}
	if s.storage == nil {
		return "", fmt.Errorf("%w: no storage backend configured", apperr.ErrDocumentUpload)
	}
	key := storage.ObjectKey{
		FileID:   uuid.New(),
		Owner:    userID.String(),
		Kind:     string(f.Kind),
		Filename: f.Filename,
	}
	path, err := s.storage.Upload(ctx, key, mimeType, bytes.NewReader(f.Data))
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperr.ErrDocumentUpload, err)
	}
	return s.storage.URL(path), nil
}

// AnalyzeRequest is a dry-run analysis that is never persisted.
type AnalyzeRequest struct {
	Profile         models.ProfileData
	Category        string
	BackgroundStory string
	Documents       []prompt.Document
}

// AnalyzeResult is the outcome of a dry run.
type AnalyzeResult struct {
	EligibilityScore   *int
	EligibilityStatus  scoring.EligibilityStatus
	EligibilityMetrics *models.EligibilityResult
	Outcome            analysis.Outcome
	Raw                string
}

// Analyze composes, analyzes and interprets without storing anything.
// Provider failures are returned as errors.
func (s *ApplicationService) Analyze(ctx context.Context, req AnalyzeRequest) (*AnalyzeResult, error) {
	if s.analyzer == nil {
		return nil, fmt.Errorf("%w: analyzer not set", apperr.ErrConfigurationMissing)
	}
	p, err := s.composer.Compose(prompt.Input{
		Profile:         req.Profile,
		Category:        req.Category,
		BackgroundStory: req.BackgroundStory,
		Documents:       req.Documents,
	})
	if err != nil {
		return nil, err
	}
	analyzed, err := s.analyzer.Analyze(ctx, p)
	if err != nil {
		return nil, err
	}
	return &AnalyzeResult{
		EligibilityScore:   analyzed.Score,
		EligibilityStatus:  scoring.Interpret(analyzed.Score),
		EligibilityMetrics: analyzed.Result,
		Outcome:            analyzed.Outcome,
		Raw:                analyzed.Raw,
	}, nil
}

// ApplicationView is an application with its derived eligibility status.
// Status stays the administrative review state.
type ApplicationView struct {
	*models.Application
	EligibilityStatus scoring.EligibilityStatus `json:"eligibility_status"`
}

// ListApplications returns a user's applications, newest first.
func (s *ApplicationService) ListApplications(ctx context.Context, userID uuid.UUID) ([]ApplicationView, error) {
	if s.applications == nil {
		return nil, fmt.Errorf("%w: application repository not set", apperr.ErrConfigurationMissing)
	}
	apps, err := s.applications.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrPersistenceFailure, err)
	}
	views := make([]ApplicationView, 0, len(apps))
	for _, app := range apps {
		views = append(views, ApplicationView{
			Application:       app,
			EligibilityStatus: scoring.Interpret(app.EligibilityScore),
		})
	}
	return views, nil
}

// AppliedPrograms returns the distinct programs a user has applied to.
func (s *ApplicationService) AppliedPrograms(ctx context.Context, userID uuid.UUID) ([]*models.AidProgram, error) {
	if s.applications == nil || s.programs == nil {
		return nil, fmt.Errorf("%w: application or program repository not set", apperr.ErrConfigurationMissing)
	}
	ids, err := s.applications.AppliedProgramIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrPersistenceFailure, err)
	}
	programs, err := s.programs.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrPersistenceFailure, err)
	}
	return programs, nil
}
