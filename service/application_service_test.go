package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"aidflow-backend/analysis"
	"aidflow-backend/apperr"
	"aidflow-backend/logger"
	"aidflow-backend/models"
	"aidflow-backend/prompt"
	"aidflow-backend/scoring"
	"aidflow-backend/workflow"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pipeline struct {
	svc      *ApplicationService
	provider *scriptedProvider
	apps     *memoryApplicationStore
	users    *memoryUserStore
	userID   uuid.UUID
}

func newPipeline(t *testing.T, provider *scriptedProvider, opts ...ApplicationServiceOption) *pipeline {
	t.Helper()
	userID := uuid.New()
	income := "https://files.test/stored/slip.pdf"
	p := &pipeline{
		provider: provider,
		apps:     &memoryApplicationStore{},
		users: &memoryUserStore{users: map[uuid.UUID]*models.User{
			userID: {
				ID:              userID,
				ProveOfIdentity: []string{"https://files.test/stored/ktp.jpg"},
				ProveOfIncome:   &income,
			},
		}},
		userID: userID,
	}
	base := []ApplicationServiceOption{
		WithApplicationStore(p.apps),
		WithProgramStore(memoryProgramStore{"pkh": {ProgramID: "pkh", Name: "Program Keluarga Harapan"}}),
		WithUserStore(p.users),
		WithStorage(newLocalStorage(t)),
		WithAnalyzer(newTestAnalyzer(provider)),
		WithServiceLogger(logger.NewTestLogger(t)),
	}
	p.svc = NewApplicationService(append(base, opts...)...)
	return p
}

func (p *pipeline) request() SubmitRequest {
	return SubmitRequest{
		UserID:      p.userID,
		ProgramID:   "pkh",
		ProfileData: `{"name":"John","category":"Refugees","dependents":4}`,
		Category:    "Refugees",
	}
}

func TestSubmitParsedResult(t *testing.T) {
	p := newPipeline(t, &scriptedProvider{reply: resultJSON(t, 85)})

	res, err := p.svc.Submit(context.Background(), p.request())
	require.NoError(t, err)

	require.NotNil(t, res.EligibilityScore)
	assert.Equal(t, 85, *res.EligibilityScore)
	assert.Equal(t, scoring.StatusLikelyEligible, res.EligibilityStatus)
	assert.Equal(t, models.AdminStatusPending, res.Status)
	assert.Equal(t, analysis.OutcomeParsed, res.Outcome)
	require.NotNil(t, res.EligibilityMetrics)
	assert.Len(t, res.EligibilityMetrics.Metrics, 5)
	assert.Empty(t, res.AnalysisError)
	assert.True(t, res.Workflow.Done())

	require.Len(t, p.apps.created, 1)
	app := p.apps.created[0]
	assert.Equal(t, res.ApplicationID, app.ID)
	assert.Equal(t, 85, *app.EligibilityScore)
	assert.Equal(t, models.AdminStatusPending, app.Status)
	assert.Equal(t, "Refugees", *app.Category)
	assert.Equal(t, "John", app.ProfileData["name"])
	assert.Contains(t, app.AnalysisResult, `"overallScore":85`)
}

func TestSubmitSalvagedScore(t *testing.T) {
	p := newPipeline(t, &scriptedProvider{reply: "I could not format this. overallScore: 55, summary pending"})

	res, err := p.svc.Submit(context.Background(), p.request())
	require.NoError(t, err)

	require.NotNil(t, res.EligibilityScore)
	assert.Equal(t, 55, *res.EligibilityScore)
	assert.Equal(t, scoring.StatusPossiblyEligible, res.EligibilityStatus)
	assert.Equal(t, analysis.OutcomeSalvaged, res.Outcome)
	assert.Nil(t, res.EligibilityMetrics)
	assert.Nil(t, p.apps.created[0].EligibilityMetrics)
}

func TestSubmitUnparseableStillPersists(t *testing.T) {
	p := newPipeline(t, &scriptedProvider{reply: "no score here"})

	res, err := p.svc.Submit(context.Background(), p.request())
	require.NoError(t, err)

	assert.Nil(t, res.EligibilityScore)
	assert.Equal(t, scoring.StatusPendingReview, res.EligibilityStatus)
	assert.Equal(t, analysis.OutcomeUnparseable, res.Outcome)
	assert.Equal(t, "no score here", p.apps.created[0].AnalysisResult)

	calc := res.Workflow.Stages[2]
	assert.Equal(t, workflow.StageCalcRate, calc.ID)
	assert.True(t, calc.IsComplete)
	assert.True(t, calc.Degraded)
}

func TestSubmitProviderFailurePersistsPendingReview(t *testing.T) {
	provider := &scriptedProvider{err: &analysis.ProviderError{Provider: "scripted", StatusCode: 503, Message: "overloaded"}}
	p := newPipeline(t, provider)

	res, err := p.svc.Submit(context.Background(), p.request())
	require.NoError(t, err)

	assert.Nil(t, res.EligibilityScore)
	assert.Equal(t, scoring.StatusPendingReview, res.EligibilityStatus)
	assert.Contains(t, res.AnalysisError, "overloaded")
	require.Len(t, p.apps.created, 1)
	assert.Nil(t, p.apps.created[0].EligibilityScore)
	assert.Equal(t, models.AdminStatusPending, p.apps.created[0].Status)
	assert.True(t, res.Workflow.Stages[1].Degraded)
	assert.True(t, res.Workflow.Done())
}

func TestSubmitProviderFailureAborts(t *testing.T) {
	provider := &scriptedProvider{err: errors.New("connection refused")}
	p := newPipeline(t, provider, WithPersistOnAnalysisFailure(false))

	_, err := p.svc.Submit(context.Background(), p.request())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrAnalysisUnavailable)
	assert.Empty(t, p.apps.created)

	var submitErr *SubmitError
	require.True(t, errors.As(err, &submitErr))
	snap := submitErr.Workflow
	assert.True(t, snap.Failed)
	assert.True(t, snap.Stages[0].IsComplete)
	assert.False(t, snap.Stages[1].IsComplete)
	assert.Equal(t, workflow.ProgressStarted, snap.Stages[1].Progress)
	assert.False(t, snap.Stages[3].IsComplete)
}

func TestSubmitInvalidInputMakesNoCalls(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*SubmitRequest)
	}{
		{"malformed profile", func(r *SubmitRequest) { r.ProfileData = `{"name":` }},
		{"missing profile", func(r *SubmitRequest) { r.ProfileData = "" }},
		{"missing user", func(r *SubmitRequest) { r.UserID = uuid.Nil }},
		{"missing program", func(r *SubmitRequest) { r.ProgramID = " " }},
		{"unknown program", func(r *SubmitRequest) { r.ProgramID = "does-not-exist" }},
		{"unknown user", func(r *SubmitRequest) { r.UserID = uuid.New() }},
		{"unknown document kind", func(r *SubmitRequest) {
			r.Files = []UploadedFile{{Kind: "selfie", Filename: "a.png", Data: pngBytes}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &scriptedProvider{reply: resultJSON(t, 90)}
			p := newPipeline(t, provider)
			req := p.request()
			tt.mutate(&req)

			_, err := p.svc.Submit(context.Background(), req)
			require.Error(t, err)
			assert.ErrorIs(t, err, apperr.ErrInvalidInput)
			assert.Equal(t, 0, provider.calls())
			assert.Empty(t, p.apps.created)
		})
	}
}

func TestSubmitDocuments(t *testing.T) {
	provider := &scriptedProvider{reply: resultJSON(t, 70)}
	p := newPipeline(t, provider)
	req := p.request()
	req.Files = []UploadedFile{
		{Kind: models.DocumentIDCard, Filename: "ktp.png", MIMEType: "image/png", Data: pngBytes},
		{Kind: models.DocumentAdditional, Filename: "kk.pdf", MIMEType: "application/pdf", Data: []byte("%PDF-1.7")},
		{Kind: models.DocumentAdditional, Filename: "letter.pdf", Data: []byte("%PDF-1.7")},
	}

	res, err := p.svc.Submit(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, res.DocumentErrors)

	require.Len(t, res.Documents, 5)
	for _, uri := range res.Documents[:3] {
		assert.True(t, strings.HasPrefix(uri, "https://files.test/"+p.userID.String()+"/"), uri)
	}
	assert.Equal(t, "https://files.test/stored/ktp.jpg", res.Documents[3])
	assert.Equal(t, "https://files.test/stored/slip.pdf", res.Documents[4])
	assert.Equal(t, res.Documents, p.apps.created[0].Documents)

	require.Equal(t, 1, provider.calls())
	sent := provider.prompts[0]
	assert.Equal(t, 1, sent.ImageCount())
	var labels []string
	for _, part := range sent.Parts {
		if part.Kind != prompt.PartText {
			labels = append(labels, part.Label)
		}
	}
	assert.Equal(t, []string{"id_card", "additional", "additional_2", "stored_document_1", "stored_document_2"}, labels)
	assert.Contains(t, sent.UserText(), "Selected Category: Refugees")
}

func TestSubmitUploadFailuresAreReported(t *testing.T) {
	provider := &scriptedProvider{reply: resultJSON(t, 40)}
	p := newPipeline(t, provider, WithStorage(brokenStorage{}))
	req := p.request()
	req.Files = []UploadedFile{
		{Kind: models.DocumentIDCard, Filename: "ktp.png", MIMEType: "image/png", Data: pngBytes},
		{Kind: models.DocumentPaySlip, Filename: "slip.pdf", MIMEType: "application/pdf", Data: []byte("%PDF")},
	}

	res, err := p.svc.Submit(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, res.DocumentErrors, 2)
	assert.Equal(t, models.DocumentIDCard, res.DocumentErrors[0].Kind)
	assert.Equal(t, "slip.pdf", res.DocumentErrors[1].Filename)
	assert.Contains(t, res.DocumentErrors[1].Error, "bucket unreachable")
	assert.Equal(t, scoring.StatusPossiblyEligible, res.EligibilityStatus)

	// The image is still analyzed inline; the PDF has nothing to send.
	assert.Equal(t, 1, provider.prompts[0].ImageCount())
	assert.Len(t, res.Documents, 2, "only the stored documents have URIs")
}

func TestSubmitUploadFailureAborts(t *testing.T) {
	provider := &scriptedProvider{reply: resultJSON(t, 40)}
	p := newPipeline(t, provider, WithStorage(brokenStorage{}), WithAbortOnUploadFailure(true))
	req := p.request()
	req.Files = []UploadedFile{{Kind: models.DocumentPaySlip, Filename: "slip.pdf", Data: []byte("%PDF")}}

	_, err := p.svc.Submit(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrDocumentUpload)
	assert.Equal(t, 0, provider.calls())

	var submitErr *SubmitError
	require.True(t, errors.As(err, &submitErr))
	assert.Len(t, submitErr.DocumentErrors, 1)
	assert.False(t, submitErr.Workflow.Stages[0].IsComplete)
}

func TestSubmitPersistenceFailure(t *testing.T) {
	p := newPipeline(t, &scriptedProvider{reply: resultJSON(t, 85)})
	p.apps.err = errors.New("duplicate key")

	_, err := p.svc.Submit(context.Background(), p.request())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrPersistenceFailure)
	assert.Equal(t, 500, apperr.HTTPStatus(err))

	var submitErr *SubmitError
	require.True(t, errors.As(err, &submitErr))
	assert.True(t, submitErr.Workflow.Stages[2].IsComplete)
	assert.False(t, submitErr.Workflow.Stages[3].IsComplete)
}

func TestSubmitTrackedReportsEveryTransition(t *testing.T) {
	p := newPipeline(t, &scriptedProvider{reply: resultJSON(t, 85)})

	var seen []workflow.StageID
	tracker := workflow.NewTracker(workflow.WithObserver(func(s workflow.Snapshot) {
		seen = append(seen, s.Current)
	}))
	_, err := p.svc.SubmitTracked(context.Background(), p.request(), tracker)
	require.NoError(t, err)

	assert.Equal(t, []workflow.StageID{
		workflow.StageDocAnalysis, workflow.StageProgramReq,
		workflow.StageProgramReq, workflow.StageCalcRate,
		workflow.StageCalcRate, workflow.StageSendData,
		workflow.StageSendData, "",
	}, seen)
}

func TestSubmitComposesIdenticalPrompts(t *testing.T) {
	provider := &scriptedProvider{reply: resultJSON(t, 85)}
	p := newPipeline(t, provider)

	_, err := p.svc.Submit(context.Background(), p.request())
	require.NoError(t, err)
	_, err = p.svc.Submit(context.Background(), p.request())
	require.NoError(t, err)

	require.Len(t, provider.prompts, 2)
	assert.Equal(t, provider.prompts[0].Render(), provider.prompts[1].Render())
}

func TestAnalyzeDryRun(t *testing.T) {
	provider := &scriptedProvider{reply: resultJSON(t, 35)}
	p := newPipeline(t, provider)

	res, err := p.svc.Analyze(context.Background(), AnalyzeRequest{
		Profile:         models.ProfileData{"name": "John"},
		Category:        "Refugees",
		BackgroundStory: "Lost home in a flood",
	})
	require.NoError(t, err)
	assert.Equal(t, scoring.StatusLikelyIneligible, res.EligibilityStatus)
	assert.Empty(t, p.apps.created)
	assert.Contains(t, provider.prompts[0].UserText(), "Background Story: Lost home in a flood")

	provider.err = errors.New("dial tcp: refused")
	_, err = p.svc.Analyze(context.Background(), AnalyzeRequest{Profile: models.ProfileData{}})
	assert.ErrorIs(t, err, apperr.ErrAnalysisUnavailable)

	_, err = p.svc.Analyze(context.Background(), AnalyzeRequest{})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestListApplicationsDerivesStatus(t *testing.T) {
	p := newPipeline(t, &scriptedProvider{reply: resultJSON(t, 85)})
	_, err := p.svc.Submit(context.Background(), p.request())
	require.NoError(t, err)

	p.provider.reply = "garbage"
	_, err = p.svc.Submit(context.Background(), p.request())
	require.NoError(t, err)

	views, err := p.svc.ListApplications(context.Background(), p.userID)
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, scoring.StatusPendingReview, views[0].EligibilityStatus)
	assert.Equal(t, models.AdminStatusPending, views[0].Status)
	assert.Equal(t, scoring.StatusLikelyEligible, views[1].EligibilityStatus)
}

func TestAppliedPrograms(t *testing.T) {
	p := newPipeline(t, &scriptedProvider{})
	p.apps.applied = []string{"pkh", "retired"}

	programs, err := p.svc.AppliedPrograms(context.Background(), p.userID)
	require.NoError(t, err)
	require.Len(t, programs, 1)
	assert.Equal(t, "pkh", programs[0].ProgramID)
}

func TestSubmitRequiresDependencies(t *testing.T) {
	_, err := NewApplicationService().Submit(context.Background(), SubmitRequest{})
	assert.ErrorIs(t, err, apperr.ErrConfigurationMissing)
}
