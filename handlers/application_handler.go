package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"aidflow-backend/apperr"
	"aidflow-backend/logger"
	"aidflow-backend/models"
	"aidflow-backend/prompt"
	"aidflow-backend/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// uploadFields maps multipart field names to document kinds.
var uploadFields = []struct {
	field string
	kind  models.DocumentKind
}{
	{"idCard", models.DocumentIDCard},
	{"profileImage", models.DocumentProfileImage},
	{"paySlip", models.DocumentPaySlip},
	{"additionalDocs", models.DocumentAdditional},
}

// ApplicationHandler handles HTTP requests for aid applications
type ApplicationHandler struct {
	applications *service.ApplicationService
	jobs         *service.JobService
	log          logger.Logger
	maxFileSize  int64
	running      sync.WaitGroup
}

// NewApplicationHandler creates a new application handler
func NewApplicationHandler(applications *service.ApplicationService, jobs *service.JobService, log logger.Logger, maxFileSize int64) *ApplicationHandler {
	if maxFileSize <= 0 {
		maxFileSize = service.DefaultMaxUploadBytes
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &ApplicationHandler{
		applications: applications,
		jobs:         jobs,
		log:          log,
		maxFileSize:  maxFileSize,
	}
}

func (h *ApplicationHandler) submitRequest(c *gin.Context) (service.SubmitRequest, error) {
	var req service.SubmitRequest

	form, err := c.MultipartForm()
	if err != nil && err != http.ErrNotMultipart {
		return req, fmt.Errorf("%w: invalid multipart form: %v", apperr.ErrInvalidInput, err)
	}

	userID := c.PostForm("userId")
	if userID == "" {
		return req, fmt.Errorf("%w: userId is required", apperr.ErrInvalidInput)
	}
	req.UserID, err = uuid.Parse(userID)
	if err != nil {
		return req, fmt.Errorf("%w: invalid userId format", apperr.ErrInvalidInput)
	}
	req.ProgramID = strings.TrimSpace(c.PostForm("aidProgramId"))
	if req.ProgramID == "" {
		return req, fmt.Errorf("%w: aidProgramId is required", apperr.ErrInvalidInput)
	}
	req.ProfileData = c.PostForm("profileData")
	req.Category = c.PostForm("category")
	req.BackgroundStory = c.PostForm("backgroundStory")

	for _, uf := range uploadFields {
		files, err := readUploads(form, uf.field, uf.kind, h.maxFileSize)
		if err != nil {
			return req, err
		}
		req.Files = append(req.Files, files...)
	}
	return req, nil
}

// Apply handles POST /api/aid/apply
func (h *ApplicationHandler) Apply(c *gin.Context) {
	req, err := h.submitRequest(c)
	if err != nil {
		respondError(c, err)
		return
	}

	result, err := h.applications.Submit(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	documentErrors := result.DocumentErrors
	if documentErrors == nil {
		documentErrors = []models.DocumentError{}
	}
	body := gin.H{
		"success":            true,
		"applicationId":      result.ApplicationID,
		"eligibilityScore":   result.EligibilityScore,
		"eligibilityMetrics": result.EligibilityMetrics,
		"status":             result.EligibilityStatus,
		"eligibilityStatus":  result.EligibilityStatus,
		"applicationStatus":  result.Status,
		"documents":          result.Documents,
		"documentErrors":     documentErrors,
		"workflow":           result.Workflow.Stages,
	}
	if result.AnalysisError != "" {
		body["analysisError"] = result.AnalysisError
	}
	c.JSON(http.StatusOK, body)
}

// ApplyAsync handles POST /api/aid/apply/jobs
func (h *ApplicationHandler) ApplyAsync(c *gin.Context) {
	req, err := h.submitRequest(c)
	if err != nil {
		respondError(c, err)
		return
	}

	job, err := h.jobs.Enqueue(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	h.running.Add(1)
	go func() {
		defer h.running.Done()
		bgCtx := context.Background()
		if err := h.jobs.Process(bgCtx, job.ID, req); err != nil {
			// Stored on the job; clients poll /api/jobs/:id.
			h.log.Warn("application job failed", map[string]interface{}{
				"job_id": job.ID.String(),
				"error":  err.Error(),
			})
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"data": gin.H{
			"job_id": job.ID,
			"status": job.Status,
			"stages": job.Stages,
		},
	})
}

// WaitForJobs blocks until every background job started by ApplyAsync
// has returned, or ctx is done.
func (h *ApplicationHandler) WaitForJobs(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.running.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GetJobStatus handles GET /api/jobs/:id
func (h *ApplicationHandler) GetJobStatus(c *gin.Context) {
	id, ok := parseUUID(c, c.Param("id"), "job ID")
	if !ok {
		return
	}

	job, err := h.jobs.GetJob(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    job,
	})
}

// ListApplications handles GET /api/applications?userId=
func (h *ApplicationHandler) ListApplications(c *gin.Context) {
	userID, ok := parseUUID(c, c.Query("userId"), "userId")
	if !ok {
		return
	}

	views, err := h.applications.ListApplications(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    views,
	})
}

// AppliedPrograms handles GET /api/aid/applied?userId=
func (h *ApplicationHandler) AppliedPrograms(c *gin.Context) {
	userID, ok := parseUUID(c, c.Query("userId"), "userId")
	if !ok {
		return
	}

	programs, err := h.applications.AppliedPrograms(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	if programs == nil {
		programs = []*models.AidProgram{}
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    programs,
	})
}

// AnalyzeEligibility handles POST /api/eligibility/analyze. It runs the
// analysis on images and profile data without storing anything.
func (h *ApplicationHandler) AnalyzeEligibility(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil && err != http.ErrNotMultipart {
		respondError(c, fmt.Errorf("%w: invalid multipart form: %v", apperr.ErrInvalidInput, err))
		return
	}

	raw := c.PostForm("userData")
	if raw == "" {
		raw = c.PostForm("profileData")
	}
	profile, err := prompt.DecodeProfile(raw)
	if err != nil {
		respondError(c, err)
		return
	}

	var docs []prompt.Document
	for _, uf := range uploadFields {
		files, err := readUploads(form, uf.field, uf.kind, h.maxFileSize)
		if err != nil {
			respondError(c, err)
			return
		}
		for i, f := range files {
			if !strings.HasPrefix(f.MIMEType, "image/") {
				respondError(c, fmt.Errorf("%w: %s is not an image", apperr.ErrInvalidInput, f.Filename))
				return
			}
			label := string(f.Kind)
			if i > 0 {
				label = fmt.Sprintf("%s_%d", f.Kind, i+1)
			}
			docs = append(docs, prompt.Document{Label: label, MIMEType: f.MIMEType, Data: f.Data})
		}
	}

	result, err := h.applications.Analyze(c.Request.Context(), service.AnalyzeRequest{
		Profile:         profile,
		Category:        c.PostForm("category"),
		BackgroundStory: c.PostForm("backgroundStory"),
		Documents:       docs,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":            true,
		"eligibilityScore":   result.EligibilityScore,
		"eligibilityStatus":  result.EligibilityStatus,
		"eligibilityMetrics": result.EligibilityMetrics,
		"outcome":            result.Outcome,
	})
}
