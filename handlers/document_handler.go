package handlers

import (
	"fmt"
	"net/http"

	"aidflow-backend/models"
	"aidflow-backend/service"

	"github.com/gin-gonic/gin"
)

// DocumentHandler handles HTTP requests for applicant documents
type DocumentHandler struct {
	documents   *service.DocumentService
	maxFileSize int64
}

// NewDocumentHandler creates a new document handler
func NewDocumentHandler(documents *service.DocumentService, maxFileSize int64) *DocumentHandler {
	if maxFileSize <= 0 {
		maxFileSize = service.DefaultMaxUploadBytes
	}
	return &DocumentHandler{
		documents:   documents,
		maxFileSize: maxFileSize,
	}
}

// UploadDocument handles POST /api/documents
func (h *DocumentHandler) UploadDocument(c *gin.Context) {
	userID, ok := parseUUID(c, c.PostForm("userId"), "userId")
	if !ok {
		return
	}

	kind := models.DocumentKind(c.PostForm("kind"))
	if !kind.Valid() {
		badRequest(c, "INVALID_KIND", fmt.Sprintf("Unknown document kind %q", kind))
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "MISSING_FILE", "File is required")
		return
	}
	if fileHeader.Size > h.maxFileSize {
		badRequest(c, "FILE_TOO_LARGE", fmt.Sprintf("File size exceeds maximum of %d bytes", h.maxFileSize))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "FILE_OPEN_ERROR",
				"message": err.Error(),
			},
		})
		return
	}
	defer file.Close()

	doc, err := h.documents.Upload(c.Request.Context(), service.UploadDocumentRequest{
		UserID:   userID,
		Kind:     kind,
		Filename: fileHeader.Filename,
		MIMEType: fileHeader.Header.Get("Content-Type"),
		Size:     fileHeader.Size,
		Body:     file,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    doc,
	})
}

// GetDocument handles GET /api/documents/:id
func (h *DocumentHandler) GetDocument(c *gin.Context) {
	id, ok := parseUUID(c, c.Param("id"), "document ID")
	if !ok {
		return
	}

	doc, reader, err := h.documents.Open(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	defer reader.Close()

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", doc.Filename))
	c.DataFromReader(http.StatusOK, doc.Size, doc.MimeType, reader, nil)
}

// ListDocuments handles GET /api/documents?userId=
func (h *DocumentHandler) ListDocuments(c *gin.Context) {
	userID, ok := parseUUID(c, c.Query("userId"), "userId")
	if !ok {
		return
	}

	docs, err := h.documents.List(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    docs,
	})
}
