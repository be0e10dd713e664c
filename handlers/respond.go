package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"aidflow-backend/apperr"
	"aidflow-backend/logger"
	"aidflow-backend/models"
	"aidflow-backend/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// respondError writes the standard error body with the status and code
// derived from err.
func respondError(c *gin.Context, err error) {
	body := gin.H{
		"code":    apperr.Code(err),
		"message": err.Error(),
	}
	var submitErr *service.SubmitError
	if errors.As(err, &submitErr) && len(submitErr.DocumentErrors) > 0 {
		body["documentErrors"] = submitErr.DocumentErrors
	}
	c.JSON(apperr.HTTPStatus(err), gin.H{
		"success": false,
		"error":   body,
	})
}

func badRequest(c *gin.Context, code, message string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

func parseUUID(c *gin.Context, raw, field string) (uuid.UUID, bool) {
	if raw == "" {
		badRequest(c, apperr.Code(apperr.ErrInvalidInput), field+" is required")
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		badRequest(c, apperr.Code(apperr.ErrInvalidInput), fmt.Sprintf("Invalid %s format", field))
		return uuid.Nil, false
	}
	return id, true
}

// readUploads reads every file posted under field. Request bodies do not
// outlive the handler, so the bytes are copied for background work.
func readUploads(form *multipart.Form, field string, kind models.DocumentKind, maxSize int64) ([]service.UploadedFile, error) {
	if form == nil {
		return nil, nil
	}
	var files []service.UploadedFile
	for _, fh := range form.File[field] {
		if fh.Size > maxSize {
			return nil, fmt.Errorf("%w: %s exceeds maximum of %d bytes", apperr.ErrInvalidInput, fh.Filename, maxSize)
		}
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("%w: cannot open %s: %v", apperr.ErrInvalidInput, fh.Filename, err)
		}
		data, err := io.ReadAll(io.LimitReader(f, maxSize+1))
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("%w: cannot read %s: %v", apperr.ErrInvalidInput, fh.Filename, err)
		}
		if int64(len(data)) > maxSize {
			return nil, fmt.Errorf("%w: %s exceeds maximum of %d bytes", apperr.ErrInvalidInput, fh.Filename, maxSize)
		}
		files = append(files, service.UploadedFile{
			Kind:     kind,
			Filename: fh.Filename,
			MIMEType: fh.Header.Get("Content-Type"),
			Data:     data,
		})
	}
	return files, nil
}

// RequestLogger logs one line per request.
func RequestLogger(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := map[string]interface{}{
			"method":     c.Request.Method,
			"path":       c.FullPath(),
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
			"client_ip":  c.ClientIP(),
		}
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			log.Error("request failed", fields)
		case c.Writer.Status() >= http.StatusBadRequest:
			log.Warn("request rejected", fields)
		default:
			log.Info("request handled", fields)
		}
	}
}
