// Package apperr defines the error taxonomy shared by the eligibility pipeline
// and the HTTP layer.
package apperr

import (
	"errors"
	"net/http"
)

var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrConfigurationMissing = errors.New("configuration missing")
	ErrAnalysisUnavailable  = errors.New("eligibility analysis unavailable")
	ErrAnalysisTimeout      = errors.New("eligibility analysis timed out")
	ErrAnalysisUnparseable  = errors.New("eligibility analysis output unparseable")
	ErrPersistenceFailure   = errors.New("failed to persist application")
	ErrDocumentUpload       = errors.New("document upload failed")
	ErrNotFound             = errors.New("not found")
)

// Code returns the stable machine-readable code for err.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidInput):
		return "INVALID_INPUT"
	case errors.Is(err, ErrConfigurationMissing):
		return "CONFIGURATION_MISSING"
	case errors.Is(err, ErrAnalysisTimeout):
		return "ANALYSIS_TIMEOUT"
	case errors.Is(err, ErrAnalysisUnavailable):
		return "ANALYSIS_UNAVAILABLE"
	case errors.Is(err, ErrAnalysisUnparseable):
		return "ANALYSIS_UNPARSEABLE"
	case errors.Is(err, ErrPersistenceFailure):
		return "PERSISTENCE_FAILURE"
	case errors.Is(err, ErrDocumentUpload):
		return "DOCUMENT_UPLOAD_FAILED"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	default:
		return "INTERNAL_ERROR"
	}
}

// HTTPStatus maps err to the status code returned by the API.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAnalysisTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrAnalysisUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
