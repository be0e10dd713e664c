package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"aidflow-backend/apperr"
	"aidflow-backend/logger"
	"aidflow-backend/models"
	"aidflow-backend/storage"

	"github.com/google/uuid"
)

// DefaultMaxUploadBytes is the per-document size limit.
const DefaultMaxUploadBytes int64 = 10 << 20

// DocumentStore persists document records.
type DocumentStore interface {
	Create(ctx context.Context, doc *models.Document) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Document, error)
	ListByUserID(ctx context.Context, userID uuid.UUID) ([]*models.Document, error)
}

// DocumentService stores documents ahead of a submission and records
// them on the applicant's profile.
type DocumentService struct {
	documents   DocumentStore
	users       UserStore
	storage     storage.Storage
	log         logger.Logger
	maxFileSize int64
}

// DocumentServiceOption is a functional option for DocumentService
type DocumentServiceOption func(*DocumentService)

// DocumentWithStore sets the document repository
func DocumentWithStore(store DocumentStore) DocumentServiceOption {
	return func(s *DocumentService) {
		s.documents = store
	}
}

// DocumentWithUserStore sets the user repository
func DocumentWithUserStore(store UserStore) DocumentServiceOption {
	return func(s *DocumentService) {
		s.users = store
	}
}

// DocumentWithStorage sets the storage backend
func DocumentWithStorage(st storage.Storage) DocumentServiceOption {
	return func(s *DocumentService) {
		s.storage = st
	}
}

// DocumentWithLogger sets the logger
func DocumentWithLogger(l logger.Logger) DocumentServiceOption {
	return func(s *DocumentService) {
		s.log = l
	}
}

// DocumentWithMaxFileSize sets the size limit in bytes
func DocumentWithMaxFileSize(n int64) DocumentServiceOption {
	return func(s *DocumentService) {
		if n > 0 {
			s.maxFileSize = n
		}
	}
}

// NewDocumentService creates a new document service
func NewDocumentService(opts ...DocumentServiceOption) *DocumentService {
	s := &DocumentService{
		log:         logger.NewNoOpLogger(),
		maxFileSize: DefaultMaxUploadBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UploadDocumentRequest represents one pre-upload
type UploadDocumentRequest struct {
	UserID   uuid.UUID
	Kind     models.DocumentKind
	Filename string
	MIMEType string
	Size     int64
	Body     io.Reader
}

// AllowedDocumentType reports whether mimeType can be analyzed.
func AllowedDocumentType(mimeType string) bool {
	return strings.HasPrefix(mimeType, "image/") || mimeType == "application/pdf"
}

// Upload stores the file, records it and appends its URI to the user's
// stored profile. The stored object is removed when the record cannot be
// written.
func (s *DocumentService) Upload(ctx context.Context, req UploadDocumentRequest) (*models.Document, error) {
	if s.documents == nil || s.storage == nil {
		return nil, fmt.Errorf("%w: document service not configured", apperr.ErrConfigurationMissing)
	}
	if req.UserID == uuid.Nil {
		return nil, fmt.Errorf("%w: userId is required", apperr.ErrInvalidInput)
	}
	if !req.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown document kind %q", apperr.ErrInvalidInput, req.Kind)
	}
	if req.Body == nil {
		return nil, fmt.Errorf("%w: file is required", apperr.ErrInvalidInput)
	}
	if req.Size > s.maxFileSize {
		return nil, fmt.Errorf("%w: file size exceeds maximum of %d bytes", apperr.ErrInvalidInput, s.maxFileSize)
	}
	mimeType := req.MIMEType
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = storage.DetectContentType(req.Filename)
	}
	if !AllowedDocumentType(mimeType) {
		return nil, fmt.Errorf("%w: file type %s not allowed, use an image or PDF", apperr.ErrInvalidInput, mimeType)
	}

	fileID := uuid.New()
	path, err := s.storage.Upload(ctx, storage.ObjectKey{
		FileID:   fileID,
		Owner:    req.UserID.String(),
		Kind:     string(req.Kind),
		Filename: req.Filename,
	}, mimeType, req.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrDocumentUpload, err)
	}

	doc := &models.Document{
		ID:          fileID,
		UserID:      req.UserID,
		Kind:        req.Kind,
		Filename:    req.Filename,
		MimeType:    mimeType,
		Size:        req.Size,
		StoragePath: path,
		URL:         s.storage.URL(path),
	}
	if err := s.documents.Create(ctx, doc); err != nil {
		if delErr := s.storage.Delete(ctx, path); delErr != nil {
			s.log.Warn("failed to remove orphaned upload", map[string]interface{}{
				"storage_path": path,
				"error":        delErr.Error(),
			})
		}
		return nil, fmt.Errorf("%w: failed to save document record: %v", apperr.ErrPersistenceFailure, err)
	}

	if s.users != nil {
		if err := s.users.AppendDocument(ctx, req.UserID, req.Kind, doc.URL); err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: failed to update user profile: %v", apperr.ErrPersistenceFailure, err)
		}
	}

	return doc, nil
}

// Open returns the document record and a reader over its content. The
// caller closes the reader.
func (s *DocumentService) Open(ctx context.Context, id uuid.UUID) (*models.Document, io.ReadCloser, error) {
	if s.documents == nil || s.storage == nil {
		return nil, nil, fmt.Errorf("%w: document service not configured", apperr.ErrConfigurationMissing)
	}
	doc, err := s.documents.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("%w: %v", apperr.ErrPersistenceFailure, err)
	}
	rc, err := s.storage.Download(ctx, doc.StoragePath)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: failed to download document: %v", apperr.ErrDocumentUpload, err)
	}
	return doc, rc, nil
}

// List returns a user's documents, newest first.
func (s *DocumentService) List(ctx context.Context, userID uuid.UUID) ([]*models.Document, error) {
	if s.documents == nil {
		return nil, fmt.Errorf("%w: document repository not set", apperr.ErrConfigurationMissing)
	}
	docs, err := s.documents.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrPersistenceFailure, err)
	}
	if docs == nil {
		docs = []*models.Document{}
	}
	return docs, nil
}
