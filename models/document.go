package models

import (
	"time"

	"github.com/google/uuid"
)

// DocumentKind classifies an uploaded document.
type DocumentKind string

const (
	DocumentIDCard       DocumentKind = "id_card"
	DocumentProfileImage DocumentKind = "profile_image"
	DocumentPaySlip      DocumentKind = "pay_slip"
	DocumentAdditional   DocumentKind = "additional"
)

// Valid reports whether k is a known document kind.
func (k DocumentKind) Valid() bool {
	switch k {
	case DocumentIDCard, DocumentProfileImage, DocumentPaySlip, DocumentAdditional:
		return true
	}
	return false
}

// Document represents a stored applicant document
type Document struct {
	ID          uuid.UUID    `json:"id"`
	UserID      uuid.UUID    `json:"user_id"`
	Kind        DocumentKind `json:"kind"`
	Filename    string       `json:"filename"`
	MimeType    string       `json:"mime_type"`
	Size        int64        `json:"size"`
	StoragePath string       `json:"storage_path"`
	URL         string       `json:"url"`
	CreatedAt   time.Time    `json:"created_at"`
}
