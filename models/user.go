package models

import (
	"time"

	"github.com/google/uuid"
)

// User is an applicant account with its stored profile and document URIs.
type User struct {
	ID                 uuid.UUID   `json:"id"`
	Email              string      `json:"email"`
	PasswordHash       string      `json:"-"` // Never serialize password hash
	Name               string      `json:"name"`
	Profile            ProfileData `json:"profile"`
	ProveOfIdentity    []string    `json:"prove_of_identity"`
	ProveOfIncome      *string     `json:"prove_of_income,omitempty"`
	AdditionalDocument []string    `json:"additional_document"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
}

// DocumentURIs returns every stored document URI in a stable order:
// identity, income, then additional documents.
func (u *User) DocumentURIs() []string {
	uris := make([]string, 0, len(u.ProveOfIdentity)+len(u.AdditionalDocument)+1)
	uris = append(uris, u.ProveOfIdentity...)
	if u.ProveOfIncome != nil && *u.ProveOfIncome != "" {
		uris = append(uris, *u.ProveOfIncome)
	}
	uris = append(uris, u.AdditionalDocument...)
	return uris
}
