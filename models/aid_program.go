package models

import "time"

// AidProgram is a social-aid program applicants can apply to.
type AidProgram struct {
	ProgramID    string    `json:"program_id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	RequiredTags []string  `json:"required_tags"`
	Nominal      *int64    `json:"nominal,omitempty"`
	About        string    `json:"about"`
	Details      string    `json:"details"`
	Eligibility  string    `json:"eligibility"`
	HowToApply   string    `json:"how_to_apply"`
	Img          string    `json:"img"`
	CreatedAt    time.Time `json:"created_at"`
}
