package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AdminStatus is the program-review state of an application.
type AdminStatus string

const (
	AdminStatusPending  AdminStatus = "pending"
	AdminStatusApproved AdminStatus = "approved"
	AdminStatusRejected AdminStatus = "rejected"
)

// MetricName identifies one of the five fixed analysis categories.
type MetricName string

const (
	MetricDocumentAuthenticity   MetricName = "DOCUMENT_AUTHENTICITY"
	MetricNeedAssessment         MetricName = "NEED_ASSESSMENT"
	MetricInformationConsistency MetricName = "INFORMATION_CONSISTENCY"
	MetricCategoryEligibility    MetricName = "CATEGORY_ELIGIBILITY"
	MetricVulnerabilityFactors   MetricName = "VULNERABILITY_FACTORS"
)

// MetricNames lists the metric categories in rubric order.
var MetricNames = []MetricName{
	MetricDocumentAuthenticity,
	MetricNeedAssessment,
	MetricInformationConsistency,
	MetricCategoryEligibility,
	MetricVulnerabilityFactors,
}

const MetricMaxScore = 20

// ConfidenceLevel is the analyzer's self-reported confidence.
type ConfidenceLevel string

const (
	ConfidenceLow    ConfidenceLevel = "low"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceHigh   ConfidenceLevel = "high"
)

// EligibilityMetric is one sub-score of an analysis.
type EligibilityMetric struct {
	Name        MetricName `json:"name"`
	Score       int        `json:"score"`
	MaxScore    int        `json:"maxScore"`
	Explanation string     `json:"explanation"`
}

// EligibilityResult is the structured output of one analysis.
type EligibilityResult struct {
	OverallScore    int                 `json:"overallScore"`
	Metrics         []EligibilityMetric `json:"metrics"`
	Summary         string              `json:"summary"`
	PossibleFraud   bool                `json:"possibleFraud"`
	ConfidenceLevel ConfidenceLevel     `json:"confidenceLevel"`
}

// MetricSum adds up the five metric scores. It may differ from OverallScore.
func (r *EligibilityResult) MetricSum() int {
	sum := 0
	for _, m := range r.Metrics {
		sum += m.Score
	}
	return sum
}

// ProfileData holds the applicant's free-form profile attributes.
type ProfileData map[string]interface{}

// Value implements driver.Valuer for JSONB
func (p ProfileData) Value() (driver.Value, error) {
	if p == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(p)
}

// Scan implements sql.Scanner for JSONB
func (p *ProfileData) Scan(value interface{}) error {
	var bytes []byte
	switch v := value.(type) {
	case nil:
		*p = ProfileData{}
		return nil
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		*p = ProfileData{}
		return nil
	}
	if len(bytes) == 0 {
		*p = ProfileData{}
		return nil
	}
	return json.Unmarshal(bytes, p)
}

// Application is one submitted aid application.
type Application struct {
	ID                 uuid.UUID          `json:"id"`
	UserID             uuid.UUID          `json:"user_id"`
	ProgramID          string             `json:"program_id"`
	Status             AdminStatus        `json:"status"`
	EligibilityScore   *int               `json:"eligibility_score"`
	AnalysisResult     string             `json:"analysis_result"`
	EligibilityMetrics *EligibilityResult `json:"eligibility_metrics"`
	Documents          []string           `json:"documents"`
	ProfileData        ProfileData        `json:"profile_data"`
	Category           *string            `json:"category,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
}
