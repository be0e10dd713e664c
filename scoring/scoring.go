// Package scoring derives the coarse eligibility status from an analysis score.
// Every caller that needs a status label goes through Interpret.
package scoring

// EligibilityStatus is the AI verdict shown to applicants. It is unrelated to
// the administrative review status of an application.
type EligibilityStatus string

const (
	StatusLikelyEligible   EligibilityStatus = "Likely Eligible"
	StatusPossiblyEligible EligibilityStatus = "Possibly Eligible"
	StatusLikelyIneligible EligibilityStatus = "Likely Ineligible"
	StatusPendingReview    EligibilityStatus = "Pending Review"
)

const (
	LikelyThreshold   = 70
	PossiblyThreshold = 40
)

// Interpret maps a 0-100 score to a status. A nil score means no score was
// produced and yields StatusPendingReview; zero is a real score.
func Interpret(score *int) EligibilityStatus {
	if score == nil {
		return StatusPendingReview
	}
	switch s := *score; {
	case s >= LikelyThreshold:
		return StatusLikelyEligible
	case s >= PossiblyThreshold:
		return StatusPossiblyEligible
	default:
		return StatusLikelyIneligible
	}
}

// Score is a convenience for building the pointer argument of Interpret.
func Score(v int) *int {
	return &v
}
