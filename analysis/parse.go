package analysis

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"aidflow-backend/apperr"
	"aidflow-backend/models"

	"github.com/xeipuuv/gojsonschema"
)

// Outcome records how a raw reply was turned into a score.
type Outcome string

const (
	OutcomeParsed      Outcome = "parsed"
	OutcomeSalvaged    Outcome = "salvaged"
	OutcomeUnparseable Outcome = "unparseable"
)

// Analysis is the result of one completed provider call.
type Analysis struct {
	Provider   string
	Raw        string
	Result     *models.EligibilityResult
	Score      *int
	Outcome    Outcome
	ParseError error
}

const resultSchema = `{
  "type": "object",
  "required": ["overallScore", "metrics", "summary", "possibleFraud", "confidenceLevel"],
  "properties": {
    "overallScore": {"type": "integer", "minimum": 0, "maximum": 100},
    "metrics": {
      "type": "array",
      "minItems": 5,
      "maxItems": 5,
      "items": {
        "type": "object",
        "required": ["name", "score", "maxScore", "explanation"],
        "properties": {
          "name": {"enum": ["DOCUMENT_AUTHENTICITY", "NEED_ASSESSMENT", "INFORMATION_CONSISTENCY", "CATEGORY_ELIGIBILITY", "VULNERABILITY_FACTORS"]},
          "score": {"type": "integer", "minimum": 0, "maximum": 20},
          "maxScore": {"enum": [20]},
          "explanation": {"type": "string"}
        }
      }
    },
    "summary": {"type": "string"},
    "possibleFraud": {"type": "boolean"},
    "confidenceLevel": {"enum": ["low", "medium", "high"]}
  }
}`

var schema = mustSchema(resultSchema)

func mustSchema(s string) *gojsonschema.Schema {
	sc, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(s))
	if err != nil {
		panic(fmt.Sprintf("invalid eligibility result schema: %v", err))
	}
	return sc
}

// ParseResult decodes and validates a provider reply. Any failure wraps
// apperr.ErrAnalysisUnparseable.
func ParseResult(raw string) (*models.EligibilityResult, error) {
	text := stripCodeFence(raw)
	if text == "" {
		return nil, fmt.Errorf("%w: empty response", apperr.ErrAnalysisUnparseable)
	}

	var doc interface{}
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrAnalysisUnparseable, err)
	}

	res, err := schema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("%w: validation error: %v", apperr.ErrAnalysisUnparseable, err)
	}
	if !res.Valid() {
		errs := make([]string, len(res.Errors()))
		for i, desc := range res.Errors() {
			errs[i] = desc.String()
		}
		return nil, fmt.Errorf("%w: schema violations: %s", apperr.ErrAnalysisUnparseable, strings.Join(errs, "; "))
	}

	var result models.EligibilityResult
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrAnalysisUnparseable, err)
	}

	seen := make(map[models.MetricName]bool, len(result.Metrics))
	for _, m := range result.Metrics {
		if seen[m.Name] {
			return nil, fmt.Errorf("%w: duplicate metric %s", apperr.ErrAnalysisUnparseable, m.Name)
		}
		seen[m.Name] = true
	}
	return &result, nil
}

var overallScorePattern = regexp.MustCompile(`(?i)overallScore"?\s*[:=]\s*(\d+)`)

// SalvageScore extracts overallScore from text that failed structured
// parsing. It recovers only that one number, and only when it lies in 0-100;
// metrics, summary and fraud flags are lost.
func SalvageScore(raw string) (int, bool) {
	m := overallScorePattern.FindStringSubmatch(raw)
	if m == nil {
		return 0, false
	}
	v, err := strconv.Atoi(m[1])
	if err != nil || v > 100 {
		return 0, false
	}
	return v, true
}

// Interpret turns a raw reply into an Analysis. Structured parsing always
// wins; salvage runs only when it fails.
func Interpret(raw string) *Analysis {
	a := &Analysis{Raw: raw}

	result, err := ParseResult(raw)
	if err == nil {
		score := result.OverallScore
		a.Result = result
		a.Score = &score
		a.Outcome = OutcomeParsed
		return a
	}

	a.ParseError = err
	if score, ok := SalvageScore(raw); ok {
		a.Score = &score
		a.Outcome = OutcomeSalvaged
		return a
	}

	a.Outcome = OutcomeUnparseable
	return a
}

func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	lines := strings.Split(text, "\n")
	endIdx := len(lines)
	for i := len(lines) - 1; i > 0; i-- {
		if strings.TrimSpace(lines[i]) == "```" {
			endIdx = i
			break
		}
	}
	if endIdx <= 1 {
		return ""
	}
	return strings.TrimSpace(strings.Join(lines[1:endIdx], "\n"))
}
