package analysis

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"aidflow-backend/apperr"
	"aidflow-backend/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validResultJSON(t testing.TB, overall int, scores ...int) string {
	t.Helper()
	if len(scores) == 0 {
		scores = []int{17, 17, 17, 17, 17}
	}
	metrics := make([]models.EligibilityMetric, 0, len(models.MetricNames))
	for i, name := range models.MetricNames {
		metrics = append(metrics, models.EligibilityMetric{
			Name:        name,
			Score:       scores[i],
			MaxScore:    models.MetricMaxScore,
			Explanation: fmt.Sprintf("reasoning for %s", name),
		})
	}
	b, err := json.Marshal(models.EligibilityResult{
		OverallScore:    overall,
		Metrics:         metrics,
		Summary:         "Applicant shows clear need.",
		PossibleFraud:   false,
		ConfidenceLevel: models.ConfidenceHigh,
	})
	require.NoError(t, err)
	return string(b)
}

func TestParseResultWellFormed(t *testing.T) {
	res, err := ParseResult(validResultJSON(t, 85))
	require.NoError(t, err)

	assert.Equal(t, 85, res.OverallScore)
	require.Len(t, res.Metrics, 5)
	for i, m := range res.Metrics {
		assert.Equal(t, models.MetricNames[i], m.Name)
		assert.GreaterOrEqual(t, m.Score, 0)
		assert.LessOrEqual(t, m.Score, 20)
		assert.Equal(t, 20, m.MaxScore)
	}
	assert.Equal(t, models.ConfidenceHigh, res.ConfidenceLevel)
	assert.Equal(t, 85, res.MetricSum())
}

func TestParseResultStripsCodeFence(t *testing.T) {
	fenced := "```json\n" + validResultJSON(t, 72) + "\n```"
	res, err := ParseResult(fenced)
	require.NoError(t, err)
	assert.Equal(t, 72, res.OverallScore)
}

func TestParseResultSumMismatchIsAccepted(t *testing.T) {
	res, err := ParseResult(validResultJSON(t, 90, 10, 10, 10, 10, 10))
	require.NoError(t, err)
	assert.Equal(t, 90, res.OverallScore)
	assert.Equal(t, 50, res.MetricSum())
}

func TestParseResultRejectsInvalid(t *testing.T) {
	valid := validResultJSON(t, 60)

	mutate := func(fn func(map[string]interface{})) string {
		var cp map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(valid), &cp))
		fn(cp)
		b, err := json.Marshal(cp)
		require.NoError(t, err)
		return string(b)
	}

	tests := map[string]string{
		"empty":        "",
		"not json":     "The applicant looks eligible.",
		"score high":   mutate(func(m map[string]interface{}) { m["overallScore"] = 140 }),
		"four metrics": mutate(func(m map[string]interface{}) { m["metrics"] = m["metrics"].([]interface{})[:4] }),
		"metric score": mutate(func(m map[string]interface{}) {
			m["metrics"].([]interface{})[0].(map[string]interface{})["score"] = 25
		}),
		"unknown metric": mutate(func(m map[string]interface{}) {
			m["metrics"].([]interface{})[0].(map[string]interface{})["name"] = "CREDIT_HISTORY"
		}),
		"duplicate metric": mutate(func(m map[string]interface{}) {
			m["metrics"].([]interface{})[1].(map[string]interface{})["name"] = "DOCUMENT_AUTHENTICITY"
		}),
		"confidence": mutate(func(m map[string]interface{}) { m["confidenceLevel"] = "certain" }),
		"missing":    mutate(func(m map[string]interface{}) { delete(m, "possibleFraud") }),
	}

	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseResult(raw)
			assert.ErrorIs(t, err, apperr.ErrAnalysisUnparseable)
		})
	}
}

func TestSalvageScore(t *testing.T) {
	tests := []struct {
		raw   string
		score int
		ok    bool
	}{
		{"Result -> overallScore: 55, metrics unavailable", 55, true},
		{`{"overallScore": 81, "metrics": [`, 81, true},
		{"OVERALLSCORE=12", 12, true},
		{"overallScore: 150", 0, false},
		{"score is 55", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		score, ok := SalvageScore(tt.raw)
		assert.Equal(t, tt.ok, ok, tt.raw)
		assert.Equal(t, tt.score, score, tt.raw)
	}
}

func TestInterpretPrefersStructuredParsing(t *testing.T) {
	// The summary mentions a different overallScore; salvage must not run.
	raw := strings.Replace(validResultJSON(t, 85), "Applicant shows clear need.", "earlier draft had overallScore: 12", 1)

	a := Interpret(raw)
	assert.Equal(t, OutcomeParsed, a.Outcome)
	require.NotNil(t, a.Score)
	assert.Equal(t, 85, *a.Score)
	assert.NotNil(t, a.Result)
	assert.NoError(t, a.ParseError)
}

func TestInterpretSalvagesNonJSON(t *testing.T) {
	a := Interpret("I think the overallScore: 55 because of the documents.")
	assert.Equal(t, OutcomeSalvaged, a.Outcome)
	require.NotNil(t, a.Score)
	assert.Equal(t, 55, *a.Score)
	assert.Nil(t, a.Result)
	assert.ErrorIs(t, a.ParseError, apperr.ErrAnalysisUnparseable)
}

func TestInterpretUnparseable(t *testing.T) {
	a := Interpret("Sorry, I cannot evaluate this application.")
	assert.Equal(t, OutcomeUnparseable, a.Outcome)
	assert.Nil(t, a.Score)
	assert.Nil(t, a.Result)
}
