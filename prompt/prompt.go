// Package prompt builds the instruction sent to the eligibility analyzer.
//
// There is exactly one system instruction; every entry point (synchronous
// submission, background jobs, the CLI dry run) composes through Composer so
// the scoring rubric cannot drift between call sites.
package prompt

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"aidflow-backend/apperr"
	"aidflow-backend/models"
)

// SystemInstruction states the analysis tasks, the five metrics and the
// mandatory JSON output shape.
const SystemInstruction = `You are an aid eligibility analyst. Your task is to:
1. Verify the authenticity of submitted documents (check for signs of manipulation or inconsistency)
2. Extract relevant information from the documents and images
3. Compare the extracted information with the user-provided profile data for consistency
4. Evaluate the eligibility based on the criteria for the selected aid category
5. Provide detailed metrics with scoring and reasoning

For your assessment, evaluate and score the following metrics (each out of 20 points):
- DOCUMENT_AUTHENTICITY: Assess if the documents appear genuine and unaltered
- NEED_ASSESSMENT: Evaluate the level of financial or social need based on documents and profile
- INFORMATION_CONSISTENCY: Check if information across documents and profile data is consistent
- CATEGORY_ELIGIBILITY: Determine how well they match the specific aid category requirements
- VULNERABILITY_FACTORS: Identify presence of additional vulnerability factors that strengthen the case

Provide your response in the following JSON format:
{
  "overallScore": <0-100 number>,
  "metrics": [
    {
      "name": "DOCUMENT_AUTHENTICITY",
      "score": <0-20 number>,
      "maxScore": 20,
      "explanation": "<detailed reasoning for this score>"
    }
  ],
  "summary": "<1-2 paragraph summary of overall findings>",
  "possibleFraud": <boolean>,
  "confidenceLevel": "<low|medium|high>"
}
The "metrics" array must contain exactly five entries, one for each metric listed above, in that order.
Respond with the JSON object only.`

const (
	userPreamble       = "Please analyze the following user profile and documents to determine eligibility for social aid:"
	categoryFallback   = "Not specified"
	DetailHigh         = "high"
	profileCategoryKey = "category"
	profileStoryKey    = "backgroundStory"
)

// PartKind distinguishes the content parts of a user message.
type PartKind string

const (
	PartText        PartKind = "text"
	PartInlineImage PartKind = "inline_image"
	PartURI         PartKind = "uri"
)

// Part is one element of the user message.
type Part struct {
	Kind     PartKind
	Label    string
	Text     string
	MIMEType string
	Data     []byte
	Detail   string
	URI      string
}

// DataURL renders an inline image as a base64 data URL.
func (p Part) DataURL() string {
	return "data:" + p.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(p.Data)
}

// Prompt is a composed two-part prompt.
type Prompt struct {
	System string
	Parts  []Part
}

// UserText returns the text parts joined by newlines.
func (p Prompt) UserText() string {
	var texts []string
	for _, part := range p.Parts {
		if part.Kind == PartText {
			texts = append(texts, part.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// ImageCount returns the number of inline image parts.
func (p Prompt) ImageCount() int {
	n := 0
	for _, part := range p.Parts {
		if part.Kind == PartInlineImage {
			n++
		}
	}
	return n
}

// Render returns a flat textual form of the whole prompt, including inline
// image payloads, suitable for logging digests and dry runs.
func (p Prompt) Render() string {
	var b strings.Builder
	b.WriteString(p.System)
	b.WriteString("\n---\n")
	for _, part := range p.Parts {
		switch part.Kind {
		case PartText:
			b.WriteString(part.Text)
		case PartInlineImage:
			fmt.Fprintf(&b, "[image %s detail=%s] %s", part.Label, part.Detail, part.DataURL())
		case PartURI:
			fmt.Fprintf(&b, "[document %s] %s", part.Label, part.URI)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// Document is a document reference handed to the composer. Freshly uploaded
// files carry Data; previously stored documents carry only URI.
type Document struct {
	Label    string
	MIMEType string
	Data     []byte
	URI      string
}

// Input is everything the composer needs.
type Input struct {
	Profile         models.ProfileData
	Category        string
	BackgroundStory string
	Documents       []Document
}

// Composer builds prompts from applicant data.
type Composer struct {
	system string
}

// NewComposer returns a composer using SystemInstruction.
func NewComposer() *Composer {
	return &Composer{system: SystemInstruction}
}

// DecodeProfile parses the JSON profile submitted by the client.
func DecodeProfile(raw string) (models.ProfileData, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("%w: profileData is required", apperr.ErrInvalidInput)
	}
	var profile models.ProfileData
	if err := json.Unmarshal([]byte(raw), &profile); err != nil {
		return nil, fmt.Errorf("%w: profileData is not valid JSON: %v", apperr.ErrInvalidInput, err)
	}
	if profile == nil {
		return nil, fmt.Errorf("%w: profileData must be a JSON object", apperr.ErrInvalidInput)
	}
	return profile, nil
}

// Compose builds the prompt. Images with bytes become inline parts with a
// high detail hint; everything else is referenced by URI.
func (c *Composer) Compose(in Input) (Prompt, error) {
	if in.Profile == nil {
		return Prompt{}, fmt.Errorf("%w: profile is required", apperr.ErrInvalidInput)
	}

	parts := []Part{{Kind: PartText, Text: c.userMessage(in)}}
	for i, doc := range in.Documents {
		label := doc.Label
		if label == "" {
			label = fmt.Sprintf("document_%d", i+1)
		}
		switch {
		case len(doc.Data) > 0 && strings.HasPrefix(doc.MIMEType, "image/"):
			parts = append(parts, Part{
				Kind:     PartInlineImage,
				Label:    label,
				MIMEType: doc.MIMEType,
				Data:     doc.Data,
				Detail:   DetailHigh,
			})
		case doc.URI != "":
			parts = append(parts, Part{Kind: PartURI, Label: label, MIMEType: doc.MIMEType, URI: doc.URI})
		default:
			return Prompt{}, fmt.Errorf("%w: document %q has neither image data nor a URI", apperr.ErrInvalidInput, label)
		}
	}

	return Prompt{System: c.system, Parts: parts}, nil
}

func (c *Composer) userMessage(in Input) string {
	var b strings.Builder
	b.WriteString(userPreamble)
	b.WriteString("\nUser Profile:\n")
	b.WriteString(FormatProfile(in.Profile))

	category := in.Category
	if category == "" {
		if v, ok := in.Profile[profileCategoryKey].(string); ok {
			category = v
		}
	}
	if category == "" {
		category = categoryFallback
	}
	b.WriteString("Selected Category: ")
	b.WriteString(category)

	story := in.BackgroundStory
	if story == "" {
		if v, ok := in.Profile[profileStoryKey].(string); ok {
			story = v
		}
	}
	if story != "" {
		b.WriteString("\nBackground Story: ")
		b.WriteString(story)
	}
	return b.String()
}

// FormatProfile renders the profile as "- key: value" lines sorted by key.
// Non-string values are JSON encoded.
func FormatProfile(profile models.ProfileData) string {
	keys := make([]string, 0, len(profile))
	for k := range profile {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString("- ")
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(formatValue(profile[k]))
		b.WriteString("\n")
	}
	return b.String()
}

func formatValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return val
	default:
		out, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(out)
	}
}
