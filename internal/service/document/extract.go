package document

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/medichat/records-api/internal/model"
	apperrors "github.com/medichat/records-api/pkg/errors"
	"github.com/medichat/records-api/pkg/ai"
)

// maxExtractionInputChars bounds how much document text is sent to the model.
const maxExtractionInputChars = 20000

const extractionSystemPrompt = `You are a clinical data extraction engine. You receive the plain text of one medical document and return ONLY a JSON object, no prose, no markdown fences.

The JSON object has this shape (every field optional, arrays may be empty):
{
  "demographics": {"ageYears": 54, "gender": "female"},
  "hpi": {"historyOfPresentIllness": "...", "symptomOnset": "...", "symptomDuration": "..."},
  "vitals": [{"measuredAt": "2024-01-15", "systolic": 120, "diastolic": 80, "heartRate": 72, "temperatureC": 36.6}],
  "labs": [{"collectedAt": "2024-01-15", "testName": "HbA1c", "valueText": "6.1", "unit": "%", "referenceRange": "4.0-5.6", "flag": "high"}],
  "medications": [{"medicationName": "Metformin", "dose": "500 mg", "frequency": "twice daily", "active": true}],
  "conditions": [{"conditionName": "Type 2 diabetes", "status": "active"}]
}

Rules:
- Extract only what the document states. Never invent values.
- gender must be one of: female, male, nonbinary, other, unknown.
- Keep lab values as written in valueText; do not convert units.
- Dates as ISO strings when the document gives them, otherwise omit the field.`

// extractFacts runs the structured-extraction model call over document text
// and returns the parsed payload together with the raw JSON that was stored
// for audit.
func (s *Service) extractFacts(ctx context.Context, text string) (*model.Extraction, json.RawMessage, error) {
	input := truncateUTF8(text, maxExtractionInputChars)

	started := time.Now()
	resp, err := s.ai.ChatCompletion(ctx, &ai.ChatRequest{
		Model: s.extractModel,
		Messages: []ai.Message{
			{Role: ai.RoleSystem, Content: extractionSystemPrompt},
			{Role: ai.RoleUser, Content: input},
		},
		Temperature: 0,
	})
	s.metrics.ModelLatency.WithLabelValues("extraction").Observe(time.Since(started).Seconds())
	if err != nil {
		s.metrics.ModelCalls.WithLabelValues("extraction", "error").Inc()
		return nil, nil, apperrors.Wrap(apperrors.KindModelNoResponse, "extraction model call failed", err)
	}
	s.metrics.ModelCalls.WithLabelValues("extraction", "success").Inc()

	if len(resp.Choices) == 0 {
		return nil, nil, apperrors.New(apperrors.KindModelNoResponse)
	}

	raw, ok := locateJSON(resp.Choices[0].Message.Content)
	if !ok {
		return nil, nil, apperrors.New(apperrors.KindExtractionJSONMissing)
	}

	var extraction model.Extraction
	if err := json.Unmarshal(raw, &extraction); err != nil {
		return nil, nil, apperrors.Wrap(apperrors.KindExtractionInvalid, "extraction output does not match the expected schema", err)
	}
	if err := validateExtraction(&extraction); err != nil {
		return nil, nil, err
	}

	return &extraction, raw, nil
}

// truncateUTF8 cuts s to at most max bytes without splitting a rune.
func truncateUTF8(s string, max int) string {
	if len(s) <= max {
		return s
	}
	s = s[:max]
	for len(s) > 0 && !utf8.RuneStart(s[len(s)-1]) {
		s = s[:len(s)-1]
	}
	return s
}

// locateJSON tolerates prose or markdown fences around the model's JSON: it
// tries the trimmed content first, then the slice from the first '{' to the
// last '}'.
func locateJSON(content string) (json.RawMessage, bool) {
	trimmed := strings.TrimSpace(content)
	if json.Valid([]byte(trimmed)) && strings.HasPrefix(trimmed, "{") {
		return json.RawMessage(trimmed), true
	}

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start < 0 || end <= start {
		return nil, false
	}
	candidate := trimmed[start : end+1]
	if !json.Valid([]byte(candidate)) {
		return nil, false
	}
	return json.RawMessage(candidate), true
}

func validateExtraction(e *model.Extraction) error {
	for i, lab := range e.Labs {
		if strings.TrimSpace(lab.TestName) == "" || strings.TrimSpace(lab.ValueText) == "" {
			return apperrors.Newf(apperrors.KindExtractionInvalid, "labs[%d] is missing testName or valueText", i)
		}
	}
	for i, med := range e.Medications {
		if strings.TrimSpace(med.MedicationName) == "" {
			return apperrors.Newf(apperrors.KindExtractionInvalid, "medications[%d] is missing medicationName", i)
		}
	}
	for i, cond := range e.Conditions {
		if strings.TrimSpace(cond.ConditionName) == "" {
			return apperrors.Newf(apperrors.KindExtractionInvalid, "conditions[%d] is missing conditionName", i)
		}
	}
	return nil
}

// normalizeGender maps free-text gender onto the profile enum; anything
// unrecognized becomes unknown.
func normalizeGender(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "f", "female":
		return "female"
	case "m", "male":
		return "male"
	case "nonbinary", "non-binary":
		return "nonbinary"
	case "other":
		return "other"
	default:
		return "unknown"
	}
}

// numericLabValue derives the sortable numeric form of a lab value when the
// text is a plain number; qualitative results ("negative", "1:80") stay nil.
func numericLabValue(valueText string) *float64 {
	trimmed := strings.TrimSpace(valueText)
	if trimmed == "" {
		return nil
	}
	n, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return nil
	}
	return &n
}

// parseFactTime accepts the date formats extraction output carries and falls
// back to now when the value is absent or unparseable.
func parseFactTime(raw *string, now time.Time) time.Time {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return now
	}
	value := strings.TrimSpace(*raw)
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return now
}
