package scanning

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var (
	// jsonBlockPattern matches JSON inside markdown code blocks
	jsonBlockPattern = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(\\{.*\\})\\s*```")
	// trailingCommaPattern matches trailing commas before ] or }
	trailingCommaPattern = regexp.MustCompile(`,\s*([}\]])`)
)

// extractJSON pulls the JSON object out of a model response, tolerating
// markdown fences, surrounding prose and trailing commas
func extractJSON(text string) (string, error) {
	text = strings.TrimSpace(text)

	if m := jsonBlockPattern.FindStringSubmatch(text); len(m) > 1 {
		text = m[1]
	}

	// Find the JSON object boundaries - look for first { and last }
	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return "", fmt.Errorf("no JSON object found in response")
	}
	endIdx := strings.LastIndex(text, "}")
	if endIdx == -1 || endIdx < startIdx {
		return "", fmt.Errorf("invalid JSON object in response")
	}

	return trailingCommaPattern.ReplaceAllString(text[startIdx:endIdx+1], "$1"), nil
}

// parseExtraction parses the model's answer to an extraction request
func parseExtraction(text string) (*Extraction, error) {
	raw, err := extractJSON(text)
	if err != nil {
		return nil, malformed("extract", err)
	}
	if err := validateAgainstSchema(compiledExtractionSchema, []byte(raw)); err != nil {
		return nil, malformed("extract", err)
	}

	var data Extraction
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, malformed("extract", fmt.Errorf("unmarshaling extraction: %w", err))
	}

	items := data.Items[:0]
	for _, item := range data.Items {
		item.Name = strings.TrimSpace(item.Name)
		if item.Name == "" && !item.Amount.IsSet() {
			continue
		}
		items = append(items, item)
	}
	data.Items = items
	data.PageType = strings.TrimSpace(data.PageType)

	return &data, nil
}

// parseCorrections parses the model's answer to a correction request
func parseCorrections(text string) (*CorrectionSet, error) {
	raw, err := extractJSON(text)
	if err != nil {
		return nil, malformed("correct", err)
	}
	if err := validateAgainstSchema(compiledCorrectionSchema, []byte(raw)); err != nil {
		return nil, malformed("correct", err)
	}

	var payload struct {
		Analysis    string          `json:"analysis"`
		Corrections []rawCorrection `json:"corrections"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, malformed("correct", fmt.Errorf("unmarshaling corrections: %w", err))
	}

	set := &CorrectionSet{Analysis: payload.Analysis}
	for _, rc := range payload.Corrections {
		if c, ok := rc.toCorrection(); ok {
			set.Corrections = append(set.Corrections, c)
		}
	}
	return set, nil
}
