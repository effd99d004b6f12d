package scanning

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Extractor defines the interface for reading line items from a bill page image
type Extractor interface {
	// Extract reads every line item and the declared total from a page image
	Extract(ctx context.Context, image []byte) (*Extraction, error)
	// Correct asks the model to re-examine a page given reconciliation feedback
	Correct(ctx context.Context, image []byte, feedback Feedback) (*CorrectionSet, error)
	// Close releases any resources held by the extractor
	Close() error
}

// Value is a number the model may emit as a JSON number, a string or null.
// It keeps the raw text so the caller can normalize it.
type Value struct {
	raw string
	set bool
}

// NewValue wraps raw text as a Value
func NewValue(raw string) Value {
	return Value{raw: raw, set: true}
}

// IsSet reports whether the model supplied the field at all
func (v Value) IsSet() bool {
	return v.set && strings.TrimSpace(v.raw) != ""
}

func (v Value) String() string {
	return v.raw
}

// UnmarshalJSON accepts numbers, strings and null
func (v *Value) UnmarshalJSON(b []byte) error {
	text := strings.TrimSpace(string(b))
	switch {
	case text == "null":
		*v = Value{}
	case strings.HasPrefix(text, `"`):
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*v = NewValue(s)
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("expected number, string or null, got %s", text)
		}
		*v = NewValue(n.String())
	}
	return nil
}

// MarshalJSON writes the raw text as a string, or null when unset
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.set {
		return []byte("null"), nil
	}
	return json.Marshal(v.raw)
}

// TokenUsage counts model tokens consumed by one or more calls
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Add returns the sum of two usages
func (t TokenUsage) Add(o TokenUsage) TokenUsage {
	return TokenUsage{
		InputTokens:  t.InputTokens + o.InputTokens,
		OutputTokens: t.OutputTokens + o.OutputTokens,
		TotalTokens:  t.TotalTokens + o.TotalTokens,
	}
}

// RawItem is a line item exactly as the model reported it
type RawItem struct {
	Name       string   `json:"item_name"`
	Quantity   Value    `json:"quantity"`
	Rate       Value    `json:"rate"`
	Amount     Value    `json:"amount"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// Extraction is the model's reading of one page
type Extraction struct {
	Reasoning     string     `json:"extraction_reasoning"`
	PageType      string     `json:"page_type"`
	Items         []RawItem  `json:"line_items"`
	DeclaredTotal Value      `json:"bill_total"`
	Notes         string     `json:"notes"`
	TokenUsage    TokenUsage `json:"-"`
}

// FeedbackItem is a line item as shown back to the model
type FeedbackItem struct {
	Name     string `json:"item_name"`
	Quantity string `json:"quantity"`
	Rate     string `json:"rate,omitempty"`
	Amount   string `json:"amount"`
}

// Feedback describes the current reconciliation mismatch for a correction request
type Feedback struct {
	Items              []FeedbackItem `json:"current_items"`
	CalculatedTotal    string         `json:"calculated_total"`
	DeclaredTotal      string         `json:"declared_total"`
	Discrepancy        string         `json:"discrepancy"`
	DiscrepancyPercent float64        `json:"discrepancy_percent"`
	ItemCount          int            `json:"item_count"`
}

// CorrectionSet is the model's answer to a correction request
type CorrectionSet struct {
	Analysis    string
	Corrections []Correction
	TokenUsage  TokenUsage
}
