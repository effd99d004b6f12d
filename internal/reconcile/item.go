package reconcile

import (
	"github.com/shopspring/decimal"
)

// LineItem is a single purchasable row of a bill
type LineItem struct {
	Name     string           `json:"item_name"`
	Quantity decimal.Decimal  `json:"item_quantity"`
	Rate     *decimal.Decimal `json:"item_rate"` // nil when the bill omits a unit price
	Amount   decimal.Decimal  `json:"item_amount"`
	// Confidence is assigned by the Validator and reflects how consistent the
	// row is, not how sure the model was about it
	Confidence float64  `json:"confidence"`
	Page       string   `json:"page,omitempty"`
	Notes      []string `json:"notes,omitempty"`
}

// HasRate reports whether quantity x rate can be checked against the amount
func (i LineItem) HasRate() bool {
	return i.Rate != nil
}

// Clone returns a copy that shares no slices or pointers with i
func (i LineItem) Clone() LineItem {
	c := i
	if i.Rate != nil {
		r := *i.Rate
		c.Rate = &r
	}
	if i.Notes != nil {
		c.Notes = append([]string(nil), i.Notes...)
	}
	return c
}

// RemovalKind groups removal reasons
type RemovalKind string

const (
	RemovalKeyword    RemovalKind = "keyword"
	RemovalOutlierSum RemovalKind = "outlier_sum"
	RemovalInvalid    RemovalKind = "invalid"
)

// Removal records an item taken out of a page and why
type Removal struct {
	Item   LineItem    `json:"item"`
	Kind   RemovalKind `json:"kind"`
	Reason string      `json:"reason"`
}

// Status classifies a reconciliation attempt
type Status string

const (
	StatusExactMatch       Status = "exact_match"
	StatusWithinThreshold  Status = "within_threshold"
	StatusMismatch         Status = "mismatch"
	StatusNoTotalAvailable Status = "no_total_available"
)

// IsSuccess reports whether the status ends reconciliation successfully
func (s Status) IsSuccess() bool {
	switch s {
	case StatusExactMatch, StatusWithinThreshold, StatusNoTotalAvailable:
		return true
	}
	return false
}

// Result is the outcome of one reconciliation attempt. A new Result is produced
// for every attempt; callers must not modify one after it is returned.
type Result struct {
	IsMatch            bool             `json:"is_match"`
	CalculatedTotal    decimal.Decimal  `json:"calculated_total"`
	DeclaredTotal      *decimal.Decimal `json:"declared_total"`
	Discrepancy        decimal.Decimal  `json:"discrepancy"`
	DiscrepancyPercent float64          `json:"discrepancy_percent"`
	Status             Status           `json:"status"`
}

// Sum adds up item amounts exactly, rounded half-up to cents
func Sum(items []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Amount)
	}
	return total.Round(2)
}
