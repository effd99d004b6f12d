package reconcile

import (
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"
)

// Validator scores items for arithmetic consistency and statistical outliers.
// It lowers confidence and annotates, it never drops an item.
type Validator struct {
	cfg Config
}

// NewValidator creates a Validator using the tolerances in cfg
func NewValidator(cfg Config) *Validator {
	return &Validator{cfg: cfg}
}

// Validate returns scored copies of items. Scores and notes from an earlier
// pass are replaced; the input slice is left untouched.
func (v *Validator) Validate(items []LineItem) []LineItem {
	out := make([]LineItem, len(items))
	for i, item := range items {
		c := item.Clone()
		c.Notes = nil
		out[i] = v.checkMath(c)
	}

	if len(out) < 2 {
		return out
	}

	v.flagQuantityOutliers(out)
	v.flagAmountOutliers(out)
	return out
}

// checkMath compares quantity x rate against the amount
func (v *Validator) checkMath(item LineItem) LineItem {
	item.Confidence = v.cfg.Confidence.Normal
	if !item.HasRate() {
		return item
	}

	expected := item.Quantity.Mul(*item.Rate)
	if mismatch, pct := v.mathMismatch(expected, item.Amount); mismatch {
		item.Confidence = v.cfg.Confidence.MathMismatch
		item.Notes = append(item.Notes, fmt.Sprintf(
			"quantity x rate = %s does not match amount %s (off by %.2f%%)",
			expected.String(), item.Amount.String(), pct,
		))
	}
	return item
}

func (v *Validator) mathMismatch(expected, amount decimal.Decimal) (bool, float64) {
	diff := expected.Sub(amount).Abs()
	if amount.IsZero() {
		if diff.IsZero() {
			return false, 0
		}
		return true, 100
	}
	pct := diff.Div(amount.Abs()).Mul(decimal.NewFromInt(100)).InexactFloat64()
	return pct > v.cfg.MathTolerancePercent, pct
}

func (v *Validator) flagQuantityOutliers(items []LineItem) {
	quantities := make([]float64, len(items))
	for i, item := range items {
		quantities[i] = item.Quantity.InexactFloat64()
	}
	median := percentile(quantities, 0.5)

	for i := range items {
		q := quantities[i]
		overMedian := median > 0 && q > v.cfg.QuantityMedianMultiplier*median
		if !overMedian && q <= v.cfg.QuantityCeiling {
			continue
		}
		items[i].Confidence = math.Min(items[i].Confidence, v.cfg.Confidence.QuantityOutlier)
		items[i].Notes = append(items[i].Notes, fmt.Sprintf(
			"quantity %s looks like a misread digit (median %.4g, ceiling %.4g)",
			items[i].Quantity.String(), median, v.cfg.QuantityCeiling,
		))
	}
}

func (v *Validator) flagAmountOutliers(items []LineItem) {
	amounts := make([]float64, len(items))
	for i, item := range items {
		amounts[i] = item.Amount.InexactFloat64()
	}
	q1 := percentile(amounts, 0.25)
	q3 := percentile(amounts, 0.75)
	upper := q3 + v.cfg.IQRMultiplier*(q3-q1)

	for i := range items {
		if amounts[i] <= upper {
			continue
		}
		items[i].Confidence = math.Min(items[i].Confidence, v.cfg.Confidence.AmountOutlier)
		items[i].Notes = append(items[i].Notes, fmt.Sprintf(
			"amount %s is above the outlier fence %.2f", items[i].Amount.String(), upper,
		))
	}
}

// percentile uses linear interpolation between closest ranks
func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	pos := p * float64(len(sorted)-1)
	lower := int(math.Floor(pos))
	upper := int(math.Ceil(pos))
	if lower == upper {
		return sorted[lower]
	}
	frac := pos - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}
