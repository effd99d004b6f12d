package bill

import (
	"fmt"
	"log/slog"

	"github.com/zombor/bill-extractor/internal/reconcile"
	"github.com/zombor/bill-extractor/internal/scanning"
)

// ApplyCorrections returns a new item list with corrections applied in order.
// Removing or modifying an item that does not exist is a no-op, and so is a
// correction whose values cannot be read. The input slice is not modified.
func ApplyCorrections(items []reconcile.LineItem, corrections []scanning.Correction, pageNo int) ([]reconcile.LineItem, []string) {
	out := make([]reconcile.LineItem, len(items))
	for i, item := range items {
		out[i] = item.Clone()
	}
	page := fmt.Sprint(pageNo)
	var notes []string

	for _, c := range corrections {
		switch c := c.(type) {
		case scanning.AddCorrection:
			item, warns, err := buildItem(c.Name, c.Quantity, c.Rate, c.Amount, page)
			if err != nil {
				notes = append(notes, fmt.Sprintf("ignored add of %q: %v", c.Name, err))
				continue
			}
			notes = append(notes, warns...)
			out = append(out, item)
			notes = append(notes, fmt.Sprintf("added %q (%s)", item.Name, item.Amount.String()))

		case scanning.RemoveCorrection:
			idx := findItem(out, c.Name)
			if idx < 0 {
				notes = append(notes, fmt.Sprintf("ignored remove of unknown item %q", c.Name))
				continue
			}
			out = append(out[:idx], out[idx+1:]...)
			notes = append(notes, fmt.Sprintf("removed %q", c.Name))

		case scanning.ModifyCorrection:
			idx := findItem(out, c.Name)
			if idx < 0 {
				notes = append(notes, fmt.Sprintf("ignored modify of unknown item %q", c.Name))
				continue
			}
			modified, err := modifyItem(out[idx], c)
			if err != nil {
				notes = append(notes, fmt.Sprintf("ignored modify of %q: %v", c.Name, err))
				continue
			}
			out[idx] = modified
			notes = append(notes, fmt.Sprintf("modified %q", c.Name))

		default:
			slog.Warn("Ignoring unsupported correction", "type", fmt.Sprintf("%T", c), "target", c.Target())
		}
	}
	return out, notes
}

// findItem returns the index of the first item whose name matches, or -1
func findItem(items []reconcile.LineItem, name string) int {
	for i, item := range items {
		if reconcile.SameName(item.Name, name) {
			return i
		}
	}
	return -1
}

// modifyItem replaces only the fields the correction supplies. Every supplied
// field must parse or the item is left as it was.
func modifyItem(item reconcile.LineItem, c scanning.ModifyCorrection) (reconcile.LineItem, error) {
	if c.Quantity.IsSet() {
		q, err := reconcile.ParseAmount(c.Quantity.String())
		if err != nil {
			return item, fmt.Errorf("quantity: %w", err)
		}
		if !q.IsPositive() {
			return item, fmt.Errorf("quantity must be positive, got %s", q.String())
		}
		item.Quantity = q
	}
	if c.Rate.IsSet() {
		r, err := reconcile.ParseAmount(c.Rate.String())
		if err != nil {
			return item, fmt.Errorf("rate: %w", err)
		}
		if r.IsNegative() {
			return item, fmt.Errorf("rate must not be negative, got %s", r.String())
		}
		item.Rate = &r
	}
	if c.Amount.IsSet() {
		a, err := reconcile.ParseAmount(c.Amount.String())
		if err != nil {
			return item, fmt.Errorf("amount: %w", err)
		}
		if a.IsNegative() {
			return item, errNegativeAmount
		}
		item.Amount = a
	}
	return item, nil
}

// feedbackFor describes the session's current mismatch for a correction request
func feedbackFor(s *Session) scanning.Feedback {
	items := make([]scanning.FeedbackItem, len(s.CleanedItems))
	for i, item := range s.CleanedItems {
		fi := scanning.FeedbackItem{
			Name:     item.Name,
			Quantity: item.Quantity.String(),
			Amount:   item.Amount.StringFixed(2),
		}
		if item.Rate != nil {
			fi.Rate = item.Rate.String()
		}
		items[i] = fi
	}

	declared := ""
	if s.Reconciliation.DeclaredTotal != nil {
		declared = s.Reconciliation.DeclaredTotal.StringFixed(2)
	}

	return scanning.Feedback{
		Items:              items,
		CalculatedTotal:    s.Reconciliation.CalculatedTotal.StringFixed(2),
		DeclaredTotal:      declared,
		Discrepancy:        s.Reconciliation.Discrepancy.StringFixed(2),
		DiscrepancyPercent: s.Reconciliation.DiscrepancyPercent,
		ItemCount:          len(items),
	}
}
