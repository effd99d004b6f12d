package bill

import (
	"errors"
	"log/slog"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/zombor/bill-extractor/internal/reconcile"
	"github.com/zombor/bill-extractor/internal/scanning"
)

// Stage is the output of one clean, guard, validate and reconcile pass
type Stage struct {
	Items   []reconcile.LineItem
	Removed []reconcile.Removal
	Result  reconcile.Result
}

// Pipeline runs the pure reconciliation components in order
type Pipeline struct {
	guard     *reconcile.Guard
	validator *reconcile.Validator
	engine    *reconcile.Engine
}

// NewPipeline creates a Pipeline whose components all share cfg
func NewPipeline(cfg reconcile.Config) *Pipeline {
	return &Pipeline{
		guard:     reconcile.NewGuard(cfg),
		validator: reconcile.NewValidator(cfg),
		engine:    reconcile.NewEngine(cfg),
	}
}

// Run guards, validates and reconciles items against the declared total.
// The declared total always comes from the extraction, never from the items.
func (p *Pipeline) Run(items []reconcile.LineItem, declared *decimal.Decimal) Stage {
	cleaned := make([]reconcile.LineItem, len(items))
	for i, item := range items {
		cleaned[i] = item.Clone()
		cleaned[i].Name = reconcile.CleanName(item.Name)
	}

	kept, removed := p.guard.Filter(cleaned)
	validated := p.validator.Validate(kept)
	return Stage{
		Items:   validated,
		Removed: removed,
		Result:  p.engine.ReconcileItems(validated, declared),
	}
}

// Normalize turns raw model items into line items. Items whose amount cannot
// be read or is negative are returned as removals; unreadable quantities
// default to 1 and unreadable rates make the item amount-only.
func (p *Pipeline) Normalize(raw []scanning.RawItem, pageNo int) ([]reconcile.LineItem, []reconcile.Removal, []string) {
	page := strconv.Itoa(pageNo)
	items := make([]reconcile.LineItem, 0, len(raw))
	var (
		removed  []reconcile.Removal
		warnings []string
	)

	for _, r := range raw {
		item, warns, err := buildItem(r.Name, r.Quantity, r.Rate, r.Amount, page)
		warnings = append(warnings, warns...)
		if err != nil {
			slog.Warn("Dropping unreadable item", "page", page, "name", item.Name, "error", err)
			removed = append(removed, reconcile.Removal{Item: item, Kind: reconcile.RemovalInvalid, Reason: err.Error()})
			continue
		}
		items = append(items, item)
	}
	return items, removed, warnings
}

var errNegativeAmount = errors.New("negative amount")

// buildItem normalizes the fields of one item. A non-nil error means the item
// must be dropped.
func buildItem(name string, quantity, rate, amount scanning.Value, page string) (reconcile.LineItem, []string, error) {
	item := reconcile.LineItem{
		Name:     reconcile.CleanName(name),
		Quantity: decimal.NewFromInt(1),
		Page:     page,
	}
	var warnings []string

	if !amount.IsSet() {
		return item, nil, errors.New("missing amount")
	}
	a, err := reconcile.ParseAmount(amount.String())
	if err != nil {
		return item, nil, err
	}
	if a.IsNegative() {
		item.Amount = a
		return item, nil, errNegativeAmount
	}
	item.Amount = a

	if quantity.IsSet() {
		q, err := reconcile.ParseAmount(quantity.String())
		switch {
		case err != nil:
			warnings = append(warnings, item.Name+": unreadable quantity "+strconv.Quote(quantity.String())+", using 1")
		case !q.IsPositive():
			warnings = append(warnings, item.Name+": non-positive quantity "+q.String()+", using 1")
		default:
			item.Quantity = q
		}
	}

	if rate.IsSet() {
		r, err := reconcile.ParseAmount(rate.String())
		switch {
		case err != nil:
			warnings = append(warnings, item.Name+": unreadable rate "+strconv.Quote(rate.String())+", treating as amount-only")
		case r.IsNegative():
			warnings = append(warnings, item.Name+": negative rate "+r.String()+", treating as amount-only")
		default:
			item.Rate = &r
		}
	}

	return item, warnings, nil
}

// parseDeclaredTotal reads the declared total, treating anything unreadable as absent
func parseDeclaredTotal(v scanning.Value) (*decimal.Decimal, string) {
	if !v.IsSet() {
		return nil, ""
	}
	d, err := reconcile.ParseAmount(v.String())
	if err != nil {
		return nil, "unreadable declared total " + strconv.Quote(v.String())
	}
	if d.IsNegative() {
		return nil, "negative declared total " + d.String()
	}
	return &d, ""
}
