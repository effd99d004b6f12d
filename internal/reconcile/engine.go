package reconcile

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Engine compares calculated item sums with the bill's declared total
type Engine struct {
	thresholdPercent float64
}

// NewEngine creates an Engine using the reconciliation threshold in cfg
func NewEngine(cfg Config) *Engine {
	return &Engine{thresholdPercent: cfg.ReconciliationThresholdPercent}
}

// Reconcile classifies calculated against declared
func (e *Engine) Reconcile(calculated decimal.Decimal, declared *decimal.Decimal) Result {
	return Reconcile(calculated, declared, e.thresholdPercent)
}

// ReconcileItems sums items and reconciles the sum against declared
func (e *Engine) ReconcileItems(items []LineItem, declared *decimal.Decimal) Result {
	return e.Reconcile(Sum(items), declared)
}

// Reconcile classifies the agreement between a calculated total and the
// declared total. A nil declared total means there is nothing to compare against.
func Reconcile(calculated decimal.Decimal, declared *decimal.Decimal, thresholdPercent float64) Result {
	if declared == nil {
		return Result{
			IsMatch:         true,
			CalculatedTotal: calculated,
			Status:          StatusNoTotalAvailable,
		}
	}

	d := *declared
	res := Result{
		CalculatedTotal: calculated,
		DeclaredTotal:   &d,
		Discrepancy:     calculated.Sub(d),
	}

	switch {
	case res.Discrepancy.IsZero():
		res.IsMatch = true
		res.Status = StatusExactMatch
		return res
	case d.IsZero():
		res.DiscrepancyPercent = 100
		res.Status = StatusMismatch
		return res
	}

	res.DiscrepancyPercent = res.Discrepancy.Abs().Div(d.Abs()).Mul(hundred).InexactFloat64()
	if res.DiscrepancyPercent <= thresholdPercent {
		res.IsMatch = true
		res.Status = StatusWithinThreshold
		return res
	}

	res.Status = StatusMismatch
	return res
}
