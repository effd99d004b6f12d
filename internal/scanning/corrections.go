package scanning

import (
	"log/slog"
	"strings"
)

// Correction is one edit the model asks for. The concrete types are
// AddCorrection, RemoveCorrection and ModifyCorrection.
type Correction interface {
	// Target is the item name the correction refers to
	Target() string
	isCorrection()
}

// AddCorrection inserts an item the first extraction missed
type AddCorrection struct {
	Name     string
	Quantity Value
	Rate     Value
	Amount   Value
	Reason   string
}

// RemoveCorrection deletes an item by name
type RemoveCorrection struct {
	Name   string
	Reason string
}

// ModifyCorrection replaces the supplied fields of an existing item
type ModifyCorrection struct {
	Name     string
	Quantity Value
	Rate     Value
	Amount   Value
	Reason   string
}

func (c AddCorrection) Target() string    { return c.Name }
func (c RemoveCorrection) Target() string { return c.Name }
func (c ModifyCorrection) Target() string { return c.Name }

func (AddCorrection) isCorrection()    {}
func (RemoveCorrection) isCorrection() {}
func (ModifyCorrection) isCorrection() {}

// rawCorrection is the wire shape of a correction
type rawCorrection struct {
	Action   string `json:"action"`
	ItemName string `json:"item_name"`
	Quantity Value  `json:"quantity"`
	Rate     Value  `json:"rate"`
	Amount   Value  `json:"amount"`
	Reason   string `json:"reason"`
}

// toCorrection converts the wire shape into a typed correction. Unknown
// actions and corrections without an item name are skipped.
func (r rawCorrection) toCorrection() (Correction, bool) {
	name := strings.TrimSpace(r.ItemName)
	if name == "" {
		slog.Warn("Skipping correction without item name", "action", r.Action)
		return nil, false
	}

	switch strings.ToLower(strings.TrimSpace(r.Action)) {
	case "add":
		return AddCorrection{Name: name, Quantity: r.Quantity, Rate: r.Rate, Amount: r.Amount, Reason: r.Reason}, true
	case "remove", "delete":
		return RemoveCorrection{Name: name, Reason: r.Reason}, true
	case "modify", "update":
		return ModifyCorrection{Name: name, Quantity: r.Quantity, Rate: r.Rate, Amount: r.Amount, Reason: r.Reason}, true
	default:
		slog.Warn("Skipping correction with unknown action", "action", r.Action, "item_name", name)
		return nil, false
	}
}
