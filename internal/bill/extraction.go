package bill

import (
	"time"

	"github.com/zombor/bill-extractor/internal/reconcile"
	"github.com/zombor/bill-extractor/internal/scanning"
)

// PageResult is the final outcome for one page of a document
type PageResult struct {
	PageNo               int                  `json:"page_no"`
	PageType             string               `json:"page_type,omitempty"`
	Items                []reconcile.LineItem `json:"bill_items"`
	ReconciliationStatus reconcile.Status     `json:"reconciliation_status"`
	Reconciliation       reconcile.Result     `json:"reconciliation"`
	History              []reconcile.Result   `json:"history,omitempty"`
	State                State                `json:"state"`
	RetryCount           int                  `json:"retry_count"`
	Removed              []reconcile.Removal  `json:"removed,omitempty"`
	Warnings             []string             `json:"warnings,omitempty"`
	TokenUsage           scanning.TokenUsage  `json:"token_usage"`
	Error                string               `json:"error,omitempty"`
}

// Extraction is a processed document with one result per page
type Extraction struct {
	ID             string              `json:"id"`
	Filename       string              `json:"filename"`
	ContentType    string              `json:"content_type"`
	Source         string              `json:"source,omitempty"` // URL the document was fetched from
	Pages          []PageResult        `json:"pagewise_line_items"`
	TotalItemCount int                 `json:"total_item_count"`
	TokenUsage     scanning.TokenUsage `json:"token_usage"`
	CreatedAt      time.Time           `json:"created_at"`
}

// Reconciled reports whether every page ended with a successful reconciliation
func (e *Extraction) Reconciled() bool {
	for _, p := range e.Pages {
		if !p.ReconciliationStatus.IsSuccess() {
			return false
		}
	}
	return true
}

// newPageResult converts a finished session into its public result
func newPageResult(s *Session) PageResult {
	items := s.CleanedItems
	if items == nil {
		items = []reconcile.LineItem{}
	}
	return PageResult{
		PageNo:               s.PageNo,
		PageType:             s.PageType,
		Items:                items,
		ReconciliationStatus: s.Reconciliation.Status,
		Reconciliation:       s.Reconciliation,
		History:              s.History,
		State:                s.State,
		RetryCount:           s.RetryCount,
		Removed:              s.Removed,
		Warnings:             s.Warnings,
		TokenUsage:           s.TokenUsage,
		Error:                s.Err,
	}
}

// aggregate fills in the document level totals from the page results
func (e *Extraction) aggregate() {
	e.TotalItemCount = 0
	e.TokenUsage = scanning.TokenUsage{}
	for _, p := range e.Pages {
		e.TotalItemCount += len(p.Items)
		e.TokenUsage = e.TokenUsage.Add(p.TokenUsage)
	}
}
