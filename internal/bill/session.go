package bill

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/zombor/bill-extractor/internal/reconcile"
	"github.com/zombor/bill-extractor/internal/scanning"
)

// State is a step of the per-page retry state machine
type State string

const (
	StateInitial    State = "initial"
	StateRetrying   State = "retrying"
	StateReconciled State = "reconciled"
	StateExhausted  State = "exhausted"
	StateFailed     State = "failed"
)

// Terminal reports whether no further transition is possible
func (s State) Terminal() bool {
	return s == StateReconciled || s == StateExhausted || s == StateFailed
}

// Session is the working state of one page while it is extracted, cleaned and
// reconciled. It is owned by a single page worker.
type Session struct {
	PageNo        int
	PageType      string
	DeclaredTotal *decimal.Decimal
	RawItems      []scanning.RawItem
	CleanedItems  []reconcile.LineItem
	Removed       []reconcile.Removal
	// Reconciliation is the latest result; History holds every attempt in order
	Reconciliation reconcile.Result
	History        []reconcile.Result
	RetryCount     int
	TokenUsage     scanning.TokenUsage
	State          State
	// Accepted is set when a mismatch was too small to be worth a correction call
	Accepted bool
	Warnings []string
	Err      string
}

func newSession(pageNo int) *Session {
	return &Session{PageNo: pageNo, State: StateInitial}
}

// Label names the current state the way logs show it, e.g. "retry_2"
func (s *Session) Label() string {
	if s.State == StateRetrying {
		return fmt.Sprintf("retry_%d", s.RetryCount)
	}
	return string(s.State)
}

func (s *Session) warn(format string, args ...any) {
	s.Warnings = append(s.Warnings, fmt.Sprintf(format, args...))
}

// record stores a pipeline pass as the session's current state
func (s *Session) record(stage Stage) {
	s.CleanedItems = stage.Items
	s.Removed = append(s.Removed, stage.Removed...)
	s.Reconciliation = stage.Result
	s.History = append(s.History, stage.Result)
}
