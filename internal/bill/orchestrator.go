package bill

import (
	"context"
	"log/slog"
	"time"

	"github.com/zombor/bill-extractor/internal/reconcile"
	"github.com/zombor/bill-extractor/internal/scanning"
)

// Orchestrator drives one page from extraction to a terminal state:
//
//	initial -> reconciled
//	initial -> retry_1 -> ... -> retry_n -> exhausted
//
// with any state moving to reconciled as soon as reconciliation succeeds.
// RetryCount grows by one per correction round and is bounded by
// MaxRetryAttempts, so Run always terminates.
type Orchestrator struct {
	extractor   scanning.Extractor
	pipeline    *Pipeline
	cfg         reconcile.Config
	callTimeout time.Duration
	metrics     *Metrics
}

// NewOrchestrator creates an Orchestrator. callTimeout bounds each model call;
// zero means no timeout beyond ctx.
func NewOrchestrator(extractor scanning.Extractor, cfg reconcile.Config, callTimeout time.Duration, metrics *Metrics) *Orchestrator {
	return &Orchestrator{
		extractor:   extractor,
		pipeline:    NewPipeline(cfg),
		cfg:         cfg,
		callTimeout: callTimeout,
		metrics:     metrics,
	}
}

// Run extracts and reconciles one page image. It never returns an error: a
// failed extraction yields a session in StateFailed with Err set.
func (o *Orchestrator) Run(ctx context.Context, image []byte, pageNo int) *Session {
	s := newSession(pageNo)
	logger := slog.With("page", pageNo)

	ext, err := o.extract(ctx, image)
	if err != nil {
		logger.Error("Failed to extract page", "error", err)
		s.State = StateFailed
		s.Err = err.Error()
		s.Reconciliation = reconcile.Result{Status: reconcile.StatusMismatch}
		return s
	}

	s.TokenUsage = s.TokenUsage.Add(ext.TokenUsage)
	s.PageType = ext.PageType
	s.RawItems = ext.Items
	declared, warning := parseDeclaredTotal(ext.DeclaredTotal)
	if warning != "" {
		s.warn("%s", warning)
	}
	s.DeclaredTotal = declared

	items, invalid, warnings := o.pipeline.Normalize(ext.Items, pageNo)
	s.Removed = append(s.Removed, invalid...)
	s.Warnings = append(s.Warnings, warnings...)
	s.record(o.pipeline.Run(items, s.DeclaredTotal))

	for !s.State.Terminal() {
		s.State = o.next(s)
		logger.Info("Reconciliation step",
			"state", s.Label(),
			"status", s.Reconciliation.Status,
			"calculated", s.Reconciliation.CalculatedTotal.String(),
			"discrepancy_percent", s.Reconciliation.DiscrepancyPercent,
		)

		if s.State == StateRetrying && !o.correct(ctx, image, s) {
			s.State = StateExhausted
		}
	}
	return s
}

// next decides the transition out of the current reconciliation result
func (o *Orchestrator) next(s *Session) State {
	res := s.Reconciliation
	switch {
	case res.Status.IsSuccess():
		return StateReconciled
	case res.DiscrepancyPercent < o.cfg.MinDiscrepancyForRetryPercent:
		s.Accepted = true
		return StateReconciled
	case s.RetryCount < o.cfg.MaxRetryAttempts:
		s.RetryCount++
		return StateRetrying
	default:
		return StateExhausted
	}
}

// correct runs one correction round. It reports false when the loop should end.
func (o *Orchestrator) correct(ctx context.Context, image []byte, s *Session) bool {
	o.metrics.observeRetry()

	callCtx, cancel := o.callContext(ctx)
	defer cancel()
	set, err := o.extractor.Correct(callCtx, image, feedbackFor(s))
	if set != nil {
		s.TokenUsage = s.TokenUsage.Add(set.TokenUsage)
		o.metrics.observeCall("correct", err, set.TokenUsage)
	} else {
		o.metrics.observeCall("correct", err, scanning.TokenUsage{})
	}
	if err != nil {
		slog.Warn("Correction request failed", "page", s.PageNo, "retry", s.RetryCount, "error", err)
		s.warn("correction %d failed: %v", s.RetryCount, err)
		return false
	}
	if set == nil || len(set.Corrections) == 0 {
		s.warn("correction %d returned no changes", s.RetryCount)
		return false
	}

	items, notes := ApplyCorrections(s.CleanedItems, set.Corrections, s.PageNo)
	for _, n := range notes {
		s.warn("correction %d: %s", s.RetryCount, n)
	}
	s.record(o.pipeline.Run(items, s.DeclaredTotal))
	return true
}

func (o *Orchestrator) extract(ctx context.Context, image []byte) (*scanning.Extraction, error) {
	callCtx, cancel := o.callContext(ctx)
	defer cancel()

	ext, err := o.extractor.Extract(callCtx, image)
	usage := scanning.TokenUsage{}
	if ext != nil {
		usage = ext.TokenUsage
	}
	o.metrics.observeCall("extract", err, usage)
	return ext, err
}

func (o *Orchestrator) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.callTimeout)
}
