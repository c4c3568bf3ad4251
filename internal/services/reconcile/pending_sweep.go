package reconcile

import (
	"context"
	"time"

	"github.com/kevin07696/bnpl-service/internal/domain/ports"
	"github.com/kevin07696/bnpl-service/pkg/observability"
	"go.uber.org/zap"
)

// PendingSweep is the safety net against a lost or undelivered webhook. At
// a fixed interval it re-reconciles draft/pending transactions created
// within the recency window. Older stale transactions are left alone for
// manual intervention; the policy is "poll recent pending, then stop", not
// "poll forever".
type PendingSweep struct {
	repo       ports.TransactionRepository
	reconciler *Reconciler
	interval   time.Duration
	window     time.Duration
	logger     *zap.Logger
}

// NewPendingSweep creates a sweep with the given cadence and recency window
func NewPendingSweep(repo ports.TransactionRepository, reconciler *Reconciler, interval, window time.Duration, logger *zap.Logger) *PendingSweep {
	return &PendingSweep{
		repo:       repo,
		reconciler: reconciler,
		interval:   interval,
		window:     window,
		logger:     logger,
	}
}

// Run executes sweeps on the configured interval until the context ends
func (s *PendingSweep) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				s.logger.Error("pending sweep failed", zap.Error(err))
			}
		}
	}
}

// SweepOnce reconciles every recent draft/pending transaction and returns
// the number checked
func (s *PendingSweep) SweepOnce(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-s.window)

	pending, err := s.repo.ListPendingCreatedAfter(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	checked := 0
	for _, txn := range pending {
		// A draft with no gateway binding has nothing to poll yet: session
		// creation either failed mid-way or is still in flight.
		if txn.GatewayReference == "" && txn.SourceReference == "" {
			continue
		}
		if _, err := s.reconciler.Refresh(ctx, txn); err != nil {
			s.logger.Warn("sweep reconciliation failed",
				zap.String("reference", txn.Reference),
				zap.Error(err),
			)
		}
		checked++
	}

	observability.ObserveSweep(checked)
	s.logger.Info("pending sweep completed",
		zap.Int("checked", checked),
		zap.Int("skipped", len(pending)-checked),
	)
	return checked, nil
}
