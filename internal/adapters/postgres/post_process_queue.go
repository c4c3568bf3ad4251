package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// PostProcessQueue implements ports.PostProcessor by enqueueing the
// transaction reference for a downstream worker. Enqueueing is best-effort
// and deduplicated on the reference; reconciliation never fails because the
// queue is unavailable.
type PostProcessQueue struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostProcessQueue creates a new post-processing queue
func NewPostProcessQueue(pool *pgxpool.Pool, logger *zap.Logger) *PostProcessQueue {
	return &PostProcessQueue{pool: pool, logger: logger}
}

// Trigger implements ports.PostProcessor
func (q *PostProcessQueue) Trigger(ctx context.Context, transactionReference string) {
	query := `
		INSERT INTO post_process_queue (transaction_reference, enqueued_at)
		VALUES ($1, now())
		ON CONFLICT (transaction_reference) DO NOTHING`

	if _, err := q.pool.Exec(ctx, query, transactionReference); err != nil {
		q.logger.Warn("failed to enqueue post-processing",
			zap.String("transaction_reference", transactionReference),
			zap.Error(err),
		)
	}
}
