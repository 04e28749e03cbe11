package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brioche-erp/brioche/internal/shared"
)

const defaultRetentionHours = 24 * 90

// Cleaner prunes expired idempotency keys and aged audit rows.
type Cleaner struct {
	pool   *pgxpool.Pool
	keys   *shared.IdempotencyStore
	logger *slog.Logger
}

// NewCleaner constructs the maintenance job handler.
func NewCleaner(pool *pgxpool.Pool, keys *shared.IdempotencyStore, logger *slog.Logger) *Cleaner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cleaner{pool: pool, keys: keys, logger: logger}
}

// Handle processes TaskMaintenanceCleanup tasks.
func (c *Cleaner) Handle(ctx context.Context, t *asynq.Task) error {
	var payload CleanupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	hours := payload.RetentionHours
	if hours <= 0 {
		hours = defaultRetentionHours
	}
	retention := time.Duration(hours) * time.Hour
	if err := c.keys.Cleanup(ctx, retention); err != nil {
		return err
	}
	tag, err := c.pool.Exec(ctx, `DELETE FROM audit_logs WHERE occurred_at < $1`, time.Now().Add(-retention))
	if err != nil {
		return err
	}
	c.logger.Info("maintenance cleanup done",
		slog.Int("retention_hours", hours),
		slog.Int64("audit_rows_removed", tag.RowsAffected()))
	return nil
}
