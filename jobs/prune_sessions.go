package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/salesdesk/salesdesk/internal/observability"
)

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PruneSessionsJob removes expired login session rows.
type PruneSessionsJob struct {
	DB      execer
	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// NewPruneSessionsJob initialises the cleanup handler.
func NewPruneSessionsJob(db execer, logger *slog.Logger, metrics *observability.Metrics) *PruneSessionsJob {
	return &PruneSessionsJob{DB: db, Logger: logger, Metrics: metrics}
}

// Handle deletes sessions whose expiry has passed.
func (j *PruneSessionsJob) Handle(ctx context.Context, _ *asynq.Task) (err error) {
	if j == nil || j.DB == nil {
		return errors.New("prune sessions: handler not configured")
	}
	defer func() { j.Metrics.ObserveJob(TaskPruneSessions, err) }()

	tag, err := j.DB.Exec(ctx, `DELETE FROM user_sessions WHERE expires_at < now()`)
	if err != nil {
		return err
	}
	if n := tag.RowsAffected(); n > 0 {
		logger := j.Logger
		if logger == nil {
			logger = slog.Default()
		}
		logger.Info("expired sessions pruned", slog.Int64("count", n))
	}
	return nil
}
