package inbound

import (
	"context"
	"log/slog"

	"github.com/memohai/chatrelay/internal/workerpool"
)

// PoolScheduler runs continuations on an in-process worker pool. Pending
// continuations are lost on crash; a full queue drops the continuation.
type PoolScheduler struct {
	pool   *workerpool.Pool
	logger *slog.Logger
}

func NewPoolScheduler(log *slog.Logger, pool *workerpool.Pool) *PoolScheduler {
	if log == nil {
		log = slog.Default()
	}
	return &PoolScheduler{pool: pool, logger: log.With(slog.String("component", "pool_scheduler"))}
}

// Schedule submits run(task). The job receives the pool's context, not ctx,
// so it outlives the request.
func (s *PoolScheduler) Schedule(_ context.Context, task Continuation, run RunFunc) error {
	err := s.pool.Submit(func(ctx context.Context) {
		run(ctx, task)
	})
	if err != nil {
		s.logger.Warn("continuation dropped",
			slog.String("dialogue_id", task.DialogueID),
			slog.String("message_id", task.MessageID),
			slog.Any("error", err),
		)
	}
	return err
}
