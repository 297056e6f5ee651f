package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/chessarena/tournament-service/metrics"
	"github.com/chessarena/tournament-service/repositories"
)

// MatchEndHandler is the single logical consumer of match-end jobs.
type MatchEndHandler interface {
	HandleMatchEnd(ctx context.Context, gameID string) error
}

// Dispatcher is the match-end event queue: producers enqueue a game id, one
// worker goroutine delivers it to the orchestrator. Delivery is at-least-once
// (the handler's completed-status guard absorbs duplicates); payloads carry
// identifiers only, never live handles.
type Dispatcher struct {
	jobs    repositories.JobRepository
	handler MatchEndHandler
	logger  *slog.Logger

	pollInterval time.Duration
	batchSize    int
	maxAttempts  int
	baseBackoff  time.Duration
}

func NewDispatcher(jobs repositories.JobRepository, handler MatchEndHandler, logger *slog.Logger, pollInterval time.Duration, maxAttempts int) *Dispatcher {
	return &Dispatcher{
		jobs:         jobs,
		handler:      handler,
		logger:       logger,
		pollInterval: pollInterval,
		batchSize:    50,
		maxAttempts:  maxAttempts,
		baseBackoff:  2 * time.Second,
	}
}

// Enqueue queues one match-end job. Safe to call from any goroutine.
func (d *Dispatcher) Enqueue(ctx context.Context, gameID string) error {
	return d.jobs.Enqueue(ctx, nil, gameID)
}

// Run is the single consumer loop. On shutdown the batch in flight is
// drained, not cancelled: ProcessOnce is synchronous and the loop only exits
// between batches.
func (d *Dispatcher) Run(ctx context.Context) {
	d.logger.Info("match-end queue worker running", slog.Duration("poll_interval", d.pollInterval))

	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("match-end queue worker stopped")
			return
		case <-ticker.C:
			if err := d.ProcessOnce(ctx); err != nil {
				d.logger.Error("queue poll failed", slog.Any("error", err))
			}
		}
	}
}

// ProcessOnce handles one batch of due jobs. A failing job is rescheduled
// with exponential backoff until the attempt budget runs out, then parked
// dead for operator inspection; the consumer itself never crashes on a bad
// job.
func (d *Dispatcher) ProcessOnce(ctx context.Context) error {
	batch, err := d.jobs.DueBatch(ctx, time.Now(), d.batchSize)
	if err != nil {
		return err
	}

	for _, job := range batch {
		if err := d.handler.HandleMatchEnd(ctx, job.GameID); err != nil {
			metrics.JobsFailed.Inc()
			d.failJob(ctx, job.ID, job.Attempts, err)
			continue
		}
		metrics.JobsProcessed.Inc()
		if err := d.jobs.MarkDone(ctx, job.ID); err != nil {
			d.logger.Error("failed to mark job done", slog.Int64("job_id", job.ID), slog.Any("error", err))
		}
	}
	return nil
}

func (d *Dispatcher) failJob(ctx context.Context, jobID int64, priorAttempts int, cause error) {
	attempts := priorAttempts + 1
	if attempts >= d.maxAttempts {
		metrics.JobsDead.Inc()
		d.logger.Error("job exhausted retries, parking dead",
			slog.Int64("job_id", jobID), slog.Int("attempts", attempts), slog.Any("error", cause))
		if err := d.jobs.MarkDead(ctx, jobID, cause.Error()); err != nil {
			d.logger.Error("failed to mark job dead", slog.Int64("job_id", jobID), slog.Any("error", err))
		}
		return
	}

	runAt := time.Now().Add(d.baseBackoff << uint(attempts-1))
	d.logger.Warn("job failed, scheduling retry",
		slog.Int64("job_id", jobID), slog.Int("attempts", attempts),
		slog.Time("run_at", runAt), slog.Any("error", cause))
	if err := d.jobs.MarkFailed(ctx, jobID, attempts, runAt, cause.Error()); err != nil {
		d.logger.Error("failed to mark job failed", slog.Int64("job_id", jobID), slog.Any("error", err))
	}
}
