package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/chessarena/tournament-service/models"
)

var ErrJobNotFound = errors.New("job not found")

// JobRepository is the persistence side of the match-end queue. Jobs carry
// only the game identifier; the worker resolves everything else itself.
type JobRepository interface {
	Enqueue(ctx context.Context, exec SQLExecutor, gameID string) error
	// DueBatch returns pending jobs whose run_at has passed, oldest first.
	DueBatch(ctx context.Context, now time.Time, limit int) ([]*models.Job, error)
	MarkDone(ctx context.Context, id int64) error
	// MarkFailed schedules a redelivery attempt.
	MarkFailed(ctx context.Context, id int64, attempts int, runAt time.Time, lastError string) error
	// MarkDead parks the job for operator inspection; no further redelivery.
	MarkDead(ctx context.Context, id int64, lastError string) error
}

type postgresJobRepository struct {
	db *sql.DB
}

func NewPostgresJobRepository(db *sql.DB) JobRepository {
	return &postgresJobRepository{db: db}
}

func (r *postgresJobRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresJobRepository) Enqueue(ctx context.Context, exec SQLExecutor, gameID string) error {
	executor := r.getExecutor(exec)
	query := `INSERT INTO match_end_jobs (game_id, status, run_at) VALUES ($1, $2, NOW())`
	if _, err := executor.ExecContext(ctx, query, gameID, models.JobPending); err != nil {
		return fmt.Errorf("failed to enqueue match-end job for game %s: %w", gameID, err)
	}
	return nil
}

func (r *postgresJobRepository) DueBatch(ctx context.Context, now time.Time, limit int) ([]*models.Job, error) {
	query := `
		SELECT id, game_id, status, attempts, run_at, last_error, created_at
		FROM match_end_jobs
		WHERE status = $1 AND run_at <= $2
		ORDER BY id ASC
		LIMIT $3`

	rows, err := r.db.QueryContext(ctx, query, models.JobPending, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query due jobs: %w", err)
	}
	defer rows.Close()

	jobs := make([]*models.Job, 0)
	for rows.Next() {
		var j models.Job
		if scanErr := rows.Scan(&j.ID, &j.GameID, &j.Status, &j.Attempts, &j.RunAt, &j.LastError, &j.CreatedAt); scanErr != nil {
			return nil, fmt.Errorf("failed to scan job row: %w", scanErr)
		}
		jobs = append(jobs, &j)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during job rows iteration: %w", err)
	}
	return jobs, nil
}

func (r *postgresJobRepository) MarkDone(ctx context.Context, id int64) error {
	query := `UPDATE match_end_jobs SET status = $1 WHERE id = $2`
	result, err := r.db.ExecContext(ctx, query, models.JobDone, id)
	if err != nil {
		return fmt.Errorf("failed to mark job %d done: %w", id, err)
	}
	return checkAffectedRows(result, ErrJobNotFound)
}

func (r *postgresJobRepository) MarkFailed(ctx context.Context, id int64, attempts int, runAt time.Time, lastError string) error {
	query := `UPDATE match_end_jobs SET attempts = $1, run_at = $2, last_error = $3 WHERE id = $4`
	result, err := r.db.ExecContext(ctx, query, attempts, runAt, lastError, id)
	if err != nil {
		return fmt.Errorf("failed to mark job %d failed: %w", id, err)
	}
	return checkAffectedRows(result, ErrJobNotFound)
}

func (r *postgresJobRepository) MarkDead(ctx context.Context, id int64, lastError string) error {
	query := `UPDATE match_end_jobs SET status = $1, last_error = $2 WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, models.JobDead, lastError, id)
	if err != nil {
		return fmt.Errorf("failed to mark job %d dead: %w", id, err)
	}
	return checkAffectedRows(result, ErrJobNotFound)
}
