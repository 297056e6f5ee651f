package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/chessarena/tournament-service/models"
	"github.com/lib/pq"
)

var (
	ErrTournamentNotFound       = errors.New("tournament not found")
	ErrTournamentStatusConflict = errors.New("tournament status changed concurrently")
	ErrTournamentWinnerInvalid  = errors.New("tournament winner reference invalid")
)

type TournamentRepository interface {
	GetByID(ctx context.Context, id int) (*models.Tournament, error)
	// ListDueForStart returns waiting tournaments whose start time has passed
	// and that have at least one registered participant.
	ListDueForStart(ctx context.Context, now time.Time) ([]*models.Tournament, error)
	// ClaimForStart flips waiting -> in_progress. Exactly one caller wins;
	// everyone else gets ErrTournamentStatusConflict.
	ClaimForStart(ctx context.Context, exec SQLExecutor, id int) error
	RevertToWaiting(ctx context.Context, exec SQLExecutor, id int) error
	UpdateBracketInfo(ctx context.Context, exec SQLExecutor, id, totalRounds, currentRound int) error
	UpdateCurrentRound(ctx context.Context, exec SQLExecutor, id, round int) error
	// Finalize flips in_progress -> finished and records the champion.
	Finalize(ctx context.Context, exec SQLExecutor, id, winnerID int) error
}

type postgresTournamentRepository struct {
	db *sql.DB
}

func NewPostgresTournamentRepository(db *sql.DB) TournamentRepository {
	return &postgresTournamentRepository{db: db}
}

func (r *postgresTournamentRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const tournamentColumns = `
	id, name, creator_id, status, player_count, current_round, total_rounds,
	start_time, entry_fee, prize_distribution, winner_id, created_at`

func scanTournament(row interface{ Scan(dest ...interface{}) error }, t *models.Tournament) error {
	return row.Scan(
		&t.ID, &t.Name, &t.CreatorID, &t.Status, &t.PlayerCount, &t.CurrentRound,
		&t.TotalRounds, &t.StartTime, &t.EntryFee, &t.PrizeDistribution,
		&t.WinnerID, &t.CreatedAt,
	)
}

func (r *postgresTournamentRepository) GetByID(ctx context.Context, id int) (*models.Tournament, error) {
	query := `SELECT` + tournamentColumns + ` FROM tournaments WHERE id = $1`

	t := &models.Tournament{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&t.ID, &t.Name, &t.CreatorID, &t.Status, &t.PlayerCount, &t.CurrentRound,
		&t.TotalRounds, &t.StartTime, &t.EntryFee, &t.PrizeDistribution,
		&t.WinnerID, &t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTournamentNotFound
		}
		return nil, fmt.Errorf("failed to scan tournament %d: %w", id, err)
	}
	return t, nil
}

func (r *postgresTournamentRepository) ListDueForStart(ctx context.Context, now time.Time) ([]*models.Tournament, error) {
	query := `
		SELECT` + tournamentColumns + `
		FROM tournaments t
		WHERE status = $1
		  AND start_time <= $2
		  AND EXISTS (SELECT 1 FROM participants p WHERE p.tournament_id = t.id)
		ORDER BY start_time ASC`

	rows, err := r.db.QueryContext(ctx, query, models.TournamentWaiting, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query due tournaments: %w", err)
	}
	defer rows.Close()

	tournaments := make([]*models.Tournament, 0)
	for rows.Next() {
		var t models.Tournament
		if scanErr := scanTournament(rows, &t); scanErr != nil {
			return nil, fmt.Errorf("failed to scan due tournament row: %w", scanErr)
		}
		tournaments = append(tournaments, &t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during due tournament rows iteration: %w", err)
	}
	return tournaments, nil
}

func (r *postgresTournamentRepository) ClaimForStart(ctx context.Context, exec SQLExecutor, id int) error {
	executor := r.getExecutor(exec)
	query := `UPDATE tournaments SET status = $1 WHERE id = $2 AND status = $3`
	result, err := executor.ExecContext(ctx, query, models.TournamentInProgress, id, models.TournamentWaiting)
	if err != nil {
		return r.handleTournamentError(err)
	}
	return checkAffectedRows(result, ErrTournamentStatusConflict)
}

func (r *postgresTournamentRepository) RevertToWaiting(ctx context.Context, exec SQLExecutor, id int) error {
	executor := r.getExecutor(exec)
	query := `UPDATE tournaments SET status = $1 WHERE id = $2 AND status = $3`
	result, err := executor.ExecContext(ctx, query, models.TournamentWaiting, id, models.TournamentInProgress)
	if err != nil {
		return r.handleTournamentError(err)
	}
	return checkAffectedRows(result, ErrTournamentStatusConflict)
}

func (r *postgresTournamentRepository) UpdateBracketInfo(ctx context.Context, exec SQLExecutor, id, totalRounds, currentRound int) error {
	executor := r.getExecutor(exec)
	query := `UPDATE tournaments SET total_rounds = $1, current_round = $2 WHERE id = $3`
	result, err := executor.ExecContext(ctx, query, totalRounds, currentRound, id)
	if err != nil {
		return fmt.Errorf("failed to update bracket info for tournament %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) UpdateCurrentRound(ctx context.Context, exec SQLExecutor, id, round int) error {
	executor := r.getExecutor(exec)
	query := `UPDATE tournaments SET current_round = $1 WHERE id = $2`
	result, err := executor.ExecContext(ctx, query, round, id)
	if err != nil {
		return fmt.Errorf("failed to update current round for tournament %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) Finalize(ctx context.Context, exec SQLExecutor, id, winnerID int) error {
	executor := r.getExecutor(exec)
	query := `
		UPDATE tournaments SET status = $1, winner_id = $2
		WHERE id = $3 AND status = $4`
	result, err := executor.ExecContext(ctx, query, models.TournamentFinished, winnerID, id, models.TournamentInProgress)
	if err != nil {
		return r.handleTournamentError(err)
	}
	return checkAffectedRows(result, ErrTournamentStatusConflict)
}

func (r *postgresTournamentRepository) handleTournamentError(err error) error {
	if err == nil {
		return nil
	}
	if pqErr, ok := err.(*pq.Error); ok {
		if pqErr.Code == "23503" && pqErr.Constraint == "tournaments_winner_id_fkey" {
			return ErrTournamentWinnerInvalid
		}
	}
	return err
}
