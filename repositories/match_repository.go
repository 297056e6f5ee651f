package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/chessarena/tournament-service/models"
	"github.com/lib/pq"
)

var (
	ErrMatchNotFound          = errors.New("match not found")
	ErrMatchStateConflict     = errors.New("match state changed concurrently")
	ErrMatchTournamentInvalid = errors.New("match tournament reference invalid")
	ErrMatchPlayerInvalid     = errors.New("match player reference invalid")
)

type MatchRepository interface {
	Create(ctx context.Context, exec SQLExecutor, match *models.Match) error
	GetByID(ctx context.Context, id int) (*models.Match, error)
	GetByGameID(ctx context.Context, gameID string) (*models.Match, error)
	ListByTournament(ctx context.Context, tournamentID int, round *int, status *models.MatchStatus) ([]*models.Match, error)
	DeleteByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) error
	// ClaimStart flips pending -> in_progress and links the game, guarded by
	// the current status so two racing starters cannot both win.
	ClaimStart(ctx context.Context, exec SQLExecutor, id int, gameID string) error
	// Complete flips in_progress -> completed with the winner; zero rows means
	// somebody else already completed it.
	Complete(ctx context.Context, exec SQLExecutor, id, winnerID int) error
	// CountOpenByRound counts matches still pending or in progress. Always a
	// fresh query: match-end events have no cross-match ordering, so a cached
	// counter could advance a round early.
	CountOpenByRound(ctx context.Context, tournamentID, round int) (int, error)
}

type postgresMatchRepository struct {
	db *sql.DB
}

func NewPostgresMatchRepository(db *sql.DB) MatchRepository {
	return &postgresMatchRepository{db: db}
}

func (r *postgresMatchRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const matchColumns = `
	id, tournament_id, round, match_number, player1_id, player2_id,
	status, winner_id, game_id, created_at`

func scanMatch(row interface{ Scan(dest ...interface{}) error }, m *models.Match) error {
	return row.Scan(
		&m.ID, &m.TournamentID, &m.Round, &m.MatchNumber, &m.Player1ID,
		&m.Player2ID, &m.Status, &m.WinnerID, &m.GameID, &m.CreatedAt,
	)
}

func (r *postgresMatchRepository) Create(ctx context.Context, exec SQLExecutor, match *models.Match) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO matches
			(tournament_id, round, match_number, player1_id, player2_id, status, winner_id, game_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`

	err := executor.QueryRowContext(ctx, query,
		match.TournamentID,
		match.Round,
		match.MatchNumber,
		match.Player1ID,
		match.Player2ID,
		match.Status,
		match.WinnerID,
		match.GameID,
	).Scan(&match.ID, &match.CreatedAt)

	return r.handleMatchError(err)
}

func (r *postgresMatchRepository) GetByID(ctx context.Context, id int) (*models.Match, error) {
	query := `SELECT` + matchColumns + ` FROM matches WHERE id = $1`

	m := &models.Match{}
	err := scanMatch(r.db.QueryRowContext(ctx, query, id), m)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMatchNotFound
		}
		return nil, fmt.Errorf("failed to scan match by id %d: %w", id, err)
	}
	return m, nil
}

func (r *postgresMatchRepository) GetByGameID(ctx context.Context, gameID string) (*models.Match, error) {
	query := `SELECT` + matchColumns + ` FROM matches WHERE game_id = $1`

	m := &models.Match{}
	err := scanMatch(r.db.QueryRowContext(ctx, query, gameID), m)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMatchNotFound
		}
		return nil, fmt.Errorf("failed to scan match by game id %s: %w", gameID, err)
	}
	return m, nil
}

func (r *postgresMatchRepository) ListByTournament(ctx context.Context, tournamentID int, roundFilter *int, statusFilter *models.MatchStatus) ([]*models.Match, error) {
	var queryBuilder strings.Builder
	queryBuilder.WriteString(`SELECT` + matchColumns + ` FROM matches WHERE tournament_id = $1`)

	args := []interface{}{tournamentID}
	placeholderIndex := 2

	if roundFilter != nil {
		queryBuilder.WriteString(" AND round = $")
		queryBuilder.WriteString(strconv.Itoa(placeholderIndex))
		args = append(args, *roundFilter)
		placeholderIndex++
	}
	if statusFilter != nil {
		queryBuilder.WriteString(" AND status = $")
		queryBuilder.WriteString(strconv.Itoa(placeholderIndex))
		args = append(args, *statusFilter)
	}

	queryBuilder.WriteString(" ORDER BY round ASC, match_number ASC")

	rows, err := r.db.QueryContext(ctx, queryBuilder.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query matches for tournament %d: %w", tournamentID, err)
	}
	defer rows.Close()

	matches := make([]*models.Match, 0)
	for rows.Next() {
		var m models.Match
		if scanErr := scanMatch(rows, &m); scanErr != nil {
			return nil, fmt.Errorf("failed to scan match row: %w", scanErr)
		}
		matches = append(matches, &m)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during match rows iteration: %w", err)
	}
	return matches, nil
}

func (r *postgresMatchRepository) DeleteByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) error {
	executor := r.getExecutor(exec)
	query := `DELETE FROM matches WHERE tournament_id = $1`
	if _, err := executor.ExecContext(ctx, query, tournamentID); err != nil {
		return fmt.Errorf("failed to delete matches for tournament %d: %w", tournamentID, err)
	}
	return nil
}

func (r *postgresMatchRepository) ClaimStart(ctx context.Context, exec SQLExecutor, id int, gameID string) error {
	executor := r.getExecutor(exec)
	query := `
		UPDATE matches SET status = $1, game_id = $2
		WHERE id = $3 AND status = $4`
	result, err := executor.ExecContext(ctx, query, models.MatchInProgress, gameID, id, models.MatchPending)
	if err != nil {
		return r.handleMatchError(err)
	}
	return checkAffectedRows(result, ErrMatchStateConflict)
}

func (r *postgresMatchRepository) Complete(ctx context.Context, exec SQLExecutor, id, winnerID int) error {
	executor := r.getExecutor(exec)
	query := `
		UPDATE matches SET status = $1, winner_id = $2
		WHERE id = $3 AND status = $4`
	result, err := executor.ExecContext(ctx, query, models.MatchCompleted, winnerID, id, models.MatchInProgress)
	if err != nil {
		return r.handleMatchError(err)
	}
	return checkAffectedRows(result, ErrMatchStateConflict)
}

func (r *postgresMatchRepository) CountOpenByRound(ctx context.Context, tournamentID, round int) (int, error) {
	query := `
		SELECT COUNT(*) FROM matches
		WHERE tournament_id = $1 AND round = $2 AND status IN ($3, $4)`

	var count int
	err := r.db.QueryRowContext(ctx, query, tournamentID, round, models.MatchPending, models.MatchInProgress).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count open matches for tournament %d round %d: %w", tournamentID, round, err)
	}
	return count, nil
}

func (r *postgresMatchRepository) handleMatchError(err error) error {
	if err == nil {
		return nil
	}
	if pqErr, ok := err.(*pq.Error); ok {
		switch pqErr.Constraint {
		case "matches_tournament_id_fkey":
			return ErrMatchTournamentInvalid
		case "matches_player1_id_fkey", "matches_player2_id_fkey", "matches_winner_id_fkey":
			return ErrMatchPlayerInvalid
		}
	}
	return err
}
