package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/chessarena/tournament-service/models"
	"github.com/lib/pq"
)

var (
	ErrGameNotFound      = errors.New("game not found")
	ErrGamePlayerInvalid = errors.New("game player reference invalid")
)

type GameRepository interface {
	// Upsert inserts the game or leaves an existing row untouched. Game ids
	// are deterministic per bracket slot, so a retried start hits the
	// conflict path instead of creating a second game.
	Upsert(ctx context.Context, exec SQLExecutor, game *models.Game) error
	GetByID(ctx context.Context, id string) (*models.Game, error)
	// SetResult records the terminal outcome reported by the game engine.
	SetResult(ctx context.Context, id string, winnerID *int) error
}

type postgresGameRepository struct {
	db *sql.DB
}

func NewPostgresGameRepository(db *sql.DB) GameRepository {
	return &postgresGameRepository{db: db}
}

func (r *postgresGameRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresGameRepository) Upsert(ctx context.Context, exec SQLExecutor, game *models.Game) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO games (id, tournament_id, white_id, black_id, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING`

	_, err := executor.ExecContext(ctx, query,
		game.ID,
		game.TournamentID,
		game.WhiteID,
		game.BlackID,
		game.Status,
	)
	return r.handleGameError(err)
}

func (r *postgresGameRepository) GetByID(ctx context.Context, id string) (*models.Game, error) {
	query := `
		SELECT id, tournament_id, white_id, black_id, status, winner_id, created_at
		FROM games
		WHERE id = $1`

	g := &models.Game{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&g.ID, &g.TournamentID, &g.WhiteID, &g.BlackID, &g.Status, &g.WinnerID, &g.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrGameNotFound
		}
		return nil, fmt.Errorf("failed to scan game %s: %w", id, err)
	}
	return g, nil
}

func (r *postgresGameRepository) SetResult(ctx context.Context, id string, winnerID *int) error {
	query := `UPDATE games SET status = $1, winner_id = $2 WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, models.GameFinished, winnerID, id)
	if err != nil {
		return r.handleGameError(err)
	}
	return checkAffectedRows(result, ErrGameNotFound)
}

func (r *postgresGameRepository) handleGameError(err error) error {
	if err == nil {
		return nil
	}
	if pqErr, ok := err.(*pq.Error); ok {
		switch pqErr.Constraint {
		case "games_white_id_fkey", "games_black_id_fkey", "games_winner_id_fkey":
			return ErrGamePlayerInvalid
		}
	}
	return err
}
