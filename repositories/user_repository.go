package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/chessarena/tournament-service/models"
)

var ErrUserNotFound = errors.New("user not found")

type UserRepository interface {
	GetByID(ctx context.Context, id int) (*models.User, error)
	// AddPoints credits bonus points atomically in the database, never
	// read-modify-write in Go.
	AddPoints(ctx context.Context, exec SQLExecutor, userID, points int) error
}

type postgresUserRepository struct {
	db *sql.DB
}

func NewPostgresUserRepository(db *sql.DB) UserRepository {
	return &postgresUserRepository{db: db}
}

func (r *postgresUserRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresUserRepository) GetByID(ctx context.Context, id int) (*models.User, error) {
	query := `SELECT id, nickname, points, created_at FROM users WHERE id = $1`

	u := &models.User{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(&u.ID, &u.Nickname, &u.Points, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to scan user %d: %w", id, err)
	}
	return u, nil
}

func (r *postgresUserRepository) AddPoints(ctx context.Context, exec SQLExecutor, userID, points int) error {
	executor := r.getExecutor(exec)
	query := `UPDATE users SET points = points + $1 WHERE id = $2`
	result, err := executor.ExecContext(ctx, query, points, userID)
	if err != nil {
		return fmt.Errorf("failed to add points for user %d: %w", userID, err)
	}
	return checkAffectedRows(result, ErrUserNotFound)
}
