package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/chessarena/tournament-service/models"
)

var ErrParticipantNotFound = errors.New("participant not found")

type ParticipantRepository interface {
	// ListByTournament returns registrations in join order. With includeUsers
	// the user row is joined in for nicknames.
	ListByTournament(ctx context.Context, tournamentID int, includeUsers bool) ([]*models.Participant, error)
}

type postgresParticipantRepository struct {
	db *sql.DB
}

func NewPostgresParticipantRepository(db *sql.DB) ParticipantRepository {
	return &postgresParticipantRepository{db: db}
}

func (r *postgresParticipantRepository) ListByTournament(ctx context.Context, tournamentID int, includeUsers bool) ([]*models.Participant, error) {
	if includeUsers {
		return r.listWithUsers(ctx, tournamentID)
	}

	query := `
		SELECT id, tournament_id, user_id, joined_at
		FROM participants
		WHERE tournament_id = $1
		ORDER BY joined_at ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query participants for tournament %d: %w", tournamentID, err)
	}
	defer rows.Close()

	participants := make([]*models.Participant, 0)
	for rows.Next() {
		var p models.Participant
		if scanErr := rows.Scan(&p.ID, &p.TournamentID, &p.UserID, &p.JoinedAt); scanErr != nil {
			return nil, fmt.Errorf("failed to scan participant row: %w", scanErr)
		}
		participants = append(participants, &p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during participant rows iteration: %w", err)
	}
	return participants, nil
}

func (r *postgresParticipantRepository) listWithUsers(ctx context.Context, tournamentID int) ([]*models.Participant, error) {
	query := `
		SELECT p.id, p.tournament_id, p.user_id, p.joined_at,
		       u.id, u.nickname, u.points, u.created_at
		FROM participants p
		JOIN users u ON u.id = p.user_id
		WHERE p.tournament_id = $1
		ORDER BY p.joined_at ASC, p.id ASC`

	rows, err := r.db.QueryContext(ctx, query, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query participants with users for tournament %d: %w", tournamentID, err)
	}
	defer rows.Close()

	participants := make([]*models.Participant, 0)
	for rows.Next() {
		var p models.Participant
		var u models.User
		if scanErr := rows.Scan(
			&p.ID, &p.TournamentID, &p.UserID, &p.JoinedAt,
			&u.ID, &u.Nickname, &u.Points, &u.CreatedAt,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan participant row with user: %w", scanErr)
		}
		p.User = &u
		participants = append(participants, &p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during participant rows iteration: %w", err)
	}
	return participants, nil
}
