package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/chessarena/tournament-service/repositories"
)

// MatchEndEnqueuer hands a finished game's id to the event queue. The
// orchestrator is never called inline from the ingestion path; a burst of
// simultaneous game completions must not block the reporter.
type MatchEndEnqueuer interface {
	Enqueue(ctx context.Context, gameID string) error
}

type GameService interface {
	// RecordResult stores the terminal outcome reported by the game engine
	// and, when the game belongs to a tournament, queues one match-end job.
	RecordResult(ctx context.Context, gameID string, winnerID *int) error
}

type gameService struct {
	gameRepo repositories.GameRepository
	enqueuer MatchEndEnqueuer
	logger   *slog.Logger
}

func NewGameService(gameRepo repositories.GameRepository, enqueuer MatchEndEnqueuer, logger *slog.Logger) GameService {
	return &gameService{gameRepo: gameRepo, enqueuer: enqueuer, logger: logger}
}

func (s *gameService) RecordResult(ctx context.Context, gameID string, winnerID *int) error {
	if err := s.gameRepo.SetResult(ctx, gameID, winnerID); err != nil {
		if errors.Is(err, repositories.ErrGameNotFound) {
			return fmt.Errorf("%w: %s", ErrGameNotFound, gameID)
		}
		return fmt.Errorf("failed to record result for game %s: %w", gameID, err)
	}

	game, err := s.gameRepo.GetByID(ctx, gameID)
	if err != nil {
		return fmt.Errorf("failed to reload game %s: %w", gameID, err)
	}
	if game.TournamentID == nil {
		s.logger.Info("casual game finished, nothing to enqueue", slog.String("game_id", gameID))
		return nil
	}

	if err := s.enqueuer.Enqueue(ctx, gameID); err != nil {
		return fmt.Errorf("failed to enqueue match-end job for game %s: %w", gameID, err)
	}
	return nil
}
