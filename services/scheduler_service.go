package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/chessarena/tournament-service/brackets"
	"github.com/chessarena/tournament-service/metrics"
	"github.com/chessarena/tournament-service/repositories"
)

// bracketCreator is the one orchestrator operation the scheduler needs.
type bracketCreator interface {
	CreateBracket(ctx context.Context, tournamentID int) error
}

// SchedulerService promotes due tournaments from waiting to in_progress on a
// fixed polling interval. Two overlapping ticks (or two instances) cannot
// double-start a tournament: the status compare-and-swap claim admits exactly
// one actor.
type SchedulerService struct {
	tournamentRepo repositories.TournamentRepository
	orchestrator   bracketCreator
	broadcaster    brackets.Broadcaster
	logger         *slog.Logger
	interval       time.Duration
}

func NewSchedulerService(
	tournamentRepo repositories.TournamentRepository,
	orchestrator bracketCreator,
	broadcaster brackets.Broadcaster,
	logger *slog.Logger,
	interval time.Duration,
) *SchedulerService {
	return &SchedulerService{
		tournamentRepo: tournamentRepo,
		orchestrator:   orchestrator,
		broadcaster:    broadcaster,
		logger:         logger,
		interval:       interval,
	}
}

// Run polls until the context is cancelled. One tick runs at startup so a
// restart does not delay overdue tournaments by a full interval.
func (s *SchedulerService) Run(ctx context.Context) {
	s.logger.Info("tournament start scheduler running", slog.Duration("interval", s.interval))

	s.RunTick(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("tournament start scheduler stopped")
			return
		case <-ticker.C:
			s.RunTick(ctx)
		}
	}
}

// RunTick processes every due tournament once. Failures are compensated and
// logged, never fatal: the next tick retries.
func (s *SchedulerService) RunTick(ctx context.Context) {
	due, err := s.tournamentRepo.ListDueForStart(ctx, time.Now())
	if err != nil {
		s.logger.Error("scheduler failed to list due tournaments", slog.Any("error", err))
		return
	}

	for _, tournament := range due {
		s.startTournament(ctx, tournament.ID)
	}
}

func (s *SchedulerService) startTournament(ctx context.Context, tournamentID int) {
	if err := s.tournamentRepo.ClaimForStart(ctx, nil, tournamentID); err != nil {
		if errors.Is(err, repositories.ErrTournamentStatusConflict) {
			// Another tick or instance got there first.
			return
		}
		s.logger.Error("scheduler failed to claim tournament",
			slog.Int("tournament_id", tournamentID), slog.Any("error", err))
		return
	}

	if err := s.orchestrator.CreateBracket(ctx, tournamentID); err != nil {
		s.logger.Error("bracket creation failed, reverting tournament to waiting",
			slog.Int("tournament_id", tournamentID), slog.Any("error", err))
		// TODO: bound the number of start attempts so a permanently broken
		// tournament does not retry forever.
		if revertErr := s.tournamentRepo.RevertToWaiting(ctx, nil, tournamentID); revertErr != nil {
			s.logger.Error("failed to revert tournament status",
				slog.Int("tournament_id", tournamentID), slog.Any("error", revertErr))
		}
		return
	}

	metrics.TournamentsStarted.Inc()
	s.logger.Info("tournament started", slog.Int("tournament_id", tournamentID))

	s.broadcaster.BroadcastToRoom(brackets.TournamentRoom(tournamentID), brackets.WebSocketMessage{
		Type:   brackets.TypeTournamentStarted,
		RoomID: brackets.TournamentRoom(tournamentID),
		Payload: brackets.TournamentStartedPayload{
			TournamentID: tournamentID,
			Status:       "in_progress",
		},
	})
}
