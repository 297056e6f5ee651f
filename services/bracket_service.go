package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/chessarena/tournament-service/brackets"
	"github.com/chessarena/tournament-service/models"
	"github.com/chessarena/tournament-service/repositories"
	"github.com/chessarena/tournament-service/storage"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// gameNamespace seeds deterministic game ids. One bracket slot maps to
// exactly one game id, so a retried StartMatch can never fork a second game.
var gameNamespace = uuid.MustParse("8f7a1c2e-54d3-4b8a-9c1f-6e2d0b4a7c93")

// BracketOrchestrator owns bracket creation, match lifecycle, round
// advancement and finalization. The persistent store is the sole source of
// truth; the hub is only notified as a side effect.
type BracketOrchestrator interface {
	CreateBracket(ctx context.Context, tournamentID int) error
	StartMatch(ctx context.Context, matchID int) (*models.Game, error)
	HandleMatchEnd(ctx context.Context, gameID string) error
	GetTournamentState(ctx context.Context, tournamentID int) (*models.Tournament, error)
}

type bracketService struct {
	txRunner        TxRunner
	tournamentRepo  repositories.TournamentRepository
	participantRepo repositories.ParticipantRepository
	matchRepo       repositories.MatchRepository
	gameRepo        repositories.GameRepository
	userRepo        repositories.UserRepository
	broadcaster     brackets.Broadcaster
	uploader        storage.FileUploader // nil disables summary archival
	logger          *slog.Logger
}

func NewBracketService(
	txRunner TxRunner,
	tournamentRepo repositories.TournamentRepository,
	participantRepo repositories.ParticipantRepository,
	matchRepo repositories.MatchRepository,
	gameRepo repositories.GameRepository,
	userRepo repositories.UserRepository,
	broadcaster brackets.Broadcaster,
	uploader storage.FileUploader,
	logger *slog.Logger,
) BracketOrchestrator {
	return &bracketService{
		txRunner:        txRunner,
		tournamentRepo:  tournamentRepo,
		participantRepo: participantRepo,
		matchRepo:       matchRepo,
		gameRepo:        gameRepo,
		userRepo:        userRepo,
		broadcaster:     broadcaster,
		uploader:        uploader,
		logger:          logger,
	}
}

// CreateBracket regenerates the round-1 bracket for the tournament. Existing
// matches are deleted first, so calling it twice leaves exactly one coherent
// bracket. The whole mutation runs in one transaction; a store failure leaves
// no partial bracket behind.
func (s *bracketService) CreateBracket(ctx context.Context, tournamentID int) error {
	tournament, err := s.tournamentRepo.GetByID(ctx, tournamentID)
	if err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return ErrTournamentNotFound
		}
		return fmt.Errorf("failed to load tournament %d: %w", tournamentID, err)
	}

	participants, err := s.participantRepo.ListByTournament(ctx, tournamentID, false)
	if err != nil {
		return fmt.Errorf("failed to list participants for tournament %d: %w", tournamentID, err)
	}
	if len(participants) == 0 {
		return ErrNoParticipants
	}

	playerIDs := make([]int, len(participants))
	for i, p := range participants {
		playerIDs[i] = p.UserID
	}

	totalRounds := totalRoundsFor(len(playerIDs))

	err = s.txRunner.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		if err := s.matchRepo.DeleteByTournament(ctx, exec, tournamentID); err != nil {
			return err
		}
		if err := s.createRoundMatches(ctx, exec, tournamentID, 1, playerIDs); err != nil {
			return err
		}
		return s.tournamentRepo.UpdateBracketInfo(ctx, exec, tournamentID, totalRounds, 1)
	})
	if err != nil {
		return fmt.Errorf("failed to generate bracket for tournament %d: %w", tournamentID, err)
	}

	s.logger.Info("bracket generated",
		slog.Int("tournament_id", tournamentID),
		slog.Int("participants", len(playerIDs)),
		slog.Int("total_rounds", totalRounds))

	// A one-participant bracket is a single bye and produces no match-end
	// event, so the round has to be checked here or it would stall.
	tournament.TotalRounds = totalRounds
	tournament.CurrentRound = 1
	return s.checkRoundCompletion(ctx, tournament, 1)
}

// totalRoundsFor is ceil(log2(n)), floored at one round so a degenerate
// single-entrant bracket still has a final.
func totalRoundsFor(n int) int {
	rounds := int(math.Ceil(math.Log2(float64(n))))
	if rounds < 1 {
		rounds = 1
	}
	return rounds
}

// createRoundMatches shuffles the players uniformly and pairs them two at a
// time. An odd leftover becomes a bye: terminal at birth, winner pre-set, no
// game ever created for it. Shared by CreateBracket and round advancement.
func (s *bracketService) createRoundMatches(ctx context.Context, exec repositories.SQLExecutor, tournamentID, round int, playerIDs []int) error {
	shuffled := make([]int, len(playerIDs))
	copy(shuffled, playerIDs)
	rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	matchNumber := 0
	for i := 0; i < len(shuffled); i += 2 {
		matchNumber++
		match := &models.Match{
			TournamentID: tournamentID,
			Round:        round,
			MatchNumber:  matchNumber,
			Player1ID:    shuffled[i],
			Status:       models.MatchPending,
		}
		if i+1 < len(shuffled) {
			p2 := shuffled[i+1]
			match.Player2ID = &p2
		} else {
			winner := shuffled[i]
			match.Status = models.MatchBye
			match.WinnerID = &winner
		}
		if err := s.matchRepo.Create(ctx, exec, match); err != nil {
			return fmt.Errorf("failed to create round %d match %d: %w", round, matchNumber, err)
		}
	}
	return nil
}

// StartMatch claims the match and links its game. Idempotent: if the match
// is already in progress the already-linked game comes back instead of a
// second one, which also covers both players racing to start.
func (s *bracketService) StartMatch(ctx context.Context, matchID int) (*models.Game, error) {
	match, err := s.matchRepo.GetByID(ctx, matchID)
	if err != nil {
		if errors.Is(err, repositories.ErrMatchNotFound) {
			return nil, ErrMatchNotFound
		}
		return nil, fmt.Errorf("failed to load match %d: %w", matchID, err)
	}

	if match.Status == models.MatchInProgress && match.GameID != nil {
		return s.gameRepo.GetByID(ctx, *match.GameID)
	}
	if match.Terminal() {
		return nil, fmt.Errorf("%w: match %d is %s", ErrInvalidMatchState, matchID, match.Status)
	}
	if match.Player2ID == nil {
		return nil, fmt.Errorf("%w: match %d", ErrMatchMissingPlayer, matchID)
	}

	tournament, err := s.tournamentRepo.GetByID(ctx, match.TournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load tournament %d: %w", match.TournamentID, err)
	}

	gameID := deterministicGameID(match.TournamentID, match.Round, match.MatchNumber)

	whiteID, blackID := match.Player1ID, *match.Player2ID
	if rand.Intn(2) == 1 {
		whiteID, blackID = blackID, whiteID
	}

	game := &models.Game{
		ID:           gameID,
		TournamentID: &tournament.ID,
		WhiteID:      whiteID,
		BlackID:      blackID,
		Status:       models.GameActive,
	}
	if err := s.gameRepo.Upsert(ctx, nil, game); err != nil {
		return nil, fmt.Errorf("failed to upsert game for match %d: %w", matchID, err)
	}

	if err := s.matchRepo.ClaimStart(ctx, nil, matchID, gameID); err != nil {
		if errors.Is(err, repositories.ErrMatchStateConflict) {
			// Lost the race. The winner already linked the game and sent the
			// broadcast; just return the shared game.
			current, getErr := s.matchRepo.GetByID(ctx, matchID)
			if getErr == nil && current.Status == models.MatchInProgress && current.GameID != nil {
				return s.gameRepo.GetByID(ctx, *current.GameID)
			}
			return nil, fmt.Errorf("%w: match %d", ErrConcurrencyConflict, matchID)
		}
		return nil, fmt.Errorf("failed to claim match %d: %w", matchID, err)
	}

	s.broadcaster.BroadcastToRoom(brackets.TournamentRoom(tournament.ID), brackets.WebSocketMessage{
		Type:   brackets.TypeMatchStarted,
		RoomID: brackets.TournamentRoom(tournament.ID),
		Payload: brackets.MatchStartedPayload{
			MatchID: matchID,
			Round:   match.Round,
			GameID:  gameID,
			Players: s.matchPlayers(ctx, whiteID, blackID),
		},
	})

	return s.gameRepo.GetByID(ctx, gameID)
}

func deterministicGameID(tournamentID, round, matchNumber int) string {
	name := fmt.Sprintf("tournament:%d:round:%d:match:%d", tournamentID, round, matchNumber)
	return uuid.NewSHA1(gameNamespace, []byte(name)).String()
}

func (s *bracketService) matchPlayers(ctx context.Context, whiteID, blackID int) []brackets.MatchPlayer {
	return []brackets.MatchPlayer{
		{UserID: whiteID, Nickname: s.nicknameOf(ctx, whiteID), Color: "white"},
		{UserID: blackID, Nickname: s.nicknameOf(ctx, blackID), Color: "black"},
	}
}

func (s *bracketService) nicknameOf(ctx context.Context, userID int) string {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		s.logger.Warn("failed to load user for broadcast", slog.Int("user_id", userID), slog.Any("error", err))
		return fmt.Sprintf("Player %d", userID)
	}
	return user.Nickname
}

// HandleMatchEnd is the queue consumer's entry point for a terminal game.
// Delivery is at-least-once, so everything here must tolerate duplicates: a
// game without tournament linkage or winner is a logged no-op, and a match
// that is already completed returns without side effects.
func (s *bracketService) HandleMatchEnd(ctx context.Context, gameID string) error {
	game, err := s.gameRepo.GetByID(ctx, gameID)
	if err != nil {
		if errors.Is(err, repositories.ErrGameNotFound) {
			return fmt.Errorf("%w: %s", ErrGameNotFound, gameID)
		}
		return fmt.Errorf("failed to load game %s: %w", gameID, err)
	}
	if game.TournamentID == nil || game.WinnerID == nil {
		s.logger.Info("ignoring game without tournament linkage or winner", slog.String("game_id", gameID))
		return nil
	}

	match, err := s.matchRepo.GetByGameID(ctx, gameID)
	if err != nil {
		if errors.Is(err, repositories.ErrMatchNotFound) {
			return fmt.Errorf("%w: no match linked to game %s", ErrMatchNotFound, gameID)
		}
		return fmt.Errorf("failed to load match for game %s: %w", gameID, err)
	}
	if match.Status == models.MatchCompleted {
		s.logger.Info("duplicate match-end delivery", slog.String("game_id", gameID), slog.Int("match_id", match.ID))
		return nil
	}

	winnerID := *game.WinnerID
	if err := s.matchRepo.Complete(ctx, nil, match.ID, winnerID); err != nil {
		if errors.Is(err, repositories.ErrMatchStateConflict) {
			current, getErr := s.matchRepo.GetByID(ctx, match.ID)
			if getErr == nil && current.Status == models.MatchCompleted {
				return nil
			}
			return fmt.Errorf("%w: match %d", ErrConcurrencyConflict, match.ID)
		}
		return fmt.Errorf("failed to complete match %d: %w", match.ID, err)
	}

	tournament, err := s.tournamentRepo.GetByID(ctx, *game.TournamentID)
	if err != nil {
		return fmt.Errorf("failed to load tournament %d: %w", *game.TournamentID, err)
	}

	s.broadcaster.BroadcastToRoom(brackets.TournamentRoom(tournament.ID), brackets.WebSocketMessage{
		Type:   brackets.TypeMatchCompleted,
		RoomID: brackets.TournamentRoom(tournament.ID),
		Payload: brackets.MatchCompletedPayload{
			MatchID:    match.ID,
			Round:      match.Round,
			WinnerID:   winnerID,
			WinnerName: s.nicknameOf(ctx, winnerID),
		},
	})

	points := calculateMatchPoints(match.Round, tournament.TotalRounds)
	if err := s.userRepo.AddPoints(ctx, nil, winnerID, points); err != nil {
		s.logger.Error("failed to credit match points",
			slog.Int("user_id", winnerID), slog.Int("points", points), slog.Any("error", err))
	}

	return s.checkRoundCompletion(ctx, tournament, match.Round)
}

// checkRoundCompletion recounts open matches from the store every time.
// Match-end events carry no ordering guarantee across matches, so a running
// counter could advance the round early.
func (s *bracketService) checkRoundCompletion(ctx context.Context, tournament *models.Tournament, round int) error {
	open, err := s.matchRepo.CountOpenByRound(ctx, tournament.ID, round)
	if err != nil {
		return fmt.Errorf("failed to count open matches for tournament %d round %d: %w", tournament.ID, round, err)
	}
	if open > 0 {
		return nil
	}
	return s.advanceToNextRound(ctx, tournament, round)
}

func (s *bracketService) advanceToNextRound(ctx context.Context, tournament *models.Tournament, completedRound int) error {
	if completedRound+1 > tournament.TotalRounds {
		return s.finalizeTournament(ctx, tournament)
	}

	roundMatches, err := s.matchRepo.ListByTournament(ctx, tournament.ID, &completedRound, nil)
	if err != nil {
		return fmt.Errorf("failed to list round %d matches for tournament %d: %w", completedRound, tournament.ID, err)
	}

	winners := make([]int, 0, len(roundMatches))
	for _, m := range roundMatches {
		if m.WinnerID == nil {
			return fmt.Errorf("match %d of completed round %d has no winner", m.ID, completedRound)
		}
		winners = append(winners, *m.WinnerID)
	}

	nextRound := completedRound + 1
	err = s.txRunner.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		if err := s.createRoundMatches(ctx, exec, tournament.ID, nextRound, winners); err != nil {
			return err
		}
		return s.tournamentRepo.UpdateCurrentRound(ctx, exec, tournament.ID, nextRound)
	})
	if err != nil {
		return fmt.Errorf("failed to advance tournament %d to round %d: %w", tournament.ID, nextRound, err)
	}

	s.logger.Info("round advanced",
		slog.Int("tournament_id", tournament.ID),
		slog.Int("completed_round", completedRound),
		slog.Int("winners", len(winners)))

	s.broadcaster.BroadcastToRoom(brackets.TournamentRoom(tournament.ID), brackets.WebSocketMessage{
		Type:   brackets.TypeRoundAdvanced,
		RoomID: brackets.TournamentRoom(tournament.ID),
		Payload: brackets.RoundAdvancedPayload{
			CompletedRound: completedRound,
			NextRound:      nextRound,
			WinnersCount:   len(winners),
		},
	})
	return nil
}

// finalizeTournament crowns the winner of the round == totalRounds match.
// Never "the most recently completed match": with irregular byes that can
// point at the wrong node, so a missing or unresolved final is a hard error.
func (s *bracketService) finalizeTournament(ctx context.Context, tournament *models.Tournament) error {
	finalRound := tournament.TotalRounds
	finalMatches, err := s.matchRepo.ListByTournament(ctx, tournament.ID, &finalRound, nil)
	if err != nil {
		return fmt.Errorf("failed to list final round matches for tournament %d: %w", tournament.ID, err)
	}
	if len(finalMatches) != 1 || finalMatches[0].WinnerID == nil {
		return fmt.Errorf("%w: tournament %d round %d has %d matches",
			ErrFinalMatchMissing, tournament.ID, finalRound, len(finalMatches))
	}
	championID := *finalMatches[0].WinnerID

	if err := s.tournamentRepo.Finalize(ctx, nil, tournament.ID, championID); err != nil {
		if errors.Is(err, repositories.ErrTournamentStatusConflict) {
			// Already finalized by another path; finalization is exactly-once.
			s.logger.Info("tournament already finalized", slog.Int("tournament_id", tournament.ID))
			return nil
		}
		return fmt.Errorf("failed to finalize tournament %d: %w", tournament.ID, err)
	}

	if err := s.userRepo.AddPoints(ctx, nil, championID, championBonus); err != nil {
		s.logger.Error("failed to credit champion bonus",
			slog.Int("user_id", championID), slog.Any("error", err))
	}

	championName := fmt.Sprintf("Player %d", championID)
	totalPoints := championBonus
	if champion, err := s.userRepo.GetByID(ctx, championID); err == nil {
		championName = champion.Nickname
		totalPoints = champion.Points
	}

	s.logger.Info("tournament finished",
		slog.Int("tournament_id", tournament.ID),
		slog.Int("champion_id", championID))

	s.broadcaster.BroadcastToRoom(brackets.TournamentRoom(tournament.ID), brackets.WebSocketMessage{
		Type:   brackets.TypeTournamentFinished,
		RoomID: brackets.TournamentRoom(tournament.ID),
		Payload: brackets.TournamentFinishedPayload{
			ChampionID:   championID,
			ChampionName: championName,
			TotalPoints:  totalPoints,
		},
	})

	s.archiveSummary(ctx, tournament.ID, championID)
	return nil
}

// archiveSummary uploads the final bracket to object storage. Best effort:
// finalization never fails because the archive did.
func (s *bracketService) archiveSummary(ctx context.Context, tournamentID, championID int) {
	if s.uploader == nil {
		return
	}

	state, err := s.GetTournamentState(ctx, tournamentID)
	if err != nil {
		s.logger.Warn("failed to load state for archive", slog.Int("tournament_id", tournamentID), slog.Any("error", err))
		return
	}

	summary, err := json.Marshal(struct {
		Tournament *models.Tournament `json:"tournament"`
		ChampionID int                `json:"champion_id"`
		ArchivedAt time.Time          `json:"archived_at"`
	}{state, championID, time.Now().UTC()})
	if err != nil {
		s.logger.Warn("failed to marshal summary", slog.Int("tournament_id", tournamentID), slog.Any("error", err))
		return
	}

	key := fmt.Sprintf("tournaments/%d/summary.json", tournamentID)
	if _, err := s.uploader.Upload(ctx, key, "application/json", strings.NewReader(string(summary))); err != nil {
		s.logger.Warn("failed to archive tournament summary", slog.Int("tournament_id", tournamentID), slog.Any("error", err))
		return
	}
	s.logger.Info("tournament summary archived", slog.Int("tournament_id", tournamentID), slog.String("key", key))
}

// GetTournamentState loads the authoritative view a reconnecting client must
// query: missed broadcasts are never replayed.
func (s *bracketService) GetTournamentState(ctx context.Context, tournamentID int) (*models.Tournament, error) {
	tournament, err := s.tournamentRepo.GetByID(ctx, tournamentID)
	if err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return nil, ErrTournamentNotFound
		}
		return nil, fmt.Errorf("failed to load tournament %d: %w", tournamentID, err)
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		participants, err := s.participantRepo.ListByTournament(gCtx, tournamentID, true)
		if err != nil {
			return fmt.Errorf("failed to list participants: %w", err)
		}
		tournament.Participants = make([]models.Participant, 0, len(participants))
		for _, p := range participants {
			tournament.Participants = append(tournament.Participants, *p)
		}
		return nil
	})

	g.Go(func() error {
		matches, err := s.matchRepo.ListByTournament(gCtx, tournamentID, nil, nil)
		if err != nil {
			return fmt.Errorf("failed to list matches: %w", err)
		}
		tournament.Matches = make([]models.Match, 0, len(matches))
		for _, m := range matches {
			tournament.Matches = append(tournament.Matches, *m)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to load full state for tournament %d: %w", tournamentID, err)
	}
	return tournament, nil
}
