package services

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/chessarena/tournament-service/brackets"
	"github.com/chessarena/tournament-service/models"
	"github.com/chessarena/tournament-service/repositories"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeTxRunner struct{}

func (fakeTxRunner) RunInTx(ctx context.Context, fn func(repositories.SQLExecutor) error) error {
	return fn(nil)
}

type broadcastRecorder struct {
	mu       sync.Mutex
	messages []brackets.WebSocketMessage
}

func (r *broadcastRecorder) BroadcastToRoom(roomID string, message interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if msg, ok := message.(brackets.WebSocketMessage); ok {
		r.messages = append(r.messages, msg)
	}
}

func (r *broadcastRecorder) byType(msgType string) []brackets.WebSocketMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []brackets.WebSocketMessage
	for _, m := range r.messages {
		if m.Type == msgType {
			out = append(out, m)
		}
	}
	return out
}

type memTournamentRepo struct {
	mu          sync.Mutex
	tournaments map[int]*models.Tournament
}

func newMemTournamentRepo() *memTournamentRepo {
	return &memTournamentRepo{tournaments: make(map[int]*models.Tournament)}
}

func (r *memTournamentRepo) put(t *models.Tournament) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *t
	r.tournaments[t.ID] = &cp
}

func (r *memTournamentRepo) GetByID(_ context.Context, id int) (*models.Tournament, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tournaments[id]
	if !ok {
		return nil, repositories.ErrTournamentNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *memTournamentRepo) ListDueForStart(_ context.Context, now time.Time) ([]*models.Tournament, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var due []*models.Tournament
	for _, t := range r.tournaments {
		if t.Status == models.TournamentWaiting && !t.StartTime.After(now) {
			cp := *t
			due = append(due, &cp)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ID < due[j].ID })
	return due, nil
}

func (r *memTournamentRepo) ClaimForStart(_ context.Context, _ repositories.SQLExecutor, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tournaments[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	if t.Status != models.TournamentWaiting {
		return repositories.ErrTournamentStatusConflict
	}
	t.Status = models.TournamentInProgress
	return nil
}

func (r *memTournamentRepo) RevertToWaiting(_ context.Context, _ repositories.SQLExecutor, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tournaments[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	if t.Status != models.TournamentInProgress {
		return repositories.ErrTournamentStatusConflict
	}
	t.Status = models.TournamentWaiting
	return nil
}

func (r *memTournamentRepo) UpdateBracketInfo(_ context.Context, _ repositories.SQLExecutor, id, totalRounds, currentRound int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tournaments[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	t.TotalRounds = totalRounds
	t.CurrentRound = currentRound
	return nil
}

func (r *memTournamentRepo) UpdateCurrentRound(_ context.Context, _ repositories.SQLExecutor, id, round int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tournaments[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	t.CurrentRound = round
	return nil
}

func (r *memTournamentRepo) Finalize(_ context.Context, _ repositories.SQLExecutor, id, winnerID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tournaments[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	if t.Status != models.TournamentInProgress {
		return repositories.ErrTournamentStatusConflict
	}
	t.Status = models.TournamentFinished
	t.WinnerID = &winnerID
	return nil
}

type memParticipantRepo struct {
	mu           sync.Mutex
	participants map[int][]*models.Participant
}

func newMemParticipantRepo() *memParticipantRepo {
	return &memParticipantRepo{participants: make(map[int][]*models.Participant)}
}

func (r *memParticipantRepo) add(tournamentID, userID int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.participants[tournamentID] = append(r.participants[tournamentID], &models.Participant{
		ID:           len(r.participants[tournamentID]) + 1,
		TournamentID: tournamentID,
		UserID:       userID,
	})
}

func (r *memParticipantRepo) ListByTournament(_ context.Context, tournamentID int, _ bool) ([]*models.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.Participant, 0, len(r.participants[tournamentID]))
	for _, p := range r.participants[tournamentID] {
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

type memMatchRepo struct {
	mu      sync.Mutex
	nextID  int
	matches map[int]*models.Match
}

func newMemMatchRepo() *memMatchRepo {
	return &memMatchRepo{matches: make(map[int]*models.Match)}
}

func (r *memMatchRepo) Create(_ context.Context, _ repositories.SQLExecutor, match *models.Match) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	match.ID = r.nextID
	cp := *match
	r.matches[match.ID] = &cp
	return nil
}

func (r *memMatchRepo) GetByID(_ context.Context, id int) (*models.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.matches[id]
	if !ok {
		return nil, repositories.ErrMatchNotFound
	}
	cp := *m
	return &cp, nil
}

func (r *memMatchRepo) GetByGameID(_ context.Context, gameID string) (*models.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.matches {
		if m.GameID != nil && *m.GameID == gameID {
			cp := *m
			return &cp, nil
		}
	}
	return nil, repositories.ErrMatchNotFound
}

func (r *memMatchRepo) ListByTournament(_ context.Context, tournamentID int, round *int, status *models.MatchStatus) ([]*models.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Match
	for _, m := range r.matches {
		if m.TournamentID != tournamentID {
			continue
		}
		if round != nil && m.Round != *round {
			continue
		}
		if status != nil && m.Status != *status {
			continue
		}
		cp := *m
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Round != out[j].Round {
			return out[i].Round < out[j].Round
		}
		return out[i].MatchNumber < out[j].MatchNumber
	})
	return out, nil
}

func (r *memMatchRepo) DeleteByTournament(_ context.Context, _ repositories.SQLExecutor, tournamentID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, m := range r.matches {
		if m.TournamentID == tournamentID {
			delete(r.matches, id)
		}
	}
	return nil
}

func (r *memMatchRepo) ClaimStart(_ context.Context, _ repositories.SQLExecutor, id int, gameID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.matches[id]
	if !ok {
		return repositories.ErrMatchNotFound
	}
	if m.Status != models.MatchPending {
		return repositories.ErrMatchStateConflict
	}
	m.Status = models.MatchInProgress
	m.GameID = &gameID
	return nil
}

func (r *memMatchRepo) Complete(_ context.Context, _ repositories.SQLExecutor, id, winnerID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.matches[id]
	if !ok {
		return repositories.ErrMatchNotFound
	}
	if m.Status != models.MatchInProgress {
		return repositories.ErrMatchStateConflict
	}
	m.Status = models.MatchCompleted
	m.WinnerID = &winnerID
	return nil
}

func (r *memMatchRepo) CountOpenByRound(_ context.Context, tournamentID, round int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, m := range r.matches {
		if m.TournamentID != tournamentID || m.Round != round {
			continue
		}
		if m.Status == models.MatchPending || m.Status == models.MatchInProgress {
			count++
		}
	}
	return count, nil
}

type memGameRepo struct {
	mu    sync.Mutex
	games map[string]*models.Game
}

func newMemGameRepo() *memGameRepo {
	return &memGameRepo{games: make(map[string]*models.Game)}
}

func (r *memGameRepo) Upsert(_ context.Context, _ repositories.SQLExecutor, game *models.Game) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.games[game.ID]; exists {
		return nil
	}
	cp := *game
	r.games[game.ID] = &cp
	return nil
}

func (r *memGameRepo) GetByID(_ context.Context, id string) (*models.Game, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.games[id]
	if !ok {
		return nil, repositories.ErrGameNotFound
	}
	cp := *g
	return &cp, nil
}

func (r *memGameRepo) SetResult(_ context.Context, id string, winnerID *int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.games[id]
	if !ok {
		return repositories.ErrGameNotFound
	}
	g.Status = models.GameFinished
	g.WinnerID = winnerID
	return nil
}

func (r *memGameRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.games)
}

type memUserRepo struct {
	mu    sync.Mutex
	users map[int]*models.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[int]*models.User)}
}

func (r *memUserRepo) put(u *models.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *u
	r.users[u.ID] = &cp
}

func (r *memUserRepo) GetByID(_ context.Context, id int) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, repositories.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *memUserRepo) AddPoints(_ context.Context, _ repositories.SQLExecutor, userID, points int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return repositories.ErrUserNotFound
	}
	u.Points += points
	return nil
}

func (r *memUserRepo) points(userID int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[userID]; ok {
		return u.Points
	}
	return 0
}
