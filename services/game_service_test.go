package services

import (
	"context"
	"sync"
	"testing"

	"github.com/chessarena/tournament-service/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEnqueuer struct {
	mu      sync.Mutex
	gameIDs []string
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, gameID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gameIDs = append(f.gameIDs, gameID)
	return nil
}

func TestRecordResultEnqueuesTournamentGame(t *testing.T) {
	games := newMemGameRepo()
	tournamentID := 1
	require.NoError(t, games.Upsert(context.Background(), nil, &models.Game{
		ID: "g1", TournamentID: &tournamentID, WhiteID: 1, BlackID: 2, Status: models.GameActive,
	}))

	enqueuer := &fakeEnqueuer{}
	svc := NewGameService(games, enqueuer, discardLogger())

	winner := 2
	require.NoError(t, svc.RecordResult(context.Background(), "g1", &winner))

	game, err := games.GetByID(context.Background(), "g1")
	require.NoError(t, err)
	assert.Equal(t, models.GameFinished, game.Status)
	require.NotNil(t, game.WinnerID)
	assert.Equal(t, 2, *game.WinnerID)
	assert.Equal(t, []string{"g1"}, enqueuer.gameIDs)
}

func TestRecordResultSkipsCasualGame(t *testing.T) {
	games := newMemGameRepo()
	require.NoError(t, games.Upsert(context.Background(), nil, &models.Game{
		ID: "g2", WhiteID: 1, BlackID: 2, Status: models.GameActive,
	}))

	enqueuer := &fakeEnqueuer{}
	svc := NewGameService(games, enqueuer, discardLogger())

	require.NoError(t, svc.RecordResult(context.Background(), "g2", nil))
	assert.Empty(t, enqueuer.gameIDs, "casual games never reach the queue")
}

func TestRecordResultUnknownGame(t *testing.T) {
	svc := NewGameService(newMemGameRepo(), &fakeEnqueuer{}, discardLogger())
	err := svc.RecordResult(context.Background(), "missing", nil)
	assert.ErrorIs(t, err, ErrGameNotFound)
}
