package queue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/chessarena/tournament-service/models"
	"github.com/chessarena/tournament-service/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memJobRepo struct {
	mu     sync.Mutex
	nextID int64
	jobs   map[int64]*models.Job
}

func newMemJobRepo() *memJobRepo {
	return &memJobRepo{jobs: make(map[int64]*models.Job)}
}

func (r *memJobRepo) Enqueue(_ context.Context, _ repositories.SQLExecutor, gameID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.jobs[r.nextID] = &models.Job{
		ID:     r.nextID,
		GameID: gameID,
		Status: models.JobPending,
		RunAt:  time.Now(),
	}
	return nil
}

func (r *memJobRepo) DueBatch(_ context.Context, now time.Time, limit int) ([]*models.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var due []*models.Job
	for _, j := range r.jobs {
		if j.Status == models.JobPending && !j.RunAt.After(now) {
			cp := *j
			due = append(due, &cp)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ID < due[j].ID })
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (r *memJobRepo) MarkDone(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return repositories.ErrJobNotFound
	}
	j.Status = models.JobDone
	return nil
}

func (r *memJobRepo) MarkFailed(_ context.Context, id int64, attempts int, runAt time.Time, lastError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return repositories.ErrJobNotFound
	}
	j.Attempts = attempts
	j.RunAt = runAt
	j.LastError = &lastError
	return nil
}

func (r *memJobRepo) MarkDead(_ context.Context, id int64, lastError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return repositories.ErrJobNotFound
	}
	j.Status = models.JobDead
	j.LastError = &lastError
	return nil
}

func (r *memJobRepo) get(id int64) models.Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.jobs[id]
}

type recordingHandler struct {
	mu      sync.Mutex
	gameIDs []string
	errs    map[string]error
}

func (h *recordingHandler) HandleMatchEnd(_ context.Context, gameID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.gameIDs = append(h.gameIDs, gameID)
	return h.errs[gameID]
}

func (h *recordingHandler) deliveries() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.gameIDs...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDispatcherDeliversAndMarksDone(t *testing.T) {
	jobs := newMemJobRepo()
	handler := &recordingHandler{}
	d := NewDispatcher(jobs, handler, discardLogger(), time.Second, 3)

	require.NoError(t, d.Enqueue(context.Background(), "g1"))
	require.NoError(t, d.ProcessOnce(context.Background()))

	assert.Equal(t, []string{"g1"}, handler.deliveries())
	assert.Equal(t, models.JobDone, jobs.get(1).Status)

	// A done job never comes back.
	require.NoError(t, d.ProcessOnce(context.Background()))
	assert.Len(t, handler.deliveries(), 1)
}

func TestDispatcherPreservesEnqueueOrder(t *testing.T) {
	jobs := newMemJobRepo()
	handler := &recordingHandler{}
	d := NewDispatcher(jobs, handler, discardLogger(), time.Second, 3)

	for _, id := range []string{"g1", "g2", "g3"} {
		require.NoError(t, d.Enqueue(context.Background(), id))
	}
	require.NoError(t, d.ProcessOnce(context.Background()))
	assert.Equal(t, []string{"g1", "g2", "g3"}, handler.deliveries())
}

func TestDispatcherRetriesWithBackoff(t *testing.T) {
	jobs := newMemJobRepo()
	handler := &recordingHandler{errs: map[string]error{"g1": errors.New("transient")}}
	d := NewDispatcher(jobs, handler, discardLogger(), time.Second, 3)

	require.NoError(t, d.Enqueue(context.Background(), "g1"))
	before := time.Now()
	require.NoError(t, d.ProcessOnce(context.Background()))

	job := jobs.get(1)
	assert.Equal(t, models.JobPending, job.Status, "failed job stays pending for redelivery")
	assert.Equal(t, 1, job.Attempts)
	assert.True(t, job.RunAt.After(before), "redelivery is pushed into the future")
	require.NotNil(t, job.LastError)
	assert.Equal(t, "transient", *job.LastError)

	// Not due yet, so the next poll skips it.
	require.NoError(t, d.ProcessOnce(context.Background()))
	assert.Len(t, handler.deliveries(), 1)
}

func TestDispatcherParksExhaustedJobDead(t *testing.T) {
	jobs := newMemJobRepo()
	handler := &recordingHandler{errs: map[string]error{"g1": errors.New("poison")}}
	d := NewDispatcher(jobs, handler, discardLogger(), time.Second, 2)

	require.NoError(t, d.Enqueue(context.Background(), "g1"))
	require.NoError(t, d.ProcessOnce(context.Background()))

	// Force the retry due and fail it again, exhausting the budget.
	jobs.mu.Lock()
	jobs.jobs[1].RunAt = time.Now().Add(-time.Second)
	jobs.mu.Unlock()
	require.NoError(t, d.ProcessOnce(context.Background()))

	job := jobs.get(1)
	assert.Equal(t, models.JobDead, job.Status)
	assert.Len(t, handler.deliveries(), 2)

	// Dead jobs are parked, never redelivered.
	require.NoError(t, d.ProcessOnce(context.Background()))
	assert.Len(t, handler.deliveries(), 2)
}
