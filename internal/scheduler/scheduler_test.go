package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ja38055/TechFataFat/internal/config"
	"github.com/ja38055/TechFataFat/internal/db"
	"github.com/ja38055/TechFataFat/internal/models"
	"github.com/ja38055/TechFataFat/internal/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type brokenQueue struct{}

func (brokenQueue) EnqueueRun(context.Context, uuid.UUID, string, *string) error {
	return errors.New("redis down")
}

func channels(schedules ...string) []config.Channel {
	out := make([]config.Channel, 0, len(schedules))
	for i, s := range schedules {
		out = append(out, config.Channel{Name: []string{"TechFatafat", "GadgetGyan"}[i], Schedule: s})
	}
	return out
}

func TestNewRegistersEverySchedule(t *testing.T) {
	s, err := New(db.NewMemoryStore(), queue.NewLocal(1), channels("@daily", "30 9 * * 1-5"), zap.NewNop())
	require.NoError(t, err)
	assert.Len(t, s.cron.Entries(), 2)
}

func TestNewRejectsBadSchedule(t *testing.T) {
	_, err := New(db.NewMemoryStore(), queue.NewLocal(1), channels("@daily", "every tuesday"), zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GadgetGyan")
}

func TestTriggerQueuesRun(t *testing.T) {
	store := db.NewMemoryStore()
	q := queue.NewLocal(2)
	s, err := New(store, q, channels("@daily"), zap.NewNop())
	require.NoError(t, err)

	id, err := s.Trigger(context.Background(), "TechFatafat")
	require.NoError(t, err)

	run, err := store.GetRun(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.StageQueued, run.Stage)
	assert.Nil(t, run.Topic)

	job, err := q.Dequeue(context.Background(), queue.QueueRuns, time.Second)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, id, job.RunID)
	assert.Equal(t, "TechFatafat", job.Channel)
}

func TestTriggerMarksUnqueuedRunFailed(t *testing.T) {
	store := db.NewMemoryStore()
	s, err := New(store, brokenQueue{}, channels("@daily"), zap.NewNop())
	require.NoError(t, err)

	id, err := s.Trigger(context.Background(), "TechFatafat")
	require.Error(t, err)

	run, err := store.GetRun(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.StageFailed, run.Stage)
}

func TestStartStopsOnCancel(t *testing.T) {
	s, err := New(db.NewMemoryStore(), queue.NewLocal(1), channels("@daily"), zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
