package db

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ja38055/TechFataFat/internal/apperr"
	"github.com/ja38055/TechFataFat/internal/models"
	"github.com/samber/lo"
)

const (
	DefaultListLimit = 20
	// maxMemoryRuns bounds the in-memory history; the oldest finished runs
	// are evicted first.
	maxMemoryRuns = 1000
)

// MemoryStore keeps run records in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[uuid.UUID]*models.Run
	now  func() time.Time
}

var _ RunStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[uuid.UUID]*models.Run), now: time.Now}
}

func (m *MemoryStore) CreateRun(_ context.Context, run *models.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	run.CreatedAt = now
	run.UpdatedAt = now
	cp := *run
	m.runs[run.ID] = &cp
	m.evict()
	return nil
}

func (m *MemoryStore) GetRun(_ context.Context, id uuid.UUID) (*models.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	run, ok := m.runs[id]
	if !ok {
		return nil, apperr.New(apperr.CodeNotFound, "run not found")
	}
	cp := *run
	return &cp, nil
}

func (m *MemoryStore) ListRuns(_ context.Context, filter RunFilter) ([]models.Run, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := lo.FilterMap(lo.Values(m.runs), func(r *models.Run, _ int) (models.Run, bool) {
		if filter.Channel != "" && r.Channel != filter.Channel {
			return models.Run{}, false
		}
		if filter.Stage != "" && r.Stage != filter.Stage {
			return models.Run{}, false
		}
		return *r, true
	})
	sortNewestFirst(matched)

	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	total := len(matched)
	if filter.Offset >= total {
		return []models.Run{}, total, nil
	}
	end := min(filter.Offset+limit, total)
	return matched[filter.Offset:end], total, nil
}

func (m *MemoryStore) UpdateRunStage(_ context.Context, id uuid.UUID, stage models.Stage) error {
	return m.update(id, func(r *models.Run, _ time.Time) {
		r.Stage = stage
	})
}

func (m *MemoryStore) CompleteRun(_ context.Context, id uuid.UUID, outcome models.RunOutcome) error {
	return m.update(id, func(r *models.Run, now time.Time) {
		source := string(outcome.TopicSource)
		r.Stage = models.StageDone
		r.Topic = &outcome.Topic
		r.TopicSource = &source
		r.RemoteID = &outcome.RemoteID
		r.DurationSec = &outcome.Duration
		r.Metadata = outcome.Metadata
		r.FinishedAt = &now
	})
}

func (m *MemoryStore) FailRun(_ context.Context, id uuid.UUID, failure models.RunFailure) error {
	return m.update(id, func(r *models.Run, now time.Time) {
		stage := string(failure.Stage)
		r.Stage = models.StageFailed
		r.FailedStage = &stage
		r.ErrorCode = &failure.Code
		r.ErrorMessage = &failure.Message
		r.FinishedAt = &now
	})
}

func (m *MemoryStore) update(id uuid.UUID, fn func(r *models.Run, now time.Time)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.runs[id]
	if !ok {
		return apperr.New(apperr.CodeNotFound, "run not found")
	}
	now := m.now()
	fn(run, now)
	run.UpdatedAt = now
	return nil
}

// evict drops the oldest finished runs once the store is over capacity.
// Caller holds the lock.
func (m *MemoryStore) evict() {
	if len(m.runs) <= maxMemoryRuns {
		return
	}
	finished := lo.Filter(lo.Values(m.runs), func(r *models.Run, _ int) bool {
		return r.Stage.Terminal()
	})
	sort.Slice(finished, func(i, j int) bool {
		return finished[i].CreatedAt.Before(finished[j].CreatedAt)
	})
	for _, r := range finished {
		if len(m.runs) <= maxMemoryRuns {
			return
		}
		delete(m.runs, r.ID)
	}
}

func sortNewestFirst(runs []models.Run) {
	sort.SliceStable(runs, func(i, j int) bool {
		if runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].ID.String() < runs[j].ID.String()
		}
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
}
