// Package queue hands runs from the API and scheduler to the worker over a
// Redis list.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const (
	QueueRuns = "queue:shorts_runs"

	JobTypeRun = "run_short"
)

// Job is one queued pipeline run for a channel. Topic, when set, skips trend
// discovery.
type Job struct {
	ID        uuid.UUID `json:"id"`
	Type      string    `json:"type"`
	RunID     uuid.UUID `json:"run_id"`
	Channel   string    `json:"channel"`
	Topic     *string   `json:"topic,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Producer is the enqueue side, used by the API and the scheduler.
type Producer interface {
	EnqueueRun(ctx context.Context, runID uuid.UUID, channel string, topic *string) error
}

// Consumer is the dequeue side, used by the worker.
type Consumer interface {
	Dequeue(ctx context.Context, queueName string, timeout time.Duration) (*Job, error)
}

// Depth reports how many jobs are waiting on a queue.
type Depth interface {
	GetQueueLength(ctx context.Context, queueName string) (int64, error)
}

// Broker is both sides, for processes that enqueue and consume.
type Broker interface {
	Producer
	Consumer
}

type Queue struct {
	client *redis.Client
}

var (
	_ Broker = (*Queue)(nil)
	_ Depth  = (*Queue)(nil)
)

func New(redisURL string) (*Queue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Queue{client: client}, nil
}

func (q *Queue) Close() error {
	return q.client.Close()
}

func (q *Queue) Enqueue(ctx context.Context, queueName string, job *Job) error {
	job.CreatedAt = time.Now()

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	return q.client.RPush(ctx, queueName, data).Err()
}

// Dequeue blocks up to timeout for the next job. It returns nil, nil when the
// wait times out.
func (q *Queue) Dequeue(ctx context.Context, queueName string, timeout time.Duration) (*Job, error) {
	result, err := q.client.BLPop(ctx, timeout, queueName).Result()
	if err == redis.Nil {
		return nil, nil // No job available
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue: %w", err)
	}

	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected redis response")
	}

	return DecodeJob([]byte(result[1]))
}

// DecodeJob parses a queued payload.
func DecodeJob(data []byte) (*Job, error) {
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	if job.RunID == uuid.Nil || job.Channel == "" {
		return nil, fmt.Errorf("job %s is missing run id or channel", job.ID)
	}
	return &job, nil
}

func (q *Queue) GetQueueLength(ctx context.Context, queueName string) (int64, error) {
	return q.client.LLen(ctx, queueName).Result()
}

// EnqueueRun enqueues one pipeline run for channel.
func (q *Queue) EnqueueRun(ctx context.Context, runID uuid.UUID, channel string, topic *string) error {
	job := &Job{
		ID:      uuid.New(),
		Type:    JobTypeRun,
		RunID:   runID,
		Channel: channel,
		Topic:   topic,
	}
	return q.Enqueue(ctx, QueueRuns, job)
}

// ---------------------------------------------------------------------------
// Local: in-process queue for deployments without Redis
// ---------------------------------------------------------------------------

// Local is a buffered in-process queue. It satisfies both sides so the API
// and an embedded worker can run without Redis.
type Local struct {
	jobs chan *Job
}

var (
	_ Broker = (*Local)(nil)
	_ Depth  = (*Local)(nil)
)

func NewLocal(capacity int) *Local {
	if capacity < 1 {
		capacity = 1
	}
	return &Local{jobs: make(chan *Job, capacity)}
}

// EnqueueRun fails instead of blocking when the buffer is full.
func (l *Local) EnqueueRun(ctx context.Context, runID uuid.UUID, channel string, topic *string) error {
	job := &Job{ID: uuid.New(), Type: JobTypeRun, RunID: runID, Channel: channel, Topic: topic, CreatedAt: time.Now()}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case l.jobs <- job:
		return nil
	default:
		return fmt.Errorf("local queue is full (%d jobs)", cap(l.jobs))
	}
}

func (l *Local) Dequeue(ctx context.Context, _ string, timeout time.Duration) (*Job, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, nil
	case job := <-l.jobs:
		return job, nil
	}
}

// GetQueueLength counts buffered jobs. There is only one local queue, so the
// name is ignored.
func (l *Local) GetQueueLength(_ context.Context, _ string) (int64, error) {
	return int64(len(l.jobs)), nil
}
