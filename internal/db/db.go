// Package db persists run records. Postgres is used when DATABASE_URL is set;
// otherwise runs live in memory for the life of the process.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ja38055/TechFataFat/internal/models"
	_ "github.com/lib/pq"
)

// RunStore records the lifecycle of pipeline runs.
type RunStore interface {
	CreateRun(ctx context.Context, run *models.Run) error
	GetRun(ctx context.Context, id uuid.UUID) (*models.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]models.Run, int, error)
	UpdateRunStage(ctx context.Context, id uuid.UUID, stage models.Stage) error
	CompleteRun(ctx context.Context, id uuid.UUID, outcome models.RunOutcome) error
	FailRun(ctx context.Context, id uuid.UUID, failure models.RunFailure) error
}

// RunFilter narrows ListRuns. Zero values mean no filter.
type RunFilter struct {
	Channel string
	Stage   models.Stage
	Limit   int
	Offset  int
}

type DB struct {
	*sql.DB
}

var _ RunStore = (*DB)(nil)

func New(databaseURL string) (*DB, error) {
	conn, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &DB{DB: conn}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id            UUID PRIMARY KEY,
	channel       TEXT NOT NULL,
	topic         TEXT,
	topic_source  TEXT,
	stage         TEXT NOT NULL,
	failed_stage  TEXT,
	error_code    TEXT,
	error_message TEXT,
	remote_id     TEXT,
	duration_sec  DOUBLE PRECISION,
	metadata      JSONB,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at   TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS runs_channel_created_idx ON runs (channel, created_at DESC);
`

// Migrate creates the runs table when it does not exist.
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}
	return nil
}
