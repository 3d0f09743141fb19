package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ja38055/TechFataFat/internal/apperr"
	"github.com/ja38055/TechFataFat/internal/models"
)

const runColumns = `
	id, channel, topic, topic_source, stage, failed_stage, error_code,
	error_message, remote_id, duration_sec, metadata, created_at, updated_at,
	finished_at
`

func (db *DB) CreateRun(ctx context.Context, run *models.Run) error {
	query := `
		INSERT INTO runs (id, channel, topic, stage)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at
	`

	return db.QueryRowContext(
		ctx, query,
		run.ID, run.Channel, run.Topic, run.Stage,
	).Scan(&run.CreatedAt, &run.UpdatedAt)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*models.Run, error) {
	run := &models.Run{}
	err := row.Scan(
		&run.ID, &run.Channel, &run.Topic, &run.TopicSource, &run.Stage,
		&run.FailedStage, &run.ErrorCode, &run.ErrorMessage, &run.RemoteID,
		&run.DurationSec, &run.Metadata, &run.CreatedAt, &run.UpdatedAt,
		&run.FinishedAt,
	)
	return run, err
}

func (db *DB) GetRun(ctx context.Context, id uuid.UUID) (*models.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE id = $1`

	run, err := scanRun(db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, apperr.New(apperr.CodeNotFound, "run not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	return run, nil
}

// ListRuns returns runs newest first plus the total matching the filter.
func (db *DB) ListRuns(ctx context.Context, filter RunFilter) ([]models.Run, int, error) {
	where, args := filterClause(filter)

	var total int
	if err := db.QueryRowContext(ctx, `SELECT count(*) FROM runs`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count runs: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	args = append(args, limit, filter.Offset)
	query := fmt.Sprintf(`SELECT %s FROM runs%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		runColumns, where, len(args)-1, len(args))

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := []models.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}

	return runs, total, rows.Err()
}

func filterClause(filter RunFilter) (string, []any) {
	var conds []string
	var args []any
	if filter.Channel != "" {
		args = append(args, filter.Channel)
		conds = append(conds, fmt.Sprintf("channel = $%d", len(args)))
	}
	if filter.Stage != "" {
		args = append(args, filter.Stage)
		conds = append(conds, fmt.Sprintf("stage = $%d", len(args)))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (db *DB) UpdateRunStage(ctx context.Context, id uuid.UUID, stage models.Stage) error {
	query := `UPDATE runs SET stage = $1, updated_at = $2 WHERE id = $3`
	return db.execOne(ctx, query, stage, time.Now(), id)
}

func (db *DB) CompleteRun(ctx context.Context, id uuid.UUID, outcome models.RunOutcome) error {
	now := time.Now()
	query := `
		UPDATE runs
		SET stage = $1, topic = $2, topic_source = $3, remote_id = $4,
			duration_sec = $5, metadata = $6, updated_at = $7, finished_at = $7
		WHERE id = $8
	`
	return db.execOne(ctx, query,
		models.StageDone, outcome.Topic, string(outcome.TopicSource), outcome.RemoteID,
		outcome.Duration, outcome.Metadata, now, id)
}

func (db *DB) FailRun(ctx context.Context, id uuid.UUID, failure models.RunFailure) error {
	now := time.Now()
	query := `
		UPDATE runs
		SET stage = $1, failed_stage = $2, error_code = $3, error_message = $4,
			updated_at = $5, finished_at = $5
		WHERE id = $6
	`
	return db.execOne(ctx, query,
		models.StageFailed, string(failure.Stage), failure.Code, failure.Message, now, id)
}

func (db *DB) execOne(ctx context.Context, query string, args ...any) error {
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperr.New(apperr.CodeNotFound, "run not found")
	}
	return nil
}
