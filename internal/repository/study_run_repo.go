package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"onenight-backend/internal/models"
)

const maxHistoryRows = 100

// querier is the subset of *pgxpool.Pool the repo uses.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type StudyRunRepo struct {
	pool querier
}

func NewStudyRunRepo(pool *pgxpool.Pool) *StudyRunRepo {
	return &StudyRunRepo{pool: pool}
}

func (r *StudyRunRepo) StartRun(ctx context.Context, run *models.StudyRun) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if len(run.TreeJSON) == 0 {
		run.TreeJSON = json.RawMessage("{}")
	}

	// A workspace has at most one open run; close any left behind by a crash.
	if _, err := r.pool.Exec(ctx, `
		UPDATE study_runs
		SET ended_at = NOW(),
			outcome = 'stopped'
		WHERE workspace_id = $1
		  AND ended_at IS NULL
	`, run.WorkspaceID); err != nil {
		return fmt.Errorf("failed to close open study runs: %w", err)
	}

	query := `
		INSERT INTO study_runs (id, workspace_id, partner_name, topic, duration_minutes, intelligence, material_count, tree_json, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING started_at
	`

	return r.pool.QueryRow(ctx, query,
		run.ID,
		run.WorkspaceID,
		run.PartnerName,
		run.Topic,
		run.DurationMinutes,
		run.Intelligence,
		run.MaterialCount,
		run.TreeJSON,
		run.StartedAt,
	).Scan(&run.StartedAt)
}

func (r *StudyRunRepo) FinishRun(ctx context.Context, runID uuid.UUID, outcome string, secondsRemaining int, endedAt time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE study_runs
		SET ended_at = $2,
			outcome = $3,
			seconds_remaining = GREATEST(0, $4)
		WHERE id = $1
		  AND ended_at IS NULL
	`, runID, endedAt, outcome, secondsRemaining)
	return err
}

func (r *StudyRunRepo) ListByWorkspace(ctx context.Context, workspaceID uuid.UUID, limit int) ([]models.StudyRun, error) {
	if limit <= 0 || limit > maxHistoryRows {
		limit = maxHistoryRows
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, workspace_id, partner_name, topic, duration_minutes, intelligence, material_count,
		       tree_json, started_at, ended_at, outcome, seconds_remaining
		FROM study_runs
		WHERE workspace_id = $1
		ORDER BY started_at DESC
		LIMIT $2
	`, workspaceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []models.StudyRun{}
	for rows.Next() {
		var run models.StudyRun
		if err := rows.Scan(
			&run.ID,
			&run.WorkspaceID,
			&run.PartnerName,
			&run.Topic,
			&run.DurationMinutes,
			&run.Intelligence,
			&run.MaterialCount,
			&run.TreeJSON,
			&run.StartedAt,
			&run.EndedAt,
			&run.Outcome,
			&run.SecondsRemaining,
		); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
