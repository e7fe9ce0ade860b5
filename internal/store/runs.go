package store

import (
	"context"
	"database/sql"
	"fmt"

	"tunesync/internal/models"
	"tunesync/internal/shared"
)

// CreateRun inserts a run attempt record.
func (s *SQLiteStore) CreateRun(ctx context.Context, run *models.SyncRun) error {
	if run.ID == "" {
		run.ID = shared.GenerateID()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_runs (id, sync_job_id, status, started_at, ended_at,
			imported_count, exported_count, skipped_count, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.SyncJobID,
		string(run.Status),
		run.StartedAt,
		timeArg(run.EndedAt),
		run.ImportedCount,
		run.ExportedCount,
		run.SkippedCount,
		strArg(run.Error),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	return nil
}

// UpdateRun persists run status, counts, and error.
func (s *SQLiteStore) UpdateRun(ctx context.Context, run *models.SyncRun) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE sync_runs
		SET status = ?, ended_at = ?, imported_count = ?, exported_count = ?,
			skipped_count = ?, error = ?
		WHERE id = ?`,
		string(run.Status),
		timeArg(run.EndedAt),
		run.ImportedCount,
		run.ExportedCount,
		run.SkippedCount,
		strArg(run.Error),
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: run %s", shared.ErrNotFound, run.ID)
	}

	return nil
}

// LatestRunForJob returns the most recently started run of a job.
func (s *SQLiteStore) LatestRunForJob(ctx context.Context, jobID string) (*models.SyncRun, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, sync_job_id, status, started_at, ended_at,
			imported_count, exported_count, skipped_count, error
		FROM sync_runs
		WHERE sync_job_id = ?
		ORDER BY started_at DESC
		LIMIT 1`,
		jobID,
	)

	run, err := scanRun(row)
	if err != nil {
		return nil, wrapNotFound(err, fmt.Sprintf("run for job %s", jobID))
	}
	return run, nil
}

// LatestRunByUser returns the user's most recent run with its job's
// idempotency key.
func (s *SQLiteStore) LatestRunByUser(ctx context.Context, userAccountID string) (*RunView, error) {
	views, err := s.ListRunsByUser(ctx, userAccountID, 1)
	if err != nil {
		return nil, err
	}
	if len(views) == 0 {
		return nil, fmt.Errorf("%w: runs for user %s", shared.ErrNotFound, userAccountID)
	}
	return views[0], nil
}

// ListRunsByUser returns up to limit runs for a user, most recent first.
func (s *SQLiteStore) ListRunsByUser(ctx context.Context, userAccountID string, limit int) ([]*RunView, error) {
	if limit <= 0 {
		limit = 25
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.sync_job_id, r.status, r.started_at, r.ended_at,
			r.imported_count, r.exported_count, r.skipped_count, r.error,
			j.idempotency_key
		FROM sync_runs r
		JOIN sync_jobs j ON j.id = r.sync_job_id
		WHERE j.user_account_id = ?
		ORDER BY r.started_at DESC
		LIMIT ?`,
		userAccountID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var views []*RunView
	for rows.Next() {
		var (
			view    RunView
			status  string
			endedAt sql.NullTime
			runErr  sql.NullString
		)

		err := rows.Scan(
			&view.ID,
			&view.SyncJobID,
			&status,
			&view.StartedAt,
			&endedAt,
			&view.ImportedCount,
			&view.ExportedCount,
			&view.SkippedCount,
			&runErr,
			&view.IdempotencyKey,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		view.Status = models.RunStatus(status)
		view.EndedAt = nullTime(endedAt)
		view.Error = nullStr(runErr)

		views = append(views, &view)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return views, nil
}

func scanRun(row rowScanner) (*models.SyncRun, error) {
	var (
		run     models.SyncRun
		status  string
		endedAt sql.NullTime
		runErr  sql.NullString
	)

	err := row.Scan(
		&run.ID,
		&run.SyncJobID,
		&status,
		&run.StartedAt,
		&endedAt,
		&run.ImportedCount,
		&run.ExportedCount,
		&run.SkippedCount,
		&runErr,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	run.Status = models.RunStatus(status)
	run.EndedAt = nullTime(endedAt)
	run.Error = nullStr(runErr)

	return &run, nil
}
