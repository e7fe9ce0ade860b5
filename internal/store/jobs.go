package store

import (
	"context"
	"database/sql"
	"fmt"

	"tunesync/internal/models"
	"tunesync/internal/shared"
)

const syncJobColumns = `id, user_account_id, idempotency_key, status, started_at,
	ended_at, imported_count, exported_count, skipped_count, error`

// CreateJob inserts a job. The unique (user, idempotency key) index is the
// authority when concurrent requests race: the loser gets
// shared.ErrDuplicateKey and must read the winner's job.
func (s *SQLiteStore) CreateJob(ctx context.Context, job *models.SyncJob) error {
	if job.ID == "" {
		job.ID = shared.GenerateID()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_jobs (`+syncJobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID,
		job.UserAccountID,
		job.IdempotencyKey,
		string(job.Status),
		job.StartedAt,
		timeArg(job.EndedAt),
		job.ImportedCount,
		job.ExportedCount,
		job.SkippedCount,
		strArg(job.Error),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: job for key %s", shared.ErrDuplicateKey, job.IdempotencyKey)
		}
		return fmt.Errorf("failed to insert job: %w", err)
	}

	return nil
}

// GetJobByKey returns the job for (user, idempotency key).
func (s *SQLiteStore) GetJobByKey(ctx context.Context, userAccountID, idempotencyKey string) (*models.SyncJob, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+syncJobColumns+` FROM sync_jobs WHERE user_account_id = ? AND idempotency_key = ?`,
		userAccountID, idempotencyKey,
	)

	job, err := scanJob(row)
	if err != nil {
		return nil, wrapNotFound(err, fmt.Sprintf("job for key %s", idempotencyKey))
	}
	return job, nil
}

// UpdateJob persists job status, counts, and error.
func (s *SQLiteStore) UpdateJob(ctx context.Context, job *models.SyncJob) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE sync_jobs
		SET status = ?, ended_at = ?, imported_count = ?, exported_count = ?,
			skipped_count = ?, error = ?
		WHERE id = ?`,
		string(job.Status),
		timeArg(job.EndedAt),
		job.ImportedCount,
		job.ExportedCount,
		job.SkippedCount,
		strArg(job.Error),
		job.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: job %s", shared.ErrNotFound, job.ID)
	}

	return nil
}

func scanJob(row rowScanner) (*models.SyncJob, error) {
	var (
		job     models.SyncJob
		status  string
		endedAt sql.NullTime
		jobErr  sql.NullString
	)

	err := row.Scan(
		&job.ID,
		&job.UserAccountID,
		&job.IdempotencyKey,
		&status,
		&job.StartedAt,
		&endedAt,
		&job.ImportedCount,
		&job.ExportedCount,
		&job.SkippedCount,
		&jobErr,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}

	job.Status = models.RunStatus(status)
	job.EndedAt = nullTime(endedAt)
	job.Error = nullStr(jobErr)

	return &job, nil
}
