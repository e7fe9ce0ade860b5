package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"tunesync/internal/models"
	"tunesync/internal/shared"
)

// CreateOAuthState persists a pending authorization state record.
func (s *SQLiteStore) CreateOAuthState(ctx context.Context, state *models.OAuthState) error {
	if state.ID == "" {
		state.ID = shared.GenerateID()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO oauth_states (id, provider, user_account_id, state, code_verifier, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		state.ID,
		state.Provider,
		state.UserAccountID,
		state.State,
		state.CodeVerifier,
		state.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert oauth state: %w", err)
	}

	return nil
}

// ConsumeOAuthState deletes and returns the record matching
// (state, provider, user). The delete happens inside a transaction so the
// record is single use even under concurrent callbacks.
func (s *SQLiteStore) ConsumeOAuthState(ctx context.Context, state, provider, userAccountID string) (*models.OAuthState, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var record models.OAuthState
	err = tx.QueryRowContext(ctx, `
		SELECT id, provider, user_account_id, state, code_verifier, expires_at
		FROM oauth_states
		WHERE state = ? AND provider = ? AND user_account_id = ?`,
		state, provider, userAccountID,
	).Scan(
		&record.ID,
		&record.Provider,
		&record.UserAccountID,
		&record.State,
		&record.CodeVerifier,
		&record.ExpiresAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: oauth state", shared.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query oauth state: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM oauth_states WHERE id = ?`, record.ID); err != nil {
		return nil, fmt.Errorf("failed to delete oauth state: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}

	return &record, nil
}

// DeleteExpiredOAuthStates removes state records past their expiry.
func (s *SQLiteStore) DeleteExpiredOAuthStates(ctx context.Context, now time.Time) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM oauth_states WHERE expires_at < ?`, now); err != nil {
		return fmt.Errorf("failed to delete expired oauth states: %w", err)
	}
	return nil
}
