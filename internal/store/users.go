package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"tunesync/internal/models"
	"tunesync/internal/shared"
)

// GetOrCreateUser resolves an external user id, provisioning an account on
// first contact. A concurrent create racing on the unique external id falls
// back to reading the winner's row.
func (s *SQLiteStore) GetOrCreateUser(ctx context.Context, externalUserID string) (*models.UserAccount, error) {
	if externalUserID == "" {
		return nil, fmt.Errorf("%w: external user id", shared.ErrMissingArgument)
	}

	user, err := s.getUserByExternalID(ctx, externalUserID)
	if err == nil {
		return user, nil
	}

	created := &models.UserAccount{
		ID:             shared.GenerateID(),
		ExternalUserID: externalUserID,
		CreatedAt:      time.Now().UTC(),
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO user_accounts (id, external_user_id, created_at) VALUES (?, ?, ?)`,
		created.ID, created.ExternalUserID, created.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return s.getUserByExternalID(ctx, externalUserID)
		}
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}

	return created, nil
}

func (s *SQLiteStore) getUserByExternalID(ctx context.Context, externalUserID string) (*models.UserAccount, error) {
	var user models.UserAccount
	err := s.db.QueryRowContext(ctx,
		`SELECT id, external_user_id, created_at FROM user_accounts WHERE external_user_id = ?`,
		externalUserID,
	).Scan(&user.ID, &user.ExternalUserID, &user.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: user %s", shared.ErrNotFound, externalUserID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &user, nil
}
