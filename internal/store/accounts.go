package store

import (
	"context"
	"database/sql"
	"fmt"

	"tunesync/internal/models"
	"tunesync/internal/shared"
)

const connectedAccountColumns = `id, user_account_id, provider, provider_user_id,
	access_token_ref, refresh_token_ref, expires_at, last_refresh_result, last_refreshed_at`

// GetConnectedAccount returns the unique account for (user, provider).
func (s *SQLiteStore) GetConnectedAccount(ctx context.Context, userAccountID, provider string) (*models.ConnectedAccount, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+connectedAccountColumns+` FROM connected_accounts WHERE user_account_id = ? AND provider = ?`,
		userAccountID, provider,
	)

	account, err := scanConnectedAccount(row)
	if err != nil {
		return nil, wrapNotFound(err, fmt.Sprintf("connected account %s/%s", userAccountID, provider))
	}
	return account, nil
}

// UpsertConnectedAccount inserts or updates the (user, provider) account,
// relying on the unique index to collapse concurrent inserts.
func (s *SQLiteStore) UpsertConnectedAccount(ctx context.Context, account *models.ConnectedAccount) error {
	if account.ID == "" {
		account.ID = shared.GenerateID()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO connected_accounts (`+connectedAccountColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_account_id, provider) DO UPDATE SET
			provider_user_id = excluded.provider_user_id,
			access_token_ref = excluded.access_token_ref,
			refresh_token_ref = excluded.refresh_token_ref,
			expires_at = excluded.expires_at,
			last_refresh_result = excluded.last_refresh_result,
			last_refreshed_at = excluded.last_refreshed_at`,
		account.ID,
		account.UserAccountID,
		account.Provider,
		account.ProviderUserID,
		account.AccessTokenRef,
		strArg(account.RefreshTokenRef),
		timeArg(account.ExpiresAt),
		account.LastRefreshResult,
		timeArg(account.LastRefreshedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert connected account: %w", err)
	}

	return nil
}

// ListConnectedAccounts returns all provider connections for a user.
func (s *SQLiteStore) ListConnectedAccounts(ctx context.Context, userAccountID string) ([]*models.ConnectedAccount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+connectedAccountColumns+` FROM connected_accounts WHERE user_account_id = ? ORDER BY provider ASC`,
		userAccountID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query connected accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*models.ConnectedAccount
	for rows.Next() {
		account, err := scanConnectedAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return accounts, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConnectedAccount(row rowScanner) (*models.ConnectedAccount, error) {
	var (
		account         models.ConnectedAccount
		refreshTokenRef sql.NullString
		expiresAt       sql.NullTime
		lastRefreshedAt sql.NullTime
	)

	err := row.Scan(
		&account.ID,
		&account.UserAccountID,
		&account.Provider,
		&account.ProviderUserID,
		&account.AccessTokenRef,
		&refreshTokenRef,
		&expiresAt,
		&account.LastRefreshResult,
		&lastRefreshedAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan connected account: %w", err)
	}

	account.RefreshTokenRef = nullStr(refreshTokenRef)
	account.ExpiresAt = nullTime(expiresAt)
	account.LastRefreshedAt = nullTime(lastRefreshedAt)

	return &account, nil
}
