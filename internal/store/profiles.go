package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"tunesync/internal/models"
	"tunesync/internal/shared"
)

// GetOrCreateProfile resolves a user's sync profile, provisioning a default
// one-way, likes-disabled profile when none exists.
func (s *SQLiteStore) GetOrCreateProfile(ctx context.Context, userAccountID string) (*models.SyncProfile, error) {
	profile, err := s.getProfileByUser(ctx, userAccountID)
	if err == nil {
		return profile, nil
	}

	created := &models.SyncProfile{
		ID:               shared.GenerateID(),
		UserAccountID:    userAccountID,
		Direction:        models.DirectionOneWay,
		LikesBehavior:    models.LikesDisabled,
		ScheduleTimeZone: "UTC",
		UpdatedAt:        time.Now().UTC(),
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sync_profiles (id, user_account_id, direction, likes_behavior,
			schedule_cron, schedule_time_zone, schedule_enabled, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		created.ID,
		created.UserAccountID,
		string(created.Direction),
		string(created.LikesBehavior),
		strArg(created.ScheduleCron),
		created.ScheduleTimeZone,
		created.ScheduleEnabled,
		created.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return s.getProfileByUser(ctx, userAccountID)
		}
		return nil, fmt.Errorf("failed to insert profile: %w", err)
	}

	return created, nil
}

// UpdateProfile persists profile fields and replaces its playlist mappings
// in one transaction.
func (s *SQLiteStore) UpdateProfile(ctx context.Context, profile *models.SyncProfile) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	profile.UpdatedAt = time.Now().UTC()

	result, err := tx.ExecContext(ctx, `
		UPDATE sync_profiles
		SET direction = ?, likes_behavior = ?, schedule_cron = ?,
			schedule_time_zone = ?, schedule_enabled = ?, updated_at = ?
		WHERE id = ?`,
		string(profile.Direction),
		string(profile.LikesBehavior),
		strArg(profile.ScheduleCron),
		profile.ScheduleTimeZone,
		profile.ScheduleEnabled,
		profile.UpdatedAt,
		profile.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: profile %s", shared.ErrNotFound, profile.ID)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM playlist_mappings WHERE sync_profile_id = ?`, profile.ID); err != nil {
		return fmt.Errorf("failed to clear mappings: %w", err)
	}

	for i := range profile.PlaylistMappings {
		mapping := &profile.PlaylistMappings[i]
		if mapping.ID == "" {
			mapping.ID = shared.GenerateID()
		}
		mapping.SyncProfileID = profile.ID

		if err := mapping.Validate(); err != nil {
			return fmt.Errorf("%w: %v", shared.ErrInvalidMapping, err)
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO playlist_mappings (id, sync_profile_id, source_provider,
				source_playlist_id, target_provider, target_playlist_id)
			VALUES (?, ?, ?, ?, ?, ?)`,
			mapping.ID,
			mapping.SyncProfileID,
			mapping.SourceProvider,
			mapping.SourcePlaylistID,
			mapping.TargetProvider,
			mapping.TargetPlaylistID,
		)
		if err != nil {
			return fmt.Errorf("failed to insert mapping: %w", err)
		}
	}

	return tx.Commit()
}

// ListScheduledProfiles returns profiles with an enabled cron schedule.
func (s *SQLiteStore) ListScheduledProfiles(ctx context.Context) ([]*models.SyncProfile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_account_id, direction, likes_behavior,
			schedule_cron, schedule_time_zone, schedule_enabled, updated_at
		FROM sync_profiles
		WHERE schedule_enabled = 1 AND schedule_cron IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("failed to query scheduled profiles: %w", err)
	}
	defer rows.Close()

	var profiles []*models.SyncProfile
	for rows.Next() {
		profile, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, profile)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	for _, profile := range profiles {
		if err := s.loadMappings(ctx, profile); err != nil {
			return nil, err
		}
	}

	return profiles, nil
}

func (s *SQLiteStore) getProfileByUser(ctx context.Context, userAccountID string) (*models.SyncProfile, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_account_id, direction, likes_behavior,
			schedule_cron, schedule_time_zone, schedule_enabled, updated_at
		FROM sync_profiles
		WHERE user_account_id = ?`,
		userAccountID,
	)

	profile, err := scanProfile(row)
	if err != nil {
		return nil, wrapNotFound(err, fmt.Sprintf("profile for user %s", userAccountID))
	}

	if err := s.loadMappings(ctx, profile); err != nil {
		return nil, err
	}

	return profile, nil
}

func (s *SQLiteStore) loadMappings(ctx context.Context, profile *models.SyncProfile) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sync_profile_id, source_provider, source_playlist_id,
			target_provider, target_playlist_id
		FROM playlist_mappings
		WHERE sync_profile_id = ?`,
		profile.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to query mappings: %w", err)
	}
	defer rows.Close()

	profile.PlaylistMappings = nil
	for rows.Next() {
		var mapping models.PlaylistMapping
		err := rows.Scan(
			&mapping.ID,
			&mapping.SyncProfileID,
			&mapping.SourceProvider,
			&mapping.SourcePlaylistID,
			&mapping.TargetProvider,
			&mapping.TargetPlaylistID,
		)
		if err != nil {
			return fmt.Errorf("failed to scan mapping: %w", err)
		}
		profile.PlaylistMappings = append(profile.PlaylistMappings, mapping)
	}

	return rows.Err()
}

func scanProfile(row rowScanner) (*models.SyncProfile, error) {
	var (
		profile      models.SyncProfile
		direction    string
		likes        string
		scheduleCron sql.NullString
	)

	err := row.Scan(
		&profile.ID,
		&profile.UserAccountID,
		&direction,
		&likes,
		&scheduleCron,
		&profile.ScheduleTimeZone,
		&profile.ScheduleEnabled,
		&profile.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan profile: %w", err)
	}

	profile.Direction = models.SyncDirection(direction)
	profile.LikesBehavior = models.LikesBehavior(likes)
	profile.ScheduleCron = nullStr(scheduleCron)

	return &profile, nil
}
