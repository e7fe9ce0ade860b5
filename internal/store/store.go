// Package store provides the persistence layer for sync entities.
//
// The Store interface is the engine's only view of durable state; the SQLite
// implementation enforces the uniqueness constraints the sync engine relies
// on: one ConnectedAccount per (user, provider), one SyncJob per
// (user, idempotency key), single-use OAuth states.
package store

import (
	"context"
	"time"

	"tunesync/internal/models"
)

// RunView is a SyncRun joined with its job's idempotency key, the shape
// exposed to run-history callers.
type RunView struct {
	models.SyncRun
	IdempotencyKey string
}

// Store is the persistent collaborator consumed by the auth manager, the
// sync executor, and the HTTP surface.
type Store interface {
	// GetOrCreateUser resolves an external user id to a UserAccount,
	// provisioning one on first contact.
	GetOrCreateUser(ctx context.Context, externalUserID string) (*models.UserAccount, error)

	// GetConnectedAccount returns the account for (user, provider), or
	// shared.ErrNotFound.
	GetConnectedAccount(ctx context.Context, userAccountID, provider string) (*models.ConnectedAccount, error)
	// UpsertConnectedAccount inserts or updates the unique
	// (user, provider) account.
	UpsertConnectedAccount(ctx context.Context, account *models.ConnectedAccount) error
	// ListConnectedAccounts returns all of a user's provider connections.
	ListConnectedAccounts(ctx context.Context, userAccountID string) ([]*models.ConnectedAccount, error)

	// GetOrCreateProfile resolves a user's sync profile, provisioning a
	// default one when absent. Mappings are loaded eagerly.
	GetOrCreateProfile(ctx context.Context, userAccountID string) (*models.SyncProfile, error)
	// UpdateProfile persists profile fields and replaces its mappings.
	UpdateProfile(ctx context.Context, profile *models.SyncProfile) error
	// ListScheduledProfiles returns profiles with an enabled cron schedule.
	ListScheduledProfiles(ctx context.Context) ([]*models.SyncProfile, error)

	// CreateOAuthState persists a pending authorization state record.
	CreateOAuthState(ctx context.Context, state *models.OAuthState) error
	// ConsumeOAuthState deletes and returns the record matching
	// (state, provider, user), or shared.ErrNotFound. Deletion happens
	// regardless of whether the record has expired.
	ConsumeOAuthState(ctx context.Context, state, provider, userAccountID string) (*models.OAuthState, error)
	// DeleteExpiredOAuthStates removes records past their expiry.
	DeleteExpiredOAuthStates(ctx context.Context, now time.Time) error

	// CreateJob inserts a job, returning shared.ErrDuplicateKey when a job
	// already exists for (user, idempotency key).
	CreateJob(ctx context.Context, job *models.SyncJob) error
	// GetJobByKey returns the job for (user, idempotency key), or
	// shared.ErrNotFound.
	GetJobByKey(ctx context.Context, userAccountID, idempotencyKey string) (*models.SyncJob, error)
	// UpdateJob persists job status, counts, and error.
	UpdateJob(ctx context.Context, job *models.SyncJob) error

	// CreateRun inserts a run attempt record.
	CreateRun(ctx context.Context, run *models.SyncRun) error
	// UpdateRun persists run status, counts, and error.
	UpdateRun(ctx context.Context, run *models.SyncRun) error
	// LatestRunForJob returns the most recently started run of a job, or
	// shared.ErrNotFound.
	LatestRunForJob(ctx context.Context, jobID string) (*models.SyncRun, error)
	// LatestRunByUser returns the user's most recent run, or shared.ErrNotFound.
	LatestRunByUser(ctx context.Context, userAccountID string) (*RunView, error)
	// ListRunsByUser returns up to limit runs, most recent first.
	ListRunsByUser(ctx context.Context, userAccountID string, limit int) ([]*RunView, error)
}
