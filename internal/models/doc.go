// Package models defines the data model for the playlist sync service.
//
// Normalized track and playlist values are the provider-agnostic currency
// passed between catalog adapters, the matching engine, and the sync
// executor. The persistent entities (UserAccount, ConnectedAccount,
// SyncProfile, SyncJob, SyncRun, OAuthState) mirror the store schema.
package models
