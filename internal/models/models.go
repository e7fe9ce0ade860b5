package models

import (
	"fmt"
	"time"
)

// NormalizedTrack is the provider-agnostic representation of a track.
//
// Values are produced fresh per fetch and never mutated in place. The first
// artist is the primary match key. ExternalIDs maps a provider's name (e.g.
// "spotifyId", "soundcloudId") to the provider-native identifier.
type NormalizedTrack struct {
	Title       string            `json:"title"`
	Artists     []string          `json:"artists"`
	DurationMS  int               `json:"duration_ms"`
	ISRC        string            `json:"isrc,omitempty"`
	ExternalIDs map[string]string `json:"external_ids"`
	SourceURL   string            `json:"source_url"`
}

// PrimaryArtist returns the first artist name, or the empty string.
func (t NormalizedTrack) PrimaryArtist() string {
	if len(t.Artists) == 0 {
		return ""
	}
	return t.Artists[0]
}

// ExternalID returns the provider-native id stored under key, if any.
func (t NormalizedTrack) ExternalID(key string) string {
	if t.ExternalIDs == nil {
		return ""
	}
	return t.ExternalIDs[key]
}

// NormalizedPlaylist is the provider-agnostic representation of a playlist.
// The ID is scoped to the provider that produced it.
type NormalizedPlaylist struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Public      bool   `json:"public"`
	SourceURL   string `json:"source_url"`
}

// SyncDirection controls which way playlist content flows.
type SyncDirection string

const (
	DirectionOneWay SyncDirection = "one_way"
	DirectionTwoWay SyncDirection = "two_way"
)

// LikesBehavior controls whether and how liked tracks are synced.
type LikesBehavior string

const (
	LikesDisabled       LikesBehavior = "disabled"
	LikesSourceToTarget LikesBehavior = "source_to_target"
	LikesTwoWay         LikesBehavior = "two_way"
)

// RunStatus is the lifecycle vocabulary shared by SyncJob and SyncRun.
type RunStatus string

const (
	StatusPending   RunStatus = "pending"
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
)

// UserAccount is a sync user, identified externally by an opaque id supplied
// by the identity layer.
type UserAccount struct {
	ID             string
	ExternalUserID string
	CreatedAt      time.Time
}

// ConnectedAccount links a user to one provider. Token material is stored as
// opaque encrypted references; plaintext tokens exist only transiently inside
// the auth manager.
type ConnectedAccount struct {
	ID                string
	UserAccountID     string
	Provider          string
	ProviderUserID    string
	AccessTokenRef    string
	RefreshTokenRef   string
	ExpiresAt         *time.Time
	LastRefreshResult string
	LastRefreshedAt   *time.Time
}

// PlaylistMapping pairs a source playlist with a target playlist across
// providers. Identifiers may be provider ids or playlist names.
type PlaylistMapping struct {
	ID               string
	SyncProfileID    string
	SourceProvider   string
	SourcePlaylistID string
	TargetProvider   string
	TargetPlaylistID string
}

// Validate checks that the mapping names both endpoints.
func (m PlaylistMapping) Validate() error {
	if m.SourceProvider == "" || m.TargetProvider == "" {
		return fmt.Errorf("mapping requires source and target providers")
	}
	if m.SourcePlaylistID == "" {
		return fmt.Errorf("mapping requires a source playlist identifier")
	}
	return nil
}

// SyncProfile holds a user's sync configuration: direction, likes behavior,
// schedule, and the set of playlist mappings.
type SyncProfile struct {
	ID               string
	UserAccountID    string
	Direction        SyncDirection
	LikesBehavior    LikesBehavior
	ScheduleCron     string
	ScheduleTimeZone string
	ScheduleEnabled  bool
	UpdatedAt        time.Time
	PlaylistMappings []PlaylistMapping
}

// OAuthState is the ephemeral record binding an authorization attempt to its
// PKCE verifier. Single use, expires ten minutes after creation.
type OAuthState struct {
	ID            string
	Provider      string
	UserAccountID string
	State         string
	CodeVerifier  string
	ExpiresAt     time.Time
}

// Expired reports whether the state has passed its expiry at the given time.
func (s OAuthState) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// SyncJob is the idempotency anchor for one sync request. At most one job
// exists per (user, idempotency key).
type SyncJob struct {
	ID             string
	UserAccountID  string
	IdempotencyKey string
	Status         RunStatus
	StartedAt      time.Time
	EndedAt        *time.Time
	ImportedCount  int
	ExportedCount  int
	SkippedCount   int
	Error          string
}

// SyncRun records one attempt of a job, with per-run counts and error.
type SyncRun struct {
	ID            string
	SyncJobID     string
	Status        RunStatus
	StartedAt     time.Time
	EndedAt       *time.Time
	ImportedCount int
	ExportedCount int
	SkippedCount  int
	Error         string
}
