// package testing contains shared testing utilities
package testing

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"tunesync/internal/models"
	"tunesync/internal/shared"
	"tunesync/internal/store"
)

// MockProvider is a configurable test double for [providers.Provider].
// Zero value behaves as an empty catalog; assign funcs to override calls.
type MockProvider struct {
	ProviderName string

	LikedTracks    []models.NormalizedTrack
	Playlists      []models.NormalizedPlaylist
	PlaylistTracks map[string][]models.NormalizedTrack

	CreateFunc func(ctx context.Context, token, name, description string, public bool) (string, error)
	AddFunc    func(ctx context.Context, token, playlistID string, tracks []models.NormalizedTrack) error
	LikeFunc   func(ctx context.Context, token string, tracks []models.NormalizedTrack) error

	AddedTracks map[string][]models.NormalizedTrack
	Liked       []models.NormalizedTrack
	Err         error
}

func (m *MockProvider) Name() string {
	if m.ProviderName == "" {
		return "mock"
	}
	return m.ProviderName
}

func (m *MockProvider) FetchLikedTracks(ctx context.Context, token string) ([]models.NormalizedTrack, error) {
	return m.LikedTracks, m.Err
}

func (m *MockProvider) FetchPlaylists(ctx context.Context, token string) ([]models.NormalizedPlaylist, error) {
	return m.Playlists, m.Err
}

func (m *MockProvider) FetchPlaylistTracks(ctx context.Context, token, playlistID string) ([]models.NormalizedTrack, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.PlaylistTracks[playlistID], nil
}

func (m *MockProvider) CreateOrUpdatePlaylist(ctx context.Context, token, name, description string, public bool) (string, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, token, name, description, public)
	}
	if m.Err != nil {
		return "", m.Err
	}
	return "created-" + name, nil
}

func (m *MockProvider) AddTracksToPlaylist(ctx context.Context, token, playlistID string, tracks []models.NormalizedTrack) error {
	if m.AddFunc != nil {
		return m.AddFunc(ctx, token, playlistID, tracks)
	}
	if m.Err != nil {
		return m.Err
	}
	if m.AddedTracks == nil {
		m.AddedTracks = map[string][]models.NormalizedTrack{}
	}
	m.AddedTracks[playlistID] = append(m.AddedTracks[playlistID], tracks...)
	return nil
}

func (m *MockProvider) LikeTracks(ctx context.Context, token string, tracks []models.NormalizedTrack) error {
	if m.LikeFunc != nil {
		return m.LikeFunc(ctx, token, tracks)
	}
	if m.Err != nil {
		return m.Err
	}
	m.Liked = append(m.Liked, tracks...)
	return nil
}

// MockTokenSource is a test double for [tasks.TokenSource]. Keys are
// provider names; a missing provider yields ErrNotConnected.
type MockTokenSource struct {
	Tokens map[string]string
}

func (m *MockTokenSource) AccessToken(ctx context.Context, userAccountID, provider string) (string, error) {
	token, ok := m.Tokens[provider]
	if !ok {
		return "", shared.ErrNotConnected
	}
	return token, nil
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// MustOpenDB opens an in-memory database with migrations applied. The
// handle closes with the test.
func MustOpenDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	// Each pooled connection to :memory: would see its own database.
	db.SetMaxOpenConns(1)

	if err := shared.RunMigrations(db); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}
	return db
}

// MustOpenStore returns a store backed by an in-memory database.
func MustOpenStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	return store.NewSQLiteStore(MustOpenDB(t))
}

// MustUser provisions a user account for the given external id.
func MustUser(t *testing.T, s store.Store, externalID string) *models.UserAccount {
	t.Helper()
	user, err := s.GetOrCreateUser(context.Background(), externalID)
	if err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}
	return user
}
