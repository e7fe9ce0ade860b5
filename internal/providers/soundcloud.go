// SoundCloud adapter.
//
// Talks to the v2 API: collection envelopes on list endpoints, numeric track
// ids, the "OAuth" authorization scheme, and playlist writes expressed as a
// nested playlist object carrying the full track list.
package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"tunesync/internal/matching"
	"tunesync/internal/models"
)

const soundcloudBaseURL = "https://api-v2.soundcloud.com"

const soundcloudPageLimit = 200

type soundcloudUser struct {
	Username string `json:"username"`
}

type soundcloudTrack struct {
	ID           int64          `json:"id"`
	Title        string         `json:"title"`
	User         soundcloudUser `json:"user"`
	Duration     int            `json:"duration"`
	PermalinkURL string         `json:"permalink_url"`
}

type soundcloudPlaylist struct {
	ID           int64             `json:"id"`
	Title        string            `json:"title"`
	Description  string            `json:"description"`
	Sharing      string            `json:"sharing"`
	PermalinkURL string            `json:"permalink_url"`
	Tracks       []soundcloudTrack `json:"tracks"`
}

type soundcloudLike struct {
	Track *soundcloudTrack `json:"track"`
}

// SoundCloud implements Provider against the SoundCloud v2 API.
type SoundCloud struct {
	client  *apiClient
	matcher *matching.Matcher
	logger  *log.Logger
}

// NewSoundCloud creates the SoundCloud adapter. An empty baseURL selects the
// production API.
func NewSoundCloud(logger *log.Logger, matcher *matching.Matcher, baseURL string) *SoundCloud {
	if baseURL == "" {
		baseURL = soundcloudBaseURL
	}
	limiter := rate.NewLimiter(rate.Limit(5), 3)
	return &SoundCloud{
		client:  newAPIClient(baseURL, "OAuth", limiter, logger),
		matcher: matcher,
		logger:  logger,
	}
}

func (s *SoundCloud) Name() string {
	return "soundcloud"
}

// FetchLikedTracks returns the user's liked tracks. Likes that wrap something
// other than a track are skipped.
func (s *SoundCloud) FetchLikedTracks(ctx context.Context, token string) ([]models.NormalizedTrack, error) {
	var envelope struct {
		Collection []soundcloudLike `json:"collection"`
	}
	path := fmt.Sprintf("/me/likes?limit=%d", soundcloudPageLimit)
	if err := s.client.doJSON(ctx, token, "GET", path, nil, &envelope); err != nil {
		return nil, err
	}

	var tracks []models.NormalizedTrack
	for _, like := range envelope.Collection {
		if like.Track == nil {
			continue
		}
		tracks = append(tracks, normalizeSoundCloudTrack(*like.Track))
	}
	return tracks, nil
}

// FetchPlaylists returns the user's playlists.
func (s *SoundCloud) FetchPlaylists(ctx context.Context, token string) ([]models.NormalizedPlaylist, error) {
	var envelope struct {
		Collection []soundcloudPlaylist `json:"collection"`
	}
	path := fmt.Sprintf("/me/playlists?limit=%d", soundcloudPageLimit)
	if err := s.client.doJSON(ctx, token, "GET", path, nil, &envelope); err != nil {
		return nil, err
	}

	playlists := make([]models.NormalizedPlaylist, 0, len(envelope.Collection))
	for _, playlist := range envelope.Collection {
		playlists = append(playlists, models.NormalizedPlaylist{
			ID:          strconv.FormatInt(playlist.ID, 10),
			Name:        playlist.Title,
			Description: playlist.Description,
			Public:      strings.EqualFold(playlist.Sharing, "public"),
			SourceURL:   playlist.PermalinkURL,
		})
	}
	return playlists, nil
}

// FetchPlaylistTracks returns the tracks embedded in one playlist.
func (s *SoundCloud) FetchPlaylistTracks(ctx context.Context, token, playlistID string) ([]models.NormalizedTrack, error) {
	var playlist soundcloudPlaylist
	if err := s.client.doJSON(ctx, token, "GET", "/playlists/"+playlistID, nil, &playlist); err != nil {
		return nil, err
	}

	tracks := make([]models.NormalizedTrack, 0, len(playlist.Tracks))
	for _, track := range playlist.Tracks {
		tracks = append(tracks, normalizeSoundCloudTrack(track))
	}
	return tracks, nil
}

// CreateOrUpdatePlaylist finds the user's playlist by case-insensitive title
// and updates it, creating one when absent. Returns the playlist id.
func (s *SoundCloud) CreateOrUpdatePlaylist(ctx context.Context, token, name, description string, public bool) (string, error) {
	playlists, err := s.FetchPlaylists(ctx, token)
	if err != nil {
		return "", err
	}

	sharing := "private"
	if public {
		sharing = "public"
	}
	body := map[string]any{
		"playlist": map[string]any{"title": name, "description": description, "sharing": sharing},
	}

	for _, playlist := range playlists {
		if strings.EqualFold(playlist.Name, name) {
			if err := s.client.doJSON(ctx, token, "PUT", "/playlists/"+playlist.ID, body, nil); err != nil {
				return "", err
			}
			return playlist.ID, nil
		}
	}

	var created soundcloudPlaylist
	if err := s.client.doJSON(ctx, token, "POST", "/playlists", body, &created); err != nil {
		return "", err
	}
	return strconv.FormatInt(created.ID, 10), nil
}

// AddTracksToPlaylist replaces the playlist's track list with the union of
// its current tracks and the given ones. The v2 API has no append endpoint.
func (s *SoundCloud) AddTracksToPlaylist(ctx context.Context, token, playlistID string, tracks []models.NormalizedTrack) error {
	existing, err := s.FetchPlaylistTracks(ctx, token, playlistID)
	if err != nil {
		return err
	}

	union := make([]models.NormalizedTrack, 0, len(tracks)+len(existing))
	union = append(union, tracks...)
	union = append(union, existing...)

	ids, err := s.resolveTrackIDs(ctx, token, union)
	if err != nil {
		return err
	}

	refs := make([]map[string]int64, 0, len(ids))
	for _, id := range ids {
		numeric, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			s.logger.Warn("skipping non-numeric soundcloud id", "id", id)
			continue
		}
		refs = append(refs, map[string]int64{"id": numeric})
	}

	body := map[string]any{"playlist": map[string]any{"tracks": refs}}
	return s.client.doJSON(ctx, token, "PUT", "/playlists/"+playlistID, body, nil)
}

// LikeTracks likes each resolvable track.
func (s *SoundCloud) LikeTracks(ctx context.Context, token string, tracks []models.NormalizedTrack) error {
	ids, err := s.resolveTrackIDs(ctx, token, tracks)
	if err != nil {
		return err
	}

	for _, id := range ids {
		if err := s.client.doJSON(ctx, token, "POST", "/likes/tracks/"+id, nil, nil); err != nil {
			return err
		}
	}
	return nil
}

// resolveTrackIDs maps normalized tracks to SoundCloud ids, searching for
// tracks that carry no SoundCloud id. Unresolvable tracks are logged and
// dropped.
func (s *SoundCloud) resolveTrackIDs(ctx context.Context, token string, tracks []models.NormalizedTrack) ([]string, error) {
	var ids []string
	for _, track := range tracks {
		if id := track.ExternalID(ExternalIDSoundCloud); id != "" {
			ids = append(ids, id)
			continue
		}

		candidates, err := s.searchCandidates(ctx, token, track)
		if err != nil {
			return nil, err
		}

		best := s.matcher.FindBestMatch(track, candidates)
		if best == nil {
			s.logger.Warn("no soundcloud match", "title", track.Title, "artist", track.PrimaryArtist())
			continue
		}
		if id := best.ExternalID(ExternalIDSoundCloud); id != "" {
			ids = append(ids, id)
		}
	}
	return dedupeIDs(ids), nil
}

// searchCandidates queries the track search endpoint. Depending on the API
// surface the result is either a bare array or a collection envelope.
func (s *SoundCloud) searchCandidates(ctx context.Context, token string, track models.NormalizedTrack) ([]models.NormalizedTrack, error) {
	query := strings.TrimSpace(track.Title + " " + track.PrimaryArtist())

	var raw json.RawMessage
	path := "/tracks?limit=25&q=" + url.QueryEscape(query)
	if err := s.client.doJSON(ctx, token, "GET", path, nil, &raw); err != nil {
		return nil, err
	}

	var found []soundcloudTrack
	if err := json.Unmarshal(raw, &found); err != nil {
		var envelope struct {
			Collection []soundcloudTrack `json:"collection"`
		}
		if err := json.Unmarshal(raw, &envelope); err != nil {
			return nil, fmt.Errorf("decoding search response: %w", err)
		}
		found = envelope.Collection
	}

	candidates := make([]models.NormalizedTrack, 0, len(found))
	for _, item := range found {
		candidates = append(candidates, normalizeSoundCloudTrack(item))
	}
	return candidates, nil
}

func normalizeSoundCloudTrack(track soundcloudTrack) models.NormalizedTrack {
	externalIDs := map[string]string{}
	if track.ID != 0 {
		externalIDs[ExternalIDSoundCloud] = strconv.FormatInt(track.ID, 10)
	}

	var artists []string
	if track.User.Username != "" {
		artists = []string{track.User.Username}
	}

	return models.NormalizedTrack{
		Title:       track.Title,
		Artists:     artists,
		DurationMS:  track.Duration,
		ExternalIDs: externalIDs,
		SourceURL:   track.PermalinkURL,
	}
}
