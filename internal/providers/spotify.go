// Spotify adapter.
//
// Response types follow https://developer.spotify.com/documentation/web-api/reference/
package providers

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"tunesync/internal/matching"
	"tunesync/internal/models"
)

const spotifyBaseURL = "https://api.spotify.com/v1"

const (
	spotifyPageLimit  = 50
	spotifyBatchLimit = 100
	spotifyLikeLimit  = 50
)

type spotifyArtist struct {
	Name string `json:"name"`
}

type spotifyExternalIDs struct {
	ISRC string `json:"isrc"`
}

type spotifyExternalURLs struct {
	Spotify string `json:"spotify"`
}

type spotifyTrack struct {
	ID           string              `json:"id"`
	Name         string              `json:"name"`
	Artists      []spotifyArtist     `json:"artists"`
	DurationMS   int                 `json:"duration_ms"`
	ExternalIDs  spotifyExternalIDs  `json:"external_ids"`
	ExternalURLs spotifyExternalURLs `json:"external_urls"`
}

type spotifyPlaylist struct {
	ID           string              `json:"id"`
	Name         string              `json:"name"`
	Description  string              `json:"description"`
	Public       bool                `json:"public"`
	ExternalURLs spotifyExternalURLs `json:"external_urls"`
}

type spotifyTrackItem struct {
	Track *spotifyTrack `json:"track"`
}

type spotifyTrackPage struct {
	Items []spotifyTrackItem `json:"items"`
	Next  *string            `json:"next"`
}

type spotifyPlaylistPage struct {
	Items []spotifyPlaylist `json:"items"`
	Next  *string           `json:"next"`
}

type spotifySearchResponse struct {
	Tracks struct {
		Items []spotifyTrack `json:"items"`
	} `json:"tracks"`
}

type spotifyProfile struct {
	ID string `json:"id"`
}

// Spotify implements Provider against the Spotify Web API.
type Spotify struct {
	client  *apiClient
	matcher *matching.Matcher
	logger  *log.Logger
}

// NewSpotify creates the Spotify adapter. An empty baseURL selects the
// production API.
func NewSpotify(logger *log.Logger, matcher *matching.Matcher, baseURL string) *Spotify {
	if baseURL == "" {
		baseURL = spotifyBaseURL
	}
	limiter := rate.NewLimiter(rate.Limit(10), 5)
	return &Spotify{
		client:  newAPIClient(baseURL, "Bearer", limiter, logger),
		matcher: matcher,
		logger:  logger,
	}
}

func (s *Spotify) Name() string {
	return "spotify"
}

// FetchLikedTracks returns the user's saved tracks.
func (s *Spotify) FetchLikedTracks(ctx context.Context, token string) ([]models.NormalizedTrack, error) {
	return s.fetchTrackPages(ctx, token, "/me/tracks")
}

// FetchPlaylists returns the user's playlists.
func (s *Spotify) FetchPlaylists(ctx context.Context, token string) ([]models.NormalizedPlaylist, error) {
	var playlists []models.NormalizedPlaylist
	offset := 0
	for {
		var page spotifyPlaylistPage
		path := fmt.Sprintf("/me/playlists?limit=%d&offset=%d", spotifyPageLimit, offset)
		if err := s.client.doJSON(ctx, token, "GET", path, nil, &page); err != nil {
			return nil, err
		}
		for _, item := range page.Items {
			playlists = append(playlists, models.NormalizedPlaylist{
				ID:          item.ID,
				Name:        item.Name,
				Description: item.Description,
				Public:      item.Public,
				SourceURL:   item.ExternalURLs.Spotify,
			})
		}
		if page.Next == nil || len(page.Items) == 0 {
			return playlists, nil
		}
		offset += spotifyPageLimit
	}
}

// FetchPlaylistTracks returns the tracks of one playlist.
func (s *Spotify) FetchPlaylistTracks(ctx context.Context, token, playlistID string) ([]models.NormalizedTrack, error) {
	return s.fetchTrackPages(ctx, token, fmt.Sprintf("/playlists/%s/tracks", playlistID))
}

func (s *Spotify) fetchTrackPages(ctx context.Context, token, endpoint string) ([]models.NormalizedTrack, error) {
	var tracks []models.NormalizedTrack
	offset := 0
	for {
		var page spotifyTrackPage
		path := fmt.Sprintf("%s?limit=%d&offset=%d", endpoint, spotifyPageLimit, offset)
		if err := s.client.doJSON(ctx, token, "GET", path, nil, &page); err != nil {
			return nil, err
		}
		for _, item := range page.Items {
			// Local and removed tracks come through with a null track node.
			if item.Track == nil || item.Track.ID == "" {
				continue
			}
			tracks = append(tracks, normalizeSpotifyTrack(*item.Track))
		}
		if page.Next == nil || len(page.Items) == 0 {
			return tracks, nil
		}
		offset += spotifyPageLimit
	}
}

// CreateOrUpdatePlaylist finds the user's playlist by case-insensitive name
// and updates it, creating one when absent. Returns the playlist id.
func (s *Spotify) CreateOrUpdatePlaylist(ctx context.Context, token, name, description string, public bool) (string, error) {
	playlists, err := s.FetchPlaylists(ctx, token)
	if err != nil {
		return "", err
	}

	body := map[string]any{"name": name, "description": description, "public": public}

	for _, playlist := range playlists {
		if strings.EqualFold(playlist.Name, name) {
			if err := s.client.doJSON(ctx, token, "PUT", "/playlists/"+playlist.ID, body, nil); err != nil {
				return "", err
			}
			return playlist.ID, nil
		}
	}

	var profile spotifyProfile
	if err := s.client.doJSON(ctx, token, "GET", "/me", nil, &profile); err != nil {
		return "", err
	}

	var created spotifyPlaylist
	path := fmt.Sprintf("/users/%s/playlists", profile.ID)
	if err := s.client.doJSON(ctx, token, "POST", path, body, &created); err != nil {
		return "", err
	}
	return created.ID, nil
}

// AddTracksToPlaylist resolves tracks to Spotify ids and appends the ones the
// playlist does not already contain.
func (s *Spotify) AddTracksToPlaylist(ctx context.Context, token, playlistID string, tracks []models.NormalizedTrack) error {
	existing, err := s.FetchPlaylistTracks(ctx, token, playlistID)
	if err != nil {
		return err
	}

	present := make(map[string]struct{}, len(existing))
	for _, track := range existing {
		if id := track.ExternalID(ExternalIDSpotify); id != "" {
			present[id] = struct{}{}
		}
	}

	ids, err := s.resolveTrackIDs(ctx, token, tracks)
	if err != nil {
		return err
	}

	var uris []string
	for _, id := range ids {
		if _, ok := present[id]; ok {
			continue
		}
		uris = append(uris, "spotify:track:"+id)
	}

	for start := 0; start < len(uris); start += spotifyBatchLimit {
		end := min(start+spotifyBatchLimit, len(uris))
		body := map[string]any{"uris": uris[start:end]}
		path := fmt.Sprintf("/playlists/%s/tracks", playlistID)
		if err := s.client.doJSON(ctx, token, "POST", path, body, nil); err != nil {
			return err
		}
	}
	return nil
}

// LikeTracks saves tracks to the user's library.
func (s *Spotify) LikeTracks(ctx context.Context, token string, tracks []models.NormalizedTrack) error {
	ids, err := s.resolveTrackIDs(ctx, token, tracks)
	if err != nil {
		return err
	}

	for start := 0; start < len(ids); start += spotifyLikeLimit {
		end := min(start+spotifyLikeLimit, len(ids))
		path := "/me/tracks?ids=" + url.QueryEscape(strings.Join(ids[start:end], ","))
		if err := s.client.doJSON(ctx, token, "PUT", path, nil, nil); err != nil {
			return err
		}
	}
	return nil
}

// resolveTrackIDs maps normalized tracks to Spotify ids, searching for tracks
// that carry no Spotify id. Unresolvable tracks are logged and dropped.
func (s *Spotify) resolveTrackIDs(ctx context.Context, token string, tracks []models.NormalizedTrack) ([]string, error) {
	var ids []string
	for _, track := range tracks {
		if id := track.ExternalID(ExternalIDSpotify); id != "" {
			ids = append(ids, id)
			continue
		}

		candidates, err := s.searchCandidates(ctx, token, track)
		if err != nil {
			return nil, err
		}

		best := s.matcher.FindBestMatch(track, candidates)
		if best == nil {
			s.logger.Warn("no spotify match", "title", track.Title, "artist", track.PrimaryArtist())
			continue
		}
		if id := best.ExternalID(ExternalIDSpotify); id != "" {
			ids = append(ids, id)
		}
	}
	return dedupeIDs(ids), nil
}

func (s *Spotify) searchCandidates(ctx context.Context, token string, track models.NormalizedTrack) ([]models.NormalizedTrack, error) {
	query := fmt.Sprintf("track:%s artist:%s", track.Title, track.PrimaryArtist())
	if track.ISRC != "" {
		query = "isrc:" + track.ISRC
	}

	var response spotifySearchResponse
	path := "/search?type=track&limit=10&q=" + url.QueryEscape(query)
	if err := s.client.doJSON(ctx, token, "GET", path, nil, &response); err != nil {
		return nil, err
	}

	candidates := make([]models.NormalizedTrack, 0, len(response.Tracks.Items))
	for _, item := range response.Tracks.Items {
		candidates = append(candidates, normalizeSpotifyTrack(item))
	}
	return candidates, nil
}

func normalizeSpotifyTrack(track spotifyTrack) models.NormalizedTrack {
	artists := make([]string, 0, len(track.Artists))
	for _, artist := range track.Artists {
		if artist.Name != "" {
			artists = append(artists, artist.Name)
		}
	}

	externalIDs := map[string]string{}
	if track.ID != "" {
		externalIDs[ExternalIDSpotify] = track.ID
	}

	return models.NormalizedTrack{
		Title:       track.Name,
		Artists:     artists,
		DurationMS:  track.DurationMS,
		ISRC:        track.ExternalIDs.ISRC,
		ExternalIDs: externalIDs,
		SourceURL:   track.ExternalURLs.Spotify,
	}
}
