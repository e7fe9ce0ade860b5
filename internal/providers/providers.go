// Package providers adapts provider catalog APIs to the normalized model.
//
// Each adapter speaks one provider's wire format and exposes the Provider
// interface over normalized tracks and playlists. Outbound calls are rate
// limited per provider and wrapped with the bounded retry policy; failures
// surface as *retry.ProviderError.
package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"tunesync/internal/models"
	"tunesync/internal/retry"
)

// External id keys under which adapters record provider-native track ids.
const (
	ExternalIDSpotify    = "spotifyId"
	ExternalIDSoundCloud = "soundcloudId"
)

const maxResponseBytes = 4 << 20

// Provider is one music catalog seen through the normalized model. A token is
// passed per call; adapters hold no credential state.
type Provider interface {
	Name() string
	FetchLikedTracks(ctx context.Context, token string) ([]models.NormalizedTrack, error)
	FetchPlaylists(ctx context.Context, token string) ([]models.NormalizedPlaylist, error)
	FetchPlaylistTracks(ctx context.Context, token, playlistID string) ([]models.NormalizedTrack, error)
	CreateOrUpdatePlaylist(ctx context.Context, token, name, description string, public bool) (string, error)
	AddTracksToPlaylist(ctx context.Context, token, playlistID string, tracks []models.NormalizedTrack) error
	LikeTracks(ctx context.Context, token string, tracks []models.NormalizedTrack) error
}

// apiClient performs authenticated JSON requests against one provider's API.
type apiClient struct {
	baseURL    string
	authScheme string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *log.Logger
}

func newAPIClient(baseURL, authScheme string, limiter *rate.Limiter, logger *log.Logger) *apiClient {
	return &apiClient{
		baseURL:    baseURL,
		authScheme: authScheme,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    limiter,
		logger:     logger,
	}
}

// doJSON issues one API call with retries. A nil result discards the
// response body.
func (c *apiClient) doJSON(ctx context.Context, token, method, path string, body, result any) error {
	return retry.Do(ctx, c.logger, func(ctx context.Context) error {
		return c.send(ctx, token, method, path, body, result)
	})
}

func (c *apiClient) send(ctx context.Context, token, method, path string, body, result any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", c.authScheme+" "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return retry.FromResponse(resp, payload)
	}

	if result != nil && len(payload) > 0 {
		if err := json.Unmarshal(payload, result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

// dedupeIDs drops repeated ids while preserving first-seen order.
func dedupeIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
