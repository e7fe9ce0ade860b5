package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/oauth2"

	"tunesync/internal/models"
	"tunesync/internal/retry"
	"tunesync/internal/shared"
	"tunesync/internal/store"
)

const (
	// ProviderSpotify and ProviderSoundCloud name the supported catalogs.
	ProviderSpotify    = "spotify"
	ProviderSoundCloud = "soundcloud"

	// stateTTL bounds how long a pending authorization stays redeemable.
	stateTTL = 10 * time.Minute

	// refreshWindow is the lead time before expiry that triggers a refresh.
	refreshWindow = 2 * time.Minute
)

// Refresh outcome vocabulary persisted on the connected account.
const (
	ResultConnected          = "connected"
	ResultRefreshed          = "refreshed"
	ResultRefreshUnavailable = "refresh_unavailable"
	ResultRefreshFailed      = "refresh_failed"
)

type endpoints struct {
	authURL  string
	tokenURL string
	scopes   []string
}

var providerEndpoints = map[string]endpoints{
	ProviderSpotify: {
		authURL:  "https://accounts.spotify.com/authorize",
		tokenURL: "https://accounts.spotify.com/api/token",
		scopes:   []string{"playlist-read-private", "playlist-modify-private", "playlist-modify-public", "user-library-read", "user-library-modify"},
	},
	ProviderSoundCloud: {
		authURL:  "https://soundcloud.com/connect",
		tokenURL: "https://api.soundcloud.com/oauth2/token",
		scopes:   []string{"non-expiring"},
	},
}

// ConnectionStatus summarizes one provider connection for callers that must
// not see token material.
type ConnectionStatus struct {
	Provider          string     `json:"provider"`
	Connected         bool       `json:"connected"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty"`
	LastRefreshResult string     `json:"last_refresh_result,omitempty"`
}

// Manager runs the PKCE authorization flow and keeps stored tokens fresh.
type Manager struct {
	store      store.Store
	protector  Protector
	creds      shared.CredentialsConfig
	httpClient *http.Client
	logger     *log.Logger
	now        func() time.Time

	// tokenURLOverrides redirects token exchange in tests.
	tokenURLOverrides map[string]string
}

// NewManager creates an auth manager backed by the given store and protector.
func NewManager(s store.Store, protector Protector, creds shared.CredentialsConfig, logger *log.Logger) *Manager {
	return &Manager{
		store:      s,
		protector:  protector,
		creds:      creds,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
		now:        time.Now,
	}
}

// SetHTTPClient replaces the client used for token endpoint calls.
func (m *Manager) SetHTTPClient(client *http.Client) {
	m.httpClient = client
}

// SetTokenURL overrides a provider's token endpoint. Test hook.
func (m *Manager) SetTokenURL(provider, url string) {
	if m.tokenURLOverrides == nil {
		m.tokenURLOverrides = map[string]string{}
	}
	m.tokenURLOverrides[provider] = url
}

// SetClock overrides the manager's clock. Test hook.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

func (m *Manager) credentials(provider string) (shared.ProviderCredentials, error) {
	switch provider {
	case ProviderSpotify:
		return m.creds.Spotify, nil
	case ProviderSoundCloud:
		return m.creds.SoundCloud, nil
	default:
		return shared.ProviderCredentials{}, fmt.Errorf("%w: %s", shared.ErrUnsupportedProvider, provider)
	}
}

func (m *Manager) oauthConfig(provider string) (*oauth2.Config, error) {
	ep, ok := providerEndpoints[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrUnsupportedProvider, provider)
	}

	creds, err := m.credentials(provider)
	if err != nil {
		return nil, err
	}
	if creds.ClientID == "" {
		return nil, fmt.Errorf("%w: %s client id not configured", shared.ErrMissingCredentials, provider)
	}

	tokenURL := ep.tokenURL
	if override, ok := m.tokenURLOverrides[provider]; ok {
		tokenURL = override
	}

	return &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		RedirectURL:  creds.CallbackURL,
		Scopes:       ep.scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  ep.authURL,
			TokenURL: tokenURL,
		},
	}, nil
}

// StartAuthorization begins the PKCE flow for (user, provider). It persists
// the state record and returns the provider authorize URL to redirect to.
func (m *Manager) StartAuthorization(ctx context.Context, userAccountID, provider string) (string, error) {
	cfg, err := m.oauthConfig(provider)
	if err != nil {
		return "", err
	}

	pkce, err := GeneratePKCE()
	if err != nil {
		return "", fmt.Errorf("generating authorization material: %w", err)
	}

	record := &models.OAuthState{
		ID:            shared.GenerateID(),
		Provider:      provider,
		UserAccountID: userAccountID,
		State:         pkce.State,
		CodeVerifier:  pkce.Verifier,
		ExpiresAt:     m.now().Add(stateTTL),
	}
	if err := m.store.CreateOAuthState(ctx, record); err != nil {
		return "", fmt.Errorf("persisting authorization state: %w", err)
	}

	m.logger.Debug("authorization started", "provider", provider, "user", userAccountID)

	return cfg.AuthCodeURL(pkce.State,
		oauth2.SetAuthURLParam("code_challenge", pkce.Challenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	), nil
}

// HandleCallback redeems the authorization code delivered to the redirect
// endpoint. The state must match a live record for the same user and
// provider; records are consumed whether or not the exchange succeeds.
func (m *Manager) HandleCallback(ctx context.Context, userAccountID, provider, code, state string) (*ConnectionStatus, error) {
	cfg, err := m.oauthConfig(provider)
	if err != nil {
		return nil, err
	}

	record, err := m.store.ConsumeOAuthState(ctx, state, provider, userAccountID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrInvalidState
		}
		return nil, fmt.Errorf("consuming authorization state: %w", err)
	}
	if record.Expired(m.now()) {
		return nil, shared.ErrInvalidState
	}

	var token *oauth2.Token
	exchange := func(ctx context.Context) error {
		t, err := cfg.Exchange(m.clientContext(ctx), code,
			oauth2.SetAuthURLParam("code_verifier", record.CodeVerifier))
		if err != nil {
			return err
		}
		token = t
		return nil
	}
	if err := retry.Do(ctx, m.logger, exchange); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrExchangeFailed, err)
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("%w: empty access token", shared.ErrExchangeFailed)
	}

	account := &models.ConnectedAccount{
		ID:                shared.GenerateID(),
		UserAccountID:     userAccountID,
		Provider:          provider,
		LastRefreshResult: ResultConnected,
	}
	if err := m.applyToken(account, token); err != nil {
		return nil, err
	}
	if err := m.store.UpsertConnectedAccount(ctx, account); err != nil {
		return nil, fmt.Errorf("persisting connected account: %w", err)
	}

	m.logger.Info("provider connected", "provider", provider, "user", userAccountID)

	// Providers occasionally hand back a token that is already near expiry.
	return m.RefreshIfExpiring(ctx, userAccountID, provider)
}

// RefreshIfExpiring refreshes the stored token when it expires within the
// refresh window. Tokens without an expiry never refresh; accounts without a
// refresh token are marked refresh_unavailable but stay usable until the
// provider rejects them.
func (m *Manager) RefreshIfExpiring(ctx context.Context, userAccountID, provider string) (*ConnectionStatus, error) {
	account, err := m.store.GetConnectedAccount(ctx, userAccountID, provider)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return &ConnectionStatus{Provider: provider, Connected: false, LastRefreshResult: "not_connected"}, nil
		}
		return nil, fmt.Errorf("loading connected account: %w", err)
	}

	status := &ConnectionStatus{
		Provider:          provider,
		Connected:         true,
		ExpiresAt:         account.ExpiresAt,
		LastRefreshResult: account.LastRefreshResult,
	}

	now := m.now()
	if account.ExpiresAt == nil || account.ExpiresAt.After(now.Add(refreshWindow)) {
		return status, nil
	}

	if account.RefreshTokenRef == "" {
		return m.recordRefreshResult(ctx, account, ResultRefreshUnavailable, now)
	}

	refreshToken, err := m.protector.Unprotect(account.RefreshTokenRef)
	if err != nil {
		return nil, fmt.Errorf("unprotecting refresh token: %w", err)
	}

	cfg, err := m.oauthConfig(provider)
	if err != nil {
		return nil, err
	}

	var refreshed *oauth2.Token
	op := func(ctx context.Context) error {
		t, err := cfg.TokenSource(m.clientContext(ctx), &oauth2.Token{RefreshToken: refreshToken}).Token()
		if err != nil {
			return err
		}
		refreshed = t
		return nil
	}
	if err := retry.Do(ctx, m.logger, op); err != nil {
		if _, recordErr := m.recordRefreshResult(ctx, account, ResultRefreshFailed, now); recordErr != nil {
			m.logger.Error("recording refresh failure", "provider", provider, "err", recordErr)
		}
		return nil, fmt.Errorf("%w: %v", shared.ErrRefreshFailed, err)
	}

	if err := m.applyToken(account, refreshed); err != nil {
		return nil, err
	}
	return m.recordRefreshResult(ctx, account, ResultRefreshed, now)
}

// AccessToken returns a plaintext access token for (user, provider),
// refreshing first when the stored token is near expiry.
func (m *Manager) AccessToken(ctx context.Context, userAccountID, provider string) (string, error) {
	status, err := m.RefreshIfExpiring(ctx, userAccountID, provider)
	if err != nil {
		return "", err
	}
	if !status.Connected {
		return "", fmt.Errorf("%w: %s", shared.ErrNotConnected, provider)
	}

	account, err := m.store.GetConnectedAccount(ctx, userAccountID, provider)
	if err != nil {
		return "", fmt.Errorf("loading connected account: %w", err)
	}
	if account.AccessTokenRef == "" {
		return "", fmt.Errorf("%w: %s", shared.ErrNotConnected, provider)
	}

	token, err := m.protector.Unprotect(account.AccessTokenRef)
	if err != nil {
		return "", fmt.Errorf("unprotecting access token: %w", err)
	}
	return token, nil
}

// Connections lists the status of every provider connection for a user.
func (m *Manager) Connections(ctx context.Context, userAccountID string) ([]*ConnectionStatus, error) {
	accounts, err := m.store.ListConnectedAccounts(ctx, userAccountID)
	if err != nil {
		return nil, fmt.Errorf("listing connected accounts: %w", err)
	}

	statuses := make([]*ConnectionStatus, 0, len(accounts))
	for _, account := range accounts {
		statuses = append(statuses, &ConnectionStatus{
			Provider:          account.Provider,
			Connected:         account.AccessTokenRef != "",
			ExpiresAt:         account.ExpiresAt,
			LastRefreshResult: account.LastRefreshResult,
		})
	}
	return statuses, nil
}

// CleanupExpiredStates removes stale authorization state records.
func (m *Manager) CleanupExpiredStates(ctx context.Context) error {
	return m.store.DeleteExpiredOAuthStates(ctx, m.now())
}

// applyToken protects token material onto the account. A refresh response
// that omits a new refresh token keeps the stored one.
func (m *Manager) applyToken(account *models.ConnectedAccount, token *oauth2.Token) error {
	accessRef, err := m.protector.Protect(token.AccessToken)
	if err != nil {
		return fmt.Errorf("protecting access token: %w", err)
	}
	account.AccessTokenRef = accessRef

	if token.RefreshToken != "" {
		refreshRef, err := m.protector.Protect(token.RefreshToken)
		if err != nil {
			return fmt.Errorf("protecting refresh token: %w", err)
		}
		account.RefreshTokenRef = refreshRef
	}

	if token.Expiry.IsZero() {
		account.ExpiresAt = nil
	} else {
		expiry := token.Expiry.UTC()
		account.ExpiresAt = &expiry
	}
	return nil
}

func (m *Manager) recordRefreshResult(ctx context.Context, account *models.ConnectedAccount, result string, now time.Time) (*ConnectionStatus, error) {
	account.LastRefreshResult = result
	refreshedAt := now.UTC()
	account.LastRefreshedAt = &refreshedAt

	if err := m.store.UpsertConnectedAccount(ctx, account); err != nil {
		return nil, fmt.Errorf("persisting refresh result: %w", err)
	}

	m.logger.Debug("refresh recorded", "provider", account.Provider, "result", result)

	return &ConnectionStatus{
		Provider:          account.Provider,
		Connected:         true,
		ExpiresAt:         account.ExpiresAt,
		LastRefreshResult: result,
	}, nil
}

// clientContext routes oauth2's internal HTTP through the manager's client.
func (m *Manager) clientContext(ctx context.Context) context.Context {
	if m.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
}
