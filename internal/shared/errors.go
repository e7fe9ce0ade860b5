package shared

import "fmt"

var (
	// Configuration errors
	ErrMissingConfig       = fmt.Errorf("configuration not found")
	ErrInvalidConfig       = fmt.Errorf("invalid configuration")
	ErrMissingCredentials  = fmt.Errorf("missing credentials")
	ErrUnsupportedProvider = fmt.Errorf("unsupported provider")
	ErrInvalidMapping      = fmt.Errorf("invalid playlist mapping")

	// Authorization errors
	ErrNotConnected   = fmt.Errorf("provider not connected")
	ErrInvalidState   = fmt.Errorf("invalid or expired state")
	ErrExchangeFailed = fmt.Errorf("token exchange failed")
	ErrRefreshFailed  = fmt.Errorf("token refresh failed")
	ErrNoRefreshToken = fmt.Errorf("no refresh token available")

	// Provider and sync errors
	ErrAPIRequest       = fmt.Errorf("provider request failed")
	ErrPlaylistNotFound = fmt.Errorf("playlist not found")
	ErrTrackNotFound    = fmt.Errorf("track not found")
	ErrDuplicateKey     = fmt.Errorf("duplicate key")
	ErrNotFound         = fmt.Errorf("not found")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidSchedule = fmt.Errorf("invalid schedule")
)
