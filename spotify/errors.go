package spotify

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotAuthenticated is returned by authenticated calls made while no
	// access token is held. No request is sent.
	ErrNotAuthenticated = errors.New("not authenticated with spotify")

	// ErrNoRefreshToken is returned when a refresh is attempted without a
	// stored refresh token.
	ErrNoRefreshToken = errors.New("no refresh token available")

	// ErrPlayerNotConnected is returned by PlayTrack when no player is attached.
	ErrPlayerNotConnected = errors.New("player not initialized")

	// ErrNoDevice is returned by DevicePlayer.Connect when the account has
	// no Spotify Connect device.
	ErrNoDevice = errors.New("no playback device available")
)

// ConfigurationError reports client credentials that were not supplied.
type ConfigurationError struct {
	Missing []string
}

func (e *ConfigurationError) Error() string {
	return "spotify credentials not configured: missing " + strings.Join(e.Missing, ", ")
}

// AuthExchangeError is returned when the token endpoint rejects a request
// or returns an unusable body. After a failed code exchange the
// authorization flow has to be restarted.
type AuthExchangeError struct {
	Op         string // "exchange" or "refresh"
	StatusCode int    // zero when the failure was not an HTTP status
	Body       []byte
	Err        error
}

func (e *AuthExchangeError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "token %s failed", e.Op)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " with status %d", e.StatusCode)
	}
	if desc := oauthErrorDescription(e.Body); desc != "" {
		b.WriteString(": " + desc)
	}
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

func (e *AuthExchangeError) Unwrap() error {
	return e.Err
}

// APIRequestError is returned when a resource call fails, including a
// second 401 after the one allowed refresh.
type APIRequestError struct {
	StatusCode int
	Body       []byte
}

func (e *APIRequestError) Error() string {
	return fmt.Sprintf("spotify api error: %d", e.StatusCode)
}

// StatusCode returns the HTTP status carried by an *APIRequestError in
// err's chain, or 0.
func StatusCode(err error) int {
	var apiErr *APIRequestError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
