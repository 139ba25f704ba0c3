package spotify

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// Storage keys for the persisted token pair.
const (
	AccessTokenKey  = "spotify_access_token"
	RefreshTokenKey = "spotify_refresh_token"
)

// TokenPair is the credential set held by a Client. An empty AccessToken
// means the client is not authenticated; RefreshToken is optional.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// Valid reports whether an access token is present.
func (p TokenPair) Valid() bool {
	return p.AccessToken != ""
}

// OAuth2 converts the pair to an oauth2.Token. Expiry is the one reported
// by the last token response, zero when unknown.
func (p TokenPair) OAuth2(expiry time.Time) *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       expiry,
	}
}

// tokenResponse is the token endpoint's JSON body.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	Scope        string `json:"scope"`
}

// errorResponse is the OAuth error body.
type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func parseTokenResponse(body []byte) (*tokenResponse, error) {
	var resp tokenResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}
	if err := validateTokenResponse(&resp); err != nil {
		return nil, fmt.Errorf("invalid token response: %w", err)
	}
	return &resp, nil
}

// validateTokenResponse checks the fields the client relies on. Expiry is
// informational only, so a missing expires_in is accepted.
func validateTokenResponse(resp *tokenResponse) error {
	if resp.AccessToken == "" {
		return errors.New("access_token is empty")
	}

	if resp.ExpiresIn < 0 {
		return fmt.Errorf("expires_in must not be negative, got: %d", resp.ExpiresIn)
	}

	// token_type is optional, but if present must be Bearer
	if resp.TokenType != "" && !strings.EqualFold(resp.TokenType, "Bearer") {
		return fmt.Errorf("unexpected token_type: %s (expected Bearer)", resp.TokenType)
	}

	return nil
}

func (r *tokenResponse) expiry(now time.Time) time.Time {
	if r.ExpiresIn == 0 {
		return time.Time{}
	}
	return now.Add(time.Duration(r.ExpiresIn) * time.Second)
}

// oauthErrorDescription extracts a readable message from an OAuth error
// body, or "" when body is not one.
func oauthErrorDescription(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return ""
	}
	if errResp.ErrorDescription == "" {
		return errResp.Error
	}
	return errResp.Error + " - " + errResp.ErrorDescription
}
