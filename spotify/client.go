// Package spotify is an authenticated client for the Spotify Web API.
//
// A Client runs the OAuth2 authorization-code flow, mirrors the resulting
// token pair into a kv.Store, and sends bearer-authenticated requests. A
// request rejected with 401 triggers one token refresh and one resend.
// Token endpoint calls are never retried.
package spotify

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	retry "github.com/appleboy/go-httpretry"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/focushub/spotify-cli/kv"
)

// Provider endpoints.
const (
	DefaultAuthURL    = "https://accounts.spotify.com/authorize"
	DefaultTokenURL   = "https://accounts.spotify.com/api/token"
	DefaultAPIBaseURL = "https://api.spotify.com/v1"
)

// Timeouts layered on the caller's context for each network call.
const (
	tokenRequestTimeout = 10 * time.Second
	apiRequestTimeout   = 15 * time.Second
)

// Scopes is the fixed permission set requested at authorization.
var Scopes = []string{
	"user-read-private",
	"user-read-email",
	"playlist-read-private",
	"playlist-read-collaborative",
	"streaming",
	"user-read-playback-state",
	"user-modify-playback-state",
}

// Config holds the registered application's credentials and the provider
// endpoints. Empty endpoints fall back to the Default* constants.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string

	AuthURL    string
	TokenURL   string
	APIBaseURL string
}

func (c Config) withDefaults() Config {
	if c.AuthURL == "" {
		c.AuthURL = DefaultAuthURL
	}
	if c.TokenURL == "" {
		c.TokenURL = DefaultTokenURL
	}
	if c.APIBaseURL == "" {
		c.APIBaseURL = DefaultAPIBaseURL
	}
	c.APIBaseURL = strings.TrimRight(c.APIBaseURL, "/")
	return c
}

// Doer sends HTTP requests. *retry.Client satisfies it.
type Doer interface {
	DoWithContext(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Client is one authentication session. It is safe for concurrent use;
// overlapping refreshes are collapsed into a single token request.
type Client struct {
	cfg    Config
	oauth  *oauth2.Config
	store  kv.Store
	http   Doer
	// tokenHTTP sends token endpoint POSTs; it must not retry, since the
	// provider consumes an authorization code on first use.
	tokenHTTP Doer
	logger    zerolog.Logger
	now    func() time.Time

	mu     sync.RWMutex
	tokens TokenPair
	expiry time.Time
	player Player

	refreshGroup singleflight.Group
}

// Option configures a Client.
type Option func(*Client)

// WithDoer replaces the HTTP client used for API resource calls.
func WithDoer(d Doer) Option {
	return func(c *Client) {
		c.http = d
	}
}

// WithTokenDoer replaces the HTTP client used for the token endpoint. It
// should perform a single attempt per call.
func WithTokenDoer(d Doer) Option {
	return func(c *Client) {
		c.tokenHTTP = d
	}
}

// WithLogger sets the logger used for token lifecycle events.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// NewHTTPClient builds the HTTP client used by default. maxRetries applies
// to transient failures only; 0 keeps every logical call to a single
// network attempt. Retry events are written to logger.
func NewHTTPClient(maxRetries int, logger zerolog.Logger) (*retry.Client, error) {
	base := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
			MaxIdleConns:        10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}

	return retry.NewClient(
		retry.WithHTTPClient(base),
		retry.WithMaxRetries(maxRetries),
		retry.WithLogger(retryLogger{l: logger}),
	)
}

// New creates a client and reloads any token pair persisted in store.
// A nil store keeps tokens in memory only.
func New(cfg Config, store kv.Store, opts ...Option) (*Client, error) {
	cfg = cfg.withDefaults()
	if store == nil {
		store = kv.NewMemoryStore()
	}

	c := &Client{
		cfg: cfg,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		store:  store,
		logger: zerolog.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.http == nil {
		hc, err := NewHTTPClient(0, c.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create http client: %w", err)
		}
		c.http = hc
	}
	if c.tokenHTTP == nil {
		hc, err := NewHTTPClient(0, c.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create token http client: %w", err)
		}
		c.tokenHTTP = hc
	}

	if err := c.loadTokens(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) loadTokens() error {
	access, err := c.store.Get(AccessTokenKey)
	if err != nil && !errors.Is(err, kv.ErrNotFound) {
		return fmt.Errorf("failed to load access token: %w", err)
	}
	refresh, err := c.store.Get(RefreshTokenKey)
	if err != nil && !errors.Is(err, kv.ErrNotFound) {
		return fmt.Errorf("failed to load refresh token: %w", err)
	}

	c.mu.Lock()
	c.tokens = TokenPair{AccessToken: access, RefreshToken: refresh}
	c.mu.Unlock()

	if access != "" {
		c.logger.Debug().Bool("refreshable", refresh != "").Msg("Loaded stored tokens")
	}
	return nil
}

// AuthorizationURL returns the provider URL the user must visit. state is
// echoed back on the redirect and should be checked by the caller; it is
// omitted when empty.
func (c *Client) AuthorizationURL(state string) (string, error) {
	if c.cfg.ClientID == "" {
		return "", &ConfigurationError{Missing: []string{"client id"}}
	}
	return c.oauth.AuthCodeURL(state, oauth2.SetAuthURLParam("show_dialog", "true")), nil
}

// ExchangeCode trades an authorization code for tokens, persists them and
// returns them. The request is never retried: the provider consumes the
// code on the first attempt.
func (c *Client) ExchangeCode(ctx context.Context, code string) (TokenPair, error) {
	if code == "" {
		return TokenPair{}, &AuthExchangeError{Op: "exchange", Err: errors.New("authorization code is empty")}
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", c.cfg.RedirectURI)

	resp, err := c.postToken(ctx, "exchange", form)
	if err != nil {
		return TokenPair{}, err
	}

	pair := TokenPair{AccessToken: resp.AccessToken, RefreshToken: resp.RefreshToken}

	c.mu.Lock()
	c.tokens = pair
	c.expiry = resp.expiry(c.now())
	c.mu.Unlock()

	c.persist(pair, true)
	c.logger.Debug().Bool("refreshable", pair.RefreshToken != "").Msg("Authorization code exchanged")
	return pair, nil
}

// RefreshAccessToken obtains a new access token with the stored refresh
// token. The refresh token is kept unless the provider rotates it.
// Concurrent callers share one in-flight request.
func (c *Client) RefreshAccessToken(ctx context.Context) error {
	return c.sharedRefresh(ctx, "")
}

// sharedRefresh joins or starts the single in-flight refresh. The flight
// runs detached from ctx so one caller giving up does not fail the others;
// ctx only bounds how long this caller waits. A non-empty rejected skips
// the request when another caller already replaced that token.
func (c *Client) sharedRefresh(ctx context.Context, rejected string) error {
	flightCtx := context.WithoutCancel(ctx)
	ch := c.refreshGroup.DoChan("refresh", func() (any, error) {
		// checked inside the flight so a caller arriving just after a
		// completed refresh does not start another
		if rejected != "" {
			if current := c.accessToken(); current != "" && current != rejected {
				return nil, nil
			}
		}
		return nil, c.refresh(flightCtx)
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		if res.Shared {
			c.logger.Debug().Msg("Joined in-flight token refresh")
		}
		return res.Err
	}
}

func (c *Client) refresh(ctx context.Context) error {
	c.mu.RLock()
	refreshToken := c.tokens.RefreshToken
	c.mu.RUnlock()

	if refreshToken == "" {
		return ErrNoRefreshToken
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	resp, err := c.postToken(ctx, "refresh", form)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.tokens.RefreshToken != refreshToken {
		// logged out or re-authorized while the request was in flight
		c.mu.Unlock()
		c.logger.Debug().Msg("Discarding refresh result for a replaced session")
		if !c.IsAuthenticated() {
			return ErrNotAuthenticated
		}
		return nil
	}
	c.tokens.AccessToken = resp.AccessToken
	rotated := resp.RefreshToken != "" && resp.RefreshToken != refreshToken
	if rotated {
		c.tokens.RefreshToken = resp.RefreshToken
	}
	c.expiry = resp.expiry(c.now())
	pair := c.tokens
	c.mu.Unlock()

	c.persist(pair, rotated)
	c.logger.Debug().Bool("rotated", rotated).Msg("Access token refreshed")
	return nil
}

// postToken sends one form POST to the token endpoint with Basic client
// authentication.
func (c *Client) postToken(ctx context.Context, op string, form url.Values) (*tokenResponse, error) {
	var missing []string
	if c.cfg.ClientID == "" {
		missing = append(missing, "client id")
	}
	if c.cfg.ClientSecret == "" {
		missing = append(missing, "client secret")
	}
	if len(missing) > 0 {
		return nil, &ConfigurationError{Missing: missing}
	}

	reqCtx, cancel := context.WithTimeout(ctx, tokenRequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(
		reqCtx,
		http.MethodPost,
		c.cfg.TokenURL,
		strings.NewReader(form.Encode()),
	)
	if err != nil {
		return nil, &AuthExchangeError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)

	// exhausted retries on a retryable status return the final response
	// alongside the error
	resp, err := c.tokenHTTP.DoWithContext(reqCtx, req)
	if resp == nil {
		if err == nil {
			err = errors.New("no response")
		}
		return nil, &AuthExchangeError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &AuthExchangeError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &AuthExchangeError{Op: op, StatusCode: resp.StatusCode, Body: body}
	}

	tr, err := parseTokenResponse(body)
	if err != nil {
		return nil, &AuthExchangeError{Op: op, Body: body, Err: err}
	}
	return tr, nil
}

// persist mirrors pair into the store. Storage failures are logged, not
// returned: the in-memory session stays usable.
func (c *Client) persist(pair TokenPair, withRefresh bool) {
	if err := c.store.Set(AccessTokenKey, pair.AccessToken); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to persist access token")
	}
	if !withRefresh {
		return
	}

	var err error
	if pair.RefreshToken == "" {
		err = c.store.Delete(RefreshTokenKey)
	} else {
		err = c.store.Set(RefreshTokenKey, pair.RefreshToken)
	}
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to persist refresh token")
	}
}

// Request sends an authenticated call to endpoint (a path below the API
// base URL, query included). body, when non-nil, is sent as JSON.
//
// A 401 response causes one refresh and one resend. Any other non-2xx
// status, or a second 401, is returned as *APIRequestError. An empty
// response body yields a nil message.
func (c *Client) Request(ctx context.Context, method, endpoint string, body any) (json.RawMessage, error) {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	token := c.accessToken()
	if token == "" {
		return nil, ErrNotAuthenticated
	}

	status, respBody, err := c.send(ctx, method, endpoint, payload, token)
	if err != nil {
		return nil, err
	}

	if status == http.StatusUnauthorized {
		c.logger.Debug().Str("endpoint", endpoint).Msg("Access token rejected (401), refreshing")

		if err := c.sharedRefresh(ctx, token); err != nil {
			return nil, fmt.Errorf("refresh after 401 failed: %w", err)
		}
		if token = c.accessToken(); token == "" {
			return nil, ErrNotAuthenticated
		}

		c.logger.Debug().Str("endpoint", endpoint).Msg("Token refreshed, retrying request")
		status, respBody, err = c.send(ctx, method, endpoint, payload, token)
		if err != nil {
			return nil, err
		}
	}

	if status < 200 || status > 299 {
		return nil, &APIRequestError{StatusCode: status, Body: respBody}
	}

	if len(bytes.TrimSpace(respBody)) == 0 {
		return nil, nil
	}
	return json.RawMessage(respBody), nil
}

func (c *Client) send(
	ctx context.Context,
	method, endpoint string,
	payload []byte,
	token string,
) (int, []byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, apiRequestTimeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(reqCtx, method, c.endpointURL(endpoint), body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.DoWithContext(reqCtx, req)
	if resp == nil {
		if err == nil {
			err = errors.New("no response")
		}
		return 0, nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp.StatusCode, respBody, nil
}

// endpointURL accepts a path relative to the API base or an absolute URL
// already below it (as found in paging links).
func (c *Client) endpointURL(endpoint string) string {
	if strings.HasPrefix(endpoint, c.cfg.APIBaseURL) {
		return endpoint
	}
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	return c.cfg.APIBaseURL + endpoint
}

func (c *Client) accessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tokens.AccessToken
}

// IsAuthenticated reports whether an access token is held.
func (c *Client) IsAuthenticated() bool {
	return c.accessToken() != ""
}

// Tokens returns a copy of the current token pair.
func (c *Client) Tokens() TokenPair {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tokens
}

// Expiry returns the access token expiry reported by the last token
// response, or the zero time when unknown (e.g. tokens reloaded from storage).
func (c *Client) Expiry() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.expiry
}

// Logout forgets the session in memory and in the store and disconnects
// the attached player. Calling it again is harmless.
func (c *Client) Logout() error {
	c.mu.Lock()
	c.tokens = TokenPair{}
	c.expiry = time.Time{}
	player := c.player
	c.player = nil
	c.mu.Unlock()

	if player != nil {
		player.Disconnect()
	}

	return errors.Join(
		c.store.Delete(AccessTokenKey),
		c.store.Delete(RefreshTokenKey),
	)
}
