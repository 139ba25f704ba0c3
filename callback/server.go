// Package callback receives the OAuth2 authorization redirect on a local
// HTTP listener.
package callback

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

func init() {
	gin.SetMode(gin.ReleaseMode)
}

// ErrStateMismatch is returned when the redirect carries an unexpected
// state value.
var ErrStateMismatch = errors.New("authorization state mismatch")

// AuthorizationDeniedError reports an error= redirect from the provider,
// typically "access_denied".
type AuthorizationDeniedError struct {
	Reason string
}

func (e *AuthorizationDeniedError) Error() string {
	return "authorization denied: " + e.Reason
}

const page = `<!doctype html><html><head><title>%s</title></head>` +
	`<body style="font-family:sans-serif;text-align:center;margin-top:4em">` +
	`<h2>%s</h2><p>%s</p></body></html>`

type result struct {
	code string
	err  error
}

// Server serves the redirect URI's path until one redirect is received.
type Server struct {
	state    string
	path     string
	listener net.Listener
	http     *http.Server

	once   sync.Once
	result chan result
}

// Listen binds the host:port of redirectURI. Port 0 picks a free port;
// use Addr to learn it.
func Listen(redirectURI, state string) (*Server, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return nil, fmt.Errorf("invalid redirect uri: %w", err)
	}
	if u.Scheme != "http" {
		return nil, fmt.Errorf("local callback requires an http redirect uri, got: %s", u.Scheme)
	}

	ln, err := net.Listen("tcp", u.Host)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", u.Host, err)
	}

	path := u.Path
	if path == "" {
		path = "/"
	}

	s := &Server{
		state:    state,
		path:     path,
		listener: ln,
		result:   make(chan result, 1),
	}
	s.http = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Callback server stopped")
			s.deliver(result{err: err})
		}
	}()

	log.Debug().Str("addr", ln.Addr().String()).Str("path", path).Msg("Callback server listening")
	return s, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Handler returns the gin engine serving the callback path.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET(s.path, s.handle)
	return r
}

func (s *Server) handle(c *gin.Context) {
	if c.Query("state") != s.state {
		// not ours, keep waiting
		log.Warn().Msg("Ignoring callback with mismatched state")
		c.Data(http.StatusBadRequest, "text/html; charset=utf-8",
			fmt.Appendf(nil, page, "Invalid request", "Invalid request", ErrStateMismatch.Error()))
		return
	}

	if reason := c.Query("error"); reason != "" {
		s.deliver(result{err: &AuthorizationDeniedError{Reason: reason}})
		c.Data(http.StatusOK, "text/html; charset=utf-8",
			fmt.Appendf(nil, page, "Authorization failed", "Authorization failed", html.EscapeString(reason)))
		return
	}

	code := c.Query("code")
	if code == "" {
		c.Data(http.StatusBadRequest, "text/html; charset=utf-8",
			fmt.Appendf(nil, page, "Invalid request", "Invalid request", "missing authorization code"))
		return
	}

	s.deliver(result{code: code})
	c.Data(http.StatusOK, "text/html; charset=utf-8",
		fmt.Appendf(nil, page, "Connected", "Connected to Spotify", "You can close this window."))
}

// deliver keeps only the first outcome.
func (s *Server) deliver(r result) {
	s.once.Do(func() {
		s.result <- r
	})
}

// Wait blocks until a redirect arrives or ctx is done, then returns the
// authorization code.
func (s *Server) Wait(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-s.result:
		return r.code, r.err
	}
}

// Close shuts the listener down.
func (s *Server) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return s.http.Shutdown(ctx)
}
