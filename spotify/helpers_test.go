package spotify_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/focushub/spotify-cli/kv"
	"github.com/focushub/spotify-cli/spotify"
)

const (
	testClientID     = "test-client-id"
	testClientSecret = "test-client-secret"
	testRedirectURI  = "http://127.0.0.1:8888/callback"
)

// fakeProvider serves both the token endpoint (/api/token) and the Web
// API (/v1/...) and counts the calls each receives.
type fakeProvider struct {
	server *httptest.Server

	tokenCalls atomic.Int32
	apiCalls   atomic.Int32

	mu        sync.Mutex
	tokenFunc func(w http.ResponseWriter, form url.Values)
	apiFunc   func(w http.ResponseWriter, r *http.Request)
	lastForm  url.Values
	lastAuth  string
	requests  []*http.Request
	bodies    []string
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()
	p := &fakeProvider{}
	p.server = httptest.NewServer(http.HandlerFunc(p.serve))
	t.Cleanup(p.server.Close)
	return p
}

func (p *fakeProvider) serve(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/api/token":
		p.tokenCalls.Add(1)
		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		p.mu.Lock()
		p.lastForm = r.PostForm
		p.lastAuth = r.Header.Get("Authorization")
		fn := p.tokenFunc
		p.mu.Unlock()
		if fn == nil {
			http.Error(w, "no token handler", http.StatusInternalServerError)
			return
		}
		fn(w, r.PostForm)

	case strings.HasPrefix(r.URL.Path, "/v1/"):
		p.apiCalls.Add(1)
		body, _ := io.ReadAll(r.Body)
		p.mu.Lock()
		p.requests = append(p.requests, r.Clone(r.Context()))
		p.bodies = append(p.bodies, string(body))
		fn := p.apiFunc
		p.mu.Unlock()
		if fn == nil {
			http.NotFound(w, r)
			return
		}
		fn(w, r)

	default:
		http.NotFound(w, r)
	}
}

func (p *fakeProvider) onToken(fn func(w http.ResponseWriter, form url.Values)) {
	p.mu.Lock()
	p.tokenFunc = fn
	p.mu.Unlock()
}

func (p *fakeProvider) onAPI(fn func(w http.ResponseWriter, r *http.Request)) {
	p.mu.Lock()
	p.apiFunc = fn
	p.mu.Unlock()
}

func (p *fakeProvider) config() spotify.Config {
	return spotify.Config{
		ClientID:     testClientID,
		ClientSecret: testClientSecret,
		RedirectURI:  testRedirectURI,
		AuthURL:      p.server.URL + "/authorize",
		TokenURL:     p.server.URL + "/api/token",
		APIBaseURL:   p.server.URL + "/v1",
	}
}

// newClient returns a client whose store already holds access (and
// refresh, if non-empty).
func (p *fakeProvider) newClient(t *testing.T, access, refresh string) (*spotify.Client, *kv.MemoryStore) {
	t.Helper()
	store := kv.NewMemoryStore()
	if access != "" {
		require.NoError(t, store.Set(spotify.AccessTokenKey, access))
	}
	if refresh != "" {
		require.NoError(t, store.Set(spotify.RefreshTokenKey, refresh))
	}
	c, err := spotify.New(p.config(), store)
	require.NoError(t, err)
	return c, store
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func tokenJSON(access, refresh string) map[string]any {
	resp := map[string]any{
		"access_token": access,
		"token_type":   "Bearer",
		"expires_in":   3600,
	}
	if refresh != "" {
		resp["refresh_token"] = refresh
	}
	return resp
}

// bearer returns the bearer token of r.
func bearer(r *http.Request) string {
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}
