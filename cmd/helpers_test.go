package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/focushub/spotify-cli/kv"
	"github.com/focushub/spotify-cli/spotify"
)

const testClientID = "cli-test-client"

// fakeSpotify accepts the code "good" and the refresh token "R1"; the
// access tokens it issued are the only ones the API accepts.
type fakeSpotify struct {
	server *httptest.Server

	mu         sync.Mutex
	accepted   map[string]bool
	tokenCalls int
	playStatus int
	devices    []map[string]any
	commands   []string
}

func newFakeSpotify(t *testing.T) *fakeSpotify {
	t.Helper()
	f := &fakeSpotify{
		accepted:   map[string]bool{},
		playStatus: http.StatusNoContent,
		devices:    []map[string]any{{"id": "d1", "name": "Laptop", "type": "Computer", "is_active": true, "volume_percent": 70}},
	}
	f.server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeSpotify) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.URL.Path == "/api/token" {
		f.tokenCalls++
		_ = r.ParseForm()
		switch {
		case r.PostForm.Get("grant_type") == "authorization_code" && r.PostForm.Get("code") == "good":
			f.accepted["T1"] = true
			writeJSON(w, http.StatusOK, map[string]any{
				"access_token": "T1", "refresh_token": "R1", "token_type": "Bearer", "expires_in": 3600,
			})
		case r.PostForm.Get("grant_type") == "refresh_token" && r.PostForm.Get("refresh_token") == "R1":
			f.accepted["T2"] = true
			writeJSON(w, http.StatusOK, map[string]any{
				"access_token": "T2", "token_type": "Bearer", "expires_in": 3600,
			})
		default:
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error": "invalid_grant", "error_description": "Invalid authorization code",
			})
		}
		return
	}

	if !f.accepted[strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")] {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": map[string]any{"status": 401}})
		return
	}

	switch {
	case r.URL.Path == "/v1/me":
		writeJSON(w, http.StatusOK, map[string]any{"id": "ada", "display_name": "Ada", "email": "ada@example.com"})
	case r.URL.Path == "/v1/me/playlists":
		writeJSON(w, http.StatusOK, map[string]any{
			"items": []map[string]any{{
				"id": "pl1", "name": "Deep Focus", "owner": map[string]any{"id": "spotify"},
				"tracks": map[string]any{"total": 2},
			}},
			"total": 1,
		})
	case r.URL.Path == "/v1/playlists/pl1/tracks":
		writeJSON(w, http.StatusOK, map[string]any{
			"items": []map[string]any{
				{"track": map[string]any{
					"id": "t1", "name": "Weightless", "duration_ms": 485000,
					"artists": []map[string]any{{"name": "Marconi Union"}}, "preview_url": "https://p.scdn.co/t1",
				}},
				{"track": map[string]any{"id": "t2", "name": "Intro", "duration_ms": 61000}},
			},
			"total": 2,
		})
	case r.URL.Path == "/v1/tracks/t1":
		writeJSON(w, http.StatusOK, map[string]any{
			"id": "t1", "name": "Weightless", "artists": []map[string]any{{"name": "Marconi Union"}},
			"preview_url": "https://p.scdn.co/t1",
		})
	case r.URL.Path == "/v1/tracks/t2":
		writeJSON(w, http.StatusOK, map[string]any{"id": "t2", "name": "Intro", "preview_url": nil})
	case r.URL.Path == "/v1/me/player/devices":
		writeJSON(w, http.StatusOK, map[string]any{"devices": f.devices})
	case strings.HasPrefix(r.URL.Path, "/v1/me/player/"):
		f.commands = append(f.commands, r.Method+" "+r.URL.Path+"?"+r.URL.RawQuery)
		if r.URL.Path == "/v1/me/player/play" {
			w.WriteHeader(f.playStatus)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.NotFound(w, r)
	}
}

// configure mutates the fake under its lock.
func (f *fakeSpotify) configure(fn func(f *fakeSpotify)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeSpotify) accept(token string) {
	f.configure(func(f *fakeSpotify) { f.accepted[token] = true })
}

func (f *fakeSpotify) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.commands...)
}

func (f *fakeSpotify) tokens() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tokenCalls
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// setupEnv points the CLI at f with a file store in a temp dir and
// returns that store.
func setupEnv(t *testing.T, f *fakeSpotify) *kv.FileStore {
	t.Helper()
	tokenFile := filepath.Join(t.TempDir(), "tokens.json")

	for k, v := range map[string]string{
		"SPOTIFY_CLIENT_ID":     testClientID,
		"SPOTIFY_CLIENT_SECRET": "cli-test-secret",
		"SPOTIFY_REDIRECT_URI":  "http://127.0.0.1:8888/callback",
		"SPOTIFY_AUTH_URL":      f.server.URL + "/authorize",
		"SPOTIFY_TOKEN_URL":     f.server.URL + "/api/token",
		"SPOTIFY_API_BASE_URL":  f.server.URL + "/v1",
		"SPOTIFY_DEVICE":        "",
		"TOKEN_STORE":           "file",
		"TOKEN_FILE":            tokenFile,
		"HTTP_MAX_RETRIES":      "",
		"FOCUSHUB_DEBUG":        "",
	} {
		t.Setenv(k, v)
	}
	return kv.NewFileStore(tokenFile, testClientID)
}

func seedTokens(t *testing.T, store kv.Store, access, refresh string) {
	t.Helper()
	require.NoError(t, store.Set(spotify.AccessTokenKey, access))
	require.NoError(t, store.Set(spotify.RefreshTokenKey, refresh))
}

// runCLI executes the root command with args and captures its output.
func runCLI(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	root := createRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err = root.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

// freeRedirectURI returns a loopback redirect URI on an unused port.
func freeRedirectURI(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return "http://127.0.0.1:" + strconv.Itoa(port) + "/callback"
}
