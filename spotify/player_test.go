package spotify_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/focushub/spotify-cli/spotify"
)

type fakePlayer struct {
	connected    bool
	disconnected int
	played       [][]string
	paused       int
	resumed      int
}

func (f *fakePlayer) Connect(context.Context) error { f.connected = true; return nil }
func (f *fakePlayer) Disconnect()                   { f.disconnected++; f.connected = false }
func (f *fakePlayer) Pause(context.Context) error   { f.paused++; return nil }
func (f *fakePlayer) Resume(context.Context) error  { f.resumed++; return nil }

func (f *fakePlayer) Play(_ context.Context, uris []string) error {
	f.played = append(f.played, uris)
	return nil
}

func TestPlayTrack_RequiresPlayer(t *testing.T) {
	p := newFakeProvider(t)
	c, _ := p.newClient(t, "T1", "R1")

	err := c.PlayTrack(context.Background(), "abc")

	assert.ErrorIs(t, err, spotify.ErrPlayerNotConnected)
	assert.NoError(t, c.PausePlayback(context.Background()), "pause without a player is a no-op")
	assert.NoError(t, c.ResumePlayback(context.Background()), "resume without a player is a no-op")
	assert.EqualValues(t, 0, p.apiCalls.Load())
}

func TestPlayTrack_UsesInjectedPlayer(t *testing.T) {
	p := newFakeProvider(t)
	c, _ := p.newClient(t, "T1", "R1")
	player := &fakePlayer{}
	c.AttachPlayer(player)

	require.NoError(t, c.PlayTrack(context.Background(), "abc"))
	require.NoError(t, c.PausePlayback(context.Background()))
	require.NoError(t, c.ResumePlayback(context.Background()))

	assert.Equal(t, [][]string{{"spotify:track:abc"}}, player.played)
	assert.Equal(t, 1, player.paused)
	assert.Equal(t, 1, player.resumed)
}

func TestLogout_DisconnectsPlayer(t *testing.T) {
	p := newFakeProvider(t)
	c, _ := p.newClient(t, "T1", "R1")
	player := &fakePlayer{}
	c.AttachPlayer(player)

	require.NoError(t, c.Logout())

	assert.Equal(t, 1, player.disconnected)
	assert.ErrorIs(t, c.PlayTrack(context.Background(), "abc"), spotify.ErrPlayerNotConnected)
}

func devicesHandler(devices []map[string]any, commands *[]*http.Request) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/me/player/devices" {
			writeJSON(w, http.StatusOK, map[string]any{"devices": devices})
			return
		}
		*commands = append(*commands, r)
		w.WriteHeader(http.StatusNoContent)
	}
}

func TestDevicePlayer_ConnectAndControl(t *testing.T) {
	p := newFakeProvider(t)
	var commands []*http.Request
	p.onAPI(devicesHandler([]map[string]any{
		{"id": "d1", "name": "Phone", "is_active": false},
		{"id": "d2", "name": "Laptop", "is_active": true},
	}, &commands))
	c, _ := p.newClient(t, "T1", "R1")

	player := spotify.NewDevicePlayer(c, "")
	require.NoError(t, player.Connect(context.Background()))
	c.AttachPlayer(player)

	d, ok := player.Device()
	require.True(t, ok)
	assert.Equal(t, "d2", d.ID, "the active device is preferred")

	require.NoError(t, c.PlayTrack(context.Background(), "abc"))
	require.NoError(t, c.PausePlayback(context.Background()))
	require.NoError(t, c.ResumePlayback(context.Background()))

	require.Len(t, commands, 3)
	assert.Equal(t, http.MethodPut, commands[0].Method)
	assert.Equal(t, "/v1/me/player/play", commands[0].URL.Path)
	assert.Equal(t, "d2", commands[0].URL.Query().Get("device_id"))
	assert.JSONEq(t, `{"uris":["spotify:track:abc"]}`, p.bodies[1])
	assert.Equal(t, "/v1/me/player/pause", commands[1].URL.Path)
	assert.Equal(t, "/v1/me/player/play", commands[2].URL.Path)
	assert.Empty(t, p.bodies[3], "resume sends no body")
}

func TestDevicePlayer_PreferredDevice(t *testing.T) {
	p := newFakeProvider(t)
	var commands []*http.Request
	p.onAPI(devicesHandler([]map[string]any{
		{"id": "d1", "name": "Phone", "is_active": true},
		{"id": "d2", "name": "Laptop"},
	}, &commands))
	c, _ := p.newClient(t, "T1", "R1")

	player := spotify.NewDevicePlayer(c, "Laptop")
	require.NoError(t, player.Connect(context.Background()))

	d, _ := player.Device()
	assert.Equal(t, "d2", d.ID)
}

func TestDevicePlayer_NoDevice(t *testing.T) {
	p := newFakeProvider(t)
	var commands []*http.Request
	p.onAPI(devicesHandler([]map[string]any{
		{"id": "d1", "name": "Speaker", "is_restricted": true},
	}, &commands))
	c, _ := p.newClient(t, "T1", "R1")

	player := spotify.NewDevicePlayer(c, "")
	assert.ErrorIs(t, player.Connect(context.Background()), spotify.ErrNoDevice)
	assert.ErrorIs(t, player.Pause(context.Background()), spotify.ErrPlayerNotConnected)
}

func TestDevicePlayer_Disconnect(t *testing.T) {
	p := newFakeProvider(t)
	var commands []*http.Request
	p.onAPI(devicesHandler([]map[string]any{{"id": "d1", "name": "Phone"}}, &commands))
	c, _ := p.newClient(t, "T1", "R1")

	player := spotify.NewDevicePlayer(c, "")
	require.NoError(t, player.Connect(context.Background()))
	player.Disconnect()

	_, ok := player.Device()
	assert.False(t, ok)
	assert.ErrorIs(t, player.Resume(context.Background()), spotify.ErrPlayerNotConnected)
	assert.Empty(t, commands)
}
