package spotify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// Page sizes for listings.
const (
	playlistPageSize = 50
	trackPageSize    = 100
)

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	raw, err := c.Request(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	if raw == nil {
		return fmt.Errorf("empty response from %s", endpoint)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", endpoint, err)
	}
	return nil
}

// CurrentUser returns the profile of the authenticated user.
func (c *Client) CurrentUser(ctx context.Context) (*User, error) {
	var u User
	if err := c.getJSON(ctx, "/me", &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// UserPlaylists returns every playlist owned or followed by the user.
func (c *Client) UserPlaylists(ctx context.Context) ([]Playlist, error) {
	return collectPages[Playlist](ctx, c, "/me/playlists", playlistPageSize)
}

// PlaylistTracks returns the tracks of a playlist. Entries without a
// track (removed or unavailable items) are skipped.
func (c *Client) PlaylistTracks(ctx context.Context, playlistID string) ([]Track, error) {
	if playlistID == "" {
		return nil, fmt.Errorf("playlist id is empty")
	}

	items, err := collectPages[playlistItem](
		ctx, c, "/playlists/"+url.PathEscape(playlistID)+"/tracks", trackPageSize,
	)
	if err != nil {
		return nil, err
	}

	tracks := make([]Track, 0, len(items))
	for _, item := range items {
		if item.Track != nil {
			tracks = append(tracks, *item.Track)
		}
	}
	return tracks, nil
}

// Track returns a single track by id.
func (c *Client) Track(ctx context.Context, trackID string) (*Track, error) {
	if trackID == "" {
		return nil, fmt.Errorf("track id is empty")
	}

	var t Track
	if err := c.getJSON(ctx, "/tracks/"+url.PathEscape(trackID), &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// Devices lists the user's Spotify Connect devices.
func (c *Client) Devices(ctx context.Context) ([]Device, error) {
	var resp struct {
		Devices []Device `json:"devices"`
	}
	if err := c.getJSON(ctx, "/me/player/devices", &resp); err != nil {
		return nil, err
	}
	return resp.Devices, nil
}

// collectPages walks an offset-paged listing until the provider reports
// no further page.
func collectPages[T any](ctx context.Context, c *Client, endpoint string, limit int) ([]T, error) {
	var all []T
	offset := 0
	for {
		var page Page[T]
		pageURL := fmt.Sprintf("%s?limit=%d&offset=%d", endpoint, limit, offset)
		if err := c.getJSON(ctx, pageURL, &page); err != nil {
			return nil, err
		}

		all = append(all, page.Items...)
		offset += len(page.Items)

		if page.Next == "" || len(page.Items) == 0 || offset >= page.Total {
			return all, nil
		}
	}
}

// AttachPlayer injects the playback capability used by PlayTrack,
// PausePlayback and ResumePlayback. The client never constructs one.
func (c *Client) AttachPlayer(p Player) {
	c.mu.Lock()
	c.player = p
	c.mu.Unlock()
}

func (c *Client) currentPlayer() Player {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.player
}

// PlayTrack starts playback of a single track on the attached player.
func (c *Client) PlayTrack(ctx context.Context, trackID string) error {
	p := c.currentPlayer()
	if p == nil {
		return ErrPlayerNotConnected
	}
	return p.Play(ctx, []string{TrackURI(trackID)})
}

// PausePlayback pauses the attached player. Without one it does nothing.
func (c *Client) PausePlayback(ctx context.Context) error {
	if p := c.currentPlayer(); p != nil {
		return p.Pause(ctx)
	}
	return nil
}

// ResumePlayback resumes the attached player. Without one it does nothing.
func (c *Client) ResumePlayback(ctx context.Context) error {
	if p := c.currentPlayer(); p != nil {
		return p.Resume(ctx)
	}
	return nil
}
