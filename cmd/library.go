package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func playlistsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "playlists",
		Short: "List your playlists",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.openAuthenticated(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			playlists, err := s.client.UserPlaylists(cmd.Context())
			if err != nil {
				return err
			}
			if len(playlists) == 0 {
				cmd.Println("No playlists found.")
				return nil
			}

			table := newTable(cmd.OutOrStdout(), []string{"#", "Playlist ID", "Name", "Tracks", "Owner"})
			for i, p := range playlists {
				table.Append([]string{
					strconv.Itoa(i + 1),
					p.ID,
					cleanText(p.Name),
					strconv.Itoa(p.Tracks.Total),
					p.Owner.Name(),
				})
			}
			table.Render()
			return nil
		},
	}
}

func tracksCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tracks <playlist-id>",
		Short: "List the tracks of a playlist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.openAuthenticated(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			tracks, err := s.client.PlaylistTracks(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(tracks) == 0 {
				cmd.Println("Playlist has no tracks.")
				return nil
			}

			table := newTable(cmd.OutOrStdout(), []string{"#", "Track ID", "Title", "Artists", "Length", "Preview"})
			for i, t := range tracks {
				preview := "no"
				if t.PreviewURL != nil {
					preview = "yes"
				}
				table.Append([]string{
					strconv.Itoa(i + 1),
					t.ID,
					cleanText(t.Name),
					cleanText(t.ArtistNames()),
					formatLength(t.Duration()),
					preview,
				})
			}
			table.Render()
			return nil
		},
	}
}

// cleanText removes line breaks that would break table rows.
func cleanText(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "\n", " "))
}

// formatLength formats d as m:ss.
func formatLength(d time.Duration) string {
	d = d.Round(time.Second)
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}
