package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/focushub/spotify-cli/spotify"
)

// connectPlayer attaches a device player to the session's client.
func connectPlayer(ctx context.Context, s *session) (*spotify.DevicePlayer, error) {
	player := spotify.NewDevicePlayer(s.client, s.cfg.Device)
	if err := player.Connect(ctx); err != nil {
		return nil, err
	}
	s.client.AttachPlayer(player)
	return player, nil
}

// playbackUnavailable reports whether err means remote playback cannot
// happen for this account or device, as opposed to a broken session.
func playbackUnavailable(err error) bool {
	if errors.Is(err, spotify.ErrNoDevice) {
		return true
	}
	switch spotify.StatusCode(err) {
	case http.StatusForbidden, http.StatusNotFound:
		return true
	}
	return false
}

func playCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "play <track-id>",
		Short: "Play a track on your Spotify device",
		Long: "Starts the track on the preferred or active Spotify Connect device. " +
			"When playback is not possible the track's preview link is printed instead.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.openAuthenticated(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx := cmd.Context()
			trackID := args[0]

			player, err := connectPlayer(ctx, s)
			if err == nil {
				err = s.client.PlayTrack(ctx, trackID)
			}
			if err == nil {
				device, _ := player.Device()
				cmd.Printf("Playing %s on %s\n", trackID, device.Name)
				return nil
			}
			if !playbackUnavailable(err) {
				return err
			}

			log.Debug().Err(err).Str("track", trackID).Msg("Playback unavailable, looking up preview")
			return printPreview(cmd, s, trackID, err)
		},
	}
}

func printPreview(cmd *cobra.Command, s *session, trackID string, cause error) error {
	track, err := s.client.Track(cmd.Context(), trackID)
	if err != nil {
		return fmt.Errorf("playback failed: %w", cause)
	}
	if track.PreviewURL == nil {
		return fmt.Errorf("playback failed and %q has no preview: %w", track.Name, cause)
	}

	cmd.PrintErrf("Playback unavailable: %v\n", cause)
	fmt.Fprintf(cmd.OutOrStdout(), "Preview for %s - %s:\n%s\n", track.Name, track.ArtistNames(), *track.PreviewURL)
	return nil
}

func pauseCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "pause",
		Short: "Pause playback",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPlayer(cmd, opts, func(ctx context.Context, s *session) error {
				return s.client.PausePlayback(ctx)
			}, "Paused.")
		},
	}
}

func resumeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Resume playback",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPlayer(cmd, opts, func(ctx context.Context, s *session) error {
				return s.client.ResumePlayback(ctx)
			}, "Resumed.")
		},
	}
}

func withPlayer(cmd *cobra.Command, opts *rootOptions, fn func(context.Context, *session) error, done string) error {
	s, err := opts.openAuthenticated(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	if _, err := connectPlayer(cmd.Context(), s); err != nil {
		return err
	}
	if err := fn(cmd.Context(), s); err != nil {
		return err
	}
	cmd.Println(done)
	return nil
}

func devicesCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List Spotify Connect devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.openAuthenticated(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			devices, err := s.client.Devices(cmd.Context())
			if err != nil {
				return err
			}
			if len(devices) == 0 {
				cmd.Println("No devices found. Open Spotify on the device you want to use first.")
				return nil
			}

			table := newTable(cmd.OutOrStdout(), []string{"Device ID", "Name", "Type", "Active", "Volume"})
			for _, d := range devices {
				active := ""
				if d.IsActive {
					active = "*"
				}
				table.Append([]string{d.ID, d.Name, d.Type, active, strconv.Itoa(d.VolumePercent) + "%"})
			}
			table.Render()
			return nil
		},
	}
}
