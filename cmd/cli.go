package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/focushub/spotify-cli/config"
)

// rootOptions holds the persistent flag values shared by every command.
type rootOptions struct {
	flags      config.Flags
	maxRetries int
}

// Execute runs the CLI and exits non-zero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := createRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		log.Error().Err(err).Msg("Command execution failed.")
		os.Exit(1)
	}
}

func createRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "focushub",
		Short:         "Connect Focus Hub to Spotify and control study music",
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.flags.Debug {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&opts.flags.ClientID, "client-id", "", "Spotify client ID (or SPOTIFY_CLIENT_ID env)")
	pf.StringVar(&opts.flags.ClientSecret, "client-secret", "", "Spotify client secret (or SPOTIFY_CLIENT_SECRET env)")
	pf.StringVar(&opts.flags.RedirectURI, "redirect-uri", "",
		"OAuth redirect URI (default: "+config.DefaultRedirectURI+" or SPOTIFY_REDIRECT_URI env)")
	pf.StringVar(&opts.flags.Store, "store", "", "Token store: file, sqlite, redis or memory (or TOKEN_STORE env)")
	pf.StringVar(&opts.flags.TokenFile, "token-file", "",
		"Token file for the file store (default: "+config.DefaultTokenFile+" or TOKEN_FILE env)")
	pf.StringVar(&opts.flags.TokenDB, "token-db", "",
		"Database for the sqlite store (default: "+config.DefaultTokenDB+" or TOKEN_DB env)")
	pf.StringVar(&opts.flags.RedisAddr, "redis-addr", "", "Redis address for the redis store (or REDIS_ADDR env)")
	pf.StringVar(&opts.flags.Device, "device", "", "Preferred playback device name or id (or SPOTIFY_DEVICE env)")
	pf.IntVar(&opts.maxRetries, "max-retries", 0, "Retries for transient HTTP failures (or HTTP_MAX_RETRIES env)")
	pf.BoolVar(&opts.flags.Debug, "debug", false, "Enable debug logging (or FOCUSHUB_DEBUG env)")

	rootCmd.AddCommand(
		loginCmd(opts),
		logoutCmd(opts),
		whoamiCmd(opts),
		playlistsCmd(opts),
		tracksCmd(opts),
		playCmd(opts),
		pauseCmd(opts),
		resumeCmd(opts),
		devicesCmd(opts),
	)

	rootCmd.CompletionOptions.HiddenDefaultCmd = true

	return rootCmd
}
