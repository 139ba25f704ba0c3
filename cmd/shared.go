package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/focushub/spotify-cli/config"
	"github.com/focushub/spotify-cli/kv"
	"github.com/focushub/spotify-cli/spotify"
)

var errNotLoggedIn = errors.New("not logged in, run `focushub login` first")

// session is the resolved configuration plus a client bound to its store.
type session struct {
	cfg    *config.Config
	store  kv.Store
	client *spotify.Client
}

func (o *rootOptions) open(cmd *cobra.Command) (*session, error) {
	f := o.flags
	if cmd.Flags().Changed("max-retries") {
		n := o.maxRetries
		f.MaxRetries = &n
	}

	cfg, err := config.Load(f)
	if err != nil {
		return nil, err
	}
	for _, w := range cfg.Warnings() {
		cmd.PrintErrln("WARNING: " + w)
	}

	store, err := cfg.OpenStore()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s token store: %w", cfg.Store, err)
	}
	s := &session{cfg: cfg, store: store}

	hc, err := spotify.NewHTTPClient(cfg.MaxRetries, log.Logger)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to create http client: %w", err)
	}

	s.client, err = spotify.New(cfg.Spotify(), store,
		spotify.WithDoer(hc),
		spotify.WithLogger(log.Logger),
	)
	if err != nil {
		s.Close()
		return nil, err
	}

	log.Debug().
		Str("store", cfg.Store).
		Str("location", storeLocation(cfg)).
		Bool("authenticated", s.client.IsAuthenticated()).
		Msg("Session opened")
	return s, nil
}

// openAuthenticated opens a session and fails unless tokens are held.
func (o *rootOptions) openAuthenticated(cmd *cobra.Command) (*session, error) {
	s, err := o.open(cmd)
	if err != nil {
		return nil, err
	}
	if !s.client.IsAuthenticated() {
		s.Close()
		return nil, errNotLoggedIn
	}
	return s, nil
}

func (s *session) Close() {
	if c, ok := s.store.(io.Closer); ok {
		if err := c.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close token store")
		}
	}
}

// storeLocation describes where tokens are persisted.
func storeLocation(cfg *config.Config) string {
	switch cfg.Store {
	case config.StoreFile:
		return cfg.TokenFile
	case config.StoreSQLite:
		return cfg.SQLitePath
	case config.StoreRedis:
		return "redis://" + cfg.RedisAddr
	default:
		return "memory"
	}
}

// isTTY reports whether stderr is an interactive terminal.
func isTTY() bool {
	return term.IsTerminal(int(os.Stderr.Fd()))
}

// newTable returns a left-aligned table without wrapping.
func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoWrapText(false)
	table.SetRowLine(false)
	return table
}
