package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"sync"
	"time"

	tea "charm.land/bubbletea/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/focushub/spotify-cli/callback"
	"github.com/focushub/spotify-cli/kv"
	"github.com/focushub/spotify-cli/spotify"
	"github.com/focushub/spotify-cli/tui"
)

const defaultLoginTimeout = 5 * time.Minute

// pendingStateKey holds the state issued by --no-browser-wait until the
// matching --code arrives.
const pendingStateKey = "spotify_pending_state"

type loginOptions struct {
	code      string
	state     string
	printOnly bool
	force     bool
	timeout   time.Duration
}

func loginCmd(opts *rootOptions) *cobra.Command {
	var lo loginOptions

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Connect your Spotify account",
		Long: "Opens the Spotify authorization flow and waits for the redirect on the local " +
			"redirect URI. Use --no-browser-wait to only print the link, then --code with the " +
			"full redirect URL (or the code plus --state) to finish.",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			if lo.printOnly {
				state := uuid.NewString()
				authURL, err := s.client.AuthorizationURL(state)
				if err != nil {
					return err
				}
				if err := s.store.Set(pendingStateKey, state); err != nil {
					return fmt.Errorf("failed to save login state: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), authURL)
				cmd.PrintErrln("After approving, run: focushub login --code '<redirect URL>'")
				return nil
			}

			return withDisplayer(cmd, func(d tui.Displayer) error {
				return runLogin(cmd.Context(), s, d, lo)
			})
		},
	}

	cmd.Flags().StringVar(&lo.code, "code", "", "Exchange this authorization code (or redirect URL) instead of waiting for the redirect")
	cmd.Flags().StringVar(&lo.state, "state", "", "State from the redirect, when --code is a bare code")
	cmd.Flags().BoolVar(&lo.printOnly, "no-browser-wait", false, "Print the authorization link and exit")
	cmd.Flags().BoolVar(&lo.force, "force", false, "Log in again even if tokens are stored")
	cmd.Flags().DurationVar(&lo.timeout, "timeout", defaultLoginTimeout, "How long to wait for the redirect")

	return cmd
}

// withDisplayer runs fn with a TUI on interactive terminals and plain
// text otherwise.
func withDisplayer(cmd *cobra.Command, fn func(d tui.Displayer) error) error {
	if !isTTY() {
		d := tui.NewPlainDisplayer(cmd.ErrOrStderr())
		d.Banner()
		return fn(d)
	}

	// Run TUI program on stderr so stdout pipes are not corrupted.
	// WithInput(nil) skips terminal capability queries; Ctrl+C is handled
	// by the signal context.
	p := tea.NewProgram(tui.NewModel(), tea.WithOutput(os.Stderr), tea.WithInput(nil))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := p.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		}
	}()

	d := tui.NewProgramDisplayer(p)
	d.Banner()
	err := fn(d)
	p.Quit()
	wg.Wait()
	return err
}

func runLogin(ctx context.Context, s *session, d tui.Displayer, lo loginOptions) error {
	if s.client.IsAuthenticated() && !lo.force && lo.code == "" {
		d.AlreadyAuthenticated()
		d.FetchingProfile()
		user, err := s.client.CurrentUser(ctx)
		if err == nil {
			d.ProfileOK(user.Name())
			d.Done(user.Name(), expiresIn(s.client))
			return nil
		}
		d.ProfileFailed(err)
		if !reauthRequired(err) {
			d.Fatal(err)
			return err
		}
		log.Debug().Err(err).Msg("Stored tokens unusable, starting a new login")
	}

	var code string
	var err error
	if lo.code != "" {
		code, err = manualCode(s.store, lo.code, lo.state)
	} else {
		code, err = waitForCode(ctx, s, d, lo.timeout)
	}
	if err != nil {
		d.Fatal(err)
		return err
	}
	d.CodeReceived()

	d.Exchanging()
	if _, err := s.client.ExchangeCode(ctx, code); err != nil {
		d.ExchangeFailed(err)
		d.Fatal(err)
		return err
	}
	d.ExchangeOK(storeLocation(s.cfg))

	d.FetchingProfile()
	user, err := s.client.CurrentUser(ctx)
	if err != nil {
		d.ProfileFailed(err)
		d.Fatal(err)
		return err
	}
	d.ProfileOK(user.Name())
	d.Done(user.Name(), expiresIn(s.client))
	return nil
}

// waitForCode serves the redirect URI until the provider redirects back
// or the timeout passes.
func waitForCode(ctx context.Context, s *session, d tui.Displayer, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = defaultLoginTimeout
	}

	state := uuid.NewString()
	authURL, err := s.client.AuthorizationURL(state)
	if err != nil {
		return "", err
	}

	srv, err := callback.Listen(s.cfg.RedirectURI, state)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := srv.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to stop callback server")
		}
	}()

	deadline := time.Now().Add(timeout)
	d.AuthorizeURLReady(authURL, s.cfg.RedirectURI, deadline)
	d.WaitingForCallback()

	waitCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	code, err := srv.Wait(waitCtx)
	if errors.Is(err, context.DeadlineExceeded) {
		return "", fmt.Errorf("timed out waiting for authorization after %s", timeout)
	}
	return code, err
}

// manualCode resolves a --code value, either a bare code or the pasted
// redirect URL. When --no-browser-wait left a pending state, the state
// carried by the redirect (or --state) must match it and is consumed on
// success.
func manualCode(store kv.Store, input, state string) (string, error) {
	code := input
	if u, err := url.Parse(input); err == nil {
		q := u.Query()
		if reason := q.Get("error"); reason != "" {
			return "", &callback.AuthorizationDeniedError{Reason: reason}
		}
		if q.Has("code") {
			code = q.Get("code")
			if state == "" {
				state = q.Get("state")
			}
		}
	}
	if code == "" {
		return "", errors.New("authorization code is empty")
	}

	pending, err := store.Get(pendingStateKey)
	switch {
	case errors.Is(err, kv.ErrNotFound):
		return code, nil
	case err != nil:
		return "", fmt.Errorf("failed to read login state: %w", err)
	}

	if state != pending {
		return "", callback.ErrStateMismatch
	}
	if err := store.Delete(pendingStateKey); err != nil {
		log.Warn().Err(err).Msg("Failed to clear login state")
	}
	return code, nil
}

// reauthRequired reports whether err means the stored session can no
// longer be used.
func reauthRequired(err error) bool {
	var exchangeErr *spotify.AuthExchangeError
	return errors.As(err, &exchangeErr) ||
		errors.Is(err, spotify.ErrNoRefreshToken) ||
		errors.Is(err, spotify.ErrNotAuthenticated) ||
		spotify.StatusCode(err) == 401
}

func expiresIn(c *spotify.Client) time.Duration {
	exp := c.Expiry()
	if exp.IsZero() {
		return 0
	}
	return time.Until(exp)
}
