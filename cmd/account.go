package cmd

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func logoutCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored Spotify tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.client.Logout(); err != nil {
				log.Error().Err(err).Msg("Failed to remove stored tokens")
				return err
			}
			cmd.Println("Logged out.")
			return nil
		},
	}
}

func whoamiCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the connected Spotify account",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.openAuthenticated(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			user, err := s.client.CurrentUser(cmd.Context())
			if err != nil {
				return err
			}

			table := newTable(cmd.OutOrStdout(), []string{"Field", "Value"})
			table.Append([]string{"Name", user.Name()})
			table.Append([]string{"ID", user.ID})
			if user.Email != "" {
				table.Append([]string{"Email", user.Email})
			}
			if user.Country != "" {
				table.Append([]string{"Country", user.Country})
			}
			if user.Product != "" {
				table.Append([]string{"Plan", user.Product})
			}
			table.Render()
			return nil
		},
	}
}
