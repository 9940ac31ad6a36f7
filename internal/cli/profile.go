package cli

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/roompe/roompe-api/repositories/postgres"
	"github.com/roompe/roompe-api/services/audit"
	"github.com/roompe/roompe-api/services/profile"
	"github.com/spf13/cobra"
)

func newProfileCommand(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Inspect and repair user profiles",
	}
	cmd.AddCommand(newProfileShowCommand(g), newProfileVerifyCommand(g))
	return cmd
}

func newProfileShowCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "show <user-id>",
		Short: "Print a user's profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid user id: %w", err)
			}
			return g.withDB(cmd.Context(), func(db *postgres.DB) error {
				p, err := profileService(g, db).Get(cmd.Context(), userID)
				if err != nil {
					return err
				}
				return g.write(cmd, p)
			})
		},
	}
}

func newProfileVerifyCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <user-id>",
		Short: "Mark a user's email as verified",
		Long: `Verify marks the email of a user as verified without a token, for support
cases where the verification mail never arrived. Signed-in clients pick the
change up on their next profile fetch.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid user id: %w", err)
			}
			return g.withDB(cmd.Context(), func(db *postgres.DB) error {
				if err := profileService(g, db).MarkEmailVerified(cmd.Context(), userID); err != nil {
					return err
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "email verified for %s\n", userID)
				return err
			})
		},
	}
}

// profileService builds an uncached profile service. Each command is a single
// read or write, so the cache and async audit pipeline are left out.
func profileService(g *globals, db *postgres.DB) *profile.Service {
	return profile.NewService(postgres.NewProfileRepository(db, g.logger), nil, audit.Nop{}, g.logger)
}
