package cli

import (
	"fmt"

	"github.com/roompe/roompe-api/repositories/postgres"
	"github.com/spf13/cobra"
)

func newMigrateCommand(g *globals) *cobra.Command {
	var printOnly bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		Long: `Migrate creates the users, profiles, email_verifications and audit_logs
tables and their indexes. Every statement is idempotent, so it is safe to run
against an existing database.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if printOnly {
				_, err := fmt.Fprint(cmd.OutOrStdout(), postgres.Schema)
				return err
			}
			return g.withDB(cmd.Context(), func(db *postgres.DB) error {
				if err := db.InitSchema(cmd.Context()); err != nil {
					return err
				}
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "schema applied")
				return err
			})
		},
	}

	cmd.Flags().BoolVar(&printOnly, "print", false, "Print the schema instead of applying it")
	return cmd
}
