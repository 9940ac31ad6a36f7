package cli

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/roompe/roompe-api/models"
	"github.com/roompe/roompe-api/repositories/postgres"
	"github.com/spf13/cobra"
)

func newAuditCommand(g *globals) *cobra.Command {
	var (
		action    string
		requestID string
		userID    string
		limit     int
		offset    int
	)

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Query the audit trail",
		Long: `Audit lists audit entries selected by exactly one of --action, --request-id
or --user.

Examples:
  roompectl audit --action sign_in_failed --limit 50
  roompectl audit --request-id 7f3a9c1e/AbCdEf-000042
  roompectl audit --user 5b7c1f0e-8f43-4a8e-9a53-1f0d2a6c9e11 -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			set := 0
			for _, v := range []string{action, requestID, userID} {
				if v != "" {
					set++
				}
			}
			if set != 1 {
				return errors.New("exactly one of --action, --request-id or --user is required")
			}
			if limit < 1 || limit > 1000 {
				return fmt.Errorf("--limit must be between 1 and 1000")
			}
			if offset < 0 {
				return fmt.Errorf("--offset must not be negative")
			}

			var uid uuid.UUID
			if userID != "" {
				var err error
				if uid, err = uuid.Parse(userID); err != nil {
					return fmt.Errorf("invalid --user: %w", err)
				}
			}

			return g.withDB(cmd.Context(), func(db *postgres.DB) error {
				repo := postgres.NewAuditRepository(db, g.logger)
				ctx := cmd.Context()

				var (
					logs []*models.AuditLog
					err  error
				)
				switch {
				case action != "":
					logs, err = repo.GetByAction(ctx, models.AuditAction(action), limit, offset)
				case requestID != "":
					logs, err = repo.GetByRequestID(ctx, requestID)
				default:
					logs, err = repo.GetByUserID(ctx, uid, limit, offset)
				}
				if err != nil {
					return err
				}
				if logs == nil {
					logs = []*models.AuditLog{}
				}
				return g.write(cmd, logs)
			})
		},
	}

	cmd.Flags().StringVar(&action, "action", "", "Audit action, e.g. sign_in or profile_fetch_failed")
	cmd.Flags().StringVar(&requestID, "request-id", "", "Request ID stamped on the entries")
	cmd.Flags().StringVar(&userID, "user", "", "User ID")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum entries to return")
	cmd.Flags().IntVar(&offset, "offset", 0, "Entries to skip")
	return cmd
}
