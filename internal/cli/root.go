// Package cli implements roompectl, the operator tool for the RoomPe API:
// offline navigation resolution, schema migration and audit lookups.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/roompe/roompe-api/config"
	"github.com/roompe/roompe-api/internal/observability"
	"github.com/roompe/roompe-api/repositories/postgres"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Output formats for --output.
const (
	OutputYAML = "yaml"
	OutputJSON = "json"
)

// DBOpener opens the database for commands that need one.
type DBOpener func(ctx context.Context, logger *zap.Logger) (*postgres.DB, error)

// Env carries the process-level collaborators of the commands.
type Env struct {
	Out    io.Writer
	OpenDB DBOpener
}

// OpenConfiguredDB loads the API configuration from the environment and
// connects to its database.
func OpenConfiguredDB(ctx context.Context, logger *zap.Logger) (*postgres.DB, error) {
	cfg, err := config.New(ctx)
	if err != nil {
		return nil, err
	}
	return postgres.NewDB(cfg.Database, logger)
}

type globals struct {
	env       Env
	logLevel  string
	logFormat string
	output    string
	logger    *zap.Logger
}

// NewRootCommand builds the roompectl command tree.
func NewRootCommand(env Env) *cobra.Command {
	if env.OpenDB == nil {
		env.OpenDB = OpenConfiguredDB
	}
	g := &globals{env: env, logger: zap.NewNop()}

	root := &cobra.Command{
		Use:   "roompectl",
		Short: "Operator tool for the RoomPe API",
		Long: `roompectl inspects and maintains a RoomPe API deployment.

It resolves session snapshots to navigation trees without a running server,
prints the tree catalog, applies the database schema and reads the audit trail.
Database commands read the same environment (DATABASE_URL or DB_*) as the API.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := observability.NewLogger(g.logLevel, g.logFormat)
			if err != nil {
				return err
			}
			g.logger = logger
			switch g.output {
			case OutputYAML, OutputJSON:
				return nil
			default:
				return fmt.Errorf("unsupported output %q: want yaml or json", g.output)
			}
		},
	}
	if env.Out != nil {
		root.SetOut(env.Out)
	}

	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&g.logFormat, "log-format", observability.FormatConsole, "Log format (json or console)")
	root.PersistentFlags().StringVarP(&g.output, "output", "o", OutputYAML, "Output format (yaml or json)")

	root.AddCommand(
		newResolveCommand(g),
		newTreesCommand(g),
		newMigrateCommand(g),
		newAuditCommand(g),
		newProfileCommand(g),
	)
	return root
}

// write renders v to the command's output in the selected format. YAML is
// produced from the JSON encoding so both formats share field names.
func (g *globals) write(cmd *cobra.Command, v interface{}) error {
	out := cmd.OutOrStdout()
	if g.output == OutputJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return err
	}
	blockStyle(&doc)

	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return err
	}
	return enc.Close()
}

// blockStyle drops the flow and quoting styles a JSON document parses with.
func blockStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		blockStyle(c)
	}
}

// withDB opens the database, runs fn and closes it.
func (g *globals) withDB(ctx context.Context, fn func(db *postgres.DB) error) error {
	db, err := g.env.OpenDB(ctx, g.logger)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			g.logger.Warn("failed to close database", zap.Error(err))
		}
	}()
	return fn(db)
}
