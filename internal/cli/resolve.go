package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/roompe/roompe-api/navigation"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// ResolveResult is printed by the resolve command.
type ResolveResult struct {
	Session  navigation.Session  `json:"session" yaml:"session"`
	Decision navigation.Decision `json:"decision" yaml:"decision"`
}

func newResolveCommand(g *globals) *cobra.Command {
	var (
		file   string
		policy string
	)

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve a session snapshot to its navigation tree",
		Long: `Resolve reads a session snapshot (YAML or JSON) and prints the tree, root
navigator and reason the API would produce for it.

Example session file:
  authenticated: true
  profile:
    user_id: 5b7c1f0e-8f43-4a8e-9a53-1f0d2a6c9e11
    role: tenant
    email_verified: true
    property_id: 0e1c7c59-2b65-4bd4-8f6e-7d3f1a2b9c40

Examples:
  roompectl resolve --file session.yaml
  roompectl resolve --file - --unknown-role fallback_tenant -o json < session.json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := navigation.ParseUnknownRolePolicy(policy)
			if err != nil {
				return err
			}

			s, err := readSession(cmd, file)
			if err != nil {
				return err
			}

			d := navigation.NewResolver(p).Resolve(s)
			if d.RoleFallback {
				g.logger.Warn("unrecognized role routed to tenant tree")
			}
			return g.write(cmd, ResolveResult{Session: s, Decision: d})
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Session file, or - for stdin")
	cmd.Flags().StringVar(&policy, "unknown-role", string(navigation.UnknownRoleReject), "Unknown role policy (reject or fallback_tenant)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// readSession decodes a snapshot. JSON is accepted since it is valid YAML.
func readSession(cmd *cobra.Command, file string) (navigation.Session, error) {
	var r io.Reader
	if file == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(file)
		if err != nil {
			return navigation.Session{}, fmt.Errorf("failed to open session file: %w", err)
		}
		defer f.Close()
		r = f
	}

	var s navigation.Session
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		if err == io.EOF {
			return navigation.Session{}, fmt.Errorf("session file is empty")
		}
		return navigation.Session{}, fmt.Errorf("failed to parse session: %w", err)
	}
	return s, nil
}
