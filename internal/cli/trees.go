package cli

import (
	"github.com/roompe/roompe-api/navigation"
	"github.com/spf13/cobra"
)

// TreeInfo is one entry of the trees command output.
type TreeInfo struct {
	Tree navigation.Tree `json:"tree" yaml:"tree"`
	Root navigation.Root `json:"root" yaml:"root"`
}

func newTreesCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "trees",
		Short: "Print the navigation tree catalog in decision order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			trees := navigation.Trees()
			out := make([]TreeInfo, 0, len(trees))
			for _, t := range trees {
				out = append(out, TreeInfo{Tree: t, Root: navigation.RootFor(t)})
			}
			return g.write(cmd, out)
		},
	}
}
