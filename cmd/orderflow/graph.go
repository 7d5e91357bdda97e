package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/orderflow/internal/cli"
	"github.com/aretw0/orderflow/internal/presentation/graph"
)

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Export the stage graph visualization",
	Long: `Loads the configured stage graph and outputs a Mermaid diagram (graph TD).
Declared edges are solid; keyword rules that can move the conversation are dotted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := cli.BuildEngine(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer rt.Close()

		fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(rt.Engine.Graph(), rt.Engine.Rules().Rules(), nil))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
}
