package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/orderflow/internal/cli"
)

var exportCmd = &cobra.Command{
	Use:   "export <dir>",
	Short: "Write the stage graph as a Loam repository",
	Long: `Writes the configured stage graph (the built-in one by default) into dir,
one markdown document per stage. Edit the documents and point --dir at them.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := cli.ExportStages(cmd.Context(), cfg, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Exported %d stages to %s\n", n, args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
}
