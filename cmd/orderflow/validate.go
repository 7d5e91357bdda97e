package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/aretw0/orderflow/internal/cli"
)

var errInvalid = errors.New("validation failed")

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the stage graph and rules for consistency",
	Long: `Loads the configured stage graph, checks the rule table against it and
reports unreachable stages. With --watch it revalidates a Loam stage
repository on every change.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		watch, _ := cmd.Flags().GetBool("watch")
		out := cmd.OutOrStdout()

		if watch {
			ctx := cli.NewSignalContext(context.Background())
			defer ctx.Cancel()
			return cli.HandleExecutionError(cli.WatchStages(ctx, cfg, out, logger))
		}

		g, err := cli.Validate(cmd.Context(), cfg)
		cli.ReportValidation(out, g, err)
		if err != nil {
			return errInvalid
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().BoolP("watch", "w", false, "Revalidate on every change (needs a Loam stage directory)")
}
