package main

import (
	"context"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/aretw0/orderflow"
	"github.com/aretw0/orderflow/internal/cli"
	"github.com/aretw0/orderflow/internal/presentation/tui"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the assistant in the terminal",
	Long: `Starts an interactive conversation on the configured stage graph.
Answer questions by number or in words. Type /help for the REPL commands.
With --json every input line is an utterance and every output line a turn result.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionID, _ := cmd.Flags().GetString("session")
		jsonMode, _ := cmd.Flags().GetBool("json")
		if sessionID == "" {
			sessionID = uuid.NewString()
		}

		ctx := cli.NewSignalContext(context.Background())
		defer ctx.Cancel()

		rt, err := cli.BuildEngine(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer rt.Close()

		opts := cli.ChatOptions{
			SessionID: sessionID,
			In:        os.Stdin,
			Out:       os.Stdout,
			JSON:      jsonMode,
			Names: func(id string) (string, bool) {
				it, ok := rt.Catalog.Item(id)
				return it.Name, ok
			},
		}
		if !jsonMode {
			opts.Render = tui.NewRenderer(os.Stdout)
			tui.PrintBanner(os.Stdout, orderflow.Version)
		}

		err = cli.Chat(ctx, rt.Engine, opts)
		if sig := ctx.Signal(); sig != nil {
			logger.Debug("chat interrupted", "signal", sig)
		}
		return cli.HandleExecutionError(err)
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().String("session", "", "Session id to use (random when empty)")
	chatCmd.Flags().Bool("json", false, "Run in JSON mode (NDJSON input/output)")

	// Chat is the default when no command is provided.
	rootCmd.RunE = chatCmd.RunE
	rootCmd.Flags().AddFlagSet(chatCmd.Flags())
}
