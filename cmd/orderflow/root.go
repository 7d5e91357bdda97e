package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/lpernett/godotenv"
	"github.com/spf13/cobra"

	"github.com/aretw0/orderflow/internal/cli"
	"github.com/aretw0/orderflow/internal/config"
)

var (
	cfg    config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "orderflow",
	Short: "Orderflow is a stage-driven ordering assistant",
	Long: `Orderflow keeps a conversational ordering assistant on a declared stage graph.
It tracks structured questions, validates every stage change and degrades
through a fallback ladder when the generative backend misbehaves.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// A missing .env is the normal case.
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("error loading .env: %w", err)
		}

		path, _ := cmd.Flags().GetString("config")
		loaded, err := config.Load(path)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("log-level") {
			loaded.LogLevel, _ = cmd.Flags().GetString("log-level")
		}
		if cmd.Flags().Changed("stages") {
			loaded.StagesFile, _ = cmd.Flags().GetString("stages")
			loaded.StagesDir = ""
		}
		if cmd.Flags().Changed("dir") {
			loaded.StagesDir, _ = cmd.Flags().GetString("dir")
			loaded.StagesFile = ""
		}
		if err := loaded.Validate(); err != nil {
			return err
		}

		jsonLogs, _ := cmd.Flags().GetBool("log-json")
		l, err := cli.NewLogger(loaded.LogLevel, jsonLogs)
		if err != nil {
			return err
		}
		cfg, logger = loaded, l
		slog.SetDefault(l)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().String("config", os.Getenv(config.EnvPrefix+"CONFIG"), "Path to a YAML or JSON config file")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn or error")
	rootCmd.PersistentFlags().Bool("log-json", false, "Write logs as JSON")
	rootCmd.PersistentFlags().String("stages", "", "YAML stage declaration (overrides stages_file)")
	rootCmd.PersistentFlags().String("dir", "", "Loam stage repository (overrides stages_dir)")
}
