// Copyright 2025 The FinTune Authors
// SPDX-License-Identifier: Apache-2.0

// Command fintune drives the financial QA fine-tuning pipeline: dataset
// splitting, configuration management, fine-tuning runs, and question
// answering against hosted models or trained adapters.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"

	"github.com/finai/fintune/pkg/logging"
)

var (
	// Global flags.
	verbose bool

	// logger is built in the root PersistentPreRun and shared by every
	// subcommand.
	logger *slog.Logger
)

// rootCmd represents the base command.
var rootCmd = &cobra.Command{
	Use:   "fintune",
	Short: "LoRA fine-tuning pipeline for financial QA",
	Long: heredoc.Doc(`
		fintune prepares a financial QA dataset, maintains the fine-tuning
		configuration file, invokes the external LoRA fine-tuning tool, and
		answers questions with hosted models or trained adapters.

		Every command works against a fixed layout relative to the working
		directory:

			data/finai_raw.jsonl           raw dataset, one JSON record per line
			data/train/finai_train.jsonl   train partition, written by split
			data/test/finai_test.jsonl     test partition, written by split
			lora/finetune_configs.json     fine-tuning configuration mapping
	`),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		// Logs go to stderr as JSON; stdout stays free for command output.
		logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		}))
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "fintune:", err)
		os.Exit(1)
	}
}

// signalContext returns the command context carrying the CLI logger,
// cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := logging.NewContext(cmd.Context(), logger)
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}
