// Copyright 2025 The FinTune Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"

	"github.com/finai/fintune/lora"
	"github.com/finai/fintune/pipeline"
)

var cfgKey string

// configCmd maintains the fine-tuning configuration mapping file.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Merge the run's fine-tuning configuration into the mapping file",
	Long: heredoc.Doc(`
		Config inserts or overwrites one named entry in
		lora/finetune_configs.json, pointing its dataset_path at the train
		partition. Entries under other names keep their content and their
		position in the file; merging the same entry twice is idempotent.

		A missing mapping file is created. A file that is not a JSON object
		of configuration records is never rewritten; the command fails
		instead.
	`),
	Args: cobra.NoArgs,
	RunE: runConfig,
}

func init() {
	configCmd.Flags().StringVar(&cfgKey, "key", pipeline.DefaultConfigKey, "configuration entry name")
	rootCmd.AddCommand(configCmd)
}

func runConfig(cmd *cobra.Command, args []string) error {
	layout := pipeline.DefaultLayout()

	file, err := lora.LoadOrInit(layout.ConfigPath)
	if err != nil {
		return err
	}

	cfg := lora.DefaultConfig()
	cfg.DatasetPath = layout.TrainPath
	file.Set(cfgKey, cfg)

	if err := file.Save(layout.ConfigPath); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "merged %q into %s (%d entries)\n", cfgKey, layout.ConfigPath, file.Len())

	return nil
}
