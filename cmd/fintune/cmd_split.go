// Copyright 2025 The FinTune Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"slices"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"

	"github.com/finai/fintune/dataset"
	"github.com/finai/fintune/pipeline"
)

var (
	splitFraction float64
	splitSeed     int64
)

// splitCmd partitions the raw dataset.
var splitCmd = &cobra.Command{
	Use:   "split",
	Short: "Split the raw dataset into train and test partitions",
	Long: heredoc.Doc(`
		Split shuffles data/finai_raw.jsonl with a fixed seed and cuts the
		result at floor(fraction * n). The same seed always produces the
		same partitions, so reruns are reproducible.

		Records are treated as opaque lines: malformed JSON passes through
		to the partitions and is only reported, never dropped.
	`),
	Args: cobra.NoArgs,
	RunE: runSplit,
}

func init() {
	splitCmd.Flags().Float64Var(&splitFraction, "fraction", dataset.DefaultTrainFraction, "fraction of records assigned to the train partition")
	splitCmd.Flags().Int64Var(&splitSeed, "seed", dataset.DefaultSeed, "shuffle seed")
	rootCmd.AddCommand(splitCmd)
}

func runSplit(cmd *cobra.Command, args []string) error {
	layout := pipeline.DefaultLayout()

	splitter := dataset.New(
		dataset.WithFraction(splitFraction),
		dataset.WithSeed(splitSeed),
		dataset.WithLogger(logger),
	)

	out := cmd.OutOrStdout()

	split, err := splitter.SplitFile(layout.RawPath, layout.TrainPath, layout.TestPath)
	if err != nil {
		// A missing raw dataset is a soft failure: surface it, change nothing.
		var missing *dataset.MissingInputError
		if errors.As(err, &missing) {
			fmt.Fprintln(out, missing.Error())
			return nil
		}
		return err
	}
	fmt.Fprintf(out, "wrote %d train records to %s\n", len(split.Train), layout.TrainPath)
	fmt.Fprintf(out, "wrote %d test records to %s\n", len(split.Test), layout.TestPath)

	if stats := dataset.Stat(slices.Concat(split.Train, split.Test)); stats.Malformed > 0 {
		fmt.Fprintf(out, "note: %d of %d records are malformed\n", stats.Malformed, stats.Records)
	}

	return nil
}
