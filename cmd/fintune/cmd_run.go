// Copyright 2025 The FinTune Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"

	"github.com/finai/fintune/model"
	"github.com/finai/fintune/pipeline"
	"github.com/finai/fintune/trainer"
)

var (
	runKey     string
	runModel   string
	runFewShot int
	runTool    string
	runImage   string
)

// runCmd executes the full pipeline.
var runCmd = &cobra.Command{
	Use:   "run [question]...",
	Short: "Run split, config, train, and answer as one pipeline",
	Long: heredoc.Doc(`
		Run executes the full pipeline in order: split the raw dataset,
		merge the configuration entry, invoke the fine-tuning tool, and
		answer the given questions with a hosted model. A missing raw
		dataset skips the split stage and the run continues with the
		partitions already on disk; every other failure aborts the run
		where it happened.

		Questions are optional. Serve the adapter a run produced with:

			fintune ask --adapter lora/output/finai-qa-lora \
				--model mistralai/Mistral-7B-v0.1 "What does EBITDA measure?"
	`),
	Args: cobra.ArbitraryArgs,
	RunE: runPipeline,
}

func init() {
	runCmd.Flags().StringVar(&runKey, "key", pipeline.DefaultConfigKey, "configuration entry name")
	runCmd.Flags().StringVar(&runModel, "model", model.GeminiDefaultModel, "model answering the questions")
	runCmd.Flags().IntVar(&runFewShot, "few-shot", 0, "prepend up to this many worked examples to each prompt")
	runCmd.Flags().StringVar(&runTool, "tool", trainer.DefaultTool, "fine-tuning command")
	runCmd.Flags().StringVar(&runImage, "image", "", "run the tool inside this Docker image")
	rootCmd.AddCommand(runCmd)
}

func runPipeline(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext(cmd)
	defer stop()

	var (
		runner trainer.Runner
		err    error
	)
	if runImage != "" {
		runner, err = trainer.NewContainer(trainer.WithImage(runImage))
		if err != nil {
			return err
		}
	} else {
		runner = trainer.NewLocal(trainer.WithTool(runTool))
	}
	defer runner.Close()

	opts := []pipeline.Option{
		pipeline.WithConfigKey(runKey),
		pipeline.WithRunner(runner),
		pipeline.WithFewShot(runFewShot),
		pipeline.WithLogger(logger),
	}
	if len(args) > 0 {
		gen, err := model.New(ctx, "", runModel)
		if err != nil {
			return err
		}
		defer gen.Close()
		opts = append(opts, pipeline.WithGenerator(gen), pipeline.WithQuestions(args...))
	}

	p, err := pipeline.New(opts...)
	if err != nil {
		return err
	}

	report, err := p.Run(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run %s\n", report.RunID)
	if report.SplitSkipped {
		fmt.Fprintln(out, "split: skipped, raw dataset not found")
	} else {
		fmt.Fprintf(out, "split: %d records (%d well-formed, %d malformed)\n",
			report.Stats.Records, report.Stats.WellFormed, report.Stats.Malformed)
	}
	fmt.Fprintf(out, "config: %s\n", report.ConfigKey)
	fmt.Fprintf(out, "adapter: %s\n", report.AdapterDir)
	for _, answer := range report.Answers {
		fmt.Fprintf(out, "\nQ: %s\nA: %s\n", answer.Question, answer.Text)
	}

	return nil
}
