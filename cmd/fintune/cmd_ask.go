// Copyright 2025 The FinTune Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"

	"github.com/finai/fintune/dataset"
	"github.com/finai/fintune/model"
	"github.com/finai/fintune/pipeline"
	"github.com/finai/fintune/prompt"
)

var (
	askModel       string
	askAdapter     string
	askSystem      string
	askFewShot     int
	askMaxTokens   int32
	askTemperature float32
)

// askCmd answers questions with a generator.
var askCmd = &cobra.Command{
	Use:   "ask [question]...",
	Short: "Answer questions with a hosted model or a trained adapter",
	Long: heredoc.Doc(`
		Ask builds a financial QA prompt for each question and prints the
		model's answer. --model picks a hosted backend by name (gemini-*,
		claude-*, or a Vertex endpoint resource name); API keys come from
		GOOGLE_API_KEY and ANTHROPIC_API_KEY.

		--adapter serves a trained LoRA adapter through the fine-tuning
		tool instead, with --model naming the base model the adapter was
		trained on:

			fintune ask --adapter lora/output/finai-qa-lora \
				--model mistralai/Mistral-7B-v0.1 "What does EBITDA measure?"

		--few-shot prepends worked examples from the train partition to
		each prompt.
	`),
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askModel, "model", model.GeminiDefaultModel, "model name, or the base model with --adapter")
	askCmd.Flags().StringVar(&askAdapter, "adapter", "", "serve the LoRA adapter in this directory")
	askCmd.Flags().StringVar(&askSystem, "system", "", "override the standing system instruction")
	askCmd.Flags().IntVar(&askFewShot, "few-shot", 0, "prepend up to this many worked examples to each prompt")
	askCmd.Flags().Int32Var(&askMaxTokens, "max-tokens", 0, "cap the answer length (0 means the backend's default)")
	askCmd.Flags().Float32Var(&askTemperature, "temperature", 0, "sampling temperature")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext(cmd)
	defer stop()

	gen, err := newGenerator(ctx)
	if err != nil {
		return err
	}
	defer gen.Close()

	examples := fewShotExamples(askFewShot)

	out := cmd.OutOrStdout()
	for i, question := range args {
		builder := prompt.NewBuilder().FewShot(examples...).Question(question)
		if askSystem != "" {
			builder.System(askSystem)
		}
		system, user := builder.Build()

		req := &model.Request{
			System:          system,
			Prompt:          user,
			MaxOutputTokens: askMaxTokens,
		}
		if cmd.Flags().Changed("temperature") {
			req.Temperature = &askTemperature
		}

		resp, err := gen.Generate(ctx, req)
		if err != nil {
			return fmt.Errorf("answer %q: %w", question, err)
		}

		if i > 0 {
			fmt.Fprintln(out)
		}
		fmt.Fprintf(out, "Q: %s\nA: %s\n", question, resp.Text)
	}

	return nil
}

// newGenerator resolves the generator the ask flags imply: an adapter
// served through the fine-tuning tool, or a registry backend by name.
func newGenerator(ctx context.Context) (model.Generator, error) {
	if askAdapter != "" {
		return model.NewAdapter(askModel, askAdapter)
	}
	return model.New(ctx, "", askModel)
}

// fewShotExamples loads up to n worked examples from the train partition.
// A missing or unreadable partition degrades to zero examples.
func fewShotExamples(n int) []dataset.Example {
	if n <= 0 {
		return nil
	}

	trainPath := pipeline.DefaultLayout().TrainPath
	lines, err := dataset.ReadLines(trainPath)
	if err != nil {
		logger.Warn("No train partition for few-shot examples", slog.String("path", trainPath))
		return nil
	}

	examples := dataset.Examples(lines)
	if len(examples) > n {
		examples = examples[:n]
	}

	return examples
}
