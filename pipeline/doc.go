// Copyright 2025 The FinTune Authors
// SPDX-License-Identifier: Apache-2.0

// Package pipeline orchestrates the fine-tuning run end to end.
//
// A run is four stages executed strictly in order, sharing one uuid run ID
// in their log attributes:
//
//  1. Split the raw dataset into train and test partitions.
//  2. Merge the run's configuration into the mapping file.
//  3. Train by handing the configuration key to a [trainer.Runner].
//  4. Answer the configured questions with a [model.Generator], one
//     question at a time.
//
// # Soft and Fatal Failures
//
// A missing raw dataset is the one soft failure: the split stage logs the
// condition, the Report marks it skipped, and the run continues with the
// partitions already on disk. Everything else is fatal where it happens:
// a malformed configuration file, a non-zero exit of the fine-tuning tool
// (*trainer.ProcessFailure, never retried), and any generation error.
//
// # Usage
//
//	p, err := pipeline.New(
//		pipeline.WithRunner(trainer.NewLocal()),
//		pipeline.WithGenerator(gen),
//		pipeline.WithQuestions("What does EBITDA measure?"),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	report, err := p.Run(ctx)
//	if err != nil {
//		log.Fatal(err)
//	}
//	for _, answer := range report.Answers {
//		fmt.Printf("%s\n%s\n", answer.Question, answer.Text)
//	}
package pipeline
