// Copyright 2025 The FinTune Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

// Layout fixes where the pipeline reads and writes its files, relative to
// the working directory.
//
// The paths are a convention shared with the external fine-tuning tool and
// are not configurable in production runs; tests relocate the layout under
// a temporary root.
type Layout struct {
	// RawPath is the raw QA dataset, one JSON record per line.
	RawPath string

	// TrainPath and TestPath are the split partitions.
	TrainPath string
	TestPath  string

	// ConfigPath is the fine-tuning configuration mapping file.
	ConfigPath string
}

// DefaultLayout returns the canonical repository layout.
func DefaultLayout() Layout {
	return Layout{
		RawPath:    "data/finai_raw.jsonl",
		TrainPath:  "data/train/finai_train.jsonl",
		TestPath:   "data/test/finai_test.jsonl",
		ConfigPath: "lora/finetune_configs.json",
	}
}
