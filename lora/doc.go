// Copyright 2025 The FinTune Authors
// SPDX-License-Identifier: Apache-2.0

// Package lora manages the named LoRA fine-tuning configurations consumed by the
// external fine-tuning tool.
//
// Configurations live in a single JSON file: an object at the root mapping a
// configuration name to a record with exactly eight hyperparameter fields
// (base_model, dataset_path, lora_r, quant_bits, learning_rate, num_epochs,
// batch_size, gradient_accumulation_steps). The package reads the whole mapping
// into memory, merges one entry, and rewrites the file in full.
//
// # Key Ordering
//
// [File] preserves insertion order. Merging a new name appends it after the
// existing entries; merging an existing name updates the value in place without
// moving the key. Serialization walks the entries in that order, so the on-disk
// layout stays stable and diff-friendly across merges.
//
// # Structural Merging
//
// The merger is purely structural. Field values are never range-checked: a
// negative epoch count or an absurd learning rate round-trips untouched, because
// interpreting hyperparameters is the fine-tuning tool's job, not ours.
//
// # Basic Usage
//
//	cfg := lora.DefaultConfig()
//	cfg.DatasetPath = "data/train/finai_train.jsonl"
//
//	if err := lora.Merge("lora/finetune_configs.json", "finai-qa-lora", cfg); err != nil {
//		var malformed *lora.MalformedConfigError
//		if errors.As(err, &malformed) {
//			log.Fatalf("config file is broken: %v", malformed)
//		}
//		log.Fatal(err)
//	}
//
// # Error Handling
//
// Anything that prevents parsing the file as a JSON object of configuration
// records (an array root, a scalar root, truncated JSON, trailing garbage, or a
// missing file) surfaces as [*MalformedConfigError] wrapping the cause. These
// are fatal; the pipeline never edits around a broken mapping. [LoadOrInit]
// treats only a missing file as an empty mapping so a first run can bootstrap.
//
// # Write Discipline
//
// [File.Save] pretty-prints with two-space indentation and replaces the target
// atomically via a temp file in the same directory. No backup is kept; the only
// safety property is that a torn write cannot corrupt an existing file.
package lora
