// Copyright 2025 The FinTune Authors
// SPDX-License-Identifier: Apache-2.0

// Package dataset provides deterministic train/test splitting for line-delimited QA datasets.
//
// The package reads a raw JSONL dataset, shuffles it with a fixed seed, partitions it
// into train and test sets at a fixed fraction, and writes each partition back to disk.
// Records are treated as opaque strings: the splitter never parses, validates, or trims
// a line, so any line content survives the split verbatim.
//
// # Determinism
//
// The shuffle uses math/rand with an explicit seed (default 42), so two runs over the
// same input in the same order produce the same partitions. The cut point is
// floor(fraction * n) with a default fraction of 0.8, which fixes both partition sizes
// for every input length, including the degenerate cases n=0 (both partitions empty)
// and n=1 (train empty, test holds the single record).
//
// # Basic Usage
//
//	splitter := dataset.New()
//	split, err := splitter.SplitFile(
//		"data/finai_raw.jsonl",
//		"data/train/finai_train.jsonl",
//		"data/test/finai_test.jsonl",
//	)
//	if err != nil {
//		var missing *dataset.MissingInputError
//		if errors.As(err, &missing) {
//			// Raw data absent: report and carry on, nothing was written.
//			log.Println(missing.Error())
//			return
//		}
//		log.Fatal(err)
//	}
//	fmt.Printf("train=%d test=%d\n", len(split.Train), len(split.Test))
//
// # Error Handling
//
// A missing input file surfaces as [*MissingInputError] so callers can treat it as a
// soft failure; no output files are created in that case. Every other I/O error is
// wrapped and propagated as fatal.
//
// # Output Discipline
//
// Parent directories of the output paths are created when absent. Each partition file
// is written through an atomic write-to-temp-then-rename, so a crash mid-write never
// leaves a torn partition on disk.
//
// # Validation Statistics
//
// [Stat] offers an informational pass over the records, counting lines that parse as
// well-formed context/target examples versus malformed ones. It never gates the split;
// the split path stays schema-free.
package dataset
