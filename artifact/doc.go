// Copyright 2025 The FinTune Authors
// SPDX-License-Identifier: Apache-2.0

// Package artifact provides versioned storage for pipeline outputs.
//
// The artifact package implements the [Store] interface with multiple
// storage backends for the files a fine-tuning run produces and consumes:
// split datasets, configuration snapshots, and trained adapter weights.
// Artifacts are keyed by the configuration key that produced them.
//
// # Supported Backends
//
// The package provides two storage implementations:
//
//   - Local: filesystem tree for single-machine runs and tests
//   - GCS: Google Cloud Storage backend, used by the managed tuning path
//     to stage datasets where Vertex AI can read them
//
// # Artifact Organization
//
// Artifacts are organized hierarchically:
//
//	{configKey}/{filename}/{version}
//
// The config key scopes every artifact to the fine-tuning configuration
// that produced it, so repeated runs under different keys never collide.
//
// # Versioning
//
// All artifacts support automatic versioning:
//   - Each save operation creates a new version
//   - Versions are identified by incremental integers
//   - Load with a negative version resolves the latest one
//   - Version history can be retrieved for any artifact
//
// # Basic Usage
//
// Creating a store:
//
//	// Filesystem store for local runs
//	store, err := artifact.NewLocal("artifacts")
//
//	// Google Cloud Storage for the managed tuning path
//	store, err := artifact.NewGCS(ctx, "fintune-artifacts")
//
// Saving and loading:
//
//	version, err := store.Save(ctx, "finai-qa-lora", "finai_train.jsonl", data, "application/jsonl")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	art, err := store.Load(ctx, "finai-qa-lora", "finai_train.jsonl", -1) // latest
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(len(art.Data), art.MIMEType)
package artifact
