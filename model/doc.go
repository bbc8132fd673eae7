// Copyright 2025 The FinTune Authors
// SPDX-License-Identifier: Apache-2.0

// Package model provides text generation backends for answering financial
// questions with base and fine-tuned language models.
//
// The package exposes a single [Generator] interface and three backends:
// Google Gemini (google.golang.org/genai), Anthropic Claude
// (github.com/anthropics/anthropic-sdk-go), and a local [Adapter] backend
// that serves a LoRA-tuned model through the external serving CLI. All
// tokenization, decoding, and sampling internals belong to the backends;
// this package only shapes requests and surfaces responses.
//
// # Model Registry
//
// Hosted backends are resolved from the model identifier using regex
// pattern matching:
//
//	// Gemini models
//	gemini-2.0-flash
//	projects/my-project/locations/us-central1/endpoints/1234567890
//	projects/my-project/locations/us-central1/publishers/google/models/gemini-2.0-flash
//
//	// Claude models
//	claude-3-5-haiku-latest
//	claude-3-5-sonnet-v2@20241022
//
// API keys fall back to the GOOGLE_API_KEY and ANTHROPIC_API_KEY
// environment variables when not passed explicitly.
//
// # Basic Usage
//
// Creating a hosted generator through the registry:
//
//	gen, err := model.New(ctx, "", "gemini-2.0-flash")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer gen.Close()
//
//	resp, err := gen.Generate(ctx, &model.Request{
//		System: "You are a financial analyst.",
//		Prompt: "What does EBITDA measure?",
//	})
//
// # Adapter Serving
//
// A fine-tuned adapter is served locally by shelling out to the serving
// CLI. The adapter directory must exist and contain the adapter config
// file produced by the fine-tuning run:
//
//	gen, err := model.NewAdapter("mistralai/Mistral-7B-v0.1", "lora/output/finai-qa-lora")
//	if err != nil {
//		log.Fatal(err) // *model.LoadError
//	}
//
// # Error Handling
//
// Any failure to construct a generator, an unknown model identifier, a
// missing API key, or a missing adapter directory, is reported as a
// [*LoadError]. Load errors are fatal: callers are not expected to retry.
//
//	gen, err := model.New(ctx, "", name)
//	if err != nil {
//		var loadErr *model.LoadError
//		if errors.As(err, &loadErr) {
//			log.Fatalf("cannot load %s: %v", loadErr.Model, loadErr.Err)
//		}
//	}
//
// # Custom Backends
//
// Additional backends register a pattern and a creator:
//
//	model.RegisterGeneratorType(
//		[]string{`my-model-.*`},
//		func(ctx context.Context, apiKey, modelName string) (model.Generator, error) {
//			return newMyModel(ctx, apiKey, modelName)
//		},
//	)
package model
