// Copyright 2025 The FinTune Authors
// SPDX-License-Identifier: Apache-2.0

// Package trainer invokes the external LoRA fine-tuning tool.
//
// The fine-tuning framework itself (optimizer, quantization, adapter
// merging) is an opaque collaborator: this package hands it a named
// configuration and consumes only an exit status and, on success, the
// directory holding the trained adapter artifact.
//
// # External Tool Contract
//
// The tool is a command-line program invoked with exactly one positional
// argument, the configuration key:
//
//	finetune-cli finai-qa-lora
//
// The tool resolves the named entry from the configuration mapping file
// itself. The mapping file path and the training partition path are
// additionally exported in the FINTUNE_CONFIG_PATH and
// FINTUNE_DATASET_PATH environment variables for tools that support
// overriding their defaults. Exit code 0 means success; any other exit
// code is a *ProcessFailure and is fatal to the caller. There is no
// retry and no partial-failure recovery.
//
// # Runners
//
// Three Runner implementations share the contract:
//
//   - Local runs the tool as a child process on the host.
//   - Container runs the tool inside a Docker container with the
//     workspace bind-mounted, for toolchains that ship as images.
//   - Vertex submits a managed tuning job instead of shelling out.
//
// # Progress Events
//
// Fine-tuning tools commonly stream per-step progress as JSON lines on
// stdout:
//
//	{"current_steps": 10, "total_steps": 165, "loss": 1.9072, "epoch": 0.18}
//
// Lines that parse as such records become [Event] values on the Result
// and are logged as they arrive; all other output passes through to
// debug logging. Runners pull their logger from the context via
// pkg/logging.
//
// # Usage
//
//	runner := trainer.NewLocal(trainer.WithOutputRoot("lora/output"))
//	defer runner.Close()
//
//	result, err := runner.Run(ctx, &trainer.Job{
//		ConfigKey:   "finai-qa-lora",
//		ConfigPath:  "lora/finetune_configs.json",
//		DatasetPath: "data/train/finai_train.jsonl",
//	})
//	if err != nil {
//		var failure *trainer.ProcessFailure
//		if errors.As(err, &failure) {
//			log.Fatalf("fine-tuning failed with exit code %d", failure.ExitCode)
//		}
//		log.Fatal(err)
//	}
//	fmt.Println("adapter written to", result.AdapterDir)
package trainer
