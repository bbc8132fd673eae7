// Copyright 2025 The FinTune Authors
// SPDX-License-Identifier: Apache-2.0

// Package tuning provides a managed fine-tuning backend on Vertex AI.
//
// It is the hosted alternative to shelling out to a local fine-tuning
// tool: the pipeline's configuration entry is translated into a managed
// tuning job, the job is tracked through its lifecycle, and the tuned
// adapter is addressed by a storage path instead of a local directory.
//
// # Supported Methods
//
// The pipeline trains LoRA adapters, so only two methods exist here:
//   - LoRA: parameter-efficient tuning of rank-decomposition matrices
//   - QLoRA: LoRA over a 4-bit or 8-bit quantized base model
//
// A configuration entry with quant_bits 4 or 8 maps to QLoRA; anything
// else maps to plain LoRA. See [FromLoRAConfig].
//
// # Job Lifecycle
//
// Jobs move through QUEUED → RUNNING → one of SUCCEEDED, FAILED or
// CANCELLED. Progress (current epoch, training loss, learning rate) is
// tracked per job and observable while the job runs.
//
// # Usage
//
//	service, err := tuning.NewService(ctx, "my-project", "us-central1")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer service.Close()
//
//	config := tuning.FromLoRAConfig(lora.DefaultConfig())
//	config.TrainURI = "gs://my-bucket/finai_train.jsonl"
//
//	job, err := service.CreateTuningJob(ctx, "finai-qa-lora", config)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	if err := service.WaitForCompletion(ctx, job.Name, 2*time.Hour); err != nil {
//		log.Fatal(err)
//	}
//
//	model, err := service.GetTunedModel(ctx, job.Name)
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println("tuned model at", model.ModelPath)
//
// # Authentication
//
// The service uses Application Default Credentials with the
// cloud-platform scope.
package tuning
