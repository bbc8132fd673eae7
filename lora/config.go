// Copyright 2025 The FinTune Authors
// SPDX-License-Identifier: Apache-2.0

package lora

import (
	"fmt"
)

// Config is one named fine-tuning configuration record.
//
// The field set and JSON names are fixed by the external fine-tuning tool's
// config schema; values are passed through without validation.
type Config struct {
	// BaseModel is the pretrained model identifier the adapter is trained on.
	BaseModel string `json:"base_model"`

	// DatasetPath points at the training partition, JSONL.
	DatasetPath string `json:"dataset_path"`

	// LoraR is the LoRA rank (dimension of the low-rank update matrices).
	LoraR int `json:"lora_r"`

	// QuantBits is the quantization bit-width used to load the base model.
	QuantBits int `json:"quant_bits"`

	// LearningRate is the optimizer learning rate.
	LearningRate float64 `json:"learning_rate"`

	// NumEpochs is the number of passes over the training data.
	NumEpochs int `json:"num_epochs"`

	// BatchSize is the per-device micro-batch size.
	BatchSize int `json:"batch_size"`

	// GradientAccumulationSteps multiplies the effective batch size.
	GradientAccumulationSteps int `json:"gradient_accumulation_steps"`
}

// DefaultConfig returns the canonical financial-QA preset: a 4-bit quantized
// Mistral-7B base with rank-8 adapters.
func DefaultConfig() *Config {
	return &Config{
		BaseModel:                 "mistralai/Mistral-7B-v0.1",
		DatasetPath:               "data/train/finai_train.jsonl",
		LoraR:                     8,
		QuantBits:                 4,
		LearningRate:              2e-4,
		NumEpochs:                 3,
		BatchSize:                 4,
		GradientAccumulationSteps: 4,
	}
}

// MalformedConfigError reports a configuration file whose content could not be
// parsed as a JSON object of configuration records.
type MalformedConfigError struct {
	// Path is the configuration file path.
	Path string

	// Err is the underlying parse or I/O failure.
	Err error
}

// Error returns a string representation of the [MalformedConfigError].
func (e *MalformedConfigError) Error() string {
	return fmt.Sprintf("malformed config file %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying cause.
func (e *MalformedConfigError) Unwrap() error {
	return e.Err
}
