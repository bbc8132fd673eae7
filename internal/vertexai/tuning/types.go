// Copyright 2025 The FinTune Authors
// SPDX-License-Identifier: Apache-2.0

package tuning

import (
	"time"

	"github.com/finai/fintune/lora"
)

// Method represents the fine-tuning method to use.
type Method string

const (
	MethodLoRA  Method = "lora"
	MethodQLoRA Method = "qlora"
)

// JobState represents the state of a tuning job.
type JobState string

const (
	StateQueued    JobState = "QUEUED"
	StateRunning   JobState = "RUNNING"
	StateSucceeded JobState = "SUCCEEDED"
	StateFailed    JobState = "FAILED"
	StateCancelled JobState = "CANCELLED"
)

// Hyperparameters carries the training knobs the pipeline's
// configuration entries expose.
type Hyperparameters struct {
	// LearningRate is the learning rate
	LearningRate float64 `json:"learning_rate,omitempty"`

	// BatchSize is the training batch size
	BatchSize int `json:"batch_size,omitempty"`

	// GradientAccumulation is the number of steps to accumulate gradients
	GradientAccumulation int `json:"gradient_accumulation,omitempty"`

	// Epochs is the number of training epochs
	Epochs int `json:"epochs,omitempty"`
}

// LoRAConfig represents LoRA-specific configuration.
type LoRAConfig struct {
	// Rank is the rank of LoRA adaptation
	Rank int `json:"rank"`

	// Alpha is the LoRA scaling parameter
	Alpha int `json:"alpha"`

	// DropoutRate is the dropout rate for LoRA
	DropoutRate float64 `json:"dropout_rate"`

	// TargetModules are the modules to apply LoRA to
	TargetModules []string `json:"target_modules"`
}

// QuantizationConfig represents quantization configuration for QLoRA.
type QuantizationConfig struct {
	// LoadIn4Bit indicates whether to load the base model in 4-bit
	LoadIn4Bit bool `json:"load_in_4bit"`

	// LoadIn8Bit indicates whether to load the base model in 8-bit
	LoadIn8Bit bool `json:"load_in_8bit"`

	// ComputeDtype is the compute dtype for quantized training
	ComputeDtype string `json:"compute_dtype,omitempty"`

	// QuantType is the quantization type (e.g. "nf4")
	QuantType string `json:"quant_type,omitempty"`
}

// Config represents the complete tuning configuration.
type Config struct {
	// SourceModel is the base model to fine-tune
	SourceModel string `json:"source_model"`

	// Method is the fine-tuning method to use
	Method Method `json:"method"`

	// TrainURI is the training data location (a gs:// URI in production)
	TrainURI string `json:"train_uri"`

	// Hyperparameters configuration
	Hyperparameters *Hyperparameters `json:"hyperparameters,omitempty"`

	// LoRA configuration
	LoRA *LoRAConfig `json:"lora,omitempty"`

	// Quantization configuration, required for QLoRA
	Quantization *QuantizationConfig `json:"quantization,omitempty"`

	// DisplayName for the tuning job
	DisplayName string `json:"display_name,omitempty"`

	// Labels for organization
	Labels map[string]string `json:"labels,omitempty"`
}

// Progress contains training progress for a running job.
type Progress struct {
	// CurrentEpoch is the epoch currently training
	CurrentEpoch int `json:"current_epoch"`

	// TotalEpochs is the number of epochs the job will run
	TotalEpochs int `json:"total_epochs"`

	// TrainingLoss is the most recent training loss
	TrainingLoss float64 `json:"training_loss"`

	// LearningRate is the current learning rate
	LearningRate float64 `json:"learning_rate"`

	// ElapsedTime is the time spent training so far
	ElapsedTime time.Duration `json:"elapsed_time"`

	// LastUpdateTime is when the progress was last updated
	LastUpdateTime time.Time `json:"last_update_time"`
}

// TunedModel represents the result of a completed tuning job.
type TunedModel struct {
	// Name is the model identifier
	Name string `json:"name"`

	// SourceModel is the base model that was fine-tuned
	SourceModel string `json:"source_model"`

	// Method is the fine-tuning method that produced the model
	Method Method `json:"method"`

	// ModelPath is where the tuned adapter lives
	ModelPath string `json:"model_path"`

	// CreateTime is when the model was created
	CreateTime time.Time `json:"create_time"`

	// Metrics holds final evaluation metrics
	Metrics map[string]float64 `json:"metrics,omitempty"`
}

// Job represents a fine-tuning job.
type Job struct {
	// Name is the unique identifier
	Name string `json:"name"`

	// DisplayName is the human-readable name
	DisplayName string `json:"display_name"`

	// State is the current job state
	State JobState `json:"state"`

	// Config is the tuning configuration
	Config *Config `json:"config"`

	// CreateTime is when the job was created
	CreateTime time.Time `json:"create_time"`

	// StartTime is when the job started
	StartTime time.Time `json:"start_time,omitzero"`

	// EndTime is when the job completed
	EndTime time.Time `json:"end_time,omitzero"`

	// UpdateTime is when the job was last updated
	UpdateTime time.Time `json:"update_time"`

	// TunedModel is the resulting model, set once the job succeeds
	TunedModel *TunedModel `json:"tuned_model,omitempty"`

	// Progress contains training progress information
	Progress *Progress `json:"progress,omitempty"`

	// Error contains error information if the job failed
	Error string `json:"error,omitempty"`

	// Labels for organization
	Labels map[string]string `json:"labels,omitempty"`
}

// ListOptions controls ListTuningJobs output.
type ListOptions struct {
	// Filter narrows the result, e.g. "state=RUNNING"
	Filter string `json:"filter,omitempty"`

	// PageSize limits the number of jobs returned
	PageSize int `json:"page_size,omitempty"`
}

// NewLoRAConfig creates a LoRA configuration with the pipeline's
// defaults.
func NewLoRAConfig() *LoRAConfig {
	return &LoRAConfig{
		Rank:        8,
		Alpha:       16,
		DropoutRate: 0.05,
		TargetModules: []string{
			"q_proj", "v_proj",
		},
	}
}

// FromLoRAConfig translates a pipeline configuration entry into a
// managed tuning configuration. Entries quantized to 4 or 8 bits map
// to QLoRA; everything else maps to plain LoRA.
func FromLoRAConfig(cfg *lora.Config) *Config {
	method := MethodLoRA
	var quant *QuantizationConfig
	switch cfg.QuantBits {
	case 4:
		method = MethodQLoRA
		quant = &QuantizationConfig{
			LoadIn4Bit:   true,
			ComputeDtype: "float16",
			QuantType:    "nf4",
		}
	case 8:
		method = MethodQLoRA
		quant = &QuantizationConfig{
			LoadIn8Bit: true,
		}
	}

	loraConfig := NewLoRAConfig()
	if cfg.LoraR > 0 {
		loraConfig.Rank = cfg.LoraR
		loraConfig.Alpha = cfg.LoraR * 2
	}

	return &Config{
		SourceModel: cfg.BaseModel,
		Method:      method,
		TrainURI:    cfg.DatasetPath,
		Hyperparameters: &Hyperparameters{
			LearningRate:         cfg.LearningRate,
			BatchSize:            cfg.BatchSize,
			GradientAccumulation: cfg.GradientAccumulationSteps,
			Epochs:               cfg.NumEpochs,
		},
		LoRA:         loraConfig,
		Quantization: quant,
	}
}
