// Copyright 2025 The FinTune Authors
// SPDX-License-Identifier: Apache-2.0

package tuning

import (
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/finai/fintune/lora"
)

// newTestService builds a service with in-memory job tracking and
// short intervals. No credentials are needed for job lifecycle tests.
func newTestService() *Service {
	return &Service{
		projectID:     "test-project",
		location:      "us-central1",
		logger:        slog.New(slog.DiscardHandler),
		jobs:          make(map[string]*Job),
		epochDuration: time.Millisecond,
		pollInterval:  2 * time.Millisecond,
	}
}

func TestFromLoRAConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*lora.Config)
		wantQuant *QuantizationConfig
		wantRank  int
		wantAlpha int
	}{
		{
			name:      "4-bit maps to QLoRA nf4",
			mutate:    func(cfg *lora.Config) {},
			wantQuant: &QuantizationConfig{LoadIn4Bit: true, ComputeDtype: "float16", QuantType: "nf4"},
			wantRank:  8,
			wantAlpha: 16,
		},
		{
			name:      "8-bit maps to QLoRA int8",
			mutate:    func(cfg *lora.Config) { cfg.QuantBits = 8 },
			wantQuant: &QuantizationConfig{LoadIn8Bit: true},
			wantRank:  8,
			wantAlpha: 16,
		},
		{
			name:      "full precision maps to plain LoRA",
			mutate:    func(cfg *lora.Config) { cfg.QuantBits = 16 },
			wantQuant: nil,
			wantRank:  8,
			wantAlpha: 16,
		},
		{
			name:      "rank follows lora_r",
			mutate:    func(cfg *lora.Config) { cfg.LoraR = 32 },
			wantQuant: &QuantizationConfig{LoadIn4Bit: true, ComputeDtype: "float16", QuantType: "nf4"},
			wantRank:  32,
			wantAlpha: 64,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := lora.DefaultConfig()
			tt.mutate(cfg)

			got := FromLoRAConfig(cfg)

			wantMethod := MethodQLoRA
			if tt.wantQuant == nil {
				wantMethod = MethodLoRA
			}
			if got.Method != wantMethod {
				t.Errorf("FromLoRAConfig() method = %q, want %q", got.Method, wantMethod)
			}
			if diff := cmp.Diff(tt.wantQuant, got.Quantization); diff != "" {
				t.Errorf("FromLoRAConfig() quantization mismatch (-want +got):\n%s", diff)
			}
			if got.LoRA.Rank != tt.wantRank || got.LoRA.Alpha != tt.wantAlpha {
				t.Errorf("FromLoRAConfig() rank/alpha = %d/%d, want %d/%d",
					got.LoRA.Rank, got.LoRA.Alpha, tt.wantRank, tt.wantAlpha)
			}

			if got.SourceModel != cfg.BaseModel {
				t.Errorf("FromLoRAConfig() source model = %q, want %q", got.SourceModel, cfg.BaseModel)
			}
			if got.TrainURI != cfg.DatasetPath {
				t.Errorf("FromLoRAConfig() train URI = %q, want %q", got.TrainURI, cfg.DatasetPath)
			}

			wantHP := &Hyperparameters{
				LearningRate:         cfg.LearningRate,
				BatchSize:            cfg.BatchSize,
				GradientAccumulation: cfg.GradientAccumulationSteps,
				Epochs:               cfg.NumEpochs,
			}
			if diff := cmp.Diff(wantHP, got.Hyperparameters); diff != "" {
				t.Errorf("FromLoRAConfig() hyperparameters mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestService_CreateTuningJob(t *testing.T) {
	service := newTestService()

	job, err := service.CreateTuningJob(t.Context(), "finai-qa-lora", FromLoRAConfig(lora.DefaultConfig()))
	if err != nil {
		t.Fatalf("CreateTuningJob() error = %v", err)
	}

	if job.Name != "finai-qa-lora" {
		t.Errorf("CreateTuningJob() name = %q, want %q", job.Name, "finai-qa-lora")
	}
	if job.DisplayName != "finai-qa-lora" {
		t.Errorf("CreateTuningJob() display name = %q, want fallback to name", job.DisplayName)
	}
	if job.State != StateQueued && job.State != StateRunning {
		t.Errorf("CreateTuningJob() state = %q, want QUEUED or RUNNING", job.State)
	}
	if job.Progress == nil || job.Progress.TotalEpochs != 3 {
		t.Errorf("CreateTuningJob() progress = %+v, want total epochs 3", job.Progress)
	}

	// A second job under the same name is rejected.
	if _, err := service.CreateTuningJob(t.Context(), "finai-qa-lora", FromLoRAConfig(lora.DefaultConfig())); err == nil {
		t.Error("CreateTuningJob() expected error for duplicate name")
	}

	// An empty name gets a generated one.
	generated, err := service.CreateTuningJob(t.Context(), "", FromLoRAConfig(lora.DefaultConfig()))
	if err != nil {
		t.Fatalf("CreateTuningJob() error = %v", err)
	}
	if !strings.HasPrefix(generated.Name, "tuning-") {
		t.Errorf("CreateTuningJob() generated name = %q, want tuning- prefix", generated.Name)
	}
}

func TestService_CreateTuningJob_Validation(t *testing.T) {
	valid := func() *Config { return FromLoRAConfig(lora.DefaultConfig()) }

	tests := []struct {
		name   string
		config *Config
	}{
		{
			name:   "nil config",
			config: nil,
		},
		{
			name: "missing source model",
			config: func() *Config {
				cfg := valid()
				cfg.SourceModel = ""
				return cfg
			}(),
		},
		{
			name: "missing train URI",
			config: func() *Config {
				cfg := valid()
				cfg.TrainURI = ""
				return cfg
			}(),
		},
		{
			name: "missing hyperparameters",
			config: func() *Config {
				cfg := valid()
				cfg.Hyperparameters = nil
				return cfg
			}(),
		},
		{
			name: "missing LoRA config",
			config: func() *Config {
				cfg := valid()
				cfg.LoRA = nil
				return cfg
			}(),
		},
		{
			name: "QLoRA without quantization",
			config: func() *Config {
				cfg := valid()
				cfg.Quantization = nil
				return cfg
			}(),
		},
		{
			name: "unsupported method",
			config: func() *Config {
				cfg := valid()
				cfg.Method = "full_fine_tuning"
				return cfg
			}(),
		},
		{
			name: "non-positive rank",
			config: func() *Config {
				cfg := valid()
				cfg.LoRA.Rank = 0
				return cfg
			}(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := newTestService()
			if _, err := service.CreateTuningJob(t.Context(), "job", tt.config); err == nil {
				t.Error("CreateTuningJob() expected validation error")
			}
		})
	}
}

func TestService_GetTuningJob_Copy(t *testing.T) {
	service := newTestService()

	if _, err := service.CreateTuningJob(t.Context(), "copy-test", FromLoRAConfig(lora.DefaultConfig())); err != nil {
		t.Fatalf("CreateTuningJob() error = %v", err)
	}

	got, err := service.GetTuningJob(t.Context(), "copy-test")
	if err != nil {
		t.Fatalf("GetTuningJob() error = %v", err)
	}

	// Mutating the returned job must not reach the tracked one.
	got.Config.SourceModel = "mutated"
	got.Progress.CurrentEpoch = 99

	again, err := service.GetTuningJob(t.Context(), "copy-test")
	if err != nil {
		t.Fatalf("GetTuningJob() error = %v", err)
	}
	if again.Config.SourceModel == "mutated" {
		t.Error("GetTuningJob() returned a shared config")
	}
	if again.Progress.CurrentEpoch == 99 {
		t.Error("GetTuningJob() returned shared progress")
	}

	if _, err := service.GetTuningJob(t.Context(), "absent"); err == nil {
		t.Error("GetTuningJob() expected error for unknown job")
	}
}

func TestService_WaitForCompletion(t *testing.T) {
	service := newTestService()

	job, err := service.CreateTuningJob(t.Context(), "wait-test", FromLoRAConfig(lora.DefaultConfig()))
	if err != nil {
		t.Fatalf("CreateTuningJob() error = %v", err)
	}

	if err := service.WaitForCompletion(t.Context(), job.Name, 5*time.Second); err != nil {
		t.Fatalf("WaitForCompletion() error = %v", err)
	}

	done, err := service.GetTuningJob(t.Context(), job.Name)
	if err != nil {
		t.Fatalf("GetTuningJob() error = %v", err)
	}
	if done.State != StateSucceeded {
		t.Errorf("job state = %q, want SUCCEEDED", done.State)
	}
	if done.Progress.CurrentEpoch != 3 {
		t.Errorf("job progress epoch = %d, want 3", done.Progress.CurrentEpoch)
	}

	model, err := service.GetTunedModel(t.Context(), job.Name)
	if err != nil {
		t.Fatalf("GetTunedModel() error = %v", err)
	}
	if want := "gs://test-project-fintune-models/wait-test"; model.ModelPath != want {
		t.Errorf("tuned model path = %q, want %q", model.ModelPath, want)
	}
	if model.Metrics["final_loss"] <= 0 {
		t.Errorf("tuned model final loss = %v, want > 0", model.Metrics["final_loss"])
	}
}

func TestService_CancelTuningJob(t *testing.T) {
	service := newTestService()
	service.epochDuration = 250 * time.Millisecond

	job, err := service.CreateTuningJob(t.Context(), "cancel-test", FromLoRAConfig(lora.DefaultConfig()))
	if err != nil {
		t.Fatalf("CreateTuningJob() error = %v", err)
	}

	if err := service.CancelTuningJob(t.Context(), job.Name); err != nil {
		t.Fatalf("CancelTuningJob() error = %v", err)
	}

	err = service.WaitForCompletion(t.Context(), job.Name, time.Second)
	if err == nil || !strings.Contains(err.Error(), "cancelled") {
		t.Errorf("WaitForCompletion() error = %v, want cancellation", err)
	}

	if _, err := service.GetTunedModel(t.Context(), job.Name); err == nil {
		t.Error("GetTunedModel() expected error for cancelled job")
	}

	// Already terminal: a second cancel is rejected.
	if err := service.CancelTuningJob(t.Context(), job.Name); err == nil {
		t.Error("CancelTuningJob() expected error for already cancelled job")
	}

	if err := service.CancelTuningJob(t.Context(), "absent"); err == nil {
		t.Error("CancelTuningJob() expected error for unknown job")
	}
}

func TestService_ListTuningJobs(t *testing.T) {
	service := newTestService()

	for _, name := range []string{"job-b", "job-a"} {
		if _, err := service.CreateTuningJob(t.Context(), name, FromLoRAConfig(lora.DefaultConfig())); err != nil {
			t.Fatalf("CreateTuningJob(%q) error = %v", name, err)
		}
	}
	for _, name := range []string{"job-a", "job-b"} {
		if err := service.WaitForCompletion(t.Context(), name, 5*time.Second); err != nil {
			t.Fatalf("WaitForCompletion(%q) error = %v", name, err)
		}
	}

	jobs, err := service.ListTuningJobs(t.Context(), nil)
	if err != nil {
		t.Fatalf("ListTuningJobs() error = %v", err)
	}
	var names []string
	for _, job := range jobs {
		names = append(names, job.Name)
	}
	if diff := cmp.Diff([]string{"job-a", "job-b"}, names); diff != "" {
		t.Errorf("ListTuningJobs() names mismatch (-want +got):\n%s", diff)
	}

	succeeded, err := service.ListTuningJobs(t.Context(), &ListOptions{Filter: "state=SUCCEEDED"})
	if err != nil {
		t.Fatalf("ListTuningJobs() error = %v", err)
	}
	if len(succeeded) != 2 {
		t.Errorf("ListTuningJobs(SUCCEEDED) = %d jobs, want 2", len(succeeded))
	}

	running, err := service.ListTuningJobs(t.Context(), &ListOptions{Filter: "state=RUNNING"})
	if err != nil {
		t.Fatalf("ListTuningJobs() error = %v", err)
	}
	if len(running) != 0 {
		t.Errorf("ListTuningJobs(RUNNING) = %d jobs, want 0", len(running))
	}

	paged, err := service.ListTuningJobs(t.Context(), &ListOptions{PageSize: 1})
	if err != nil {
		t.Fatalf("ListTuningJobs() error = %v", err)
	}
	if len(paged) != 1 {
		t.Errorf("ListTuningJobs(PageSize=1) = %d jobs, want 1", len(paged))
	}
}
