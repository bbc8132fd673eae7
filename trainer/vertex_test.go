// Copyright 2025 The FinTune Authors
// SPDX-License-Identifier: Apache-2.0

package trainer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/finai/fintune/internal/vertexai/tuning"
	"github.com/finai/fintune/lora"
)

// fakeTuningService is an in-memory stand-in for the managed tuning
// service.
type fakeTuningService struct {
	createdName   string
	createdConfig *tuning.Config
	createErr     error
	waitErr       error
	model         *tuning.TunedModel
	progress      *tuning.Progress
	closed        bool
}

var _ TuningService = (*fakeTuningService)(nil)

func (f *fakeTuningService) CreateTuningJob(ctx context.Context, name string, config *tuning.Config) (*tuning.Job, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	if name == "" {
		name = "tuning-fake"
	}
	f.createdName = name
	f.createdConfig = config
	return &tuning.Job{Name: name, State: tuning.StateQueued, Config: config}, nil
}

func (f *fakeTuningService) WaitForCompletion(ctx context.Context, name string, timeout time.Duration) error {
	return f.waitErr
}

func (f *fakeTuningService) GetTunedModel(ctx context.Context, jobName string) (*tuning.TunedModel, error) {
	if f.model == nil {
		return nil, errors.New("no tuned model available")
	}
	return f.model, nil
}

func (f *fakeTuningService) GetProgress(ctx context.Context, name string) (*tuning.Progress, error) {
	if f.progress == nil {
		return nil, errors.New("no training progress available")
	}
	return f.progress, nil
}

func (f *fakeTuningService) Close() error {
	f.closed = true
	return nil
}

// writeConfigFile persists a single-entry configuration mapping and
// returns its path.
func writeConfigFile(t *testing.T, key string, cfg *lora.Config) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "finetune_configs.json")
	file := lora.NewFile()
	file.Set(key, cfg)
	if err := file.Save(path); err != nil {
		t.Fatalf("Failed to save config file: %v", err)
	}

	return path
}

func TestVertex_Run(t *testing.T) {
	cfg := lora.DefaultConfig()
	cfg.DatasetPath = "stale/path.jsonl"
	configPath := writeConfigFile(t, "finai-qa-lora", cfg)

	fake := &fakeTuningService{
		model: &tuning.TunedModel{
			Name:      "finai-qa-lora-tuned",
			ModelPath: "gs://test-project-fintune-models/tuning-fake",
		},
		progress: &tuning.Progress{
			CurrentEpoch: 3,
			TotalEpochs:  3,
			TrainingLoss: 1.31,
			LearningRate: 6.7e-5,
		},
	}
	runner, err := NewVertex(fake)
	if err != nil {
		t.Fatalf("NewVertex: %v", err)
	}

	result, err := runner.Run(quietContext(t), &Job{
		ConfigKey:   "finai-qa-lora",
		ConfigPath:  configPath,
		DatasetPath: "data/train/finai_train.jsonl",
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got, want := result.AdapterDir, "gs://test-project-fintune-models/tuning-fake"; got != want {
		t.Errorf("AdapterDir = %q, want %q", got, want)
	}
	if len(result.Events) != 1 || result.Events[0].Loss != 1.31 {
		t.Errorf("Events = %+v, want one trailing event with loss 1.31", result.Events)
	}

	if fake.createdConfig == nil {
		t.Fatal("no tuning job was created")
	}
	if got, want := fake.createdConfig.SourceModel, "mistralai/Mistral-7B-v0.1"; got != want {
		t.Errorf("SourceModel = %q, want %q", got, want)
	}
	if got, want := fake.createdConfig.Method, tuning.MethodQLoRA; got != want {
		t.Errorf("Method = %q, want %q", got, want)
	}
	if got, want := fake.createdConfig.DisplayName, "finai-qa-lora"; got != want {
		t.Errorf("DisplayName = %q, want %q", got, want)
	}
	// The job's dataset path wins over the stale one in the config entry.
	if got, want := fake.createdConfig.TrainURI, "data/train/finai_train.jsonl"; got != want {
		t.Errorf("TrainURI = %q, want %q", got, want)
	}
}

func TestVertex_Run_StagedURI(t *testing.T) {
	configPath := writeConfigFile(t, "finai-qa-lora", lora.DefaultConfig())

	fake := &fakeTuningService{
		model: &tuning.TunedModel{ModelPath: "gs://models/out"},
	}
	runner, err := NewVertex(fake, WithStagedURI("gs://fintune-staging/finai_train.jsonl"))
	if err != nil {
		t.Fatalf("NewVertex: %v", err)
	}

	_, err = runner.Run(quietContext(t), &Job{
		ConfigKey:   "finai-qa-lora",
		ConfigPath:  configPath,
		DatasetPath: "data/train/finai_train.jsonl",
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got, want := fake.createdConfig.TrainURI, "gs://fintune-staging/finai_train.jsonl"; got != want {
		t.Errorf("TrainURI = %q, want %q", got, want)
	}
}

func TestVertex_Run_UnknownConfigKey(t *testing.T) {
	configPath := writeConfigFile(t, "other-key", lora.DefaultConfig())

	runner, err := NewVertex(&fakeTuningService{})
	if err != nil {
		t.Fatalf("NewVertex: %v", err)
	}

	_, err = runner.Run(quietContext(t), &Job{ConfigKey: "finai-qa-lora", ConfigPath: configPath})
	if err == nil {
		t.Fatal("Run() succeeded, want error")
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("error %q does not mention the missing key", err)
	}
}

func TestVertex_Run_MalformedConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "finetune_configs.json")
	if err := os.WriteFile(configPath, []byte("[]"), 0o644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	runner, err := NewVertex(&fakeTuningService{})
	if err != nil {
		t.Fatalf("NewVertex: %v", err)
	}

	_, err = runner.Run(quietContext(t), &Job{ConfigKey: "finai-qa-lora", ConfigPath: configPath})
	var malformedErr *lora.MalformedConfigError
	if !errors.As(err, &malformedErr) {
		t.Fatalf("error %v is not a *lora.MalformedConfigError", err)
	}
}

func TestVertex_Run_JobFailure(t *testing.T) {
	configPath := writeConfigFile(t, "finai-qa-lora", lora.DefaultConfig())

	fake := &fakeTuningService{
		waitErr: errors.New("tuning job failed: CUDA out of memory"),
	}
	runner, err := NewVertex(fake)
	if err != nil {
		t.Fatalf("NewVertex: %v", err)
	}

	_, err = runner.Run(quietContext(t), &Job{ConfigKey: "finai-qa-lora", ConfigPath: configPath})
	if err == nil {
		t.Fatal("Run() succeeded, want error")
	}
	if !strings.Contains(err.Error(), "CUDA out of memory") {
		t.Errorf("error %q does not carry the failure detail", err)
	}

	// A managed-job failure is not a local process exit.
	var procErr *ProcessFailure
	if errors.As(err, &procErr) {
		t.Errorf("error %v should not be a *ProcessFailure", err)
	}
}

func TestVertex_Close(t *testing.T) {
	fake := &fakeTuningService{}
	runner, err := NewVertex(fake)
	if err != nil {
		t.Fatalf("NewVertex: %v", err)
	}

	if err := runner.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !fake.closed {
		t.Error("Close() did not close the tuning service")
	}
}

func TestNewVertex_NilService(t *testing.T) {
	if _, err := NewVertex(nil); err == nil {
		t.Fatal("NewVertex(nil) succeeded, want error")
	}
}
