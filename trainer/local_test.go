// Copyright 2025 The FinTune Authors
// SPDX-License-Identifier: Apache-2.0

package trainer

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/finai/fintune/pkg/logging"
)

// writeStubTool writes a shell script standing in for the external
// fine-tuning tool and returns its path.
func writeStubTool(t *testing.T, script string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "finetune-cli")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755); err != nil {
		t.Fatalf("Failed to write stub tool: %v", err)
	}

	return path
}

// quietContext returns a context whose logger discards everything.
func quietContext(t *testing.T) context.Context {
	t.Helper()

	return logging.NewContext(t.Context(), slog.New(slog.DiscardHandler))
}

func TestLocal_Run(t *testing.T) {
	tool := writeStubTool(t, strings.Join([]string{
		`echo "loading base model"`,
		`echo '{"current_steps": 10, "total_steps": 20, "loss": 1.9072, "epoch": 0.5}'`,
		`echo '{"current_steps": 20, "total_steps": 20, "loss": 1.4821, "epoch": 1.0}'`,
		`echo "training complete"`,
	}, "\n"))

	runner := NewLocal(WithTool(tool), WithOutputRoot("lora/output"))
	defer runner.Close()

	result, err := runner.Run(quietContext(t), &Job{ConfigKey: "finai-qa-lora"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if result.ExitCode != 0 {
		t.Errorf("Run() exit code = %d, want 0", result.ExitCode)
	}
	if !strings.Contains(result.Stdout, "loading base model") || !strings.Contains(result.Stdout, "training complete") {
		t.Errorf("Run() stdout missing tool output:\n%s", result.Stdout)
	}
	if want := filepath.Join("lora", "output", "finai-qa-lora"); result.AdapterDir != want {
		t.Errorf("Run() adapter dir = %q, want %q", result.AdapterDir, want)
	}
	if result.Duration <= 0 {
		t.Errorf("Run() duration = %v, want > 0", result.Duration)
	}

	wantEvents := []Event{
		{CurrentSteps: 10, TotalSteps: 20, Loss: 1.9072, Epoch: 0.5},
		{CurrentSteps: 20, TotalSteps: 20, Loss: 1.4821, Epoch: 1.0},
	}
	if diff := cmp.Diff(wantEvents, result.Events); diff != "" {
		t.Errorf("Run() events mismatch (-want +got):\n%s", diff)
	}
}

func TestLocal_Run_SingleArgument(t *testing.T) {
	// The tool contract is one positional argument: the config key.
	tool := writeStubTool(t, `echo "$#"; echo "$1"`)

	runner := NewLocal(WithTool(tool))
	defer runner.Close()

	result, err := runner.Run(quietContext(t), &Job{ConfigKey: "finai-qa-lora"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if want := "1\nfinai-qa-lora\n"; result.Stdout != want {
		t.Errorf("Run() stdout = %q, want %q", result.Stdout, want)
	}
}

func TestLocal_Run_Environment(t *testing.T) {
	tool := writeStubTool(t, `echo "$FINTUNE_CONFIG_PATH"; echo "$FINTUNE_DATASET_PATH"; echo "$FINTUNE_EXTRA"`)

	runner := NewLocal(
		WithTool(tool),
		WithEnv(map[string]string{"FINTUNE_EXTRA": "gpu0"}),
	)
	defer runner.Close()

	result, err := runner.Run(quietContext(t), &Job{
		ConfigKey:   "finai-qa-lora",
		ConfigPath:  "lora/finetune_configs.json",
		DatasetPath: "data/train/finai_train.jsonl",
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := "lora/finetune_configs.json\ndata/train/finai_train.jsonl\ngpu0\n"
	if result.Stdout != want {
		t.Errorf("Run() stdout = %q, want %q", result.Stdout, want)
	}
}

func TestLocal_Run_ProcessFailure(t *testing.T) {
	tool := writeStubTool(t, `echo "CUDA out of memory" >&2; exit 3`)

	runner := NewLocal(WithTool(tool))
	defer runner.Close()

	result, err := runner.Run(quietContext(t), &Job{ConfigKey: "finai-qa-lora"})
	if err == nil {
		t.Fatal("Run() expected error for non-zero exit")
	}
	if result != nil {
		t.Errorf("Run() result = %+v, want nil on failure", result)
	}

	var failure *ProcessFailure
	if !errors.As(err, &failure) {
		t.Fatalf("Run() error = %T, want *ProcessFailure", err)
	}
	if failure.ExitCode != 3 {
		t.Errorf("ProcessFailure exit code = %d, want 3", failure.ExitCode)
	}
	if !strings.Contains(failure.Stderr, "CUDA out of memory") {
		t.Errorf("ProcessFailure stderr = %q, want tool diagnostics", failure.Stderr)
	}
	if !strings.Contains(failure.Error(), "exited with code 3") {
		t.Errorf("ProcessFailure message = %q", failure.Error())
	}
}

func TestLocal_Run_MissingTool(t *testing.T) {
	runner := NewLocal(WithTool(filepath.Join(t.TempDir(), "no-such-tool")))
	defer runner.Close()

	_, err := runner.Run(quietContext(t), &Job{ConfigKey: "finai-qa-lora"})
	if err == nil {
		t.Fatal("Run() expected error for missing tool")
	}

	// A tool that never ran is not a process failure.
	var failure *ProcessFailure
	if errors.As(err, &failure) {
		t.Errorf("Run() error = %v, want plain error rather than *ProcessFailure", err)
	}
}

func TestLocal_Run_EmptyConfigKey(t *testing.T) {
	runner := NewLocal()
	defer runner.Close()

	if _, err := runner.Run(quietContext(t), &Job{}); err == nil {
		t.Error("Run() expected error for empty config key")
	}
	if _, err := runner.Run(quietContext(t), nil); err == nil {
		t.Error("Run() expected error for nil job")
	}
}

func TestLocal_Run_Timeout(t *testing.T) {
	tool := writeStubTool(t, `exec sleep 10`)

	runner := NewLocal(WithTool(tool), WithTimeout(100*time.Millisecond))
	defer runner.Close()

	start := time.Now()
	_, err := runner.Run(quietContext(t), &Job{ConfigKey: "finai-qa-lora"})
	if err == nil {
		t.Fatal("Run() expected error for timed-out tool")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Run() error = %v, want context.DeadlineExceeded", err)
	}

	var failure *ProcessFailure
	if errors.As(err, &failure) {
		t.Errorf("Run() error = %v, want cancellation rather than *ProcessFailure", err)
	}

	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Run() took %v, want prompt return after timeout", elapsed)
	}
}
