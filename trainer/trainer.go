// Copyright 2025 The FinTune Authors
// SPDX-License-Identifier: Apache-2.0

package trainer

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// DefaultTool is the fine-tuning command resolved from PATH when no
// override is given.
const DefaultTool = "finetune-cli"

// DefaultOutputRoot is the directory the external framework writes
// adapter artifacts under, one subdirectory per configuration key.
const DefaultOutputRoot = "lora/output"

// Environment variables exported to the external tool alongside the
// positional configuration key.
const (
	envConfigPath  = "FINTUNE_CONFIG_PATH"
	envDatasetPath = "FINTUNE_DATASET_PATH"
)

// Job describes one fine-tuning invocation.
type Job struct {
	// ConfigKey names the entry in the configuration mapping file the
	// tool should train with. It is the tool's only positional argument.
	ConfigKey string

	// ConfigPath is the configuration mapping file. Optional; exported
	// to the tool as FINTUNE_CONFIG_PATH when set.
	ConfigPath string

	// DatasetPath is the training partition the selected configuration
	// points at. Optional; exported as FINTUNE_DATASET_PATH when set.
	DatasetPath string
}

// Result carries what the external tool produced.
type Result struct {
	// ExitCode is the tool's process exit status.
	ExitCode int

	// Stdout and Stderr hold the captured output streams.
	Stdout string
	Stderr string

	// AdapterDir is the directory holding the trained adapter artifact,
	// per the framework's <output root>/<config key> convention.
	AdapterDir string

	// Duration is the wall-clock time of the invocation.
	Duration time.Duration

	// Events holds the progress records parsed from stdout, in order.
	Events []Event
}

// Runner executes fine-tuning jobs.
type Runner interface {
	// Run executes the job and blocks until the tool exits. A non-zero
	// exit status is returned as a *ProcessFailure.
	Run(ctx context.Context, job *Job) (*Result, error)

	// Close releases any resources held by the runner.
	Close() error
}

// ProcessFailure reports a non-zero exit of the external fine-tuning
// tool. It is fatal: the caller reports it upward unexamined, without
// retrying.
type ProcessFailure struct {
	// Tool identifies the failed invocation (command name or image).
	Tool string

	// ExitCode is the tool's non-zero exit status.
	ExitCode int

	// Stderr is the captured error stream, kept for diagnosis.
	Stderr string
}

// Error implements the error interface.
func (e *ProcessFailure) Error() string {
	msg := fmt.Sprintf("fine-tuning tool %q exited with code %d", e.Tool, e.ExitCode)
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		msg += ": " + stderr
	}
	return msg
}
