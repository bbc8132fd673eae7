// Copyright 2025 The FinTune Authors
// SPDX-License-Identifier: Apache-2.0

package trainer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/finai/fintune/pkg/logging"
)

// Local runs the fine-tuning tool as a child process on the host.
//
// The tool must be installed and resolvable; the runner adds nothing to
// the invocation beyond the configuration key and the environment
// described in the package documentation.
type Local struct {
	// tool is the command to invoke.
	tool string

	// outputRoot is where the framework writes adapter artifacts.
	outputRoot string

	// env holds extra environment variables appended to the inherited
	// environment.
	env map[string]string

	// timeout bounds a single invocation when non-zero.
	timeout time.Duration
}

var _ Runner = (*Local)(nil)

// LocalOption is a functional option for configuring Local.
type LocalOption func(*Local)

// WithTool overrides the fine-tuning command.
func WithTool(tool string) LocalOption {
	return func(r *Local) {
		r.tool = tool
	}
}

// WithOutputRoot overrides the directory the framework writes adapter
// artifacts under.
func WithOutputRoot(dir string) LocalOption {
	return func(r *Local) {
		r.outputRoot = dir
	}
}

// WithEnv appends extra environment variables to the tool's inherited
// environment.
func WithEnv(env map[string]string) LocalOption {
	return func(r *Local) {
		for key, value := range env {
			r.env[key] = value
		}
	}
}

// WithTimeout bounds a single invocation. Zero means no bound.
func WithTimeout(timeout time.Duration) LocalOption {
	return func(r *Local) {
		r.timeout = timeout
	}
}

// NewLocal creates a runner invoking the tool on the host.
func NewLocal(opts ...LocalOption) *Local {
	runner := &Local{
		tool:       DefaultTool,
		outputRoot: DefaultOutputRoot,
		env:        make(map[string]string),
	}
	for _, opt := range opts {
		opt(runner)
	}

	return runner
}

// Run implements [Runner].
func (r *Local) Run(ctx context.Context, job *Job) (*Result, error) {
	if job == nil || job.ConfigKey == "" {
		return nil, errors.New("job config key is required")
	}

	logger := logging.FromContext(ctx)

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	// One positional argument: the configuration key. The tool resolves
	// everything else from the mapping file.
	cmd := exec.CommandContext(ctx, r.tool, job.ConfigKey)
	cmd.Env = jobEnviron(os.Environ(), job, r.env)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("open stdout pipe: %w", err)
	}

	logger.InfoContext(ctx, "Starting fine-tuning",
		slog.String("tool", r.tool),
		slog.String("config_key", job.ConfigKey),
	)

	startTime := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", r.tool, err)
	}

	stdout, events := collectOutput(ctx, logger, stdoutPipe)

	err = cmd.Wait()
	duration := time.Since(startTime)

	if err != nil {
		// A kill triggered by context cancellation is not a tool failure.
		if ctx.Err() != nil {
			return nil, fmt.Errorf("run %s: %w", r.tool, ctx.Err())
		}
		if exitError, ok := err.(*exec.ExitError); ok {
			return nil, &ProcessFailure{
				Tool:     r.tool,
				ExitCode: exitError.ExitCode(),
				Stderr:   stderr.String(),
			}
		}
		return nil, fmt.Errorf("run %s: %w", r.tool, err)
	}

	result := &Result{
		Stdout:     stdout,
		Stderr:     stderr.String(),
		AdapterDir: filepath.Join(r.outputRoot, job.ConfigKey),
		Duration:   duration,
		Events:     events,
	}

	logger.InfoContext(ctx, "Fine-tuning finished",
		slog.String("config_key", job.ConfigKey),
		slog.String("adapter_dir", result.AdapterDir),
		slog.Duration("duration", duration),
	)

	return result, nil
}

// Close implements [Runner].
func (r *Local) Close() error {
	return nil
}

// jobEnviron appends the job's path exports and the runner's extra
// variables to the base environment.
func jobEnviron(base []string, job *Job, extra map[string]string) []string {
	env := base
	if job.ConfigPath != "" {
		env = append(env, fmt.Sprintf("%s=%s", envConfigPath, job.ConfigPath))
	}
	if job.DatasetPath != "" {
		env = append(env, fmt.Sprintf("%s=%s", envDatasetPath, job.DatasetPath))
	}
	for key, value := range extra {
		env = append(env, fmt.Sprintf("%s=%s", key, value))
	}

	return env
}
