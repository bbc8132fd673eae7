// Copyright 2025 The FinTune Authors
// SPDX-License-Identifier: Apache-2.0

package model

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	// DefaultServingTool is the serving CLI used by [Adapter] when none is configured.
	DefaultServingTool = "finetune-cli"

	// adapterConfigFile is written into the adapter directory by the
	// fine-tuning run; its absence means the run never completed.
	adapterConfigFile = "adapter_config.json"
)

// Adapter generates answers with a locally stored LoRA adapter applied to
// its base model. Generation shells out to the serving CLI; the external
// framework owns tokenization, adapter merging, and decoding.
type Adapter struct {
	base string
	dir  string
	tool string
}

var _ Generator = (*Adapter)(nil)

// AdapterOption configures an [Adapter].
type AdapterOption func(*Adapter)

// WithServingTool overrides the serving CLI executable.
func WithServingTool(tool string) AdapterOption {
	return func(a *Adapter) {
		a.tool = tool
	}
}

// NewAdapter creates a generator serving the adapter in dir on top of the
// base model. The adapter directory and its config file must already exist;
// a missing or incomplete adapter is a [*LoadError].
func NewAdapter(baseModel, dir string, opts ...AdapterOption) (*Adapter, error) {
	if baseModel == "" {
		return nil, &LoadError{Model: baseModel, Err: errors.New("base model identifier is empty")}
	}

	info, err := os.Stat(dir)
	if err != nil {
		return nil, &LoadError{Model: baseModel, Err: fmt.Errorf("adapter directory %s: %w", dir, err)}
	}
	if !info.IsDir() {
		return nil, &LoadError{Model: baseModel, Err: fmt.Errorf("adapter path %s is not a directory", dir)}
	}
	if _, err := os.Stat(filepath.Join(dir, adapterConfigFile)); err != nil {
		return nil, &LoadError{Model: baseModel, Err: fmt.Errorf("adapter directory %s has no %s: %w", dir, adapterConfigFile, err)}
	}

	a := &Adapter{
		base: baseModel,
		dir:  dir,
		tool: DefaultServingTool,
	}
	for _, opt := range opts {
		opt(a)
	}

	return a, nil
}

// Name returns the base model identifier this generator serves.
func (a *Adapter) Name() string {
	return a.base
}

// Generate produces a completion for the request. The prompt is written to
// the serving tool's stdin; the decoded text is read from its stdout.
func (a *Adapter) Generate(ctx context.Context, req *Request) (*Response, error) {
	args := []string{"chat", "--base", a.base, "--adapter", a.dir}
	if req.System != "" {
		args = append(args, "--system", req.System)
	}
	if req.MaxOutputTokens > 0 {
		args = append(args, "--max-new-tokens", strconv.Itoa(int(req.MaxOutputTokens)))
	}
	if req.Temperature != nil {
		args = append(args, "--temperature", strconv.FormatFloat(float64(*req.Temperature), 'g', -1, 32))
	}

	cmd := exec.CommandContext(ctx, a.tool, args...)
	cmd.Stdin = strings.NewReader(req.Prompt)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("run %s: %w", a.tool, ctx.Err())
		}
		if exitError, ok := err.(*exec.ExitError); ok {
			msg := fmt.Sprintf("serving tool %q exited with code %d", a.tool, exitError.ExitCode())
			if detail := strings.TrimSpace(stderr.String()); detail != "" {
				msg += ": " + detail
			}
			return nil, errors.New(msg)
		}
		return nil, fmt.Errorf("run %s: %w", a.tool, err)
	}

	return &Response{
		Text: strings.TrimSpace(stdout.String()),
	}, nil
}

// Close releases resources held by the generator.
func (a *Adapter) Close() error {
	return nil
}
