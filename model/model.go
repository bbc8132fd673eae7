// Copyright 2025 The FinTune Authors
// SPDX-License-Identifier: Apache-2.0

package model

import (
	"context"
	"fmt"
)

// Generator produces a text completion for a single prompt.
//
// Implementations are safe for concurrent use. Generate blocks until the
// backend finishes decoding; cancellation rides the context.
type Generator interface {
	// Name returns the model identifier this generator serves.
	Name() string

	// Generate produces a completion for the request.
	Generate(ctx context.Context, req *Request) (*Response, error)

	// Close releases resources held by the generator.
	Close() error
}

// Request is a single generation request.
type Request struct {
	// Prompt is the user prompt.
	Prompt string

	// System is an optional system instruction.
	System string

	// MaxOutputTokens caps the completion length. Zero uses the backend default.
	MaxOutputTokens int32

	// Temperature overrides the backend sampling temperature when non-nil.
	Temperature *float32
}

// Response is the decoded completion.
type Response struct {
	// Text is the generated text.
	Text string

	// FinishReason reports why decoding stopped, in backend-specific terms.
	FinishReason string
}

// LoadError reports a failure to construct a generator: an unknown model
// identifier, a missing API key, or a missing adapter directory. Load
// errors are fatal; callers should not retry.
type LoadError struct {
	// Model is the model identifier that failed to load.
	Model string

	// Err is the underlying cause.
	Err error
}

var _ error = (*LoadError)(nil)

// Error implements error.
func (e *LoadError) Error() string {
	return fmt.Sprintf("load model %q: %v", e.Model, e.Err)
}

// Unwrap returns the underlying cause.
func (e *LoadError) Unwrap() error {
	return e.Err
}
