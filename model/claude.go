// Copyright 2025 The FinTune Authors
// SPDX-License-Identifier: Apache-2.0

package model

import (
	"context"
	"fmt"
	"os"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"
)

const (
	// ClaudeDefaultModel is the default model name for [Claude].
	ClaudeDefaultModel = "claude-3-5-haiku-latest"

	// EnvAnthropicAPIKey is the environment variable name for the Anthropic API key.
	EnvAnthropicAPIKey = "ANTHROPIC_API_KEY"

	// claudeDefaultMaxTokens caps the completion when the request does not.
	claudeDefaultMaxTokens = 4096
)

// Claude generates answers with an Anthropic Claude model.
type Claude struct {
	model           string
	anthropicClient anthropic.Client
}

var _ Generator = (*Claude)(nil)

// NewClaude creates a new [Claude] instance.
func NewClaude(ctx context.Context, apiKey string, modelName string) (*Claude, error) {
	// Use default model if none provided
	if modelName == "" {
		modelName = ClaudeDefaultModel
	}

	// Check API key and use [EnvAnthropicAPIKey] environment variable if not provided
	if apiKey == "" {
		envApiKey := os.Getenv(EnvAnthropicAPIKey)
		if envApiKey == "" {
			return nil, &LoadError{
				Model: modelName,
				Err:   fmt.Errorf("either apiKey arg or %q environment variable must bu set", EnvAnthropicAPIKey),
			}
		}
		apiKey = envApiKey
	}

	anthropicClient := anthropic.NewClient(option.WithAPIKey(apiKey))

	return &Claude{
		model:           modelName,
		anthropicClient: anthropicClient,
	}, nil
}

// Name returns the model identifier this generator serves.
func (m *Claude) Name() string {
	return m.model
}

// Generate produces a completion for the request.
func (m *Claude) Generate(ctx context.Context, req *Request) (*Response, error) {
	params := anthropic.MessageNewParams{
		Model: anthropic.Model(m.model),
		Messages: []anthropic.MessageParam{
			{
				Role:    anthropic.MessageParamRoleUser,
				Content: []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(req.Prompt)},
			},
		},
		MaxTokens: claudeDefaultMaxTokens,
	}

	if req.MaxOutputTokens > 0 {
		params.MaxTokens = int64(req.MaxOutputTokens)
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(float64(*req.Temperature))
	}

	// System prompt is set separately from the message list
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{
			{
				Text: req.System,
				Type: constant.ValueOf[constant.Text]().Default(),
			},
		}
	}

	// Make API call
	message, err := m.anthropicClient.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("claude API error: %w", err)
	}

	var sb strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}

	return &Response{
		Text:         sb.String(),
		FinishReason: string(message.StopReason),
	}, nil
}

// Close releases resources held by the generator.
func (m *Claude) Close() error {
	return nil
}
