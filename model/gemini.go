// Copyright 2025 The FinTune Authors
// SPDX-License-Identifier: Apache-2.0

package model

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"google.golang.org/genai"
)

const (
	// GeminiDefaultModel is the default model name for [Gemini].
	GeminiDefaultModel = "gemini-2.0-flash"

	// EnvGoogleAPIKey is the environment variable name for the Google AI API key.
	EnvGoogleAPIKey = "GOOGLE_API_KEY"
)

// Gemini generates answers with a Google Gemini model.
type Gemini struct {
	model       string
	genAIClient *genai.Client
}

var _ Generator = (*Gemini)(nil)

// NewGemini creates a new [Gemini] instance.
func NewGemini(ctx context.Context, apiKey string, modelName string) (*Gemini, error) {
	// Use default model if none provided
	if modelName == "" {
		modelName = GeminiDefaultModel
	}

	// Check API key and use [EnvGoogleAPIKey] environment variable if not provided
	if apiKey == "" {
		envApiKey := os.Getenv(EnvGoogleAPIKey)
		if envApiKey == "" {
			return nil, &LoadError{
				Model: modelName,
				Err:   fmt.Errorf("either apiKey arg or %q environment variable must bu set", EnvGoogleAPIKey),
			}
		}
		apiKey = envApiKey
	}

	genAIClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, &LoadError{Model: modelName, Err: fmt.Errorf("create genai client: %w", err)}
	}

	return &Gemini{
		model:       modelName,
		genAIClient: genAIClient,
	}, nil
}

// Name returns the model identifier this generator serves.
func (m *Gemini) Name() string {
	return m.model
}

// Generate produces a completion for the request.
func (m *Gemini) Generate(ctx context.Context, req *Request) (*Response, error) {
	contents := []*genai.Content{
		{
			Role:  genai.RoleUser,
			Parts: []*genai.Part{genai.NewPartFromText(req.Prompt)},
		},
	}

	// Create config for generate content
	config := &genai.GenerateContentConfig{}
	if req.System != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{genai.NewPartFromText(req.System)},
		}
	}
	if req.MaxOutputTokens > 0 {
		config.MaxOutputTokens = req.MaxOutputTokens
	}
	if req.Temperature != nil {
		config.Temperature = req.Temperature
	}

	// Generate content
	response, err := m.genAIClient.Models.GenerateContent(ctx, m.model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("gemini API error: %w", err)
	}

	if len(response.Candidates) == 0 {
		return nil, errors.New("gemini API error: no candidates in response")
	}
	candidate := response.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return nil, fmt.Errorf("gemini API error: empty candidate content (finish reason %s)", candidate.FinishReason)
	}

	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		if part != nil && part.Text != "" {
			sb.WriteString(part.Text)
		}
	}

	return &Response{
		Text:         sb.String(),
		FinishReason: string(candidate.FinishReason),
	}, nil
}

// Close releases resources held by the generator.
func (m *Gemini) Close() error {
	return nil
}
