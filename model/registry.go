// Copyright 2025 The FinTune Authors
// SPDX-License-Identifier: Apache-2.0

package model

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
)

// init registers the built-in generator backends.
func init() {
	// Register Claude models
	RegisterGeneratorType(
		[]string{
			`claude-.*`, // General pattern for Claude models
		},
		func(ctx context.Context, apiKey string, modelName string) (Generator, error) {
			return NewClaude(ctx, apiKey, modelName)
		},
	)

	// Register Google/Gemini models
	RegisterGeneratorType(
		[]string{
			`gemini-.*`,
			`projects\/.*\/locations\/.*\/endpoints\/.*`,
			`projects\/.*\/locations\/.*\/publishers\/google\/models\/gemini-.*`,
		},
		func(ctx context.Context, apiKey string, modelName string) (Generator, error) {
			return NewGemini(ctx, apiKey, modelName)
		},
	)
}

// CreatorFunc is a function type that creates a generator instance.
type CreatorFunc func(ctx context.Context, apiKey string, modelName string) (Generator, error)

// generatorEntry represents a registry entry with a regex pattern and generator creator function.
type generatorEntry struct {
	pattern *regexp.Regexp
	creator CreatorFunc
}

// Registry resolves model identifiers to generator backends.
// It allows registering and resolving implementations based on regex patterns.
type Registry struct {
	mu        sync.RWMutex
	registry  []generatorEntry
	cacheSize int
	cache     map[string]CreatorFunc // Simple LRU-like cache
}

var (
	defaultRegistry *Registry
	once            sync.Once
)

// GetRegistry returns the singleton registry instance.
func GetRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = NewRegistry(32) // Cache size of 32
	})
	return defaultRegistry
}

// NewRegistry creates a new registry with the specified cache size.
func NewRegistry(cacheSize int) *Registry {
	return &Registry{
		registry:  make([]generatorEntry, 0),
		cacheSize: cacheSize,
		cache:     make(map[string]CreatorFunc),
	}
}

// Register registers a model pattern with a creator function.
// If the pattern already exists, it will be updated with the new creator.
func (r *Registry) Register(pattern string, creator CreatorFunc) error {
	regex, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("compile model pattern %q: %w", pattern, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Look for existing entry to update
	for i, entry := range r.registry {
		if entry.pattern.String() == pattern {
			r.registry[i].creator = creator
			return nil
		}
	}

	// Add new entry
	r.registry = append(r.registry, generatorEntry{
		pattern: regex,
		creator: creator,
	})
	return nil
}

// Resolve finds the generator creator for the given model name.
// Uses regex pattern matching and caching for performance.
func (r *Registry) Resolve(modelName string) (CreatorFunc, error) {
	// Check cache first, then scan the registry (with read lock)
	r.mu.RLock()
	if creator, ok := r.cache[modelName]; ok {
		r.mu.RUnlock()
		return creator, nil
	}

	var matched CreatorFunc
	for _, entry := range r.registry {
		if entry.pattern.MatchString(modelName) {
			matched = entry.creator
			break
		}
	}
	r.mu.RUnlock()

	if matched == nil {
		return nil, &LoadError{Model: modelName, Err: errors.New("no registered backend matches")}
	}

	// Update cache (with write lock)
	r.mu.Lock()
	if len(r.cache) >= r.cacheSize {
		// Simple eviction strategy - clear cache when full
		r.cache = make(map[string]CreatorFunc)
	}
	r.cache[modelName] = matched
	r.mu.Unlock()

	return matched, nil
}

// New creates a new generator for the given model name.
// It resolves the registered backend and constructs an instance. Any
// construction failure is reported as a [*LoadError].
func (r *Registry) New(ctx context.Context, apiKey string, modelName string) (Generator, error) {
	creator, err := r.Resolve(modelName)
	if err != nil {
		return nil, err
	}

	gen, err := creator(ctx, apiKey, modelName)
	if err != nil {
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			return nil, err
		}
		return nil, &LoadError{Model: modelName, Err: err}
	}
	return gen, nil
}

// RegisterGeneratorType registers multiple patterns for a single generator creator.
// It panics if a pattern does not compile.
func RegisterGeneratorType(patterns []string, creator CreatorFunc) {
	registry := GetRegistry()
	for _, pattern := range patterns {
		if err := registry.Register(pattern, creator); err != nil {
			panic(err)
		}
	}
}

// New is a convenience function to create a generator from the singleton registry.
func New(ctx context.Context, apiKey string, modelName string) (Generator, error) {
	return GetRegistry().New(ctx, apiKey, modelName)
}
