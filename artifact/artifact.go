// Copyright 2025 The FinTune Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"context"
	"errors"
)

// ErrNotFound reports a load of an artifact or version that does not exist.
var ErrNotFound = errors.New("artifact not found")

// Artifact is one stored payload.
type Artifact struct {
	// Data is the artifact content.
	Data []byte

	// MIMEType describes the content, e.g. "application/jsonl".
	MIMEType string
}

// Store is a versioned artifact store keyed by configuration key.
type Store interface {
	// Save stores data as a new version of {configKey}/{filename} and
	// returns the version number it was assigned.
	Save(ctx context.Context, configKey, filename string, data []byte, mimeType string) (int, error)

	// Load retrieves one version of {configKey}/{filename}. A negative
	// version loads the latest one. A missing artifact or version is
	// reported via [ErrNotFound].
	Load(ctx context.Context, configKey, filename string, version int) (*Artifact, error)

	// ListKeys returns the filenames stored under the config key, sorted.
	ListKeys(ctx context.Context, configKey string) ([]string, error)

	// ListVersions returns the stored versions of {configKey}/{filename}
	// in ascending order.
	ListVersions(ctx context.Context, configKey, filename string) ([]int, error)

	// Delete removes every version of {configKey}/{filename}.
	Delete(ctx context.Context, configKey, filename string) error

	// Close releases resources held by the store.
	Close() error
}
