// Copyright 2025 The FinTune Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/moby/sys/atomicwriter"
)

// mimeSuffix marks the sidecar file carrying a version's content type.
const mimeSuffix = ".mime"

// Local is a filesystem-backed artifact store.
type Local struct {
	root string
	mu   sync.Mutex
}

var _ Store = (*Local)(nil)

// NewLocal creates a store rooted at dir, creating the directory if
// needed.
func NewLocal(dir string) (*Local, error) {
	if dir == "" {
		return nil, errors.New("artifact root directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact root: %w", err)
	}

	return &Local{root: dir}, nil
}

// artifactDir returns the directory holding all versions of one artifact.
func (s *Local) artifactDir(configKey, filename string) string {
	return filepath.Join(s.root, configKey, filename)
}

// Save implements [Store].
func (s *Local) Save(ctx context.Context, configKey, filename string, data []byte, mimeType string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	versions, err := s.listVersionsLocked(configKey, filename)
	if err != nil {
		return 0, err
	}
	version := 0
	if len(versions) > 0 {
		version = versions[len(versions)-1] + 1
	}

	dir := s.artifactDir(configKey, filename)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create artifact dir: %w", err)
	}

	path := filepath.Join(dir, strconv.Itoa(version))
	if err := atomicwriter.WriteFile(path, data, 0o644); err != nil {
		return 0, fmt.Errorf("write artifact %s: %w", path, err)
	}
	if mimeType != "" {
		if err := atomicwriter.WriteFile(path+mimeSuffix, []byte(mimeType), 0o644); err != nil {
			return 0, fmt.Errorf("write artifact mime %s: %w", path, err)
		}
	}

	return version, nil
}

// Load implements [Store].
func (s *Local) Load(ctx context.Context, configKey, filename string, version int) (*Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if version < 0 {
		versions, err := s.listVersionsLocked(configKey, filename)
		if err != nil {
			return nil, err
		}
		if len(versions) == 0 {
			return nil, fmt.Errorf("%s/%s: %w", configKey, filename, ErrNotFound)
		}
		version = versions[len(versions)-1]
	}

	path := filepath.Join(s.artifactDir(configKey, filename), strconv.Itoa(version))
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s/%s version %d: %w", configKey, filename, version, ErrNotFound)
		}
		return nil, fmt.Errorf("read artifact %s: %w", path, err)
	}

	mimeType := ""
	if raw, err := os.ReadFile(path + mimeSuffix); err == nil {
		mimeType = string(raw)
	} else {
		mimeType = mime.TypeByExtension(filepath.Ext(filename))
	}

	return &Artifact{Data: data, MIMEType: mimeType}, nil
}

// ListKeys implements [Store].
func (s *Local) ListKeys(ctx context.Context, configKey string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(filepath.Join(s.root, configKey))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list artifacts for %s: %w", configKey, err)
	}

	// os.ReadDir returns entries sorted by name.
	filenames := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			filenames = append(filenames, entry.Name())
		}
	}

	return filenames, nil
}

// ListVersions implements [Store].
func (s *Local) ListVersions(ctx context.Context, configKey, filename string) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.listVersionsLocked(configKey, filename)
}

// listVersionsLocked scans the artifact directory for version files.
func (s *Local) listVersionsLocked(configKey, filename string) ([]int, error) {
	entries, err := os.ReadDir(s.artifactDir(configKey, filename))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list versions for %s/%s: %w", configKey, filename, err)
	}

	var versions []int
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasSuffix(name, mimeSuffix) {
			continue
		}
		version, err := strconv.Atoi(name)
		if err != nil {
			continue
		}
		versions = append(versions, version)
	}
	slices.Sort(versions)

	return versions, nil
}

// Delete implements [Store].
func (s *Local) Delete(ctx context.Context, configKey, filename string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.RemoveAll(s.artifactDir(configKey, filename)); err != nil {
		return fmt.Errorf("delete artifact %s/%s: %w", configKey, filename, err)
	}
	// Prune the config key directory if this was its last artifact.
	_ = os.Remove(filepath.Join(s.root, configKey))

	return nil
}

// Close implements [Store].
func (s *Local) Close() error {
	// nothing to do
	return nil
}
