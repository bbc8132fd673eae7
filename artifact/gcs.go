// Copyright 2025 The FinTune Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"cloud.google.com/go/auth/credentials"
	"cloud.google.com/go/storage"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCS is a Google Cloud Storage artifact store. The managed tuning path
// uses it to stage datasets where Vertex AI can read them.
type GCS struct {
	client     *storage.Client
	bucket     *storage.BucketHandle
	bucketName string
}

var _ Store = (*GCS)(nil)

// NewGCS creates a [GCS] store writing into the given bucket.
func NewGCS(ctx context.Context, bucketName string) (*GCS, error) {
	creds, err := credentials.DetectDefault(&credentials.DetectOptions{
		Scopes: []string{
			storage.ScopeFullControl,
			storage.ScopeReadWrite,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get credentials for storage: %w", err)
	}

	client, err := storage.NewGRPCClient(ctx, option.WithAuthCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}

	return &GCS{
		client:     client,
		bucket:     client.Bucket(bucketName),
		bucketName: bucketName,
	}, nil
}

// objectName constructs the object name for one artifact version.
func (s *GCS) objectName(configKey, filename string, version int) string {
	return fmt.Sprintf("%s/%s/%d", configKey, filename, version)
}

// ObjectURI returns the gs:// URI of one artifact version.
func (s *GCS) ObjectURI(configKey, filename string, version int) string {
	return fmt.Sprintf("gs://%s/%s", s.bucketName, s.objectName(configKey, filename, version))
}

// Save implements [Store].
func (s *GCS) Save(ctx context.Context, configKey, filename string, data []byte, mimeType string) (int, error) {
	versions, err := s.ListVersions(ctx, configKey, filename)
	if err != nil {
		return 0, err
	}
	version := 0
	if len(versions) > 0 {
		version = versions[len(versions)-1] + 1
	}

	blob := s.bucket.Object(s.objectName(configKey, filename, version))
	w := blob.NewWriter(ctx)
	w.ContentType = mimeType
	if _, err := w.Write(data); err != nil {
		w.Close()
		return 0, fmt.Errorf("write artifact object: %w", err)
	}
	if err := w.Close(); err != nil {
		return 0, fmt.Errorf("finalize artifact object: %w", err)
	}

	return version, nil
}

// Load implements [Store].
func (s *GCS) Load(ctx context.Context, configKey, filename string, version int) (*Artifact, error) {
	if version < 0 {
		versions, err := s.ListVersions(ctx, configKey, filename)
		if err != nil {
			return nil, err
		}
		if len(versions) == 0 {
			return nil, fmt.Errorf("%s/%s: %w", configKey, filename, ErrNotFound)
		}
		version = versions[len(versions)-1]
	}

	blob := s.bucket.Object(s.objectName(configKey, filename, version))
	r, err := blob.NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%s/%s version %d: %w", configKey, filename, version, ErrNotFound)
		}
		return nil, fmt.Errorf("read artifact object: %w", err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read artifact object: %w", err)
	}

	return &Artifact{Data: data, MIMEType: r.Attrs.ContentType}, nil
}

// ListKeys implements [Store].
func (s *GCS) ListKeys(ctx context.Context, configKey string) ([]string, error) {
	it := s.bucket.Objects(ctx, &storage.Query{
		Prefix: configKey + "/",
	})

	seen := make(map[string]bool)
	for {
		objAttrs, err := it.Next()
		if err != nil {
			if errors.Is(err, iterator.Done) {
				break
			}
			return nil, fmt.Errorf("list artifacts for %s: %w", configKey, err)
		}

		if parts := strings.Split(objAttrs.Name, "/"); len(parts) == 3 {
			seen[parts[1]] = true
		}
	}

	return slices.Sorted(maps.Keys(seen)), nil
}

// ListVersions implements [Store].
func (s *GCS) ListVersions(ctx context.Context, configKey, filename string) ([]int, error) {
	it := s.bucket.Objects(ctx, &storage.Query{
		Prefix: fmt.Sprintf("%s/%s/", configKey, filename),
	})

	var versions []int
	for {
		objAttrs, err := it.Next()
		if err != nil {
			if errors.Is(err, iterator.Done) {
				break
			}
			return nil, fmt.Errorf("list versions for %s/%s: %w", configKey, filename, err)
		}

		idx := strings.LastIndex(objAttrs.Name, "/")
		version, err := strconv.Atoi(objAttrs.Name[idx+1:])
		if err != nil {
			// Not a version object, e.g. a staged dataset.
			continue
		}
		versions = append(versions, version)
	}
	slices.Sort(versions)

	return versions, nil
}

// Delete implements [Store].
func (s *GCS) Delete(ctx context.Context, configKey, filename string) error {
	versions, err := s.ListVersions(ctx, configKey, filename)
	if err != nil {
		return err
	}

	for _, version := range versions {
		blob := s.bucket.Object(s.objectName(configKey, filename, version))
		if err := blob.Delete(ctx); err != nil {
			return fmt.Errorf("delete artifact object: %w", err)
		}
	}

	return nil
}

// StageDatasets uploads local files under the config key's staging prefix
// and returns their gs:// URIs in input order.
func (s *GCS) StageDatasets(ctx context.Context, configKey string, paths ...string) ([]string, error) {
	uris := make([]string, len(paths))

	eg, ctx := errgroup.WithContext(ctx)
	for i, path := range paths {
		eg.Go(func() error {
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read dataset %s: %w", path, err)
			}

			object := fmt.Sprintf("%s/staging/%s", configKey, filepath.Base(path))
			w := s.bucket.Object(object).NewWriter(ctx)
			w.ContentType = "application/jsonl"
			if _, err := w.Write(data); err != nil {
				w.Close()
				return fmt.Errorf("write staged dataset %s: %w", object, err)
			}
			if err := w.Close(); err != nil {
				return fmt.Errorf("finalize staged dataset %s: %w", object, err)
			}

			uris[i] = fmt.Sprintf("gs://%s/%s", s.bucketName, object)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	return uris, nil
}

// Close implements [Store].
func (s *GCS) Close() error {
	return s.client.Close()
}
