// Copyright 2025 The FinTune Authors
// SPDX-License-Identifier: Apache-2.0

package trainer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/finai/fintune/pkg/logging"
)

// defaultImage is the fine-tuning toolchain image used when no override
// is given.
const defaultImage = "fintune/finetune-cli:latest"

// containerWorkspace is where the host workspace is bind-mounted inside
// the container.
const containerWorkspace = "/workspace"

// Container runs the fine-tuning tool inside a Docker container.
//
// GPU toolchains commonly ship as images; this runner bind-mounts the
// workspace so the configuration mapping and the training partition are
// visible to the tool and the adapter artifact lands back on the host.
type Container struct {
	// image is the toolchain image. Its entrypoint is the tool; the
	// container command is the configuration key.
	image string

	// workspace is the host directory bind-mounted at /workspace.
	workspace string

	// client is the Docker client.
	client *client.Client

	// Resource limits. Zero means unbounded; fine-tuning jobs usually
	// want the whole machine.
	memoryLimit int64 // in bytes
	cpuLimit    int64 // in nano CPUs (1 CPU = 1000000000)
}

var _ Runner = (*Container)(nil)

// ContainerOption is a functional option for configuring Container.
type ContainerOption func(*Container)

// WithImage sets the toolchain image to run.
func WithImage(img string) ContainerOption {
	return func(r *Container) {
		r.image = img
	}
}

// WithDockerClient sets a custom Docker client.
func WithDockerClient(client *client.Client) ContainerOption {
	return func(r *Container) {
		r.client = client
	}
}

// WithWorkspace sets the host directory bind-mounted into the
// container. Defaults to the current working directory.
func WithWorkspace(dir string) ContainerOption {
	return func(r *Container) {
		r.workspace = dir
	}
}

// WithMemoryLimit bounds container memory (in bytes).
func WithMemoryLimit(limit int64) ContainerOption {
	return func(r *Container) {
		r.memoryLimit = limit
	}
}

// WithCPULimit bounds container CPU (in nano CPUs).
func WithCPULimit(limit int64) ContainerOption {
	return func(r *Container) {
		r.cpuLimit = limit
	}
}

// NewContainer creates a runner executing the tool in a Docker
// container.
func NewContainer(opts ...ContainerOption) (*Container, error) {
	runner := &Container{
		image: defaultImage,
	}
	for _, opt := range opts {
		opt(runner)
	}

	if runner.workspace == "" {
		workspace, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolve workspace: %w", err)
		}
		runner.workspace = workspace
	}
	workspace, err := filepath.Abs(runner.workspace)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace: %w", err)
	}
	runner.workspace = workspace

	if runner.client == nil {
		client, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
		if err != nil {
			return nil, fmt.Errorf("create Docker client: %w", err)
		}
		runner.client = client
	}

	// Test Docker connection
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := runner.client.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to Docker: %w", err)
	}

	return runner, nil
}

// Run implements [Runner].
func (r *Container) Run(ctx context.Context, job *Job) (*Result, error) {
	if job == nil || job.ConfigKey == "" {
		return nil, errors.New("job config key is required")
	}

	logger := logging.FromContext(ctx)

	if err := r.ensureImage(ctx); err != nil {
		return nil, fmt.Errorf("ensure image %s: %w", r.image, err)
	}

	resp, err := r.client.ContainerCreate(
		ctx,
		&container.Config{
			Image:      r.image,
			Cmd:        []string{job.ConfigKey},
			WorkingDir: containerWorkspace,
			Env:        jobEnviron(nil, job, nil),
			Tty:        false,
		},
		&container.HostConfig{
			Binds: []string{r.workspace + ":" + containerWorkspace},
			Resources: container.Resources{
				Memory:   r.memoryLimit,
				NanoCPUs: r.cpuLimit,
			},
		},
		nil,
		nil,
		"",
	)
	if err != nil {
		return nil, fmt.Errorf("create container: %w", err)
	}
	defer r.cleanupContainer(resp.ID)

	startTime := time.Now()
	if err := r.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("start container: %w", err)
	}

	logger.InfoContext(ctx, "Started fine-tuning container",
		slog.String("image", r.image),
		slog.String("config_key", job.ConfigKey),
	)

	statusCh, errCh := r.client.ContainerWait(ctx, resp.ID, container.WaitConditionNotRunning)
	var exitCode int
	select {
	case err := <-errCh:
		if err != nil {
			return nil, fmt.Errorf("wait for container: %w", err)
		}
	case status := <-statusCh:
		exitCode = int(status.StatusCode)
	}
	duration := time.Since(startTime)

	stdout, stderr, err := r.containerLogs(ctx, resp.ID)
	if err != nil {
		return nil, fmt.Errorf("read container logs: %w", err)
	}

	if exitCode != 0 {
		return nil, &ProcessFailure{
			Tool:     r.image,
			ExitCode: exitCode,
			Stderr:   string(stderr),
		}
	}

	captured, events := collectOutput(ctx, logger, bytes.NewReader(stdout))

	result := &Result{
		Stdout:     captured,
		Stderr:     string(stderr),
		AdapterDir: filepath.Join(r.workspace, DefaultOutputRoot, job.ConfigKey),
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

// ensureImage ensures the toolchain image is available locally.
func (r *Container) ensureImage(ctx context.Context) error {
	images, err := r.client.ImageList(ctx, image.ListOptions{})
	if err != nil {
		return err
	}

	for _, img := range images {
		if slices.Contains(img.RepoTags, r.image) {
			return nil // Image already exists
		}
	}

	reader, err := r.client.ImagePull(ctx, r.image, image.PullOptions{})
	if err != nil {
		return err
	}
	defer reader.Close()

	// Wait for pull to complete
	_, err = io.Copy(io.Discard, reader)
	return err
}

// containerLogs collects the demultiplexed output streams of a stopped
// container.
func (r *Container) containerLogs(ctx context.Context, containerID string) (stdout, stderr []byte, err error) {
	logs, err := r.client.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return nil, nil, err
	}
	defer logs.Close()

	var outBuf, errBuf bytes.Buffer
	if _, err := stdcopy.StdCopy(&outBuf, &errBuf, logs); err != nil {
		return nil, nil, err
	}

	return outBuf.Bytes(), errBuf.Bytes(), nil
}

// cleanupContainer removes the container.
func (r *Container) cleanupContainer(containerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	r.client.ContainerRemove(ctx, containerID, container.RemoveOptions{
		Force: true,
	})
}

// Close implements [Runner].
func (r *Container) Close() error {
	if r.client != nil {
		return r.client.Close()
	}

	return nil
}
