// Copyright 2025 The FinTune Authors
// SPDX-License-Identifier: Apache-2.0

package trainer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/finai/fintune/internal/vertexai/tuning"
	"github.com/finai/fintune/lora"
	"github.com/finai/fintune/pkg/logging"
)

// defaultConfigPath is the pipeline's canonical configuration mapping
// file, used when the job carries no explicit path.
const defaultConfigPath = "lora/finetune_configs.json"

// defaultWaitTimeout bounds how long a managed tuning job may take.
const defaultWaitTimeout = 2 * time.Hour

// TuningService is the slice of the managed tuning surface the Vertex
// runner uses. *tuning.Service implements it.
type TuningService interface {
	CreateTuningJob(ctx context.Context, name string, config *tuning.Config) (*tuning.Job, error)
	WaitForCompletion(ctx context.Context, name string, timeout time.Duration) error
	GetTunedModel(ctx context.Context, jobName string) (*tuning.TunedModel, error)
	GetProgress(ctx context.Context, name string) (*tuning.Progress, error)
	Close() error
}

var _ TuningService = (*tuning.Service)(nil)

// Vertex runs fine-tuning jobs on the managed Vertex AI tuning service
// instead of a local process. The job's configuration entry is translated
// into a managed tuning job; the training partition must already be staged
// somewhere the service can read it.
type Vertex struct {
	service   TuningService
	stagedURI string
	timeout   time.Duration
}

var _ Runner = (*Vertex)(nil)

// VertexOption configures a [Vertex] runner.
type VertexOption func(*Vertex)

// WithStagedURI points the tuning job at an already staged copy of the
// training partition (a gs:// URI), overriding the job's dataset path.
func WithStagedURI(uri string) VertexOption {
	return func(r *Vertex) {
		r.stagedURI = uri
	}
}

// WithWaitTimeout bounds how long Run waits for the managed job.
func WithWaitTimeout(d time.Duration) VertexOption {
	return func(r *Vertex) {
		r.timeout = d
	}
}

// NewVertex creates a runner that submits jobs to the given tuning
// service. The runner takes ownership of the service; Close closes it.
func NewVertex(service TuningService, opts ...VertexOption) (*Vertex, error) {
	if service == nil {
		return nil, errors.New("tuning service is required")
	}

	r := &Vertex{
		service: service,
		timeout: defaultWaitTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}

	return r, nil
}

// Run translates the job's configuration entry into a managed tuning job
// and blocks until it reaches a terminal state.
func (r *Vertex) Run(ctx context.Context, job *Job) (*Result, error) {
	if job == nil || job.ConfigKey == "" {
		return nil, errors.New("job with a non-empty ConfigKey is required")
	}

	logger := logging.FromContext(ctx)

	configPath := job.ConfigPath
	if configPath == "" {
		configPath = defaultConfigPath
	}
	file, err := lora.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load tuning configs: %w", err)
	}
	cfg, ok := file.Get(job.ConfigKey)
	if !ok {
		return nil, fmt.Errorf("config %q not found in %s", job.ConfigKey, configPath)
	}

	tuningConfig := tuning.FromLoRAConfig(cfg)
	tuningConfig.DisplayName = job.ConfigKey
	switch {
	case r.stagedURI != "":
		tuningConfig.TrainURI = r.stagedURI
	case job.DatasetPath != "":
		tuningConfig.TrainURI = job.DatasetPath
	}

	start := time.Now()

	tuningJob, err := r.service.CreateTuningJob(ctx, "", tuningConfig)
	if err != nil {
		return nil, fmt.Errorf("create tuning job: %w", err)
	}

	logger.InfoContext(ctx, "Submitted managed tuning job",
		slog.String("job", tuningJob.Name),
		slog.String("config_key", job.ConfigKey),
		slog.String("method", string(tuningConfig.Method)),
	)

	if err := r.service.WaitForCompletion(ctx, tuningJob.Name, r.timeout); err != nil {
		return nil, fmt.Errorf("tuning job %s: %w", tuningJob.Name, err)
	}

	model, err := r.service.GetTunedModel(ctx, tuningJob.Name)
	if err != nil {
		return nil, fmt.Errorf("tuned model for job %s: %w", tuningJob.Name, err)
	}

	result := &Result{
		AdapterDir: model.ModelPath,
		Duration:   time.Since(start),
	}
	// Surface the final reported progress as a single trailing event.
	if progress, err := r.service.GetProgress(ctx, tuningJob.Name); err == nil {
		result.Events = append(result.Events, Event{
			CurrentSteps: progress.CurrentEpoch,
			TotalSteps:   progress.TotalEpochs,
			Loss:         progress.TrainingLoss,
			Epoch:        float64(progress.CurrentEpoch),
			LearningRate: progress.LearningRate,
		})
	}

	logger.InfoContext(ctx, "Managed tuning job finished",
		slog.String("job", tuningJob.Name),
		slog.String("adapter_dir", result.AdapterDir),
		slog.Duration("duration", result.Duration),
	)

	return result, nil
}

// Close closes the underlying tuning service.
func (r *Vertex) Close() error {
	return r.service.Close()
}
