// Copyright 2025 The FinTune Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/finai/fintune/dataset"
	"github.com/finai/fintune/lora"
	"github.com/finai/fintune/model"
	"github.com/finai/fintune/pkg/logging"
	"github.com/finai/fintune/prompt"
	"github.com/finai/fintune/trainer"
)

// DefaultConfigKey names the configuration entry a run trains with unless
// overridden.
const DefaultConfigKey = "finai-qa-lora"

// Answer pairs a question with the model's generated answer.
type Answer struct {
	Question string
	Text     string
}

// Report summarizes one pipeline run.
type Report struct {
	// RunID is the uuid identifying the run in log attributes.
	RunID string

	// SplitSkipped records that the raw dataset was absent and the split
	// stage did nothing.
	SplitSkipped bool

	// Stats describes the split dataset. Zero when the split was skipped.
	Stats dataset.Stats

	// ConfigKey is the configuration entry the run trained with.
	ConfigKey string

	// AdapterDir is the directory holding the trained adapter artifact.
	AdapterDir string

	// Answers holds the generated answers in question order.
	Answers []Answer
}

// Pipeline runs the four stages against a fixed filesystem layout.
type Pipeline struct {
	configKey string
	layout    Layout
	runner    trainer.Runner
	generator model.Generator
	questions []string
	fewShot   int
	logger    *slog.Logger
}

// Option is a functional option for configuring a [Pipeline].
type Option func(*Pipeline)

// WithConfigKey overrides [DefaultConfigKey] as the configuration entry the
// run trains with.
func WithConfigKey(key string) Option {
	return func(p *Pipeline) {
		p.configKey = key
	}
}

// WithLayout relocates the filesystem layout. Intended for tests; production
// runs keep [DefaultLayout].
func WithLayout(layout Layout) Option {
	return func(p *Pipeline) {
		p.layout = layout
	}
}

// WithRunner sets the fine-tuning runner. Required.
func WithRunner(runner trainer.Runner) Option {
	return func(p *Pipeline) {
		p.runner = runner
	}
}

// WithGenerator sets the generator that answers the configured questions.
func WithGenerator(gen model.Generator) Option {
	return func(p *Pipeline) {
		p.generator = gen
	}
}

// WithQuestions sets the questions answered after training.
func WithQuestions(questions ...string) Option {
	return func(p *Pipeline) {
		p.questions = append(p.questions, questions...)
	}
}

// WithFewShot prepends up to n worked examples from the train partition to
// each prompt.
func WithFewShot(n int) Option {
	return func(p *Pipeline) {
		p.fewShot = n
	}
}

// WithLogger sets a custom logger for the pipeline.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// New creates a [Pipeline] with the default layout and configuration key.
//
// A runner is required; a generator is required only when questions are
// configured. The pipeline does not own either: closing them stays with
// the caller.
func New(opts ...Option) (*Pipeline, error) {
	p := &Pipeline{
		configKey: DefaultConfigKey,
		layout:    DefaultLayout(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.runner == nil {
		return nil, errors.New("runner is required")
	}
	if len(p.questions) > 0 && p.generator == nil {
		return nil, errors.New("generator is required when questions are set")
	}

	return p, nil
}

// Run executes split, merge, train, and answer in order and returns the
// run's [Report].
//
// The stages share a context logger carrying the run ID. A missing raw
// dataset skips the split stage and continues; any other stage failure
// aborts the run where it happened.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	report := &Report{
		RunID:     uuid.NewString(),
		ConfigKey: p.configKey,
	}

	logger := p.logger.With(slog.String("run_id", report.RunID))
	ctx = logging.NewContext(ctx, logger)

	logger.InfoContext(ctx, "Pipeline run starting", slog.String("config_key", p.configKey))
	startTime := time.Now()

	if err := p.split(ctx, report); err != nil {
		return nil, err
	}
	if err := p.merge(ctx); err != nil {
		return nil, err
	}
	if err := p.train(ctx, report); err != nil {
		return nil, err
	}
	if err := p.answer(ctx, report); err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "Pipeline run finished",
		slog.String("adapter_dir", report.AdapterDir),
		slog.Int("answers", len(report.Answers)),
		slog.Duration("duration", time.Since(startTime)),
	)

	return report, nil
}

// split partitions the raw dataset, or skips when it is absent.
func (p *Pipeline) split(ctx context.Context, report *Report) error {
	logger := logging.FromContext(ctx)

	splitter := dataset.New(dataset.WithLogger(logger))
	split, err := splitter.SplitFile(p.layout.RawPath, p.layout.TrainPath, p.layout.TestPath)
	if err != nil {
		var missing *dataset.MissingInputError
		if !errors.As(err, &missing) {
			return fmt.Errorf("split stage: %w", err)
		}
		logger.WarnContext(ctx, "Split skipped", slog.String("reason", missing.Error()))
		report.SplitSkipped = true
		return nil
	}

	report.Stats = dataset.Stat(slices.Concat(split.Train, split.Test))
	if report.Stats.Malformed > 0 {
		logger.WarnContext(ctx, "Raw dataset has malformed records",
			slog.Int("malformed", report.Stats.Malformed),
			slog.Int("records", report.Stats.Records),
		)
	}

	return nil
}

// merge inserts or overwrites the run's configuration entry, leaving the
// rest of the mapping file untouched.
func (p *Pipeline) merge(ctx context.Context) error {
	file, err := lora.LoadOrInit(p.layout.ConfigPath)
	if err != nil {
		return fmt.Errorf("merge stage: %w", err)
	}

	cfg := lora.DefaultConfig()
	cfg.DatasetPath = p.layout.TrainPath
	file.Set(p.configKey, cfg)

	if err := file.Save(p.layout.ConfigPath); err != nil {
		return fmt.Errorf("merge stage: %w", err)
	}

	logging.FromContext(ctx).InfoContext(ctx, "Configuration merged",
		slog.String("config_path", p.layout.ConfigPath),
		slog.String("config_key", p.configKey),
		slog.Int("entries", file.Len()),
	)

	return nil
}

// train hands the configuration key to the runner and records where the
// adapter landed.
func (p *Pipeline) train(ctx context.Context, report *Report) error {
	result, err := p.runner.Run(ctx, &trainer.Job{
		ConfigKey:   p.configKey,
		ConfigPath:  p.layout.ConfigPath,
		DatasetPath: p.layout.TrainPath,
	})
	if err != nil {
		return fmt.Errorf("train stage: %w", err)
	}

	report.AdapterDir = result.AdapterDir

	return nil
}

// answer generates one answer per configured question, strictly in order.
func (p *Pipeline) answer(ctx context.Context, report *Report) error {
	if len(p.questions) == 0 {
		return nil
	}

	examples, err := p.fewShotExamples(ctx)
	if err != nil {
		return err
	}

	logger := logging.FromContext(ctx)
	for _, question := range p.questions {
		system, user := prompt.NewBuilder().
			FewShot(examples...).
			Question(question).
			Build()

		resp, err := p.generator.Generate(ctx, &model.Request{
			System: system,
			Prompt: user,
		})
		if err != nil {
			return fmt.Errorf("answer %q: %w", question, err)
		}

		report.Answers = append(report.Answers, Answer{Question: question, Text: resp.Text})
		logger.InfoContext(ctx, "Question answered",
			slog.String("generator", p.generator.Name()),
			slog.String("question", question),
		)
	}

	return nil
}

// fewShotExamples loads up to fewShot worked examples from the train
// partition. A missing partition degrades to zero examples rather than
// failing the answer stage.
func (p *Pipeline) fewShotExamples(ctx context.Context) ([]dataset.Example, error) {
	if p.fewShot <= 0 {
		return nil, nil
	}

	lines, err := dataset.ReadLines(p.layout.TrainPath)
	if err != nil {
		var missing *dataset.MissingInputError
		if errors.As(err, &missing) {
			logging.FromContext(ctx).WarnContext(ctx, "No train partition for few-shot examples",
				slog.String("path", p.layout.TrainPath),
			)
			return nil, nil
		}
		return nil, fmt.Errorf("load few-shot examples: %w", err)
	}

	examples := dataset.Examples(lines)
	if len(examples) > p.fewShot {
		examples = examples[:p.fewShot]
	}

	return examples, nil
}
