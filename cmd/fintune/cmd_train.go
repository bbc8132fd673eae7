// Copyright 2025 The FinTune Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"

	"github.com/finai/fintune/artifact"
	"github.com/finai/fintune/internal/vertexai/tuning"
	"github.com/finai/fintune/pipeline"
	"github.com/finai/fintune/trainer"
)

var (
	trainKey        string
	trainTool       string
	trainOutputRoot string
	trainTimeout    time.Duration
	trainImage      string
	trainProject    string
	trainRegion     string
	trainBucket     string
)

// trainCmd invokes the external fine-tuning tool.
var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Invoke the external fine-tuning tool with a configuration key",
	Long: heredoc.Doc(`
		Train hands one configuration key to the external fine-tuning tool
		and waits for it to finish. The tool reads the named entry from
		lora/finetune_configs.json and writes the adapter under its output
		root; a non-zero exit fails the command without retry.

		By default the tool runs as a child process on the host. With
		--image it runs inside a Docker container with the working
		directory bind-mounted at /workspace. With --project the run is
		submitted as a managed Vertex AI tuning job instead; --bucket
		additionally stages the train partition to Cloud Storage and
		trains from the staged copy.
	`),
	Args: cobra.NoArgs,
	RunE: runTrain,
}

func init() {
	trainCmd.Flags().StringVar(&trainKey, "key", pipeline.DefaultConfigKey, "configuration entry name")
	trainCmd.Flags().StringVar(&trainTool, "tool", trainer.DefaultTool, "fine-tuning command")
	trainCmd.Flags().StringVar(&trainOutputRoot, "output-root", trainer.DefaultOutputRoot, "directory the tool writes adapters under")
	trainCmd.Flags().DurationVar(&trainTimeout, "timeout", 0, "bound on the run (0 means the runner's default)")
	trainCmd.Flags().StringVar(&trainImage, "image", "", "run the tool inside this Docker image")
	trainCmd.Flags().StringVar(&trainProject, "project", "", "submit a managed Vertex AI tuning job in this Google Cloud project")
	trainCmd.Flags().StringVar(&trainRegion, "region", "us-central1", "Vertex AI region")
	trainCmd.Flags().StringVar(&trainBucket, "bucket", "", "Cloud Storage bucket to stage the train partition in")
	rootCmd.AddCommand(trainCmd)
}

func runTrain(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext(cmd)
	defer stop()

	layout := pipeline.DefaultLayout()

	runner, err := newRunner(ctx, layout)
	if err != nil {
		return err
	}
	defer runner.Close()

	result, err := runner.Run(ctx, &trainer.Job{
		ConfigKey:   trainKey,
		ConfigPath:  layout.ConfigPath,
		DatasetPath: layout.TrainPath,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "adapter written to %s\n", result.AdapterDir)

	return nil
}

// newRunner picks the runner the train flags imply: a managed Vertex AI
// job when --project is set, a Docker container when --image is set, the
// host tool otherwise.
func newRunner(ctx context.Context, layout pipeline.Layout) (trainer.Runner, error) {
	switch {
	case trainProject != "":
		return newVertexRunner(ctx, layout)
	case trainImage != "":
		return trainer.NewContainer(trainer.WithImage(trainImage))
	default:
		opts := []trainer.LocalOption{
			trainer.WithTool(trainTool),
			trainer.WithOutputRoot(trainOutputRoot),
		}
		if trainTimeout > 0 {
			opts = append(opts, trainer.WithTimeout(trainTimeout))
		}
		return trainer.NewLocal(opts...), nil
	}
}

// newVertexRunner builds the managed tuning runner, staging the train
// partition to Cloud Storage when a bucket is given.
func newVertexRunner(ctx context.Context, layout pipeline.Layout) (trainer.Runner, error) {
	service, err := tuning.NewService(ctx, trainProject, trainRegion, tuning.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("create tuning service: %w", err)
	}

	var opts []trainer.VertexOption
	if trainTimeout > 0 {
		opts = append(opts, trainer.WithWaitTimeout(trainTimeout))
	}

	if trainBucket != "" {
		uri, err := stageTrainPartition(ctx, layout)
		if err != nil {
			service.Close()
			return nil, err
		}
		opts = append(opts, trainer.WithStagedURI(uri))
	}

	return trainer.NewVertex(service, opts...)
}

// stageTrainPartition uploads the train partition to the staging bucket and
// returns its gs:// URI.
func stageTrainPartition(ctx context.Context, layout pipeline.Layout) (string, error) {
	store, err := artifact.NewGCS(ctx, trainBucket)
	if err != nil {
		return "", fmt.Errorf("create staging store: %w", err)
	}
	defer store.Close()

	uris, err := store.StageDatasets(ctx, trainKey, layout.TrainPath)
	if err != nil {
		return "", fmt.Errorf("stage train partition: %w", err)
	}

	return uris[0], nil
}
