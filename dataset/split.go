// Copyright 2025 The FinTune Authors
// SPDX-License-Identifier: Apache-2.0

package dataset

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/moby/sys/atomicwriter"

	"github.com/finai/fintune/internal/pool"
)

const (
	// DefaultTrainFraction is the fraction of records assigned to the train partition.
	DefaultTrainFraction = 0.8

	// DefaultSeed seeds the shuffle so repeated runs produce identical partitions.
	DefaultSeed = 42
)

// Split holds the two partitions produced by a [Splitter].
//
// Train and Test are disjoint slices whose concatenation is a permutation of
// the input lines.
type Split struct {
	Train []string
	Test  []string
}

// Splitter deterministically partitions a dataset into train and test sets.
type Splitter struct {
	fraction float64
	seed     int64
	logger   *slog.Logger
}

// Option is a functional option for configuring a [Splitter].
type Option func(*Splitter)

// WithFraction sets the train fraction. The cut point is floor(fraction * n).
func WithFraction(fraction float64) Option {
	return func(s *Splitter) {
		s.fraction = fraction
	}
}

// WithSeed sets the shuffle seed.
func WithSeed(seed int64) Option {
	return func(s *Splitter) {
		s.seed = seed
	}
}

// WithLogger sets a custom logger for the splitter.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Splitter) {
		s.logger = logger
	}
}

// New creates a new [Splitter] with the default 80/20 fraction and seed 42.
func New(opts ...Option) *Splitter {
	s := &Splitter{
		fraction: DefaultTrainFraction,
		seed:     DefaultSeed,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Split shuffles lines with the configured seed and cuts the result at
// floor(fraction * n).
//
// The input slice is not modified. The returned partitions together hold every
// input line exactly once.
func (s *Splitter) Split(lines []string) *Split {
	shuffled := make([]string, len(lines))
	copy(shuffled, lines)

	// math/rand (v1) keeps its sequence stable across Go releases for a fixed
	// seed, which pins the partition contents, not just their sizes.
	rng := rand.New(rand.NewSource(s.seed))
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	cut := min(int(math.Floor(s.fraction*float64(len(shuffled)))), len(shuffled))

	return &Split{
		Train: shuffled[:cut],
		Test:  shuffled[cut:],
	}
}

// WriteSplit writes both partitions to their target paths.
//
// Parent directories are created when absent. Each file holds its partition's
// lines newline-joined with a trailing newline; an empty partition produces an
// empty file. Writes go through a temp file renamed into place, so a partial
// write never corrupts an existing output.
func (s *Splitter) WriteSplit(split *Split, trainPath, testPath string) error {
	if err := writeLines(trainPath, split.Train); err != nil {
		return fmt.Errorf("write train partition: %w", err)
	}
	if err := writeLines(testPath, split.Test); err != nil {
		return fmt.Errorf("write test partition: %w", err)
	}

	return nil
}

// SplitFile reads the dataset at inputPath, splits it, and writes the
// partitions to trainPath and testPath.
//
// A missing input surfaces as [*MissingInputError] with no files written.
func (s *Splitter) SplitFile(inputPath, trainPath, testPath string) (*Split, error) {
	lines, err := ReadLines(inputPath)
	if err != nil {
		return nil, err
	}

	split := s.Split(lines)
	if err := s.WriteSplit(split, trainPath, testPath); err != nil {
		return nil, err
	}

	s.logger.Info("Dataset split written",
		slog.String("input", inputPath),
		slog.Int("total", len(lines)),
		slog.Int("train", len(split.Train)),
		slog.Int("test", len(split.Test)),
	)

	return split, nil
}

// writeLines serializes lines into a pooled buffer and atomically replaces path.
func writeLines(path string, lines []string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create parent directory: %w", err)
	}

	buf := pool.Buffer.Get()
	defer func() {
		buf.Reset()
		pool.Buffer.Put(buf)
	}()

	for _, line := range lines {
		buf.WriteString(line)
		buf.WriteByte('\n')
	}

	if err := atomicwriter.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	return nil
}
