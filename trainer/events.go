// Copyright 2025 The FinTune Authors
// SPDX-License-Identifier: Apache-2.0

package trainer

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/finai/fintune/internal/pool"
)

// maxLineSize bounds a single stdout line when scanning tool output.
const maxLineSize = 1024 * 1024

// Event is one progress record emitted by the external tool as a JSON
// object on its own stdout line.
type Event struct {
	CurrentSteps int     `json:"current_steps"`
	TotalSteps   int     `json:"total_steps"`
	Loss         float64 `json:"loss"`
	Epoch        float64 `json:"epoch"`
	LearningRate float64 `json:"learning_rate"`
}

// parseEvent reports whether line is a progress record. A line counts
// only when it is a JSON object carrying a step counter; everything
// else is opaque tool output.
func parseEvent(line string) (Event, bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "{") {
		return Event{}, false
	}

	var event Event
	if err := sonic.ConfigFastest.Unmarshal([]byte(trimmed), &event); err != nil {
		return Event{}, false
	}
	if event.CurrentSteps == 0 && event.TotalSteps == 0 {
		return Event{}, false
	}

	return event, true
}

// collectOutput drains the tool's stdout line by line, logging progress
// records as they arrive. It returns the full captured output and the
// parsed events in order.
func collectOutput(ctx context.Context, logger *slog.Logger, r io.Reader) (string, []Event) {
	buf := pool.Buffer.Get()
	defer func() {
		buf.Reset()
		pool.Buffer.Put(buf)
	}()

	var events []Event
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := scanner.Text()
		buf.WriteString(line)
		buf.WriteByte('\n')

		if event, ok := parseEvent(line); ok {
			events = append(events, event)
			logger.InfoContext(ctx, "Fine-tuning progress",
				slog.Int("current_steps", event.CurrentSteps),
				slog.Int("total_steps", event.TotalSteps),
				slog.Float64("loss", event.Loss),
				slog.Float64("epoch", event.Epoch),
			)
			continue
		}
		if line != "" {
			logger.DebugContext(ctx, "Fine-tuning output", slog.String("line", line))
		}
	}

	return buf.String(), events
}
