// Copyright 2025 The FinTune Authors
// SPDX-License-Identifier: Apache-2.0

package dataset

import (
	"github.com/bytedance/sonic"
)

// Example is the parsed view of a well-formed QA record.
//
// The split path never uses this type; it exists for validation statistics and
// for rendering few-shot prompt blocks.
type Example struct {
	// Context is the financial passage the question is grounded in.
	Context string `json:"context"`

	// Target is the reference answer text.
	Target string `json:"target"`
}

// Stats summarizes an informational pass over raw dataset lines.
type Stats struct {
	// Records is the total number of lines.
	Records int

	// WellFormed counts lines that parse as JSON with non-empty context and target.
	WellFormed int

	// Malformed counts the remaining lines.
	Malformed int
}

// Stat classifies each line as well-formed or malformed.
//
// A well-formed line is a JSON object with non-empty "context" and "target"
// string fields. Stat never fails: unparseable lines are counted, not
// rejected, because the splitter passes them through regardless.
func Stat(lines []string) Stats {
	stats := Stats{Records: len(lines)}
	for _, line := range lines {
		if _, ok := parseExample(line); ok {
			stats.WellFormed++
			continue
		}
		stats.Malformed++
	}

	return stats
}

// Examples parses every well-formed line, preserving input order and skipping
// malformed ones.
func Examples(lines []string) []Example {
	var examples []Example
	for _, line := range lines {
		if ex, ok := parseExample(line); ok {
			examples = append(examples, ex)
		}
	}

	return examples
}

// parseExample decodes a single record line with sonic.
func parseExample(line string) (Example, bool) {
	var ex Example
	if err := sonic.ConfigFastest.Unmarshal([]byte(line), &ex); err != nil {
		return Example{}, false
	}
	if ex.Context == "" || ex.Target == "" {
		return Example{}, false
	}

	return ex, true
}
