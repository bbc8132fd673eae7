// Copyright 2025 The FinTune Authors
// SPDX-License-Identifier: Apache-2.0

// Package prompt assembles system and user prompts for financial QA.
//
// A [Builder] collects the system instruction, optional few-shot examples
// taken from the training data, and the question, then renders the
// (system, user) pair a [model.Generator] consumes. BuildRecord renders
// the question in the JSON record shape the adapter was fine-tuned on.
package prompt

import (
	"fmt"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/go-json-experiment/json"

	"github.com/finai/fintune/dataset"
	"github.com/finai/fintune/internal/pool"
)

// DefaultSystem is the standing instruction used when the builder is not
// given one.
var DefaultSystem = heredoc.Doc(`
	You are a financial analysis assistant.
	Answer questions about filings, earnings, and market terminology.
	Ground every answer in the provided context and keep it concise.
`)

// fewShotPreamble introduces the worked examples ahead of the question.
var fewShotPreamble = heredoc.Doc(`
	Use the worked examples below as guidance for style and depth.
`)

// Builder assembles the prompt for one question. Methods return the
// receiver for chaining; the zero value is ready to use.
type Builder struct {
	system   string
	examples []dataset.Example
	question string
}

// NewBuilder returns an empty [Builder].
func NewBuilder() *Builder {
	return &Builder{}
}

// System overrides [DefaultSystem] as the system instruction.
func (b *Builder) System(s string) *Builder {
	b.system = s
	return b
}

// FewShot appends worked examples rendered ahead of the question.
func (b *Builder) FewShot(examples ...dataset.Example) *Builder {
	b.examples = append(b.examples, examples...)
	return b
}

// Question sets the question the model should answer.
func (b *Builder) Question(q string) *Builder {
	b.question = q
	return b
}

// Build renders the (system, user) prompt pair.
func (b *Builder) Build() (system, user string) {
	system = b.system
	if system == "" {
		system = DefaultSystem
	}

	sb := pool.String.Get()
	sb.Reset()
	defer pool.String.Put(sb)

	if len(b.examples) > 0 {
		sb.WriteString(fewShotPreamble)
		sb.WriteString("\n")
	}
	for i, ex := range b.examples {
		fmt.Fprintf(sb, "### Example %d\nContext: %s\nAnswer: %s\n\n", i+1, ex.Context, ex.Target)
	}
	fmt.Fprintf(sb, "### Question\n%s\n\n### Answer\n", b.question)

	return system, sb.String()
}

// BuildRecord renders the question as a training-format record line, the
// JSON shape the adapter was fine-tuned on, with an empty target for the
// model to complete. Tuned adapters answer most reliably when prompted in
// their training format.
func (b *Builder) BuildRecord() (string, error) {
	raw, err := json.Marshal(dataset.Example{Context: b.question})
	if err != nil {
		return "", fmt.Errorf("marshal question record: %w", err)
	}

	return string(raw), nil
}
