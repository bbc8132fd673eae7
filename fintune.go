// Copyright 2025 The FinTune Authors
// SPDX-License-Identifier: Apache-2.0

// Package fintune is a code-first Go toolkit for preparing financial QA datasets, managing LoRA fine-tuning configurations, and driving fine-tuning and inference over tuned adapters.
package fintune

import (
	// for raw string prompt constants
	_ "github.com/MakeNowJust/heredoc/v2"
	// for prompt templating
	_ "github.com/google/dotprompt/go/dotprompt"
)

// Version is the version of the FinTune toolkit.
var Version = "v0.0.0"
