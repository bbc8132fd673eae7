// Copyright 2025 The FinTune Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/finai/fintune/lora"
	"github.com/finai/fintune/pipeline"
)

// newTestCmd returns a mock command whose output is captured, with the
// global logger silenced.
func newTestCmd(t *testing.T) (*cobra.Command, *bytes.Buffer) {
	t.Helper()

	logger = slog.New(slog.DiscardHandler)

	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetContext(t.Context())
	cmd.SetOut(&out)

	return cmd, &out
}

// writeRawDataset writes n records as data/finai_raw.jsonl under the
// current working directory.
func writeRawDataset(t *testing.T, n int) {
	t.Helper()

	if err := os.MkdirAll("data", 0o755); err != nil {
		t.Fatalf("Failed to create data dir: %v", err)
	}

	var sb strings.Builder
	for i := range n {
		sb.WriteString(`{"context": "passage `)
		sb.WriteString(strings.Repeat("x", i+1))
		sb.WriteString(`", "target": "answer"}` + "\n")
	}
	if err := os.WriteFile(filepath.Join("data", "finai_raw.jsonl"), []byte(sb.String()), 0o644); err != nil {
		t.Fatalf("Failed to write raw dataset: %v", err)
	}
}

// writeStubTool installs a shell script under a fresh directory and
// returns its path.
func writeStubTool(t *testing.T, name, script string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755); err != nil {
		t.Fatalf("Failed to write stub tool: %v", err)
	}

	return path
}

func TestSplitCmd(t *testing.T) {
	t.Chdir(t.TempDir())
	writeRawDataset(t, 5)

	cmd, out := newTestCmd(t)
	if err := runSplit(cmd, nil); err != nil {
		t.Fatalf("runSplit failed: %v", err)
	}

	layout := pipeline.DefaultLayout()
	for _, path := range []string{layout.TrainPath, layout.TestPath} {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("partition %s was not written: %v", path, err)
		}
	}
	if got := out.String(); !strings.Contains(got, "wrote 4 train records") {
		t.Errorf("runSplit output %q does not report the train partition", got)
	}
}

func TestSplitCmd_MissingRaw(t *testing.T) {
	t.Chdir(t.TempDir())

	cmd, out := newTestCmd(t)
	if err := runSplit(cmd, nil); err != nil {
		t.Fatalf("runSplit failed on a missing raw dataset: %v", err)
	}

	if got := out.String(); !strings.Contains(got, "raw dataset not found") {
		t.Errorf("runSplit output %q does not surface the missing dataset", got)
	}
	if _, err := os.Stat(pipeline.DefaultLayout().TrainPath); !os.IsNotExist(err) {
		t.Errorf("train partition written despite a missing raw dataset: %v", err)
	}
}

func TestConfigCmd(t *testing.T) {
	t.Chdir(t.TempDir())

	cmd, out := newTestCmd(t)
	if err := runConfig(cmd, nil); err != nil {
		t.Fatalf("runConfig failed: %v", err)
	}

	layout := pipeline.DefaultLayout()
	file, err := lora.Load(layout.ConfigPath)
	if err != nil {
		t.Fatalf("Failed to load written config file: %v", err)
	}
	if _, ok := file.Get(pipeline.DefaultConfigKey); !ok {
		t.Errorf("config file has no %q entry", pipeline.DefaultConfigKey)
	}
	if got := out.String(); !strings.Contains(got, "(1 entries)") {
		t.Errorf("runConfig output %q does not report the entry count", got)
	}

	// Merging again is idempotent.
	if err := runConfig(cmd, nil); err != nil {
		t.Fatalf("runConfig second run failed: %v", err)
	}
	file, err = lora.Load(layout.ConfigPath)
	if err != nil {
		t.Fatalf("Failed to reload config file: %v", err)
	}
	if file.Len() != 1 {
		t.Errorf("config file has %d entries after a re-merge, want 1", file.Len())
	}
}

func TestRunCmd(t *testing.T) {
	t.Chdir(t.TempDir())
	writeRawDataset(t, 5)

	oldTool := runTool
	runTool = writeStubTool(t, "finetune-cli", "exit 0")
	defer func() { runTool = oldTool }()

	cmd, out := newTestCmd(t)
	if err := runPipeline(cmd, nil); err != nil {
		t.Fatalf("runPipeline failed: %v", err)
	}

	got := out.String()
	for _, want := range []string{
		"split: 5 records",
		"config: finai-qa-lora",
		"adapter: " + filepath.Join("lora", "output", "finai-qa-lora"),
	} {
		if !strings.Contains(got, want) {
			t.Errorf("runPipeline output %q does not contain %q", got, want)
		}
	}
}

func TestAskCmd_Adapter(t *testing.T) {
	adapterDir := t.TempDir()
	config := filepath.Join(adapterDir, "adapter_config.json")
	if err := os.WriteFile(config, []byte(`{"r": 8}`), 0o644); err != nil {
		t.Fatalf("Failed to write adapter config: %v", err)
	}

	// The serving tool resolves from PATH.
	stub := writeStubTool(t, "finetune-cli", `cat > /dev/null; echo "EBITDA measures core operating profitability."`)
	t.Setenv("PATH", filepath.Dir(stub)+string(os.PathListSeparator)+os.Getenv("PATH"))

	oldModel, oldAdapter := askModel, askAdapter
	askModel, askAdapter = "mistralai/Mistral-7B-v0.1", adapterDir
	defer func() { askModel, askAdapter = oldModel, oldAdapter }()

	cmd, out := newTestCmd(t)
	if err := runAsk(cmd, []string{"What does EBITDA measure?"}); err != nil {
		t.Fatalf("runAsk failed: %v", err)
	}

	got := out.String()
	for _, want := range []string{"Q: What does EBITDA measure?", "A: EBITDA measures core operating profitability."} {
		if !strings.Contains(got, want) {
			t.Errorf("runAsk output %q does not contain %q", got, want)
		}
	}
}
