// Copyright 2025 The FinTune Authors
// SPDX-License-Identifier: Apache-2.0

package dataset

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// maxLineSize caps the scanner buffer for a single record line.
//
// Financial QA records carry long context passages, so the default
// [bufio.MaxScanTokenSize] of 64KB is too small.
const maxLineSize = 10 * 1024 * 1024

// MissingInputError reports that the raw dataset file does not exist.
//
// It is a soft failure: the caller is expected to surface the message and
// continue, not abort the whole run. No output files are written when the
// input is missing.
type MissingInputError struct {
	// Path is the raw dataset path that was not found.
	Path string
}

// Error returns a string representation of the [MissingInputError].
func (e *MissingInputError) Error() string {
	return fmt.Sprintf("raw dataset not found: %s", e.Path)
}

// ReadLines reads all lines of the dataset file at path, preserving order.
//
// A missing file returns a [*MissingInputError]; any other I/O error is
// wrapped and returned as-is. Lines are returned without their trailing
// newline and are never validated or trimmed.
func ReadLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &MissingInputError{Path: path}
		}
		return nil, fmt.Errorf("open dataset %s: %w", path, err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read dataset %s: %w", path, err)
	}

	return lines, nil
}
