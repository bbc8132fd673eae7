// Copyright 2025 The FinTune Authors
// SPDX-License-Identifier: Apache-2.0

package lora

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
	"github.com/moby/sys/atomicwriter"
)

// File is the in-memory form of a configuration mapping file.
//
// Entries keep their insertion order: new names append, existing names update
// in place. The zero value is usable; [NewFile] is the conventional
// constructor.
type File struct {
	names   []string
	entries map[string]*Config
}

var (
	_ json.MarshalerTo     = (*File)(nil)
	_ json.UnmarshalerFrom = (*File)(nil)
)

// NewFile returns an empty configuration mapping.
func NewFile() *File {
	return &File{
		entries: make(map[string]*Config),
	}
}

// Load parses the configuration file at path.
//
// Any content whose root is not a JSON object of configuration records
// (including a missing or unreadable file) returns a [*MalformedConfigError]
// wrapping the cause.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &MalformedConfigError{Path: path, Err: err}
	}

	file := NewFile()
	if err := json.Unmarshal(data, file); err != nil {
		return nil, &MalformedConfigError{Path: path, Err: err}
	}

	return file, nil
}

// LoadOrInit behaves like [Load] but treats a missing file as an empty mapping,
// letting a first run bootstrap the configuration file.
func LoadOrInit(path string) (*File, error) {
	file, err := Load(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return NewFile(), nil
		}
		return nil, err
	}

	return file, nil
}

// Set inserts cfg under name, or overwrites the existing entry in place.
//
// The stored value is a copy, so later mutation of cfg does not reach the file.
func (f *File) Set(name string, cfg *Config) {
	if f.entries == nil {
		f.entries = make(map[string]*Config)
	}

	c := *cfg
	if _, exists := f.entries[name]; !exists {
		f.names = append(f.names, name)
	}
	f.entries[name] = &c
}

// Get returns a copy of the entry under name.
func (f *File) Get(name string) (*Config, bool) {
	cfg, ok := f.entries[name]
	if !ok {
		return nil, false
	}

	c := *cfg
	return &c, true
}

// Names returns the configuration names in insertion order.
func (f *File) Names() []string {
	return slices.Clone(f.names)
}

// Len returns the number of entries.
func (f *File) Len() int {
	return len(f.names)
}

// Save rewrites the configuration file at path with the full mapping,
// pretty-printed with two-space indentation.
//
// Parent directories are created when absent. The file is replaced atomically
// through a temp file in the same directory.
func (f *File) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create parent directory: %w", err)
	}

	data, err := json.Marshal(f, jsontext.WithIndent("  "))
	if err != nil {
		return fmt.Errorf("encode config file: %w", err)
	}
	data = append(data, '\n')

	if err := atomicwriter.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	return nil
}

// Merge loads the mapping at path, inserts or overwrites the entry under name,
// and rewrites the file.
//
// All entries unrelated to name are preserved, content and order. Merging the
// same name and value twice is idempotent.
func Merge(path, name string, cfg *Config) error {
	file, err := Load(path)
	if err != nil {
		return err
	}

	file.Set(name, cfg)

	return file.Save(path)
}

// MarshalJSONTo implements [json.MarshalerTo], writing entries in insertion order.
func (f *File) MarshalJSONTo(enc *jsontext.Encoder) error {
	if err := enc.WriteToken(jsontext.BeginObject); err != nil {
		return err
	}
	for _, name := range f.names {
		if err := enc.WriteToken(jsontext.String(name)); err != nil {
			return err
		}
		if err := json.MarshalEncode(enc, f.entries[name]); err != nil {
			return err
		}
	}

	return enc.WriteToken(jsontext.EndObject)
}

// UnmarshalJSONFrom implements [json.UnmarshalerFrom], recording insertion order
// as entries are decoded.
func (f *File) UnmarshalJSONFrom(dec *jsontext.Decoder) error {
	tok, err := dec.ReadToken()
	if err != nil {
		return err
	}
	if tok.Kind() != '{' {
		return errors.New("root value is not an object")
	}

	for dec.PeekKind() != '}' {
		nameTok, err := dec.ReadToken()
		if err != nil {
			return err
		}
		// The token is only valid until the next decoder call.
		name := nameTok.String()

		cfg := new(Config)
		if err := json.UnmarshalDecode(dec, cfg); err != nil {
			return err
		}
		f.Set(name, cfg)
	}

	// Consume the closing brace.
	if _, err := dec.ReadToken(); err != nil {
		return err
	}

	return nil
}
