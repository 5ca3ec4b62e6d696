// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package registry maintains the workspace artifact manifest. One YAML
// manifest maps artifact kinds to record lists; upserts replace by
// natural key so re-derivation never accumulates duplicates.
package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// ManifestFilename is the manifest's name inside the workspace root.
const ManifestFilename = "artifacts.yaml"

// Artifact kinds tracked by the manifest.
const (
	KindEpic    = "epic"
	KindFeature = "feature"
	KindStory   = "story"
	KindPrompt  = "prompt"
)

var (
	// ErrNotFound indicates no record for the requested key.
	ErrNotFound = errors.New("registry: record not found")

	// ErrEmptyKey indicates an upsert with no natural key.
	ErrEmptyKey = errors.New("registry: natural key is empty")
)

// Record is one manifest entry. NaturalKey identifies the logical
// artifact set: document_id for an Epic set, epic_id for a Feature
// set, feature_id for a Story set.
type Record struct {
	NaturalKey  string    `yaml:"natural_key"`
	ArtifactIDs []string  `yaml:"artifact_ids"`
	Paths       []string  `yaml:"paths"`
	CommitHash  string    `yaml:"commit_hash,omitempty"`
	UpdatedAt   time.Time `yaml:"updated_at"`
}

// manifest is the on-disk shape.
type manifest struct {
	Artifacts map[string][]Record `yaml:"artifacts"`
}

// ArtifactPath derives the workspace-relative path for one artifact
// file from its kind and id. The layout is stable so re-runs overwrite
// in place.
func ArtifactPath(kind, artifactID string) string {
	return filepath.Join("artifacts", kind, artifactID+".md")
}

// Registry is a file-backed artifact manifest.
//
// Thread Safety: writes are serialized by an internal mutex; each
// write is read-modify-write against the current file so unrelated
// records survive, and lands via temp-then-rename so readers never see
// a partial manifest.
type Registry struct {
	path string
	mu   sync.Mutex
}

// New opens a registry for the manifest at path. The file is created
// on first write.
func New(path string) *Registry {
	return &Registry{path: path}
}

// Upsert replaces the record sharing the natural key under the kind,
// or appends if absent.
func (r *Registry) Upsert(kind string, rec Record) error {
	if rec.NaturalKey == "" {
		return ErrEmptyKey
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	m, err := r.load()
	if err != nil {
		return err
	}

	records := m.Artifacts[kind]
	replaced := false
	for i := range records {
		if records[i].NaturalKey == rec.NaturalKey {
			records[i] = rec
			replaced = true
			break
		}
	}
	if !replaced {
		records = append(records, rec)
	}
	m.Artifacts[kind] = records

	return r.store(m)
}

// Get returns the record for the natural key under the kind.
func (r *Registry) Get(kind, naturalKey string) (Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, err := r.load()
	if err != nil {
		return Record{}, err
	}
	for _, rec := range m.Artifacts[kind] {
		if rec.NaturalKey == naturalKey {
			return rec, nil
		}
	}
	return Record{}, fmt.Errorf("%w: %s/%s", ErrNotFound, kind, naturalKey)
}

// List returns all records of a kind sorted by natural key.
func (r *Registry) List(kind string) ([]Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, err := r.load()
	if err != nil {
		return nil, err
	}
	out := append([]Record(nil), m.Artifacts[kind]...)
	sort.Slice(out, func(i, j int) bool { return out[i].NaturalKey < out[j].NaturalKey })
	return out, nil
}

// Kinds returns the kinds present in the manifest, sorted.
func (r *Registry) Kinds() ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, err := r.load()
	if err != nil {
		return nil, err
	}
	kinds := make([]string, 0, len(m.Artifacts))
	for k := range m.Artifacts {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds, nil
}

func (r *Registry) load() (*manifest, error) {
	m := &manifest{Artifacts: make(map[string][]Record)}
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return m, nil
		}
		return nil, fmt.Errorf("registry: read manifest: %w", err)
	}
	if err := yaml.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("registry: parse manifest: %w", err)
	}
	if m.Artifacts == nil {
		m.Artifacts = make(map[string][]Record)
	}
	return m, nil
}

// store writes the manifest atomically: temp file in the same
// directory, then rename over the target.
func (r *Registry) store(m *manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("registry: encode manifest: %w", err)
	}

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("registry: create manifest dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ManifestFilename+".tmp-*")
	if err != nil {
		return fmt.Errorf("registry: create temp manifest: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("registry: write temp manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("registry: close temp manifest: %w", err)
	}
	if err := os.Rename(tmpName, r.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("registry: rename manifest: %w", err)
	}
	return nil
}
