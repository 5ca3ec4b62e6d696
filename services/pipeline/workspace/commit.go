// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/AleutianAI/muse-pipeline/pkg/logging"
	"github.com/AleutianAI/muse-pipeline/services/pipeline/derive"
	"github.com/AleutianAI/muse-pipeline/services/pipeline/document"
	"github.com/AleutianAI/muse-pipeline/services/pipeline/prompt"
	"github.com/AleutianAI/muse-pipeline/services/pipeline/registry"
)

// VersionedWorkspace is the commit surface the service depends on.
// GitWorkspace is the production implementation; tests substitute a
// fake.
type VersionedWorkspace interface {
	Root() string
	IsRepository(ctx context.Context) bool
	IsClean(ctx context.Context, allowedPrefixes ...string) (bool, []string, error)
	StageAndCommit(ctx context.Context, paths []string, message string) (string, error)
}

// CommitMessage renders the fixed commit message template. No
// free-form text enters commit history.
func CommitMessage(documentID, originalFilename string) string {
	return fmt.Sprintf("muse: derive artifacts for %s (%s)", documentID, originalFilename)
}

// ArtifactSet is everything one pipeline run persists.
type ArtifactSet struct {
	Document document.Document
	Epics    []derive.Epic
	Features []derive.Feature
	Stories  []derive.Story
	Prompts  []prompt.Prompt

	// DocumentPath is the workspace-relative path of the persisted
	// source document, staged with the artifacts when set.
	DocumentPath string
}

// CommitResult reports a successful persist.
type CommitResult struct {
	CommitHash string
	Paths      []string
}

// CommitService writes artifact files into the workspace, commits them
// under precondition checks, and records them in the registry.
type CommitService struct {
	ws  VersionedWorkspace
	reg *registry.Registry
	log *logging.Logger
	now func() time.Time
}

// NewCommitService wires the service. A nil logger is replaced with a
// discard logger.
func NewCommitService(ws VersionedWorkspace, reg *registry.Registry, log *logging.Logger) *CommitService {
	if log == nil {
		log = logging.Discard()
	}
	return &CommitService{ws: ws, reg: reg, log: log, now: time.Now}
}

// Persist writes, commits, and registers the artifact set.
//
// Preconditions are enforced in order, each with its own error type:
// the target must be a valid versioned workspace, and the working tree
// must carry no uncommitted changes outside the artifact layout. After
// a successful commit the registry is upserted per kind, keyed so that
// re-deriving the same document replaces its records instead of
// accumulating duplicates.
func (s *CommitService) Persist(ctx context.Context, set ArtifactSet) (CommitResult, error) {
	root := s.ws.Root()

	if !s.ws.IsRepository(ctx) {
		return CommitResult{}, &WorkspaceError{
			Path:        root,
			Reason:      "not a versioned workspace",
			Remediation: "initialize the workspace with `git init` first",
		}
	}
	clean, unrelated, err := s.ws.IsClean(ctx, "artifacts/", "documents/", registry.ManifestFilename)
	if err != nil {
		return CommitResult{}, &WorkspaceError{Path: root, Reason: err.Error()}
	}
	if !clean {
		return CommitResult{}, &DirtyWorkingTreeError{Path: root, Files: unrelated}
	}

	paths, err := s.writeArtifacts(set)
	if err != nil {
		return CommitResult{}, err
	}
	if set.DocumentPath != "" {
		paths = append(paths, set.DocumentPath)
	}

	message := CommitMessage(set.Document.ID, set.Document.Meta.OriginalFilename)
	hash, err := s.ws.StageAndCommit(ctx, paths, message)
	if err != nil {
		return CommitResult{}, &CommitError{Path: root, Err: err}
	}
	s.log.Info("artifacts committed",
		"document_id", set.Document.ID, "commit", hash, "files", len(paths))

	if err := s.register(set, hash); err != nil {
		return CommitResult{}, err
	}
	return CommitResult{CommitHash: hash, Paths: paths}, nil
}

// writeArtifacts renders one file per artifact at its deterministic
// path and returns the workspace-relative paths written.
func (s *CommitService) writeArtifacts(set ArtifactSet) ([]string, error) {
	var paths []string
	write := func(kind, id, content string) error {
		rel := registry.ArtifactPath(kind, id)
		abs := filepath.Join(s.ws.Root(), rel)
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			return fmt.Errorf("workspace: create artifact dir: %w", err)
		}
		if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
			return fmt.Errorf("workspace: write artifact %s: %w", rel, err)
		}
		paths = append(paths, rel)
		return nil
	}

	for _, e := range set.Epics {
		if err := write(registry.KindEpic, e.EpicID, renderEpic(e)); err != nil {
			return nil, err
		}
	}
	for _, f := range set.Features {
		if err := write(registry.KindFeature, f.FeatureID, renderFeature(f)); err != nil {
			return nil, err
		}
	}
	for _, st := range set.Stories {
		if err := write(registry.KindStory, st.StoryID, renderStory(st)); err != nil {
			return nil, err
		}
	}
	for _, p := range set.Prompts {
		rendered := renderPrompt(p)
		rel := registry.ArtifactPath(registry.KindPrompt, p.PromptID)
		existing, readErr := os.ReadFile(filepath.Join(s.ws.Root(), rel))
		if readErr == nil && string(existing) != rendered {
			// Prompts are immutable once written.
			return nil, &PromptConflictError{PromptID: p.PromptID, Path: rel}
		}
		if err := write(registry.KindPrompt, p.PromptID, rendered); err != nil {
			return nil, err
		}
	}
	return paths, nil
}

// register upserts one registry record per kind. Natural keys follow
// the ownership chain: the document owns its Epic set, each Epic its
// Feature set, each Feature its Story set, each Story its Prompt.
func (s *CommitService) register(set ArtifactSet, commitHash string) error {
	now := s.now().UTC()

	epicRecord := registry.Record{
		NaturalKey: set.Document.ID,
		CommitHash: commitHash,
		UpdatedAt:  now,
	}
	for _, e := range set.Epics {
		epicRecord.ArtifactIDs = append(epicRecord.ArtifactIDs, e.EpicID)
		epicRecord.Paths = append(epicRecord.Paths, registry.ArtifactPath(registry.KindEpic, e.EpicID))
	}
	if err := s.reg.Upsert(registry.KindEpic, epicRecord); err != nil {
		return err
	}

	featureRecords := make(map[string]*registry.Record)
	for _, f := range set.Features {
		rec, ok := featureRecords[f.EpicID]
		if !ok {
			rec = &registry.Record{NaturalKey: f.EpicID, CommitHash: commitHash, UpdatedAt: now}
			featureRecords[f.EpicID] = rec
		}
		rec.ArtifactIDs = append(rec.ArtifactIDs, f.FeatureID)
		rec.Paths = append(rec.Paths, registry.ArtifactPath(registry.KindFeature, f.FeatureID))
	}
	for _, rec := range featureRecords {
		if err := s.reg.Upsert(registry.KindFeature, *rec); err != nil {
			return err
		}
	}

	storyRecords := make(map[string]*registry.Record)
	for _, st := range set.Stories {
		rec, ok := storyRecords[st.FeatureID]
		if !ok {
			rec = &registry.Record{NaturalKey: st.FeatureID, CommitHash: commitHash, UpdatedAt: now}
			storyRecords[st.FeatureID] = rec
		}
		rec.ArtifactIDs = append(rec.ArtifactIDs, st.StoryID)
		rec.Paths = append(rec.Paths, registry.ArtifactPath(registry.KindStory, st.StoryID))
	}
	for _, rec := range storyRecords {
		if err := s.reg.Upsert(registry.KindStory, *rec); err != nil {
			return err
		}
	}

	for _, p := range set.Prompts {
		rec := registry.Record{
			NaturalKey:  p.StoryID,
			ArtifactIDs: []string{p.PromptID},
			Paths:       []string{registry.ArtifactPath(registry.KindPrompt, p.PromptID)},
			CommitHash:  commitHash,
			UpdatedAt:   now,
		}
		if err := s.reg.Upsert(registry.KindPrompt, rec); err != nil {
			return err
		}
	}
	return nil
}
