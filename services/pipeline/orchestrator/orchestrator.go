// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package orchestrator runs the derivation pipeline end to end as a
// sequential fail-fast state machine: convert, persist, gate, derive
// epics, derive features, derive stories, validate the hierarchy,
// generate prompts, commit, record audit. The content gate runs before
// any generative call; a gate failure means zero deriver invocations.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/muse-pipeline/pkg/logging"
	"github.com/AleutianAI/muse-pipeline/services/pipeline/audit"
	"github.com/AleutianAI/muse-pipeline/services/pipeline/config"
	"github.com/AleutianAI/muse-pipeline/services/pipeline/derive"
	"github.com/AleutianAI/muse-pipeline/services/pipeline/document"
	"github.com/AleutianAI/muse-pipeline/services/pipeline/hierarchy"
	"github.com/AleutianAI/muse-pipeline/services/pipeline/prompt"
	"github.com/AleutianAI/muse-pipeline/services/pipeline/retry"
	"github.com/AleutianAI/muse-pipeline/services/pipeline/section"
	"github.com/AleutianAI/muse-pipeline/services/pipeline/summary"
	"github.com/AleutianAI/muse-pipeline/services/pipeline/validate"
	"github.com/AleutianAI/muse-pipeline/services/pipeline/workspace"
)

// Result is the aggregate a run returns: document metadata, converted
// text, gate outcome, and the full cross-referenced artifact arrays.
type Result struct {
	Document   document.Document        `json:"document"`
	Text       string                   `json:"text"`
	Validation validate.Result          `json:"validation"`
	Sections   []section.Section        `json:"sections,omitempty"`
	Summaries  []summary.SectionSummary `json:"summaries,omitempty"`
	Epics      []derive.Epic            `json:"epics,omitempty"`
	Features   []derive.Feature         `json:"features,omitempty"`
	Stories    []derive.Story           `json:"stories,omitempty"`
	Prompts    []prompt.Prompt          `json:"prompts,omitempty"`
	Hierarchy  hierarchy.Result         `json:"hierarchy"`
	CommitHash string                   `json:"commit_hash,omitempty"`
	AuditID    string                   `json:"audit_id,omitempty"`
}

// Deps are the orchestrator's collaborators, injected explicitly so
// tests can build isolated fixtures. There is no ambient state.
type Deps struct {
	Config    config.Config
	Log       *logging.Logger
	Extractor TextExtractor
	Summaries *summary.Job
	Generator derive.Generator
	Prompts   *prompt.Generator
	Commits   *workspace.CommitService
	Audits    *audit.Store

	// WorkspaceRoot is where persisted documents are written.
	WorkspaceRoot string

	// Model is the model identity recorded in audit inputs.
	Model string

	// Actor is the audit attribution for runs started here.
	Actor string
}

// Orchestrator coordinates one pipeline run at a time per document.
type Orchestrator struct {
	deps   Deps
	policy retry.Policy
	now    func() time.Time

	mu       sync.Mutex
	docLocks map[string]*sync.Mutex
}

// New wires an orchestrator. A nil logger is replaced with a discard
// logger.
func New(deps Deps) *Orchestrator {
	if deps.Log == nil {
		deps.Log = logging.Discard()
	}
	if deps.Actor == "" {
		deps.Actor = "pipeline"
	}
	cfg := deps.Config
	return &Orchestrator{
		deps: deps,
		policy: retry.Policy{
			MaxAttempts:    cfg.Retry.MaxAttempts,
			InitialBackoff: cfg.Retry.InitialBackoff,
			MaxBackoff:     cfg.Retry.MaxBackoff,
			BackoffFactor:  cfg.Retry.BackoffFactor,
			JitterFactor:   cfg.Retry.JitterFactor,
		},
		now:      time.Now,
		docLocks: make(map[string]*sync.Mutex),
	}
}

// Execute runs the pipeline for one uploaded document. The returned
// Result is populated as far as the run progressed, so a later-stage
// failure still reports the artifacts produced before it. Every run,
// failed or not, lands one audit record.
func (o *Orchestrator) Execute(ctx context.Context, filename string, data []byte) (*Result, error) {
	res := &Result{}

	text, err := o.deps.Extractor.Convert(ctx, filename, data)
	if err != nil {
		o.recordAudit(res, err)
		return res, err
	}

	doc := document.New(filename, text, o.now().UTC())
	res.Document = doc
	res.Text = text

	// Concurrent runs over the same document would race on the cache
	// and the registry; serialize them.
	unlock := o.lockDocument(doc.ID)
	defer unlock()

	runErr := o.run(ctx, doc, text, res)
	o.recordAudit(res, runErr)
	if runErr != nil {
		o.deps.Log.Error("pipeline run failed",
			"document_id", doc.ID, "error", runErr)
		return res, runErr
	}
	o.deps.Log.Info("pipeline run complete",
		"document_id", doc.ID,
		"epics", len(res.Epics), "features", len(res.Features),
		"stories", len(res.Stories), "commit", res.CommitHash)
	return res, nil
}

func (o *Orchestrator) run(ctx context.Context, doc document.Document, text string, res *Result) error {
	cfg := o.deps.Config
	if cfg.Concurrency.StageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Concurrency.StageTimeout)
		defer cancel()
	}

	docPath, err := o.persistDocument(doc)
	if err != nil {
		return err
	}

	res.Validation = validate.Content(text,
		cfg.Validation.MinContentLength, cfg.Validation.PlaceholderMarkers)
	if !res.Validation.IsValid {
		return &GateError{Validation: res.Validation}
	}

	body := string(document.StripFrontMatter([]byte(text)))
	res.Sections = section.Split(doc.ID, body)

	summaries, err := o.deps.Summaries.RunAll(ctx, res.Sections)
	if err != nil {
		return err
	}
	res.Summaries = summaries

	epicStage := derive.NewEpicStage(o.deps.Generator, o.policy, derive.BoundaryConfig{
		Enabled:     cfg.Boundary.Enabled,
		MinSections: cfg.Boundary.MinSections,
	}, o.deps.Log)
	epics, err := epicStage.Derive(ctx, doc.ID, summaries)
	if err != nil {
		return err
	}
	res.Epics = epics

	sectionIDs := make(map[string]struct{}, len(res.Sections))
	for _, sec := range res.Sections {
		sectionIDs[sec.ID] = struct{}{}
	}

	features, err := o.deriveFeatures(ctx, epics, body, sectionIDs)
	if err != nil {
		return err
	}
	res.Features = features

	stories, err := o.deriveStories(ctx, features, body, sectionIDs)
	if err != nil {
		return err
	}
	res.Stories = stories

	res.Hierarchy = hierarchy.Validate(epics, features, stories)
	if !res.Hierarchy.Valid {
		return &HierarchyError{Result: res.Hierarchy}
	}
	for _, w := range res.Hierarchy.Warnings {
		o.deps.Log.Warn("hierarchy warning",
			"code", w.Code, "artifact_id", w.ArtifactID, "message", w.Message)
	}

	prompts, err := o.deps.Prompts.GenerateAll(stories)
	if err != nil {
		return err
	}
	res.Prompts = prompts

	commit, err := o.deps.Commits.Persist(ctx, workspace.ArtifactSet{
		Document:     doc,
		Epics:        epics,
		Features:     features,
		Stories:      stories,
		Prompts:      prompts,
		DocumentPath: docPath,
	})
	if err != nil {
		return err
	}
	res.CommitHash = commit.CommitHash
	return nil
}

// deriveFeatures fans out across epics with bounded concurrency.
// Results keep epic order so ids stay deterministic across runs.
func (o *Orchestrator) deriveFeatures(ctx context.Context, epics []derive.Epic, body string, sectionIDs map[string]struct{}) ([]derive.Feature, error) {
	stage := derive.NewFeatureStage(o.deps.Generator, o.policy, sectionIDs, o.deps.Log)

	perEpic := make([][]derive.Feature, len(epics))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency())
	for i, epic := range epics {
		g.Go(func() error {
			features, err := stage.Derive(gctx, epic, body)
			if err != nil {
				return err
			}
			perEpic[i] = features
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []derive.Feature
	for _, features := range perEpic {
		out = append(out, features...)
	}
	return out, nil
}

// deriveStories fans out across leaf features. A feature that owns
// subfeatures gets no direct stories; its subfeatures do.
func (o *Orchestrator) deriveStories(ctx context.Context, features []derive.Feature, body string, sectionIDs map[string]struct{}) ([]derive.Story, error) {
	stage := derive.NewStoryStage(o.deps.Generator, o.policy, sectionIDs, o.deps.Log)

	hasChildren := make(map[string]bool, len(features))
	for _, f := range features {
		if f.IsSubfeature() {
			hasChildren[f.ParentFeatureID] = true
		}
	}
	var leaves []derive.Feature
	for _, f := range features {
		if !hasChildren[f.FeatureID] {
			leaves = append(leaves, f)
		}
	}

	perFeature := make([][]derive.Story, len(leaves))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency())
	for i, feature := range leaves {
		g.Go(func() error {
			stories, err := stage.Derive(gctx, feature, body)
			if err != nil {
				return err
			}
			perFeature[i] = stories
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []derive.Story
	for _, stories := range perFeature {
		out = append(out, stories...)
	}
	return out, nil
}

// persistDocument writes the converted document with front matter into
// the workspace. Runs before the gate so rejected uploads remain
// inspectable.
func (o *Orchestrator) persistDocument(doc document.Document) (string, error) {
	if o.deps.WorkspaceRoot == "" {
		return "", nil
	}
	rel := filepath.Join("documents", doc.ID+".md")
	abs := filepath.Join(o.deps.WorkspaceRoot, rel)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", fmt.Errorf("orchestrator: create documents dir: %w", err)
	}
	content, err := document.WriteFrontMatter(doc.Meta, []byte(doc.Body))
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(abs, content, 0o644); err != nil {
		return "", fmt.Errorf("orchestrator: persist document: %w", err)
	}
	return rel, nil
}

func (o *Orchestrator) recordAudit(res *Result, runErr error) {
	if o.deps.Audits == nil {
		return
	}

	artifactIDs := collectArtifactIDs(res)

	status := audit.StatusSucceeded
	if runErr != nil {
		status = audit.StatusFailed
	}
	cfg := o.deps.Config
	rec, err := o.deps.Audits.Append(audit.Record{
		Actor: o.deps.Actor,
		Inputs: audit.Inputs{
			DocumentID: res.Document.ID,
			Checksum:   res.Document.Meta.SourceChecksum,
			StageVersions: map[string]string{
				derive.StageEpic:    strconv.Itoa(cfg.StageVersions.Epic),
				derive.StageFeature: strconv.Itoa(cfg.StageVersions.Feature),
				derive.StageStory:   strconv.Itoa(cfg.StageVersions.Story),
			},
			Model: o.deps.Model,
		},
		Outputs: audit.Outputs{
			ArtifactIDs:    artifactIDs,
			OutputChecksum: audit.OutputChecksum(artifactIDs),
		},
		Result: audit.Result{Status: status, ErrorCodes: errorCodes(runErr)},
	})
	if err != nil {
		o.deps.Log.Error("audit append failed", "error", err)
		return
	}
	res.AuditID = rec.AuditID
}

func collectArtifactIDs(res *Result) []string {
	var ids []string
	for _, e := range res.Epics {
		ids = append(ids, e.EpicID)
	}
	for _, f := range res.Features {
		ids = append(ids, f.FeatureID)
	}
	for _, s := range res.Stories {
		ids = append(ids, s.StoryID)
	}
	for _, p := range res.Prompts {
		ids = append(ids, p.PromptID)
	}
	return ids
}

func (o *Orchestrator) concurrency() int {
	n := o.deps.Config.Concurrency.MaxDeriverConcurrency
	if n < 1 {
		return 1
	}
	return n
}

func (o *Orchestrator) lockDocument(documentID string) func() {
	o.mu.Lock()
	lock, ok := o.docLocks[documentID]
	if !ok {
		lock = &sync.Mutex{}
		o.docLocks[documentID] = lock
	}
	o.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
