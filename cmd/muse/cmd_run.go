// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/muse-pipeline/pkg/logging"
	"github.com/AleutianAI/muse-pipeline/services/pipeline/audit"
	"github.com/AleutianAI/muse-pipeline/services/pipeline/derive"
	"github.com/AleutianAI/muse-pipeline/services/pipeline/llm"
	"github.com/AleutianAI/muse-pipeline/services/pipeline/orchestrator"
	"github.com/AleutianAI/muse-pipeline/services/pipeline/prompt"
	"github.com/AleutianAI/muse-pipeline/services/pipeline/registry"
	"github.com/AleutianAI/muse-pipeline/services/pipeline/retry"
	"github.com/AleutianAI/muse-pipeline/services/pipeline/summary"
	"github.com/AleutianAI/muse-pipeline/services/pipeline/workspace"
)

func parseLogLevel(s string) logging.Level {
	switch s {
	case "debug":
		return logging.LevelDebug
	case "warn":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}

func runPipeline(cmd *cobra.Command, args []string) {
	docPath := args[0]
	data, err := os.ReadFile(docPath)
	if err != nil {
		log.Fatalf("Error reading document %s: %v", docPath, err)
	}

	if cfg.WorkspaceRoot == "" {
		log.Fatal("A workspace root is required: set workspace_root or pass --workspace")
	}
	root, err := filepath.Abs(cfg.WorkspaceRoot)
	if err != nil {
		log.Fatalf("Error resolving workspace root: %v", err)
	}

	logger := logging.New(logging.Config{
		Level:   parseLogLevel(logLevel),
		Service: "muse-pipeline",
	})
	defer logger.Close()

	client, err := llm.NewOpenAIClient(cfg.Model.Name, 2.0, logger)
	if err != nil {
		log.Fatalf("Error creating model client: %v", err)
	}

	policy := retry.Policy{
		MaxAttempts:    cfg.Retry.MaxAttempts,
		InitialBackoff: cfg.Retry.InitialBackoff,
		MaxBackoff:     cfg.Retry.MaxBackoff,
		BackoffFactor:  cfg.Retry.BackoffFactor,
		JitterFactor:   cfg.Retry.JitterFactor,
	}
	perCall := llm.WithTimeout(cfg.Concurrency.PerCallTimeout)
	summaries := summary.NewJob(summary.NewLLMSummarizer(client, perCall), summary.NewCache(),
		policy, llm.IsRetryable, logger)

	gitWS, err := workspace.NewGitWorkspace(root, 0)
	if err != nil {
		log.Fatalf("Error opening workspace: %v", err)
	}
	reg := registry.New(filepath.Join(root, registry.ManifestFilename))
	commits := workspace.NewCommitService(gitWS, reg, logger)

	auditPath := cfg.AuditDir
	if auditPath == "" {
		auditPath = filepath.Join(root, ".muse", "audit")
	}
	audits, err := audit.Open(audit.DefaultConfig(auditPath))
	if err != nil {
		log.Fatalf("Error opening audit store: %v", err)
	}
	defer audits.Close()

	orch := orchestrator.New(orchestrator.Deps{
		Config:        cfg,
		Log:           logger,
		Extractor:     orchestrator.PlainTextExtractor{},
		Summaries:     summaries,
		Generator:     derive.NewLLMGenerator(client, perCall),
		Prompts:       &prompt.Generator{},
		Commits:       commits,
		Audits:        audits,
		WorkspaceRoot: root,
		Model:         client.Model(),
		Actor:         "muse-cli",
	})

	res, err := orch.Execute(context.Background(), filepath.Base(docPath), data)
	if err != nil {
		// The aggregate may still carry partial results worth showing.
		printResult(res)
		log.Fatalf("Pipeline failed: %v", err)
	}
	printResult(res)
}

func printResult(res *orchestrator.Result) {
	if res == nil {
		return
	}
	fmt.Printf("document:  %s (%s)\n", res.Document.ID, res.Document.Meta.OriginalFilename)
	fmt.Printf("sections:  %d\n", len(res.Sections))
	fmt.Printf("epics:     %d\n", len(res.Epics))
	fmt.Printf("features:  %d\n", len(res.Features))
	fmt.Printf("stories:   %d\n", len(res.Stories))
	fmt.Printf("prompts:   %d\n", len(res.Prompts))
	if !res.Validation.IsValid {
		for _, issue := range res.Validation.Issues {
			fmt.Printf("gate:      %s: %s\n", issue.Code, issue.Message)
		}
	}
	for _, w := range res.Hierarchy.Warnings {
		fmt.Printf("warning:   %s %s: %s\n", w.Code, w.ArtifactID, w.Message)
	}
	if res.CommitHash != "" {
		fmt.Printf("commit:    %s\n", res.CommitHash)
	}
	if res.AuditID != "" {
		fmt.Printf("audit:     %s\n", res.AuditID)
	}
}
