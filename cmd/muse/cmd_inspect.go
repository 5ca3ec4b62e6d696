// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/muse-pipeline/services/pipeline/audit"
	"github.com/AleutianAI/muse-pipeline/services/pipeline/registry"
)

func openRegistry() *registry.Registry {
	if cfg.WorkspaceRoot == "" {
		log.Fatal("A workspace root is required: set workspace_root or pass --workspace")
	}
	return registry.New(filepath.Join(cfg.WorkspaceRoot, registry.ManifestFilename))
}

func openAuditStore() *audit.Store {
	path := cfg.AuditDir
	if path == "" {
		if cfg.WorkspaceRoot == "" {
			log.Fatal("An audit directory is required: set audit_dir or pass --audit-dir")
		}
		path = filepath.Join(cfg.WorkspaceRoot, ".muse", "audit")
	}
	store, err := audit.Open(audit.DefaultConfig(path))
	if err != nil {
		log.Fatalf("Error opening audit store: %v", err)
	}
	return store
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Fatalf("Error encoding output: %v", err)
	}
}

func runArtifactsList(cmd *cobra.Command, args []string) {
	reg := openRegistry()

	kinds := []string{registry.KindEpic, registry.KindFeature, registry.KindStory, registry.KindPrompt}
	if len(args) == 1 {
		kinds = []string{args[0]}
	}
	for _, kind := range kinds {
		records, err := reg.List(kind)
		if err != nil {
			log.Fatalf("Error listing %s records: %v", kind, err)
		}
		for _, rec := range records {
			fmt.Printf("%-8s %-50s %d artifact(s) commit=%s\n",
				kind, rec.NaturalKey, len(rec.ArtifactIDs), rec.CommitHash)
		}
	}
}

func runArtifactsGet(cmd *cobra.Command, args []string) {
	rec, err := openRegistry().Get(args[0], args[1])
	if err != nil {
		log.Fatalf("Error fetching record: %v", err)
	}
	printJSON(rec)
}

func runAuditGet(cmd *cobra.Command, args []string) {
	store := openAuditStore()
	defer store.Close()

	rec, err := store.Get(args[0])
	if err != nil {
		log.Fatalf("Error fetching audit record: %v", err)
	}
	printJSON(rec)
}

func runAuditArtifact(cmd *cobra.Command, args []string) {
	store := openAuditStore()
	defer store.Close()

	records, err := store.GetByArtifact(args[0])
	if err != nil {
		log.Fatalf("Error querying audit store: %v", err)
	}
	printJSON(records)
}

func runAuditList(cmd *cobra.Command, args []string) {
	store := openAuditStore()
	defer store.Close()

	records, err := store.List()
	if err != nil {
		log.Fatalf("Error listing audit records: %v", err)
	}
	for _, rec := range records {
		fmt.Printf("%s  %s  %-9s  %s  %d artifact(s)\n",
			rec.Timestamp.Format("2006-01-02 15:04:05"), rec.AuditID,
			rec.Result.Status, rec.Inputs.DocumentID, len(rec.Outputs.ArtifactIDs))
	}
}
