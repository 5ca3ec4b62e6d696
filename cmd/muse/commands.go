// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"github.com/spf13/cobra"
)

const defaultConfigPath = "muse.yaml"

var (
	configPath    string
	workspaceRoot string
	auditDir      string
	modelName     string
	logLevel      string

	rootCmd = &cobra.Command{
		Use:   "muse",
		Short: "Decompose governance documents into traceable planning artifacts",
		Long: `muse runs the derivation pipeline: it splits a governance document
into sections, summarizes each one, derives Epics, Features, and
Stories through scope-bounded generative calls, validates the
hierarchy, and commits the artifacts to a versioned workspace with a
replayable audit record.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			loadConfig()
			if workspaceRoot != "" {
				cfg.WorkspaceRoot = workspaceRoot
			}
			if auditDir != "" {
				cfg.AuditDir = auditDir
			}
			if modelName != "" {
				cfg.Model.Name = modelName
			}
		},
	}

	runCmd = &cobra.Command{
		Use:   "run [document]",
		Short: "Run the full derivation pipeline over one document",
		Args:  cobra.ExactArgs(1),
		Run:   runPipeline, // Defined in cmd_run.go
	}

	artifactsCmd = &cobra.Command{
		Use:   "artifacts",
		Short: "Inspect the workspace artifact registry",
	}
	artifactsListCmd = &cobra.Command{
		Use:   "list [kind]",
		Short: "List registry records, optionally for one kind",
		Args:  cobra.MaximumNArgs(1),
		Run:   runArtifactsList, // Defined in cmd_inspect.go
	}
	artifactsGetCmd = &cobra.Command{
		Use:   "get [kind] [natural-key]",
		Short: "Show the registry record for a natural key",
		Args:  cobra.ExactArgs(2),
		Run:   runArtifactsGet, // Defined in cmd_inspect.go
	}

	auditCmd = &cobra.Command{
		Use:   "audit",
		Short: "Query the append-only audit store",
	}
	auditGetCmd = &cobra.Command{
		Use:   "get [audit-id]",
		Short: "Show one audit record",
		Args:  cobra.ExactArgs(1),
		Run:   runAuditGet, // Defined in cmd_inspect.go
	}
	auditArtifactCmd = &cobra.Command{
		Use:   "artifact [artifact-id]",
		Short: "Show every audit record that produced an artifact",
		Args:  cobra.ExactArgs(1),
		Run:   runAuditArtifact, // Defined in cmd_inspect.go
	}
	auditListCmd = &cobra.Command{
		Use:   "list",
		Short: "List all audit records, oldest first",
		Run:   runAuditList, // Defined in cmd_inspect.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath, "Path to the configuration file")
	rootCmd.PersistentFlags().StringVar(&workspaceRoot, "workspace", "", "Versioned workspace root (overrides config)")
	rootCmd.PersistentFlags().StringVar(&auditDir, "audit-dir", "", "Audit store directory (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	runCmd.Flags().StringVar(&modelName, "model", "", "Model name (overrides config)")

	artifactsCmd.AddCommand(artifactsListCmd, artifactsGetCmd)
	auditCmd.AddCommand(auditGetCmd, auditArtifactCmd, auditListCmd)
	rootCmd.AddCommand(runCmd, artifactsCmd, auditCmd)
}
